// SPDX-FileCopyrightText: Copyright 2026 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	sqlite3 "modernc.org/sqlite"
	sqlite3lib "modernc.org/sqlite/lib"

	"github.com/stacklok/flowhive/pkg/engine"
	"github.com/stacklok/flowhive/pkg/storage"
)

// ExecutionStore implements storage.ExecutionStore using SQLite.
type ExecutionStore struct {
	wrapper *DB
	db      *sql.DB
}

// NewExecutionStore creates a new SQLite-backed ExecutionStore.
func NewExecutionStore(db *DB) *ExecutionStore {
	return &ExecutionStore{wrapper: db, db: db.DB()}
}

// Close closes the underlying database connection.
func (s *ExecutionStore) Close() error {
	return s.wrapper.Close()
}

var _ storage.ExecutionStore = (*ExecutionStore)(nil)

// executionColumns is the SELECT column list shared by all execution queries.
const executionColumns = `id, workflow_name, status, started_at, completed_at,
			duration_ms, current_step, total_steps, error, error_stack,
			parent_execution_id, parent_step_index, depth,
			trigger_type, trigger_source, json(metadata)`

// stepColumns is the SELECT column list shared by step queries.
const stepColumns = `step_index, step_name, action, description, status,
			started_at, completed_at, duration_ms, json(input), json(output),
			error, error_stack, child_execution_id, retry_attempt, skip_reason`

// SaveExecution inserts a new execution record.
func (s *ExecutionStore) SaveExecution(ctx context.Context, execution *engine.Execution) error {
	metadataJSON, err := encodeJSON(execution.Metadata)
	if err != nil {
		return fmt.Errorf("encoding metadata: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO executions (
			id, workflow_name, status, started_at, completed_at, duration_ms,
			current_step, total_steps, error, error_stack,
			parent_execution_id, parent_step_index, depth,
			trigger_type, trigger_source, metadata
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, jsonb(?))`,
		execution.ID,
		execution.WorkflowName,
		string(execution.Status),
		formatTime(execution.StartedAt),
		formatTimePtr(execution.CompletedAt),
		execution.Duration,
		execution.CurrentStep,
		execution.TotalSteps,
		execution.Error,
		execution.ErrorStack,
		nullableString(execution.ParentExecutionID),
		execution.ParentStepIndex,
		execution.Depth,
		string(execution.Trigger.Type),
		execution.Trigger.Source,
		metadataJSON,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("execution %s: %w", execution.ID, storage.ErrAlreadyExists)
		}
		return fmt.Errorf("inserting execution: %w", err)
	}
	return nil
}

// GetExecution retrieves an execution by id.
func (s *ExecutionStore) GetExecution(ctx context.Context, id string) (*engine.Execution, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+executionColumns+` FROM executions WHERE id = ?`, id)

	execution, err := scanExecutionFields(row)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, fmt.Errorf("execution %s: %w", id, storage.ErrNotFound)
		}
		return nil, err
	}
	return execution, nil
}

// UpdateExecution applies a partial patch; only supplied fields change.
func (s *ExecutionStore) UpdateExecution(ctx context.Context, id string, update storage.ExecutionUpdate) error {
	var sets []string
	var args []any

	if update.Status != nil {
		sets = append(sets, "status = ?")
		args = append(args, string(*update.Status))
	}
	if update.CurrentStep != nil {
		sets = append(sets, "current_step = ?")
		args = append(args, *update.CurrentStep)
	}
	if update.CompletedAt != nil {
		sets = append(sets, "completed_at = ?")
		args = append(args, formatTime(*update.CompletedAt))
	}
	if update.Duration != nil {
		sets = append(sets, "duration_ms = ?")
		args = append(args, *update.Duration)
	}
	if update.Error != nil {
		sets = append(sets, "error = ?")
		args = append(args, *update.Error)
	}
	if update.ErrorStack != nil {
		sets = append(sets, "error_stack = ?")
		args = append(args, *update.ErrorStack)
	}

	if len(sets) == 0 {
		// Nothing to patch; still report missing rows.
		var exists int
		err := s.db.QueryRowContext(ctx, `SELECT 1 FROM executions WHERE id = ?`, id).Scan(&exists)
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("execution %s: %w", id, storage.ErrNotFound)
		}
		return err
	}

	args = append(args, id)
	res, err := s.db.ExecContext(ctx,
		`UPDATE executions SET `+strings.Join(sets, ", ")+` WHERE id = ?`, args...)
	if err != nil {
		return fmt.Errorf("updating execution: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking rows affected: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("execution %s: %w", id, storage.ErrNotFound)
	}
	return nil
}

// SaveStepResult inserts or replaces the step row keyed by
// (execution_id, step_index). Retries overwrite the same row.
func (s *ExecutionStore) SaveStepResult(ctx context.Context, executionID string, step *engine.StepResult) error {
	inputJSON, err := encodeJSON(step.Input)
	if err != nil {
		return fmt.Errorf("encoding step input: %w", err)
	}
	outputJSON, err := encodeJSON(step.Output)
	if err != nil {
		return fmt.Errorf("encoding step output: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO steps (
			execution_id, step_index, step_name, action, description, status,
			started_at, completed_at, duration_ms, input, output,
			error, error_stack, child_execution_id, retry_attempt, skip_reason
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, jsonb(?), jsonb(?), ?, ?, ?, ?, ?)
		ON CONFLICT (execution_id, step_index) DO UPDATE SET
			step_name = excluded.step_name,
			action = excluded.action,
			description = excluded.description,
			status = excluded.status,
			started_at = excluded.started_at,
			completed_at = excluded.completed_at,
			duration_ms = excluded.duration_ms,
			input = excluded.input,
			output = excluded.output,
			error = excluded.error,
			error_stack = excluded.error_stack,
			child_execution_id = excluded.child_execution_id,
			retry_attempt = excluded.retry_attempt,
			skip_reason = excluded.skip_reason`,
		executionID,
		step.StepIndex,
		step.StepName,
		step.Action,
		step.Description,
		string(step.Status),
		formatTime(step.StartedAt),
		formatTimePtr(step.CompletedAt),
		step.Duration,
		inputJSON,
		outputJSON,
		step.Error,
		step.ErrorStack,
		step.ChildExecutionID,
		step.RetryAttempt,
		step.SkipReason,
	)
	if err != nil {
		return fmt.Errorf("saving step result: %w", err)
	}
	return nil
}

// SaveContext overwrites the execution's variable map.
func (s *ExecutionStore) SaveContext(ctx context.Context, executionID string, vars map[string]any) error {
	varsJSON, err := encodeJSON(vars)
	if err != nil {
		return fmt.Errorf("encoding context variables: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO contexts (execution_id, variables, updated_at)
		VALUES (?, jsonb(?), strftime('%Y-%m-%dT%H:%M:%fZ', 'now'))
		ON CONFLICT (execution_id) DO UPDATE SET
			variables = excluded.variables,
			updated_at = excluded.updated_at`,
		executionID, varsJSON,
	)
	if err != nil {
		return fmt.Errorf("saving context: %w", err)
	}
	return nil
}

// GetContext reads the execution's variable map.
func (s *ExecutionStore) GetContext(ctx context.Context, executionID string) (map[string]any, error) {
	var blob []byte
	err := s.db.QueryRowContext(ctx,
		`SELECT json(variables) FROM contexts WHERE execution_id = ?`,
		executionID,
	).Scan(&blob)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("context for execution %s: %w", executionID, storage.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("querying context: %w", err)
	}

	var vars map[string]any
	if err := json.Unmarshal(blob, &vars); err != nil {
		return nil, fmt.Errorf("decoding context variables: %w", err)
	}
	return vars, nil
}

// QueryExecutions returns executions matching the filter, newest first.
func (s *ExecutionStore) QueryExecutions(ctx context.Context, filter storage.ExecutionFilter) ([]*engine.Execution, error) {
	query := `SELECT ` + executionColumns + ` FROM executions WHERE 1=1`
	var args []any

	if filter.WorkflowName != "" {
		query += ` AND workflow_name = ?`
		args = append(args, filter.WorkflowName)
	}
	if filter.Status != "" {
		query += ` AND status = ?`
		args = append(args, string(filter.Status))
	}
	if filter.Since != nil {
		query += ` AND started_at >= ?`
		args = append(args, formatTime(*filter.Since))
	}
	if filter.Until != nil {
		query += ` AND started_at <= ?`
		args = append(args, formatTime(*filter.Until))
	}
	if filter.ParentID != "" {
		query += ` AND parent_execution_id = ?`
		args = append(args, filter.ParentID)
	}
	if filter.RootOnly {
		query += ` AND parent_execution_id IS NULL`
	}

	limit := filter.Limit
	if limit <= 0 {
		limit = storage.DefaultQueryLimit
	}
	query += ` ORDER BY started_at DESC LIMIT ?`
	args = append(args, limit)

	return s.queryExecutionRows(ctx, query, args...)
}

// GetChildExecutions returns the direct children of an execution,
// ascending by start time.
func (s *ExecutionStore) GetChildExecutions(ctx context.Context, parentID string) ([]*engine.Execution, error) {
	return s.queryExecutionRows(ctx,
		`SELECT `+executionColumns+`
		FROM executions WHERE parent_execution_id = ?
		ORDER BY started_at ASC`,
		parentID,
	)
}

func (s *ExecutionStore) queryExecutionRows(ctx context.Context, query string, args ...any) ([]*engine.Execution, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying executions: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var executions []*engine.Execution
	for rows.Next() {
		execution, scanErr := scanExecutionFields(rows)
		if scanErr != nil {
			return nil, scanErr
		}
		executions = append(executions, execution)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating execution rows: %w", err)
	}
	return executions, nil
}

// GetStepResults returns the persisted step rows in step-index order.
func (s *ExecutionStore) GetStepResults(ctx context.Context, executionID string) ([]engine.StepResult, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+stepColumns+`
		FROM steps WHERE execution_id = ?
		ORDER BY step_index ASC`,
		executionID,
	)
	if err != nil {
		return nil, fmt.Errorf("querying step results: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var steps []engine.StepResult
	for rows.Next() {
		step, scanErr := scanStepFields(rows)
		if scanErr != nil {
			return nil, scanErr
		}
		steps = append(steps, step)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating step rows: %w", err)
	}
	return steps, nil
}

// GetExecutionTree assembles the execution, its steps, and its children
// depth-first. Every query in a level completes before recursion starts,
// which keeps us within the single-connection pool.
func (s *ExecutionStore) GetExecutionTree(ctx context.Context, id string) (*engine.ExecutionTree, error) {
	execution, err := s.GetExecution(ctx, id)
	if err != nil {
		return nil, err
	}
	steps, err := s.GetStepResults(ctx, id)
	if err != nil {
		return nil, err
	}
	children, err := s.GetChildExecutions(ctx, id)
	if err != nil {
		return nil, err
	}

	tree := &engine.ExecutionTree{Execution: execution, Steps: steps}
	for _, child := range children {
		childTree, childErr := s.GetExecutionTree(ctx, child.ID)
		if childErr != nil {
			return nil, childErr
		}
		tree.Children = append(tree.Children, childTree)
	}
	return tree, nil
}

// Cleanup bulk-deletes executions started before the given instant.
// Foreign keys cascade to steps, contexts, and child executions.
func (s *ExecutionStore) Cleanup(ctx context.Context, before time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM executions WHERE started_at < ?`,
		formatTime(before),
	)
	if err != nil {
		return 0, fmt.Errorf("deleting executions: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("checking rows affected: %w", err)
	}
	return affected, nil
}

// scanner is an interface satisfied by both *sql.Row and *sql.Rows.
type scanner interface{ Scan(dest ...any) error }

// scanExecutionFields scans one execution row.
func scanExecutionFields(sc scanner) (*engine.Execution, error) {
	var (
		id              string
		workflowName    string
		status          string
		startedAtStr    string
		completedAtStr  sql.NullString
		durationMS      sql.NullInt64
		currentStep     sql.NullInt64
		totalSteps      sql.NullInt64
		errText         string
		errStack        string
		parentID        sql.NullString
		parentStepIndex sql.NullInt64
		depth           int
		triggerType     string
		triggerSource   string
		metadataBlob    []byte
	)

	err := sc.Scan(
		&id, &workflowName, &status, &startedAtStr, &completedAtStr,
		&durationMS, &currentStep, &totalSteps, &errText, &errStack,
		&parentID, &parentStepIndex, &depth,
		&triggerType, &triggerSource, &metadataBlob,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("scanning execution row: %w", err)
	}

	startedAt, err := parseTime(startedAtStr)
	if err != nil {
		return nil, fmt.Errorf("parsing started_at: %w", err)
	}

	execution := &engine.Execution{
		ID:           id,
		WorkflowName: workflowName,
		Status:       engine.Status(status),
		StartedAt:    startedAt,
		Error:        errText,
		ErrorStack:   errStack,
		Depth:        depth,
		Trigger: engine.Trigger{
			Type:   engine.TriggerType(triggerType),
			Source: triggerSource,
		},
	}

	if completedAtStr.Valid {
		completedAt, parseErr := parseTime(completedAtStr.String)
		if parseErr != nil {
			return nil, fmt.Errorf("parsing completed_at: %w", parseErr)
		}
		execution.CompletedAt = &completedAt
	}
	if durationMS.Valid {
		execution.Duration = &durationMS.Int64
	}
	if currentStep.Valid {
		step := int(currentStep.Int64)
		execution.CurrentStep = &step
	}
	if totalSteps.Valid {
		total := int(totalSteps.Int64)
		execution.TotalSteps = &total
	}
	if parentID.Valid {
		execution.ParentExecutionID = parentID.String
	}
	if parentStepIndex.Valid {
		idx := int(parentStepIndex.Int64)
		execution.ParentStepIndex = &idx
	}
	if len(metadataBlob) > 0 && string(metadataBlob) != "null" {
		if err := json.Unmarshal(metadataBlob, &execution.Metadata); err != nil {
			return nil, fmt.Errorf("decoding metadata: %w", err)
		}
	}

	return execution, nil
}

// scanStepFields scans one step row.
func scanStepFields(sc scanner) (engine.StepResult, error) {
	var (
		stepIndex      int
		stepName       string
		action         string
		description    string
		status         string
		startedAtStr   string
		completedAtStr sql.NullString
		durationMS     sql.NullInt64
		inputBlob      []byte
		outputBlob     []byte
		errText        string
		errStack       string
		childID        string
		retryAttempt   int
		skipReason     string
	)

	err := sc.Scan(
		&stepIndex, &stepName, &action, &description, &status,
		&startedAtStr, &completedAtStr, &durationMS, &inputBlob, &outputBlob,
		&errText, &errStack, &childID, &retryAttempt, &skipReason,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return engine.StepResult{}, storage.ErrNotFound
		}
		return engine.StepResult{}, fmt.Errorf("scanning step row: %w", err)
	}

	startedAt, err := parseTime(startedAtStr)
	if err != nil {
		return engine.StepResult{}, fmt.Errorf("parsing started_at: %w", err)
	}

	step := engine.StepResult{
		StepIndex:        stepIndex,
		StepName:         stepName,
		Action:           action,
		Description:      description,
		Status:           engine.StepStatus(status),
		StartedAt:        startedAt,
		Error:            errText,
		ErrorStack:       errStack,
		ChildExecutionID: childID,
		RetryAttempt:     retryAttempt,
		SkipReason:       skipReason,
	}

	if completedAtStr.Valid {
		completedAt, parseErr := parseTime(completedAtStr.String)
		if parseErr != nil {
			return engine.StepResult{}, fmt.Errorf("parsing completed_at: %w", parseErr)
		}
		step.CompletedAt = &completedAt
	}
	if durationMS.Valid {
		step.Duration = &durationMS.Int64
	}
	if len(inputBlob) > 0 && string(inputBlob) != "null" {
		if err := json.Unmarshal(inputBlob, &step.Input); err != nil {
			return engine.StepResult{}, fmt.Errorf("decoding step input: %w", err)
		}
	}
	if len(outputBlob) > 0 && string(outputBlob) != "null" {
		if err := json.Unmarshal(outputBlob, &step.Output); err != nil {
			return engine.StepResult{}, fmt.Errorf("decoding step output: %w", err)
		}
	}

	return step, nil
}

// encodeJSON marshals a value for the SQLite jsonb() function.
func encodeJSON(v any) (string, error) {
	if v == nil {
		return "null", nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("marshaling JSON: %w", err)
	}
	return string(data), nil
}

// timeLayout is the canonical column format. Fixed-width milliseconds
// keep timestamp strings lexicographically ordered, which the range
// comparisons on started_at depend on. It matches the strftime default
// used by the schema.
const timeLayout = "2006-01-02T15:04:05.000Z07:00"

// formatTime renders a timestamp in the canonical column format.
func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

// formatTimePtr renders an optional timestamp, mapping nil to SQL NULL.
func formatTimePtr(t *time.Time) any {
	if t == nil {
		return nil
	}
	return formatTime(*t)
}

func parseTime(s string) (time.Time, error) {
	return time.Parse(time.RFC3339Nano, s)
}

// nullableString maps the empty string to SQL NULL.
func nullableString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

// isUniqueViolation checks for a SQLite UNIQUE constraint violation.
func isUniqueViolation(err error) bool {
	var sqliteErr *sqlite3.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.Code() == sqlite3lib.SQLITE_CONSTRAINT_UNIQUE
	}
	return false
}
