// SPDX-FileCopyrightText: Copyright 2026 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/stacklok/flowhive/pkg/engine"
)

// MemoryStore is an in-process ExecutionStore. It backs tests and
// ephemeral runs; every value crosses a JSON round trip on the way in and
// out so callers observe the same type normalization as the SQLite store.
type MemoryStore struct {
	mu         sync.RWMutex
	executions map[string]*engine.Execution
	steps      map[string]map[int]*engine.StepResult
	contexts   map[string]map[string]any
}

// NewMemoryStore returns an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		executions: make(map[string]*engine.Execution),
		steps:      make(map[string]map[int]*engine.StepResult),
		contexts:   make(map[string]map[string]any),
	}
}

var _ ExecutionStore = (*MemoryStore)(nil)

// SaveExecution implements ExecutionStore.
func (m *MemoryStore) SaveExecution(_ context.Context, execution *engine.Execution) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.executions[execution.ID]; exists {
		return fmt.Errorf("execution %s: %w", execution.ID, ErrAlreadyExists)
	}

	clone, err := cloneJSON(execution)
	if err != nil {
		return err
	}
	m.executions[execution.ID] = clone
	return nil
}

// GetExecution implements ExecutionStore.
func (m *MemoryStore) GetExecution(_ context.Context, id string) (*engine.Execution, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	execution, ok := m.executions[id]
	if !ok {
		return nil, fmt.Errorf("execution %s: %w", id, ErrNotFound)
	}
	return cloneJSON(execution)
}

// UpdateExecution implements ExecutionStore.
func (m *MemoryStore) UpdateExecution(_ context.Context, id string, update ExecutionUpdate) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	execution, ok := m.executions[id]
	if !ok {
		return fmt.Errorf("execution %s: %w", id, ErrNotFound)
	}

	if update.Status != nil {
		execution.Status = *update.Status
	}
	if update.CurrentStep != nil {
		step := *update.CurrentStep
		execution.CurrentStep = &step
	}
	if update.CompletedAt != nil {
		at := *update.CompletedAt
		execution.CompletedAt = &at
	}
	if update.Duration != nil {
		d := *update.Duration
		execution.Duration = &d
	}
	if update.Error != nil {
		execution.Error = *update.Error
	}
	if update.ErrorStack != nil {
		execution.ErrorStack = *update.ErrorStack
	}
	return nil
}

// SaveStepResult implements ExecutionStore. Insert-or-replace keyed by
// (execution_id, step_index).
func (m *MemoryStore) SaveStepResult(_ context.Context, executionID string, step *engine.StepResult) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	clone, err := cloneJSON(step)
	if err != nil {
		return err
	}
	if m.steps[executionID] == nil {
		m.steps[executionID] = make(map[int]*engine.StepResult)
	}
	m.steps[executionID][step.StepIndex] = clone
	return nil
}

// SaveContext implements ExecutionStore.
func (m *MemoryStore) SaveContext(_ context.Context, executionID string, vars map[string]any) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	clone, err := cloneJSON(vars)
	if err != nil {
		return err
	}
	m.contexts[executionID] = clone
	return nil
}

// GetContext implements ExecutionStore.
func (m *MemoryStore) GetContext(_ context.Context, executionID string) (map[string]any, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	vars, ok := m.contexts[executionID]
	if !ok {
		return nil, fmt.Errorf("context for execution %s: %w", executionID, ErrNotFound)
	}
	return cloneJSON(vars)
}

// QueryExecutions implements ExecutionStore.
func (m *MemoryStore) QueryExecutions(_ context.Context, filter ExecutionFilter) ([]*engine.Execution, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var matched []*engine.Execution
	for _, execution := range m.executions {
		if !matches(execution, filter) {
			continue
		}
		clone, err := cloneJSON(execution)
		if err != nil {
			return nil, err
		}
		matched = append(matched, clone)
	}

	sort.Slice(matched, func(i, j int) bool {
		return matched[i].StartedAt.After(matched[j].StartedAt)
	})

	limit := filter.Limit
	if limit <= 0 {
		limit = DefaultQueryLimit
	}
	if len(matched) > limit {
		matched = matched[:limit]
	}
	return matched, nil
}

// GetChildExecutions implements ExecutionStore.
func (m *MemoryStore) GetChildExecutions(_ context.Context, parentID string) ([]*engine.Execution, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var children []*engine.Execution
	for _, execution := range m.executions {
		if execution.ParentExecutionID != parentID {
			continue
		}
		clone, err := cloneJSON(execution)
		if err != nil {
			return nil, err
		}
		children = append(children, clone)
	}
	sort.Slice(children, func(i, j int) bool {
		return children[i].StartedAt.Before(children[j].StartedAt)
	})
	return children, nil
}

// GetStepResults implements ExecutionStore.
func (m *MemoryStore) GetStepResults(_ context.Context, executionID string) ([]engine.StepResult, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	rows := m.steps[executionID]
	indexes := make([]int, 0, len(rows))
	for i := range rows {
		indexes = append(indexes, i)
	}
	sort.Ints(indexes)

	results := make([]engine.StepResult, 0, len(indexes))
	for _, i := range indexes {
		clone, err := cloneJSON(rows[i])
		if err != nil {
			return nil, err
		}
		results = append(results, *clone)
	}
	return results, nil
}

// GetExecutionTree implements ExecutionStore.
func (m *MemoryStore) GetExecutionTree(ctx context.Context, id string) (*engine.ExecutionTree, error) {
	execution, err := m.GetExecution(ctx, id)
	if err != nil {
		return nil, err
	}
	steps, err := m.GetStepResults(ctx, id)
	if err != nil {
		return nil, err
	}

	children, err := m.GetChildExecutions(ctx, id)
	if err != nil {
		return nil, err
	}

	tree := &engine.ExecutionTree{Execution: execution, Steps: steps}
	for _, child := range children {
		childTree, err := m.GetExecutionTree(ctx, child.ID)
		if err != nil {
			return nil, err
		}
		tree.Children = append(tree.Children, childTree)
	}
	return tree, nil
}

// Cleanup implements ExecutionStore.
func (m *MemoryStore) Cleanup(_ context.Context, before time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var removed int64
	for id, execution := range m.executions {
		if !execution.StartedAt.Before(before) {
			continue
		}
		delete(m.executions, id)
		delete(m.steps, id)
		delete(m.contexts, id)
		removed++
	}
	return removed, nil
}

// Close implements ExecutionStore.
func (*MemoryStore) Close() error { return nil }

func matches(execution *engine.Execution, filter ExecutionFilter) bool {
	if filter.WorkflowName != "" && execution.WorkflowName != filter.WorkflowName {
		return false
	}
	if filter.Status != "" && execution.Status != filter.Status {
		return false
	}
	if filter.Since != nil && execution.StartedAt.Before(*filter.Since) {
		return false
	}
	if filter.Until != nil && execution.StartedAt.After(*filter.Until) {
		return false
	}
	if filter.ParentID != "" && execution.ParentExecutionID != filter.ParentID {
		return false
	}
	if filter.RootOnly && execution.ParentExecutionID != "" {
		return false
	}
	return true
}

// cloneJSON deep-copies a value through a JSON round trip.
func cloneJSON[T any](v T) (T, error) {
	var out T
	data, err := json.Marshal(v)
	if err != nil {
		return out, fmt.Errorf("encoding record: %w", err)
	}
	if err := json.Unmarshal(data, &out); err != nil {
		return out, fmt.Errorf("decoding record: %w", err)
	}
	return out, nil
}
