// SPDX-FileCopyrightText: Copyright 2026 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package storage provides the durable persistence interfaces for
// executions, step results, and per-execution variable context.
package storage

import (
	"context"
	"time"

	"github.com/stacklok/flowhive/pkg/engine"
)

//go:generate mockgen -destination=mocks/mock_execution_store.go -package=mocks -source=interfaces.go ExecutionStore

// DefaultQueryLimit bounds QueryExecutions results when the filter does
// not set an explicit limit.
const DefaultQueryLimit = 100

// ExecutionStore persists executions, their step results, and their
// variable context. Every operation is atomic at its call granularity:
// concurrent readers may observe state before or after any single write
// but never a half-written row.
type ExecutionStore interface {
	// SaveExecution inserts a new execution record.
	SaveExecution(ctx context.Context, execution *engine.Execution) error

	// GetExecution retrieves an execution by id. Returns ErrNotFound when
	// no such execution exists.
	GetExecution(ctx context.Context, id string) (*engine.Execution, error)

	// UpdateExecution applies a partial patch; only supplied fields change.
	UpdateExecution(ctx context.Context, id string, update ExecutionUpdate) error

	// SaveStepResult inserts or replaces the step row keyed by
	// (execution_id, step_index). Replays with the same key are idempotent.
	SaveStepResult(ctx context.Context, executionID string, step *engine.StepResult) error

	// SaveContext overwrites the execution's variable map.
	SaveContext(ctx context.Context, executionID string, vars map[string]any) error

	// GetContext reads the execution's variable map. Returns ErrNotFound
	// when no context row exists.
	GetContext(ctx context.Context, executionID string) (map[string]any, error)

	// QueryExecutions returns executions matching the filter, ordered by
	// started_at descending and bounded by the filter's limit.
	QueryExecutions(ctx context.Context, filter ExecutionFilter) ([]*engine.Execution, error)

	// GetChildExecutions returns the direct children of an execution,
	// ascending by start time.
	GetChildExecutions(ctx context.Context, parentID string) ([]*engine.Execution, error)

	// GetExecutionTree assembles the execution, its steps, and its
	// children depth-first.
	GetExecutionTree(ctx context.Context, id string) (*engine.ExecutionTree, error)

	// GetStepResults returns the persisted step rows for an execution in
	// step-index order.
	GetStepResults(ctx context.Context, executionID string) ([]engine.StepResult, error)

	// Cleanup bulk-deletes executions started before the given instant,
	// cascading to their steps and contexts. Returns the number of
	// executions removed.
	Cleanup(ctx context.Context, before time.Time) (int64, error)

	// Close releases any resources held by the store.
	Close() error
}

// ExecutionUpdate is a partial patch for an execution row. Nil fields are
// left untouched.
type ExecutionUpdate struct {
	Status      *engine.Status
	CurrentStep *int
	CompletedAt *time.Time
	Duration    *int64
	Error       *string
	ErrorStack  *string
}

// ExecutionFilter configures QueryExecutions.
type ExecutionFilter struct {
	// WorkflowName filters by workflow name. Empty matches all.
	WorkflowName string

	// Status filters by execution status. Empty matches all.
	Status engine.Status

	// Since and Until bound started_at. Nil means unbounded.
	Since *time.Time
	Until *time.Time

	// ParentID selects children of a specific execution.
	ParentID string

	// RootOnly selects only executions with no parent.
	RootOnly bool

	// Limit bounds the result size. Zero applies the store default.
	Limit int
}
