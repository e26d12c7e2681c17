// SPDX-FileCopyrightText: Copyright 2026 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package engine defines the shared domain types for workflow execution.
// The step interpreter lives in engine/executor; this package holds the
// records it produces and the errors it surfaces, so that storage, the
// progress bus, the inspector, and the CLI all speak the same vocabulary.
package engine

import (
	"time"
)

// Status represents the lifecycle state of an execution.
type Status string

// Execution lifecycle states.
const (
	StatusPending   Status = "pending"
	StatusRunning   Status = "running"
	StatusPaused    Status = "paused"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
	StatusCancelled Status = "cancelled"
)

// Terminal reports whether an execution in this state must not be mutated
// again, except for retention cleanup.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed || s == StatusCancelled
}

// StepStatus represents the lifecycle state of a single step attempt.
type StepStatus string

// Step lifecycle states.
const (
	StepPending   StepStatus = "pending"
	StepRunning   StepStatus = "running"
	StepCompleted StepStatus = "completed"
	StepFailed    StepStatus = "failed"
	StepSkipped   StepStatus = "skipped"
)

// TriggerType identifies what started an execution.
type TriggerType string

// Trigger origins.
const (
	TriggerCLI      TriggerType = "cli"
	TriggerWorkflow TriggerType = "workflow"
	TriggerAPI      TriggerType = "api"
)

// Trigger records what started an execution and, for sub-workflows, the
// name of the parent workflow that spawned it.
type Trigger struct {
	Type   TriggerType `json:"type"`
	Source string      `json:"source,omitempty"`
}

// Execution is one invocation of a workflow with a specific config.
// One row is persisted per invocation.
type Execution struct {
	// ID is a UUID assigned when the execution record is created.
	ID string `json:"id"`

	// WorkflowName is the name of the workflow document being executed.
	WorkflowName string `json:"workflow_name"`

	// Status is the current lifecycle state.
	Status Status `json:"status"`

	StartedAt   time.Time  `json:"started_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`

	// Duration is the wall-clock run time in milliseconds, set on termination.
	Duration *int64 `json:"duration,omitempty"`

	// CurrentStep is the zero-based index the executor last advanced to.
	// It increases monotonically within one attempt.
	CurrentStep *int `json:"current_step,omitempty"`

	// TotalSteps is the number of steps in the workflow document.
	TotalSteps *int `json:"total_steps,omitempty"`

	Error      string `json:"error,omitempty"`
	ErrorStack string `json:"error_stack,omitempty"`

	// ParentExecutionID links a sub-workflow execution to the execution
	// whose workflow.run step spawned it. Empty for root executions.
	ParentExecutionID string `json:"parent_execution_id,omitempty"`

	// ParentStepIndex is the index of the parent's workflow.run step.
	ParentStepIndex *int `json:"parent_step_index,omitempty"`

	// Depth is 0 at the root and parent.Depth+1 for each nesting level.
	Depth int `json:"depth"`

	Trigger Trigger `json:"trigger"`

	// Metadata carries arbitrary JSON, including the original config values.
	Metadata map[string]any `json:"metadata,omitempty"`
}

// StepResult is the persisted outcome of one step. The pair
// (execution_id, step_index) is unique after the final attempt;
// in-flight retries overwrite the same row.
type StepResult struct {
	StepIndex   int        `json:"step_index"`
	StepName    string     `json:"step_name"`
	Action      string     `json:"action"`
	Description string     `json:"description,omitempty"`
	Status      StepStatus `json:"status"`

	StartedAt   time.Time  `json:"started_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
	Duration    *int64     `json:"duration,omitempty"`

	// Input is the step's params after template interpolation.
	Input map[string]any `json:"input,omitempty"`

	// Output is the step's result value as produced by its handler.
	Output any `json:"output,omitempty"`

	Error      string `json:"error,omitempty"`
	ErrorStack string `json:"error_stack,omitempty"`

	// ChildExecutionID is set when the action was workflow.run.
	ChildExecutionID string `json:"child_execution_id,omitempty"`

	// RetryAttempt is the zero-based index of the last attempt made.
	RetryAttempt int `json:"retry_attempt"`

	// SkipReason holds the raw condition string when the step was skipped.
	SkipReason string `json:"skip_reason,omitempty"`
}

// Result is what Execute returns to its caller. Context always carries the
// full variable map at termination, whether the run completed or failed.
type Result struct {
	ExecutionID string         `json:"execution_id"`
	Status      Status         `json:"status"`
	Steps       []StepResult   `json:"steps"`
	Duration    int64          `json:"duration"`
	Context     map[string]any `json:"context"`
}

// ExecutionTree is the recursive parent/child assembly returned by
// storage.GetExecutionTree.
type ExecutionTree struct {
	Execution *Execution       `json:"execution"`
	Steps     []StepResult     `json:"steps"`
	Children  []*ExecutionTree `json:"children"`
}

// RunConfig carries the caller-supplied inputs for one execution.
type RunConfig struct {
	// Values overlays the workflow's config_schema defaults.
	Values map[string]any

	// DryRun short-circuits every step: handlers are not invoked and each
	// step records output {"dry_run": true}.
	DryRun bool
}

// ExecutionContext threads recursion state through sub-workflow execution.
// A zero value is a root execution triggered by the CLI.
type ExecutionContext struct {
	// Variables overlays config values when composing; for a child
	// execution it contains exactly the interpolated vars from the
	// parent's workflow.run step.
	Variables map[string]any

	ParentExecutionID string
	ParentStepIndex   *int
	Depth             int

	// CallStack is the ordered list of ancestor workflow names, used to
	// detect circular composition.
	CallStack []string

	Trigger *Trigger

	// ResumeFromStep makes the step loop start at the given index instead
	// of zero. Used by Resume.
	ResumeFromStep int

	// ExecutionID, when set, resumes the existing execution record instead
	// of creating a new one. Used by Resume.
	ExecutionID string
}
