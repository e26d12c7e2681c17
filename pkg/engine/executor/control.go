// SPDX-FileCopyrightText: Copyright 2026 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package executor

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/stacklok/flowhive/pkg/engine"
	"github.com/stacklok/flowhive/pkg/storage"
)

// runControl is the cancellation and pause surface for one in-flight
// execution.
type runControl struct {
	cancel context.CancelFunc
	paused atomic.Bool
}

func (e *Executor) track(executionID string, ctrl *runControl) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.running[executionID] = ctrl
}

func (e *Executor) untrack(executionID string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.running, executionID)
}

func (e *Executor) control(executionID string) *runControl {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.running[executionID]
}

// Cancel marks the execution cancelled in storage and signals the running
// step loop, which aborts at its next boundary. Cancelling an execution
// that is not running only updates storage; a terminal execution is an
// error.
func (e *Executor) Cancel(ctx context.Context, executionID string) error {
	execution, err := e.store.GetExecution(ctx, executionID)
	if err != nil {
		return err
	}
	if execution.Status.Terminal() {
		return fmt.Errorf("%w: execution %s is already %s",
			engine.ErrValidation, executionID, execution.Status)
	}

	if ctrl := e.control(executionID); ctrl != nil {
		ctrl.cancel()
		return nil
	}

	// Not running in this process; finalize the row directly.
	cancelled := engine.StatusCancelled
	completedAt := time.Now().UTC()
	duration := completedAt.Sub(execution.StartedAt).Milliseconds()
	msg := engine.ErrCancelled.Error()
	return e.store.UpdateExecution(ctx, executionID, storage.ExecutionUpdate{
		Status:      &cancelled,
		CompletedAt: &completedAt,
		Duration:    &duration,
		Error:       &msg,
	})
}

// Pause asks the running step loop to stop at its next boundary. The
// in-flight step finishes first.
func (e *Executor) Pause(executionID string) error {
	ctrl := e.control(executionID)
	if ctrl == nil {
		return fmt.Errorf("%w: no running execution %s", engine.ErrNotFound, executionID)
	}
	ctrl.paused.Store(true)
	return nil
}

// Resume continues a paused execution from its recorded step boundary,
// restoring the variable map from the persisted context and resolving
// the workflow through the registry.
func (e *Executor) Resume(ctx context.Context, executionID string) (*engine.Result, error) {
	execution, err := e.store.GetExecution(ctx, executionID)
	if err != nil {
		return nil, err
	}
	if execution.Status != engine.StatusPaused {
		return nil, fmt.Errorf("%w: execution %s is %s, only paused executions can be resumed",
			engine.ErrValidation, executionID, execution.Status)
	}
	if e.registry == nil {
		return nil, fmt.Errorf("%w: no registry configured", engine.ErrValidation)
	}

	wf, err := e.registry.Get(ctx, execution.WorkflowName)
	if err != nil {
		return nil, fmt.Errorf("%w: workflow %q for execution %s",
			engine.ErrNotFound, execution.WorkflowName, executionID)
	}

	vars, err := e.store.GetContext(ctx, executionID)
	if err != nil {
		return nil, storageErr("load paused context", err)
	}

	resumeFrom := 0
	if execution.CurrentStep != nil {
		resumeFrom = *execution.CurrentStep
	}

	trigger := execution.Trigger
	execCtx := engine.ExecutionContext{
		Variables:         vars,
		ParentExecutionID: execution.ParentExecutionID,
		ParentStepIndex:   execution.ParentStepIndex,
		Depth:             execution.Depth,
		Trigger:           &trigger,
		ResumeFromStep:    resumeFrom,
		ExecutionID:       executionID,
	}
	return e.Execute(ctx, wf, engine.RunConfig{}, execCtx)
}
