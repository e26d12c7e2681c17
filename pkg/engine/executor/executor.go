// SPDX-FileCopyrightText: Copyright 2026 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package executor implements the workflow step interpreter. It walks a
// workflow's steps sequentially, interpolating params, gating on
// conditions, retrying per step policy, and recursing into sub-workflows,
// while persisting every record through the execution store and emitting
// progress events.
package executor

import (
	"context"
	"fmt"
	"io"
	"os"
	"runtime/debug"
	"strings"
	"sync"
	"time"

	"dario.cat/mergo"
	"github.com/google/uuid"

	"github.com/stacklok/flowhive/pkg/ai"
	"github.com/stacklok/flowhive/pkg/engine"
	"github.com/stacklok/flowhive/pkg/engine/events"
	"github.com/stacklok/flowhive/pkg/engine/template"
	"github.com/stacklok/flowhive/pkg/logger"
	"github.com/stacklok/flowhive/pkg/prompt"
	"github.com/stacklok/flowhive/pkg/registry"
	"github.com/stacklok/flowhive/pkg/storage"
	"github.com/stacklok/flowhive/pkg/tools"
	"github.com/stacklok/flowhive/pkg/workflow"
)

// Options configures an Executor. Store is required; every other
// collaborator is optional and the corresponding actions fail cleanly
// when it is absent.
type Options struct {
	Store    storage.ExecutionStore
	Registry registry.Registry
	Tools    tools.Client
	Provider ai.Provider
	Prompter prompt.Handler
	Bus      *events.Bus

	// LogOut and LogErr receive log.* step output. Default to stdout and
	// stderr.
	LogOut io.Writer
	LogErr io.Writer
}

// Executor runs workflows. Safe for concurrent use; each Execute call
// runs one execution sequentially on the calling goroutine.
type Executor struct {
	store    storage.ExecutionStore
	registry registry.Registry
	tools    tools.Client
	provider ai.Provider
	prompter prompt.Handler
	bus      *events.Bus
	tmpl     template.Engine
	logOut   io.Writer
	logErr   io.Writer

	mu      sync.Mutex
	running map[string]*runControl
}

// New creates an Executor from the given options.
func New(opts Options) *Executor {
	logOut := opts.LogOut
	if logOut == nil {
		logOut = os.Stdout
	}
	logErr := opts.LogErr
	if logErr == nil {
		logErr = os.Stderr
	}
	return &Executor{
		store:    opts.Store,
		registry: opts.Registry,
		tools:    opts.Tools,
		provider: opts.Provider,
		prompter: opts.Prompter,
		bus:      opts.Bus,
		tmpl:     template.New(),
		logOut:   logOut,
		logErr:   logErr,
		running:  make(map[string]*runControl),
	}
}

// runState carries the per-execution state threaded through the step
// loop and the action dispatcher.
type runState struct {
	wf      *workflow.Workflow
	cfg     engine.RunConfig
	execCtx engine.ExecutionContext
	execID  string
	vars    map[string]any
	steps   []engine.StepResult
	started time.Time

	// dbctx survives cancellation so terminal bookkeeping writes still
	// land after Cancel fires the execution context.
	dbctx context.Context
}

// Execute runs one workflow invocation to termination (or pause). The
// returned Result always carries the full variable map; on failure or
// cancellation it is returned alongside the terminal error.
func (e *Executor) Execute(
	ctx context.Context,
	wf *workflow.Workflow,
	config engine.RunConfig,
	execCtx engine.ExecutionContext,
) (*engine.Result, error) {
	if violations := workflow.Validate(wf); len(violations) > 0 {
		return nil, fmt.Errorf("%w: %s", engine.ErrValidation, strings.Join(violations, "; "))
	}

	vars, err := buildVariables(wf, config, execCtx)
	if err != nil {
		return nil, err
	}
	if missing := wf.MissingRequired(vars); len(missing) > 0 {
		return nil, fmt.Errorf("%w: missing required config values: %s",
			engine.ErrValidation, strings.Join(missing, ", "))
	}

	st := &runState{
		wf:      wf,
		cfg:     config,
		execCtx: execCtx,
		vars:    vars,
		started: time.Now().UTC(),
		dbctx:   context.WithoutCancel(ctx),
	}

	if err := e.createRecord(st.dbctx, st); err != nil {
		return nil, err
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	ctrl := &runControl{cancel: cancel}
	e.track(st.execID, ctrl)
	defer e.untrack(st.execID)

	e.emit(st, events.ExecutionStart, nil)

	if err := e.connectRequired(ctx, st); err != nil {
		return e.finish(st, engine.StatusFailed, err)
	}

	return e.runSteps(ctx, st, ctrl)
}

func (e *Executor) runSteps(ctx context.Context, st *runState, ctrl *runControl) (*engine.Result, error) {
	var deadline time.Time
	if st.wf.Timeout > 0 {
		deadline = st.started.Add(time.Duration(st.wf.Timeout) * time.Millisecond)
	}

	for i := st.execCtx.ResumeFromStep; i < len(st.wf.Steps); i++ {
		if ctx.Err() != nil {
			return e.finish(st, engine.StatusCancelled,
				fmt.Errorf("%w: cancelled before step %d", engine.ErrCancelled, i))
		}
		if ctrl.paused.Load() {
			return e.pause(st, i)
		}

		step := &st.wf.Steps[i]
		if err := e.store.UpdateExecution(st.dbctx, st.execID, storage.ExecutionUpdate{CurrentStep: &i}); err != nil {
			return e.finish(st, engine.StatusFailed, storageErr("update current step", err))
		}

		e.emit(st, events.StepStart, &events.StepData{
			StepIndex:   i,
			StepName:    step.Name(i),
			Action:      step.Action,
			Description: step.Description,
		})

		failErr := e.runStep(ctx, st, i, step)
		if failErr != nil {
			if ctx.Err() != nil {
				return e.finish(st, engine.StatusCancelled,
					fmt.Errorf("%w: cancelled during step %d", engine.ErrCancelled, i))
			}
			return e.finish(st, engine.StatusFailed,
				fmt.Errorf("step %d (%s): %w", i, step.Name(i), failErr))
		}

		if !deadline.IsZero() && time.Now().After(deadline) {
			return e.finish(st, engine.StatusFailed,
				fmt.Errorf("%w: exceeded %dms", engine.ErrTimeout, st.wf.Timeout))
		}
	}

	return e.finish(st, engine.StatusCompleted, nil)
}

// runStep executes one step to a terminal step row. A non-nil return
// aborts the workflow.
func (e *Executor) runStep(ctx context.Context, st *runState, i int, step *workflow.Step) error {
	stepStart := time.Now().UTC()
	row := engine.StepResult{
		StepIndex:   i,
		StepName:    step.Name(i),
		Action:      step.Action,
		Description: step.Description,
		Status:      engine.StepRunning,
		StartedAt:   stepStart,
	}
	if err := e.saveRunningStep(st, &row); err != nil {
		return err
	}

	if step.If != "" {
		ok, err := e.tmpl.Evaluate(step.If, st.vars)
		if err != nil {
			return e.failStep(st, &row, stepStart, err)
		}
		if !ok {
			row.Status = engine.StepSkipped
			row.SkipReason = step.If
			finalizeRow(&row, stepStart)
			if err := e.saveStep(st, &row); err != nil {
				return err
			}
			e.emit(st, events.StepSkipped, &events.StepData{
				StepIndex: i, StepName: row.StepName, Action: row.Action,
			})
			return nil
		}
	}

	input, err := e.interpolateParams(step.Params, st.vars)
	if err != nil {
		return e.failStep(st, &row, stepStart, err)
	}
	row.Input = input

	if st.cfg.DryRun {
		return e.completeStep(st, step, &row, stepStart, map[string]any{"dry_run": true})
	}

	output, childID, attempts, err := e.dispatchWithRetry(ctx, st, i, step, input, &row)
	row.RetryAttempt = attempts
	row.ChildExecutionID = childID
	if err != nil {
		return e.failStep(st, &row, stepStart, err)
	}

	return e.completeStep(st, step, &row, stepStart, output)
}

func (e *Executor) completeStep(
	st *runState,
	step *workflow.Step,
	row *engine.StepResult,
	stepStart time.Time,
	output any,
) error {
	row.Status = engine.StepCompleted
	row.Output = output
	finalizeRow(row, stepStart)
	if err := e.saveStep(st, row); err != nil {
		return err
	}

	if step.Output != "" {
		st.vars[step.Output] = output
	}
	if step.Output != "" || step.Action == "variable.set" {
		if err := e.store.SaveContext(st.dbctx, st.execID, st.vars); err != nil {
			return storageErr("save context", err)
		}
	}

	e.emit(st, events.StepComplete, &events.StepData{
		StepIndex: row.StepIndex,
		StepName:  row.StepName,
		Action:    row.Action,
		Duration:  row.Duration,
		Output:    output,
	})
	return nil
}

// failStep records the failed row and returns the step error so the loop
// aborts the workflow.
func (e *Executor) failStep(
	st *runState,
	row *engine.StepResult,
	stepStart time.Time,
	stepErr error,
) error {
	row.Status = engine.StepFailed
	row.Error = stepErr.Error()
	row.ErrorStack = string(debug.Stack())
	finalizeRow(row, stepStart)
	if err := e.saveStep(st, row); err != nil {
		return err
	}
	e.emit(st, events.StepFailed, &events.StepData{
		StepIndex: row.StepIndex,
		StepName:  row.StepName,
		Action:    row.Action,
		Duration:  row.Duration,
		Error:     row.Error,
	})
	return stepErr
}

// saveRunningStep upserts the in-flight row so queries see the step
// while it runs. Only the terminal save appends to the transcript, so
// this must never touch st.steps.
func (e *Executor) saveRunningStep(st *runState, row *engine.StepResult) error {
	if err := e.store.SaveStepResult(st.dbctx, st.execID, row); err != nil {
		return storageErr("save step result", err)
	}
	return nil
}

func (e *Executor) saveStep(st *runState, row *engine.StepResult) error {
	if err := e.store.SaveStepResult(st.dbctx, st.execID, row); err != nil {
		return storageErr("save step result", err)
	}
	st.steps = append(st.steps, *row)
	return nil
}

func (e *Executor) interpolateParams(params, vars map[string]any) (map[string]any, error) {
	if len(params) == 0 {
		return nil, nil
	}
	interpolated, err := e.tmpl.InterpolateValue(params, vars)
	if err != nil {
		return nil, err
	}
	input, ok := interpolated.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("%w: params did not interpolate to an object", engine.ErrTemplate)
	}
	return input, nil
}

// createRecord persists the execution row and initial context. Resume
// reuses an existing row instead of inserting a new one.
func (e *Executor) createRecord(ctx context.Context, st *runState) error {
	trigger := engine.Trigger{Type: engine.TriggerCLI}
	if st.execCtx.Trigger != nil {
		trigger = *st.execCtx.Trigger
	}

	if st.execCtx.ExecutionID != "" {
		st.execID = st.execCtx.ExecutionID
		prior, err := e.store.GetExecution(ctx, st.execID)
		if err != nil {
			return storageErr("resume execution", err)
		}
		// The terminal duration spans the original start, not the resume.
		st.started = prior.StartedAt
		running := engine.StatusRunning
		if err := e.store.UpdateExecution(ctx, st.execID, storage.ExecutionUpdate{Status: &running}); err != nil {
			return storageErr("resume execution", err)
		}
	} else {
		st.execID = uuid.New().String()
		total := len(st.wf.Steps)
		execution := &engine.Execution{
			ID:                st.execID,
			WorkflowName:      st.wf.Name,
			Status:            engine.StatusRunning,
			StartedAt:         st.started,
			TotalSteps:        &total,
			ParentExecutionID: st.execCtx.ParentExecutionID,
			ParentStepIndex:   st.execCtx.ParentStepIndex,
			Depth:             st.execCtx.Depth,
			Trigger:           trigger,
		}
		if len(st.cfg.Values) > 0 {
			execution.Metadata = map[string]any{"config": st.cfg.Values}
		}
		if err := e.store.SaveExecution(ctx, execution); err != nil {
			return storageErr("save execution", err)
		}
	}

	if err := e.store.SaveContext(ctx, st.execID, st.vars); err != nil {
		return storageErr("save initial context", err)
	}
	return nil
}

// connectRequired brings up every tool server the workflow declares.
func (e *Executor) connectRequired(ctx context.Context, st *runState) error {
	if len(st.wf.MCPsRequired) == 0 {
		return nil
	}
	if e.tools == nil {
		return fmt.Errorf("%w: workflow requires tool servers %s but no tool client is configured",
			engine.ErrTool, strings.Join(st.wf.MCPsRequired, ", "))
	}
	return e.tools.AutoConnect(ctx, st.wf.MCPsRequired)
}

// finish writes the terminal execution row, emits the terminal event,
// and shapes the result. failErr is nil for completed runs.
func (e *Executor) finish(st *runState, status engine.Status, failErr error) (*engine.Result, error) {
	completedAt := time.Now().UTC()
	duration := completedAt.Sub(st.started).Milliseconds()

	update := storage.ExecutionUpdate{
		Status:      &status,
		CompletedAt: &completedAt,
		Duration:    &duration,
	}
	if failErr != nil {
		msg := failErr.Error()
		stack := string(debug.Stack())
		update.Error = &msg
		update.ErrorStack = &stack
	}
	if err := e.store.UpdateExecution(st.dbctx, st.execID, update); err != nil {
		logger.Errorf("Failed to record terminal status for execution %s: %v", st.execID, err)
	}

	if status == engine.StatusCompleted {
		e.emit(st, events.ExecutionComplete, nil)
	} else {
		data := &events.StepData{}
		if failErr != nil {
			data.Error = failErr.Error()
		}
		e.emit(st, events.ExecutionFailed, data)
	}

	result := &engine.Result{
		ExecutionID: st.execID,
		Status:      status,
		Steps:       st.steps,
		Duration:    duration,
		Context:     st.vars,
	}
	return result, failErr
}

// pause records the boundary the loop stopped at so Resume can continue
// from exactly there.
func (e *Executor) pause(st *runState, nextStep int) (*engine.Result, error) {
	paused := engine.StatusPaused
	update := storage.ExecutionUpdate{Status: &paused, CurrentStep: &nextStep}
	if err := e.store.UpdateExecution(st.dbctx, st.execID, update); err != nil {
		return e.finish(st, engine.StatusFailed, storageErr("pause execution", err))
	}
	if err := e.store.SaveContext(st.dbctx, st.execID, st.vars); err != nil {
		return e.finish(st, engine.StatusFailed, storageErr("save paused context", err))
	}

	result := &engine.Result{
		ExecutionID: st.execID,
		Status:      engine.StatusPaused,
		Steps:       st.steps,
		Duration:    time.Since(st.started).Milliseconds(),
		Context:     st.vars,
	}
	return result, nil
}

func (e *Executor) emit(st *runState, t events.Type, data *events.StepData) {
	if e.bus == nil {
		return
	}
	e.bus.Publish(events.Event{
		Type:         t,
		ExecutionID:  st.execID,
		WorkflowName: st.wf.Name,
		Depth:        st.execCtx.Depth,
		Data:         data,
	})
}

// buildVariables merges config_schema defaults, caller values, and
// composition variables, later layers overriding earlier ones.
func buildVariables(wf *workflow.Workflow, config engine.RunConfig, execCtx engine.ExecutionContext) (map[string]any, error) {
	vars := make(map[string]any)
	for _, layer := range []map[string]any{wf.ConfigDefaults(), config.Values, execCtx.Variables} {
		if len(layer) == 0 {
			continue
		}
		if err := mergo.Merge(&vars, layer, mergo.WithOverride); err != nil {
			return nil, fmt.Errorf("%w: merging config values: %v", engine.ErrValidation, err)
		}
	}
	return vars, nil
}

func finalizeRow(row *engine.StepResult, stepStart time.Time) {
	completedAt := time.Now().UTC()
	duration := completedAt.Sub(stepStart).Milliseconds()
	row.CompletedAt = &completedAt
	row.Duration = &duration
}

func storageErr(op string, err error) error {
	return fmt.Errorf("%w: %s: %w", engine.ErrStorage, op, err)
}
