// SPDX-FileCopyrightText: Copyright 2026 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package executor_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stacklok/flowhive/pkg/engine"
	"github.com/stacklok/flowhive/pkg/storage"
	"github.com/stacklok/flowhive/pkg/workflow"
)

func TestCancel_RunningExecution(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	f.tools.delay = 5 * time.Second

	started := make(chan string, 1)
	f.tools.onCall = func(ctx context.Context, _, _ string, _ map[string]any) {
		execs, err := f.store.QueryExecutions(ctx, storage.ExecutionFilter{})
		if err == nil && len(execs) == 1 {
			started <- execs[0].ID
		}
	}

	wf := &workflow.Workflow{
		Name: "long-running",
		Steps: []workflow.Step{
			{Action: "git.git_status"},
			setStep("never", "x", "never"),
		},
	}

	var (
		wg     sync.WaitGroup
		result *engine.Result
		runErr error
	)
	wg.Add(1)
	go func() {
		defer wg.Done()
		result, runErr = f.exec.Execute(context.Background(), wf, engine.RunConfig{}, engine.ExecutionContext{})
	}()

	var execID string
	select {
	case execID = <-started:
	case <-time.After(5 * time.Second):
		t.Fatal("execution never started")
	}

	require.NoError(t, f.exec.Cancel(t.Context(), execID))
	wg.Wait()

	require.Error(t, runErr)
	assert.ErrorIs(t, runErr, engine.ErrCancelled)
	require.NotNil(t, result)
	assert.Equal(t, engine.StatusCancelled, result.Status)

	execution, err := f.store.GetExecution(t.Context(), execID)
	require.NoError(t, err)
	assert.Equal(t, engine.StatusCancelled, execution.Status)
	require.NotNil(t, execution.CompletedAt)
}

func TestCancel_NotRunningMarksRow(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	execution := &engine.Execution{
		ID:           "orphan",
		WorkflowName: "wf",
		Status:       engine.StatusRunning,
		StartedAt:    time.Now().UTC().Add(-time.Minute),
	}
	require.NoError(t, f.store.SaveExecution(t.Context(), execution))

	require.NoError(t, f.exec.Cancel(t.Context(), "orphan"))

	got, err := f.store.GetExecution(t.Context(), "orphan")
	require.NoError(t, err)
	assert.Equal(t, engine.StatusCancelled, got.Status)
	require.NotNil(t, got.Duration)
}

func TestCancel_TerminalExecution(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	execution := &engine.Execution{
		ID:           "done",
		WorkflowName: "wf",
		Status:       engine.StatusCompleted,
		StartedAt:    time.Now().UTC(),
	}
	require.NoError(t, f.store.SaveExecution(t.Context(), execution))

	err := f.exec.Cancel(t.Context(), "done")
	require.Error(t, err)
	assert.ErrorIs(t, err, engine.ErrValidation)
}

func TestCancel_UnknownExecution(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	err := f.exec.Cancel(t.Context(), "no-such-id")
	require.Error(t, err)
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestPauseAndResume(t *testing.T) {
	t.Parallel()

	f := newFixture(t)

	wf := &workflow.Workflow{
		Name: "pausable",
		Steps: []workflow.Step{
			{Action: "git.git_status", Output: "status"},
			setStep("second", "2", "second"),
			setStep("third", "3", "third"),
		},
	}
	f.registry.Add(wf)

	// Pause from inside step 0 so the loop stops before step 1.
	f.tools.onCall = func(ctx context.Context, _, _ string, _ map[string]any) {
		execs, err := f.store.QueryExecutions(ctx, storage.ExecutionFilter{})
		if err == nil && len(execs) == 1 {
			_ = f.exec.Pause(execs[0].ID)
		}
	}

	result, err := f.exec.Execute(t.Context(), wf, engine.RunConfig{}, engine.ExecutionContext{})
	require.NoError(t, err)
	assert.Equal(t, engine.StatusPaused, result.Status)
	assert.Len(t, result.Steps, 1)

	execution, gerr := f.store.GetExecution(t.Context(), result.ExecutionID)
	require.NoError(t, gerr)
	assert.Equal(t, engine.StatusPaused, execution.Status)
	require.NotNil(t, execution.CurrentStep)
	assert.Equal(t, 1, *execution.CurrentStep)

	// Resume finishes the remaining steps on the same execution row.
	f.tools.onCall = nil
	resumed, rerr := f.exec.Resume(t.Context(), result.ExecutionID)
	require.NoError(t, rerr)
	assert.Equal(t, engine.StatusCompleted, resumed.Status)
	assert.Equal(t, result.ExecutionID, resumed.ExecutionID)
	assert.Equal(t, "2", resumed.Context["second"])
	assert.Equal(t, "3", resumed.Context["third"])

	// Step 0's output survived the pause into the resumed variable map.
	assert.Contains(t, resumed.Context, "status")

	steps, serr := f.store.GetStepResults(t.Context(), result.ExecutionID)
	require.NoError(t, serr)
	assert.Len(t, steps, 3)

	final, ferr := f.store.GetExecution(t.Context(), result.ExecutionID)
	require.NoError(t, ferr)
	assert.Equal(t, engine.StatusCompleted, final.Status)
}

func TestResume_DurationSpansOriginalStart(t *testing.T) {
	t.Parallel()

	f := newFixture(t)

	wf := &workflow.Workflow{
		Name: "pausable-duration",
		Steps: []workflow.Step{
			{Action: "git.git_status", Output: "status"},
			setStep("second", "2", "second"),
		},
	}
	f.registry.Add(wf)

	f.tools.onCall = func(ctx context.Context, _, _ string, _ map[string]any) {
		execs, err := f.store.QueryExecutions(ctx, storage.ExecutionFilter{})
		if err == nil && len(execs) == 1 {
			_ = f.exec.Pause(execs[0].ID)
		}
	}

	result, err := f.exec.Execute(t.Context(), wf, engine.RunConfig{}, engine.ExecutionContext{})
	require.NoError(t, err)
	require.Equal(t, engine.StatusPaused, result.Status)

	// Let real time pass between the pause and the resume.
	time.Sleep(75 * time.Millisecond)

	f.tools.onCall = nil
	resumed, rerr := f.exec.Resume(t.Context(), result.ExecutionID)
	require.NoError(t, rerr)
	require.Equal(t, engine.StatusCompleted, resumed.Status)

	final, gerr := f.store.GetExecution(t.Context(), result.ExecutionID)
	require.NoError(t, gerr)
	require.NotNil(t, final.CompletedAt)
	require.NotNil(t, final.Duration)

	// duration = completed_at - started_at even when the run was resumed.
	assert.Equal(t, final.CompletedAt.Sub(final.StartedAt).Milliseconds(), *final.Duration)
	assert.GreaterOrEqual(t, *final.Duration, int64(75))
	assert.GreaterOrEqual(t, resumed.Duration, int64(75))
}

func TestResume_RequiresPausedStatus(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	execution := &engine.Execution{
		ID:           "running-one",
		WorkflowName: "wf",
		Status:       engine.StatusRunning,
		StartedAt:    time.Now().UTC(),
	}
	require.NoError(t, f.store.SaveExecution(t.Context(), execution))

	_, err := f.exec.Resume(t.Context(), "running-one")
	require.Error(t, err)
	assert.ErrorIs(t, err, engine.ErrValidation)
}

func TestPause_NotRunning(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	err := f.exec.Pause("nobody-home")
	require.Error(t, err)
	assert.ErrorIs(t, err, engine.ErrNotFound)
}
