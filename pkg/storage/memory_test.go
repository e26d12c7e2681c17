// SPDX-FileCopyrightText: Copyright 2026 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package storage_test

import (
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stacklok/flowhive/pkg/engine"
	"github.com/stacklok/flowhive/pkg/storage"
)

func TestMemoryStore_RoundTrip(t *testing.T) {
	t.Parallel()
	store := storage.NewMemoryStore()
	ctx := t.Context()

	startedAt := time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)
	execution := &engine.Execution{
		ID:           "m-1",
		WorkflowName: "triage",
		Status:       engine.StatusRunning,
		StartedAt:    startedAt,
		Trigger:      engine.Trigger{Type: engine.TriggerCLI},
		Metadata:     map[string]any{"config": map[string]any{"label": "bug"}},
	}
	require.NoError(t, store.SaveExecution(ctx, execution))
	require.ErrorIs(t, store.SaveExecution(ctx, execution), storage.ErrAlreadyExists)

	got, err := store.GetExecution(ctx, "m-1")
	require.NoError(t, err)
	if diff := cmp.Diff(execution, got); diff != "" {
		t.Errorf("execution mismatch (-want +got):\n%s", diff)
	}

	_, err = store.GetExecution(ctx, "missing")
	require.ErrorIs(t, err, storage.ErrNotFound)
}

func TestMemoryStore_IsolatesCallers(t *testing.T) {
	t.Parallel()
	store := storage.NewMemoryStore()
	ctx := t.Context()

	require.NoError(t, store.SaveExecution(ctx, &engine.Execution{
		ID: "m-2", WorkflowName: "wf", Status: engine.StatusRunning,
		StartedAt: time.Now(), Metadata: map[string]any{"k": "v"},
	}))

	got, err := store.GetExecution(ctx, "m-2")
	require.NoError(t, err)
	got.Metadata["k"] = "mutated"
	got.Status = engine.StatusFailed

	again, err := store.GetExecution(ctx, "m-2")
	require.NoError(t, err)
	assert.Equal(t, "v", again.Metadata["k"], "caller mutations must not leak into the store")
	assert.Equal(t, engine.StatusRunning, again.Status)
}

func TestMemoryStore_StepReplaceAndOrder(t *testing.T) {
	t.Parallel()
	store := storage.NewMemoryStore()
	ctx := t.Context()

	require.NoError(t, store.SaveExecution(ctx, &engine.Execution{
		ID: "m-3", WorkflowName: "wf", Status: engine.StatusRunning, StartedAt: time.Now(),
	}))

	for _, step := range []*engine.StepResult{
		{StepIndex: 2, StepName: "c", Action: "log.info", Status: engine.StepCompleted, StartedAt: time.Now()},
		{StepIndex: 0, StepName: "a", Action: "log.info", Status: engine.StepFailed, StartedAt: time.Now()},
		{StepIndex: 0, StepName: "a", Action: "log.info", Status: engine.StepCompleted, StartedAt: time.Now(), RetryAttempt: 1},
	} {
		require.NoError(t, store.SaveStepResult(ctx, "m-3", step))
	}

	steps, err := store.GetStepResults(ctx, "m-3")
	require.NoError(t, err)
	require.Len(t, steps, 2)
	assert.Equal(t, 0, steps[0].StepIndex)
	assert.Equal(t, engine.StepCompleted, steps[0].Status, "retry replaced the failed row")
	assert.Equal(t, 1, steps[0].RetryAttempt)
	assert.Equal(t, 2, steps[1].StepIndex)
}

func TestMemoryStore_QueryAndCleanup(t *testing.T) {
	t.Parallel()
	store := storage.NewMemoryStore()
	ctx := t.Context()

	base := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	for i, id := range []string{"q-a", "q-b", "q-c"} {
		require.NoError(t, store.SaveExecution(ctx, &engine.Execution{
			ID: id, WorkflowName: "wf", Status: engine.StatusCompleted,
			StartedAt: base.AddDate(0, 0, i),
		}))
	}

	all, err := store.QueryExecutions(ctx, storage.ExecutionFilter{})
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, "q-c", all[0].ID, "newest first")

	removed, err := store.Cleanup(ctx, base.AddDate(0, 0, 2))
	require.NoError(t, err)
	assert.Equal(t, int64(2), removed)

	remaining, err := store.QueryExecutions(ctx, storage.ExecutionFilter{})
	require.NoError(t, err)
	require.Len(t, remaining, 1)
	assert.Equal(t, "q-c", remaining[0].ID)
}
