// SPDX-FileCopyrightText: Copyright 2026 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package executor_test

import (
	"bytes"
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/stacklok/flowhive/pkg/ai"
	"github.com/stacklok/flowhive/pkg/ai/mocks"
	"github.com/stacklok/flowhive/pkg/engine"
	"github.com/stacklok/flowhive/pkg/engine/events"
	"github.com/stacklok/flowhive/pkg/engine/executor"
	"github.com/stacklok/flowhive/pkg/prompt"
	"github.com/stacklok/flowhive/pkg/registry"
	"github.com/stacklok/flowhive/pkg/storage"
	"github.com/stacklok/flowhive/pkg/tools"
	"github.com/stacklok/flowhive/pkg/workflow"
)

// fakeToolClient is a scriptable tools.Client for executor tests.
type fakeToolClient struct {
	mu        sync.Mutex
	connected map[string]bool
	results   map[string]map[string]any // keyed by "server/tool"
	errs      map[string]error
	calls     []string
	delay     time.Duration
	onCall    func(ctx context.Context, server, tool string, args map[string]any)
}

var _ tools.Client = (*fakeToolClient)(nil)

func newFakeToolClient() *fakeToolClient {
	return &fakeToolClient{
		connected: make(map[string]bool),
		results:   make(map[string]map[string]any),
		errs:      make(map[string]error),
	}
}

func (f *fakeToolClient) Connect(_ context.Context, server string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.connected[server] = true
	return nil
}

func (f *fakeToolClient) Disconnect(server string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.connected, server)
	return nil
}

func (f *fakeToolClient) CallTool(ctx context.Context, server, tool string, args map[string]any) (map[string]any, error) {
	key := server + "/" + tool
	f.mu.Lock()
	f.calls = append(f.calls, key)
	onCall := f.onCall
	delay := f.delay
	f.mu.Unlock()

	if onCall != nil {
		onCall(ctx, server, tool, args)
	}
	if delay > 0 {
		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("%w: %v", engine.ErrTool, ctx.Err())
		case <-time.After(delay):
		}
	}

	f.mu.Lock()
	result := f.results[key]
	err := f.errs[key]
	f.mu.Unlock()
	if err != nil {
		return nil, err
	}
	if result == nil {
		return map[string]any{"result": "ok"}, nil
	}
	return result, nil
}

func (f *fakeToolClient) ListTools(context.Context, string) ([]tools.ToolDescriptor, error) {
	return nil, nil
}

func (f *fakeToolClient) IsConnected(server string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.connected[server]
}

func (f *fakeToolClient) AutoConnect(ctx context.Context, servers []string) error {
	for _, s := range servers {
		if err := f.Connect(ctx, s); err != nil {
			return err
		}
	}
	return nil
}

func (f *fakeToolClient) Shutdown() {}

func (f *fakeToolClient) callCount(key string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.calls {
		if c == key {
			n++
		}
	}
	return n
}

// fixture wires an executor against in-memory collaborators.
type fixture struct {
	exec     *executor.Executor
	store    *storage.MemoryStore
	registry *registry.MemoryRegistry
	tools    *fakeToolClient
	bus      *events.Bus
	events   *eventRecorder
	logOut   *bytes.Buffer
	logErr   *bytes.Buffer
}

type eventRecorder struct {
	mu     sync.Mutex
	events []events.Event
}

func (r *eventRecorder) record(evt events.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, evt)
}

func (r *eventRecorder) types() []events.Type {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]events.Type, 0, len(r.events))
	for _, evt := range r.events {
		out = append(out, evt.Type)
	}
	return out
}

func newFixture(t *testing.T, opts ...func(*executor.Options)) *fixture {
	t.Helper()

	f := &fixture{
		store:    storage.NewMemoryStore(),
		registry: registry.NewMemoryRegistry(),
		tools:    newFakeToolClient(),
		bus:      events.NewBus(),
		events:   &eventRecorder{},
		logOut:   &bytes.Buffer{},
		logErr:   &bytes.Buffer{},
	}
	f.bus.Subscribe(f.events.record)

	options := executor.Options{
		Store:    f.store,
		Registry: f.registry,
		Tools:    f.tools,
		Prompter: prompt.NewAutoResponder(),
		Bus:      f.bus,
		LogOut:   f.logOut,
		LogErr:   f.logErr,
	}
	for _, opt := range opts {
		opt(&options)
	}
	f.exec = executor.New(options)
	return f
}

func setStep(name, value string, output string) workflow.Step {
	return workflow.Step{
		Action: "variable.set",
		Params: map[string]any{"name": name, "value": value},
		Output: output,
	}
}

func TestExecute_LinearVariablePassing(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	wf := &workflow.Workflow{
		Name: "s1",
		Steps: []workflow.Step{
			setStep("greeting", "hello", "greeting"),
			setStep("out", "{{greeting}}, world", "out"),
		},
	}

	result, err := f.exec.Execute(t.Context(), wf, engine.RunConfig{}, engine.ExecutionContext{})
	require.NoError(t, err)
	assert.Equal(t, engine.StatusCompleted, result.Status)
	assert.Equal(t, "hello", result.Context["greeting"])
	assert.Equal(t, "hello, world", result.Context["out"])

	steps, err := f.store.GetStepResults(t.Context(), result.ExecutionID)
	require.NoError(t, err)
	require.Len(t, steps, 2)
	for _, s := range steps {
		assert.Equal(t, engine.StepCompleted, s.Status)
	}

	assert.Equal(t, []events.Type{
		events.ExecutionStart,
		events.StepStart, events.StepComplete,
		events.StepStart, events.StepComplete,
		events.ExecutionComplete,
	}, f.events.types())
}

func TestExecute_ZeroStepsFailsValidation(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	wf := &workflow.Workflow{Name: "empty"}

	_, err := f.exec.Execute(t.Context(), wf, engine.RunConfig{}, engine.ExecutionContext{})
	require.Error(t, err)
	assert.ErrorIs(t, err, engine.ErrValidation)

	// No execution row may exist after a validation failure.
	execs, err := f.store.QueryExecutions(t.Context(), storage.ExecutionFilter{})
	require.NoError(t, err)
	assert.Empty(t, execs)
}

func TestExecute_MissingRequiredConfig(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	wf := &workflow.Workflow{
		Name: "needs-config",
		ConfigSchema: map[string]workflow.ConfigParam{
			"target": {Type: "string", Required: true},
		},
		Steps: []workflow.Step{setStep("x", "1", "")},
	}

	_, err := f.exec.Execute(t.Context(), wf, engine.RunConfig{}, engine.ExecutionContext{})
	require.Error(t, err)
	assert.ErrorIs(t, err, engine.ErrValidation)
	assert.Contains(t, err.Error(), "target")

	execs, err := f.store.QueryExecutions(t.Context(), storage.ExecutionFilter{})
	require.NoError(t, err)
	assert.Empty(t, execs)
}

func TestExecute_ConfigDefaultsAndOverrides(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	wf := &workflow.Workflow{
		Name: "defaults",
		ConfigSchema: map[string]workflow.ConfigParam{
			"env":    {Type: "string", Default: "dev"},
			"region": {Type: "string", Default: "us-east-1"},
		},
		Steps: []workflow.Step{
			setStep("picked", "{{env}}/{{region}}", "picked"),
		},
	}

	result, err := f.exec.Execute(t.Context(), wf,
		engine.RunConfig{Values: map[string]any{"env": "prod"}}, engine.ExecutionContext{})
	require.NoError(t, err)
	assert.Equal(t, "prod/us-east-1", result.Context["picked"])
}

func TestExecute_ConditionalSkip(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	wf := &workflow.Workflow{
		Name: "s5",
		Steps: []workflow.Step{
			setStep("ok", "false", "ok"),
			{
				Action: "log.info",
				Params: map[string]any{"message": "never printed"},
				If:     `{{ok}} == true`,
			},
		},
	}

	result, err := f.exec.Execute(t.Context(), wf, engine.RunConfig{}, engine.ExecutionContext{})
	require.NoError(t, err)
	assert.Equal(t, engine.StatusCompleted, result.Status)

	steps, err := f.store.GetStepResults(t.Context(), result.ExecutionID)
	require.NoError(t, err)
	require.Len(t, steps, 2)
	assert.Equal(t, engine.StepSkipped, steps[1].Status)
	assert.Equal(t, `{{ok}} == true`, steps[1].SkipReason)

	// The handler was never invoked: nothing was written to the log sink.
	assert.NotContains(t, f.logOut.String(), "never printed")
	assert.Contains(t, f.events.types(), events.StepSkipped)
}

func TestExecute_MissingIntermediatePathFailsStep(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	wf := &workflow.Workflow{
		Name: "bad-path",
		Steps: []workflow.Step{
			setStep("a", "scalar", "a"),
			{
				Action: "log.info",
				Params: map[string]any{"message": "{{a.b.c}}"},
			},
		},
	}

	result, err := f.exec.Execute(t.Context(), wf, engine.RunConfig{}, engine.ExecutionContext{})
	require.Error(t, err)
	assert.ErrorIs(t, err, engine.ErrTemplate)
	assert.Equal(t, engine.StatusFailed, result.Status)

	steps, serr := f.store.GetStepResults(t.Context(), result.ExecutionID)
	require.NoError(t, serr)
	require.Len(t, steps, 2)
	assert.Equal(t, engine.StepFailed, steps[1].Status)
	assert.NotEmpty(t, steps[1].ErrorStack)
}

func TestExecute_RetryExhaustion(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	f.tools.results["shell/execute_command"] = map[string]any{
		"result": "STDOUT:\n\nSTDERR:\ncommand not found: frobnicate\nExit code: 127",
	}
	wf := &workflow.Workflow{
		Name: "s4",
		Steps: []workflow.Step{
			{
				Action: "shell.execute_command",
				Params: map[string]any{"command": "frobnicate"},
				Retry:  &workflow.RetryPolicy{Attempts: 2, Delay: 0},
			},
		},
	}

	result, err := f.exec.Execute(t.Context(), wf, engine.RunConfig{}, engine.ExecutionContext{})
	require.Error(t, err)
	assert.ErrorIs(t, err, engine.ErrTool)
	assert.Equal(t, engine.StatusFailed, result.Status)

	// attempts: 2 means three runs in total.
	assert.Equal(t, 3, f.tools.callCount("shell/execute_command"))

	steps, serr := f.store.GetStepResults(t.Context(), result.ExecutionID)
	require.NoError(t, serr)
	require.Len(t, steps, 1)
	assert.Equal(t, engine.StepFailed, steps[0].Status)
	assert.Equal(t, 2, steps[0].RetryAttempt)
	assert.Contains(t, steps[0].Error, "command not found: frobnicate")
	assert.Contains(t, steps[0].Error, "127")
}

func TestExecute_RetrySucceedsMidway(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	f.tools.errs["git/git_status"] = fmt.Errorf("%w: transient", engine.ErrTool)
	attempt := 0
	f.tools.onCall = func(context.Context, string, string, map[string]any) {
		attempt++
		if attempt >= 2 {
			f.mu(func() { delete(f.tools.errs, "git/git_status") })
		}
	}
	wf := &workflow.Workflow{
		Name: "retry-recovers",
		Steps: []workflow.Step{
			{
				Action: "git.git_status",
				Params: map[string]any{"repo_path": "."},
				Retry:  &workflow.RetryPolicy{Attempts: 3, Delay: 0},
				Output: "status",
			},
		},
	}

	result, err := f.exec.Execute(t.Context(), wf, engine.RunConfig{}, engine.ExecutionContext{})
	require.NoError(t, err)
	assert.Equal(t, engine.StatusCompleted, result.Status)
	assert.Equal(t, 2, f.tools.callCount("git/git_status"))

	steps, serr := f.store.GetStepResults(t.Context(), result.ExecutionID)
	require.NoError(t, serr)
	assert.Equal(t, 1, steps[0].RetryAttempt)
}

// mu runs fn under the fake client's lock.
func (f *fixture) mu(fn func()) {
	f.tools.mu.Lock()
	defer f.tools.mu.Unlock()
	fn()
}

func TestExecute_StepRowVisibleWhileRunning(t *testing.T) {
	t.Parallel()

	f := newFixture(t)

	var (
		midRows []engine.StepResult
		midErr  error
	)
	f.tools.onCall = func(ctx context.Context, _, _ string, _ map[string]any) {
		execs, err := f.store.QueryExecutions(ctx, storage.ExecutionFilter{})
		if err != nil || len(execs) != 1 {
			midErr = fmt.Errorf("query executions: %v (%d rows)", err, len(execs))
			return
		}
		midRows, midErr = f.store.GetStepResults(ctx, execs[0].ID)
	}

	wf := &workflow.Workflow{
		Name:  "inflight",
		Steps: []workflow.Step{{Action: "git.git_status", Output: "status"}},
	}

	result, err := f.exec.Execute(t.Context(), wf, engine.RunConfig{}, engine.ExecutionContext{})
	require.NoError(t, err)
	require.NoError(t, midErr)

	// The handler saw its own row, already persisted as running.
	require.Len(t, midRows, 1)
	assert.Equal(t, engine.StepRunning, midRows[0].Status)
	assert.False(t, midRows[0].StartedAt.IsZero())
	assert.Nil(t, midRows[0].CompletedAt)

	steps, serr := f.store.GetStepResults(t.Context(), result.ExecutionID)
	require.NoError(t, serr)
	require.Len(t, steps, 1)
	assert.Equal(t, engine.StepCompleted, steps[0].Status)
	assert.Len(t, result.Steps, 1)
}

func TestExecute_RetryAttemptVisibleWhileRunning(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	f.tools.errs["git/git_status"] = fmt.Errorf("%w: transient", engine.ErrTool)

	var seen []int
	attempt := 0
	f.tools.onCall = func(ctx context.Context, _, _ string, _ map[string]any) {
		attempt++
		if attempt >= 2 {
			f.mu(func() { delete(f.tools.errs, "git/git_status") })
		}
		execs, err := f.store.QueryExecutions(ctx, storage.ExecutionFilter{})
		if err != nil || len(execs) != 1 {
			return
		}
		rows, rerr := f.store.GetStepResults(ctx, execs[0].ID)
		if rerr == nil && len(rows) == 1 && rows[0].Status == engine.StepRunning {
			seen = append(seen, rows[0].RetryAttempt)
		}
	}

	wf := &workflow.Workflow{
		Name: "retry-counter",
		Steps: []workflow.Step{
			{
				Action: "git.git_status",
				Retry:  &workflow.RetryPolicy{Attempts: 2, Delay: 0},
				Output: "status",
			},
		},
	}

	result, err := f.exec.Execute(t.Context(), wf, engine.RunConfig{}, engine.ExecutionContext{})
	require.NoError(t, err)
	assert.Equal(t, engine.StatusCompleted, result.Status)

	// The first attempt ran with counter 0, the second with counter 1.
	assert.Equal(t, []int{0, 1}, seen)
}

func TestExecute_NonRetryableErrorIsNotRetried(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	f.tools.errs["git/git_status"] = fmt.Errorf("%w: malformed frame", engine.ErrProtocol)
	wf := &workflow.Workflow{
		Name: "no-retry",
		Steps: []workflow.Step{
			{
				Action: "git.git_status",
				Retry:  &workflow.RetryPolicy{Attempts: 5, Delay: 0},
			},
		},
	}

	_, err := f.exec.Execute(t.Context(), wf, engine.RunConfig{}, engine.ExecutionContext{})
	require.Error(t, err)
	assert.ErrorIs(t, err, engine.ErrProtocol)
	assert.Equal(t, 1, f.tools.callCount("git/git_status"))
}

func TestExecute_DryRun(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	wf := &workflow.Workflow{
		Name: "dry",
		Steps: []workflow.Step{
			{Action: "git.git_status", Params: map[string]any{"repo_path": "."}, Output: "status"},
			{Action: "log.info", Params: map[string]any{"message": "{{status}}"}},
		},
	}

	result, err := f.exec.Execute(t.Context(), wf, engine.RunConfig{DryRun: true}, engine.ExecutionContext{})
	require.NoError(t, err)
	assert.Equal(t, engine.StatusCompleted, result.Status)
	assert.Empty(t, f.tools.calls)

	steps, serr := f.store.GetStepResults(t.Context(), result.ExecutionID)
	require.NoError(t, serr)
	for _, s := range steps {
		assert.Equal(t, engine.StepCompleted, s.Status)
		assert.Equal(t, map[string]any{"dry_run": true}, s.Output)
	}
}

func TestExecute_WorkflowTimeout(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	f.tools.delay = 30 * time.Millisecond
	wf := &workflow.Workflow{
		Name:    "slow",
		Timeout: 1,
		Steps: []workflow.Step{
			{Action: "git.git_status"},
			{Action: "git.git_log"},
		},
	}

	result, err := f.exec.Execute(t.Context(), wf, engine.RunConfig{}, engine.ExecutionContext{})
	require.Error(t, err)
	assert.ErrorIs(t, err, engine.ErrTimeout)
	assert.Equal(t, engine.StatusFailed, result.Status)

	// The first step completed; the timeout prevented the second.
	assert.Equal(t, 1, f.tools.callCount("git/git_status"))
	assert.Equal(t, 0, f.tools.callCount("git/git_log"))
}

func TestExecute_PromptSteps(t *testing.T) {
	t.Parallel()

	f := newFixture(t, func(o *executor.Options) {
		o.Prompter = prompt.NewAutoResponder("blue", "yes", "prod")
	})
	wf := &workflow.Workflow{
		Name: "asks",
		Steps: []workflow.Step{
			{Action: "prompt.ask", Params: map[string]any{"message": "Favorite color?"}, Output: "color"},
			{Action: "prompt.confirm", Params: map[string]any{"message": "Proceed?"}, Output: "go"},
			{Action: "prompt.select", Params: map[string]any{
				"message": "Environment?",
				"options": []any{"dev", "prod"},
			}, Output: "env"},
		},
	}

	result, err := f.exec.Execute(t.Context(), wf, engine.RunConfig{}, engine.ExecutionContext{})
	require.NoError(t, err)

	answer, ok := result.Context["color"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "blue", answer["raw"])
	assert.Equal(t, "blue", answer["interpreted"])
	assert.Equal(t, true, result.Context["go"])
	assert.Equal(t, "prod", result.Context["env"])
}

func TestExecute_AISteps(t *testing.T) {
	t.Parallel()

	ctrl := gomock.NewController(t)
	provider := mocks.NewMockProvider(ctrl)
	provider.EXPECT().
		Generate(gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ any, req ai.Request) (string, error) {
			assert.Equal(t, "Write a haiku about Go", req.Prompt)
			assert.Equal(t, 200, req.MaxTokens)
			return "a haiku", nil
		})

	f := newFixture(t, func(o *executor.Options) {
		o.Provider = provider
	})
	wf := &workflow.Workflow{
		Name: "generates",
		Steps: []workflow.Step{
			{Action: "ai.generate", Params: map[string]any{
				"prompt":     "Write a haiku about Go",
				"max_tokens": 200,
			}, Output: "poem"},
		},
	}

	result, err := f.exec.Execute(t.Context(), wf, engine.RunConfig{}, engine.ExecutionContext{})
	require.NoError(t, err)
	assert.Equal(t, "a haiku", result.Context["poem"])
}

func TestExecute_AIWithoutProviderFails(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	wf := &workflow.Workflow{
		Name: "no-provider",
		Steps: []workflow.Step{
			{Action: "ai.generate", Params: map[string]any{"prompt": "hi"}},
		},
	}

	result, err := f.exec.Execute(t.Context(), wf, engine.RunConfig{}, engine.ExecutionContext{})
	require.Error(t, err)
	assert.ErrorIs(t, err, engine.ErrProvider)
	assert.Equal(t, engine.StatusFailed, result.Status)
}

func TestExecute_LogRendering(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	wf := &workflow.Workflow{
		Name: "logs",
		Steps: []workflow.Step{
			{Action: "log.info", Params: map[string]any{"message": "plain text"}},
			{Action: "log.info", Params: map[string]any{"message": `{"result": "three files changed"}`}},
			{Action: "log.info", Params: map[string]any{"message": `{"branch": "main", "clean": true}`}},
			{Action: "log.error", Params: map[string]any{"message": "boom"}},
		},
	}

	_, err := f.exec.Execute(t.Context(), wf, engine.RunConfig{}, engine.ExecutionContext{})
	require.NoError(t, err)

	out := f.logOut.String()
	assert.Contains(t, out, "plain text")
	// result-key prose is surfaced instead of raw JSON.
	assert.Contains(t, out, "three files changed")
	assert.NotContains(t, out, `{"result"`)
	// plain objects are pretty-printed.
	assert.Contains(t, out, "\"branch\": \"main\"")
	assert.Contains(t, f.logErr.String(), "boom")
}

func TestExecute_VariableGetUnknown(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	wf := &workflow.Workflow{
		Name: "get-missing",
		Steps: []workflow.Step{
			{Action: "variable.get", Params: map[string]any{"name": "nope"}},
		},
	}

	_, err := f.exec.Execute(t.Context(), wf, engine.RunConfig{}, engine.ExecutionContext{})
	require.Error(t, err)
	assert.ErrorIs(t, err, engine.ErrTemplate)
}

func TestExecute_PersistedStepsMatchAdvance(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	f.tools.errs["git/git_diff"] = fmt.Errorf("%w: refused", engine.ErrProtocol)
	wf := &workflow.Workflow{
		Name: "partial",
		Steps: []workflow.Step{
			setStep("a", "1", "a"),
			setStep("b", "2", "b"),
			{Action: "git.git_diff"},
			setStep("never", "x", "never"),
		},
	}

	result, err := f.exec.Execute(t.Context(), wf, engine.RunConfig{}, engine.ExecutionContext{})
	require.Error(t, err)

	execution, gerr := f.store.GetExecution(t.Context(), result.ExecutionID)
	require.NoError(t, gerr)
	require.NotNil(t, execution.CurrentStep)

	steps, serr := f.store.GetStepResults(t.Context(), result.ExecutionID)
	require.NoError(t, serr)
	// One persisted row per step the executor advanced to.
	assert.Len(t, steps, *execution.CurrentStep+1)
}

func TestExecute_MCPsRequiredAutoConnect(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	wf := &workflow.Workflow{
		Name:         "example",
		MCPsRequired: []string{"git"},
		Steps: []workflow.Step{
			{Action: "git.git_status", Params: map[string]any{"repo_path": "."}, Output: "status"},
			{Action: "log.info", Params: map[string]any{"message": "Status: {{status}}"}},
		},
	}

	result, err := f.exec.Execute(t.Context(), wf, engine.RunConfig{}, engine.ExecutionContext{})
	require.NoError(t, err)
	assert.Equal(t, engine.StatusCompleted, result.Status)
	assert.True(t, f.tools.IsConnected("git"))
}
