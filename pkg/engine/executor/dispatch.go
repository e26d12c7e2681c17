// SPDX-FileCopyrightText: Copyright 2026 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package executor

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/tidwall/gjson"

	"github.com/stacklok/flowhive/pkg/ai"
	"github.com/stacklok/flowhive/pkg/engine"
	"github.com/stacklok/flowhive/pkg/logger"
	"github.com/stacklok/flowhive/pkg/prompt"
	"github.com/stacklok/flowhive/pkg/workflow"
)

// stepOutcome is the paired result of one dispatch attempt.
type stepOutcome struct {
	output  any
	childID string
}

// dispatchWithRetry runs the step's action under its retry policy.
// attempts is the zero-based index of the last attempt made. Only tool
// and provider errors are retried.
func (e *Executor) dispatchWithRetry(
	ctx context.Context,
	st *runState,
	stepIndex int,
	step *workflow.Step,
	input map[string]any,
	row *engine.StepResult,
) (any, string, int, error) {
	maxTries := 1
	var delay time.Duration
	if step.Retry != nil && step.Retry.Attempts > 0 {
		maxTries = step.Retry.Attempts + 1
		delay = time.Duration(step.Retry.Delay) * time.Millisecond
	}

	attemptCount := 0
	operation := func() (stepOutcome, error) {
		attemptCount++
		if attemptCount > 1 {
			// Keep the in-flight row's retry counter current across attempts.
			row.RetryAttempt = attemptCount - 1
			if saveErr := e.saveRunningStep(st, row); saveErr != nil {
				return stepOutcome{}, backoff.Permanent(saveErr)
			}
		}
		output, childID, err := e.dispatch(ctx, st, stepIndex, step, input)
		if err != nil {
			if !engine.IsRetryable(err) {
				return stepOutcome{}, backoff.Permanent(err)
			}
			logger.Warnf("Step %s failed (attempt %d/%d): %v",
				step.Name(stepIndex), attemptCount, maxTries, err)
			return stepOutcome{}, err
		}
		return stepOutcome{output: output, childID: childID}, nil
	}

	outcome, err := backoff.Retry(ctx, operation,
		backoff.WithBackOff(backoff.NewConstantBackOff(delay)),
		backoff.WithMaxTries(uint(maxTries)), // #nosec G115 -- attempts is a small workflow-author value
	)
	return outcome.output, outcome.childID, attemptCount - 1, err
}

// dispatch routes one action to its handler. Reserved namespaces are
// handled in-process; everything else goes to the tool client.
func (e *Executor) dispatch(
	ctx context.Context,
	st *runState,
	stepIndex int,
	step *workflow.Step,
	input map[string]any,
) (any, string, error) {
	ns, name, ok := strings.Cut(step.Action, ".")
	if !ok {
		return nil, "", fmt.Errorf("%w: action %q is not of the form namespace.name",
			engine.ErrValidation, step.Action)
	}

	switch ns {
	case workflow.NamespacePrompt:
		output, err := e.dispatchPrompt(ctx, st, name, input)
		return output, "", err
	case workflow.NamespaceVariable:
		output, err := e.dispatchVariable(st, name, input)
		return output, "", err
	case workflow.NamespaceLog:
		output, err := e.dispatchLog(name, input)
		return output, "", err
	case workflow.NamespaceAI:
		output, err := e.dispatchAI(ctx, name, input)
		return output, "", err
	case workflow.NamespaceWorkflow:
		if name != "run" {
			return nil, "", fmt.Errorf("%w: unknown workflow action %q", engine.ErrValidation, step.Action)
		}
		return e.runSubWorkflow(ctx, st, stepIndex, input)
	default:
		output, err := e.dispatchTool(ctx, ns, name, input)
		return output, "", err
	}
}

func (e *Executor) dispatchPrompt(ctx context.Context, st *runState, name string, input map[string]any) (any, error) {
	if e.prompter == nil {
		return nil, fmt.Errorf("%w: no prompt handler configured", engine.ErrValidation)
	}
	message, err := requireString(input, "message")
	if err != nil {
		return nil, err
	}

	switch name {
	case "ask":
		req := prompt.Request{
			Message: message,
			Type:    stringParam(input, "type"),
			Default: stringParam(input, "default"),
			Options: stringSliceParam(input, "options"),
			Dynamic: boolParam(input, "dynamic") && dynamicAllowed(st.wf.PromptMode),
		}
		resp, err := e.prompter.Ask(ctx, req)
		if err != nil {
			return nil, err
		}
		return map[string]any{"raw": resp.Raw, "interpreted": resp.Interpreted}, nil

	case "confirm":
		confirmed, err := e.prompter.Confirm(ctx, message, boolParam(input, "default"))
		if err != nil {
			return nil, err
		}
		return confirmed, nil

	case "select":
		selected, err := e.prompter.Select(ctx, message, stringSliceParam(input, "options"))
		if err != nil {
			return nil, err
		}
		return selected, nil

	default:
		return nil, fmt.Errorf("%w: unknown prompt action %q", engine.ErrValidation, name)
	}
}

func dynamicAllowed(mode workflow.PromptMode) bool {
	return mode == "" || mode == workflow.PromptModeDynamic || mode == workflow.PromptModeBoth
}

func (e *Executor) dispatchVariable(st *runState, name string, input map[string]any) (any, error) {
	varName, err := requireString(input, "name")
	if err != nil {
		return nil, err
	}

	switch name {
	case "set":
		value := input["value"]
		st.vars[varName] = value
		return value, nil
	case "get":
		value, ok := st.vars[varName]
		if !ok {
			return nil, fmt.Errorf("%w: variable %q is not defined", engine.ErrTemplate, varName)
		}
		return value, nil
	default:
		return nil, fmt.Errorf("%w: unknown variable action %q", engine.ErrValidation, name)
	}
}

func (e *Executor) dispatchLog(level string, input map[string]any) (any, error) {
	message := stringifyParam(input["message"])
	rendered := renderLogMessage(message)

	switch level {
	case "info":
		logger.Infof("%s", rendered)
		fmt.Fprintln(e.logOut, rendered)
	case "error":
		logger.Errorf("%s", rendered)
		fmt.Fprintln(e.logErr, rendered)
	case "debug":
		logger.Debugf("%s", rendered)
		fmt.Fprintln(e.logOut, rendered)
	default:
		return nil, fmt.Errorf("%w: unknown log action %q", engine.ErrValidation, level)
	}
	return rendered, nil
}

// renderLogMessage pretty-prints JSON messages and surfaces the prose of
// a `result` key instead of raw JSON when one is present.
func renderLogMessage(message string) string {
	trimmed := strings.TrimSpace(message)
	if len(trimmed) == 0 || (trimmed[0] != '{' && trimmed[0] != '[') || !gjson.Valid(trimmed) {
		return message
	}

	if result := gjson.Get(trimmed, "result"); result.Exists() && result.Type == gjson.String {
		return result.String()
	}

	var value any
	if err := json.Unmarshal([]byte(trimmed), &value); err != nil {
		return message
	}
	pretty, err := json.MarshalIndent(value, "", "  ")
	if err != nil {
		return message
	}
	return string(pretty)
}

func (e *Executor) dispatchAI(ctx context.Context, name string, input map[string]any) (any, error) {
	if e.provider == nil {
		return nil, fmt.Errorf("%w: no LLM provider configured", engine.ErrProvider)
	}

	switch name {
	case "generate":
		promptText, err := requireString(input, "prompt")
		if err != nil {
			return nil, err
		}
		return e.provider.Generate(ctx, ai.Request{
			Prompt:      promptText,
			System:      stringParam(input, "system"),
			Model:       stringParam(input, "model"),
			Temperature: floatParam(input, "temperature"),
			MaxTokens:   intParam(input, "max_tokens"),
		})

	case "interpret":
		text, err := requireString(input, "input")
		if err != nil {
			return nil, err
		}
		return ai.Interpret(ctx, e.provider, text, stringParam(input, "context"))

	case "summarize":
		text, err := requireString(input, "text")
		if err != nil {
			return nil, err
		}
		return ai.Summarize(ctx, e.provider, text, intParam(input, "max_length"))

	default:
		return nil, fmt.Errorf("%w: unknown ai action %q", engine.ErrValidation, name)
	}
}

func (e *Executor) dispatchTool(ctx context.Context, server, tool string, input map[string]any) (any, error) {
	if e.tools == nil {
		return nil, fmt.Errorf("%w: no tool client configured for server %q", engine.ErrTool, server)
	}
	if !e.tools.IsConnected(server) {
		if err := e.tools.Connect(ctx, server); err != nil {
			return nil, err
		}
	}

	result, err := e.tools.CallTool(ctx, server, tool, input)
	if err != nil {
		return nil, err
	}

	if server == "shell" {
		result = normalizeShellResult(result)
		if code, ok := shellExitCode(result); ok && code != 0 {
			return nil, fmt.Errorf("%w: command exited with code %d: %s",
				engine.ErrTool, code, shellFailureDetail(result))
		}
	}
	return result, nil
}

var shellExitCodeRe = regexp.MustCompile(`(?m)^Exit code:\s*(-?\d+)\s*$`)

// normalizeShellResult extracts stdout/stderr/exit_code fields from a
// shell response whose payload arrived as one serialized text blob.
func normalizeShellResult(result map[string]any) map[string]any {
	blob, ok := result["result"].(string)
	if !ok {
		return result
	}
	if !strings.Contains(blob, "STDOUT:") && !strings.Contains(blob, "STDERR:") &&
		!shellExitCodeRe.MatchString(blob) {
		return result
	}

	out := make(map[string]any, len(result)+3)
	for k, v := range result {
		out[k] = v
	}
	stdout, stderr := splitShellBlocks(blob)
	out["stdout"] = stdout
	out["stderr"] = stderr
	if m := shellExitCodeRe.FindStringSubmatch(blob); m != nil {
		out["exit_code"] = mustAtoi(m[1])
	}
	return out
}

// splitShellBlocks separates the STDOUT: and STDERR: sections of a
// serialized shell payload.
func splitShellBlocks(blob string) (string, string) {
	var stdout, stderr strings.Builder
	target := &stdout
	capturing := false
	for _, line := range strings.Split(blob, "\n") {
		switch {
		case strings.TrimSpace(line) == "STDOUT:":
			target = &stdout
			capturing = true
		case strings.TrimSpace(line) == "STDERR:":
			target = &stderr
			capturing = true
		case shellExitCodeRe.MatchString(line):
			capturing = false
		case capturing:
			target.WriteString(line)
			target.WriteString("\n")
		}
	}
	return strings.TrimRight(stdout.String(), "\n"), strings.TrimRight(stderr.String(), "\n")
}

func shellExitCode(result map[string]any) (int64, bool) {
	raw, err := json.Marshal(result)
	if err != nil {
		return 0, false
	}
	code := gjson.GetBytes(raw, "exit_code")
	if !code.Exists() {
		return 0, false
	}
	return code.Int(), true
}

func shellFailureDetail(result map[string]any) string {
	if stderr, ok := result["stderr"].(string); ok && strings.TrimSpace(stderr) != "" {
		return stderr
	}
	if stdout, ok := result["stdout"].(string); ok && strings.TrimSpace(stdout) != "" {
		return stdout
	}
	return "no output"
}

func mustAtoi(s string) int64 {
	var n int64
	fmt.Sscanf(s, "%d", &n)
	return n
}

func requireString(input map[string]any, key string) (string, error) {
	value, ok := input[key].(string)
	if !ok || value == "" {
		return "", fmt.Errorf("%w: missing required param %q", engine.ErrValidation, key)
	}
	return value, nil
}

func stringParam(input map[string]any, key string) string {
	value, _ := input[key].(string)
	return value
}

func boolParam(input map[string]any, key string) bool {
	value, _ := input[key].(bool)
	return value
}

func stringSliceParam(input map[string]any, key string) []string {
	raw, ok := input[key].([]any)
	if !ok {
		if direct, ok := input[key].([]string); ok {
			return direct
		}
		return nil
	}
	out := make([]string, 0, len(raw))
	for _, v := range raw {
		out = append(out, stringifyParam(v))
	}
	return out
}

func intParam(input map[string]any, key string) int {
	switch v := input[key].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case uint64:
		return int(v) // #nosec G115 -- workflow-author values are small
	case float64:
		return int(v)
	default:
		return 0
	}
}

func floatParam(input map[string]any, key string) float64 {
	switch v := input[key].(type) {
	case float64:
		return v
	case int:
		return float64(v)
	case int64:
		return float64(v)
	case uint64:
		return float64(v)
	default:
		return 0
	}
}

func stringifyParam(v any) string {
	if s, ok := v.(string); ok {
		return s
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprint(v)
	}
	return string(raw)
}
