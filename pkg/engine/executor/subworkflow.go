// SPDX-FileCopyrightText: Copyright 2026 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package executor

import (
	"context"
	"fmt"
	"strings"

	"github.com/stacklok/flowhive/pkg/engine"
	"github.com/stacklok/flowhive/pkg/engine/events"
)

// childExecutionKey is the synthetic key a child's result map may carry
// for its execution id. It is stripped from the bound output and recorded
// on the parent step row instead.
const childExecutionKey = "_child_execution_id"

// runSubWorkflow handles workflow.run: registry resolution, cycle
// detection, and a depth-first recursive Execute with isolated variables.
func (e *Executor) runSubWorkflow(
	ctx context.Context,
	st *runState,
	stepIndex int,
	input map[string]any,
) (any, string, error) {
	childName, err := requireString(input, "workflow")
	if err != nil {
		return nil, "", err
	}

	if cycle := detectCycle(st.execCtx.CallStack, st.wf.Name, childName); cycle != "" {
		return nil, "", fmt.Errorf("%w: Circular dependency detected: %s",
			engine.ErrComposition, cycle)
	}

	if e.registry == nil {
		return nil, "", fmt.Errorf("%w: Workflow '%s' not found: no registry configured",
			engine.ErrComposition, childName)
	}
	childWf, err := e.registry.Get(ctx, childName)
	if err != nil {
		return nil, "", fmt.Errorf("%w: Workflow '%s' not found", engine.ErrComposition, childName)
	}

	childVars, _ := input["vars"].(map[string]any)

	e.emit(st, events.ChildStart, &events.StepData{
		StepIndex:   stepIndex,
		Description: fmt.Sprintf("running workflow %q", childName),
	})

	childCtx := engine.ExecutionContext{
		ParentExecutionID: st.execID,
		ParentStepIndex:   &stepIndex,
		Depth:             st.execCtx.Depth + 1,
		CallStack:         append(append([]string{}, st.execCtx.CallStack...), st.wf.Name),
		Trigger: &engine.Trigger{
			Type:   engine.TriggerWorkflow,
			Source: st.wf.Name,
		},
	}
	childResult, childErr := e.Execute(ctx, childWf, engine.RunConfig{Values: childVars}, childCtx)

	childID := ""
	if childResult != nil {
		childID = childResult.ExecutionID
	}
	e.emit(st, events.ChildComplete, &events.StepData{
		StepIndex:        stepIndex,
		ChildExecutionID: childID,
	})

	if childErr != nil {
		return nil, childID, fmt.Errorf("%w: Child workflow '%s' failed: %v",
			engine.ErrComposition, childName, childErr)
	}
	if childResult.Status != engine.StatusCompleted {
		return nil, childID, fmt.Errorf("%w: Child workflow '%s' failed: terminated with status %s",
			engine.ErrComposition, childName, childResult.Status)
	}

	output := make(map[string]any, len(childResult.Context))
	for k, v := range childResult.Context {
		if k == childExecutionKey {
			continue
		}
		output[k] = v
	}
	return output, childID, nil
}

// detectCycle reports the full traversal path when childName already
// appears among the executing ancestors, empty string otherwise.
func detectCycle(callStack []string, current, childName string) string {
	path := append(append([]string{}, callStack...), current)
	for _, name := range path {
		if name == childName {
			return strings.Join(append(path, childName), " → ")
		}
	}
	return ""
}
