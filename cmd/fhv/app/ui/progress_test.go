// SPDX-FileCopyrightText: Copyright 2026 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package ui

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/stacklok/flowhive/pkg/engine/events"
)

func TestRendererLifecycle(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	r := NewRenderer(&buf, false)

	duration := int64(1500)
	r.Handle(events.Event{Type: events.ExecutionStart, WorkflowName: "deploy"})
	r.Handle(events.Event{Type: events.StepStart, Data: &events.StepData{StepIndex: 0, StepName: "build"}})
	r.Handle(events.Event{Type: events.StepComplete, Data: &events.StepData{StepIndex: 0, StepName: "build", Duration: &duration}})
	r.Handle(events.Event{Type: events.StepSkipped, Data: &events.StepData{StepIndex: 1, StepName: "notify"}})
	r.Handle(events.Event{Type: events.StepFailed, Data: &events.StepData{StepIndex: 2, StepName: "push", Error: "denied"}})
	r.Handle(events.Event{Type: events.ExecutionFailed, WorkflowName: "deploy", Data: &events.StepData{Error: "step 2 (push): denied"}})

	out := buf.String()
	assert.Contains(t, out, "▶ deploy")
	assert.Contains(t, out, "→ build")
	assert.Contains(t, out, "✓ build (1.5s)")
	assert.Contains(t, out, "- notify (skipped)")
	assert.Contains(t, out, "✗ push: denied")
	assert.Contains(t, out, "✖ deploy failed: step 2 (push): denied")
}

func TestRendererDepthIndents(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	r := NewRenderer(&buf, false)

	r.Handle(events.Event{Type: events.ExecutionStart, WorkflowName: "child", Depth: 1})

	assert.Contains(t, buf.String(), "  ▶ child")
}

func TestRendererUnnamedStep(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	r := NewRenderer(&buf, false)

	r.Handle(events.Event{Type: events.StepStart, Data: &events.StepData{StepIndex: 3}})

	assert.Contains(t, buf.String(), "→ step 3")
}

func TestRendererQuiet(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	r := NewRenderer(&buf, true)

	r.Handle(events.Event{Type: events.ExecutionStart, WorkflowName: "deploy"})
	r.Handle(events.Event{Type: events.ExecutionComplete, WorkflowName: "deploy"})

	assert.Zero(t, buf.Len())
}
