// SPDX-FileCopyrightText: Copyright 2026 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package ui renders workflow progress events for the terminal.
package ui

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/stacklok/flowhive/pkg/engine/events"
)

var (
	titleStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("99"))
	successStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
	failureStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
	skipStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	stepStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("170"))
)

// Renderer prints a line per progress event, indented by composition
// depth. It is safe to register on an event bus; the executor publishes
// events sequentially.
type Renderer struct {
	out   io.Writer
	quiet bool
}

// NewRenderer creates a renderer writing to out. Quiet renderers drop
// everything.
func NewRenderer(out io.Writer, quiet bool) *Renderer {
	return &Renderer{out: out, quiet: quiet}
}

// Handle renders one event. It has the events.Handler signature.
func (r *Renderer) Handle(evt events.Event) {
	if r.quiet {
		return
	}

	indent := strings.Repeat("  ", evt.Depth)

	switch evt.Type {
	case events.ExecutionStart:
		fmt.Fprintf(r.out, "%s%s\n", indent, titleStyle.Render("▶ "+evt.WorkflowName))
	case events.StepStart:
		fmt.Fprintf(r.out, "%s  %s\n", indent, stepStyle.Render("→ "+stepLabel(evt)))
	case events.StepComplete:
		fmt.Fprintf(r.out, "%s  %s\n", indent, successStyle.Render("✓ "+stepLabel(evt)+stepDuration(evt)))
	case events.StepFailed:
		fmt.Fprintf(r.out, "%s  %s\n", indent, failureStyle.Render("✗ "+stepLabel(evt)+": "+eventError(evt)))
	case events.StepSkipped:
		fmt.Fprintf(r.out, "%s  %s\n", indent, skipStyle.Render("- "+stepLabel(evt)+" (skipped)"))
	case events.ExecutionComplete:
		fmt.Fprintf(r.out, "%s%s\n", indent, successStyle.Render("✔ "+evt.WorkflowName+" completed"))
	case events.ExecutionFailed:
		fmt.Fprintf(r.out, "%s%s\n", indent, failureStyle.Render("✖ "+evt.WorkflowName+" failed: "+eventError(evt)))
	case events.ChildStart, events.ChildComplete:
		// The child execution prints its own lifecycle.
	}
}

func stepLabel(evt events.Event) string {
	if evt.Data == nil {
		return "step"
	}
	if evt.Data.StepName != "" {
		return evt.Data.StepName
	}
	return fmt.Sprintf("step %d", evt.Data.StepIndex)
}

func stepDuration(evt events.Event) string {
	if evt.Data == nil || evt.Data.Duration == nil {
		return ""
	}
	d := time.Duration(*evt.Data.Duration) * time.Millisecond
	return fmt.Sprintf(" (%s)", d.Round(time.Millisecond))
}

func eventError(evt events.Event) string {
	if evt.Data == nil || evt.Data.Error == "" {
		return "unknown error"
	}
	return evt.Data.Error
}
