// SPDX-FileCopyrightText: Copyright 2026 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package events provides the typed progress stream emitted during
// workflow execution. Handlers are invoked synchronously in subscription
// order, so per-execution emission order is exactly the executor's
// emission order; a handler that blocks blocks the executor.
package events

import (
	"sync"
	"time"

	"github.com/stacklok/flowhive/pkg/logger"
)

// Type identifies an execution or step lifecycle event.
type Type string

// Event types, in the order they occur for a single execution: an
// execution:start, then per step a step:start followed by exactly one of
// step:complete, step:failed or step:skipped (with child:start and
// child:complete sandwiching recursive sub-workflow runs), then one of
// execution:complete or execution:failed.
const (
	ExecutionStart    Type = "execution:start"
	ExecutionComplete Type = "execution:complete"
	ExecutionFailed   Type = "execution:failed"
	StepStart         Type = "step:start"
	StepComplete      Type = "step:complete"
	StepFailed        Type = "step:failed"
	StepSkipped       Type = "step:skipped"
	ChildStart        Type = "child:start"
	ChildComplete     Type = "child:complete"
)

// StepData carries the step-scoped payload of an event.
type StepData struct {
	StepIndex        int    `json:"step_index"`
	StepName         string `json:"step_name,omitempty"`
	Action           string `json:"action,omitempty"`
	Description      string `json:"description,omitempty"`
	Duration         *int64 `json:"duration,omitempty"`
	Error            string `json:"error,omitempty"`
	ChildExecutionID string `json:"child_execution_id,omitempty"`
	Output           any    `json:"output,omitempty"`
}

// Event is one entry in the progress stream.
type Event struct {
	Type         Type      `json:"type"`
	ExecutionID  string    `json:"execution_id"`
	WorkflowName string    `json:"workflow_name"`
	Timestamp    time.Time `json:"timestamp"`
	Depth        int       `json:"depth"`
	Data         *StepData `json:"data,omitempty"`
}

// Handler receives published events. Handlers must not assume they run on
// any particular goroutine beyond "the executor's".
type Handler func(Event)

type subscription struct {
	id int
	fn Handler
}

// Bus is an in-process publish-subscribe surface for progress events.
// The zero value is not usable; construct with NewBus.
type Bus struct {
	mu     sync.RWMutex
	nextID int
	subs   []subscription
}

// NewBus returns an empty bus.
func NewBus() *Bus {
	return &Bus{}
}

// Subscribe registers a handler and returns a function that removes it.
// Handlers are invoked in subscription order.
func (b *Bus) Subscribe(h Handler) func() {
	b.mu.Lock()
	defer b.mu.Unlock()

	id := b.nextID
	b.nextID++
	b.subs = append(b.subs, subscription{id: id, fn: h})

	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		for i, s := range b.subs {
			if s.id == id {
				b.subs = append(b.subs[:i], b.subs[i+1:]...)
				return
			}
		}
	}
}

// Publish delivers the event to every subscribed handler, synchronously
// and in subscription order. A panicking handler is recovered and logged;
// it never aborts execution or blocks subsequent emissions.
func (b *Bus) Publish(evt Event) {
	if evt.Timestamp.IsZero() {
		evt.Timestamp = time.Now().UTC()
	}

	b.mu.RLock()
	subs := make([]subscription, len(b.subs))
	copy(subs, b.subs)
	b.mu.RUnlock()

	for _, s := range subs {
		deliver(s.fn, evt)
	}
}

func deliver(h Handler, evt Event) {
	defer func() {
		if r := recover(); r != nil {
			logger.Errorf("progress handler panicked on %s event: %v", evt.Type, r)
		}
	}()
	h(evt)
}
