// SPDX-FileCopyrightText: Copyright 2026 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package prompt

import (
	"context"
	"fmt"
	"sync"

	"github.com/stacklok/flowhive/pkg/engine"
)

// AutoResponder replays scripted answers in order. It backs --no-input
// runs and tests. When the script is exhausted the request default is
// used; a request with no default fails.
type AutoResponder struct {
	mu      sync.Mutex
	answers []string
}

// NewAutoResponder creates a responder with a fixed answer script.
func NewAutoResponder(answers ...string) *AutoResponder {
	return &AutoResponder{answers: answers}
}

// Ask implements Handler.
func (a *AutoResponder) Ask(_ context.Context, req Request) (Response, error) {
	req, err := normalize(req)
	if err != nil {
		return Response{}, err
	}

	raw, scripted := a.next()
	if !scripted {
		if req.Default == "" && req.Type != TypeConfirm {
			return Response{}, fmt.Errorf("%w: no scripted answer and no default for prompt %q",
				engine.ErrValidation, req.Message)
		}
		raw = req.Default
	}
	if raw == "" && req.Default != "" {
		raw = req.Default
	}

	resp := Response{Raw: raw, Interpreted: raw}
	switch req.Type {
	case TypeConfirm:
		confirmed, ok := parseConfirm(raw, false)
		if !ok {
			return Response{}, fmt.Errorf("%w: expected yes or no, got %q", engine.ErrValidation, raw)
		}
		resp.Confirmed = confirmed
	case TypeSelect:
		if !validOption(raw, req.Options) {
			return Response{}, fmt.Errorf("%w: %q is not a valid option for prompt %q",
				engine.ErrValidation, raw, req.Message)
		}
	}
	return resp, nil
}

// Confirm implements Handler.
func (a *AutoResponder) Confirm(ctx context.Context, message string, defaultValue bool) (bool, error) {
	def := "no"
	if defaultValue {
		def = "yes"
	}
	resp, err := a.Ask(ctx, Request{Message: message, Type: TypeConfirm, Default: def})
	if err != nil {
		return false, err
	}
	return resp.Confirmed, nil
}

// Select implements Handler.
func (a *AutoResponder) Select(ctx context.Context, message string, options []string) (string, error) {
	resp, err := a.Ask(ctx, Request{Message: message, Type: TypeSelect, Options: options})
	if err != nil {
		return "", err
	}
	return resp.Raw, nil
}

// Remaining reports how many scripted answers are left unconsumed.
func (a *AutoResponder) Remaining() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.answers)
}

func (a *AutoResponder) next() (string, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if len(a.answers) == 0 {
		return "", false
	}
	answer := a.answers[0]
	a.answers = a.answers[1:]
	return answer, true
}
