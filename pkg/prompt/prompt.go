// SPDX-FileCopyrightText: Copyright 2026 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package prompt collects answers from a human (or a scripted stand-in)
// during workflow execution.
package prompt

import (
	"context"
	"fmt"

	"github.com/stacklok/flowhive/pkg/engine"
)

// Request types understood by a Handler.
const (
	TypeText    = "text"
	TypeConfirm = "confirm"
	TypeSelect  = "select"
)

// Request describes a single question posed to the user.
type Request struct {
	// Message is the question shown to the user.
	Message string
	// Type is one of text, confirm or select. Empty means text.
	Type string
	// Default is used when the user submits an empty answer.
	Default string
	// Options lists the valid answers for select requests.
	Options []string
	// Dynamic asks for the raw answer to be reinterpreted by an LLM
	// provider when one is configured.
	Dynamic bool
}

// Response carries the user's answer.
type Response struct {
	// Raw is the answer exactly as entered.
	Raw string
	// Interpreted is the provider's reading of Raw for dynamic requests,
	// otherwise equal to Raw.
	Interpreted string
	// Confirmed is set for confirm requests.
	Confirmed bool
}

// Handler answers prompt requests. Implementations may talk to a
// terminal or replay scripted answers.
type Handler interface {
	Ask(ctx context.Context, req Request) (Response, error)
	Confirm(ctx context.Context, message string, defaultValue bool) (bool, error)
	Select(ctx context.Context, message string, options []string) (string, error)
}

//go:generate mockgen -destination=mocks/mock_handler.go -package=mocks -source=prompt.go Handler

func normalize(req Request) (Request, error) {
	if req.Type == "" {
		req.Type = TypeText
	}
	switch req.Type {
	case TypeText, TypeConfirm, TypeSelect:
	default:
		return req, fmt.Errorf("%w: unknown prompt type %q", engine.ErrValidation, req.Type)
	}
	if req.Type == TypeSelect && len(req.Options) == 0 {
		return req, fmt.Errorf("%w: select prompt requires options", engine.ErrValidation)
	}
	return req, nil
}

// parseConfirm maps a typed answer to a boolean. Empty input falls back
// to the default.
func parseConfirm(answer string, defaultValue bool) (bool, bool) {
	switch answer {
	case "":
		return defaultValue, true
	case "y", "Y", "yes", "Yes", "YES":
		return true, true
	case "n", "N", "no", "No", "NO":
		return false, true
	}
	return false, false
}

func validOption(answer string, options []string) bool {
	for _, opt := range options {
		if answer == opt {
			return true
		}
	}
	return false
}
