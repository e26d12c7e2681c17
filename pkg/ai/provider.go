// SPDX-FileCopyrightText: Copyright 2026 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package ai abstracts the LLM providers used by generative workflow
// steps and dynamic prompt reinterpretation.
package ai

import (
	"context"
	"fmt"
	"strings"
)

//go:generate mockgen -destination=mocks/mock_provider.go -package=mocks -source=provider.go Provider

// Request is one generation call.
type Request struct {
	Prompt string
	System string

	// Model overrides the provider's configured default when non-empty.
	Model string

	// Temperature is passed through when > 0.
	Temperature float64

	// MaxTokens caps the completion; 0 uses the provider default.
	MaxTokens int
}

// Provider generates text completions. Implementations are stateless
// between calls and safe for concurrent use.
type Provider interface {
	// Generate returns the completion text for the request. Errors wrap
	// engine.ErrProvider.
	Generate(ctx context.Context, req Request) (string, error)

	// Name identifies the provider for logging.
	Name() string
}

// defaultMaxTokens caps completions when the step does not set max_tokens.
const defaultMaxTokens = 1024

// Interpret asks the provider to reinterpret a raw value concisely,
// optionally with surrounding context.
func Interpret(ctx context.Context, p Provider, input, extraContext string) (string, error) {
	var b strings.Builder
	b.WriteString("Reinterpret the following input concisely. ")
	b.WriteString("Reply with only the interpreted value, no preamble.\n\n")
	if extraContext != "" {
		fmt.Fprintf(&b, "Context: %s\n\n", extraContext)
	}
	fmt.Fprintf(&b, "Input: %s", input)

	return p.Generate(ctx, Request{Prompt: b.String()})
}

// Summarize asks the provider for a summary of text, optionally bounded
// to roughly maxLength characters.
func Summarize(ctx context.Context, p Provider, text string, maxLength int) (string, error) {
	var b strings.Builder
	b.WriteString("Summarize the following text")
	if maxLength > 0 {
		fmt.Fprintf(&b, " in at most %d characters", maxLength)
	}
	b.WriteString(". Reply with only the summary.\n\n")
	b.WriteString(text)

	return p.Generate(ctx, Request{Prompt: b.String()})
}
