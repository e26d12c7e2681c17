// SPDX-FileCopyrightText: Copyright 2026 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package prompt

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"golang.org/x/term"

	"github.com/stacklok/flowhive/pkg/ai"
	"github.com/stacklok/flowhive/pkg/engine"
	"github.com/stacklok/flowhive/pkg/logger"
)

// Console prompts on the terminal. When stdin is a TTY it renders an
// interactive bubbletea prompt; otherwise it falls back to plain
// line-oriented reads so piped input still works.
type Console struct {
	in       io.Reader
	out      io.Writer
	provider ai.Provider
	// forcePlain skips terminal detection when streams are overridden.
	forcePlain bool
}

// ConsoleOption configures a Console.
type ConsoleOption func(*Console)

// WithProvider enables dynamic reinterpretation of raw answers.
func WithProvider(p ai.Provider) ConsoleOption {
	return func(c *Console) {
		c.provider = p
	}
}

// WithStreams overrides stdin/stdout, forcing the plain line-reading
// path. Used by tests and non-terminal environments.
func WithStreams(in io.Reader, out io.Writer) ConsoleOption {
	return func(c *Console) {
		c.in = in
		c.out = out
		c.forcePlain = true
	}
}

// NewConsole creates a terminal prompt handler.
func NewConsole(opts ...ConsoleOption) *Console {
	c := &Console{
		in:  os.Stdin,
		out: os.Stdout,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Ask implements Handler.
func (c *Console) Ask(ctx context.Context, req Request) (Response, error) {
	req, err := normalize(req)
	if err != nil {
		return Response{}, err
	}

	var resp Response
	if c.interactive() {
		resp, err = c.askInteractive(req)
	} else {
		resp, err = c.askPlain(ctx, req)
	}
	if err != nil {
		return Response{}, err
	}

	return c.finish(ctx, req, resp)
}

// Confirm implements Handler.
func (c *Console) Confirm(ctx context.Context, message string, defaultValue bool) (bool, error) {
	def := "no"
	if defaultValue {
		def = "yes"
	}
	resp, err := c.Ask(ctx, Request{Message: message, Type: TypeConfirm, Default: def})
	if err != nil {
		return false, err
	}
	return resp.Confirmed, nil
}

// Select implements Handler.
func (c *Console) Select(ctx context.Context, message string, options []string) (string, error) {
	resp, err := c.Ask(ctx, Request{Message: message, Type: TypeSelect, Options: options})
	if err != nil {
		return "", err
	}
	return resp.Raw, nil
}

func (c *Console) interactive() bool {
	if c.forcePlain {
		return false
	}
	f, ok := c.in.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}

// finish resolves defaults, confirm parsing and dynamic reinterpretation
// shared by both input paths.
func (c *Console) finish(ctx context.Context, req Request, resp Response) (Response, error) {
	if resp.Raw == "" && req.Default != "" {
		resp.Raw = req.Default
	}
	resp.Interpreted = resp.Raw

	switch req.Type {
	case TypeConfirm:
		confirmed, ok := parseConfirm(resp.Raw, false)
		if !ok {
			return Response{}, fmt.Errorf("%w: expected yes or no, got %q", engine.ErrValidation, resp.Raw)
		}
		resp.Confirmed = confirmed
	case TypeSelect:
		if !validOption(resp.Raw, req.Options) {
			return Response{}, fmt.Errorf("%w: %q is not one of %s",
				engine.ErrValidation, resp.Raw, strings.Join(req.Options, ", "))
		}
	}

	if req.Dynamic && c.provider != nil && req.Type == TypeText && resp.Raw != "" {
		interpreted, err := ai.Interpret(ctx, c.provider, resp.Raw, req.Message)
		if err != nil {
			logger.Warnf("Failed to reinterpret answer, keeping raw value: %v", err)
		} else {
			resp.Interpreted = interpreted
		}
	}
	return resp, nil
}

func (c *Console) askInteractive(req Request) (Response, error) {
	var (
		raw       string
		cancelled bool
		err       error
	)
	switch req.Type {
	case TypeSelect:
		raw, cancelled, err = runSelectModel(req.Message, req.Options)
	default:
		raw, cancelled, err = runTextModel(req.Message, req.Default, req.Type == TypeConfirm)
	}
	if err != nil {
		return Response{}, fmt.Errorf("prompt error: %w", err)
	}
	if cancelled {
		return Response{}, fmt.Errorf("%w: prompt cancelled", engine.ErrCancelled)
	}
	return Response{Raw: raw}, nil
}

func (c *Console) askPlain(ctx context.Context, req Request) (Response, error) {
	fmt.Fprint(c.out, renderPlainPrompt(req))

	type lineResult struct {
		line string
		err  error
	}
	ch := make(chan lineResult, 1)
	go func() {
		reader := bufio.NewReader(c.in)
		line, err := reader.ReadString('\n')
		if err != nil && line == "" {
			ch <- lineResult{err: err}
			return
		}
		ch <- lineResult{line: strings.TrimSpace(line)}
	}()

	select {
	case <-ctx.Done():
		return Response{}, fmt.Errorf("%w: prompt cancelled", engine.ErrCancelled)
	case res := <-ch:
		if res.err != nil {
			if res.err == io.EOF {
				// Exhausted piped input counts as an empty answer.
				return Response{Raw: ""}, nil
			}
			return Response{}, fmt.Errorf("failed to read answer: %w", res.err)
		}
		return Response{Raw: res.line}, nil
	}
}

func renderPlainPrompt(req Request) string {
	var b strings.Builder
	b.WriteString(req.Message)
	switch req.Type {
	case TypeConfirm:
		if req.Default == "yes" || req.Default == "y" {
			b.WriteString(" [Y/n]")
		} else {
			b.WriteString(" [y/N]")
		}
	case TypeSelect:
		b.WriteString(" (")
		b.WriteString(strings.Join(req.Options, "/"))
		b.WriteString(")")
	default:
		if req.Default != "" {
			fmt.Fprintf(&b, " [%s]", req.Default)
		}
	}
	b.WriteString(": ")
	return b.String()
}

func runTextModel(message, defaultValue string, confirm bool) (string, bool, error) {
	model := newTextPromptModel(message, defaultValue, confirm)
	p := tea.NewProgram(model)
	finalModel, err := p.Run()
	if err != nil {
		return "", false, err
	}
	m := finalModel.(*textPromptModel)
	return m.Value(), m.Cancelled, nil
}

func runSelectModel(message string, options []string) (string, bool, error) {
	model := newSelectPromptModel(message, options)
	p := tea.NewProgram(model)
	finalModel, err := p.Run()
	if err != nil {
		return "", false, err
	}
	m := finalModel.(*selectPromptModel)
	return m.Value(), m.Cancelled, nil
}
