// SPDX-FileCopyrightText: Copyright 2026 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package ai

import (
	"context"
	"fmt"
	"strings"

	sdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/stacklok/flowhive/pkg/engine"
)

// defaultClaudeModel is used when neither the config nor the step names one.
const defaultClaudeModel = "claude-sonnet-4-5"

// MessagesClient captures the subset of the Anthropic SDK used here. It
// is satisfied by *sdk.MessageService, so tests can pass a fake.
type MessagesClient interface {
	New(ctx context.Context, body sdk.MessageNewParams, opts ...option.RequestOption) (*sdk.Message, error)
}

// ClaudeProvider implements Provider on the Anthropic Messages API.
type ClaudeProvider struct {
	msg   MessagesClient
	model string
}

// NewClaude creates a Claude-backed provider. An empty model selects the
// package default.
func NewClaude(apiKey, model string) *ClaudeProvider {
	client := sdk.NewClient(option.WithAPIKey(apiKey))
	return NewClaudeWithClient(&client.Messages, model)
}

// NewClaudeWithClient creates a provider over an injected messages client.
func NewClaudeWithClient(msg MessagesClient, model string) *ClaudeProvider {
	if model == "" {
		model = defaultClaudeModel
	}
	return &ClaudeProvider{msg: msg, model: model}
}

var _ Provider = (*ClaudeProvider)(nil)

// Name implements Provider.
func (*ClaudeProvider) Name() string { return "claude" }

// Generate implements Provider.
func (p *ClaudeProvider) Generate(ctx context.Context, req Request) (string, error) {
	model := req.Model
	if model == "" {
		model = p.model
	}
	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = defaultMaxTokens
	}

	params := sdk.MessageNewParams{
		Model:     sdk.Model(model),
		MaxTokens: int64(maxTokens),
		Messages: []sdk.MessageParam{
			sdk.NewUserMessage(sdk.NewTextBlock(req.Prompt)),
		},
	}
	if req.System != "" {
		params.System = []sdk.TextBlockParam{{Text: req.System}}
	}
	if req.Temperature > 0 {
		params.Temperature = sdk.Float(req.Temperature)
	}

	msg, err := p.msg.New(ctx, params)
	if err != nil {
		return "", fmt.Errorf("%w: claude: %v", engine.ErrProvider, err)
	}

	var parts []string
	for _, block := range msg.Content {
		if block.Type == "text" && block.Text != "" {
			parts = append(parts, block.Text)
		}
	}
	if len(parts) == 0 {
		return "", fmt.Errorf("%w: claude returned no text content", engine.ErrProvider)
	}
	return strings.Join(parts, "\n"), nil
}
