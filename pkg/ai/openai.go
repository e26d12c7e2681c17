// SPDX-FileCopyrightText: Copyright 2026 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package ai

import (
	"context"
	"fmt"

	openai "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/shared"

	"github.com/stacklok/flowhive/pkg/engine"
)

// defaultOpenAIModel is used when neither the config nor the step names one.
const defaultOpenAIModel = "gpt-4o-mini"

// OpenAIProvider implements Provider on the OpenAI chat completions API.
// A non-empty base URL points it at any OpenAI-compatible service, which
// is how the "custom" provider option is realized.
type OpenAIProvider struct {
	client openai.Client
	model  string
	name   string
}

// NewOpenAI creates an OpenAI-backed provider. An empty model selects the
// package default; a non-empty baseURL targets a compatible service.
func NewOpenAI(apiKey, model, baseURL string) *OpenAIProvider {
	opts := []option.RequestOption{option.WithAPIKey(apiKey)}
	name := "openai"
	if baseURL != "" {
		opts = append(opts, option.WithBaseURL(baseURL))
		name = "custom"
	}
	if model == "" {
		model = defaultOpenAIModel
	}
	return &OpenAIProvider{
		client: openai.NewClient(opts...),
		model:  model,
		name:   name,
	}
}

var _ Provider = (*OpenAIProvider)(nil)

// Name implements Provider.
func (p *OpenAIProvider) Name() string { return p.name }

// Generate implements Provider.
func (p *OpenAIProvider) Generate(ctx context.Context, req Request) (string, error) {
	model := req.Model
	if model == "" {
		model = p.model
	}
	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = defaultMaxTokens
	}

	var messages []openai.ChatCompletionMessageParamUnion
	if req.System != "" {
		messages = append(messages, openai.SystemMessage(req.System))
	}
	messages = append(messages, openai.UserMessage(req.Prompt))

	params := openai.ChatCompletionNewParams{
		Model:               shared.ChatModel(model),
		Messages:            messages,
		MaxCompletionTokens: openai.Int(int64(maxTokens)),
	}
	if req.Temperature > 0 {
		params.Temperature = openai.Float(req.Temperature)
	}

	completion, err := p.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return "", fmt.Errorf("%w: %s: %v", engine.ErrProvider, p.name, err)
	}
	if len(completion.Choices) == 0 || completion.Choices[0].Message.Content == "" {
		return "", fmt.Errorf("%w: %s returned no completion", engine.ErrProvider, p.name)
	}
	return completion.Choices[0].Message.Content, nil
}
