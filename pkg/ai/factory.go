// SPDX-FileCopyrightText: Copyright 2026 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package ai

import (
	"fmt"

	"github.com/stacklok/flowhive/pkg/engine"
)

// Provider request budget applied to every configured provider.
const (
	providerRPS   = 2.0
	providerBurst = 4
)

// FromConfig builds the configured provider. Returns nil without error
// when no provider is configured, in which case ai.* steps fail at
// dispatch time rather than at startup.
func FromConfig(provider, apiKey, model, baseURL string) (Provider, error) {
	if provider == "" {
		return nil, nil
	}
	if apiKey == "" {
		return nil, fmt.Errorf("%w: provider %q configured without api_key", engine.ErrProvider, provider)
	}

	var p Provider
	switch provider {
	case "claude":
		p = NewClaude(apiKey, model)
	case "openai":
		p = NewOpenAI(apiKey, model, "")
	case "custom":
		if baseURL == "" {
			return nil, fmt.Errorf("%w: custom provider requires base_url", engine.ErrProvider)
		}
		p = NewOpenAI(apiKey, model, baseURL)
	default:
		return nil, fmt.Errorf("%w: unknown provider %q", engine.ErrProvider, provider)
	}

	return NewRateLimited(p, providerRPS, providerBurst), nil
}
