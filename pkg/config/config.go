// SPDX-FileCopyrightText: Copyright 2026 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package config contains the definition of the application config
// structure and logic required to load and update it.
package config

import (
	"fmt"
	"path/filepath"

	"github.com/adrg/xdg"
)

// Providers accepted by the provider setting.
const (
	ProviderClaude = "claude"
	ProviderOpenAI = "openai"
	ProviderCustom = "custom"
)

// Config represents the persisted configuration of the application.
type Config struct {
	// Provider selects the LLM backend: claude, openai, or custom.
	// Empty disables LLM-backed steps.
	Provider string `json:"provider,omitempty"`

	// APIKey authenticates against the selected provider.
	APIKey string `json:"api_key,omitempty"`

	// Model overrides the provider's default model.
	Model string `json:"model,omitempty"`

	// BaseURL points custom (OpenAI-compatible) providers at their
	// endpoint.
	BaseURL string `json:"base_url,omitempty"`
}

// Validate checks the provider setting. An empty provider is valid and
// means no LLM is configured.
func (c *Config) Validate() error {
	switch c.Provider {
	case "", ProviderClaude, ProviderOpenAI, ProviderCustom:
	default:
		return fmt.Errorf("invalid provider: %s (valid providers: %s, %s, %s)",
			c.Provider, ProviderClaude, ProviderOpenAI, ProviderCustom)
	}
	if c.Provider == ProviderCustom && c.BaseURL == "" {
		return fmt.Errorf("provider %s requires base_url", ProviderCustom)
	}
	return nil
}

// defaultPathGenerator generates the default config path using xdg
var defaultPathGenerator = func() (string, error) {
	return xdg.ConfigFile("flowhive/config.json")
}

// getConfigPath is the current path generator, can be replaced in tests
var getConfigPath = defaultPathGenerator

// DBPath returns the path of the execution database.
func DBPath() (string, error) {
	return xdg.ConfigFile("flowhive/flowhive.db")
}

// MCPServersPath returns the path of the tool-server config file.
func MCPServersPath() (string, error) {
	return xdg.ConfigFile("flowhive/mcp-servers.json")
}

// WorkflowsDir returns the directory holding installed workflows.
func WorkflowsDir() (string, error) {
	// xdg resolves (and creates) paths to files, so anchor on a file
	// inside the directory and take its parent.
	anchor, err := xdg.ConfigFile("flowhive/workflows/anchor")
	if err != nil {
		return "", err
	}
	return filepath.Dir(anchor), nil
}
