// SPDX-FileCopyrightText: Copyright 2026 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"context"
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// ResolveProvider returns the effective provider settings, layering (in
// rising priority) the config file, a .env file in the working
// directory, and process environment variables. Recognized variables:
// FLOWHIVE_PROVIDER, FLOWHIVE_API_KEY, FLOWHIVE_MODEL, FLOWHIVE_BASE_URL,
// with ANTHROPIC_API_KEY / OPENAI_API_KEY as provider-specific key
// fallbacks.
func ResolveProvider(ctx context.Context, store Store) (*Config, error) {
	// godotenv never overrides variables already set in the process, so
	// real environment variables keep priority over .env entries.
	_ = godotenv.Load()

	cfg, err := store.Load(ctx)
	if err != nil {
		return nil, err
	}

	v := viper.New()
	v.SetEnvPrefix("flowhive")
	v.AutomaticEnv()
	if value := v.GetString("provider"); value != "" {
		cfg.Provider = value
	}
	if value := v.GetString("api_key"); value != "" {
		cfg.APIKey = value
	}
	if value := v.GetString("model"); value != "" {
		cfg.Model = value
	}
	if value := v.GetString("base_url"); value != "" {
		cfg.BaseURL = value
	}

	if cfg.APIKey == "" {
		switch cfg.Provider {
		case ProviderClaude:
			cfg.APIKey = os.Getenv("ANTHROPIC_API_KEY")
		case ProviderOpenAI, ProviderCustom:
			cfg.APIKey = os.Getenv("OPENAI_API_KEY")
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("resolving provider config: %w", err)
	}
	return cfg, nil
}
