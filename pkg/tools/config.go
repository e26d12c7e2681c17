// SPDX-FileCopyrightText: Copyright 2026 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package tools

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/tailscale/hujson"
)

// ServerConfig describes how to spawn one tool server subprocess.
type ServerConfig struct {
	Command string            `json:"command"`
	Args    []string          `json:"args,omitempty"`
	Env     map[string]string `json:"env,omitempty"`
}

// LoadServerConfigs reads the tool-server config file. A missing file is
// not an error: it returns an empty map, which puts the client in
// stub-only mode. The file may carry comments and trailing commas.
func LoadServerConfigs(path string) (map[string]ServerConfig, error) {
	data, err := os.ReadFile(path) // #nosec G304 -- path comes from the config home
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return map[string]ServerConfig{}, nil
		}
		return nil, fmt.Errorf("reading tool server config: %w", err)
	}

	standardized, err := hujson.Standardize(data)
	if err != nil {
		return nil, fmt.Errorf("parsing tool server config %s: %w", path, err)
	}

	var configs map[string]ServerConfig
	if err := json.Unmarshal(standardized, &configs); err != nil {
		return nil, fmt.Errorf("decoding tool server config %s: %w", path, err)
	}
	return configs, nil
}

// expandEnv resolves "${VAR}" references in the env map against the
// process environment (empty when unset) and renders KEY=VALUE pairs.
func expandEnv(env map[string]string) []string {
	pairs := make([]string, 0, len(env))
	for key, value := range env {
		pairs = append(pairs, key+"="+os.Expand(value, os.Getenv))
	}
	return pairs
}
