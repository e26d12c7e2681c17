// SPDX-FileCopyrightText: Copyright 2026 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path"
	"time"

	"github.com/gofrs/flock"

	"github.com/stacklok/flowhive/pkg/logger"
)

// lockTimeout is the maximum time to wait for a file lock
const lockTimeout = 1 * time.Second

// Store defines the interface for configuration storage operations
type Store interface {
	// Load loads the configuration from storage
	Load(ctx context.Context) (*Config, error)
	// Save saves the configuration to storage
	Save(ctx context.Context, config *Config) error
	// Exists checks if configuration exists in storage
	Exists(ctx context.Context) (bool, error)
	// Update performs a locked update operation on the configuration
	Update(ctx context.Context, updateFn func(*Config)) error
}

// LocalStore implements Store using the local file system.
type LocalStore struct {
	configPath string
}

// NewLocalStore creates a new local file-based configuration store.
// An empty path uses the default config location.
func NewLocalStore(configPath string) *LocalStore {
	return &LocalStore{configPath: configPath}
}

func (s *LocalStore) resolvePath() (string, error) {
	if s.configPath != "" {
		return s.configPath, nil
	}
	return getConfigPath()
}

// Load loads configuration from the local file, creating an empty
// default config when none exists yet.
func (s *LocalStore) Load(_ context.Context) (*Config, error) {
	configPath, err := s.resolvePath()
	if err != nil {
		return nil, fmt.Errorf("unable to fetch config path: %w", err)
	}
	configPath = path.Clean(configPath)

	if _, err := os.Stat(configPath); err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("failed to stat config file: %w", err)
		}
		config := &Config{}
		logger.Debugf("initializing configuration file at %s", configPath)
		if err := writeConfig(configPath, config); err != nil {
			return nil, fmt.Errorf("failed to write default config: %w", err)
		}
		return config, nil
	}

	// #nosec G304: File path is not configurable at this time.
	raw, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("unable to read config file %s: %w", configPath, err)
	}
	var config Config
	if err := json.Unmarshal(raw, &config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config file %s: %w", configPath, err)
	}
	return &config, nil
}

// Save saves configuration to the local file.
func (s *LocalStore) Save(_ context.Context, config *Config) error {
	configPath, err := s.resolvePath()
	if err != nil {
		return fmt.Errorf("unable to fetch config path: %w", err)
	}
	return writeConfig(configPath, config)
}

// Exists checks if the local config file exists.
func (s *LocalStore) Exists(_ context.Context) (bool, error) {
	configPath, err := s.resolvePath()
	if err != nil {
		return false, fmt.Errorf("unable to fetch config path: %w", err)
	}
	if _, err := os.Stat(configPath); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return false, nil
		}
		return false, fmt.Errorf("failed to stat config file: %w", err)
	}
	return true, nil
}

// Update performs a locked update operation on the configuration.
func (s *LocalStore) Update(ctx context.Context, updateFn func(*Config)) error {
	configPath, err := s.resolvePath()
	if err != nil {
		return fmt.Errorf("unable to fetch config path: %w", err)
	}

	// Use a separate lock file for cross-platform compatibility
	lockPath := configPath + ".lock"
	fileLock := flock.New(lockPath)
	lockCtx, cancel := context.WithTimeout(ctx, lockTimeout)
	defer cancel()

	locked, err := fileLock.TryLockContext(lockCtx, 100*time.Millisecond)
	if err != nil {
		return fmt.Errorf("failed to acquire lock: %w", err)
	}
	if !locked {
		return fmt.Errorf("failed to acquire lock: timeout after %v", lockTimeout)
	}
	defer fileLock.Unlock()

	// Load after acquiring the lock to avoid clobbering concurrent writes.
	config, err := s.Load(ctx)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	updateFn(config)

	if err := config.Validate(); err != nil {
		return fmt.Errorf("rejecting config update: %w", err)
	}
	if err := s.Save(ctx, config); err != nil {
		return fmt.Errorf("failed to save config: %w", err)
	}
	return nil
}

func writeConfig(configPath string, config *Config) error {
	raw, err := json.MarshalIndent(config, "", "  ")
	if err != nil {
		return fmt.Errorf("error serializing config file: %w", err)
	}
	if err := os.WriteFile(configPath, append(raw, '\n'), 0600); err != nil {
		return fmt.Errorf("error writing config file: %w", err)
	}
	return nil
}
