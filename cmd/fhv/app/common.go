// SPDX-FileCopyrightText: Copyright 2026 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package app

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/stacklok/flowhive/pkg/config"
	"github.com/stacklok/flowhive/pkg/registry"
	"github.com/stacklok/flowhive/pkg/storage"
	"github.com/stacklok/flowhive/pkg/storage/sqlite"
	"github.com/stacklok/flowhive/pkg/workflow"
)

// Output format constants.
const (
	FormatJSON = "json"
	FormatText = "text"
)

// openStore opens the execution store at the configured database path.
// The caller must call Close on the returned store.
func openStore(ctx context.Context) (storage.ExecutionStore, error) {
	dbPath, err := config.DBPath()
	if err != nil {
		return nil, fmt.Errorf("failed to resolve database path: %w", err)
	}
	db, err := sqlite.Open(ctx, dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	return sqlite.NewExecutionStore(db), nil
}

// openRegistry opens the local workflow registry at the configured
// workflows directory.
func openRegistry() (*registry.LocalRegistry, error) {
	dir, err := config.WorkflowsDir()
	if err != nil {
		return nil, fmt.Errorf("failed to resolve workflows directory: %w", err)
	}
	return registry.NewLocalRegistry(dir)
}

// parseSetValues turns repeated --set key=value flags into a config value
// map. Values that parse as JSON keep their type; everything else stays a
// string, so --set replicas=3 yields a number and --set env=prod a string.
func parseSetValues(pairs []string) (map[string]any, error) {
	if len(pairs) == 0 {
		return nil, nil
	}
	values := make(map[string]any, len(pairs))
	for _, pair := range pairs {
		key, raw, found := strings.Cut(pair, "=")
		if !found || key == "" {
			return nil, fmt.Errorf("invalid --set value %q (expected key=value)", pair)
		}
		var parsed any
		if err := json.Unmarshal([]byte(raw), &parsed); err == nil {
			values[key] = parsed
		} else {
			values[key] = raw
		}
	}
	return values, nil
}

// overlayRegistry resolves workflows from an in-memory overlay first and
// falls back to the installed registry. It lets `fhv run ./file.yaml`
// resolve sub-workflow references against the installed set.
type overlayRegistry struct {
	overlay  registry.Registry
	fallback registry.Registry
}

var _ registry.Registry = (*overlayRegistry)(nil)

func (r *overlayRegistry) Get(ctx context.Context, name string) (*workflow.Workflow, error) {
	if wf, err := r.overlay.Get(ctx, name); err == nil {
		return wf, nil
	}
	return r.fallback.Get(ctx, name)
}

func (r *overlayRegistry) List(ctx context.Context) ([]*workflow.Workflow, error) {
	return r.fallback.List(ctx)
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func formatDuration(ms *int64) string {
	if ms == nil {
		return "-"
	}
	return (time.Duration(*ms) * time.Millisecond).Round(time.Millisecond).String()
}

func formatStarted(t time.Time) string {
	return t.Local().Format("2006-01-02 15:04:05")
}
