// SPDX-FileCopyrightText: Copyright 2026 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package app

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stacklok/flowhive/pkg/registry"
	"github.com/stacklok/flowhive/pkg/workflow"
)

func TestParseSetValues(t *testing.T) {
	t.Parallel()

	values, err := parseSetValues([]string{"env=prod", "replicas=3", "verbose=true", "ratio=0.5"})
	require.NoError(t, err)
	assert.Equal(t, map[string]any{
		"env":      "prod",
		"replicas": float64(3),
		"verbose":  true,
		"ratio":    0.5,
	}, values)
}

func TestParseSetValues_Empty(t *testing.T) {
	t.Parallel()

	values, err := parseSetValues(nil)
	require.NoError(t, err)
	assert.Nil(t, values)
}

func TestParseSetValues_Invalid(t *testing.T) {
	t.Parallel()

	for _, pair := range []string{"noequals", "=value"} {
		_, err := parseSetValues([]string{pair})
		assert.Error(t, err, pair)
	}
}

func TestOverlayRegistry(t *testing.T) {
	t.Parallel()

	entry := &workflow.Workflow{Name: "entry"}
	installed := &workflow.Workflow{Name: "installed"}

	reg := &overlayRegistry{
		overlay:  registry.NewMemoryRegistry(entry),
		fallback: registry.NewMemoryRegistry(installed),
	}

	got, err := reg.Get(t.Context(), "entry")
	require.NoError(t, err)
	assert.Same(t, entry, got)

	got, err = reg.Get(t.Context(), "installed")
	require.NoError(t, err)
	assert.Same(t, installed, got)

	_, err = reg.Get(t.Context(), "missing")
	assert.Error(t, err)

	// List reflects only the installed set; the overlay is run-scoped.
	listed, err := reg.List(t.Context())
	require.NoError(t, err)
	require.Len(t, listed, 1)
	assert.Equal(t, "installed", listed[0].Name)
}

func TestShortID(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "0199aabb", shortID("0199aabb-cc00-dd11-ee22-ff3344556677"))
	assert.Equal(t, "short", shortID("short"))
}

func TestFormatDuration(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "-", formatDuration(nil))
	ms := int64(1500)
	assert.Equal(t, "1.5s", formatDuration(&ms))
}

func TestIsWorkflowFile(t *testing.T) {
	t.Parallel()

	assert.True(t, isWorkflowFile("deploy.yaml"))
	assert.True(t, isWorkflowFile("./flows/deploy.yml"))
	assert.False(t, isWorkflowFile("deploy"))
	assert.False(t, isWorkflowFile(t.TempDir()))
}
