// SPDX-FileCopyrightText: Copyright 2026 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package tools

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stacklok/flowhive/pkg/engine"
)

func newStubOnlyManager(t *testing.T) *Manager {
	t.Helper()
	// Point at a nonexistent config file: stub-only mode.
	m := NewManager(filepath.Join(t.TempDir(), "mcp-servers.json"))
	t.Cleanup(m.Shutdown)
	return m
}

func TestConnect_StubFallback(t *testing.T) {
	t.Parallel()
	m := newStubOnlyManager(t)
	ctx := t.Context()

	require.NoError(t, m.Connect(ctx, "github"))
	assert.True(t, m.IsConnected("github"))

	// Idempotent.
	require.NoError(t, m.Connect(ctx, "github"))

	require.NoError(t, m.Disconnect("github"))
	assert.False(t, m.IsConnected("github"))
}

func TestConnect_UnknownServer(t *testing.T) {
	t.Parallel()
	m := newStubOnlyManager(t)

	err := m.Connect(t.Context(), "does-not-exist")
	require.ErrorIs(t, err, engine.ErrTool)
}

func TestCallTool_StubGitHub(t *testing.T) {
	t.Parallel()
	m := newStubOnlyManager(t)
	ctx := t.Context()

	require.NoError(t, m.Connect(ctx, "github"))

	result, err := m.CallTool(ctx, "github", "get_issue", map[string]any{"number": float64(42)})
	require.NoError(t, err)
	assert.Equal(t, float64(42), result["number"])
	assert.Equal(t, "Stub issue #42", result["title"])
	assert.Equal(t, "open", result["state"])
}

func TestCallTool_NotConnected(t *testing.T) {
	t.Parallel()
	m := newStubOnlyManager(t)

	_, err := m.CallTool(t.Context(), "git", "git_status", nil)
	require.ErrorIs(t, err, engine.ErrTool)
	assert.Contains(t, err.Error(), "not connected")
}

func TestListTools_Stub(t *testing.T) {
	t.Parallel()
	m := newStubOnlyManager(t)
	ctx := t.Context()

	require.NoError(t, m.Connect(ctx, "git"))

	descriptors, err := m.ListTools(ctx, "git")
	require.NoError(t, err)

	names := make([]string, 0, len(descriptors))
	for _, d := range descriptors {
		names = append(names, d.Name)
	}
	assert.Contains(t, names, "git_status")
	assert.Contains(t, names, "git_log")
	assert.Contains(t, names, "git_diff")
	for _, d := range descriptors {
		assert.Equal(t, "object", d.InputSchema["type"])
	}
}

func TestAutoConnect(t *testing.T) {
	t.Parallel()
	m := newStubOnlyManager(t)

	require.NoError(t, m.AutoConnect(t.Context(), []string{"git", "github", "filesystem"}))
	assert.True(t, m.IsConnected("git"))
	assert.True(t, m.IsConnected("github"))
	assert.True(t, m.IsConnected("filesystem"))

	err := m.AutoConnect(t.Context(), []string{"git", "nope"})
	require.ErrorIs(t, err, engine.ErrTool)
}

func TestConvertResult(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		result  *mcp.CallToolResult
		want    map[string]any
		wantErr error
	}{
		{
			name: "json object text",
			result: &mcp.CallToolResult{
				Content: []mcp.Content{mcp.NewTextContent(`{"branch": "main", "clean": true}`)},
			},
			want: map[string]any{"branch": "main", "clean": true},
		},
		{
			name: "json array text",
			result: &mcp.CallToolResult{
				Content: []mcp.Content{mcp.NewTextContent(`[1, 2]`)},
			},
			want: map[string]any{"result": []any{float64(1), float64(2)}},
		},
		{
			name: "plain text",
			result: &mcp.CallToolResult{
				Content: []mcp.Content{mcp.NewTextContent("done")},
			},
			want: map[string]any{"result": "done"},
		},
		{
			name: "malformed json falls back to text",
			result: &mcp.CallToolResult{
				Content: []mcp.Content{mcp.NewTextContent(`{"oops`)},
			},
			want: map[string]any{"result": `{"oops`},
		},
		{
			name: "error result",
			result: &mcp.CallToolResult{
				IsError: true,
				Content: []mcp.Content{mcp.NewTextContent("boom")},
			},
			wantErr: engine.ErrTool,
		},
		{
			name:    "empty content",
			result:  &mcp.CallToolResult{},
			wantErr: engine.ErrProtocol,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got, err := convertResult("srv", "tool", tt.result)
			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestLoadServerConfigs(t *testing.T) {
	t.Parallel()

	t.Run("missing file means stub-only", func(t *testing.T) {
		t.Parallel()
		configs, err := LoadServerConfigs(filepath.Join(t.TempDir(), "absent.json"))
		require.NoError(t, err)
		assert.Empty(t, configs)
	})

	t.Run("tolerates comments and trailing commas", func(t *testing.T) {
		t.Parallel()
		path := filepath.Join(t.TempDir(), "mcp-servers.json")
		require.NoError(t, os.WriteFile(path, []byte(`{
			// local github server
			"github": {
				"command": "github-mcp",
				"args": ["--stdio"],
				"env": {"GITHUB_TOKEN": "${GITHUB_TOKEN}"},
			},
		}`), 0600))

		configs, err := LoadServerConfigs(path)
		require.NoError(t, err)
		require.Contains(t, configs, "github")
		assert.Equal(t, "github-mcp", configs["github"].Command)
		assert.Equal(t, []string{"--stdio"}, configs["github"].Args)
		assert.Equal(t, "${GITHUB_TOKEN}", configs["github"].Env["GITHUB_TOKEN"])
	})
}

func TestExpandEnv(t *testing.T) {
	t.Setenv("FLOWHIVE_TEST_TOKEN", "sekrit")

	pairs := expandEnv(map[string]string{
		"TOKEN": "${FLOWHIVE_TEST_TOKEN}",
		"UNSET": "${FLOWHIVE_TEST_MISSING}",
		"PLAIN": "value",
	})
	assert.ElementsMatch(t, []string{"TOKEN=sekrit", "UNSET=", "PLAIN=value"}, pairs)
}
