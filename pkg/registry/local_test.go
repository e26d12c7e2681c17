// SPDX-FileCopyrightText: Copyright 2026 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package registry

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stacklok/flowhive/pkg/engine"
	"github.com/stacklok/flowhive/pkg/workflow"
)

const helloWorkflow = `name: hello
description: Say hello
steps:
  - id: greet
    action: log.info
    params:
      message: "hello"
`

const triageWorkflow = `name: triage
steps:
  - id: fetch
    action: github.get_issue
    params:
      number: "{{config.number}}"
`

func newTestRegistry(t *testing.T) *LocalRegistry {
	t.Helper()
	reg, err := NewLocalRegistry(filepath.Join(t.TempDir(), "workflows"))
	require.NoError(t, err)
	return reg
}

func writeWorkflowFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0600))
	return path
}

func TestLocalRegistry_InstallFile(t *testing.T) {
	t.Parallel()
	reg := newTestRegistry(t)
	ctx := t.Context()

	source := writeWorkflowFile(t, t.TempDir(), "anything.yml", helloWorkflow)
	installed, err := reg.Install(ctx, source)
	require.NoError(t, err)
	assert.Equal(t, []string{"hello"}, installed)

	// The installed file is named after the document, not the source.
	_, err = os.Stat(filepath.Join(reg.Dir(), "hello.yaml"))
	require.NoError(t, err)

	wf, err := reg.Get(ctx, "hello")
	require.NoError(t, err)
	assert.Equal(t, "hello", wf.Name)
	require.Len(t, wf.Steps, 1)
	assert.Equal(t, "log.info", wf.Steps[0].Action)
}

func TestLocalRegistry_InstallDirectory(t *testing.T) {
	t.Parallel()
	reg := newTestRegistry(t)
	ctx := t.Context()

	srcDir := t.TempDir()
	writeWorkflowFile(t, srcDir, "a.yaml", helloWorkflow)
	writeWorkflowFile(t, srcDir, "b.yaml", triageWorkflow)
	writeWorkflowFile(t, srcDir, "broken.yaml", "steps: {not: [valid")
	writeWorkflowFile(t, srcDir, "notes.txt", "not a workflow")

	installed, err := reg.Install(ctx, srcDir)
	require.NoError(t, err)
	assert.Equal(t, []string{"hello", "triage"}, installed, "invalid documents are skipped")

	workflows, err := reg.List(ctx)
	require.NoError(t, err)
	require.Len(t, workflows, 2)
	assert.Equal(t, "hello", workflows[0].Name)
	assert.Equal(t, "triage", workflows[1].Name)
}

func TestLocalRegistry_InstallInvalidFile(t *testing.T) {
	t.Parallel()
	reg := newTestRegistry(t)

	source := writeWorkflowFile(t, t.TempDir(), "bad.yaml", "name: no-steps\nsteps: []\n")
	_, err := reg.Install(t.Context(), source)
	require.ErrorIs(t, err, engine.ErrValidation)
}

func TestLocalRegistry_Uninstall(t *testing.T) {
	t.Parallel()
	reg := newTestRegistry(t)
	ctx := t.Context()

	source := writeWorkflowFile(t, t.TempDir(), "wf.yaml", helloWorkflow)
	_, err := reg.Install(ctx, source)
	require.NoError(t, err)

	require.NoError(t, reg.Uninstall(ctx, "hello"))

	_, err = reg.Get(ctx, "hello")
	require.ErrorIs(t, err, engine.ErrNotFound)

	err = reg.Uninstall(ctx, "hello")
	require.ErrorIs(t, err, engine.ErrNotFound)
}

func TestLocalRegistry_GetNotFound(t *testing.T) {
	t.Parallel()
	reg := newTestRegistry(t)

	_, err := reg.Get(t.Context(), "missing")
	require.ErrorIs(t, err, engine.ErrNotFound)
}

func TestMemoryRegistry(t *testing.T) {
	t.Parallel()
	ctx := t.Context()

	wf := &workflow.Workflow{
		Name:  "inline",
		Steps: []workflow.Step{{ID: "s", Action: "log.info"}},
	}
	reg := NewMemoryRegistry(wf)

	got, err := reg.Get(ctx, "inline")
	require.NoError(t, err)
	assert.Same(t, wf, got)

	_, err = reg.Get(ctx, "absent")
	require.ErrorIs(t, err, engine.ErrNotFound)

	reg.Add(&workflow.Workflow{Name: "another", Steps: []workflow.Step{{Action: "log.info"}}})
	all, err := reg.List(ctx)
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, "another", all[0].Name)
	assert.Equal(t, "inline", all[1].Name)
}
