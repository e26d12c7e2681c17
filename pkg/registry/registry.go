// SPDX-FileCopyrightText: Copyright 2026 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package registry resolves workflow documents by name. The local
// registry is a directory of YAML files; installation copies documents
// into it from files, directories, or git repositories.
package registry

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/stacklok/flowhive/pkg/engine"
	"github.com/stacklok/flowhive/pkg/workflow"
)

//go:generate mockgen -destination=mocks/mock_registry.go -package=mocks -source=registry.go Registry

// Registry resolves and lists installed workflow documents.
type Registry interface {
	// Get returns the workflow with the given name. Returns an error
	// wrapping engine.ErrNotFound when no such workflow is installed.
	Get(ctx context.Context, name string) (*workflow.Workflow, error)

	// List returns all installed workflows sorted by name.
	List(ctx context.Context) ([]*workflow.Workflow, error)
}

// Manager extends Registry with installation operations.
type Manager interface {
	Registry

	// Install adds workflow documents from a source (file path, directory,
	// or git URL) and returns the names installed.
	Install(ctx context.Context, source string) ([]string, error)

	// Uninstall removes the named workflow.
	Uninstall(ctx context.Context, name string) error
}

// MemoryRegistry is an in-process Registry for tests and embedded callers
// that assemble workflows programmatically.
type MemoryRegistry struct {
	mu        sync.RWMutex
	workflows map[string]*workflow.Workflow
}

// NewMemoryRegistry creates a registry preloaded with the given workflows.
func NewMemoryRegistry(workflows ...*workflow.Workflow) *MemoryRegistry {
	r := &MemoryRegistry{workflows: make(map[string]*workflow.Workflow)}
	for _, wf := range workflows {
		r.workflows[wf.Name] = wf
	}
	return r
}

var _ Registry = (*MemoryRegistry)(nil)

// Add registers or replaces a workflow.
func (r *MemoryRegistry) Add(wf *workflow.Workflow) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.workflows[wf.Name] = wf
}

// Get implements Registry.
func (r *MemoryRegistry) Get(_ context.Context, name string) (*workflow.Workflow, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	wf, ok := r.workflows[name]
	if !ok {
		return nil, fmt.Errorf("%w: workflow %q", engine.ErrNotFound, name)
	}
	return wf, nil
}

// List implements Registry.
func (r *MemoryRegistry) List(_ context.Context) ([]*workflow.Workflow, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*workflow.Workflow, 0, len(r.workflows))
	for _, wf := range r.workflows {
		out = append(out, wf)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}
