// SPDX-FileCopyrightText: Copyright 2026 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package registry

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/go-git/go-git/v5"
	"github.com/gofrs/flock"

	"github.com/stacklok/flowhive/pkg/engine"
	"github.com/stacklok/flowhive/pkg/logger"
	"github.com/stacklok/flowhive/pkg/workflow"
)

// lockTimeout is the maximum time to wait for the registry file lock.
const lockTimeout = 1 * time.Second

// LocalRegistry is a Manager backed by a directory of YAML documents.
// Workflows are addressed by the name field inside the document, not by
// filename; installed files are named <workflow-name>.yaml.
type LocalRegistry struct {
	dir string
}

// NewLocalRegistry creates a registry rooted at dir, creating it if needed.
func NewLocalRegistry(dir string) (*LocalRegistry, error) {
	if err := os.MkdirAll(dir, 0750); err != nil {
		return nil, fmt.Errorf("creating registry directory: %w", err)
	}
	return &LocalRegistry{dir: dir}, nil
}

var _ Manager = (*LocalRegistry)(nil)

// Dir returns the registry's root directory.
func (r *LocalRegistry) Dir() string { return r.dir }

// Get implements Registry.
func (r *LocalRegistry) Get(ctx context.Context, name string) (*workflow.Workflow, error) {
	workflows, err := r.List(ctx)
	if err != nil {
		return nil, err
	}
	for _, wf := range workflows {
		if wf.Name == name {
			return wf, nil
		}
	}
	return nil, fmt.Errorf("%w: workflow %q", engine.ErrNotFound, name)
}

// List implements Registry. Files that fail to parse are skipped with a
// warning so one corrupt document does not hide the rest.
func (r *LocalRegistry) List(_ context.Context) ([]*workflow.Workflow, error) {
	paths, err := r.documentPaths()
	if err != nil {
		return nil, err
	}

	var workflows []*workflow.Workflow
	for _, path := range paths {
		wf, err := workflow.LoadFile(path)
		if err != nil {
			logger.Warnf("skipping unreadable workflow %s: %v", path, err)
			continue
		}
		workflows = append(workflows, wf)
	}
	sort.Slice(workflows, func(i, j int) bool { return workflows[i].Name < workflows[j].Name })
	return workflows, nil
}

// Install implements Manager. The source may be a YAML file, a directory
// of YAML files, or a git URL; git sources are cloned to a temporary
// directory and harvested for workflow documents.
func (r *LocalRegistry) Install(ctx context.Context, source string) ([]string, error) {
	if isGitSource(source) {
		return r.installFromGit(ctx, source)
	}

	info, err := os.Stat(source)
	if err != nil {
		return nil, fmt.Errorf("reading install source: %w", err)
	}
	if info.IsDir() {
		return r.installFromDir(ctx, source, false)
	}
	name, err := r.installFile(ctx, source)
	if err != nil {
		return nil, err
	}
	return []string{name}, nil
}

// Uninstall implements Manager.
func (r *LocalRegistry) Uninstall(ctx context.Context, name string) error {
	return r.withLock(ctx, func() error {
		paths, err := r.documentPaths()
		if err != nil {
			return err
		}
		for _, path := range paths {
			wf, err := workflow.LoadFile(path)
			if err != nil {
				continue
			}
			if wf.Name != name {
				continue
			}
			if err := os.Remove(path); err != nil {
				return fmt.Errorf("removing workflow file: %w", err)
			}
			return nil
		}
		return fmt.Errorf("%w: workflow %q", engine.ErrNotFound, name)
	})
}

func (r *LocalRegistry) installFromGit(ctx context.Context, url string) ([]string, error) {
	tmpDir, err := os.MkdirTemp("", "flowhive-install-*")
	if err != nil {
		return nil, fmt.Errorf("creating clone directory: %w", err)
	}
	defer func() { _ = os.RemoveAll(tmpDir) }()

	_, err = git.PlainCloneContext(ctx, tmpDir, false, &git.CloneOptions{
		URL:   url,
		Depth: 1,
	})
	if err != nil {
		return nil, fmt.Errorf("cloning %s: %w", url, err)
	}

	return r.installFromDir(ctx, tmpDir, true)
}

// installFromDir harvests workflow documents from a directory. Recursive
// sources (git clones) are walked fully; plain directories take only
// their top level.
func (r *LocalRegistry) installFromDir(ctx context.Context, dir string, recursive bool) ([]string, error) {
	var candidates []string
	if recursive {
		err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if d.IsDir() {
				if d.Name() == ".git" {
					return filepath.SkipDir
				}
				return nil
			}
			if isYAMLFile(path) {
				candidates = append(candidates, path)
			}
			return nil
		})
		if err != nil {
			return nil, fmt.Errorf("walking install source: %w", err)
		}
	} else {
		entries, err := os.ReadDir(dir)
		if err != nil {
			return nil, fmt.Errorf("reading install source: %w", err)
		}
		for _, entry := range entries {
			if !entry.IsDir() && isYAMLFile(entry.Name()) {
				candidates = append(candidates, filepath.Join(dir, entry.Name()))
			}
		}
	}

	var installed []string
	for _, path := range candidates {
		name, err := r.installFile(ctx, path)
		if err != nil {
			logger.Warnf("skipping %s: %v", path, err)
			continue
		}
		installed = append(installed, name)
	}
	if len(installed) == 0 {
		return nil, fmt.Errorf("%w: no valid workflow documents in %s", engine.ErrValidation, dir)
	}
	sort.Strings(installed)
	return installed, nil
}

// installFile validates one document and copies it into the registry.
func (r *LocalRegistry) installFile(ctx context.Context, path string) (string, error) {
	data, err := os.ReadFile(path) // #nosec G304 -- user-supplied install source
	if err != nil {
		return "", fmt.Errorf("reading workflow file: %w", err)
	}
	wf, err := workflow.Load(data)
	if err != nil {
		return "", err
	}

	err = r.withLock(ctx, func() error {
		target := filepath.Join(r.dir, wf.Name+".yaml")
		if writeErr := os.WriteFile(target, data, 0600); writeErr != nil {
			return fmt.Errorf("writing workflow file: %w", writeErr)
		}
		return nil
	})
	if err != nil {
		return "", err
	}
	return wf.Name, nil
}

// withLock serializes registry mutations across processes using a lock
// file next to the documents.
func (r *LocalRegistry) withLock(ctx context.Context, fn func() error) error {
	fileLock := flock.New(filepath.Join(r.dir, ".lock"))
	lockCtx, cancel := context.WithTimeout(ctx, lockTimeout)
	defer cancel()

	locked, err := fileLock.TryLockContext(lockCtx, 100*time.Millisecond)
	if err != nil {
		return fmt.Errorf("failed to acquire lock: %w", err)
	}
	if !locked {
		return fmt.Errorf("failed to acquire lock: timeout after %v", lockTimeout)
	}
	defer func() { _ = fileLock.Unlock() }()

	return fn()
}

func (r *LocalRegistry) documentPaths() ([]string, error) {
	entries, err := os.ReadDir(r.dir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("reading registry directory: %w", err)
	}
	var paths []string
	for _, entry := range entries {
		if entry.IsDir() || !isYAMLFile(entry.Name()) {
			continue
		}
		paths = append(paths, filepath.Join(r.dir, entry.Name()))
	}
	sort.Strings(paths)
	return paths, nil
}

func isYAMLFile(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	return ext == ".yaml" || ext == ".yml"
}

// isGitSource reports whether the install source should be cloned rather
// than read from the local filesystem.
func isGitSource(source string) bool {
	return strings.HasPrefix(source, "git@") ||
		strings.HasPrefix(source, "git://") ||
		strings.HasPrefix(source, "ssh://") ||
		strings.HasPrefix(source, "http://") ||
		strings.HasPrefix(source, "https://") ||
		strings.HasSuffix(source, ".git")
}
