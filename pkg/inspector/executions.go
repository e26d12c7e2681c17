// SPDX-FileCopyrightText: Copyright 2026 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package inspector

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/stacklok/flowhive/pkg/engine"
	"github.com/stacklok/flowhive/pkg/logger"
	"github.com/stacklok/flowhive/pkg/storage"
)

func executionsRouter(store storage.ExecutionStore) http.Handler {
	routes := &executionRoutes{store: store}
	r := chi.NewRouter()
	r.Get("/", routes.listExecutions)
	r.Delete("/", routes.cleanupExecutions)
	r.Get("/{id}", routes.getExecution)
	r.Get("/{id}/tree", routes.getExecutionTree)
	r.Get("/{id}/steps", routes.getExecutionSteps)
	return r
}

type executionRoutes struct {
	store storage.ExecutionStore
}

type executionListResponse struct {
	Executions []*engine.Execution `json:"executions"`
}

type stepListResponse struct {
	Steps []engine.StepResult `json:"steps"`
}

type cleanupResponse struct {
	Deleted int64 `json:"deleted"`
}

func (e *executionRoutes) listExecutions(w http.ResponseWriter, r *http.Request) {
	filter, err := parseFilter(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	executions, err := e.store.QueryExecutions(r.Context(), filter)
	if err != nil {
		logger.Errorf("failed to query executions: %v", err)
		http.Error(w, "Failed to query executions", http.StatusInternalServerError)
		return
	}
	if executions == nil {
		executions = []*engine.Execution{}
	}

	if err := json.NewEncoder(w).Encode(executionListResponse{Executions: executions}); err != nil {
		http.Error(w, "Failed to marshal execution list", http.StatusInternalServerError)
	}
}

func (e *executionRoutes) getExecution(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	execution, err := e.store.GetExecution(r.Context(), id)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			http.Error(w, "Execution not found", http.StatusNotFound)
			return
		}
		logger.Errorf("failed to get execution %s: %v", id, err)
		http.Error(w, "Failed to get execution", http.StatusInternalServerError)
		return
	}

	if err := json.NewEncoder(w).Encode(execution); err != nil {
		http.Error(w, "Failed to marshal execution", http.StatusInternalServerError)
	}
}

func (e *executionRoutes) getExecutionTree(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	tree, err := e.store.GetExecutionTree(r.Context(), id)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			http.Error(w, "Execution not found", http.StatusNotFound)
			return
		}
		logger.Errorf("failed to get execution tree %s: %v", id, err)
		http.Error(w, "Failed to get execution tree", http.StatusInternalServerError)
		return
	}

	if err := json.NewEncoder(w).Encode(tree); err != nil {
		http.Error(w, "Failed to marshal execution tree", http.StatusInternalServerError)
	}
}

func (e *executionRoutes) getExecutionSteps(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	// Probe the execution first so a missing id is a 404, not an empty list.
	if _, err := e.store.GetExecution(r.Context(), id); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			http.Error(w, "Execution not found", http.StatusNotFound)
			return
		}
		logger.Errorf("failed to get execution %s: %v", id, err)
		http.Error(w, "Failed to get execution", http.StatusInternalServerError)
		return
	}

	steps, err := e.store.GetStepResults(r.Context(), id)
	if err != nil {
		logger.Errorf("failed to get steps for %s: %v", id, err)
		http.Error(w, "Failed to get step results", http.StatusInternalServerError)
		return
	}
	if steps == nil {
		steps = []engine.StepResult{}
	}

	if err := json.NewEncoder(w).Encode(stepListResponse{Steps: steps}); err != nil {
		http.Error(w, "Failed to marshal step list", http.StatusInternalServerError)
	}
}

func (e *executionRoutes) cleanupExecutions(w http.ResponseWriter, r *http.Request) {
	raw := r.URL.Query().Get("before")
	if raw == "" {
		http.Error(w, "Missing required query parameter: before", http.StatusBadRequest)
		return
	}
	before, err := parseBefore(raw)
	if err != nil {
		http.Error(w, "Invalid before parameter: "+err.Error(), http.StatusBadRequest)
		return
	}

	deleted, err := e.store.Cleanup(r.Context(), before)
	if err != nil {
		logger.Errorf("cleanup failed: %v", err)
		http.Error(w, "Failed to clean up executions", http.StatusInternalServerError)
		return
	}

	if err := json.NewEncoder(w).Encode(cleanupResponse{Deleted: deleted}); err != nil {
		http.Error(w, "Failed to marshal cleanup result", http.StatusInternalServerError)
	}
}

// parseBefore accepts either an RFC 3339 timestamp or a Go duration
// (interpreted as "older than this, relative to now").
func parseBefore(raw string) (time.Time, error) {
	if ts, err := time.Parse(time.RFC3339, raw); err == nil {
		return ts, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return time.Time{}, errors.New("expected RFC 3339 timestamp or duration")
	}
	return time.Now().Add(-d), nil
}

func parseFilter(r *http.Request) (storage.ExecutionFilter, error) {
	q := r.URL.Query()
	filter := storage.ExecutionFilter{
		WorkflowName: q.Get("workflow"),
		Status:       engine.Status(q.Get("status")),
		ParentID:     q.Get("parent"),
	}

	if raw := q.Get("root_only"); raw != "" {
		rootOnly, err := strconv.ParseBool(raw)
		if err != nil {
			return filter, errors.New("invalid root_only parameter")
		}
		filter.RootOnly = rootOnly
	}
	if raw := q.Get("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit < 0 {
			return filter, errors.New("invalid limit parameter")
		}
		filter.Limit = limit
	}
	if raw := q.Get("since"); raw != "" {
		ts, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return filter, errors.New("invalid since parameter")
		}
		filter.Since = &ts
	}
	if raw := q.Get("until"); raw != "" {
		ts, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return filter, errors.New("invalid until parameter")
		}
		filter.Until = &ts
	}
	return filter, nil
}
