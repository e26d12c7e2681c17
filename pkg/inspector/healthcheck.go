// SPDX-FileCopyrightText: Copyright 2026 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package inspector

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/stacklok/flowhive/pkg/storage"
)

func healthcheckRouter(store storage.ExecutionStore) http.Handler {
	routes := &healthcheckRoutes{store: store}
	r := chi.NewRouter()
	r.Get("/", routes.getHealthcheck)
	return r
}

type healthcheckRoutes struct {
	store storage.ExecutionStore
}

func (h *healthcheckRoutes) getHealthcheck(w http.ResponseWriter, r *http.Request) {
	// A cheap read against the store doubles as a backend liveness probe.
	if _, err := h.store.QueryExecutions(r.Context(), storage.ExecutionFilter{Limit: 1}); err != nil {
		http.Error(w, err.Error(), http.StatusServiceUnavailable)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
