// SPDX-FileCopyrightText: Copyright 2026 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package inspector contains the read-only HTTP API over the execution
// store, plus the Prometheus metrics endpoint fed by the progress bus.
package inspector

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/stacklok/flowhive/pkg/engine/events"
	"github.com/stacklok/flowhive/pkg/logger"
	"github.com/stacklok/flowhive/pkg/storage"
)

const (
	middlewareTimeout = 60 * time.Second
	readHeaderTimeout = 10 * time.Second
)

func headersMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.HasPrefix(r.URL.Path, "/api/") {
			w.Header().Set("Content-Type", "application/json")
		}
		next.ServeHTTP(w, r)
	})
}

// Router assembles the inspector's HTTP surface. The bus may be nil, in
// which case /metrics serves an empty registry.
func Router(store storage.ExecutionStore, bus *events.Bus) http.Handler {
	collector := NewCollector()
	if bus != nil {
		collector.Attach(bus)
	}
	return routerWithCollector(store, collector)
}

func routerWithCollector(store storage.ExecutionStore, collector *Collector) http.Handler {
	r := chi.NewRouter()
	r.Use(
		middleware.RequestID,
		middleware.Timeout(middlewareTimeout),
		headersMiddleware,
	)

	r.Mount("/health", healthcheckRouter(store))
	r.Mount("/api/v1/executions", executionsRouter(store))
	r.Handle("/metrics", collector.Handler())

	return r
}

// Serve starts the inspector on the given address and blocks until the
// context is cancelled. The caller is expected to set up signal handling.
func Serve(ctx context.Context, address string, store storage.ExecutionStore, bus *events.Bus) error {
	srv := &http.Server{
		BaseContext:       func(net.Listener) context.Context { return ctx },
		Addr:              address,
		Handler:           Router(store, bus),
		ReadHeaderTimeout: readHeaderTimeout,
	}

	listener, err := net.Listen("tcp", address)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", address, err)
	}

	logger.Infof("starting inspector server on %s", listener.Addr())

	errCh := make(chan error, 1)
	go func() {
		if err := srv.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("inspector server stopped: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("inspector shutdown failed: %w", err)
	}
	return nil
}
