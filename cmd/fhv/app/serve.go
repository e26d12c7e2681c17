// SPDX-FileCopyrightText: Copyright 2026 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package app

import (
	"fmt"
	"time"

	"github.com/pkg/browser"
	"github.com/spf13/cobra"

	"github.com/stacklok/flowhive/pkg/inspector"
	"github.com/stacklok/flowhive/pkg/logger"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the execution inspector API",
	Long: `Start the read-only inspector HTTP server over the execution history.

Endpoints:
  GET    /api/v1/executions            list executions (filterable)
  GET    /api/v1/executions/{id}       one execution
  GET    /api/v1/executions/{id}/tree  execution with sub-workflows
  GET    /api/v1/executions/{id}/steps step results
  DELETE /api/v1/executions?before=    delete old executions
  GET    /metrics                      Prometheus metrics
  GET    /health                       liveness probe`,
	RunE: serveCmdFunc,
}

var (
	servePort int
	serveOpen bool
)

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 8611, "Port to listen on")
	serveCmd.Flags().BoolVar(&serveOpen, "open", false, "Open the API root in a browser")
}

func serveCmdFunc(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()

	store, err := openStore(ctx)
	if err != nil {
		return err
	}
	defer store.Close()

	address := fmt.Sprintf("127.0.0.1:%d", servePort)

	if serveOpen {
		go func() {
			// Give the listener a moment to come up.
			time.Sleep(250 * time.Millisecond)
			url := fmt.Sprintf("http://%s/api/v1/executions", address)
			if err := browser.OpenURL(url); err != nil {
				logger.Warnf("failed to open browser: %v", err)
			}
		}()
	}

	return inspector.Serve(ctx, address, store, nil)
}
