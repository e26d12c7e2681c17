// SPDX-FileCopyrightText: Copyright 2026 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package app provides the entry point for the flowhive command-line
// application.
package app

import (
	"github.com/spf13/cobra"

	"github.com/stacklok/flowhive/pkg/logger"
)

var rootCmd = &cobra.Command{
	Use:               "fhv",
	DisableAutoGenTag: true,
	Short:             "Flowhive (fhv) runs YAML-defined automation workflows",
	Long: `Flowhive (fhv) is a workflow automation engine. Workflows are YAML
documents whose steps call MCP tools, shell commands, LLM providers, and
other workflows, with template interpolation, conditional gating, retry,
and durable execution history.`,
	Run: func(cmd *cobra.Command, _ []string) {
		// If no subcommand is provided, print help
		if err := cmd.Help(); err != nil {
			logger.Errorf("Error displaying help: %v", err)
		}
	},
}

// NewRootCmd creates a new root command for the flowhive CLI.
func NewRootCmd() *cobra.Command {
	rootCmd.PersistentFlags().Bool("debug", false, "Enable debug mode")

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(listCmd)
	rootCmd.AddCommand(showCmd)
	rootCmd.AddCommand(cleanupCmd)
	rootCmd.AddCommand(newWorkflowCmd())
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(newVersionCmd())

	return rootCmd
}
