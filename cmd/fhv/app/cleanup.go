// SPDX-FileCopyrightText: Copyright 2026 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package app

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

var cleanupCmd = &cobra.Command{
	Use:   "cleanup",
	Short: "Delete old executions from the history",
	Long: `Delete executions that started before the given age, along with their
steps and contexts. Sub-workflow executions are deleted with their parents.

Example:
  $ fhv cleanup --older-than 720h`,
	RunE: cleanupCmdFunc,
}

var cleanupOlderThan time.Duration

func init() {
	cleanupCmd.Flags().DurationVar(&cleanupOlderThan, "older-than", 0, "Delete executions older than this duration (e.g. 72h)")
	_ = cleanupCmd.MarkFlagRequired("older-than")
}

func cleanupCmdFunc(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()

	if cleanupOlderThan <= 0 {
		return fmt.Errorf("--older-than must be a positive duration")
	}

	store, err := openStore(ctx)
	if err != nil {
		return err
	}
	defer store.Close()

	deleted, err := store.Cleanup(ctx, time.Now().Add(-cleanupOlderThan))
	if err != nil {
		return fmt.Errorf("cleanup failed: %w", err)
	}

	fmt.Printf("Deleted %d execution(s)\n", deleted)
	return nil
}
