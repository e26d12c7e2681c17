// SPDX-FileCopyrightText: Copyright 2026 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package app

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/olekukonko/tablewriter"
	"github.com/olekukonko/tablewriter/tw"
	"github.com/spf13/cobra"

	"github.com/stacklok/flowhive/pkg/engine"
	"github.com/stacklok/flowhive/pkg/storage"
)

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List workflow executions",
	Long:  `List executions from the history, most recent first.`,
	RunE:  listCmdFunc,
}

var (
	listWorkflow string
	listStatus   string
	listRootOnly bool
	listLimit    int
	listAll      bool
	listFormat   string
)

func init() {
	listCmd.Flags().StringVar(&listWorkflow, "workflow", "", "Filter by workflow name")
	listCmd.Flags().StringVar(&listStatus, "status", "", "Filter by status (running, paused, completed, failed, cancelled)")
	listCmd.Flags().BoolVar(&listRootOnly, "root-only", false, "Hide sub-workflow executions")
	listCmd.Flags().IntVar(&listLimit, "limit", 20, "Maximum number of executions to show")
	listCmd.Flags().BoolVarP(&listAll, "all", "a", false, "Show all executions (overrides --limit)")
	listCmd.Flags().StringVar(&listFormat, "format", FormatText, "Output format (json or text)")
}

func listCmdFunc(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()

	store, err := openStore(ctx)
	if err != nil {
		return err
	}
	defer store.Close()

	limit := listLimit
	if listAll {
		// Effectively unbounded; the store caps unset limits far lower.
		limit = 1 << 20
	}
	executions, err := store.QueryExecutions(ctx, storage.ExecutionFilter{
		WorkflowName: listWorkflow,
		Status:       engine.Status(listStatus),
		RootOnly:     listRootOnly,
		Limit:        limit,
	})
	if err != nil {
		return fmt.Errorf("failed to query executions: %w", err)
	}

	if len(executions) == 0 {
		fmt.Println("No executions found")
		return nil
	}

	if listFormat == FormatJSON {
		data, err := json.MarshalIndent(executions, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to marshal executions: %w", err)
		}
		fmt.Println(string(data))
		return nil
	}

	return renderExecutionTable(executions)
}

func renderExecutionTable(executions []*engine.Execution) error {
	table := tablewriter.NewWriter(os.Stdout)
	table.Options(
		tablewriter.WithHeader([]string{"ID", "Workflow", "Status", "Started", "Duration", "Steps"}),
		tablewriter.WithRendition(
			tw.Rendition{
				Borders: tw.Border{
					Left:   tw.State(1),
					Top:    tw.State(1),
					Right:  tw.State(1),
					Bottom: tw.State(1),
				},
			},
		),
		tablewriter.WithAlignment(tw.MakeAlign(6, tw.AlignLeft)),
	)

	for _, exec := range executions {
		steps := "-"
		if exec.TotalSteps != nil {
			done := 0
			if exec.CurrentStep != nil {
				done = *exec.CurrentStep + 1
			}
			steps = fmt.Sprintf("%d/%d", done, *exec.TotalSteps)
		}
		if err := table.Append([]string{
			shortID(exec.ID),
			exec.WorkflowName,
			string(exec.Status),
			formatStarted(exec.StartedAt),
			formatDuration(exec.Duration),
			steps,
		}); err != nil {
			return fmt.Errorf("failed to append row: %w", err)
		}
	}

	if err := table.Render(); err != nil {
		return fmt.Errorf("failed to render table: %w", err)
	}
	return nil
}
