// SPDX-FileCopyrightText: Copyright 2026 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/stacklok/flowhive/pkg/engine"
	"github.com/stacklok/flowhive/pkg/storage"
)

var showCmd = &cobra.Command{
	Use:   "show EXECUTION_ID",
	Short: "Show one execution in detail",
	Long: `Show an execution's status, steps, and errors. The ID may be the full
UUID or the unique prefix printed by 'fhv list'.`,
	Args: cobra.ExactArgs(1),
	RunE: showCmdFunc,
}

var (
	showTree bool
	showJSON bool
)

func init() {
	showCmd.Flags().BoolVar(&showTree, "tree", false, "Include sub-workflow executions recursively")
	showCmd.Flags().BoolVar(&showJSON, "json", false, "Output as JSON")
}

func showCmdFunc(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	store, err := openStore(ctx)
	if err != nil {
		return err
	}
	defer store.Close()

	id, err := resolveExecutionID(ctx, store, args[0])
	if err != nil {
		return err
	}

	tree, err := store.GetExecutionTree(ctx, id)
	if err != nil {
		return fmt.Errorf("failed to load execution: %w", err)
	}
	if !showTree {
		tree.Children = nil
	}

	if showJSON {
		data, err := json.MarshalIndent(tree, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to marshal execution: %w", err)
		}
		fmt.Println(string(data))
		return nil
	}

	printExecutionTree(tree, 0)
	return nil
}

// resolveExecutionID accepts a full execution ID or a unique prefix.
func resolveExecutionID(ctx context.Context, store storage.ExecutionStore, arg string) (string, error) {
	if _, err := store.GetExecution(ctx, arg); err == nil {
		return arg, nil
	} else if !errors.Is(err, storage.ErrNotFound) {
		return "", fmt.Errorf("failed to look up execution: %w", err)
	}

	executions, err := store.QueryExecutions(ctx, storage.ExecutionFilter{})
	if err != nil {
		return "", fmt.Errorf("failed to look up execution: %w", err)
	}
	var matches []string
	for _, exec := range executions {
		if strings.HasPrefix(exec.ID, arg) {
			matches = append(matches, exec.ID)
		}
	}
	switch len(matches) {
	case 0:
		return "", fmt.Errorf("no execution found matching %q", arg)
	case 1:
		return matches[0], nil
	default:
		return "", fmt.Errorf("ambiguous execution ID %q matches %d executions", arg, len(matches))
	}
}

func printExecutionTree(tree *engine.ExecutionTree, depth int) {
	indent := strings.Repeat("  ", depth)
	exec := tree.Execution

	fmt.Printf("%s%s  %s  [%s]\n", indent, shortID(exec.ID), exec.WorkflowName, exec.Status)
	fmt.Printf("%s  started:  %s\n", indent, formatStarted(exec.StartedAt))
	fmt.Printf("%s  duration: %s\n", indent, formatDuration(exec.Duration))
	if exec.Error != "" {
		fmt.Printf("%s  error:    %s\n", indent, exec.Error)
	}

	for _, step := range tree.Steps {
		line := fmt.Sprintf("%s  [%d] %s (%s) %s", indent, step.StepIndex, step.StepName, step.Action, step.Status)
		if step.Duration != nil {
			line += " " + formatDuration(step.Duration)
		}
		if step.Error != "" {
			line += " - " + step.Error
		}
		if step.SkipReason != "" {
			line += fmt.Sprintf(" (condition: %s)", step.SkipReason)
		}
		fmt.Println(line)
	}

	for _, child := range tree.Children {
		fmt.Println()
		printExecutionTree(child, depth+1)
	}
}
