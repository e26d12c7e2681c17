// SPDX-FileCopyrightText: Copyright 2026 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package app

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/olekukonko/tablewriter"
	"github.com/olekukonko/tablewriter/tw"
	"github.com/spf13/cobra"

	"github.com/stacklok/flowhive/pkg/workflow"
)

// newWorkflowCmd creates the workflow management command group.
func newWorkflowCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "workflow",
		Short: "Manage installed workflows",
		Long:  `List, inspect, validate, install, and uninstall workflow documents.`,
	}

	cmd.AddCommand(newWorkflowListCmd())
	cmd.AddCommand(newWorkflowSearchCmd())
	cmd.AddCommand(newWorkflowShowCmd())
	cmd.AddCommand(newWorkflowValidateCmd())
	cmd.AddCommand(newWorkflowInstallCmd())
	cmd.AddCommand(newWorkflowUninstallCmd())

	return cmd
}

func newWorkflowListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List installed workflows",
		RunE: func(cmd *cobra.Command, _ []string) error {
			reg, err := openRegistry()
			if err != nil {
				return err
			}
			workflows, err := reg.List(cmd.Context())
			if err != nil {
				return fmt.Errorf("failed to list workflows: %w", err)
			}
			if len(workflows) == 0 {
				fmt.Println("No workflows installed")
				return nil
			}

			table := tablewriter.NewWriter(os.Stdout)
			table.Options(
				tablewriter.WithHeader([]string{"Name", "Version", "Steps", "Description"}),
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
				tablewriter.WithAlignment(tw.MakeAlign(4, tw.AlignLeft)),
			)
			for _, wf := range workflows {
				version := wf.Version
				if version == "" {
					version = "-"
				}
				if err := table.Append([]string{
					wf.Name,
					version,
					fmt.Sprintf("%d", len(wf.Steps)),
					wf.Description,
				}); err != nil {
					return fmt.Errorf("failed to append row: %w", err)
				}
			}
			if err := table.Render(); err != nil {
				return fmt.Errorf("failed to render table: %w", err)
			}
			return nil
		},
	}
}

func newWorkflowSearchCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "search TERM",
		Short: "Search installed workflows by name or description",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			reg, err := openRegistry()
			if err != nil {
				return err
			}
			workflows, err := reg.List(cmd.Context())
			if err != nil {
				return fmt.Errorf("failed to list workflows: %w", err)
			}

			term := strings.ToLower(args[0])
			var matches []*workflow.Workflow
			for _, wf := range workflows {
				if strings.Contains(strings.ToLower(wf.Name), term) ||
					strings.Contains(strings.ToLower(wf.Description), term) {
					matches = append(matches, wf)
				}
			}
			if len(matches) == 0 {
				fmt.Printf("No workflows matching %q\n", args[0])
				return nil
			}
			for _, wf := range matches {
				if wf.Description != "" {
					fmt.Printf("%s - %s\n", wf.Name, wf.Description)
				} else {
					fmt.Println(wf.Name)
				}
			}
			return nil
		},
	}
}

func newWorkflowShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show NAME",
		Short: "Show an installed workflow document",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			reg, err := openRegistry()
			if err != nil {
				return err
			}
			wf, err := reg.Get(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			data, err := json.MarshalIndent(wf, "", "  ")
			if err != nil {
				return fmt.Errorf("failed to marshal workflow: %w", err)
			}
			fmt.Println(string(data))
			return nil
		},
	}
}

func newWorkflowValidateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate FILE",
		Short: "Validate a workflow file",
		Long:  `Parse a workflow YAML file and report every validation violation.`,
		Args:  cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			wf, err := workflow.LoadFile(args[0])
			if err != nil {
				var verr *workflow.ValidationError
				if errors.As(err, &verr) {
					fmt.Printf("%s is invalid:\n", args[0])
					for _, violation := range verr.Violations {
						fmt.Printf("  - %s\n", violation)
					}
					return fmt.Errorf("validation failed with %d violation(s)", len(verr.Violations))
				}
				return err
			}
			fmt.Printf("%s is valid (workflow %q, %d steps)\n", args[0], wf.Name, len(wf.Steps))
			return nil
		},
	}
}

func newWorkflowInstallCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "install SOURCE",
		Short: "Install workflows from a file, directory, or git URL",
		Long: `Install workflow documents into the local registry.

The source may be a YAML file, a directory of YAML files, or a git
repository URL prefixed with git+ (e.g. git+https://example.com/flows.git).`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			reg, err := openRegistry()
			if err != nil {
				return err
			}
			names, err := reg.Install(cmd.Context(), args[0])
			if err != nil {
				return fmt.Errorf("install failed: %w", err)
			}
			for _, name := range names {
				fmt.Printf("Installed %s\n", name)
			}
			return nil
		},
	}
}

func newWorkflowUninstallCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "uninstall NAME",
		Short: "Remove an installed workflow",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			reg, err := openRegistry()
			if err != nil {
				return err
			}
			if err := reg.Uninstall(cmd.Context(), args[0]); err != nil {
				return err
			}
			fmt.Printf("Uninstalled %s\n", args[0])
			return nil
		},
	}
}
