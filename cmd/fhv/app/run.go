// SPDX-FileCopyrightText: Copyright 2026 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package app

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/stacklok/flowhive/cmd/fhv/app/ui"
	"github.com/stacklok/flowhive/pkg/ai"
	"github.com/stacklok/flowhive/pkg/config"
	"github.com/stacklok/flowhive/pkg/engine"
	"github.com/stacklok/flowhive/pkg/engine/events"
	"github.com/stacklok/flowhive/pkg/engine/executor"
	"github.com/stacklok/flowhive/pkg/logger"
	"github.com/stacklok/flowhive/pkg/prompt"
	"github.com/stacklok/flowhive/pkg/registry"
	"github.com/stacklok/flowhive/pkg/tools"
	"github.com/stacklok/flowhive/pkg/workflow"
)

var runCmd = &cobra.Command{
	Use:   "run [flags] WORKFLOW_NAME_OR_FILE",
	Short: "Run a workflow",
	Long: `Run a workflow by its installed name or from a YAML file.

Workflows run one step at a time. Config values come from the workflow's
config_schema defaults, overridden by --set flags. Sub-workflow references
resolve against the installed registry even when the entry point is a file.

Examples:
  $ fhv run deploy --set env=prod --set replicas=3
  $ fhv run ./workflows/backup.yaml --dry-run`,
	Args: cobra.ExactArgs(1),
	RunE: runCmdFunc,
}

var (
	runSetValues []string
	runDryRun    bool
	runNoInput   bool
	runTimeout   int64
	runQuiet     bool
)

func init() {
	runCmd.Flags().StringArrayVar(&runSetValues, "set", nil, "Set a config value (format: key=value, repeatable)")
	runCmd.Flags().BoolVar(&runDryRun, "dry-run", false, "Resolve and validate every step without executing it")
	runCmd.Flags().BoolVar(&runNoInput, "no-input", false, "Answer prompts with their defaults instead of asking")
	runCmd.Flags().Int64Var(&runTimeout, "timeout", 0, "Wall-clock bound for the whole run in milliseconds (0 = workflow default)")
	runCmd.Flags().BoolVar(&runQuiet, "quiet", false, "Suppress progress output")
}

func runCmdFunc(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	values, err := parseSetValues(runSetValues)
	if err != nil {
		return err
	}

	installed, err := openRegistry()
	if err != nil {
		return err
	}

	wf, execRegistry, err := resolveWorkflow(ctx, installed, args[0])
	if err != nil {
		return err
	}
	if runTimeout > 0 {
		clone := *wf
		clone.Timeout = runTimeout
		wf = &clone
	}

	store, err := openStore(ctx)
	if err != nil {
		return err
	}
	defer store.Close()

	serversPath, err := config.MCPServersPath()
	if err != nil {
		return fmt.Errorf("failed to resolve MCP servers path: %w", err)
	}
	manager := tools.NewManager(serversPath)
	defer manager.Shutdown()

	provider := resolveProvider(cmd)

	var prompter prompt.Handler
	if runNoInput {
		prompter = prompt.NewAutoResponder()
	} else {
		prompter = prompt.NewConsole(prompt.WithProvider(provider))
	}

	bus := events.NewBus()
	renderer := ui.NewRenderer(os.Stdout, runQuiet)
	defer bus.Subscribe(renderer.Handle)()

	exec := executor.New(executor.Options{
		Store:    store,
		Registry: execRegistry,
		Tools:    manager,
		Provider: provider,
		Prompter: prompter,
		Bus:      bus,
	})

	result, err := exec.Execute(ctx, wf,
		engine.RunConfig{Values: values, DryRun: runDryRun},
		engine.ExecutionContext{Trigger: &engine.Trigger{Type: engine.TriggerCLI, Source: "fhv"}},
	)
	if err != nil {
		return err
	}
	if result.Status != engine.StatusCompleted {
		return fmt.Errorf("execution %s finished with status %s", shortID(result.ExecutionID), result.Status)
	}
	return nil
}

// resolveWorkflow loads the entry point from a YAML file when the argument
// looks like one, falling back to the installed registry by name. File
// entry points still resolve sub-workflows against the installed set.
func resolveWorkflow(
	ctx context.Context,
	installed *registry.LocalRegistry,
	arg string,
) (*workflow.Workflow, registry.Registry, error) {
	if isWorkflowFile(arg) {
		wf, err := workflow.LoadFile(arg)
		if err != nil {
			return nil, nil, err
		}
		return wf, &overlayRegistry{overlay: registry.NewMemoryRegistry(wf), fallback: installed}, nil
	}

	wf, err := installed.Get(ctx, arg)
	if err != nil {
		return nil, nil, err
	}
	return wf, installed, nil
}

func isWorkflowFile(arg string) bool {
	if strings.HasSuffix(arg, ".yaml") || strings.HasSuffix(arg, ".yml") {
		return true
	}
	info, err := os.Stat(arg)
	return err == nil && !info.IsDir()
}

// resolveProvider builds the LLM provider from the stored config plus
// environment overrides. A run without a usable provider is still valid;
// only ai.* and dynamic prompt steps need one.
func resolveProvider(cmd *cobra.Command) ai.Provider {
	cfg, err := config.ResolveProvider(cmd.Context(), config.NewLocalStore(""))
	if err != nil {
		logger.Debugf("no LLM provider configured: %v", err)
		return nil
	}
	if cfg.APIKey == "" {
		logger.Debugf("no API key configured for provider %s", cfg.Provider)
		return nil
	}
	provider, err := ai.FromConfig(cfg.Provider, cfg.APIKey, cfg.Model, cfg.BaseURL)
	if err != nil {
		logger.Warnf("failed to initialize LLM provider: %v", err)
		return nil
	}
	return provider
}
