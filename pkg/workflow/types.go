// SPDX-FileCopyrightText: Copyright 2026 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package workflow provides the workflow document model and YAML loader.
//
// A Workflow is an immutable, declarative document of ordered steps. The
// loader validates a document exhaustively, reporting every violation at
// once rather than stopping at the first mistake.
package workflow

import "fmt"

// PromptMode controls whether prompt.ask steps may also invoke the LLM
// provider to reinterpret the raw user response.
type PromptMode string

// Permitted prompt modes. PromptModeBoth is the default.
const (
	PromptModeStatic  PromptMode = "static"
	PromptModeDynamic PromptMode = "dynamic"
	PromptModeBoth    PromptMode = "both"
)

// Reserved action namespaces handled by the executor itself. Any other
// namespace routes to the tool server of that name.
const (
	NamespacePrompt   = "prompt"
	NamespaceVariable = "variable"
	NamespaceLog      = "log"
	NamespaceAI       = "ai"
	NamespaceWorkflow = "workflow"
)

// Permitted config_schema parameter types.
var paramTypes = map[string]bool{
	"string":  true,
	"number":  true,
	"boolean": true,
	"array":   true,
	"enum":    true,
}

// ConfigParam describes one entry of a workflow's config_schema.
type ConfigParam struct {
	Type        string   `yaml:"type" json:"type"`
	Required    bool     `yaml:"required,omitempty" json:"required,omitempty"`
	Default     any      `yaml:"default,omitempty" json:"default,omitempty"`
	Description string   `yaml:"description,omitempty" json:"description,omitempty"`
	EnumValues  []string `yaml:"enum_values,omitempty" json:"enum_values,omitempty"`
}

// RetryPolicy configures step-level retries. Attempts is the number of
// retries on top of the initial attempt; Delay is the pause between
// attempts in milliseconds.
type RetryPolicy struct {
	Attempts int `yaml:"attempts" json:"attempts"`
	Delay    int `yaml:"delay,omitempty" json:"delay,omitempty"`
}

// Step is a single action invocation with parameters, an optional gating
// condition, and an optional result binding.
type Step struct {
	// ID is an optional stable identifier. When empty the step is named
	// step-<index>.
	ID string `yaml:"id,omitempty" json:"id,omitempty"`

	// Action is "<namespace>.<name>". Required.
	Action string `yaml:"action" json:"action"`

	Description string `yaml:"description,omitempty" json:"description,omitempty"`

	// Params values may contain {{var}} templates; they are interpolated
	// against the variable map before dispatch.
	Params map[string]any `yaml:"params,omitempty" json:"params,omitempty"`

	// If is a template-interpolated boolean expression; false skips the step.
	If string `yaml:"if,omitempty" json:"if,omitempty"`

	// Output names the variable the step's result is bound to.
	Output string `yaml:"output,omitempty" json:"output,omitempty"`

	Retry *RetryPolicy `yaml:"retry,omitempty" json:"retry,omitempty"`
}

// Name returns the step's stable name: its ID when set, otherwise the
// synthesized step-<index>.
func (s *Step) Name(index int) string {
	if s.ID != "" {
		return s.ID
	}
	return fmt.Sprintf("step-%d", index)
}

// Workflow is a declarative, named document of ordered steps.
type Workflow struct {
	// Name is required, non-empty, and unique within a registry.
	Name string `yaml:"name" json:"name"`

	Description string `yaml:"description,omitempty" json:"description,omitempty"`
	Version     string `yaml:"version,omitempty" json:"version,omitempty"`
	Author      string `yaml:"author,omitempty" json:"author,omitempty"`

	// MCPsRequired lists tool-server names the engine must ensure are
	// connected before execution starts.
	MCPsRequired []string `yaml:"mcps_required,omitempty" json:"mcps_required,omitempty"`

	ConfigSchema map[string]ConfigParam `yaml:"config_schema,omitempty" json:"config_schema,omitempty"`

	// Steps is an ordered, non-empty sequence.
	Steps []Step `yaml:"steps" json:"steps"`

	// Timeout is an optional wall-clock bound for the whole workflow, in
	// milliseconds. Zero means unbounded.
	Timeout int64 `yaml:"timeout,omitempty" json:"timeout,omitempty"`

	PromptMode PromptMode `yaml:"prompt_mode,omitempty" json:"prompt_mode,omitempty"`

	// Extra preserves unknown top-level keys across load/save round trips.
	Extra map[string]any `yaml:",inline" json:"-"`
}

// ConfigDefaults returns the default values declared in the config schema.
func (w *Workflow) ConfigDefaults() map[string]any {
	defaults := make(map[string]any)
	for name, param := range w.ConfigSchema {
		if param.Default != nil {
			defaults[name] = param.Default
		}
	}
	return defaults
}

// MissingRequired reports the names of required config parameters absent
// from the given value map, in no particular order.
func (w *Workflow) MissingRequired(values map[string]any) []string {
	var missing []string
	for name, param := range w.ConfigSchema {
		if !param.Required {
			continue
		}
		if _, ok := values[name]; !ok {
			missing = append(missing, name)
		}
	}
	return missing
}
