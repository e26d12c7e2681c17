// SPDX-FileCopyrightText: Copyright 2026 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package workflow

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/xeipuuv/gojsonschema"
	"golang.org/x/mod/semver"
	"gopkg.in/yaml.v3"

	"github.com/stacklok/flowhive/pkg/engine"
)

//go:embed schema.json
var documentSchema []byte

// ValidationError aggregates every violation found in a workflow document.
// It wraps engine.ErrValidation so callers can use errors.Is.
type ValidationError struct {
	Violations []string
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	return fmt.Sprintf("workflow validation failed: %s", strings.Join(e.Violations, "; "))
}

// Unwrap makes errors.Is(err, engine.ErrValidation) hold.
func (*ValidationError) Unwrap() error {
	return engine.ErrValidation
}

// Load parses a YAML document into a validated Workflow. Validation
// collects every violation; a document with three mistakes fails with all
// three listed, never the first alone.
func Load(data []byte) (*Workflow, error) {
	// Structural pre-check against the embedded JSON Schema. A document
	// whose shape is wrong (steps as a string, retry as an array) fails
	// here with positional messages before semantic validation runs.
	var raw any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, &ValidationError{Violations: []string{fmt.Sprintf("invalid YAML: %v", err)}}
	}
	if raw == nil {
		return nil, &ValidationError{Violations: []string{"document is empty"}}
	}

	violations := checkSchema(raw)

	var wf Workflow
	if err := yaml.Unmarshal(data, &wf); err != nil {
		violations = append(violations, fmt.Sprintf("invalid document structure: %v", err))
		return nil, &ValidationError{Violations: violations}
	}

	violations = append(violations, Validate(&wf)...)
	if len(violations) > 0 {
		return nil, &ValidationError{Violations: violations}
	}

	if wf.PromptMode == "" {
		wf.PromptMode = PromptModeBoth
	}
	return &wf, nil
}

// LoadFile reads and parses a workflow document from disk.
func LoadFile(path string) (*Workflow, error) {
	data, err := os.ReadFile(path) // #nosec G304 -- caller-supplied workflow path
	if err != nil {
		return nil, fmt.Errorf("reading workflow file: %w", err)
	}
	return Load(data)
}

// Marshal renders the workflow back to YAML. Round-tripping preserves
// name, steps, config_schema, and any unknown top-level keys.
func Marshal(wf *Workflow) ([]byte, error) {
	data, err := yaml.Marshal(wf)
	if err != nil {
		return nil, fmt.Errorf("marshaling workflow: %w", err)
	}
	return data, nil
}

// Validate checks the semantic rules and returns every violation found.
// An empty result means the workflow is valid.
func Validate(wf *Workflow) []string {
	var violations []string

	if strings.TrimSpace(wf.Name) == "" {
		violations = append(violations, "name is required and must be a non-empty string")
	}

	if len(wf.Steps) == 0 {
		violations = append(violations, "steps must be a non-empty array")
	}

	for i := range wf.Steps {
		violations = append(violations, validateStep(i, &wf.Steps[i])...)
	}

	if wf.PromptMode != "" {
		switch wf.PromptMode {
		case PromptModeStatic, PromptModeDynamic, PromptModeBoth:
		default:
			violations = append(violations,
				fmt.Sprintf("prompt_mode %q is not one of static, dynamic, both", wf.PromptMode))
		}
	}

	for name, param := range wf.ConfigSchema {
		if !paramTypes[param.Type] {
			violations = append(violations,
				fmt.Sprintf("config_schema.%s: type %q is not one of string, number, boolean, array, enum", name, param.Type))
		}
		if param.Type == "enum" && len(param.EnumValues) == 0 {
			violations = append(violations,
				fmt.Sprintf("config_schema.%s: enum type requires enum_values", name))
		}
	}

	if wf.Timeout < 0 {
		violations = append(violations, "timeout cannot be negative")
	}

	if wf.Version != "" {
		v := wf.Version
		if !strings.HasPrefix(v, "v") {
			v = "v" + v
		}
		if !semver.IsValid(v) {
			violations = append(violations,
				fmt.Sprintf("version %q is not a valid semantic version", wf.Version))
		}
	}

	return violations
}

func validateStep(index int, step *Step) []string {
	var violations []string

	action := strings.TrimSpace(step.Action)
	if action == "" {
		violations = append(violations, fmt.Sprintf("steps[%d]: action is required", index))
		return violations
	}

	ns, name, found := strings.Cut(action, ".")
	if !found || ns == "" || name == "" {
		violations = append(violations,
			fmt.Sprintf("steps[%d]: action %q must be of the form <namespace>.<name>", index, step.Action))
	}

	if step.Retry != nil {
		if step.Retry.Attempts < 0 {
			violations = append(violations,
				fmt.Sprintf("steps[%d]: retry.attempts cannot be negative", index))
		}
		if step.Retry.Delay < 0 {
			violations = append(violations,
				fmt.Sprintf("steps[%d]: retry.delay cannot be negative", index))
		}
	}

	return violations
}

// checkSchema validates the raw document against the embedded JSON
// Schema and returns positional violations.
func checkSchema(raw any) []string {
	docJSON, err := json.Marshal(raw)
	if err != nil {
		// YAML that decodes but cannot re-encode as JSON (binary tags,
		// non-string keys) is rejected as structurally invalid.
		return []string{fmt.Sprintf("document is not JSON-representable: %v", err)}
	}

	result, err := gojsonschema.Validate(
		gojsonschema.NewBytesLoader(documentSchema),
		gojsonschema.NewBytesLoader(docJSON),
	)
	if err != nil {
		return []string{fmt.Sprintf("schema check failed: %v", err)}
	}

	var violations []string
	for _, desc := range result.Errors() {
		violations = append(violations, desc.String())
	}
	return violations
}
