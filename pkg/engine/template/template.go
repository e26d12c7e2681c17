// Package template renders {{path}} references and evaluates gating
// conditions against a flat variable map. It is deliberately small: a
// dot-chain resolver plus a restricted boolean grammar, not a general
// templating language.
package template

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/stacklok/flowhive/pkg/engine"
)

const (
	// maxValueDepth bounds InterpolateValue recursion to prevent stack
	// exhaustion from adversarial or cyclic inputs.
	maxValueDepth = 100
)

// refPattern matches a complete {{path}} reference. The path is a
// dot-separated chain of identifier segments.
var refPattern = regexp.MustCompile(`\{\{\s*([A-Za-z0-9_][A-Za-z0-9_.\-]*)\s*\}\}`)

// Engine interpolates templates and evaluates conditions for the executor.
type Engine interface {
	// Interpolate rewrites every {{path}} occurrence in the template with
	// the stringified value resolved from vars. A reference that cannot be
	// fully resolved fails. A string without references passes through
	// unchanged.
	Interpolate(template string, vars map[string]any) (string, error)

	// InterpolateValue walks an arbitrary JSON-shaped value and applies
	// Interpolate to every string leaf.
	InterpolateValue(value any, vars map[string]any) (any, error)

	// Evaluate substitutes every {{path}} with its JSON-encoded value and
	// evaluates the restricted condition grammar: || over && over one
	// binary comparison (== === != !== < <= > >=) over JSON literals,
	// or a single bare truthy literal.
	Evaluate(condition string, vars map[string]any) (bool, error)
}

// New returns the default template engine.
func New() Engine {
	return &templateEngine{}
}

type templateEngine struct{}

// Interpolate implements Engine.
func (e *templateEngine) Interpolate(template string, vars map[string]any) (string, error) {
	var resolveErr error
	result := refPattern.ReplaceAllStringFunc(template, func(match string) string {
		if resolveErr != nil {
			return match
		}
		path := strings.TrimSpace(match[2 : len(match)-2])
		value, err := resolvePath(path, vars)
		if err != nil {
			resolveErr = err
			return match
		}
		return stringify(value)
	})
	if resolveErr != nil {
		return "", resolveErr
	}
	return result, nil
}

// InterpolateValue implements Engine.
func (e *templateEngine) InterpolateValue(value any, vars map[string]any) (any, error) {
	return e.interpolateValue(value, vars, 0)
}

func (e *templateEngine) interpolateValue(value any, vars map[string]any, depth int) (any, error) {
	if depth > maxValueDepth {
		return nil, fmt.Errorf("%w: value nesting exceeds %d levels", engine.ErrTemplate, maxValueDepth)
	}

	switch v := value.(type) {
	case string:
		return e.Interpolate(v, vars)
	case map[string]any:
		out := make(map[string]any, len(v))
		for key, elem := range v {
			interpolated, err := e.interpolateValue(elem, vars, depth+1)
			if err != nil {
				return nil, err
			}
			out[key] = interpolated
		}
		return out, nil
	case []any:
		out := make([]any, len(v))
		for i, elem := range v {
			interpolated, err := e.interpolateValue(elem, vars, depth+1)
			if err != nil {
				return nil, err
			}
			out[i] = interpolated
		}
		return out, nil
	default:
		return value, nil
	}
}

// resolvePath walks a dot-separated chain through nested maps. Every
// intermediate key must exist and be a map; the final key must exist.
func resolvePath(path string, vars map[string]any) (any, error) {
	segments := strings.Split(path, ".")

	var current any = vars
	for i, segment := range segments {
		m, ok := current.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("%w: cannot resolve '%s': '%s' is not an object",
				engine.ErrTemplate, path, strings.Join(segments[:i], "."))
		}
		value, present := m[segment]
		if !present {
			return nil, fmt.Errorf("%w: unresolved reference '%s': missing key '%s'",
				engine.ErrTemplate, path, segment)
		}
		current = value
	}
	return current, nil
}

// stringify renders a resolved value for interpolation into a string:
// strings unquoted, booleans true/false, numbers decimal, everything
// else (arrays, objects, null) as JSON.
func stringify(value any) string {
	switch v := value.(type) {
	case string:
		return v
	case bool:
		return strconv.FormatBool(v)
	case int:
		return strconv.Itoa(v)
	case int64:
		return strconv.FormatInt(v, 10)
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case json.Number:
		return v.String()
	case nil:
		return "null"
	default:
		encoded, err := json.Marshal(v)
		if err != nil {
			return fmt.Sprintf("%v", v)
		}
		return string(encoded)
	}
}
