package template

import (
	"encoding/json"
	"fmt"
	"reflect"
	"strings"

	"github.com/stacklok/flowhive/pkg/engine"
)

// Evaluate implements Engine.
//
// Every {{path}} is first substituted with the JSON encoding of its value
// (so a string 'main' becomes "main"), then the restricted grammar is
// parsed: || binds loosest, then &&, then a single binary comparison over
// JSON-literal operands. == and === are the same strict equality; ordered
// comparisons are defined for numbers only. A bare literal is coerced:
// true, non-empty strings and non-zero numbers are truthy, as are objects
// and arrays.
func (e *templateEngine) Evaluate(condition string, vars map[string]any) (bool, error) {
	trimmed := strings.TrimSpace(condition)
	if trimmed == "" {
		return false, fmt.Errorf("%w: empty condition", engine.ErrTemplate)
	}

	substituted, err := substituteRefs(trimmed, vars)
	if err != nil {
		return false, err
	}

	tokens, err := lexCondition(substituted)
	if err != nil {
		return false, fmt.Errorf("%w: malformed condition %q: %v", engine.ErrTemplate, condition, err)
	}

	p := &condParser{tokens: tokens}
	result, err := p.parseOr()
	if err != nil {
		return false, fmt.Errorf("%w: malformed condition %q: %v", engine.ErrTemplate, condition, err)
	}
	if !p.atEnd() {
		return false, fmt.Errorf("%w: malformed condition %q: unexpected %q", engine.ErrTemplate, condition, p.peek().text)
	}

	return truthy(result), nil
}

// substituteRefs replaces every {{path}} with the JSON encoding of the
// resolved value so the remainder of the condition is pure JSON literals
// and operators.
func substituteRefs(condition string, vars map[string]any) (string, error) {
	var resolveErr error
	out := refPattern.ReplaceAllStringFunc(condition, func(match string) string {
		if resolveErr != nil {
			return match
		}
		path := strings.TrimSpace(match[2 : len(match)-2])
		value, err := resolvePath(path, vars)
		if err != nil {
			resolveErr = err
			return match
		}
		encoded, err := json.Marshal(value)
		if err != nil {
			resolveErr = fmt.Errorf("%w: cannot encode '%s': %v", engine.ErrTemplate, path, err)
			return match
		}
		return string(encoded)
	})
	if resolveErr != nil {
		return "", resolveErr
	}
	return out, nil
}

type tokenKind int

const (
	tokValue tokenKind = iota
	tokOp
	tokEOF
)

type token struct {
	kind  tokenKind
	text  string
	value any
}

// operators in match order: longer spellings first so === is not split
// into == and =.
var operators = []string{"===", "!==", "==", "!=", "<=", ">=", "||", "&&", "<", ">"}

// lexCondition splits a substituted condition into operator and
// JSON-literal tokens. Literals are consumed with a json.Decoder so
// strings containing operator characters are handled correctly.
func lexCondition(input string) ([]token, error) {
	var tokens []token
	pos := 0

	for pos < len(input) {
		for pos < len(input) && (input[pos] == ' ' || input[pos] == '\t' || input[pos] == '\n' || input[pos] == '\r') {
			pos++
		}
		if pos >= len(input) {
			break
		}

		rest := input[pos:]
		matched := false
		for _, op := range operators {
			if strings.HasPrefix(rest, op) {
				tokens = append(tokens, token{kind: tokOp, text: op})
				pos += len(op)
				matched = true
				break
			}
		}
		if matched {
			continue
		}

		dec := json.NewDecoder(strings.NewReader(rest))
		var value any
		if err := dec.Decode(&value); err != nil {
			return nil, fmt.Errorf("expected a JSON literal at %q", truncate(rest, 20))
		}
		consumed := int(dec.InputOffset())
		tokens = append(tokens, token{kind: tokValue, text: rest[:consumed], value: value})
		pos += consumed
	}

	tokens = append(tokens, token{kind: tokEOF, text: "<end>"})
	return tokens, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}

type condParser struct {
	tokens []token
	pos    int
}

func (p *condParser) peek() token {
	return p.tokens[p.pos]
}

func (p *condParser) advance() token {
	t := p.tokens[p.pos]
	if t.kind != tokEOF {
		p.pos++
	}
	return t
}

func (p *condParser) atEnd() bool {
	return p.peek().kind == tokEOF
}

func (p *condParser) parseOr() (any, error) {
	left, err := p.parseAnd()
	if err != nil {
		return nil, err
	}
	for p.peek().kind == tokOp && p.peek().text == "||" {
		p.advance()
		right, err := p.parseAnd()
		if err != nil {
			return nil, err
		}
		left = truthy(left) || truthy(right)
	}
	return left, nil
}

func (p *condParser) parseAnd() (any, error) {
	left, err := p.parseComparison()
	if err != nil {
		return nil, err
	}
	for p.peek().kind == tokOp && p.peek().text == "&&" {
		p.advance()
		right, err := p.parseComparison()
		if err != nil {
			return nil, err
		}
		left = truthy(left) && truthy(right)
	}
	return left, nil
}

func (p *condParser) parseComparison() (any, error) {
	left, err := p.parseOperand()
	if err != nil {
		return nil, err
	}

	next := p.peek()
	if next.kind != tokOp || next.text == "||" || next.text == "&&" {
		return left, nil
	}

	op := p.advance().text
	right, err := p.parseOperand()
	if err != nil {
		return nil, err
	}
	return compare(op, left, right)
}

func (p *condParser) parseOperand() (any, error) {
	t := p.advance()
	if t.kind != tokValue {
		return nil, fmt.Errorf("expected a value, got %q", t.text)
	}
	return t.value, nil
}

func compare(op string, left, right any) (any, error) {
	switch op {
	case "==", "===":
		return jsonEqual(left, right), nil
	case "!=", "!==":
		return !jsonEqual(left, right), nil
	}

	lf, lok := left.(float64)
	rf, rok := right.(float64)
	if !lok || !rok {
		return nil, fmt.Errorf("operator %q requires numeric operands", op)
	}

	switch op {
	case "<":
		return lf < rf, nil
	case "<=":
		return lf <= rf, nil
	case ">":
		return lf > rf, nil
	case ">=":
		return lf >= rf, nil
	default:
		return nil, fmt.Errorf("unknown operator %q", op)
	}
}

// jsonEqual is strict equality over decoded JSON values. Both sides come
// out of the same decoder, so numbers are uniformly float64 and deep
// comparison is well defined for arrays and objects.
func jsonEqual(left, right any) bool {
	return reflect.DeepEqual(left, right)
}

func truthy(v any) bool {
	switch val := v.(type) {
	case bool:
		return val
	case string:
		return val != ""
	case float64:
		return val != 0
	case nil:
		return false
	default:
		// Objects and arrays are truthy, matching the permissive
		// coercion the condition grammar inherits from JSON.
		return true
	}
}
