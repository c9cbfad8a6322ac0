package flow

import (
	"fmt"
	"strconv"
	"strings"
)

// resolvePath walks vars along a dotted path such as "a.b.c", returning
// the value found and whether the full path resolved. Every lookup is
// total: an unknown path reports ok=false rather than panicking (spec
// §9 "opaque variables map ... must be total").
func resolvePath(vars map[string]any, path string) (any, bool) {
	if path == "" {
		return nil, false
	}
	segments := strings.Split(path, ".")

	var current any = vars
	for _, seg := range segments {
		m, ok := current.(map[string]any)
		if !ok {
			return nil, false
		}
		val, present := m[seg]
		if !present {
			return nil, false
		}
		current = val
	}
	return current, true
}

// resolveTemplate substitutes a value that is the exact string
// "{{path}}" with the value at that dotted path, walking nested maps
// recursively and passing every other value through unchanged (spec
// §4.6 "Parameter templating", §9 design note: exact-match only, no
// expression evaluation).
func resolveTemplate(value any, vars map[string]any) any {
	switch v := value.(type) {
	case string:
		if path, ok := templatePath(v); ok {
			resolved, found := resolvePath(vars, path)
			if !found {
				return nil
			}
			return resolved
		}
		return v
	case map[string]any:
		out := make(map[string]any, len(v))
		for k, val := range v {
			out[k] = resolveTemplate(val, vars)
		}
		return out
	default:
		return v
	}
}

// templatePath reports whether s is of the exact form "{{path}}" and,
// if so, returns path.
func templatePath(s string) (string, bool) {
	if len(s) < 5 || !strings.HasPrefix(s, "{{") || !strings.HasSuffix(s, "}}") {
		return "", false
	}
	return strings.TrimSpace(s[2 : len(s)-2]), true
}

// resolveParams resolves every value in params via resolveTemplate.
func resolveParams(params map[string]any, vars map[string]any) map[string]any {
	if params == nil {
		return nil
	}
	out := make(map[string]any, len(params))
	for k, v := range params {
		out[k] = resolveTemplate(v, vars)
	}
	return out
}

// toFloat coerces a value to float64 for numeric operators, returning
// ok=false if the value cannot be interpreted as a number.
func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case string:
		f, err := strconv.ParseFloat(n, 64)
		if err != nil {
			return 0, false
		}
		return f, true
	default:
		return 0, false
	}
}

func toStringValue(v any) string {
	if v == nil {
		return ""
	}
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprintf("%v", v)
}

func toSequence(v any) ([]any, bool) {
	seq, ok := v.([]any)
	return seq, ok
}

// evalOperator applies one of the spec's condition operators (spec
// §4.6 "Condition operator set"). Unknown operators evaluate to false
// rather than erroring, keeping every condition total.
func evalOperator(operator string, left, right any) bool {
	switch operator {
	case "eq":
		return looseEqual(left, right)
	case "neq":
		return !looseEqual(left, right)
	case "gt", "gte", "lt", "lte":
		lf, lok := toFloat(left)
		rf, rok := toFloat(right)
		if !lok || !rok {
			return false
		}
		switch operator {
		case "gt":
			return lf > rf
		case "gte":
			return lf >= rf
		case "lt":
			return lf < rf
		case "lte":
			return lf <= rf
		}
	case "contains":
		return strings.Contains(toStringValue(left), toStringValue(right))
	case "startsWith":
		return strings.HasPrefix(toStringValue(left), toStringValue(right))
	case "endsWith":
		return strings.HasSuffix(toStringValue(left), toStringValue(right))
	case "in":
		seq, ok := toSequence(right)
		if !ok {
			return false
		}
		for _, item := range seq {
			if looseEqual(left, item) {
				return true
			}
		}
		return false
	case "notIn":
		seq, ok := toSequence(right)
		if !ok {
			return false
		}
		for _, item := range seq {
			if looseEqual(left, item) {
				return false
			}
		}
		return true
	case "isNull":
		return left == nil
	case "isNotNull":
		return left != nil
	}
	return false
}

func looseEqual(a, b any) bool {
	if af, aok := toFloat(a); aok {
		if bf, bok := toFloat(b); bok {
			return af == bf
		}
	}
	return fmt.Sprintf("%v", a) == fmt.Sprintf("%v", b)
}
