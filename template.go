package ability

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// Condition templates are the persisted form of rule conditions: a JSON tree
// whose string leaves may carry {{attribute}} tokens resolved against the
// acting user at compile time, e.g. {"userId": "{{userId}}"}.

var placeholderRe = regexp.MustCompile(`\{\{\s*([A-Za-z_][A-Za-z0-9_]*)\s*\}\}`)

// ResolveTemplate substitutes placeholder tokens in a condition template
// using the supplied attribute map and returns the concrete tree.
//
//   - Unknown tokens keep their literal text unchanged (template-engine
//     passthrough; a deliberate permissive default, not a failure).
//   - A string that is exactly one token bound to a non-string attribute
//     resolves to the attribute's typed value.
//   - A substituted string that parses as an integer is coerced to int64, so
//     "{{userId}}" against user 7 yields 7, not "7".
//
// Resolution is a pure structural transform and is idempotent.
func ResolveTemplate(tmpl any, attrs map[string]any) (any, error) {
	switch v := tmpl.(type) {
	case nil:
		return nil, nil
	case bool, int, int32, int64, uint, uint64, float32, float64:
		return v, nil
	case string:
		return resolveString(v, attrs), nil
	case []any:
		out := make([]any, len(v))
		for i, item := range v {
			r, err := ResolveTemplate(item, attrs)
			if err != nil {
				return nil, err
			}
			out[i] = r
		}
		return out, nil
	case map[string]any:
		out := make(map[string]any, len(v))
		for k, item := range v {
			r, err := ResolveTemplate(item, attrs)
			if err != nil {
				return nil, err
			}
			out[k] = r
		}
		return out, nil
	default:
		return nil, fmt.Errorf("unsupported template value %T", tmpl)
	}
}

func resolveString(s string, attrs map[string]any) any {
	// Whole-string single token bound to a non-string attribute keeps the
	// attribute's type.
	if m := placeholderRe.FindStringSubmatch(s); m != nil && m[0] == s {
		if v, ok := attrs[m[1]]; ok {
			if _, isStr := v.(string); !isStr {
				return v
			}
		}
	}

	out := placeholderRe.ReplaceAllStringFunc(s, func(tok string) string {
		name := placeholderRe.FindStringSubmatch(tok)[1]
		v, ok := attrs[name]
		if !ok {
			return tok
		}
		return fmt.Sprint(v)
	})

	if n, err := strconv.ParseInt(strings.TrimSpace(out), 10, 64); err == nil {
		return n
	}
	return out
}

// resolveConditions applies ResolveTemplate to a permission's decoded
// condition tree and requires the result to stay an object, since rule
// conditions are attribute->value mappings.
func resolveConditions(tmpl map[string]any, attrs map[string]any) (Conditions, error) {
	resolved, err := ResolveTemplate(map[string]any(tmpl), attrs)
	if err != nil {
		return nil, err
	}
	obj, ok := resolved.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("resolved conditions are %T, want object", resolved)
	}
	return Conditions(obj), nil
}
