package stores

import (
	"fmt"
	"regexp"
	"sort"
	"strings"
	"unicode"

	ability "github.com/SamuelT19/networks-admin"
)

// RenderFilter renders an ability.Filter into a SQL boolean expression with
// named bind parameters for squealx. Condition keys are the records' JSON
// attribute names (camelCase) and map onto snake_case columns. paramPrefix
// keeps bind names unique when the clause is combined with others in one
// query.
//
// Besides scalar equality, a condition value may be an operator map using
// the vocabulary of the admin list filters: eq, ne, gt, gte, lt, lte, in,
// contains.
func RenderFilter(f ability.Filter, paramPrefix string) (string, map[string]any, error) {
	args := make(map[string]any)
	if f.MatchNone() {
		return "1 = 0", args, nil
	}

	n := 0
	next := func(v any) string {
		name := fmt.Sprintf("%s%d", paramPrefix, n)
		n++
		args[name] = v
		return ":" + name
	}

	grant := "1 = 1"
	if !f.MatchAll {
		orParts := make([]string, 0, len(f.Or))
		for _, conds := range f.Or {
			part, err := renderConditions(conds, next)
			if err != nil {
				return "", nil, err
			}
			orParts = append(orParts, part)
		}
		grant = "(" + strings.Join(orParts, " OR ") + ")"
	}

	clause := grant
	for _, conds := range f.Not {
		part, err := renderConditions(conds, next)
		if err != nil {
			return "", nil, err
		}
		clause += " AND NOT " + part
	}
	return clause, args, nil
}

func renderConditions(conds ability.Conditions, next func(any) string) (string, error) {
	keys := make([]string, 0, len(conds))
	for k := range conds {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, key := range keys {
		col, err := columnFor(key)
		if err != nil {
			return "", err
		}
		switch v := conds[key].(type) {
		case map[string]any:
			part, err := renderOperators(col, v, next)
			if err != nil {
				return "", err
			}
			parts = append(parts, part)
		default:
			parts = append(parts, col+" = "+next(v))
		}
	}
	return "(" + strings.Join(parts, " AND ") + ")", nil
}

func renderOperators(col string, ops map[string]any, next func(any) string) (string, error) {
	keys := make([]string, 0, len(ops))
	for k := range ops {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, op := range keys {
		v := ops[op]
		switch op {
		case "eq":
			parts = append(parts, col+" = "+next(v))
		case "ne":
			parts = append(parts, col+" <> "+next(v))
		case "gt":
			parts = append(parts, col+" > "+next(v))
		case "gte":
			parts = append(parts, col+" >= "+next(v))
		case "lt":
			parts = append(parts, col+" < "+next(v))
		case "lte":
			parts = append(parts, col+" <= "+next(v))
		case "contains":
			parts = append(parts, col+" LIKE "+next("%"+fmt.Sprint(v)+"%"))
		case "in":
			items, ok := v.([]any)
			if !ok {
				return "", fmt.Errorf("operator in wants a list, got %T", v)
			}
			if len(items) == 0 {
				parts = append(parts, "1 = 0")
				continue
			}
			binds := make([]string, 0, len(items))
			for _, item := range items {
				binds = append(binds, next(item))
			}
			parts = append(parts, col+" IN ("+strings.Join(binds, ", ")+")")
		default:
			return "", fmt.Errorf("unsupported condition operator: %s", op)
		}
	}
	return "(" + strings.Join(parts, " AND ") + ")", nil
}

var identRe = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

func columnFor(key string) (string, error) {
	if !identRe.MatchString(key) {
		return "", fmt.Errorf("invalid condition key: %q", key)
	}
	return camelToSnake(key), nil
}

func camelToSnake(s string) string {
	var b strings.Builder
	for i, r := range s {
		if unicode.IsUpper(r) {
			if i > 0 {
				b.WriteByte('_')
			}
			r = unicode.ToLower(r)
		}
		b.WriteRune(r)
	}
	return b.String()
}
