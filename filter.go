package ability

import "reflect"

// ============================================================================
// QUERY-FILTER PROJECTOR
// ============================================================================

// Filter is a persistence-layer predicate tree produced from an Ability for
// one action+subject pair. It is meant to be rendered into a WHERE clause
// before the database round-trip, never applied as a post-filter.
//
// A row is accessible when (MatchAll or any Or term matches) and no Not term
// matches. The zero Filter matches no rows: absence of any grant rule must
// propagate as "no access", never as an unscoped query.
type Filter struct {
	MatchAll bool         `json:"matchAll,omitempty"`
	Or       []Conditions `json:"or,omitempty"`
	Not      []Conditions `json:"not,omitempty"`
}

// MatchNone reports whether the filter can never match a row.
func (f Filter) MatchNone() bool {
	return !f.MatchAll && len(f.Or) == 0
}

// Unscoped reports whether the filter matches every row unconditionally.
func (f Filter) Unscoped() bool {
	return f.MatchAll && len(f.Not) == 0
}

// Matches evaluates the filter in memory against a row's attribute map,
// using the same equality semantics as rule condition matching.
func (f Filter) Matches(attrs map[string]any) bool {
	for _, not := range f.Not {
		if condsHold(not, attrs) {
			return false
		}
	}
	if f.MatchAll {
		return true
	}
	for _, or := range f.Or {
		if condsHold(or, attrs) {
			return true
		}
	}
	return false
}

func condsHold(conds Conditions, attrs map[string]any) bool {
	for key, want := range conds {
		got, ok := attrs[key]
		if !ok || !valueSatisfies(got, want) {
			return false
		}
	}
	return true
}

// AccessibleBy projects the compiled rules for action+subject into a Filter
// that scopes list/update/delete queries to permitted rows.
//
// Rules are walked from highest priority (last declared) down. Conditional
// grants accumulate as Or terms and conditional forbids as Not terms. An
// unconditional grant short-circuits to a match-all filter that keeps the
// higher-priority Not terms; an unconditional forbid makes every
// lower-priority grant dead. No grant at all yields a match-none filter.
func (a *Ability) AccessibleBy(action Action, subject SubjectType) Filter {
	var f Filter
	for i := len(a.rules) - 1; i >= 0; i-- {
		r := a.rules[i]
		if !actionMatches(r.Action, action) || !subjectMatches(r.Subject, subject) {
			continue
		}
		if r.Inverted && len(r.Fields) > 0 {
			// Field-scoped forbids restrict columns, not rows.
			continue
		}
		if len(r.Conditions) == 0 {
			if r.Inverted {
				break
			}
			return Filter{MatchAll: true, Not: f.Not}
		}
		if r.Inverted {
			f.Not = appendConditions(f.Not, r.Conditions)
		} else {
			f.Or = appendConditions(f.Or, r.Conditions)
		}
	}
	if len(f.Or) == 0 {
		return Filter{}
	}
	return f
}

// appendConditions skips duplicates, which arise naturally from field-scoped
// permissions compiled into one rule per field sharing the same conditions.
func appendConditions(terms []Conditions, c Conditions) []Conditions {
	for _, t := range terms {
		if reflect.DeepEqual(t, c) {
			return terms
		}
	}
	return append(terms, c)
}
