package ability

import (
	"fmt"
	"reflect"
	"sort"
	"strings"
)

// ============================================================================
// DOMAIN OBJECTS
// ============================================================================

// Action is the verb a rule grants or forbids.
type Action string

const (
	ActionCreate Action = "create"
	ActionRead   Action = "read"
	ActionUpdate Action = "update"
	ActionDelete Action = "delete"
	// ActionManage is the wildcard action: a rule carrying it applies to
	// every action on its subject.
	ActionManage Action = "manage"
)

// Valid reports whether a is one of the known action verbs.
func (a Action) Valid() bool {
	switch a {
	case ActionCreate, ActionRead, ActionUpdate, ActionDelete, ActionManage:
		return true
	}
	return false
}

// SubjectType names a resource type a rule applies to.
type SubjectType string

const (
	SubjectUser    SubjectType = "User"
	SubjectChannel SubjectType = "Channel"
	SubjectProgram SubjectType = "Program"
	// SubjectAll is the wildcard subject.
	SubjectAll SubjectType = "all"
)

// Valid reports whether s is one of the known subject types.
func (s SubjectType) Valid() bool {
	switch s {
	case SubjectUser, SubjectChannel, SubjectProgram, SubjectAll:
		return true
	}
	return false
}

// SubjectType implements SubjectRef, so a bare type tag can be passed to
// Can/Cannot for type-level checks.
func (s SubjectType) Type() SubjectType { return s }

// SubjectRef is either a SubjectType tag or a concrete Instance.
type SubjectRef interface {
	Type() SubjectType
}

// Instance is a concrete record carrying its own attribute values, needed
// when rules have conditions (e.g. "update Channel where userId = 3").
type Instance interface {
	SubjectRef
	Attribute(name string) (any, bool)
}

// Record is a map-backed Instance for callers that load rows generically.
type Record struct {
	Subject SubjectType
	Attrs   map[string]any
}

func (r Record) Type() SubjectType { return r.Subject }

func (r Record) Attribute(name string) (any, bool) {
	v, ok := r.Attrs[name]
	return v, ok
}

// Conditions is a resolved condition tree: attribute name -> expected value.
// Values are plain JSON kinds; nested maps are compared structurally.
type Conditions map[string]any

// Rule is one compiled authorization rule inside an Ability.
type Rule struct {
	Action     Action      `json:"action"`
	Subject    SubjectType `json:"subject"`
	Fields     []string    `json:"fields,omitempty"`
	Conditions Conditions  `json:"conditions,omitempty"`
	Inverted   bool        `json:"inverted,omitempty"`
	Reason     string      `json:"reason,omitempty"`
}

// Ability is a compiled, per-user snapshot of authorization rules.
// It is immutable after construction; concurrent use is safe.
type Ability struct {
	rules []Rule
}

// NewAbility builds an Ability from an ordered rule list. Order is
// semantically significant: the last rule matching a check wins.
func NewAbility(rules []Rule) *Ability {
	cp := make([]Rule, len(rules))
	copy(cp, rules)
	return &Ability{rules: cp}
}

// Rules returns the ordered compiled rule list.
func (a *Ability) Rules() []Rule {
	cp := make([]Rule, len(a.rules))
	copy(cp, a.rules)
	return cp
}

// ============================================================================
// EVALUATOR
// ============================================================================

// Can reports whether the action is permitted on the subject. When subject is
// a concrete Instance, rule conditions are checked against its attributes;
// for a bare type tag, conditional rules match at the type level.
func (a *Ability) Can(action Action, subject SubjectRef) bool {
	return a.CanField(action, subject, "")
}

// CanField is Can restricted to a single field of the subject.
func (a *Ability) CanField(action Action, subject SubjectRef, field string) bool {
	r := ResolveRule(a.rules, func(r Rule) bool {
		return ruleMatches(r, action, subject, field)
	})
	return r != nil && !r.Inverted
}

// Cannot is the exact negation of Can.
func (a *Ability) Cannot(action Action, subject SubjectRef) bool {
	return !a.Can(action, subject)
}

// CannotField is the exact negation of CanField.
func (a *Ability) CannotField(action Action, subject SubjectRef, field string) bool {
	return !a.CanField(action, subject, field)
}

// RelevantRule returns the rule that decided a check, or nil when no rule
// matched (default deny). Callers use it to surface a forbid Reason.
func (a *Ability) RelevantRule(action Action, subject SubjectRef, field string) *Rule {
	return ResolveRule(a.rules, func(r Rule) bool {
		return ruleMatches(r, action, subject, field)
	})
}

// ResolveRule folds the rule list right to left and returns the last rule
// satisfying pred, or nil. Last-match-wins lives here and nowhere else.
func ResolveRule(rules []Rule, pred func(Rule) bool) *Rule {
	for i := len(rules) - 1; i >= 0; i-- {
		if pred(rules[i]) {
			return &rules[i]
		}
	}
	return nil
}

func ruleMatches(r Rule, action Action, subject SubjectRef, field string) bool {
	if !actionMatches(r.Action, action) || !subjectMatches(r.Subject, subject.Type()) {
		return false
	}
	if len(r.Fields) > 0 {
		if field == "" {
			// A field-less check asks about the subject as a whole. A
			// field-scoped grant answers it; a field-scoped forbid covers
			// only its own fields and cannot.
			if r.Inverted {
				return false
			}
		} else if !containsField(r.Fields, field) {
			return false
		}
	}
	if len(r.Conditions) == 0 {
		return true
	}
	inst, ok := subject.(Instance)
	if !ok {
		// Type-level check: a conditional grant still answers "is this
		// action possible at all on this subject type", while a conditional
		// forbid covers only the rows its conditions select.
		return !r.Inverted
	}
	return conditionsMatch(r.Conditions, inst)
}

func actionMatches(rule, actual Action) bool {
	return rule == ActionManage || rule == actual
}

func subjectMatches(rule, actual SubjectType) bool {
	return rule == SubjectAll || rule == actual
}

func containsField(fields []string, field string) bool {
	for _, f := range fields {
		if f == field {
			return true
		}
	}
	return false
}

func conditionsMatch(conds Conditions, inst Instance) bool {
	for key, want := range conds {
		got, ok := inst.Attribute(key)
		if !ok {
			return false
		}
		if !valueSatisfies(got, want) {
			return false
		}
	}
	return true
}

var conditionOperators = map[string]bool{
	"eq": true, "ne": true,
	"gt": true, "gte": true, "lt": true, "lte": true,
	"contains": true, "in": true,
}

func isOperatorMap(m map[string]any) bool {
	if len(m) == 0 {
		return false
	}
	for k := range m {
		if !conditionOperators[k] {
			return false
		}
	}
	return true
}

// valueSatisfies compares an attribute value against a condition value. A
// map whose keys are all operators is evaluated as an operator set with the
// same vocabulary the SQL renderer uses, so the in-memory and SQL paths
// agree; anything else is plain equality.
func valueSatisfies(got, want any) bool {
	if ops, ok := want.(map[string]any); ok && isOperatorMap(ops) {
		return operatorsHold(got, ops)
	}
	return equalValues(got, want)
}

func operatorsHold(got any, ops map[string]any) bool {
	for op, arg := range ops {
		switch op {
		case "eq":
			if !equalValues(got, arg) {
				return false
			}
		case "ne":
			if equalValues(got, arg) {
				return false
			}
		case "gt", "gte", "lt", "lte":
			gf, ok1 := toFloat(got)
			af, ok2 := toFloat(arg)
			if !ok1 || !ok2 {
				return false
			}
			switch op {
			case "gt":
				if gf <= af {
					return false
				}
			case "gte":
				if gf < af {
					return false
				}
			case "lt":
				if gf >= af {
					return false
				}
			case "lte":
				if gf > af {
					return false
				}
			}
		case "contains":
			s, ok := got.(string)
			if !ok || !strings.Contains(s, fmt.Sprint(arg)) {
				return false
			}
		case "in":
			items, ok := arg.([]any)
			if !ok {
				return false
			}
			found := false
			for _, item := range items {
				if equalValues(got, item) {
					found = true
					break
				}
			}
			if !found {
				return false
			}
		}
	}
	return true
}

// equalValues is deep equality over JSON kinds, with numeric types compared
// by value so that an int64 attribute matches a float64 decoded from JSON.
func equalValues(a, b any) bool {
	if af, aok := toFloat(a); aok {
		bf, bok := toFloat(b)
		return bok && af == bf
	}
	return reflect.DeepEqual(a, b)
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint:
		return float64(n), true
	case uint64:
		return float64(n), true
	case float32:
		return float64(n), true
	case float64:
		return n, true
	}
	return 0, false
}

// sortedFields returns a sorted copy, used by the field projector for
// deterministic output.
func sortedFields(set map[string]struct{}) []string {
	out := make([]string, 0, len(set))
	for f := range set {
		out = append(out, f)
	}
	sort.Strings(out)
	return out
}
