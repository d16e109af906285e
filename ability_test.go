package ability

import (
	"reflect"
	"testing"
)

func chanRecord(attrs map[string]any) Record {
	return Record{Subject: SubjectChannel, Attrs: attrs}
}

func TestManageAllGrantsEverything(t *testing.T) {
	a := NewAbility([]Rule{{Action: ActionManage, Subject: SubjectAll}})

	actions := []Action{ActionCreate, ActionRead, ActionUpdate, ActionDelete}
	subjects := []SubjectType{SubjectUser, SubjectChannel, SubjectProgram}
	for _, act := range actions {
		for _, sub := range subjects {
			if !a.Can(act, sub) {
				t.Errorf("manage/all: Can(%s, %s) = false, want true", act, sub)
			}
		}
	}

	f := a.AccessibleBy(ActionRead, SubjectProgram)
	if !f.Unscoped() {
		t.Errorf("manage/all filter = %+v, want unscoped", f)
	}
}

func TestDefaultDeny(t *testing.T) {
	a := NewAbility(nil)

	if a.Can(ActionRead, SubjectChannel) {
		t.Error("empty ability: Can(read, Channel) = true, want false")
	}
	if r := a.RelevantRule(ActionRead, SubjectChannel, ""); r != nil {
		t.Errorf("empty ability: RelevantRule = %+v, want nil", r)
	}
	if f := a.AccessibleBy(ActionRead, SubjectChannel); !f.MatchNone() {
		t.Errorf("empty ability: filter = %+v, want match-none", f)
	}
	if fields := a.PermittedFields(ActionUpdate, SubjectChannel, []string{"name"}); len(fields) != 0 {
		t.Errorf("empty ability: PermittedFields = %v, want empty", fields)
	}
}

func TestLastRuleWins(t *testing.T) {
	grant := Rule{Action: ActionRead, Subject: SubjectChannel}
	forbid := Rule{Action: ActionRead, Subject: SubjectChannel, Inverted: true}

	a := NewAbility([]Rule{grant, forbid})
	if a.Can(ActionRead, SubjectChannel) {
		t.Error("grant then forbid: Can = true, want false")
	}

	// Same two rules, opposite order, opposite outcome.
	a = NewAbility([]Rule{forbid, grant})
	if !a.Can(ActionRead, SubjectChannel) {
		t.Error("forbid then grant: Can = false, want true")
	}
}

func TestConditionalRuleAgainstInstance(t *testing.T) {
	a := NewAbility([]Rule{{
		Action:     ActionUpdate,
		Subject:    SubjectChannel,
		Conditions: Conditions{"userId": int64(3)},
	}})

	owned := chanRecord(map[string]any{"id": int64(10), "userId": int64(3)})
	foreign := chanRecord(map[string]any{"id": int64(11), "userId": int64(9)})

	if !a.Can(ActionUpdate, owned) {
		t.Error("owned record: Can = false, want true")
	}
	if a.Can(ActionUpdate, foreign) {
		t.Error("foreign record: Can = true, want false")
	}
	// Type-level check: the action is possible in principle.
	if !a.Can(ActionUpdate, SubjectChannel) {
		t.Error("type-level check: Can = false, want true")
	}
}

func TestConditionNumericEquality(t *testing.T) {
	// Conditions decoded from JSON arrive as float64; attributes loaded from
	// SQL arrive as int64. They must still compare equal.
	a := NewAbility([]Rule{{
		Action:     ActionUpdate,
		Subject:    SubjectChannel,
		Conditions: Conditions{"userId": float64(3)},
	}})
	if !a.Can(ActionUpdate, chanRecord(map[string]any{"userId": int64(3)})) {
		t.Error("float64 condition vs int64 attribute: Can = false, want true")
	}
}

func TestFieldScopedRules(t *testing.T) {
	a := NewAbility([]Rule{
		{Action: ActionRead, Subject: SubjectProgram},
		{Action: ActionUpdate, Subject: SubjectProgram, Fields: []string{"title"}},
	})

	if !a.CanField(ActionUpdate, SubjectProgram, "title") {
		t.Error("CanField(update, Program, title) = false, want true")
	}
	if a.CanField(ActionUpdate, SubjectProgram, "duration") {
		t.Error("CanField(update, Program, duration) = true, want false")
	}
	// A field-less check still passes: some field is updatable.
	if !a.Can(ActionUpdate, SubjectProgram) {
		t.Error("Can(update, Program) = false, want true")
	}
}

func TestFieldScopedForbidLeavesSubjectUsable(t *testing.T) {
	a := NewAbility([]Rule{
		{Action: ActionManage, Subject: SubjectAll},
		{Action: ActionUpdate, Subject: SubjectProgram, Fields: []string{"isActive"}, Inverted: true},
	})

	// The forbid covers one column, not the whole subject.
	if !a.Can(ActionUpdate, SubjectProgram) {
		t.Error("Can(update, Program) = false, want true")
	}
	if a.CanField(ActionUpdate, SubjectProgram, "isActive") {
		t.Error("CanField(update, Program, isActive) = true, want false")
	}
	if !a.CanField(ActionUpdate, SubjectProgram, "title") {
		t.Error("CanField(update, Program, title) = false, want true")
	}
	got := a.PermittedFields(ActionUpdate, SubjectProgram, []string{"isActive", "title"})
	if !reflect.DeepEqual(got, []string{"title"}) {
		t.Errorf("PermittedFields = %v, want [title]", got)
	}
}

func TestConditionalForbidTypeLevelCheck(t *testing.T) {
	a := NewAbility([]Rule{
		{Action: ActionRead, Subject: SubjectChannel},
		{Action: ActionRead, Subject: SubjectChannel, Inverted: true, Conditions: Conditions{"isActive": false}},
	})

	// The forbid excludes some rows; reading channels stays possible.
	if !a.Can(ActionRead, SubjectChannel) {
		t.Error("type-level Can(read, Channel) = false, want true")
	}
	if a.Can(ActionRead, chanRecord(map[string]any{"isActive": false})) {
		t.Error("inactive row: Can = true, want false")
	}
	if !a.Can(ActionRead, chanRecord(map[string]any{"isActive": true})) {
		t.Error("active row: Can = false, want true")
	}
}

func TestOperatorConditions(t *testing.T) {
	a := NewAbility([]Rule{{
		Action:  ActionRead,
		Subject: SubjectProgram,
		Conditions: Conditions{
			"duration": map[string]any{"gte": int64(30), "lt": int64(90)},
			"title":    map[string]any{"contains": "news"},
		},
	}})
	rec := func(d int64, title string) Record {
		return Record{Subject: SubjectProgram, Attrs: map[string]any{"duration": d, "title": title}}
	}

	if !a.Can(ActionRead, rec(45, "evening news")) {
		t.Error("in-range row denied")
	}
	if a.Can(ActionRead, rec(10, "evening news")) {
		t.Error("below gte bound granted")
	}
	if a.Can(ActionRead, rec(90, "evening news")) {
		t.Error("lt bound is exclusive")
	}
	if a.Can(ActionRead, rec(45, "late movie")) {
		t.Error("contains mismatch granted")
	}
}

func TestMissingConditionAttributeDenies(t *testing.T) {
	a := NewAbility([]Rule{{
		Action:     ActionDelete,
		Subject:    SubjectChannel,
		Conditions: Conditions{"userId": int64(3)},
	}})
	if a.Can(ActionDelete, chanRecord(map[string]any{"id": int64(1)})) {
		t.Error("record missing condition attribute: Can = true, want false")
	}
}

func TestRelevantRuleSurfacesReason(t *testing.T) {
	a := NewAbility([]Rule{
		{Action: ActionManage, Subject: SubjectAll},
		{Action: ActionDelete, Subject: SubjectProgram, Inverted: true, Reason: "programs are archived, not deleted"},
	})

	if a.Can(ActionDelete, SubjectProgram) {
		t.Error("Can(delete, Program) = true, want false")
	}
	r := a.RelevantRule(ActionDelete, SubjectProgram, "")
	if r == nil || !r.Inverted {
		t.Fatalf("RelevantRule = %+v, want the inverted rule", r)
	}
	if r.Reason != "programs are archived, not deleted" {
		t.Errorf("Reason = %q", r.Reason)
	}
}

func TestRulesReturnsCopy(t *testing.T) {
	a := NewAbility([]Rule{{Action: ActionRead, Subject: SubjectChannel}})
	rules := a.Rules()
	rules[0].Inverted = true
	if a.Cannot(ActionRead, SubjectChannel) {
		t.Error("mutating Rules() result changed the ability")
	}
}
