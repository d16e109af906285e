package ability

import (
	"context"
	"encoding/json"
	"errors"
	"reflect"
	"testing"
)

type fakeUserStore struct {
	users map[int64]*User
	calls int
}

func (s *fakeUserStore) GetUser(_ context.Context, id int64) (*User, error) {
	s.calls++
	return s.users[id], nil
}

func (s *fakeUserStore) CreateUser(context.Context, *User) error { return nil }
func (s *fakeUserStore) UpdateUser(context.Context, *User) error { return nil }
func (s *fakeUserStore) DeleteUser(context.Context, int64) error { return nil }
func (s *fakeUserStore) ListUsers(context.Context) ([]*User, error) {
	return nil, nil
}

type mapCache struct {
	abilities map[int64]*Ability
}

func newMapCache() *mapCache { return &mapCache{abilities: make(map[int64]*Ability)} }

func (c *mapCache) Get(_ context.Context, id int64) (*Ability, bool) {
	a, ok := c.abilities[id]
	return a, ok
}
func (c *mapCache) Set(_ context.Context, id int64, a *Ability) { c.abilities[id] = a }
func (c *mapCache) Invalidate(_ context.Context, id int64)      { delete(c.abilities, id) }

func contributorUser(id int64) *User {
	return &User{
		ID:       id,
		Username: "contrib",
		Email:    "contrib@example.com",
		RoleID:   3,
		Role: &Role{
			ID:   3,
			Name: "Contributor",
			Permissions: []Permission{
				{ID: 1, Name: "channel.read", Action: ActionRead, Subject: SubjectChannel},
				{
					ID:         2,
					Name:       "channel.manage.own",
					Action:     ActionManage,
					Subject:    SubjectChannel,
					Conditions: json.RawMessage(`{"userId": "{{userId}}"}`),
				},
			},
		},
	}
}

func TestCompileResolvesOwnership(t *testing.T) {
	store := &fakeUserStore{users: map[int64]*User{3: contributorUser(3)}}
	c := NewCompiler(store)

	a, err := c.Compile(context.Background(), 3)
	if err != nil {
		t.Fatal(err)
	}

	owned := chanRecord(map[string]any{"id": int64(10), "userId": int64(3)})
	foreign := chanRecord(map[string]any{"id": int64(11), "userId": int64(9)})
	if !a.Can(ActionUpdate, owned) {
		t.Error("contributor cannot update own channel")
	}
	if a.Can(ActionUpdate, foreign) {
		t.Error("contributor can update someone else's channel")
	}
	if !a.Can(ActionRead, foreign) {
		t.Error("contributor cannot read another channel")
	}
}

func TestCompileUnknownUser(t *testing.T) {
	c := NewCompiler(&fakeUserStore{users: map[int64]*User{}})

	_, err := c.Compile(context.Background(), 404)
	var nf *UserNotFoundError
	if !errors.As(err, &nf) || nf.UserID != 404 {
		t.Fatalf("err = %v, want UserNotFoundError for 404", err)
	}
	// Callers comparing against the generic sentinel must also match, so the
	// API surface never has to reveal whether the user exists.
	if !errors.Is(err, ErrPermissionDenied) {
		t.Error("UserNotFoundError does not satisfy errors.Is(ErrPermissionDenied)")
	}
}

func TestCompileFieldExpansion(t *testing.T) {
	user := &User{
		ID:     5,
		RoleID: 2,
		Role: &Role{
			ID:   2,
			Name: "Editor",
			Permissions: []Permission{{
				ID:      7,
				Name:    "program.update.content",
				Action:  ActionUpdate,
				Subject: SubjectProgram,
				Fields:  []string{"title", "duration"},
			}},
		},
	}
	a, err := NewCompiler(&fakeUserStore{}).CompileUser(user)
	if err != nil {
		t.Fatal(err)
	}

	rules := a.Rules()
	if len(rules) != 2 {
		t.Fatalf("rules = %d, want one per field", len(rules))
	}
	var fields []string
	for _, r := range rules {
		if len(r.Fields) != 1 {
			t.Fatalf("rule fields = %v, want single field", r.Fields)
		}
		fields = append(fields, r.Fields[0])
	}
	if !reflect.DeepEqual(fields, []string{"title", "duration"}) {
		t.Errorf("expanded fields = %v", fields)
	}
}

func TestCompileFailOpenDefault(t *testing.T) {
	user := contributorUser(3)
	// Malformed template JSON cannot resolve.
	user.Role.Permissions[1].Conditions = json.RawMessage(`{"userId": `)

	a, err := NewCompiler(&fakeUserStore{}).CompileUser(user)
	if err != nil {
		t.Fatal(err)
	}
	// The rule degrades to an unconditional manage grant.
	foreign := chanRecord(map[string]any{"userId": int64(9)})
	if !a.Can(ActionUpdate, foreign) {
		t.Error("fail-open: rule should compile unconditional")
	}
}

func TestCompileFailClosedOption(t *testing.T) {
	user := contributorUser(3)
	user.Role.Permissions[1].Conditions = json.RawMessage(`{"userId": `)

	a, err := NewCompiler(&fakeUserStore{}, WithFailClosedConditions()).CompileUser(user)
	if err != nil {
		t.Fatal(err)
	}
	if a.Can(ActionUpdate, chanRecord(map[string]any{"userId": int64(3)})) {
		t.Error("fail-closed: unresolvable rule should be dropped")
	}
	// The healthy read rule survives.
	if !a.Can(ActionRead, SubjectChannel) {
		t.Error("fail-closed dropped an unrelated rule")
	}
}

func TestCompileUsesCache(t *testing.T) {
	store := &fakeUserStore{users: map[int64]*User{3: contributorUser(3)}}
	cache := newMapCache()
	c := NewCompiler(store, WithAbilityCache(cache))
	ctx := context.Background()

	if _, err := c.Compile(ctx, 3); err != nil {
		t.Fatal(err)
	}
	if _, err := c.Compile(ctx, 3); err != nil {
		t.Fatal(err)
	}
	if store.calls != 1 {
		t.Errorf("store calls = %d, want 1 (second hit served from cache)", store.calls)
	}

	cache.Invalidate(ctx, 3)
	if _, err := c.Compile(ctx, 3); err != nil {
		t.Fatal(err)
	}
	if store.calls != 2 {
		t.Errorf("store calls after invalidate = %d, want 2", store.calls)
	}
}

func TestCompileDanglingRole(t *testing.T) {
	// GetUser succeeds but the role was deleted, so the graph carries no
	// role. Compile must fail, not panic or grant an empty ability.
	store := &fakeUserStore{users: map[int64]*User{8: {ID: 8, Username: "orphan", RoleID: 99}}}
	if _, err := NewCompiler(store).Compile(context.Background(), 8); err == nil {
		t.Fatal("expected error for user whose role is gone")
	}
}

func TestCompileUserWithoutRole(t *testing.T) {
	if _, err := NewCompiler(&fakeUserStore{}).CompileUser(&User{ID: 1}); err == nil {
		t.Error("expected error for user without role graph")
	}
}
