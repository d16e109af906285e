package ability

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/SamuelT19/networks-admin/logger"
)

// ============================================================================
// ABILITY COMPILER
// ============================================================================

// Compiler turns a user's stored role into a compiled Ability. It holds no
// mutable state of its own; every Compile is a pure function of the user
// graph it reads (plus the optional cache, which holds only what Compile
// itself produced).
type Compiler struct {
	users      UserStore
	cache      AbilityCache
	logger     logger.Logger
	failClosed bool
}

// CompilerOption configures a Compiler.
type CompilerOption func(*Compiler)

// WithAbilityCache installs a per-user ability cache. Call sites that mutate
// roles or permissions must invalidate affected users themselves.
func WithAbilityCache(c AbilityCache) CompilerOption {
	return func(cp *Compiler) { cp.cache = c }
}

// WithLogger installs a structured logger on the compiler.
func WithLogger(l logger.Logger) CompilerOption {
	return func(cp *Compiler) { cp.logger = l }
}

// WithFailClosedConditions drops a rule whose condition template fails to
// resolve instead of compiling it as an unconditional grant. The default
// (fail-open to an unconditional rule) reproduces the original behavior;
// this toggle exists because that default is a flagged policy decision.
func WithFailClosedConditions() CompilerOption {
	return func(cp *Compiler) { cp.failClosed = true }
}

// NewCompiler builds a Compiler over the given user store.
func NewCompiler(users UserStore, opts ...CompilerOption) *Compiler {
	c := &Compiler{users: users, logger: logger.NewNullLogger()}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Compile loads the user's role graph and produces its Ability. It returns
// *UserNotFoundError when the user id cannot be located; transient store
// failures propagate unwrapped so the caller's own retry policy applies.
func (c *Compiler) Compile(ctx context.Context, userID int64) (*Ability, error) {
	if c.cache != nil {
		if a, ok := c.cache.Get(ctx, userID); ok {
			return a, nil
		}
	}

	user, err := c.users.GetUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, &UserNotFoundError{UserID: userID}
	}
	if user.Role == nil {
		// The role was deleted out from under the user; deny instead of
		// compiling an empty ability silently.
		return nil, fmt.Errorf("compile user %d: role not found", userID)
	}

	a := c.compileUser(user)
	if c.cache != nil {
		c.cache.Set(ctx, userID, a)
	}
	return a, nil
}

// CompileUser compiles an already-loaded user graph, bypassing store and
// cache. The graph must include role and permissions.
func (c *Compiler) CompileUser(user *User) (*Ability, error) {
	if user == nil || user.Role == nil {
		return nil, fmt.Errorf("user graph missing role")
	}
	return c.compileUser(user), nil
}

func (c *Compiler) compileUser(user *User) *Ability {
	attrs := user.TemplateAttrs()
	rules := make([]Rule, 0, len(user.Role.Permissions))

	for _, perm := range user.Role.Permissions {
		conds, err := c.resolvePermission(perm, attrs)
		if err != nil {
			c.logger.Error("condition resolution failed",
				"permission_id", perm.ID,
				"permission", perm.Name,
				"user_id", user.ID,
				"fail_closed", c.failClosed,
				"error", err.Error())
			if c.failClosed {
				continue
			}
			conds = nil // degrade to an unconditional rule
		}

		if len(perm.Fields) > 0 {
			// One compiled rule per field so field grants and forbids
			// compose independently under last-rule-wins.
			for _, field := range perm.Fields {
				rules = append(rules, Rule{
					Action:     perm.Action,
					Subject:    perm.Subject,
					Fields:     []string{field},
					Conditions: conds,
					Inverted:   perm.Inverted,
					Reason:     perm.Reason,
				})
			}
			continue
		}
		rules = append(rules, Rule{
			Action:     perm.Action,
			Subject:    perm.Subject,
			Conditions: conds,
			Inverted:   perm.Inverted,
			Reason:     perm.Reason,
		})
	}

	c.logger.Debug("compiled ability",
		"user_id", user.ID,
		"role", user.Role.Name,
		"rules", len(rules))
	return NewAbility(rules)
}

func (c *Compiler) resolvePermission(perm Permission, attrs map[string]any) (Conditions, error) {
	if len(perm.Conditions) == 0 {
		return nil, nil
	}
	var tmpl map[string]any
	if err := json.Unmarshal(perm.Conditions, &tmpl); err != nil {
		return nil, &ConditionResolutionError{PermissionID: perm.ID, Err: err}
	}
	conds, err := resolveConditions(tmpl, attrs)
	if err != nil {
		return nil, &ConditionResolutionError{PermissionID: perm.ID, Err: err}
	}
	return conds, nil
}
