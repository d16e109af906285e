package ability

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// ============================================================================
// DECLARATIVE CONFIGURATION
// ============================================================================

// Config is the declarative form of the authorization catalog: permissions,
// roles (ordered permission names) and users, plus engine settings. It is
// how deployments seed the store and how tests build fixtures.
type Config struct {
	Version     uint16             `json:"version" yaml:"version"`
	Permissions []PermissionConfig `json:"permissions" yaml:"permissions"`
	Roles       []RoleConfig       `json:"roles" yaml:"roles"`
	Users       []UserConfig       `json:"users,omitempty" yaml:"users,omitempty"`
	Engine      EngineConfig       `json:"engine" yaml:"engine"`
}

// PermissionConfig declares one permission. Conditions is the template form
// (placeholders unresolved).
type PermissionConfig struct {
	Name       string         `json:"name" yaml:"name"`
	Action     Action         `json:"action" yaml:"action"`
	Subject    SubjectType    `json:"subject" yaml:"subject"`
	Fields     []string       `json:"fields,omitempty" yaml:"fields,omitempty"`
	Conditions map[string]any `json:"conditions,omitempty" yaml:"conditions,omitempty"`
	Inverted   bool           `json:"inverted,omitempty" yaml:"inverted,omitempty"`
	Reason     string         `json:"reason,omitempty" yaml:"reason,omitempty"`
}

// RoleConfig declares a role as an ordered list of permission names. Order
// is the compile-time declaration order and must be preserved.
type RoleConfig struct {
	Name        string   `json:"name" yaml:"name"`
	Permissions []string `json:"permissions" yaml:"permissions"`
}

// UserConfig declares a seeded user bound to one role by name.
type UserConfig struct {
	Username string `json:"username" yaml:"username"`
	Email    string `json:"email" yaml:"email"`
	Password string `json:"password,omitempty" yaml:"password,omitempty"`
	Role     string `json:"role" yaml:"role"`
}

// EngineConfig carries runtime tuning for compiler caching.
type EngineConfig struct {
	AbilityCacheTTL      int64 `json:"ability_cache_ttl_ms" yaml:"ability_cache_ttl_ms"`
	RistrettoNumCounters int64 `json:"ristretto_num_counters" yaml:"ristretto_num_counters"`
	RistrettoMaxCost     int64 `json:"ristretto_max_cost" yaml:"ristretto_max_cost"`
	RistrettoBufferItems int64 `json:"ristretto_buffer_items" yaml:"ristretto_buffer_items"`
	FailClosedConditions bool  `json:"fail_closed_conditions" yaml:"fail_closed_conditions"`
}

// DefaultEngineConfig returns the settings used when a field is unset.
func DefaultEngineConfig() EngineConfig {
	return EngineConfig{
		AbilityCacheTTL:      5000,
		RistrettoNumCounters: 10_000,
		RistrettoMaxCost:     1 << 20,
		RistrettoBufferItems: 64,
	}
}

// ConfigLoader loads configuration from YAML or JSON.
type ConfigLoader struct{}

func NewConfigLoader() *ConfigLoader { return &ConfigLoader{} }

func (l *ConfigLoader) LoadYAML(data []byte) (*Config, error) {
	cfg := &Config{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, err
	}
	return cfg, cfg.Validate()
}

func (l *ConfigLoader) LoadJSON(data []byte) (*Config, error) {
	cfg := &Config{}
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, err
	}
	return cfg, cfg.Validate()
}

// LoadFile picks the codec from the file extension (.yaml/.yml/.json).
func (l *ConfigLoader) LoadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	switch {
	case strings.HasSuffix(path, ".yaml"), strings.HasSuffix(path, ".yml"):
		return l.LoadYAML(data)
	case strings.HasSuffix(path, ".json"):
		return l.LoadJSON(data)
	}
	return nil, fmt.Errorf("unsupported config extension: %s", path)
}

func (c *Config) ToYAML() ([]byte, error) { return yaml.Marshal(c) }
func (c *Config) ToJSON() ([]byte, error) { return json.MarshalIndent(c, "", "  ") }

// Validate checks referential integrity and the closed action/subject
// vocabularies, so a typo cannot silently create a dead rule.
func (c *Config) Validate() error {
	perms := make(map[string]bool, len(c.Permissions))
	for _, p := range c.Permissions {
		if p.Name == "" {
			return fmt.Errorf("permission with empty name")
		}
		if perms[p.Name] {
			return fmt.Errorf("duplicate permission name: %s", p.Name)
		}
		perms[p.Name] = true
		if !p.Action.Valid() {
			return fmt.Errorf("permission %s: unknown action %q", p.Name, p.Action)
		}
		if !p.Subject.Valid() {
			return fmt.Errorf("permission %s: unknown subject %q", p.Name, p.Subject)
		}
	}
	roles := make(map[string]bool, len(c.Roles))
	for _, r := range c.Roles {
		if r.Name == "" {
			return fmt.Errorf("role with empty name")
		}
		if roles[r.Name] {
			return fmt.Errorf("duplicate role name: %s", r.Name)
		}
		roles[r.Name] = true
		for _, pn := range r.Permissions {
			if !perms[pn] {
				return fmt.Errorf("role %s references unknown permission %s", r.Name, pn)
			}
		}
	}
	for _, u := range c.Users {
		if !roles[u.Role] {
			return fmt.Errorf("user %s references unknown role %s", u.Username, u.Role)
		}
	}
	return nil
}

// Apply seeds the stores from the config: permissions first, then roles with
// their ordered membership, then users. The user store may be nil when the
// config carries no users.
func (c *Config) Apply(ctx context.Context, perms PermissionStore, roles RoleStore, users UserStore) error {
	if err := c.Validate(); err != nil {
		return err
	}

	permIDs := make(map[string]int64, len(c.Permissions))
	for _, pc := range c.Permissions {
		p := &Permission{
			Name:     pc.Name,
			Action:   pc.Action,
			Subject:  pc.Subject,
			Fields:   pc.Fields,
			Inverted: pc.Inverted,
			Reason:   pc.Reason,
		}
		if len(pc.Conditions) > 0 {
			raw, err := json.Marshal(pc.Conditions)
			if err != nil {
				return fmt.Errorf("encode conditions for %s: %w", pc.Name, err)
			}
			p.Conditions = raw
		}
		if err := perms.CreatePermission(ctx, p); err != nil {
			return fmt.Errorf("create permission %s: %w", pc.Name, err)
		}
		permIDs[pc.Name] = p.ID
	}

	roleIDs := make(map[string]int64, len(c.Roles))
	for _, rc := range c.Roles {
		ids := make([]int64, 0, len(rc.Permissions))
		for _, pn := range rc.Permissions {
			ids = append(ids, permIDs[pn])
		}
		r := &Role{Name: rc.Name}
		if err := roles.CreateRole(ctx, r, ids); err != nil {
			return fmt.Errorf("create role %s: %w", rc.Name, err)
		}
		roleIDs[rc.Name] = r.ID
	}

	if users == nil {
		if len(c.Users) > 0 {
			return fmt.Errorf("config declares users but no user store given")
		}
		return nil
	}
	for _, uc := range c.Users {
		u := &User{
			Username: uc.Username,
			Email:    uc.Email,
			Password: uc.Password,
			RoleID:   roleIDs[uc.Role],
		}
		if err := users.CreateUser(ctx, u); err != nil {
			return fmt.Errorf("create user %s: %w", uc.Username, err)
		}
	}
	return nil
}
