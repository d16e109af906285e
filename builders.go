package ability

// Builders provide a fluent API for assembling configs and test fixtures.

// PermissionBuilder builds a PermissionConfig.
type PermissionBuilder struct {
	p PermissionConfig
}

func NewPermissionBuilder(name string) *PermissionBuilder {
	return &PermissionBuilder{p: PermissionConfig{Name: name}}
}

func (b *PermissionBuilder) Action(a Action) *PermissionBuilder       { b.p.Action = a; return b }
func (b *PermissionBuilder) Subject(s SubjectType) *PermissionBuilder { b.p.Subject = s; return b }
func (b *PermissionBuilder) Fields(f ...string) *PermissionBuilder {
	b.p.Fields = append(b.p.Fields, f...)
	return b
}
func (b *PermissionBuilder) Conditions(c map[string]any) *PermissionBuilder {
	b.p.Conditions = c
	return b
}
func (b *PermissionBuilder) Inverted() *PermissionBuilder           { b.p.Inverted = true; return b }
func (b *PermissionBuilder) Reason(r string) *PermissionBuilder     { b.p.Reason = r; return b }
func (b *PermissionBuilder) Build() PermissionConfig                { return b.p }

// RoleBuilder builds a RoleConfig. Permission order is preserved.
type RoleBuilder struct {
	r RoleConfig
}

func NewRoleBuilder(name string) *RoleBuilder {
	return &RoleBuilder{r: RoleConfig{Name: name}}
}

func (b *RoleBuilder) Permission(names ...string) *RoleBuilder {
	b.r.Permissions = append(b.r.Permissions, names...)
	return b
}
func (b *RoleBuilder) Build() RoleConfig { return b.r }

// ConfigBuilder assembles a complete Config.
type ConfigBuilder struct {
	cfg *Config
}

func NewConfigBuilder() *ConfigBuilder {
	return &ConfigBuilder{cfg: &Config{Version: 1, Engine: DefaultEngineConfig()}}
}

func (b *ConfigBuilder) Version(v uint16) *ConfigBuilder {
	b.cfg.Version = v
	return b
}

func (b *ConfigBuilder) AddPermission(p PermissionConfig) *ConfigBuilder {
	b.cfg.Permissions = append(b.cfg.Permissions, p)
	return b
}

func (b *ConfigBuilder) AddRole(r RoleConfig) *ConfigBuilder {
	b.cfg.Roles = append(b.cfg.Roles, r)
	return b
}

func (b *ConfigBuilder) AddUser(u UserConfig) *ConfigBuilder {
	b.cfg.Users = append(b.cfg.Users, u)
	return b
}

func (b *ConfigBuilder) EngineSettings(fn func(*EngineConfig)) *ConfigBuilder {
	fn(&b.cfg.Engine)
	return b
}

func (b *ConfigBuilder) Build() *Config { return b.cfg }
