// Command admin-seed provisions a sqlite database from a declarative
// permission config: migrations first, then permissions, roles and users in
// declaration order.
package main

import (
	"context"
	"database/sql"
	"flag"
	"os"

	"github.com/oarkflow/squealx"
	_ "modernc.org/sqlite"

	ability "github.com/SamuelT19/networks-admin"
	"github.com/SamuelT19/networks-admin/logger"
	"github.com/SamuelT19/networks-admin/stores"
)

func main() {
	var (
		configPath = flag.String("config", "permissions.yaml", "permission config file (yaml or json)")
		dbPath     = flag.String("db", "admin.db", "sqlite database path")
	)
	flag.Parse()

	log := logger.NewPhusluLogger()

	cfg, err := ability.NewConfigLoader().LoadFile(*configPath)
	if err != nil {
		log.Error("load config failed", "path", *configPath, "error", err.Error())
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		log.Error("invalid config", "path", *configPath, "error", err.Error())
		os.Exit(1)
	}

	sqlDB, err := sql.Open("sqlite", *dbPath)
	if err != nil {
		log.Error("open database failed", "path", *dbPath, "error", err.Error())
		os.Exit(1)
	}
	defer sqlDB.Close()

	db := squealx.NewDb(sqlDB, "sqlite", "admin")
	if err := stores.Migrate(db); err != nil {
		log.Error("migrate failed", "error", err.Error())
		os.Exit(1)
	}

	ctx := context.Background()
	err = cfg.Apply(ctx,
		stores.NewSQLPermissionStore(db),
		stores.NewSQLRoleStore(db),
		stores.NewSQLUserStore(db),
	)
	if err != nil {
		log.Error("seed failed", "error", err.Error())
		os.Exit(1)
	}

	log.Info("seed complete",
		"permissions", len(cfg.Permissions),
		"roles", len(cfg.Roles),
		"users", len(cfg.Users),
		"db", *dbPath)
}
