// Package wiring assembles the grace backing store the config layer
// selects, shared by both the coregate server and the coregatectl
// operator CLI so neither duplicates the backend-selection switch.
package wiring

import (
	"fmt"

	badgerdb "github.com/dgraph-io/badger/v4"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/coregate/coregate/internal/config"
	"github.com/coregate/coregate/internal/grace"
	bstore "github.com/coregate/coregate/internal/grace/store/badger"
	mstore "github.com/coregate/coregate/internal/grace/store/memory"
	pstore "github.com/coregate/coregate/internal/grace/store/postgres"
)

// memoryStore is the single in-process store every "memory" backend open
// returns, so successive opens within one process see the same objects.
var memoryStore = mstore.New()

// OpenGraceStore constructs the grace.Store cfg.Backend selects. The
// returned closer releases any resources the store owns (a BadgerDB
// handle, a database connection pool); callers not holding a long-lived
// process (coregatectl, a one-shot command) should defer Close().
func OpenGraceStore(cfg config.GraceConfig) (grace.Store, func() error, error) {
	switch cfg.Backend {
	case "memory":
		return memoryStore, func() error { return nil }, nil

	case "badger":
		db, err := badgerdb.Open(badgerdb.DefaultOptions(cfg.Badger.Path))
		if err != nil {
			return nil, nil, fmt.Errorf("failed to open badger store at %q: %w", cfg.Badger.Path, err)
		}
		return bstore.New(db, "grace/"), db.Close, nil

	case "postgres":
		db, err := gorm.Open(postgres.Open(cfg.Postgres.DSN), &gorm.Config{
			Logger: gormlogger.Default.LogMode(gormlogger.Silent),
		})
		if err != nil {
			return nil, nil, fmt.Errorf("failed to connect to postgres: %w", err)
		}
		store := pstore.New(db)
		if err := store.Migrate(); err != nil {
			return nil, nil, fmt.Errorf("failed to migrate grace store schema: %w", err)
		}
		sqlDB, err := db.DB()
		if err != nil {
			return nil, nil, fmt.Errorf("failed to obtain sql.DB handle: %w", err)
		}
		return store, sqlDB.Close, nil

	default:
		return nil, nil, fmt.Errorf("unknown grace backend %q", cfg.Backend)
	}
}
