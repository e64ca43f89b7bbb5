package core

import (
	"fmt"

	"fieldledger/internal/infra/persistence/memory"
	"fieldledger/internal/infra/persistence/postgres"
	"fieldledger/internal/infra/persistence/retry"
	"fieldledger/internal/infra/persistence/sqlite"
)

// StorageDriver identifies a concrete persistent storage implementation.
type StorageDriver string

const (
	StorageMemory   StorageDriver = "memory"   // in-memory only (tests / ephemeral)
	StorageSQLite   StorageDriver = "sqlite"   // embedded sqlite file
	StoragePostgres StorageDriver = "postgres" // PostgreSQL server
)

// StorageConfig selects and configures a backend.
type StorageConfig struct {
	Driver      StorageDriver
	SQLitePath  string
	PostgresDSN string
	// Account scopes all records; empty selects the backend default.
	Account string
	// MaxAttempts bounds serialization-failure retries; zero keeps the default.
	MaxAttempts int
}

// OpenPersistentStore opens the configured backend. An empty driver selects sqlite.
func OpenPersistentStore(cfg StorageConfig, engine *RulesEngine) (PersistentStore, error) {
	if engine == nil {
		engine = NewDefaultRulesEngine()
	}
	policy := retry.Policy{MaxAttempts: cfg.MaxAttempts}
	switch cfg.Driver {
	case StorageMemory:
		return memory.NewStore(engine), nil
	case StorageSQLite, "":
		path := cfg.SQLitePath
		if path == "" {
			path = "fieldledger.db"
		}
		return sqlite.NewStore(path, engine, sqlite.WithAccount(cfg.Account), sqlite.WithRetryPolicy(policy))
	case StoragePostgres:
		return postgres.NewStore(cfg.PostgresDSN, engine, postgres.WithAccount(cfg.Account), postgres.WithRetryPolicy(policy))
	default:
		return nil, fmt.Errorf("unknown storage driver %s", cfg.Driver)
	}
}
