package memoryinfra

import (
	"context"
	"fmt"

	"github.com/break1145/GraphDo/pkg/config"
	"github.com/jmoiron/sqlx"
)

// Open connects a durable backend, migrates it and checks it answers.
// The memory backend is not durable and is rejected here.
func Open(ctx context.Context, cfg config.DatabaseConfig) (*SQLStore, *sqlx.DB, error) {
	var (
		db  *sqlx.DB
		err error
	)
	switch cfg.Backend {
	case config.StoreBackendSQLite:
		db, err = OpenSQLite(cfg.SQLitePath)
	case config.StoreBackendPostgres:
		db, err = sqlx.ConnectContext(ctx, "postgres", cfg.PostgresDSN())
		if err == nil {
			db.SetMaxOpenConns(cfg.MaxOpenConns)
			db.SetMaxIdleConns(cfg.MaxIdleConns)
			db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
		}
	default:
		return nil, nil, fmt.Errorf("backend %q has no database", cfg.Backend)
	}
	if err != nil {
		return nil, nil, err
	}

	store, err := NewSQLStore(ctx, db)
	if err == nil {
		err = store.Ping(ctx)
	}
	if err != nil {
		_ = db.Close()
		return nil, nil, err
	}
	return store, db, nil
}
