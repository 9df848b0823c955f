package db

import (
	"context"
	"database/sql"
	"time"

	_ "github.com/lib/pq"
	"go.uber.org/zap"

	"github.com/tidemark-health/guidepost/config"
	"github.com/tidemark-health/guidepost/errors"
)

// Connect opens the Postgres connection pool described by cfg and verifies
// it with a ping. If logger is provided, logs connection details; otherwise
// operates silently.
func Connect(ctx context.Context, cfg config.DatabaseConfig, logger *zap.SugaredLogger) (*sql.DB, error) {
	return open(ctx, cfg.DSN()+" fallback_application_name=guidepost", cfg, logger)
}

// connectSearchPath opens a connection pool whose sessions resolve
// unqualified table names inside the given schema. Used for migrations,
// where the DDL files deliberately carry no schema qualifier so the same
// migration set can populate both the result and the staging area.
func connectSearchPath(ctx context.Context, cfg config.DatabaseConfig, schema string) (*sql.DB, error) {
	if !config.ValidIdentifier(schema) {
		return nil, errors.Mark(errors.Newf("schema name %q is not a valid identifier", schema), errors.ErrConfiguration)
	}
	return open(ctx, cfg.DSN()+" fallback_application_name=guidepost search_path="+schema, cfg, nil)
}

func open(ctx context.Context, dsn string, cfg config.DatabaseConfig, logger *zap.SugaredLogger) (*sql.DB, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, errors.Wrap(err, "failed to open database")
	}

	// One cycle runs at a time; the pool only needs headroom for the
	// trigger listener and status queries alongside it.
	db.SetMaxOpenConns(5)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(30 * time.Minute)

	pingCtx := ctx
	if cfg.ConnectTimeoutSeconds > 0 {
		var cancel context.CancelFunc
		pingCtx, cancel = context.WithTimeout(ctx, time.Duration(cfg.ConnectTimeoutSeconds)*time.Second)
		defer cancel()
	}
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, errors.Wrapf(err, "failed to ping database %s", cfg.Name)
	}

	if logger != nil {
		logger.Infow("Database connection established",
			"host", cfg.Host,
			"port", cfg.Port,
			"database", cfg.Name,
			"result_schema", cfg.ResultSchema,
			"staging_schema", cfg.StagingSchema,
		)
	}

	return db, nil
}
