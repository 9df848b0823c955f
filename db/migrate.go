package db

import (
	"context"
	"embed"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"go.uber.org/zap"

	"github.com/tidemark-health/guidepost/config"
	"github.com/tidemark-health/guidepost/errors"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// MigrateSchema applies all pending migrations inside the given schema.
// The migration DDL is unqualified; the session's search_path points it at
// the target schema, and the schema_migrations bookkeeping table lives in
// that schema too, so result and staging areas version independently.
func MigrateSchema(ctx context.Context, cfg config.DatabaseConfig, schema string, logger *zap.SugaredLogger) error {
	m, err := newMigrator(ctx, cfg, schema)
	if err != nil {
		return err
	}
	defer m.Close()

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return errors.Wrapf(err, "applying migrations to schema %s", schema)
	}

	version, dirty, err := m.Version()
	if err != nil {
		return errors.Wrapf(err, "reading migration version of schema %s", schema)
	}
	if logger != nil {
		logger.Infow("Migrations complete",
			"schema", schema,
			"version", version,
			"dirty", dirty,
		)
	}
	return nil
}

// SchemaVersion reports the migration version of a schema. ok is false when
// the schema exists but has never been migrated.
func SchemaVersion(ctx context.Context, cfg config.DatabaseConfig, schema string) (version uint, dirty bool, ok bool, err error) {
	m, err := newMigrator(ctx, cfg, schema)
	if err != nil {
		return 0, false, false, err
	}
	defer m.Close()

	version, dirty, err = m.Version()
	if errors.Is(err, migrate.ErrNilVersion) {
		return 0, false, false, nil
	}
	if err != nil {
		return 0, false, false, errors.Wrapf(err, "reading migration version of schema %s", schema)
	}
	return version, dirty, true, nil
}

func newMigrator(ctx context.Context, cfg config.DatabaseConfig, schema string) (*migrate.Migrate, error) {
	scoped, err := connectSearchPath(ctx, cfg, schema)
	if err != nil {
		return nil, err
	}

	src, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		scoped.Close()
		return nil, errors.Wrap(err, "opening embedded migrations")
	}

	driver, err := postgres.WithInstance(scoped, &postgres.Config{
		SchemaName:      schema,
		MigrationsTable: "schema_migrations",
	})
	if err != nil {
		scoped.Close()
		return nil, errors.Wrapf(err, "preparing migration driver for schema %s", schema)
	}

	m, err := migrate.NewWithInstance("iofs", src, cfg.Name, driver)
	if err != nil {
		scoped.Close()
		return nil, errors.Wrapf(err, "preparing migrator for schema %s", schema)
	}
	return m, nil
}
