package db

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/lib/pq"
	"go.uber.org/zap"

	"github.com/tidemark-health/guidepost/config"
	"github.com/tidemark-health/guidepost/errors"
)

// Result table names. The slice order is load-bearing: transfer locks,
// truncates and copies the tables in exactly this order every cycle, and
// execution_run must be populated before result_interval so the foreign key
// holds.
var ResultTables = []string{TableExecutionRun, TableResultInterval}

const (
	TableExecutionRun   = "execution_run"
	TableResultInterval = "result_interval"

	// ResultIDSequence is the result_interval identifier sequence. The
	// staging copy is restarted at 1 before every cycle; the result copy is
	// never reset, keeping published identifiers monotonic.
	ResultIDSequence = "result_interval_result_id_seq"
)

// ResultIntervalColumns are the result_interval columns minus the
// sequence-assigned result_id. Staging writes and the transfer both name
// them explicitly, so the identifier always comes from the receiving
// schema's own sequence.
var ResultIntervalColumns = []string{
	"run_id", "interval_start", "interval_end", "person_id", "criterion_name", "interval_type",
}

// SchemaGuard ensures the result and staging schemas exist and carry the
// result tables before the first cycle runs. Every schema-qualified
// statement in the pipeline is rendered from the runtime configuration, so
// a bootstrap simply proceeds in-process once it completes.
type SchemaGuard struct {
	db  *sql.DB
	cfg config.DatabaseConfig
	log *zap.SugaredLogger
}

// NewSchemaGuard creates a guard over an established connection.
func NewSchemaGuard(database *sql.DB, cfg config.DatabaseConfig, logger *zap.SugaredLogger) *SchemaGuard {
	return &SchemaGuard{db: database, cfg: cfg, log: logger}
}

// Ensure checks each evaluation area and bootstraps the missing ones.
// Returns true when any bootstrap ran. An area that already exists is left
// untouched, so a second process start against the same database performs
// zero bootstrap actions.
func (g *SchemaGuard) Ensure(ctx context.Context) (bool, error) {
	bootstrapped := false
	for _, schema := range []string{g.cfg.ResultSchema, g.cfg.StagingSchema} {
		if !config.ValidIdentifier(schema) {
			return bootstrapped, errors.Mark(
				errors.Newf("schema name %q is not a valid identifier", schema),
				errors.ErrConfiguration,
			)
		}

		exists, err := g.SchemaExists(ctx, schema)
		if err != nil {
			return bootstrapped, errors.Wrapf(err, "checking whether schema %s exists", schema)
		}
		if exists {
			g.log.Debugw("Schema exists", "schema", schema)
			continue
		}

		g.log.Warnw("Schema does not exist, creating it now",
			"schema", schema,
			"database", g.cfg.Name,
		)
		if err := g.bootstrapSchema(ctx, schema); err != nil {
			return bootstrapped, err
		}
		bootstrapped = true
	}
	return bootstrapped, nil
}

// SchemaExists queries the catalog for the schema.
func (g *SchemaGuard) SchemaExists(ctx context.Context, schema string) (bool, error) {
	var count int
	err := g.db.QueryRowContext(ctx,
		"SELECT count(*) FROM information_schema.schemata WHERE schema_name = $1",
		schema,
	).Scan(&count)
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

// Bootstrap creates both evaluation areas unconditionally. Idempotent; used
// by the explicit `guidepost db init` path.
func (g *SchemaGuard) Bootstrap(ctx context.Context) error {
	for _, schema := range []string{g.cfg.ResultSchema, g.cfg.StagingSchema} {
		if err := g.bootstrapSchema(ctx, schema); err != nil {
			return err
		}
	}
	return nil
}

func (g *SchemaGuard) bootstrapSchema(ctx context.Context, schema string) error {
	if !config.ValidIdentifier(schema) {
		return errors.Mark(errors.Newf("schema name %q is not a valid identifier", schema), errors.ErrConfiguration)
	}

	if _, err := g.db.ExecContext(ctx, fmt.Sprintf("CREATE SCHEMA IF NOT EXISTS %s", pq.QuoteIdentifier(schema))); err != nil {
		return errors.Mark(errors.Wrapf(err, "creating schema %s", schema), errors.ErrBootstrap)
	}

	if err := MigrateSchema(ctx, g.cfg, schema, g.log); err != nil {
		return errors.Mark(err, errors.ErrBootstrap)
	}

	g.log.Infow("Schema bootstrapped", "schema", schema)
	return nil
}
