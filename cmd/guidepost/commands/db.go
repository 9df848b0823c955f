package commands

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/lib/pq"
	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/tidemark-health/guidepost/db"
	"github.com/tidemark-health/guidepost/engine"
	"github.com/tidemark-health/guidepost/errors"
	"github.com/tidemark-health/guidepost/logger"
)

// DbCmd groups database operations.
var DbCmd = &cobra.Command{
	Use:   "db",
	Short: "Manage the guidepost evaluation schemas",
	Long: `db — Inspect and bootstrap the evaluation schemas.

The pipeline writes to two schemas: the staging schema (private, reset each
cycle) and the result schema (readable, replaced atomically). Both carry the
same tables and are versioned by independent migration bookkeeping.

Examples:
  guidepost db status             # Schema existence, versions, row counts
  guidepost db init               # Create both schemas and their tables
  guidepost db runs               # Recently published execution runs
  guidepost db runs --staging     # Runs from the current staging content`,
}

var dbStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show schema existence, migration versions and row counts",
	RunE:  runDbStatus,
}

var dbInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Create the result and staging schemas",
	Long: `Create both evaluation schemas and their tables.

The daemon bootstraps missing schemas on startup by itself; this command
exists for provisioning a database ahead of time, for example from a
deployment pipeline. It is safe to run against existing schemas.`,
	RunE: runDbInit,
}

var dbRunsCmd = &cobra.Command{
	Use:   "runs",
	Short: "List recent execution runs",
	Long:  "List the most recent execution runs in the result schema (or the staging schema with --staging).",
	RunE:  runDbRuns,
}

var (
	runsLimitFlag   int
	runsStagingFlag bool
)

func init() {
	DbCmd.AddCommand(dbStatusCmd)
	DbCmd.AddCommand(dbInitCmd)
	DbCmd.AddCommand(dbRunsCmd)
	dbRunsCmd.Flags().IntVar(&runsLimitFlag, "limit", 20, "Number of runs to show")
	dbRunsCmd.Flags().BoolVar(&runsStagingFlag, "staging", false, "Read the staging schema instead of the result schema")
}

func runDbStatus(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	ctx := context.Background()
	database, err := db.Connect(ctx, cfg.Database, logger.Logger)
	if err != nil {
		return errors.Wrap(err, "failed to connect to database")
	}
	defer database.Close()

	guard := db.NewSchemaGuard(database, cfg.Database, logger.Logger)

	fmt.Printf("Database: %s@%s:%d/%s\n", cfg.Database.User, cfg.Database.Host, cfg.Database.Port, cfg.Database.Name)
	fmt.Printf("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━\n\n")

	for _, area := range []struct {
		role   string
		schema string
	}{
		{"result", cfg.Database.ResultSchema},
		{"staging", cfg.Database.StagingSchema},
	} {
		exists, err := guard.SchemaExists(ctx, area.schema)
		if err != nil {
			return errors.Wrapf(err, "failed to check schema %s", area.schema)
		}

		fmt.Printf("%s schema %q:\n", area.role, area.schema)
		if !exists {
			fmt.Printf("  missing (run `guidepost db init` or let the daemon bootstrap it)\n\n")
			continue
		}

		version, dirty, migrated, err := db.SchemaVersion(ctx, cfg.Database, area.schema)
		if err != nil {
			return errors.Wrapf(err, "failed to read migration version of %s", area.schema)
		}
		switch {
		case !migrated:
			fmt.Printf("  exists, never migrated\n")
		case dirty:
			fmt.Printf("  exists, migration version %d (dirty!)\n", version)
		default:
			fmt.Printf("  exists, migration version %d\n", version)
		}

		for _, table := range db.ResultTables {
			count, err := tableCount(ctx, database, area.schema, table)
			if err != nil {
				return errors.Wrapf(err, "failed to count %s.%s", area.schema, table)
			}
			fmt.Printf("  %-16s %d rows\n", table, count)
		}
		fmt.Println()
	}

	return nil
}

func runDbInit(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	ctx := context.Background()
	database, err := db.Connect(ctx, cfg.Database, logger.Logger)
	if err != nil {
		return errors.Wrap(err, "failed to connect to database")
	}
	defer database.Close()

	guard := db.NewSchemaGuard(database, cfg.Database, logger.Logger)
	if err := guard.Bootstrap(ctx); err != nil {
		return errors.Wrap(err, "failed to bootstrap schemas")
	}

	pterm.Success.Printf("Schemas %s and %s are ready\n", cfg.Database.ResultSchema, cfg.Database.StagingSchema)
	return nil
}

func runDbRuns(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	schema := cfg.Database.ResultSchema
	if runsStagingFlag {
		schema = cfg.Database.StagingSchema
	}

	ctx := context.Background()
	database, err := db.Connect(ctx, cfg.Database, logger.Logger)
	if err != nil {
		return errors.Wrap(err, "failed to connect to database")
	}
	defer database.Close()

	runs, err := engine.RecentRuns(ctx, database, schema, runsLimitFlag)
	if err != nil {
		return err
	}
	if len(runs) == 0 {
		fmt.Printf("No execution runs in schema %q yet\n", schema)
		return nil
	}

	fmt.Printf("Execution runs in schema %q (newest first):\n", schema)
	fmt.Printf("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━\n")
	for _, run := range runs {
		fmt.Printf("  #%-6d %-9s %s .. %s  %s\n",
			run.RunID,
			run.Status,
			run.StartDatetime.Format("2006-01-02 15:04"),
			run.EndDatetime.Format("2006-01-02 15:04"),
			run.RecommendationID,
		)
	}
	return nil
}

func tableCount(ctx context.Context, database *sql.DB, schema, table string) (int64, error) {
	var count int64
	query := fmt.Sprintf("SELECT count(*) FROM %s.%s", pq.QuoteIdentifier(schema), table)
	err := database.QueryRowContext(ctx, query).Scan(&count)
	return count, err
}
