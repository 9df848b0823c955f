package publish

import (
	"context"
	"fmt"

	"github.com/lib/pq"

	"github.com/tidemark-health/guidepost/db"
	"github.com/tidemark-health/guidepost/errors"
)

// resetStaging clears the staging area for a fresh cycle: every staging
// table is truncated (cascading to dependents) and the interval identifier
// sequence restarts at 1. Only staging sequences are ever reset; the result
// area's sequences keep counting across cycles.
func (p *Publisher) resetStaging(ctx context.Context) error {
	schema := pq.QuoteIdentifier(p.staging)

	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "beginning staging reset")
	}
	defer tx.Rollback() //nolint:errcheck

	for _, table := range db.ResultTables {
		stmt := fmt.Sprintf("TRUNCATE TABLE %s.%s CASCADE", schema, table)
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return errors.Wrapf(err, "truncating staging table %s", table)
		}
	}

	stmt := fmt.Sprintf("ALTER SEQUENCE %s.%s RESTART WITH 1", schema, db.ResultIDSequence)
	if _, err := tx.ExecContext(ctx, stmt); err != nil {
		return errors.Wrap(err, "restarting staging interval sequence")
	}

	if err := tx.Commit(); err != nil {
		return errors.Wrap(err, "committing staging reset")
	}

	p.log.Debugw("staging area reset", "schema", p.staging, "tables", db.ResultTables)
	return nil
}
