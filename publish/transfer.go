package publish

import (
	"context"
	"fmt"
	"strings"

	"github.com/lib/pq"

	"github.com/tidemark-health/guidepost/db"
	"github.com/tidemark-health/guidepost/errors"
)

// transfer atomically replaces the result area with the staging contents.
// One transaction: lock every result table in the fixed table order, then
// truncate them all, then insert-select from staging, then commit. Readers
// either finish before the locks are taken or block until commit; they never
// see a truncated-but-unfilled table. Any failure rolls back and leaves the
// previously published state untouched.
func (p *Publisher) transfer(ctx context.Context) error {
	result := pq.QuoteIdentifier(p.result)
	staging := pq.QuoteIdentifier(p.staging)

	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.Mark(errors.Wrap(err, "beginning transfer"), errors.ErrTransfer)
	}
	defer tx.Rollback() //nolint:errcheck

	// Bound lock acquisition so a stuck reader cannot stall publication
	// forever. SET LOCAL scopes the timeout to this transaction.
	if p.lockTimeout > 0 {
		stmt := fmt.Sprintf("SET LOCAL lock_timeout = '%dms'", p.lockTimeout.Milliseconds())
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return errors.Mark(errors.Wrap(err, "setting lock timeout"), errors.ErrTransfer)
		}
	}

	// Lock order is the fixed table order, identical every cycle, so no two
	// writers can deadlock on these tables.
	for _, table := range db.ResultTables {
		stmt := fmt.Sprintf("LOCK TABLE %s.%s IN ACCESS EXCLUSIVE MODE", result, table)
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return errors.Mark(errors.Wrapf(err, "locking result table %s", table), errors.ErrTransfer)
		}
	}

	for _, table := range db.ResultTables {
		stmt := fmt.Sprintf("TRUNCATE TABLE %s.%s CASCADE", result, table)
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return errors.Mark(errors.Wrapf(err, "truncating result table %s", table), errors.ErrTransfer)
		}
	}

	for _, table := range db.ResultTables {
		if _, err := tx.ExecContext(ctx, copyStmt(result, staging, table)); err != nil {
			return errors.Mark(errors.Wrapf(err, "copying staging table %s", table), errors.ErrTransfer)
		}
	}

	if err := tx.Commit(); err != nil {
		return errors.Mark(errors.Wrap(err, "committing transfer"), errors.ErrTransfer)
	}

	p.log.Infow("results published",
		"from", p.staging,
		"to", p.result,
		"tables", db.ResultTables,
	)
	return nil
}

// copyStmt renders the staging-to-result copy for one table. Execution runs
// keep their staging-assigned run ids so interval references stay intact;
// that sequence is never restarted, so run ids advance across cycles.
// Result intervals are renumbered by the result area's own result_id
// sequence, which is likewise never reset: published interval ids stay
// strictly increasing even though the staging ids restart at 1 each cycle.
func copyStmt(result, staging, table string) string {
	if table == db.TableResultInterval {
		cols := strings.Join(db.ResultIntervalColumns, ", ")
		return fmt.Sprintf("INSERT INTO %s.%s (%s) SELECT %s FROM %s.%s ORDER BY result_id",
			result, table, cols, cols, staging, table)
	}
	return fmt.Sprintf("INSERT INTO %s.%s SELECT * FROM %s.%s", result, table, staging, table)
}
