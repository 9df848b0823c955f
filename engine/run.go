package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/lib/pq"

	"github.com/tidemark-health/guidepost/db"
	"github.com/tidemark-health/guidepost/errors"
)

// ExecutionRun mirrors one row of the execution_run table. A run is created
// per recommendation per cycle, first as running, then flipped to completed
// or failed when its intervals are in.
type ExecutionRun struct {
	RunID            int64     `json:"run_id"`
	RecommendationID string    `json:"recommendation_id"`
	StartDatetime    time.Time `json:"start_datetime"`
	EndDatetime      time.Time `json:"end_datetime"`
	Status           string    `json:"status"`
}

// Run status constants for type safety
const (
	RunStatusRunning   = "running"
	RunStatusCompleted = "completed"
	RunStatusFailed    = "failed"
)

// RecentRuns reads the newest execution runs from the given schema, most
// recent first. It serves operator tooling; the pipeline itself never reads
// runs back.
func RecentRuns(ctx context.Context, q Querier, schema string, limit int) ([]ExecutionRun, error) {
	query := fmt.Sprintf(`SELECT run_id, recommendation_id, start_datetime, end_datetime, status
FROM %s.%s
ORDER BY run_id DESC
LIMIT $1`, pq.QuoteIdentifier(schema), db.TableExecutionRun)

	rows, err := q.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, errors.Wrapf(err, "listing execution runs in schema %q", schema)
	}
	defer rows.Close()

	var runs []ExecutionRun
	for rows.Next() {
		var run ExecutionRun
		if err := rows.Scan(&run.RunID, &run.RecommendationID, &run.StartDatetime, &run.EndDatetime, &run.Status); err != nil {
			return nil, errors.Wrap(err, "scanning execution run")
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}
