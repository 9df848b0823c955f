// Package engine evaluates guideline recommendations against an OMOP
// clinical database and writes the resulting person/time intervals to the
// staging area of the pipeline database.
//
// The engine is assembled through a Builder that holds three ordered
// converter slots (characteristic, action, time-from-event). Recommendation
// sets extend the default slots by prepending specialized converters;
// resolution always takes the first converter that matches a criterion.
package engine

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	"github.com/lib/pq"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/tidemark-health/guidepost/db"
	"github.com/tidemark-health/guidepost/errors"
)

// Remote definition servers are shared infrastructure; fetches are paced so
// a catalog load never bursts.
const (
	remoteFetchInterval = 200 * time.Millisecond
	remoteFetchBurst    = 3
)

// Engine is the default Evaluator. It owns no goroutines; Execute runs
// synchronously on the caller and is safe for concurrent use, though the
// publisher serializes cycles anyway.
type Engine struct {
	db            *sql.DB
	stagingSchema string
	client        Doer
	limiter       *rate.Limiter
	log           *zap.SugaredLogger

	characteristic []Converter
	action         []Converter
	timeFromEvent  []Converter

	mu       sync.RWMutex
	registry map[string]*Recommendation
}

var _ Evaluator = (*Engine)(nil)

func newEngine(deps Deps, characteristic, action, timeFromEvent []Converter) *Engine {
	return &Engine{
		db:             deps.DB,
		stagingSchema:  deps.StagingSchema,
		client:         deps.Client,
		limiter:        rate.NewLimiter(rate.Every(remoteFetchInterval), remoteFetchBurst),
		log:            deps.Logger,
		characteristic: characteristic,
		action:         action,
		timeFromEvent:  timeFromEvent,
		registry:       make(map[string]*Recommendation),
	}
}

// RegisterRecommendation makes a code-defined recommendation available under
// its ID. Registering the same ID again replaces the earlier entry.
func (e *Engine) RegisterRecommendation(rec *Recommendation) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.registry[rec.ID] = rec
}

// Registered returns the recommendation registered under id, if any.
func (e *Engine) Registered(id string) (*Recommendation, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	rec, ok := e.registry[id]
	return rec, ok
}

// converterFor resolves a criterion against the slot matching its kind. The
// first converter that matches wins.
func (e *Engine) converterFor(criterion Criterion) (Converter, error) {
	var slot []Converter
	switch criterion.Kind {
	case KindCharacteristic:
		slot = e.characteristic
	case KindAction:
		slot = e.action
	case KindTimeFromEvent:
		slot = e.timeFromEvent
	default:
		return nil, errors.Newf("criterion %q has unknown kind %q", criterion.Name, criterion.Kind)
	}
	for _, c := range slot {
		if c.Matches(criterion) {
			return c, nil
		}
	}
	return nil, errors.Newf("no converter accepts criterion %q (kind %s, domain %s)",
		criterion.Name, criterion.Kind, criterion.Domain)
}

// Execute evaluates rec over [start, end) and writes one execution run plus
// its result intervals to the staging schema. On failure the run row is
// flipped to failed and an execution error is returned so the cycle can skip
// this recommendation and continue.
func (e *Engine) Execute(ctx context.Context, rec *Recommendation, start, end time.Time) error {
	if rec == nil {
		return errors.Mark(errors.New("executing nil recommendation"), errors.ErrExecution)
	}
	window := Window{Start: start, End: end}

	runID, err := e.beginRun(ctx, rec, window)
	if err != nil {
		return errors.Mark(errors.Wrapf(err, "starting run for recommendation %q", rec.ID), errors.ErrExecution)
	}

	log := e.log.With("run_id", runID, "recommendation", rec.Name)

	total := 0
	for _, criterion := range rec.Plan.Criteria {
		n, err := e.evaluateCriterion(ctx, runID, criterion, window)
		if err != nil {
			e.failRun(ctx, runID)
			return errors.Mark(errors.Wrapf(err, "evaluating recommendation %q", rec.ID), errors.ErrExecution)
		}
		total += n
	}

	if err := e.finishRun(ctx, runID, RunStatusCompleted); err != nil {
		return errors.Mark(errors.Wrapf(err, "completing run for recommendation %q", rec.ID), errors.ErrExecution)
	}

	log.Infow("recommendation evaluated",
		"criteria", len(rec.Plan.Criteria),
		"intervals", total,
		"window_start", window.Start,
		"window_end", window.End,
	)
	return nil
}

func (e *Engine) evaluateCriterion(ctx context.Context, runID int64, criterion Criterion, window Window) (int, error) {
	converter, err := e.converterFor(criterion)
	if err != nil {
		return 0, err
	}
	emitter, err := converter.Convert(criterion)
	if err != nil {
		return 0, errors.Wrapf(err, "converter %q rejected criterion %q", converter.Name(), criterion.Name)
	}
	intervals, err := emitter.Emit(ctx, e.db, window)
	if err != nil {
		return 0, err
	}
	if err := e.insertIntervals(ctx, runID, criterion.Name, intervals); err != nil {
		return 0, err
	}
	e.log.Debugw("criterion evaluated",
		"run_id", runID,
		"criterion", criterion.Name,
		"converter", converter.Name(),
		"intervals", len(intervals),
	)
	return len(intervals), nil
}

func (e *Engine) beginRun(ctx context.Context, rec *Recommendation, window Window) (int64, error) {
	query := fmt.Sprintf(`INSERT INTO %s.%s (recommendation_id, start_datetime, end_datetime, status)
VALUES ($1, $2, $3, $4)
RETURNING run_id`, pq.QuoteIdentifier(e.stagingSchema), db.TableExecutionRun)

	var runID int64
	err := e.db.QueryRowContext(ctx, query, rec.ID, window.Start, window.End, RunStatusRunning).Scan(&runID)
	if err != nil {
		return 0, errors.Wrap(err, "inserting execution run")
	}
	return runID, nil
}

func (e *Engine) finishRun(ctx context.Context, runID int64, status string) error {
	query := fmt.Sprintf(`UPDATE %s.%s SET status = $2 WHERE run_id = $1`,
		pq.QuoteIdentifier(e.stagingSchema), db.TableExecutionRun)
	if _, err := e.db.ExecContext(ctx, query, runID, status); err != nil {
		return errors.Wrapf(err, "marking run %d %s", runID, status)
	}
	return nil
}

// failRun is best effort: the run row lives in staging, which the next
// cycle resets anyway.
func (e *Engine) failRun(ctx context.Context, runID int64) {
	if err := e.finishRun(ctx, runID, RunStatusFailed); err != nil {
		e.log.Warnw("could not mark run failed", "run_id", runID, "error", err)
	}
}

// insertIntervals bulk-loads one criterion's intervals through COPY. Staging
// writes are not transactional with each other; the COPY transaction only
// scopes the bulk load itself.
func (e *Engine) insertIntervals(ctx context.Context, runID int64, criterionName string, intervals []Interval) error {
	if len(intervals) == 0 {
		return nil
	}

	tx, err := e.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "beginning interval load")
	}
	defer tx.Rollback() //nolint:errcheck

	stmt, err := tx.PrepareContext(ctx, pq.CopyInSchema(e.stagingSchema, db.TableResultInterval,
		db.ResultIntervalColumns...))
	if err != nil {
		return errors.Wrap(err, "preparing interval copy")
	}

	for _, iv := range intervals {
		if _, err := stmt.ExecContext(ctx, runID, iv.Start, iv.End, iv.PersonID, criterionName, iv.Type); err != nil {
			stmt.Close()
			return errors.Wrapf(err, "buffering interval for criterion %q", criterionName)
		}
	}
	// Flush the buffered rows.
	if _, err := stmt.ExecContext(ctx); err != nil {
		stmt.Close()
		return errors.Wrapf(err, "flushing intervals for criterion %q", criterionName)
	}
	if err := stmt.Close(); err != nil {
		return errors.Wrap(err, "closing interval copy")
	}
	return errors.Wrap(tx.Commit(), "committing interval load")
}
