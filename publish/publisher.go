// Package publish runs staged evaluation cycles: it resets the staging
// area, lets the evaluator write into it per recommendation, then atomically
// swaps the complete result set into the readable result schema. External
// readers only ever see "unchanged" or "fully replaced".
package publish

import (
	"context"
	"database/sql"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/tidemark-health/guidepost/catalog"
	"github.com/tidemark-health/guidepost/config"
	"github.com/tidemark-health/guidepost/engine"
	"github.com/tidemark-health/guidepost/errors"
	"github.com/tidemark-health/guidepost/internal/sysinfo"
)

// State is the publisher's position in the cycle lifecycle.
type State string

const (
	StateIdle         State = "idle"
	StateStaging      State = "staging"
	StateTransferring State = "transferring"
	StateFailed       State = "failed"
)

// Publisher owns the stage-then-publish lifecycle. Cycles are strictly
// serialized: RunCycle blocks behind an in-flight cycle, TryRunCycle skips
// instead.
type Publisher struct {
	db          *sql.DB
	result      string
	staging     string
	lockTimeout time.Duration

	window  *windowTracker
	catalog *catalog.Catalog
	ev      engine.Evaluator
	log     *zap.SugaredLogger
	clock   func() time.Time

	runMu sync.Mutex // serializes cycles

	stateMu    sync.RWMutex
	state      State
	lastReport *CycleReport
}

// Params carries the publisher's collaborators.
type Params struct {
	DB        *sql.DB
	Database  config.DatabaseConfig
	Window    config.WindowConfig
	Catalog   *catalog.Catalog
	Evaluator engine.Evaluator
	Logger    *zap.SugaredLogger

	// Clock overrides time.Now in tests.
	Clock func() time.Time
}

// New validates the wiring and returns an idle publisher.
func New(p Params) (*Publisher, error) {
	switch {
	case p.DB == nil:
		return nil, errors.Mark(errors.New("publisher needs a database"), errors.ErrConfiguration)
	case p.Catalog == nil:
		return nil, errors.Mark(errors.New("publisher needs a catalog"), errors.ErrConfiguration)
	case p.Evaluator == nil:
		return nil, errors.Mark(errors.New("publisher needs an evaluator"), errors.ErrConfiguration)
	}

	tracker, err := newWindowTracker(p.Window)
	if err != nil {
		return nil, errors.Mark(err, errors.ErrConfiguration)
	}

	clock := p.Clock
	if clock == nil {
		clock = time.Now
	}
	log := p.Logger
	if log == nil {
		log = zap.NewNop().Sugar()
	}

	return &Publisher{
		db:          p.DB,
		result:      p.Database.ResultSchema,
		staging:     p.Database.StagingSchema,
		lockTimeout: p.Database.LockTimeout,
		window:      tracker,
		catalog:     p.Catalog,
		ev:          p.Evaluator,
		log:         log,
		clock:       clock,
		state:       StateIdle,
	}, nil
}

// State returns the publisher's current lifecycle position.
func (p *Publisher) State() State {
	p.stateMu.RLock()
	defer p.stateMu.RUnlock()
	return p.state
}

// LastReport returns the most recently finished cycle's report, nil before
// the first cycle completes.
func (p *Publisher) LastReport() *CycleReport {
	p.stateMu.RLock()
	defer p.stateMu.RUnlock()
	return p.lastReport
}

func (p *Publisher) setState(s State) {
	p.stateMu.Lock()
	p.state = s
	p.stateMu.Unlock()
}

func (p *Publisher) storeReport(r *CycleReport) {
	p.stateMu.Lock()
	p.lastReport = r
	p.stateMu.Unlock()
}

// RunCycle executes one full cycle, waiting for any in-flight cycle first.
// The returned report is always non-nil; the error mirrors report.Status.
func (p *Publisher) RunCycle(ctx context.Context) (*CycleReport, error) {
	p.runMu.Lock()
	defer p.runMu.Unlock()
	return p.runCycle(ctx)
}

// TryRunCycle executes one cycle unless one is already running, in which
// case it reports ran=false without queueing.
func (p *Publisher) TryRunCycle(ctx context.Context) (report *CycleReport, ran bool, err error) {
	if !p.runMu.TryLock() {
		return nil, false, nil
	}
	defer p.runMu.Unlock()
	report, err = p.runCycle(ctx)
	return report, true, err
}

func (p *Publisher) runCycle(ctx context.Context) (*CycleReport, error) {
	started := p.clock()
	window := p.window.next(started)
	report := newCycleReport(p.catalog.Set(), window.Start, window.End, started)
	log := p.log.With("cycle_id", report.CycleID)

	log.Infow("cycle started",
		"set", report.Set,
		"window_start", window.Start,
		"window_end", window.End,
	)

	p.setState(StateStaging)

	fail := func(err error) (*CycleReport, error) {
		p.setState(StateFailed)
		report.finish(CycleStatusFailed, p.clock(), err)
		p.storeReport(report)
		p.setState(StateIdle)
		log.Errorw("cycle failed", "error", err, "duration_ms", report.DurationMs)
		return report, err
	}

	handles, err := p.catalog.Handles(ctx, p.ev)
	if err != nil {
		return fail(err)
	}

	if err := p.resetStaging(ctx); err != nil {
		return fail(err)
	}

	for _, rec := range handles {
		recStarted := p.clock()
		err := p.ev.Execute(ctx, rec, window.Start, window.End)
		report.addOutcome(rec.Name, p.clock().Sub(recStarted), err)
		if err == nil {
			continue
		}
		if errors.IsExecution(err) {
			// One failing recommendation must not block the others.
			log.Errorw("recommendation failed, skipping",
				"recommendation", rec.Name,
				"error", err,
			)
			continue
		}
		return fail(err)
	}

	p.setState(StateTransferring)
	if err := p.transfer(ctx); err != nil {
		return fail(err)
	}

	p.window.advance(window.End)
	report.finish(CycleStatusPublished, p.clock(), nil)
	p.storeReport(report)
	p.setState(StateIdle)

	mem := sysinfo.CaptureMemory()
	log.Infow("cycle published",
		"set", report.Set,
		"recommendations", len(handles),
		"skipped", report.Skipped(),
		"duration_ms", report.DurationMs,
		"heap_alloc_mb", mem.HeapAllocMB,
		"host_used_percent", mem.HostUsedPercent,
	)
	return report, nil
}
