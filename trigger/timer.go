package trigger

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/tidemark-health/guidepost/db"
)

// pollInterval is how often the timer loop wakes to check whether a cycle is
// due. Cycle intervals are minutes to hours, so a coarse poll is plenty; the
// loop never polls coarser than the cycle interval itself.
const pollInterval = 30 * time.Second

// Timer runs one cycle immediately on Start, then one per interval. A cycle
// that overruns its interval absorbs the missed invocations: the loop skips
// them rather than queueing, and the next eligible poll runs a single cycle.
type Timer struct {
	runner   CycleRunner
	interval time.Duration
	poll     time.Duration
	ctx      context.Context
	cancel   context.CancelFunc
	wg       sync.WaitGroup
	log      *zap.SugaredLogger

	mu        sync.Mutex
	lastStart time.Time
	cycles    int64
	skips     int64
}

// NewTimer creates a timer-mode controller. The interval must be positive;
// New validates that before dispatching here.
func NewTimer(interval time.Duration, runner CycleRunner, log *zap.SugaredLogger) *Timer {
	ctx, cancel := context.WithCancel(context.Background())

	poll := pollInterval
	if interval < poll {
		poll = interval
	}

	return &Timer{
		runner:   runner,
		interval: interval,
		poll:     poll,
		ctx:      ctx,
		cancel:   cancel,
		log:      log.Named("trigger"),
	}
}

// Start begins the scheduling loop.
func (t *Timer) Start() error {
	t.wg.Add(1)
	go t.run()
	t.log.Infow("timer trigger started", "interval", t.interval, "poll", t.poll)
	return nil
}

// Stop cancels the loop and waits for it to exit. An in-flight cycle sees
// its context cancelled and fails; the previously published state stays.
func (t *Timer) Stop() {
	t.cancel()
	t.wg.Wait()
	t.log.Infow("timer trigger stopped")
}

func (t *Timer) run() {
	defer t.wg.Done()

	ticker := time.NewTicker(t.poll)
	defer ticker.Stop()

	// First cycle runs immediately, not one interval in.
	t.attempt()

	for {
		select {
		case <-t.ctx.Done():
			return
		case <-ticker.C:
			t.attempt()
		}
	}
}

// attempt runs one cycle when the interval has elapsed since the last cycle
// start. The cycle executes on this goroutine, so a long cycle simply delays
// the next poll; TryRunCycle guards against any other caller holding the
// cycle lock.
func (t *Timer) attempt() {
	now := time.Now()

	t.mu.Lock()
	due := t.lastStart.IsZero() || now.Sub(t.lastStart) >= t.interval
	t.mu.Unlock()
	if !due {
		return
	}

	report, ran, err := t.runner.TryRunCycle(t.ctx)
	if !ran {
		t.mu.Lock()
		t.skips++
		skips := t.skips
		t.mu.Unlock()
		t.log.Warnw("cycle still running, skipping this interval", "skips", skips)
		return
	}

	t.mu.Lock()
	t.lastStart = now
	t.cycles++
	t.mu.Unlock()

	switch {
	case err == nil:
		t.log.Infow("next cycle scheduled",
			"next_run_at", now.Add(t.interval).Format(time.RFC3339))
	case t.ctx.Err() != nil || db.IsDatabaseClosed(err):
		// Shutdown race, not a cycle defect.
		t.log.Debugw("cycle interrupted by shutdown", "error", err)
	default:
		var cycleID string
		if report != nil {
			cycleID = report.CycleID
		}
		t.log.Errorw("cycle failed", "cycle_id", cycleID, "error", err)
	}
}

// Stats returns scheduling counters for the status surface.
func (t *Timer) Stats() map[string]interface{} {
	t.mu.Lock()
	defer t.mu.Unlock()

	return map[string]interface{}{
		"last_cycle_start": t.lastStart,
		"cycles":           t.cycles,
		"skips":            t.skips,
		"interval":         t.interval,
	}
}
