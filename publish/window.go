package publish

import (
	"time"

	"github.com/tidemark-health/guidepost/config"
	"github.com/tidemark-health/guidepost/engine"
)

// windowTracker derives each cycle's evaluation window. Under the fixed
// policy every cycle starts at the configured epoch, producing an
// ever-growing window; under the rolling policy a cycle starts where the
// last published cycle ended, so each publication covers fresh ground.
// Cycles are serialized by the publisher, so no locking here.
type windowTracker struct {
	policy  string
	epoch   time.Time
	prevEnd time.Time // zero until the first successful publication
}

func newWindowTracker(cfg config.WindowConfig) (*windowTracker, error) {
	epoch, err := cfg.StartTime()
	if err != nil {
		return nil, err
	}
	return &windowTracker{policy: cfg.Policy, epoch: epoch}, nil
}

// next returns the window for a cycle starting at now.
func (w *windowTracker) next(now time.Time) engine.Window {
	start := w.epoch
	if w.policy == config.WindowPolicyRolling && !w.prevEnd.IsZero() {
		start = w.prevEnd
	}
	return engine.Window{Start: start, End: now}
}

// advance records a successful publication. Failed cycles leave the tracker
// untouched so the next attempt re-covers the same ground.
func (w *windowTracker) advance(end time.Time) {
	if w.policy == config.WindowPolicyRolling {
		w.prevEnd = end
	}
}
