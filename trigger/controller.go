// Package trigger decides when publish cycles run. Exactly one mode is
// active per process: a timer that fires cycles at a fixed interval, or an
// HTTP listener that runs one cycle per inbound POST.
package trigger

import (
	"context"

	"go.uber.org/zap"

	"github.com/tidemark-health/guidepost/config"
	"github.com/tidemark-health/guidepost/errors"
	"github.com/tidemark-health/guidepost/publish"
)

// CycleRunner is the publisher surface the trigger layer drives. Implemented
// by *publish.Publisher; declared here so the trigger modes can be exercised
// without a database behind them.
type CycleRunner interface {
	RunCycle(ctx context.Context) (*publish.CycleReport, error)
	TryRunCycle(ctx context.Context) (*publish.CycleReport, bool, error)
	State() publish.State
	LastReport() *publish.CycleReport
}

// Controller runs publish cycles until stopped. Start returns once the mode
// is live (timer loop running, listener bound); Stop blocks until the mode
// has wound down.
type Controller interface {
	Start() error
	Stop()
}

// New builds the controller for the configured trigger mode.
func New(cfg config.TriggerConfig, runner CycleRunner, log *zap.SugaredLogger) (Controller, error) {
	switch cfg.Mode {
	case config.TriggerModeTimer:
		if cfg.Interval <= 0 {
			return nil, errors.Mark(
				errors.Newf("timer mode requires a positive interval, got %s", cfg.Interval),
				errors.ErrConfiguration)
		}
		return NewTimer(cfg.Interval, runner, log), nil
	case config.TriggerModeRequest:
		return NewServer(cfg.BindAddr(), runner, log), nil
	default:
		return nil, errors.Mark(
			errors.Newf("unknown trigger mode %q (want %q or %q)",
				cfg.Mode, config.TriggerModeTimer, config.TriggerModeRequest),
			errors.ErrConfiguration)
	}
}
