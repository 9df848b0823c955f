package publish

import (
	"time"

	"github.com/google/uuid"
)

// CycleReport records a single publish cycle
//
// Each cycle gets a report tracking:
// - Identity (cycle id, recommendation set)
// - Window (the evaluated interval)
// - Status (running, published, failed)
// - Per-recommendation outcomes (duration, skip reason)
//
// Reports back the trigger layer's health output and the cycle summary log.
type CycleReport struct {
	// Identity
	CycleID string `json:"cycle_id"`
	Set     string `json:"set"`

	// Window
	WindowStart time.Time `json:"window_start"`
	WindowEnd   time.Time `json:"window_end"`

	// Cycle status
	Status string `json:"status"` // "running", "published", "failed"
	Error  string `json:"error,omitempty"`

	// Timing
	StartedAt   time.Time  `json:"started_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
	DurationMs  int64      `json:"duration_ms"`

	// Per-recommendation outcomes, in evaluation order
	Outcomes []RecommendationOutcome `json:"outcomes"`
}

// RecommendationOutcome is the per-handle result within one cycle.
type RecommendationOutcome struct {
	Recommendation string `json:"recommendation"`
	DurationMs     int64  `json:"duration_ms"`
	Skipped        bool   `json:"skipped"`
	Error          string `json:"error,omitempty"`
}

// Cycle status constants for type safety
const (
	CycleStatusRunning   = "running"
	CycleStatusPublished = "published"
	CycleStatusFailed    = "failed"
)

func newCycleReport(set string, windowStart, windowEnd, startedAt time.Time) *CycleReport {
	return &CycleReport{
		CycleID:     uuid.NewString(),
		Set:         set,
		WindowStart: windowStart,
		WindowEnd:   windowEnd,
		Status:      CycleStatusRunning,
		StartedAt:   startedAt,
	}
}

func (r *CycleReport) addOutcome(recommendation string, duration time.Duration, err error) {
	outcome := RecommendationOutcome{
		Recommendation: recommendation,
		DurationMs:     duration.Milliseconds(),
	}
	if err != nil {
		outcome.Skipped = true
		outcome.Error = err.Error()
	}
	r.Outcomes = append(r.Outcomes, outcome)
}

func (r *CycleReport) finish(status string, completedAt time.Time, err error) {
	r.Status = status
	r.CompletedAt = &completedAt
	r.DurationMs = completedAt.Sub(r.StartedAt).Milliseconds()
	if err != nil {
		r.Error = err.Error()
	}
}

// Published reports whether the cycle replaced the result area.
func (r *CycleReport) Published() bool {
	return r.Status == CycleStatusPublished
}

// Skipped counts recommendations that failed and were skipped.
func (r *CycleReport) Skipped() int {
	n := 0
	for _, o := range r.Outcomes {
		if o.Skipped {
			n++
		}
	}
	return n
}
