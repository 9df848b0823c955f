package engine

import (
	"time"
)

// CriterionKind routes a criterion to one of the three converter slots.
type CriterionKind string

const (
	KindCharacteristic CriterionKind = "characteristic"
	KindAction         CriterionKind = "action"
	KindTimeFromEvent  CriterionKind = "time_from_event"
)

// Criterion is one population or intervention element of a recommendation
// plan. Domain names the OMOP table family the criterion reads; ConceptID
// is the vocabulary concept the criterion selects on.
type Criterion struct {
	Name      string        `json:"name" yaml:"name"`
	Kind      CriterionKind `json:"kind" yaml:"kind"`
	Domain    string        `json:"domain" yaml:"domain"`
	ConceptID int64         `json:"concept_id" yaml:"concept_id"`

	// Threshold constrains value-bearing criteria (measurements). Nil means
	// presence alone satisfies the criterion.
	Threshold *float64 `json:"threshold,omitempty" yaml:"threshold,omitempty"`
}

// Plan is the executable form of a recommendation: an ordered list of
// criteria, each resolved to a converter at execution time.
type Plan struct {
	Criteria []Criterion `json:"criteria" yaml:"criteria"`
}

// Recommendation identifies one guideline computation. ID and Version stay
// stable for the process lifetime once loaded; the catalog owns the set.
type Recommendation struct {
	ID      string `json:"id" yaml:"id"`
	Name    string `json:"name" yaml:"name"`
	Title   string `json:"title" yaml:"title"`
	Version string `json:"version" yaml:"version"`
	Plan    Plan   `json:"plan" yaml:"plan"`
}

// Window is the evaluation interval of one cycle. End is always the cycle's
// start instant; Start depends on the configured window policy.
type Window struct {
	Start time.Time
	End   time.Time
}

// Clip trims an interval to the window. The second return is false when
// nothing remains.
func (w Window) Clip(start, end time.Time) (time.Time, time.Time, bool) {
	if start.Before(w.Start) {
		start = w.Start
	}
	if end.After(w.End) {
		end = w.End
	}
	if !start.Before(end) {
		return time.Time{}, time.Time{}, false
	}
	return start, end, true
}

// Interval result types, mirroring the published value payload.
const (
	IntervalPositive = "POSITIVE"
	IntervalNegative = "NEGATIVE"
	IntervalNoData   = "NO_DATA"
)

// Interval is one computed result row before it is written to staging.
type Interval struct {
	PersonID int64
	Start    time.Time
	End      time.Time
	Type     string
}
