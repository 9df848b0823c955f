package engine

import (
	"context"
	"database/sql"
	"net/http"
	"time"
)

// Querier is the read surface emitters use. *sql.DB and *sql.Tx both
// satisfy it.
type Querier interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

// Doer performs remote definition fetches. *http.Client satisfies it, as
// does the hardened client the daemon injects.
type Doer interface {
	Do(req *http.Request) (*http.Response, error)
}

// Evaluator is the computation boundary of the pipeline. Implementations
// turn a recommendation and a time window into rows in the staging area;
// callers never observe partial published state through it.
//
// Execute failures are reported per recommendation so a cycle can skip the
// failing one and continue with the rest.
type Evaluator interface {
	// LoadRecommendation fetches one recommendation definition from a
	// remote guideline server and returns its executable form.
	LoadRecommendation(ctx context.Context, url, version string) (*Recommendation, error)

	// RegisterRecommendation makes a code-defined recommendation available
	// under its ID, replacing any previous registration.
	RegisterRecommendation(rec *Recommendation)

	// Execute evaluates one recommendation over [start, end) and writes an
	// execution run plus its result intervals to staging.
	Execute(ctx context.Context, rec *Recommendation, start, end time.Time) error
}
