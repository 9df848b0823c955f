// Package catalog owns the recommendation sets the pipeline can evaluate.
//
// A set is selected by configuration from a closed enumeration. The celida
// set is fetched from its remote definition server; the digipod set is
// defined in code, optionally merged with remote definitions, and registered
// with the evaluator. Loaded handles are immutable and cached for the
// process lifetime; a failed load is retried on the next cycle.
package catalog

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/tidemark-health/guidepost/config"
	"github.com/tidemark-health/guidepost/engine"
	"github.com/tidemark-health/guidepost/errors"
)

// Source loads one recommendation set in deterministic order.
type Source interface {
	// Name returns the set discriminator the source serves.
	Name() string

	// Load fetches or assembles the full set. A partial set is never
	// returned: any failure aborts the whole load.
	Load(ctx context.Context, ev engine.Evaluator) ([]*engine.Recommendation, error)
}

// Catalog serves recommendation handles to publish cycles. The underlying
// source is consulted once; after the first successful load the handles are
// served from cache so every cycle sees the same set.
type Catalog struct {
	source Source
	log    *zap.SugaredLogger

	mu   sync.Mutex
	recs []*engine.Recommendation
}

// New selects the source for the configured recommendation set. An unknown
// set value is a fatal configuration error; config validation rejects it
// first, so hitting this means broken wiring.
func New(cfg config.CatalogConfig, log *zap.SugaredLogger) (*Catalog, error) {
	var source Source
	switch cfg.RecommendationSet {
	case config.RecommendationSetCELIDA:
		source = NewCELIDASource(cfg, log)
	case config.RecommendationSetDigiPOD:
		source = NewDigiPODSource(cfg, log)
	default:
		return nil, errors.Mark(
			errors.Newf("unknown recommendation set %q", cfg.RecommendationSet),
			errors.ErrConfiguration)
	}
	return &Catalog{source: source, log: log}, nil
}

// Set returns the name of the configured recommendation set.
func (c *Catalog) Set() string {
	return c.source.Name()
}

// Handles returns the recommendation set, loading it through ev on first
// use. Load failures leave the cache empty so the next cycle retries.
func (c *Catalog) Handles(ctx context.Context, ev engine.Evaluator) ([]*engine.Recommendation, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.recs != nil {
		return c.recs, nil
	}

	recs, err := c.source.Load(ctx, ev)
	if err != nil {
		return nil, err
	}
	c.recs = recs
	c.log.Infow("recommendation set loaded", "set", c.source.Name(), "recommendations", len(recs))
	return c.recs, nil
}
