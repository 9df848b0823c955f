package engine

import (
	"context"
	"encoding/json"
	"io"
	"net/http"

	"github.com/tidemark-health/guidepost/errors"
)

// maxDefinitionBytes bounds how much of a remote definition the loader will
// read. Real definitions are a few kilobytes.
const maxDefinitionBytes = 4 << 20

// recommendationDocument is the wire form served by guideline definition
// servers: the compiled representation of one recommendation, ready for
// converter resolution.
type recommendationDocument struct {
	URL      string      `json:"url"`
	Name     string      `json:"name"`
	Title    string      `json:"title"`
	Version  string      `json:"version"`
	Criteria []Criterion `json:"criteria"`
}

// LoadRecommendation fetches one recommendation definition. version is
// passed through as a query parameter when non-empty; the server resolves
// "latest" itself. Failures are load errors: the caller decides whether one
// bad definition aborts the whole catalog.
func (e *Engine) LoadRecommendation(ctx context.Context, url, version string) (*Recommendation, error) {
	if err := e.limiter.Wait(ctx); err != nil {
		return nil, errors.Mark(errors.Wrap(err, "waiting for fetch slot"), errors.ErrLoad)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, errors.Mark(errors.Wrapf(err, "building request for %s", url), errors.ErrLoad)
	}
	if version != "" {
		q := req.URL.Query()
		q.Set("version", version)
		req.URL.RawQuery = q.Encode()
	}
	req.Header.Set("Accept", "application/json")

	resp, err := e.client.Do(req)
	if err != nil {
		return nil, errors.Mark(errors.Wrapf(err, "fetching recommendation %s", url), errors.ErrLoad)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, errors.Mark(
			errors.Newf("fetching recommendation %s: unexpected status %s", url, resp.Status),
			errors.ErrLoad)
	}

	var doc recommendationDocument
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxDefinitionBytes)).Decode(&doc); err != nil {
		return nil, errors.Mark(errors.Wrapf(err, "decoding recommendation %s", url), errors.ErrLoad)
	}

	rec, err := doc.toRecommendation(url, version)
	if err != nil {
		return nil, errors.Mark(err, errors.ErrLoad)
	}

	e.log.Debugw("recommendation loaded",
		"recommendation", rec.Name,
		"version", rec.Version,
		"criteria", len(rec.Plan.Criteria),
	)
	return rec, nil
}

func (d recommendationDocument) toRecommendation(requestURL, requestedVersion string) (*Recommendation, error) {
	id := d.URL
	if id == "" {
		id = requestURL
	}
	version := d.Version
	if version == "" {
		version = requestedVersion
	}
	if d.Name == "" {
		return nil, errors.Newf("recommendation %s has no name", id)
	}
	if len(d.Criteria) == 0 {
		return nil, errors.Newf("recommendation %s defines no criteria", id)
	}
	for _, criterion := range d.Criteria {
		if err := validateCriterion(criterion); err != nil {
			return nil, errors.Wrapf(err, "recommendation %s", id)
		}
	}
	return &Recommendation{
		ID:      id,
		Name:    d.Name,
		Title:   d.Title,
		Version: version,
		Plan:    Plan{Criteria: d.Criteria},
	}, nil
}

func validateCriterion(criterion Criterion) error {
	if criterion.Name == "" {
		return errors.New("criterion has no name")
	}
	switch criterion.Kind {
	case KindCharacteristic, KindAction, KindTimeFromEvent:
	default:
		return errors.Newf("criterion %q has unknown kind %q", criterion.Name, criterion.Kind)
	}
	if criterion.ConceptID <= 0 {
		return errors.Newf("criterion %q has invalid concept id %d", criterion.Name, criterion.ConceptID)
	}
	return nil
}
