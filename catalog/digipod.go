package catalog

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"github.com/tidemark-health/guidepost/config"
	"github.com/tidemark-health/guidepost/engine"
	"github.com/tidemark-health/guidepost/errors"
)

// DigiPOD definitions are versioned on the Charité FHIR server; the
// code-defined plans track whatever is current there.
const (
	digipodBaseURL        = "https://fhir.charite.de/digipod/"
	digipodPackageVersion = "latest"
)

// DigiPODSource serves the code-defined DigiPOD recommendation set,
// optionally merged with additional remote definitions listed in a
// recommendation file. Every handle is registered with the evaluator before
// the set is returned, so handles can also be resolved by identifier.
type DigiPODSource struct {
	baseURL string
	version string
	extras  string // path to the optional recommendation file
	log     *zap.SugaredLogger
}

// NewDigiPODSource returns the digipod source. Base URL and package version
// default to the Charité server when unset in cfg.
func NewDigiPODSource(cfg config.CatalogConfig, log *zap.SugaredLogger) *DigiPODSource {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = digipodBaseURL
	}
	if !strings.HasSuffix(baseURL, "/") {
		baseURL += "/"
	}
	version := cfg.PackageVersion
	if version == "" {
		version = digipodPackageVersion
	}
	return &DigiPODSource{
		baseURL: baseURL,
		version: version,
		extras:  cfg.RecommendationFile,
		log:     log,
	}
}

func (s *DigiPODSource) Name() string { return config.RecommendationSetDigiPOD }

// Load assembles the set: builtins in declaration order, then remote extras
// in file order. A failing extra aborts the load; the builtins alone are not
// an acceptable partial set once a merge is configured.
func (s *DigiPODSource) Load(ctx context.Context, ev engine.Evaluator) ([]*engine.Recommendation, error) {
	s.log.Infow("loading DigiPOD recommendations",
		"builtin", len(digipodRecommendations),
		"recommendation_file", s.extras,
	)

	recs := make([]*engine.Recommendation, 0, len(digipodRecommendations))
	recs = append(recs, digipodRecommendations...)

	if s.extras != "" {
		extras, err := readRecommendationFile(s.extras)
		if err != nil {
			return nil, err
		}
		for _, extra := range extras {
			url := extra.URL
			if !strings.Contains(url, "://") {
				url = s.baseURL + url
			}
			version := extra.Version
			if version == "" {
				version = s.version
			}
			rec, err := ev.LoadRecommendation(ctx, url, version)
			if err != nil {
				return nil, errors.Wrapf(err, "merging recommendation %q", extra.URL)
			}
			recs = append(recs, rec)
		}
	}

	for _, rec := range recs {
		ev.RegisterRecommendation(rec)
	}
	return recs, nil
}
