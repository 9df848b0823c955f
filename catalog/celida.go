package catalog

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"github.com/tidemark-health/guidepost/config"
	"github.com/tidemark-health/guidepost/engine"
	"github.com/tidemark-health/guidepost/errors"
)

// CELIDA guideline definitions live on the network of university medicine
// definition server and are pinned to a released package version.
const (
	celidaBaseURL        = "https://www.netzwerk-universitaetsmedizin.de/fhir/codex-celida/guideline/"
	celidaPackageVersion = "v1.5.2"
)

// celidaGuidelines is the fixed set, in evaluation order.
var celidaGuidelines = []string{
	"covid19-inpatient-therapy/recommendation/no-therapeutic-anticoagulation",
	"sepsis/recommendation/ventilation-plan-ards-tidal-volume",
	"covid19-inpatient-therapy/recommendation/ventilation-plan-ards-tidal-volume",
	"covid19-inpatient-therapy/recommendation/covid19-ventilation-plan-peep",
	"covid19-inpatient-therapy/recommendation/prophylactic-anticoagulation",
	"covid19-inpatient-therapy/recommendation/therapeutic-anticoagulation",
	"covid19-inpatient-therapy/recommendation/covid19-abdominal-positioning-ards",
}

// CELIDASource fetches the CELIDA recommendation set from its remote
// definition server. Any single fetch failure aborts the whole load; a
// cycle never runs on a partial set.
type CELIDASource struct {
	baseURL string
	version string
	log     *zap.SugaredLogger
}

// NewCELIDASource returns the celida source. Base URL and package version
// default to the released CELIDA package when unset in cfg.
func NewCELIDASource(cfg config.CatalogConfig, log *zap.SugaredLogger) *CELIDASource {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = celidaBaseURL
	}
	if !strings.HasSuffix(baseURL, "/") {
		baseURL += "/"
	}
	version := cfg.PackageVersion
	if version == "" {
		version = celidaPackageVersion
	}
	return &CELIDASource{baseURL: baseURL, version: version, log: log}
}

func (s *CELIDASource) Name() string { return config.RecommendationSetCELIDA }

// Load fetches every guideline in declaration order.
func (s *CELIDASource) Load(ctx context.Context, ev engine.Evaluator) ([]*engine.Recommendation, error) {
	s.log.Infow("loading CELIDA recommendations",
		"base_url", s.baseURL,
		"version", s.version,
		"count", len(celidaGuidelines),
	)

	recs := make([]*engine.Recommendation, 0, len(celidaGuidelines))
	for _, guideline := range celidaGuidelines {
		rec, err := ev.LoadRecommendation(ctx, s.baseURL+guideline, s.version)
		if err != nil {
			return nil, errors.Wrapf(err, "loading guideline %q", guideline)
		}
		recs = append(recs, rec)
	}
	return recs, nil
}
