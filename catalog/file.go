package catalog

import (
	"os"

	"gopkg.in/yaml.v3"

	"github.com/tidemark-health/guidepost/errors"
)

// remoteRecommendation is one entry of the recommendation file. URL may be
// absolute or relative to the set's base URL; Version falls back to the
// set's package version.
type remoteRecommendation struct {
	URL     string `yaml:"url"`
	Version string `yaml:"version"`
}

type recommendationFile struct {
	Recommendations []remoteRecommendation `yaml:"recommendations"`
}

// readRecommendationFile parses the optional merge list. Problems reading or
// parsing it abort the catalog load; the file was configured deliberately,
// so silently ignoring it would publish results for the wrong set.
func readRecommendationFile(path string) ([]remoteRecommendation, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Mark(errors.Wrapf(err, "reading recommendation file %s", path), errors.ErrLoad)
	}

	var file recommendationFile
	if err := yaml.Unmarshal(raw, &file); err != nil {
		return nil, errors.Mark(errors.Wrapf(err, "parsing recommendation file %s", path), errors.ErrLoad)
	}

	for i, rec := range file.Recommendations {
		if rec.URL == "" {
			return nil, errors.Mark(
				errors.Newf("recommendation file %s: entry %d has no url", path, i+1),
				errors.ErrLoad)
		}
	}
	return file.Recommendations, nil
}
