package config

import (
	"net"
	"regexp"

	"github.com/Masterminds/semver/v3"

	"github.com/tidemark-health/guidepost/errors"
)

// identifierPattern is the grammar for schema names. Schema names are
// interpolated into DDL and table-qualified statements that cannot carry
// bind parameters, so anything outside this grammar is rejected outright.
var identifierPattern = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// ValidIdentifier reports whether s is safe to interpolate as a SQL
// schema or table name.
func ValidIdentifier(s string) bool {
	return identifierPattern.MatchString(s)
}

var validSSLModes = map[string]bool{
	"disable":     true,
	"require":     true,
	"verify-ca":   true,
	"verify-full": true,
}

// Validate checks that the configuration is internally consistent. Every
// violation is a configuration error: the process must exit before any
// cycle runs.
func (c *Config) Validate() error {
	if err := c.Database.validate(); err != nil {
		return err
	}
	if err := c.Trigger.validate(); err != nil {
		return err
	}
	if err := c.Catalog.validate(); err != nil {
		return err
	}
	if err := c.Window.validate(); err != nil {
		return err
	}
	return nil
}

func (d DatabaseConfig) validate() error {
	if d.Host == "" {
		return configurationError(errors.New("database.host cannot be empty"))
	}
	if d.Port < 1 || d.Port > 65535 {
		return configurationError(errors.Newf("database.port must be within 1-65535, got %d", d.Port))
	}
	if d.Name == "" {
		return configurationError(errors.New("database.name cannot be empty"))
	}
	if !validSSLModes[d.SSLMode] {
		return configurationError(errors.Newf("database.sslmode %q is not one of disable, require, verify-ca, verify-full", d.SSLMode))
	}

	for key, schema := range map[string]string{
		"database.result_schema":  d.ResultSchema,
		"database.staging_schema": d.StagingSchema,
		"database.data_schema":    d.DataSchema,
	} {
		if !ValidIdentifier(schema) {
			return configurationError(errors.Newf("%s %q is not a valid identifier", key, schema))
		}
	}
	if d.ResultSchema == d.StagingSchema {
		return configurationError(errors.Newf("database.result_schema and database.staging_schema must differ, both are %q", d.ResultSchema))
	}

	if d.LockTimeout < 0 {
		return configurationError(errors.Newf("database.lock_timeout must be >= 0, got %s", d.LockTimeout))
	}
	if d.ConnectTimeoutSeconds < 0 {
		return configurationError(errors.Newf("database.connect_timeout_seconds must be >= 0, got %d", d.ConnectTimeoutSeconds))
	}
	return nil
}

func (t TriggerConfig) validate() error {
	switch t.Mode {
	case TriggerModeTimer:
		if t.Interval <= 0 {
			return configurationError(errors.Newf("trigger.interval must be > 0 in timer mode, got %s", t.Interval))
		}
	case TriggerModeRequest:
		if net.ParseIP(t.Address) == nil {
			return configurationError(errors.Newf("trigger.address %q is not a valid IP address", t.Address))
		}
		if t.Port < 1 || t.Port > 65535 {
			return configurationError(errors.Newf("trigger.port must be within 1-65535, got %d", t.Port))
		}
	default:
		return configurationError(errors.Newf("trigger.mode %q is not one of %s, %s", t.Mode, TriggerModeTimer, TriggerModeRequest))
	}
	return nil
}

func (cc CatalogConfig) validate() error {
	switch cc.RecommendationSet {
	case RecommendationSetCELIDA, RecommendationSetDigiPOD:
	default:
		return configurationError(errors.Newf("catalog.recommendation_set %q is not one of %s, %s",
			cc.RecommendationSet, RecommendationSetCELIDA, RecommendationSetDigiPOD))
	}

	if cc.PackageVersion != "" && cc.PackageVersion != "latest" {
		if _, err := semver.NewVersion(cc.PackageVersion); err != nil {
			return configurationError(errors.Wrapf(err, "catalog.package_version %q is neither \"latest\" nor a semantic version", cc.PackageVersion))
		}
	}

	if cc.FetchTimeout <= 0 {
		return configurationError(errors.Newf("catalog.fetch_timeout must be > 0, got %s", cc.FetchTimeout))
	}
	return nil
}

func (w WindowConfig) validate() error {
	switch w.Policy {
	case WindowPolicyFixed, WindowPolicyRolling:
	default:
		return configurationError(errors.Newf("window.policy %q is not one of %s, %s", w.Policy, WindowPolicyFixed, WindowPolicyRolling))
	}

	if w.Start == "" {
		return configurationError(errors.New("window.start cannot be empty"))
	}
	if _, err := w.StartTime(); err != nil {
		return configurationError(errors.Wrapf(err, "window.start %q is not a valid RFC3339 timestamp", w.Start))
	}
	return nil
}

func configurationError(err error) error {
	return errors.Mark(err, errors.ErrConfiguration)
}
