package config

import (
	"fmt"
	"strings"
	"time"
)

// Config represents the complete guidepost configuration. It is built once
// at startup, validated, and passed by reference into every component;
// nothing mutates it afterwards.
type Config struct {
	Database DatabaseConfig `mapstructure:"database"`
	Trigger  TriggerConfig  `mapstructure:"trigger"`
	Catalog  CatalogConfig  `mapstructure:"catalog"`
	Window   WindowConfig   `mapstructure:"window"`
	Logging  LoggingConfig  `mapstructure:"logging"`
}

// Trigger modes. Exactly one is active per process.
const (
	TriggerModeTimer   = "timer"   // fixed-interval cycles, first one immediate
	TriggerModeRequest = "request" // one cycle per inbound HTTP request
)

// Window start policies.
const (
	WindowPolicyFixed   = "fixed"   // start is always the configured epoch; the window grows
	WindowPolicyRolling = "rolling" // start is the previous successful cycle's end
)

// Recommendation sets. A closed enumeration; validation rejects anything else.
const (
	RecommendationSetCELIDA  = "celida"
	RecommendationSetDigiPOD = "digipod"
)

// DatabaseConfig configures the Postgres connection and the schemas the
// pipeline writes to.
type DatabaseConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	Name     string `mapstructure:"name"`
	SSLMode  string `mapstructure:"sslmode"`

	// ResultSchema is the durable, externally readable schema. StagingSchema
	// receives each cycle's output before the atomic transfer. Both names are
	// interpolated into DDL and must satisfy the identifier grammar enforced
	// by Validate.
	ResultSchema  string `mapstructure:"result_schema"`
	StagingSchema string `mapstructure:"staging_schema"`
	// DataSchema is the OMOP source-data schema read by the evaluator.
	DataSchema string `mapstructure:"data_schema"`

	ConnectTimeoutSeconds int           `mapstructure:"connect_timeout_seconds"`
	LockTimeout           time.Duration `mapstructure:"lock_timeout"` // bound on ACCESS EXCLUSIVE acquisition per transfer
}

// DSN renders a lib/pq connection string.
func (d DatabaseConfig) DSN() string {
	parts := []string{
		fmt.Sprintf("host=%s", d.Host),
		fmt.Sprintf("port=%d", d.Port),
		fmt.Sprintf("user=%s", d.User),
		fmt.Sprintf("dbname=%s", d.Name),
		fmt.Sprintf("sslmode=%s", d.SSLMode),
	}
	if d.Password != "" {
		parts = append(parts, fmt.Sprintf("password=%s", d.Password))
	}
	if d.ConnectTimeoutSeconds > 0 {
		parts = append(parts, fmt.Sprintf("connect_timeout=%d", d.ConnectTimeoutSeconds))
	}
	return strings.Join(parts, " ")
}

// Redacted returns the DSN with the password masked, safe for logs.
func (d DatabaseConfig) Redacted() string {
	masked := d
	if masked.Password != "" {
		masked.Password = "****"
	}
	return masked.DSN()
}

// TriggerConfig selects when publish cycles run.
type TriggerConfig struct {
	Mode     string        `mapstructure:"mode"`     // timer | request
	Interval time.Duration `mapstructure:"interval"` // timer mode cycle interval
	Address  string        `mapstructure:"address"`  // request mode bind address
	Port     int           `mapstructure:"port"`     // request mode bind port, 1-65535
}

// BindAddr renders the request-mode listen address.
func (t TriggerConfig) BindAddr() string {
	return fmt.Sprintf("%s:%d", t.Address, t.Port)
}

// CatalogConfig selects and parameterizes the recommendation set.
type CatalogConfig struct {
	RecommendationSet string `mapstructure:"recommendation_set"` // celida | digipod

	// BaseURL and PackageVersion override the set's shipped defaults when
	// non-empty. PackageVersion is "latest" or a semver tag.
	BaseURL        string `mapstructure:"base_url"`
	PackageVersion string `mapstructure:"package_version"`

	// RecommendationFile optionally names a YAML file whose entries are
	// merged into the local-registry set.
	RecommendationFile string `mapstructure:"recommendation_file"`

	FetchTimeout time.Duration `mapstructure:"fetch_timeout"`

	// AllowPrivateNetworks permits definition fetches from private address
	// space, for deployments that mirror guideline servers inside the
	// clinic network.
	AllowPrivateNetworks bool `mapstructure:"allow_private_networks"`
}

// WindowConfig controls the evaluation window of each cycle. The window end
// is always the cycle's start instant; only the start varies.
type WindowConfig struct {
	Policy string `mapstructure:"policy"` // fixed | rolling
	Start  string `mapstructure:"start"`  // RFC3339 epoch
}

// StartTime parses the configured window epoch.
func (w WindowConfig) StartTime() (time.Time, error) {
	return time.Parse(time.RFC3339, w.Start)
}

// LoggingConfig controls log output format and level.
type LoggingConfig struct {
	JSON    bool `mapstructure:"json"`
	Verbose bool `mapstructure:"verbose"`
}

// String returns a one-line summary of the config, safe for logs.
func (c *Config) String() string {
	return fmt.Sprintf("Config{Database: %s/%s->%s, Trigger: %s, Set: %s, Window: %s}",
		c.Database.Name, c.Database.StagingSchema, c.Database.ResultSchema,
		c.Trigger.Mode, c.Catalog.RecommendationSet, c.Window.Policy)
}
