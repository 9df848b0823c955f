package config

import (
	"github.com/spf13/viper"
)

// SetDefaults configures default values for all configuration options.
// The trigger defaults mirror the deployed DigiPOD setup: request mode on
// loopback, five-minute interval when switched to timer mode.
func SetDefaults(v *viper.Viper) {
	// Database defaults
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "postgres")
	v.SetDefault("database.name", "ohdsi")
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("database.result_schema", "celida")
	v.SetDefault("database.staging_schema", "temp")
	v.SetDefault("database.data_schema", "cds_cdm")
	v.SetDefault("database.connect_timeout_seconds", 10)
	v.SetDefault("database.lock_timeout", "30s")

	// Trigger defaults
	v.SetDefault("trigger.mode", TriggerModeRequest)
	v.SetDefault("trigger.interval", "5m")
	v.SetDefault("trigger.address", "127.0.0.1")
	v.SetDefault("trigger.port", 12345)

	// Catalog defaults. Base URL and package version default per set, so
	// they stay empty here.
	v.SetDefault("catalog.recommendation_set", RecommendationSetDigiPOD)
	v.SetDefault("catalog.fetch_timeout", "30s")
	v.SetDefault("catalog.allow_private_networks", false)

	// Window defaults
	v.SetDefault("window.policy", WindowPolicyFixed)
	v.SetDefault("window.start", "2023-01-01T00:00:00Z")

	// Logging defaults
	v.SetDefault("logging.json", false)
	v.SetDefault("logging.verbose", false)
}

// BindSensitiveEnvVars explicitly binds sensitive configuration to
// environment variables so credentials never need to live in a config file.
func BindSensitiveEnvVars(v *viper.Viper) {
	v.BindEnv("database.user", "GUIDEPOST_DATABASE_USER")
	v.BindEnv("database.password", "GUIDEPOST_DATABASE_PASSWORD")
}
