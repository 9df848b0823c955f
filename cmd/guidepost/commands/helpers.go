package commands

import (
	"database/sql"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/tidemark-health/guidepost/catalog"
	"github.com/tidemark-health/guidepost/config"
	"github.com/tidemark-health/guidepost/engine"
	"github.com/tidemark-health/guidepost/errors"
	"github.com/tidemark-health/guidepost/internal/httpclient"
)

// loadConfig resolves the configuration for a command invocation. The
// --config persistent flag pins a single file; otherwise the regular
// system/user/project search applies. The result is validated, so commands
// only ever see a consistent configuration.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg, err := loadConfigUnvalidated(cmd)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// loadConfigUnvalidated loads without running Validate. Used by `config show`
// and `config validate`, which want to display or diagnose a broken
// configuration instead of refusing to load it.
func loadConfigUnvalidated(cmd *cobra.Command) (*config.Config, error) {
	configPath, _ := cmd.Flags().GetString("config")
	if configPath != "" {
		cfg, err := config.LoadFromFile(configPath)
		if err != nil {
			return nil, errors.Wrap(err, "failed to load config")
		}
		return cfg, nil
	}
	cfg, err := config.Load()
	if err != nil {
		return nil, errors.Wrap(err, "failed to load config")
	}
	return cfg, nil
}

// buildEvaluator assembles the engine for the configured recommendation set:
// default converters, set-specific extensions, hardened fetch client. The
// database may be nil for commands that only load definitions and never
// execute them.
func buildEvaluator(cfg *config.Config, database *sql.DB, log *zap.SugaredLogger) (*engine.Engine, error) {
	builder := engine.DefaultBuilder(cfg.Database.DataSchema)
	if err := catalog.ExtendBuilder(builder, cfg.Catalog.RecommendationSet, cfg.Database.DataSchema); err != nil {
		return nil, err
	}

	var client engine.Doer
	if cfg.Catalog.AllowPrivateNetworks {
		client = httpclient.NewIntranetClient(cfg.Catalog.FetchTimeout)
	} else {
		client = httpclient.NewSaferClient(cfg.Catalog.FetchTimeout)
	}

	return builder.Build(engine.Deps{
		DB:            database,
		StagingSchema: cfg.Database.StagingSchema,
		Client:        client,
		Logger:        log.Named("engine"),
	})
}
