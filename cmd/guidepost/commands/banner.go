package commands

import (
	"fmt"

	"github.com/tidemark-health/guidepost/config"
	"github.com/tidemark-health/guidepost/version"
)

// printStartupBanner prints the user-friendly startup summary for the daemon.
func printStartupBanner(cfg *config.Config) {
	// ANSI escape codes
	cyan := "\033[36m"
	green := "\033[32m"
	bold := "\033[1m"
	reset := "\033[0m"

	info := version.Get()

	fmt.Printf("\n%s%s   guidepost — guideline results, staged and atomically published%s\n\n", cyan, bold, reset)

	fmt.Printf("%s%s┌─ guidepost ─────────────────────────────────────────┐%s\n", green, bold, reset)
	fmt.Printf("%s│%s Version:   %s (commit %s)\n", green, reset, info.Version, info.Short())
	fmt.Printf("%s│%s Database:  %s@%s:%d/%s\n", green, reset,
		cfg.Database.User, cfg.Database.Host, cfg.Database.Port, cfg.Database.Name)
	fmt.Printf("%s│%s Schemas:   %s -> %s (data: %s)\n", green, reset,
		cfg.Database.StagingSchema, cfg.Database.ResultSchema, cfg.Database.DataSchema)
	fmt.Printf("%s│%s Set:       %s\n", green, reset, cfg.Catalog.RecommendationSet)
	fmt.Printf("%s│%s Window:    %s from %s\n", green, reset, cfg.Window.Policy, cfg.Window.Start)
	switch cfg.Trigger.Mode {
	case config.TriggerModeTimer:
		fmt.Printf("%s│%s Trigger:   timer, every %s\n", green, reset, cfg.Trigger.Interval)
	case config.TriggerModeRequest:
		fmt.Printf("%s│%s Trigger:   POST http://%s/run\n", green, reset, cfg.Trigger.BindAddr())
	}
	fmt.Printf("%s└─────────────────────────────────────────────────────┘%s\n\n", green, reset)
}
