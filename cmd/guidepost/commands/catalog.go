package commands

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/tidemark-health/guidepost/catalog"
	"github.com/tidemark-health/guidepost/logger"
)

// CatalogCmd groups recommendation catalog operations.
var CatalogCmd = &cobra.Command{
	Use:   "catalog",
	Short: "Inspect the configured recommendation set",
	Long: `catalog — Resolve and inspect the configured recommendation set.

Examples:
  guidepost catalog list            # Recommendations the next cycle would run
  guidepost catalog list --set celida`,
}

var catalogListCmd = &cobra.Command{
	Use:   "list",
	Short: "List the recommendations of the configured set",
	Long: `Resolve the configured recommendation set and list its handles in
evaluation order. Remote sets are fetched from their definition server, so
this command doubles as a connectivity check; no database is touched.`,
	RunE: runCatalogList,
}

var catalogSetFlag string

func init() {
	catalogListCmd.Flags().StringVar(&catalogSetFlag, "set", "", "Recommendation set: celida or digipod (overrides config)")
	CatalogCmd.AddCommand(catalogListCmd)
}

func runCatalogList(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfigUnvalidated(cmd)
	if err != nil {
		return err
	}
	if cmd.Flags().Changed("set") {
		cfg.Catalog.RecommendationSet = catalogSetFlag
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	// Listing only loads definitions; Execute is never reached, so the
	// engine is built without a database.
	evaluator, err := buildEvaluator(cfg, nil, logger.Logger)
	if err != nil {
		return err
	}

	cat, err := catalog.New(cfg.Catalog, logger.Logger.Named("catalog"))
	if err != nil {
		return err
	}

	recs, err := cat.Handles(context.Background(), evaluator)
	if err != nil {
		return err
	}

	fmt.Printf("Recommendation set %q: %d recommendations\n", cat.Set(), len(recs))
	fmt.Printf("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━\n")
	for i, rec := range recs {
		fmt.Printf("%2d. %s (%s)\n", i+1, rec.Name, rec.Version)
		if rec.Title != "" {
			fmt.Printf("    %s\n", rec.Title)
		}
		fmt.Printf("    %d criteria, id %s\n", len(rec.Plan.Criteria), rec.ID)
	}
	return nil
}
