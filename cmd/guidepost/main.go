package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/tidemark-health/guidepost/cmd/guidepost/commands"
	"github.com/tidemark-health/guidepost/logger"
)

var rootCmd = &cobra.Command{
	Use:   "guidepost",
	Short: "guidepost - staged evaluation and atomic publication of guideline results",
	Long: `guidepost - clinical guideline execution pipeline.

guidepost periodically re-evaluates a configured set of clinical guideline
recommendations over a time window and publishes the results to a shared
Postgres schema. Results are staged privately first and swapped into the
readable schema in one transaction, so readers never observe a partially
updated result set.

Available commands:
  run     - Start the pipeline daemon (timer or request trigger mode)
  db      - Inspect and bootstrap the evaluation schemas
  config  - Show, validate and initialize configuration
  catalog - Resolve the configured recommendation set
  trigger - Ask a running request-mode daemon to run one cycle

Examples:
  guidepost run                       # Start with the configured trigger mode
  guidepost run --mode timer          # Force timer mode for this process
  guidepost db status                 # Schema existence and migration versions
  guidepost catalog list              # Recommendations the next cycle would run
  guidepost trigger                   # Run one cycle on a request-mode daemon`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		jsonOutput, _ := cmd.Flags().GetBool("json")
		verbose, _ := cmd.Flags().GetBool("verbose")
		if err := logger.Initialize(jsonOutput, verbose); err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().String("config", "", "Path to a guidepost.toml (skips the config file search)")
	rootCmd.PersistentFlags().Bool("json", false, "Log as JSON instead of console output")
	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "Enable debug logging")

	rootCmd.AddCommand(commands.RunCmd)
	rootCmd.AddCommand(commands.DbCmd)
	rootCmd.AddCommand(commands.ConfigCmd)
	rootCmd.AddCommand(commands.CatalogCmd)
	rootCmd.AddCommand(commands.TriggerCmd)
	rootCmd.AddCommand(commands.VersionCmd)
}

func main() {
	defer logger.Cleanup()

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
