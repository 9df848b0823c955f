package commands

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/tidemark-health/guidepost/catalog"
	"github.com/tidemark-health/guidepost/db"
	"github.com/tidemark-health/guidepost/errors"
	"github.com/tidemark-health/guidepost/logger"
	"github.com/tidemark-health/guidepost/publish"
	"github.com/tidemark-health/guidepost/trigger"
)

// RunCmd starts the pipeline daemon.
var RunCmd = &cobra.Command{
	Use:   "run",
	Short: "Start the guidepost pipeline daemon",
	Long: `Start the guidepost pipeline daemon in foreground mode.

The daemon will:
- Ensure the result and staging schemas exist (one-time bootstrap if missing)
- Build the evaluation engine for the configured recommendation set
- Run publish cycles per the configured trigger mode:
    timer   - one cycle immediately, then one per interval
    request - one cycle per inbound POST /run, acknowledged on completion
- Run until interrupted (Ctrl+C), finishing or abandoning the current cycle

A cycle stages all results privately and swaps them into the result schema
in a single transaction; a failed or interrupted cycle leaves the previously
published results untouched.

Examples:
  guidepost run                          # configured trigger mode
  guidepost run --mode timer --interval 5m
  guidepost run --mode request --port 12345
  guidepost run --set celida --window-start 2023-01-01T00:00:00Z`,
	RunE: runRun,
}

var (
	runMode        string
	runInterval    time.Duration
	runAddress     string
	runPort        int
	runSet         string
	runWindowStart string
	runWindowMode  string
)

func init() {
	RunCmd.Flags().StringVar(&runMode, "mode", "", "Trigger mode: timer or request (overrides config)")
	RunCmd.Flags().DurationVar(&runInterval, "interval", 0, "Cycle interval in timer mode (overrides config)")
	RunCmd.Flags().StringVar(&runAddress, "address", "", "Bind address in request mode (overrides config)")
	RunCmd.Flags().IntVar(&runPort, "port", 0, "Bind port in request mode (overrides config)")
	RunCmd.Flags().StringVar(&runSet, "set", "", "Recommendation set: celida or digipod (overrides config)")
	RunCmd.Flags().StringVar(&runWindowStart, "window-start", "", "Evaluation window epoch, RFC3339 (overrides config)")
	RunCmd.Flags().StringVar(&runWindowMode, "window-policy", "", "Window policy: fixed or rolling (overrides config)")
}

func runRun(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfigUnvalidated(cmd)
	if err != nil {
		return err
	}

	// Flag overrides land before validation so a bad flag value is caught
	// the same way a bad file value is.
	if cmd.Flags().Changed("mode") {
		cfg.Trigger.Mode = runMode
	}
	if cmd.Flags().Changed("interval") {
		cfg.Trigger.Interval = runInterval
	}
	if cmd.Flags().Changed("address") {
		cfg.Trigger.Address = runAddress
	}
	if cmd.Flags().Changed("port") {
		cfg.Trigger.Port = runPort
	}
	if cmd.Flags().Changed("set") {
		cfg.Catalog.RecommendationSet = runSet
	}
	if cmd.Flags().Changed("window-start") {
		cfg.Window.Start = runWindowStart
	}
	if cmd.Flags().Changed("window-policy") {
		cfg.Window.Policy = runWindowMode
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	// The config file may ask for different log output than the flags;
	// re-initialize once the effective settings are known.
	jsonFlag, _ := cmd.Flags().GetBool("json")
	verboseFlag, _ := cmd.Flags().GetBool("verbose")
	if err := logger.Initialize(cfg.Logging.JSON || jsonFlag, cfg.Logging.Verbose || verboseFlag); err != nil {
		return errors.Wrap(err, "failed to initialize logger")
	}
	log := logger.Logger

	ctx := context.Background()
	database, err := db.Connect(ctx, cfg.Database, log)
	if err != nil {
		return errors.Wrap(err, "failed to connect to database")
	}
	defer database.Close()

	guard := db.NewSchemaGuard(database, cfg.Database, log.Named("schema"))
	bootstrapped, err := guard.Ensure(ctx)
	if err != nil {
		return errors.Wrap(err, "failed to ensure evaluation schemas")
	}
	if bootstrapped {
		pterm.Info.Printf("Bootstrapped evaluation schemas %s and %s\n",
			cfg.Database.ResultSchema, cfg.Database.StagingSchema)
	}

	evaluator, err := buildEvaluator(cfg, database, log)
	if err != nil {
		return errors.Wrap(err, "failed to build evaluation engine")
	}

	cat, err := catalog.New(cfg.Catalog, log.Named("catalog"))
	if err != nil {
		return err
	}

	publisher, err := publish.New(publish.Params{
		DB:        database,
		Database:  cfg.Database,
		Window:    cfg.Window,
		Catalog:   cat,
		Evaluator: evaluator,
		Logger:    log.Named("publish"),
	})
	if err != nil {
		return err
	}

	controller, err := trigger.New(cfg.Trigger, publisher, log)
	if err != nil {
		return err
	}

	printStartupBanner(cfg)

	if err := controller.Start(); err != nil {
		return errors.Wrap(err, "failed to start trigger controller")
	}
	pterm.Success.Println("guidepost daemon started")
	pterm.Info.Println("Press Ctrl+C for graceful shutdown")

	// GRACE: wait for shutdown signal
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	pterm.Info.Println("\nShutting down gracefully (press Ctrl+C again to force)...")

	shutdownDone := make(chan struct{})
	go func() {
		controller.Stop()
		close(shutdownDone)
	}()

	select {
	case <-shutdownDone:
		pterm.Success.Println("guidepost stopped cleanly")
		return nil
	case <-sigChan:
		// Second Ctrl+C - the in-flight transaction rolls back server-side;
		// the published state stays as it was.
		pterm.Warning.Println("\nForce shutdown - exiting immediately")
		os.Exit(1)
		return nil // unreachable
	}
}
