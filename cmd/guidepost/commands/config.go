package commands

import (
	"encoding/json"
	"fmt"

	"github.com/pelletier/go-toml/v2"
	"github.com/pterm/pterm"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/tidemark-health/guidepost/config"
)

// ConfigCmd groups configuration operations.
var ConfigCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage guidepost configuration",
	Long: `config — Show, validate and initialize guidepost configuration.

Configuration sources (in order of precedence):
1. Command line flags
2. Environment variables (GUIDEPOST_* prefix)
3. Project config (./guidepost.toml, searched up the directory tree)
4. User config (~/.guidepost/config.toml)
5. System config (/etc/guidepost/config.toml)
6. Default values

Examples:
  guidepost config show             # Effective configuration
  guidepost config show --format json
  guidepost config validate         # Check the effective configuration
  guidepost config init             # Write guidepost.toml with defaults`,
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show the effective configuration",
	Long:  "Display the effective guidepost configuration merged from all sources.",
	RunE:  runConfigShow,
}

var configValidateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate the effective configuration",
	RunE:  runConfigValidate,
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a configuration file with the default settings",
	Long: `Write the default configuration to a TOML file.

An existing file is only replaced with --force, and is rotated into
.back1/.back2/.back3 first.`,
	RunE: runConfigInit,
}

var (
	configFormat    string
	configInitPath  string
	configInitForce bool
)

func init() {
	configShowCmd.Flags().StringVar(&configFormat, "format", "toml", "Output format: toml, json, yaml")
	configInitCmd.Flags().StringVar(&configInitPath, "path", "guidepost.toml", "Where to write the config file")
	configInitCmd.Flags().BoolVar(&configInitForce, "force", false, "Overwrite an existing file (rotating backups)")

	ConfigCmd.AddCommand(configShowCmd)
	ConfigCmd.AddCommand(configValidateCmd)
	ConfigCmd.AddCommand(configInitCmd)
}

func runConfigShow(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfigUnvalidated(cmd)
	if err != nil {
		return err
	}

	// Never echo credentials back to the terminal.
	shown := *cfg
	if shown.Database.Password != "" {
		shown.Database.Password = "****"
	}
	cfg = &shown

	switch configFormat {
	case "json":
		data, err := json.MarshalIndent(cfg, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to marshal config to JSON: %w", err)
		}
		fmt.Println(string(data))

	case "yaml":
		data, err := yaml.Marshal(cfg)
		if err != nil {
			return fmt.Errorf("failed to marshal config to YAML: %w", err)
		}
		fmt.Printf("# guidepost configuration\n%s", string(data))

	case "toml":
		data, err := toml.Marshal(cfg)
		if err != nil {
			return fmt.Errorf("failed to marshal config to TOML: %w", err)
		}
		fmt.Printf("# guidepost configuration\n%s", string(data))

	default:
		return fmt.Errorf("unsupported format: %s (supported: toml, json, yaml)", configFormat)
	}

	return nil
}

func runConfigValidate(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfigUnvalidated(cmd)
	if err != nil {
		return err
	}

	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("configuration validation failed: %w", err)
	}

	fmt.Println("✓ Configuration is valid")
	fmt.Printf("  %s\n", cfg.String())
	return nil
}

func runConfigInit(cmd *cobra.Command, args []string) error {
	if err := config.WriteDefault(configInitPath, configInitForce); err != nil {
		return err
	}
	pterm.Success.Printf("Wrote default configuration to %s\n", configInitPath)
	pterm.Info.Println("Set GUIDEPOST_DATABASE_PASSWORD in the environment rather than in the file")
	return nil
}
