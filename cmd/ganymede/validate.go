package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"mercator-hq/ganymede/pkg/admission"
	"mercator-hq/ganymede/pkg/cli"
	"mercator-hq/ganymede/pkg/config"
)

var validateFlags struct {
	rulesFile string
}

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate configuration files",
	Long: `Validate a Ganymede configuration file without starting the server.

All validation errors are collected and reported together, so a single
run surfaces every problem in the file. When the configuration
references a standalone rules file, that file is validated too.

Examples:
  # Validate the default config
  ganymede validate

  # Validate a specific config file
  ganymede validate --config /etc/ganymede/config.yaml

  # Validate a standalone rules file on its own
  ganymede validate --rules /etc/ganymede/rules.yaml`,
	RunE: validateConfig,
}

func init() {
	rootCmd.AddCommand(validateCmd)

	validateCmd.Flags().StringVar(&validateFlags.rulesFile, "rules", "", "validate a standalone rules file instead of the config")
}

func validateConfig(cmd *cobra.Command, args []string) error {
	if validateFlags.rulesFile != "" {
		rulesFile, err := config.LoadRulesFile(validateFlags.rulesFile)
		if err != nil {
			return cli.NewCommandError("validate", err)
		}

		// A rules file without its own default tier inherits the
		// config's, same as the run command and the hot reloader.
		tier := rulesFile.DefaultTier
		if tier == "" {
			if cfg, err := config.LoadConfig(cfgFile); err == nil {
				tier = cfg.Admission.DefaultTier
			}
		}
		if _, err := admission.NewRuleSet(rulesFile.Rules, tier); err != nil {
			fmt.Printf("Rules file invalid:\n  - %s\n", err)
			return cli.NewCommandError("validate", err)
		}

		fmt.Printf("✓ Rules file valid (%d rules, default tier %q)\n",
			len(rulesFile.Rules), tier)
		return nil
	}

	cfg, err := config.LoadConfig(cfgFile)
	if err != nil {
		var verr config.ValidationError
		if errors.As(err, &verr) {
			fmt.Printf("Configuration invalid (%d errors):\n", len(verr.Errors))
			for _, fe := range verr.Errors {
				fmt.Printf("  - %s: %s\n", fe.Field, fe.Message)
			}
			return cli.NewCommandError("validate", fmt.Errorf("%d validation errors", len(verr.Errors)))
		}
		return cli.NewCommandError("validate", err)
	}

	fmt.Println("✓ Configuration valid")
	fmt.Printf("  Listen address: %s\n", cfg.Server.ListenAddress)
	fmt.Printf("  Default tier:   %s\n", cfg.Admission.DefaultTier)
	if cfg.Admission.RulesPath != "" {
		fmt.Printf("  Rules file:     %s (watch: %v)\n", cfg.Admission.RulesPath, cfg.Admission.Watch)
	} else {
		fmt.Printf("  Inline rules:   %d\n", len(cfg.Admission.Rules))
	}
	fmt.Printf("  Analytics:      %v (backend: %s)\n", cfg.Analytics.Enabled, cfg.Analytics.Backend)
	return nil
}
