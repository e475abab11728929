// Command telcoetl runs the business-intelligence consolidation pipelines.
package main

import (
	"fmt"
	"log"
	"os"

	"github.com/spf13/cobra"

	"telcoetl/config"
	"telcoetl/pipeline"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var configPath string

	root := &cobra.Command{
		Use:           "telcoetl",
		Short:         "Incremental consolidation of operational exports into reporting snapshots",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to the JSON configuration file")

	loadConfig := func() (*config.Config, error) {
		cfg, err := config.Load(configPath)
		if err != nil {
			return nil, err
		}
		if err := cfg.Validate(); err != nil {
			return nil, err
		}
		return cfg, nil
	}

	registry := pipeline.NewRegistry()

	root.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List the pipelines in run order",
		RunE: func(cmd *cobra.Command, args []string) error {
			for _, name := range registry.Names() {
				fmt.Fprintln(cmd.OutOrStdout(), name)
			}
			return nil
		},
	})

	root.AddCommand(&cobra.Command{
		Use:   "run <pipeline>",
		Short: "Run one pipeline",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			p, err := registry.Get(args[0])
			if err != nil {
				return err
			}
			report, err := p.Run(cmd.Context(), cfg)
			if report != nil {
				fmt.Fprintln(cmd.OutOrStdout(), report.String())
			}
			return err
		},
	})

	root.AddCommand(&cobra.Command{
		Use:   "run-all",
		Short: "Run every pipeline in dependency order",
		Long: "Run every pipeline in dependency order. A failing pipeline is logged " +
			"and its siblings still run; the command exits 0 as long as the batch itself ran.",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			for _, report := range registry.RunAll(cmd.Context(), cfg) {
				fmt.Fprintln(cmd.OutOrStdout(), report.String())
			}
			return nil
		},
	})

	root.AddCommand(&cobra.Command{
		Use:   "runs",
		Short: "Show the latest run audit entries",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			return printRuns(cmd, cfg)
		},
	})

	return root
}

func printRuns(cmd *cobra.Command, cfg *config.Config) error {
	if _, err := os.Stat(cfg.AuditDBPath); err != nil {
		log.Printf("INFO: no audit database at %s yet", cfg.AuditDBPath)
		return nil
	}
	return showRecentRuns(cmd, cfg.AuditDBPath)
}
