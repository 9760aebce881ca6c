// Package commands implements coregatectl's CLI.
package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/coregate/coregate/cmd/coregatectl/commands/grace"
	"github.com/coregate/coregate/internal/config"
)

var cfgFile string

var rootCmd = &cobra.Command{
	Use:           "coregatectl",
	Short:         "Operator CLI for the grace coordination core",
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: ./coregate.yaml)")
	grace.ConfigLoader = loadGraceConfig
	rootCmd.AddCommand(grace.Cmd)
}

func loadGraceConfig() (config.GraceConfig, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return config.GraceConfig{}, fmt.Errorf("failed to load configuration: %w", err)
	}
	return cfg.Grace, nil
}
