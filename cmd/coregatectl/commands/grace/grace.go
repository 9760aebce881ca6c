// Package grace implements the grace coordination management commands.
package grace

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/coregate/coregate/internal/config"
	"github.com/coregate/coregate/internal/grace"
	"github.com/coregate/coregate/internal/wiring"
)

// Cmd is the parent command for grace coordination management.
var Cmd = &cobra.Command{
	Use:   "grace",
	Short: "Manage the cluster grace coordination object",
	Long: `Manage the cluster-wide GraceObject that coordinates exactly-once
admission across replicas during cluster recovery.

Examples:
  coregatectl grace status
  coregatectl grace add replica-2
  coregatectl grace join replica-2 --start
  coregatectl grace lift replica-2
  coregatectl grace dump`,
}

// ConfigLoader is set by the root command to avoid an import cycle
// between this package and cmd/coregatectl/commands.
var ConfigLoader func() (config.GraceConfig, error)

func init() {
	Cmd.AddCommand(statusCmd)
	Cmd.AddCommand(addCmd)
	Cmd.AddCommand(joinCmd)
	Cmd.AddCommand(liftCmd)
	Cmd.AddCommand(dumpCmd)
}

// withCoordinator loads config, opens the configured store, and invokes
// fn with a ready Coordinator, closing the store afterward regardless of
// fn's outcome.
func withCoordinator(fn func(ctx context.Context, c *grace.Coordinator) error) error {
	graceCfg, err := ConfigLoader()
	if err != nil {
		return err
	}

	store, closeStore, err := wiring.OpenGraceStore(graceCfg)
	if err != nil {
		return fmt.Errorf("failed to open grace store: %w", err)
	}
	defer closeStore()

	coordinator := grace.NewCoordinator(store, graceCfg.ObjectName)
	ctx := context.Background()
	// Create is idempotent, so a CLI invocation against a cluster whose
	// server process has never started still finds the object present.
	if err := coordinator.Create(ctx); err != nil {
		return fmt.Errorf("failed to ensure grace object exists: %w", err)
	}
	return fn(ctx, coordinator)
}
