package grace

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/coregate/coregate/internal/grace"
)

var dumpCmd = &cobra.Command{
	Use:   "dump",
	Short: "Dump the full grace object: epochs plus every member's flags",
	RunE:  runDump,
}

func runDump(cmd *cobra.Command, args []string) error {
	return withCoordinator(func(ctx context.Context, c *grace.Coordinator) error {
		text, err := c.Dump(ctx)
		if err != nil {
			return fmt.Errorf("failed to dump grace object: %w", err)
		}
		cmd.Print(text)
		return nil
	})
}
