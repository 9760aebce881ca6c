package grace

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/coregate/coregate/internal/grace"
)

var addCmd = &cobra.Command{
	Use:   "add <member-id>...",
	Short: "Add one or more members to the grace object's membership table",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runAdd,
}

func runAdd(cmd *cobra.Command, args []string) error {
	memberIDs := args
	return withCoordinator(func(ctx context.Context, c *grace.Coordinator) error {
		if err := c.Add(ctx, memberIDs); err != nil {
			return fmt.Errorf("failed to add members %v: %w", memberIDs, err)
		}
		cmd.Printf("members %v added\n", memberIDs)
		return nil
	})
}
