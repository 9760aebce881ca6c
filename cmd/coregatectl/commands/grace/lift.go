package grace

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/coregate/coregate/internal/grace"
)

var liftCmd = &cobra.Command{
	Use:   "lift <member-id>...",
	Short: "Clear NeedGrace for the named members",
	Long: `Lift clears NeedGrace for each named member, after confirming every
member in the table is Enforcing. The grace period ends (ReclaimEpoch is
cleared) only once no member is left needing it.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runLift,
}

func runLift(cmd *cobra.Command, args []string) error {
	memberIDs := args
	return withCoordinator(func(ctx context.Context, c *grace.Coordinator) error {
		if err := c.Lift(ctx, memberIDs); err != nil {
			return fmt.Errorf("failed to lift grace for %v: %w", memberIDs, err)
		}
		cmd.Printf("grace lifted for %v\n", memberIDs)
		return nil
	})
}
