package grace

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/coregate/coregate/internal/grace"
)

var joinStart bool

var joinCmd = &cobra.Command{
	Use:   "join <member-id>...",
	Short: "Join one or more members into the current or a new grace period",
	Long: `Join marks the named members as owed a grace period, in one atomic
update.

If the cluster is not currently in a grace period and --start is given, a
new epoch is begun and the cluster starts enforcing grace. If the cluster
is already in a grace period, join simply records that these members also
need it satisfied.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runJoin,
}

func init() {
	joinCmd.Flags().BoolVar(&joinStart, "start", false, "begin a new grace period if one is not already active")
}

func runJoin(cmd *cobra.Command, args []string) error {
	memberIDs := args
	return withCoordinator(func(ctx context.Context, c *grace.Coordinator) error {
		if err := c.Join(ctx, memberIDs, joinStart); err != nil {
			return fmt.Errorf("failed to join members %v: %w", memberIDs, err)
		}
		cmd.Printf("members %v joined\n", memberIDs)
		return nil
	})
}
