package grace

import (
	"context"
	"fmt"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/coregate/coregate/internal/grace"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show grace period status",
	Long: `Display the current epoch counters and whether the cluster is in
a grace period.`,
	RunE: runStatus,
}

func runStatus(cmd *cobra.Command, args []string) error {
	return withCoordinator(func(ctx context.Context, c *grace.Coordinator) error {
		epochs, err := c.Epochs(ctx)
		if err != nil {
			return fmt.Errorf("failed to read epochs: %w", err)
		}

		table := tablewriter.NewWriter(cmd.OutOrStdout())
		table.SetHeader([]string{"FIELD", "VALUE"})
		table.SetAutoWrapText(false)
		table.SetAlignment(tablewriter.ALIGN_LEFT)
		table.SetBorder(false)
		table.Append([]string{"In grace period", fmt.Sprintf("%t", epochs.InGracePeriod())})
		table.Append([]string{"Current epoch", fmt.Sprintf("%d", epochs.CurrentEpoch)})
		table.Append([]string{"Reclaim epoch", fmt.Sprintf("%d", epochs.ReclaimEpoch)})
		table.Render()
		return nil
	})
}
