package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

var enqueueCmd = &cobra.Command{
	Use:   "enqueue <source>...",
	Short: "Schedule harvests on the worker queue",
	Long: `Publish harvest requests to NSQ for harvestd to pick up.
Only active, accepted sources can be enqueued.

Examples:
  harvester enqueue my-portal
  harvester enqueue my-portal other-portal`,
	Args:        cobra.MinimumNArgs(1),
	Annotations: map[string]string{needsQueue: "true"},
	RunE:        runEnqueue,
}

func init() {
	rootCmd.AddCommand(enqueueCmd)
}

func runEnqueue(cmd *cobra.Command, args []string) error {
	out := cmd.OutOrStdout()
	for _, source := range args {
		if err := application.Runner.Enqueue(cmd.Context(), source); err != nil {
			return err
		}
		fmt.Fprintf(out, "Enqueued %s\n", source)
	}
	return nil
}
