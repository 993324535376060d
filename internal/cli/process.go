package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

var processItemCmd = &cobra.Command{
	Use:   "process-item <job-id> <remote-id>",
	Short: "Re-process a single item of an existing job",
	Long: `Re-process one item of an existing job, rebuilding the backend from the
stored job state. The job is saved with the new item outcome.

Examples:
  harvester process-item 6f1c0a52-2f4e-4c1b-9b3e-0c7d3f1b2a10 dataset-42`,
	Args: cobra.ExactArgs(2),
	RunE: runProcessItem,
}

func init() {
	rootCmd.AddCommand(processItemCmd)
}

func runProcessItem(cmd *cobra.Command, args []string) error {
	out := cmd.OutOrStdout()
	p := newPrinter(out)

	job, item, err := application.Engine.ProcessItem(cmd.Context(), args[0], args[1])
	if err != nil {
		return err
	}
	printItemLine(out, p, item)
	fmt.Fprintf(out, "Job %s is %s\n", job.ID, p.jobStatus(job.Status))
	return nil
}
