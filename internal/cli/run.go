package cli

import (
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/raphaelgruber/catalog-harvester/internal/models"
)

var previewMaxItems int

var runCmd = &cobra.Command{
	Use:   "run <source>",
	Short: "Harvest a source now",
	Long: `Harvest a source synchronously and print the job summary.
The source can be given by id or slug.

Examples:
  harvester run my-portal
  harvester run 6f1c0a52-2f4e-4c1b-9b3e-0c7d3f1b2a10`,
	Args: cobra.ExactArgs(1),
	RunE: runRun,
}

var previewCmd = &cobra.Command{
	Use:   "preview <source>",
	Short: "Dry-run a harvest without persisting anything",
	Long: `Run the harvest pipeline against a source without saving the job or any
record. Useful to check a source before accepting it.

Examples:
  harvester preview my-portal
  harvester preview my-portal --max-items 5`,
	Args: cobra.ExactArgs(1),
	RunE: runPreview,
}

func init() {
	previewCmd.Flags().IntVar(&previewMaxItems, "max-items", 0, "maximum items to process (default from HARVEST_PREVIEW_MAX_ITEMS)")

	rootCmd.AddCommand(runCmd, previewCmd)
}

func runRun(cmd *cobra.Command, args []string) error {
	job, err := application.Runner.RunSource(cmd.Context(), args[0])
	if err != nil {
		return err
	}
	printJobSummary(cmd.OutOrStdout(), job, true)
	return nil
}

func runPreview(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	src, err := application.Runner.Resolve(ctx, args[0])
	if err != nil {
		return err
	}
	job, err := application.Engine.Preview(ctx, src, previewMaxItems)
	if err != nil {
		return err
	}
	printJobSummary(cmd.OutOrStdout(), job, true)
	return nil
}

// printJobSummary writes a job header, its item counts and, when withItems
// is set, one line per item.
func printJobSummary(w io.Writer, job *models.HarvestJob, withItems bool) {
	p := newPrinter(w)

	fmt.Fprintf(w, "%s %s\n", p.header("Job:"), job.ID)
	fmt.Fprintf(w, "  Status: %s\n", p.jobStatus(job.Status))
	fmt.Fprintf(w, "  Created: %s\n", job.Created.Format(time.RFC3339))
	if d := job.Duration(); d > 0 {
		fmt.Fprintf(w, "  Duration: %s\n", d.Round(time.Millisecond))
	}
	fmt.Fprintf(w, "  Items: %d (done %d, skipped %d, failed %d, archived %d)\n",
		len(job.Items),
		job.CountItems(models.ItemDone),
		job.CountItems(models.ItemSkipped),
		job.CountItems(models.ItemFailed),
		job.CountItems(models.ItemArchived))

	for _, e := range job.Errors {
		fmt.Fprintf(w, "  %s %s\n", p.paint(p.theme.errorStyle(), "error:"), e.Message)
	}

	if !withItems || len(job.Items) == 0 {
		return
	}
	fmt.Fprintln(w)
	fmt.Fprintln(w, p.header(fmt.Sprintf("%-12s %-10s %s", "KIND", "STATUS", "REMOTE ID")))
	for _, item := range job.Items {
		printItemLine(w, p, item)
	}
}

func printItemLine(w io.Writer, p *printer, item *models.HarvestItem) {
	fmt.Fprintf(w, "%-12s %-10s %s\n", item.Kind, p.itemStatus(item.Status), item.RemoteID)
	for _, e := range item.Errors {
		fmt.Fprintf(w, "    %s\n", p.hint(e.Message))
	}
}
