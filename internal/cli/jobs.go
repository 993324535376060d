package cli

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/raphaelgruber/catalog-harvester/internal/models"
)

var jobsLimit int

var jobsCmd = &cobra.Command{
	Use:   "jobs <source> [job-id]",
	Short: "List or inspect harvest jobs",
	Long: `List the harvest jobs of a source, newest first, or inspect one job and its items.

Examples:
  harvester jobs my-portal              # Last 20 jobs
  harvester jobs my-portal --limit 0    # All jobs
  harvester jobs my-portal abc123       # Show details for job abc123`,
	Args: cobra.RangeArgs(1, 2),
	RunE: runJobs,
}

func init() {
	jobsCmd.Flags().IntVar(&jobsLimit, "limit", 20, "maximum number of jobs to list (0 for all)")
	rootCmd.AddCommand(jobsCmd)
}

func runJobs(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	out := cmd.OutOrStdout()

	// If job ID provided, show that specific job
	if len(args) == 2 {
		return showJob(ctx, out, args[1])
	}
	return listJobs(ctx, out, args[0])
}

func listJobs(ctx context.Context, out io.Writer, source string) error {
	p := newPrinter(out)

	src, err := application.Runner.Resolve(ctx, source)
	if err != nil {
		return err
	}
	jobs, err := application.Store.ListJobs(ctx, src.ID, jobsLimit)
	if err != nil {
		return fmt.Errorf("list jobs: %w", err)
	}

	if len(jobs) == 0 {
		fmt.Fprintln(out, "No jobs found")
		return nil
	}

	fmt.Fprintln(out, p.header(fmt.Sprintf("%-36s %-12s %-8s %-8s %s", "ID", "STATUS", "ITEMS", "FAILED", "CREATED")))
	for _, job := range jobs {
		fmt.Fprintf(out, "%-36s %-12s %-8d %-8d %s\n",
			job.ID,
			p.jobStatus(job.Status),
			len(job.Items),
			job.CountItems(models.ItemFailed),
			job.Created.Format("2006-01-02 15:04:05"))
	}
	return nil
}

func showJob(ctx context.Context, out io.Writer, id string) error {
	job, err := application.Store.GetJob(ctx, id)
	if err != nil {
		return fmt.Errorf("get job: %w", err)
	}
	printJobSummary(out, job, true)
	return nil
}
