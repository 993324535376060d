package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

var (
	purgeDays   int
	purgeSource string
)

var purgeCmd = &cobra.Command{
	Use:   "purge",
	Short: "Delete old harvest jobs",
	Long: `Delete harvest jobs older than the retention period, or every job of one source.

Examples:
  harvester purge                     # Use HARVEST_JOBS_RETENTION_DAYS
  harvester purge --days 7
  harvester purge --source my-portal  # All jobs of a source`,
	Args: cobra.NoArgs,
	RunE: runPurge,
}

func init() {
	purgeCmd.Flags().IntVar(&purgeDays, "days", 0, "retention in days (default from HARVEST_JOBS_RETENTION_DAYS)")
	purgeCmd.Flags().StringVar(&purgeSource, "source", "", "delete all jobs of this source instead")
	rootCmd.AddCommand(purgeCmd)
}

func runPurge(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	out := cmd.OutOrStdout()

	if purgeSource != "" {
		src, err := application.Runner.Resolve(ctx, purgeSource)
		if err != nil {
			return err
		}
		n, err := application.Store.DeleteJobsForSource(ctx, src.ID)
		if err != nil {
			return fmt.Errorf("delete jobs: %w", err)
		}
		fmt.Fprintf(out, "Deleted %d jobs of %s\n", n, src.Slug)
		return nil
	}

	days := purgeDays
	if days == 0 {
		days = cfg.JobsRetentionDays
	}
	n, err := application.Engine.PurgeJobs(ctx, days)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "Deleted %d jobs older than %d days\n", n, days)
	return nil
}
