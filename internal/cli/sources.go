package cli

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/raphaelgruber/catalog-harvester/internal/backend/builtin"
	"github.com/raphaelgruber/catalog-harvester/internal/models"
	"github.com/raphaelgruber/catalog-harvester/internal/store"
)

var (
	sourcesAll      bool
	importAccept    bool
	deletePurgeJobs bool
)

var sourcesCmd = &cobra.Command{
	Use:   "sources",
	Short: "Manage harvest sources",
}

var sourcesListCmd = &cobra.Command{
	Use:   "list",
	Short: "List harvest sources",
	Long: `List the configured harvest sources.

Examples:
  harvester sources list         # Live sources
  harvester sources list --all   # Include deleted sources`,
	Args: cobra.NoArgs,
	RunE: runSourcesList,
}

var sourcesShowCmd = &cobra.Command{
	Use:   "show <source>",
	Short: "Show a source and its record counts",
	Args:  cobra.ExactArgs(1),
	RunE:  runSourcesShow,
}

var sourcesImportCmd = &cobra.Command{
	Use:   "import <file.yaml>",
	Short: "Create or update sources from a YAML file",
	Long: `Create or update sources from a YAML file. Sources are matched by slug;
existing ones are updated in place and keep their id.

Examples:
  harvester sources import sources.yaml
  harvester sources import sources.yaml --accept   # Mark new sources as validated`,
	Args: cobra.ExactArgs(1),
	RunE: runSourcesImport,
}

var sourcesValidateCmd = &cobra.Command{
	Use:   "validate <file.yaml>",
	Short: "Check a source file against the backend descriptors",
	Long: `Check a source file without touching the store. Unknown backends, filters,
features and extra configs are reported for every source.

Examples:
  harvester sources validate sources.yaml`,
	Args:        cobra.ExactArgs(1),
	Annotations: map[string]string{skipApp: "true"},
	RunE:        runSourcesValidate,
}

var sourcesDeleteCmd = &cobra.Command{
	Use:   "delete <source>",
	Short: "Soft-delete a source",
	Long: `Soft-delete a source. Harvested records are kept; the source is no longer
scheduled.

Examples:
  harvester sources delete my-portal
  harvester sources delete my-portal --purge-jobs   # Also drop its job history`,
	Args: cobra.ExactArgs(1),
	RunE: runSourcesDelete,
}

func init() {
	sourcesListCmd.Flags().BoolVar(&sourcesAll, "all", false, "include deleted sources")
	sourcesImportCmd.Flags().BoolVar(&importAccept, "accept", false, "mark imported sources as accepted")
	sourcesDeleteCmd.Flags().BoolVar(&deletePurgeJobs, "purge-jobs", false, "also delete the source's jobs")

	sourcesCmd.AddCommand(sourcesListCmd, sourcesShowCmd, sourcesImportCmd, sourcesValidateCmd, sourcesDeleteCmd)
	rootCmd.AddCommand(sourcesCmd)
}

func runSourcesList(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	out := cmd.OutOrStdout()
	p := newPrinter(out)

	sources, err := application.Store.ListSources(ctx, sourcesAll)
	if err != nil {
		return fmt.Errorf("list sources: %w", err)
	}
	if len(sources) == 0 {
		fmt.Fprintln(out, "No sources found")
		return nil
	}

	fmt.Fprintln(out, p.header(fmt.Sprintf("%-24s %-10s %-8s %-10s %s", "SLUG", "BACKEND", "ACTIVE", "VALIDATION", "URL")))
	for _, src := range sources {
		slug := src.Slug
		if src.IsDeleted() {
			slug += " (deleted)"
		}
		fmt.Fprintf(out, "%-24s %-10s %-8t %-10s %s\n", slug, src.Backend, src.Active, p.validation(src.Validation.State), src.URL)
	}
	return nil
}

func runSourcesShow(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	out := cmd.OutOrStdout()
	p := newPrinter(out)

	src, err := application.Runner.Resolve(ctx, args[0])
	if err != nil {
		return err
	}
	datasets, err := application.Store.CountDatasets(ctx, src.ID)
	if err != nil {
		return fmt.Errorf("count datasets: %w", err)
	}
	services, err := application.Store.CountDataservices(ctx, src.ID)
	if err != nil {
		return fmt.Errorf("count dataservices: %w", err)
	}

	fmt.Fprintf(out, "%s %s\n", p.header("Source:"), src.Name)
	fmt.Fprintf(out, "  ID: %s\n", src.ID)
	fmt.Fprintf(out, "  Slug: %s\n", src.Slug)
	fmt.Fprintf(out, "  URL: %s\n", src.URL)
	fmt.Fprintf(out, "  Backend: %s\n", src.Backend)
	fmt.Fprintf(out, "  Active: %t\n", src.Active)
	fmt.Fprintf(out, "  Autoarchive: %t\n", src.Autoarchive)
	fmt.Fprintf(out, "  Validation: %s\n", p.validation(src.Validation.State))
	if src.Validation.By != "" {
		fmt.Fprintf(out, "    By: %s\n", src.Validation.By)
	}
	if src.Schedule != "" {
		fmt.Fprintf(out, "  Schedule: %s\n", src.Schedule)
	}
	if src.IsDeleted() {
		fmt.Fprintf(out, "  Deleted: %s\n", src.DeletedAt.Format(time.RFC3339))
	}
	if len(src.Config.Filters) > 0 {
		fmt.Fprintln(out, "  Filters:")
		for _, f := range src.Config.Filters {
			op := "="
			if f.IsExclude() {
				op = "!="
			}
			fmt.Fprintf(out, "    %s %s %v\n", f.Key, op, f.Value)
		}
	}
	if len(src.Config.Features) > 0 {
		fmt.Fprintln(out, "  Features:")
		for name, on := range src.Config.Features {
			fmt.Fprintf(out, "    %s: %t\n", name, on)
		}
	}
	fmt.Fprintf(out, "  Datasets: %d\n", datasets)
	fmt.Fprintf(out, "  Dataservices: %d\n", services)
	return nil
}

func runSourcesImport(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	out := cmd.OutOrStdout()
	p := newPrinter(out)

	sources, err := loadSourceFile(args[0], application.Registry)
	if err != nil {
		return err
	}

	var created, updated int
	for i := range sources {
		src := &sources[i]
		existing, err := application.Store.GetSourceBySlug(ctx, src.Slug)
		switch {
		case errors.Is(err, store.ErrNotFound):
			if importAccept {
				now := time.Now().UTC()
				src.Validation = models.SourceValidation{State: models.ValidationAccepted, By: "cli", On: &now}
			}
			if err := application.Store.CreateSource(ctx, src); err != nil {
				return fmt.Errorf("create %s: %w", src.Slug, err)
			}
			created++
			fmt.Fprintf(out, "%s %s\n", p.paint(p.theme.successStyle(), "created"), src.Slug)
		case err != nil:
			return fmt.Errorf("lookup %s: %w", src.Slug, err)
		default:
			src.ID = existing.ID
			src.CreatedAt = existing.CreatedAt
			if src.Validation.State == models.ValidationPending {
				src.Validation = existing.Validation
			}
			if err := application.Store.UpdateSource(ctx, src); err != nil {
				return fmt.Errorf("update %s: %w", src.Slug, err)
			}
			updated++
			fmt.Fprintf(out, "%s %s\n", p.paint(p.theme.statusStyle(), "updated"), src.Slug)
		}
	}
	fmt.Fprintf(out, "Imported %d sources (%d created, %d updated)\n", len(sources), created, updated)
	return nil
}

func runSourcesValidate(cmd *cobra.Command, args []string) error {
	out := cmd.OutOrStdout()
	p := newPrinter(out)

	sources, err := loadSourceFile(args[0], builtin.Registry())
	if err != nil {
		for _, line := range strings.Split(err.Error(), "\n") {
			fmt.Fprintf(out, "%s %s\n", p.paint(p.theme.errorStyle(), "invalid"), line)
		}
		return errors.New("source file is invalid")
	}
	for _, src := range sources {
		fmt.Fprintf(out, "%s %s (%s)\n", p.paint(p.theme.successStyle(), "ok"), src.Slug, src.Backend)
	}
	return nil
}

func runSourcesDelete(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	out := cmd.OutOrStdout()

	src, err := application.Runner.Resolve(ctx, args[0])
	if err != nil {
		return err
	}
	if err := application.Store.DeleteSource(ctx, src.ID); err != nil {
		return fmt.Errorf("delete source: %w", err)
	}
	fmt.Fprintf(out, "Deleted source %s\n", src.Slug)

	if deletePurgeJobs {
		n, err := application.Store.DeleteJobsForSource(ctx, src.ID)
		if err != nil {
			return fmt.Errorf("delete jobs: %w", err)
		}
		fmt.Fprintf(out, "Deleted %d jobs\n", n)
	}
	return nil
}
