// Package cli provides the command-line interface for the catalog harvester.
package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/raphaelgruber/catalog-harvester/internal/app"
	"github.com/raphaelgruber/catalog-harvester/internal/config"
)

var (
	// Version is set at build time.
	Version = "0.1.0"

	// Global flags
	verbose bool

	// Global config, logger and wired components
	cfg         config.Config
	logger      *slog.Logger
	application *app.App
	closeLog    func() error
)

// Command annotations.
const (
	// skipApp marks commands that never touch the store.
	skipApp = "skip-app"
	// needsQueue marks commands that publish to NSQ.
	needsQueue = "needs-queue"
)

// rootCmd represents the base command when called without any subcommands.
var rootCmd = &cobra.Command{
	Use:   "harvester",
	Short: "Harvest open-data catalogs into canonical datasets",
	Long: `harvester pulls metadata from remote open-data catalogs (CKAN, DKAN, DCAT,
CSW, MAAF) and reconciles it into canonical datasets and dataservices.

Configuration is read from the environment (HARVEST_STORE, SURREALDB_URL,
MONGO_URI, BOLT_PATH, NSQD_ADDR, ...).`,
	Version:       Version,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if cmd.Name() == "help" || cmd.Annotations[skipApp] == "true" {
			return nil
		}

		cfg = config.Load()
		level := cfg.LogLevel
		if verbose {
			level = slog.LevelDebug
		}
		logger, closeLog = config.SetupLogger(cfg.LogFile, level)

		var err error
		application, err = openApp(cmd.Context(), cfg, logger, app.Options{Publisher: cmd.Annotations[needsQueue] == "true"})
		if err != nil {
			return fmt.Errorf("initialize: %w", err)
		}
		return nil
	},
}

// openApp is replaced in tests.
var openApp = app.New

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() error {
	defer closeApp()
	return rootCmd.ExecuteContext(context.Background())
}

// closeApp releases what PersistentPreRunE opened. Post-run hooks are not
// called when a command fails, so this runs after every execution.
func closeApp() {
	if application != nil {
		if err := application.Close(context.Background()); err != nil {
			fmt.Fprintf(os.Stderr, "Warning: failed to close: %v\n", err)
		}
		application = nil
	}
	if closeLog != nil {
		_ = closeLog()
		closeLog = nil
	}
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
}
