package cli

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/raphaelgruber/catalog-harvester/internal/backend/builtin"
)

var backendsJSON bool

var backendsCmd = &cobra.Command{
	Use:   "backends",
	Short: "List the available harvest backends",
	Long: `List the harvest backends with their filters, features and extra configs.

Examples:
  harvester backends
  harvester backends --json   # Descriptor export`,
	Args:        cobra.NoArgs,
	Annotations: map[string]string{skipApp: "true"},
	RunE:        runBackends,
}

func init() {
	backendsCmd.Flags().BoolVar(&backendsJSON, "json", false, "print descriptors as JSON")
	rootCmd.AddCommand(backendsCmd)
}

func runBackends(cmd *cobra.Command, args []string) error {
	out := cmd.OutOrStdout()
	infos := builtin.Registry().Infos()

	if backendsJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(infos)
	}

	p := newPrinter(out)
	for _, info := range infos {
		fmt.Fprintf(out, "%s %s\n", p.header(info.Name), p.hint(info.DisplayName))
		for _, f := range info.Filters {
			fmt.Fprintf(out, "  filter   %-20s %s\n", f.Key, p.hint(f.Label))
		}
		for _, f := range info.Features {
			fmt.Fprintf(out, "  feature  %-20s %s (default %t)\n", f.Key, p.hint(f.Label), f.Default)
		}
		for _, c := range info.ExtraConfigs {
			fmt.Fprintf(out, "  config   %-20s %s\n", c.Key, p.hint(c.Label))
		}
	}
	return nil
}
