package cli

import (
	"fmt"
	"slices"
	"strings"

	"github.com/spf13/cobra"

	"github.com/sadopc/taskr/internal/export"
)

func (a *app) exportCmd() *cobra.Command {
	var format string
	cmd := &cobra.Command{
		Use:   "export <path>",
		Short: "Export tasks to CSV, JSON or YAML",
		Long: `Export every task to a file. The format follows the file extension
unless --format is given. Secret tasks are left out while secret mode is on.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := args[0]
			if format == "" {
				f, ok := export.FormatFromPath(path)
				if !ok {
					return fmt.Errorf("cannot tell the format of %s; pass --format (%s)", path, strings.Join(export.Formats, ", "))
				}
				format = f
			}
			format = strings.ToLower(format)
			if !slices.Contains(export.Formats, format) {
				return fmt.Errorf("unknown format %q; use one of %s", format, strings.Join(export.Formats, ", "))
			}

			s, err := a.openStore()
			if err != nil {
				return err
			}
			n, err := export.FromStore(s, format, path, a.hideSecret(s))
			if err != nil {
				return fmt.Errorf("export: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Exported %d tasks to %s\n", n, path)
			return nil
		},
	}
	cmd.Flags().StringVarP(&format, "format", "f", "", "csv, json or yaml")
	return cmd
}
