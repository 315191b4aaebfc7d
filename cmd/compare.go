package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/kilianp07/tunnelctl/app"
	"github.com/kilianp07/tunnelctl/pkg/export"
)

var compareOpts struct {
	steps  int
	start  string
	format string
}

var compareCmd = &cobra.Command{
	Use:   "compare",
	Short: "Run both strategies over the same window and compare them",
	RunE: func(cmd *cobra.Command, args []string) error {
		start, err := parseTime(compareOpts.start)
		if err != nil {
			return err
		}
		return withService(func(ctx context.Context, svc *app.Service) error {
			cmp, err := svc.Compare(ctx, compareOpts.steps, start)
			if err != nil {
				return err
			}
			switch compareOpts.format {
			case "table":
				return export.WriteComparisonTable(cmd.OutOrStdout(), cmp.Report)
			case "json":
				return export.WriteJSON(cmd.OutOrStdout(), cmp.Report)
			default:
				return fmt.Errorf("unknown format %q", compareOpts.format)
			}
		})
	},
}

func init() {
	f := compareCmd.Flags()
	f.IntVarP(&compareOpts.steps, "steps", "n", 0, "number of steps, 0 runs until the last record")
	f.StringVar(&compareOpts.start, "start", "", "first timestamp (UTC), defaults to the first record")
	f.StringVarP(&compareOpts.format, "format", "f", "table", "output format: table or json")
	rootCmd.AddCommand(compareCmd)
}
