package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/kilianp07/tunnelctl/app"
	"github.com/kilianp07/tunnelctl/pkg/export"
)

var runOpts struct {
	strategy string
	steps    int
	start    string
	format   string
	events   bool
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Replay the history under one strategy and print the run table",
	RunE: func(cmd *cobra.Command, args []string) error {
		start, err := parseTime(runOpts.start)
		if err != nil {
			return err
		}
		return withService(func(ctx context.Context, svc *app.Service) error {
			run, err := svc.Run(ctx, runOpts.strategy, runOpts.steps, start)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			switch {
			case runOpts.events && runOpts.format == "json":
				return export.WriteJSON(out, run.Events)
			case runOpts.events:
				return export.WriteEventsCSV(out, run.Events)
			case runOpts.format == "json":
				return export.WriteJSON(out, run)
			case runOpts.format == "csv":
				return export.WriteRecordsCSV(out, run.Records)
			default:
				return fmt.Errorf("unknown format %q", runOpts.format)
			}
		})
	},
}

func init() {
	f := runCmd.Flags()
	f.StringVarP(&runOpts.strategy, "strategy", "s", "multi_agent", "multi_agent or baseline")
	f.IntVarP(&runOpts.steps, "steps", "n", 0, "number of steps, 0 runs until the last record")
	f.StringVar(&runOpts.start, "start", "", "first timestamp (UTC), defaults to the first record")
	f.StringVarP(&runOpts.format, "format", "f", "csv", "output format: csv or json")
	f.BoolVar(&runOpts.events, "events", false, "print the decision log instead of the run table")
	rootCmd.AddCommand(runCmd)
}
