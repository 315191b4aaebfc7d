package cmd

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/kilianp07/tunnelctl/app"
	"github.com/kilianp07/tunnelctl/pkg/export"
)

var forecastAt string

var forecastCmd = &cobra.Command{
	Use:   "forecast",
	Short: "Print the inflow and price forecast following a timestamp",
	RunE: func(cmd *cobra.Command, args []string) error {
		at, err := parseTime(forecastAt)
		if err != nil {
			return err
		}
		return withService(func(_ context.Context, svc *app.Service) error {
			fc, err := svc.Forecast(at)
			if err != nil {
				return err
			}
			return export.WriteJSON(cmd.OutOrStdout(), fc)
		})
	},
}

func init() {
	forecastCmd.Flags().StringVar(&forecastAt, "at", "", "forecast origin (UTC), defaults to the first record")
	rootCmd.AddCommand(forecastCmd)
}
