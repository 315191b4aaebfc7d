// Package export writes run tables, decision logs and comparisons for
// operators and downstream tooling.
package export

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"

	"github.com/kilianp07/tunnelctl/core/model"
	"github.com/kilianp07/tunnelctl/core/report"
)

// WriteJSON writes v to w as indented JSON.
func WriteJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// RecordHeader lists the CSV columns written by WriteRecordsCSV.
func RecordHeader() []string {
	h := []string{"run_id", "strategy", "timestamp", "level_m", "volume_m3", "inflow_m3_h", "outflow_m3_h", "price_eur_kwh", "energy_kwh"}
	for _, p := range model.AllPumps {
		h = append(h, "pump_"+p.String()+"_m3_h")
	}
	return h
}

// WriteRecordsCSV writes the run table to w with a header row.
func WriteRecordsCSV(w io.Writer, records []model.Record) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(RecordHeader()); err != nil {
		return err
	}
	for _, r := range records {
		row := []string{
			r.RunID,
			string(r.Strategy),
			r.Timestamp.Format(time.RFC3339),
			formatFloat(r.Level),
			formatFloat(r.Volume),
			formatFloat(r.Inflow),
			formatFloat(r.Outflow),
			formatFloat(r.Price),
			formatFloat(r.EnergyKWh),
		}
		for _, p := range model.AllPumps {
			row = append(row, formatFloat(r.Flows[p]))
		}
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// WriteEventsCSV writes the decision log to w.
func WriteEventsCSV(w io.Writer, events []model.Event) error {
	cw := csv.NewWriter(w)
	if err := cw.Write([]string{"timestamp", "source", "message"}); err != nil {
		return err
	}
	for _, e := range events {
		if err := cw.Write([]string{e.Timestamp.Format(time.RFC3339), e.Source, e.Message}); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// WriteComparisonTable renders both summaries side by side followed by the
// savings of the multi-agent run.
func WriteComparisonTable(w io.Writer, c report.Comparison) error {
	m, b := c.MultiAgent, c.Baseline
	t := table.New().
		Border(lipgloss.NormalBorder()).
		Headers("indicator", string(model.StrategyMultiAgent), string(model.StrategyBaseline)).
		Row("steps", strconv.Itoa(m.Steps), strconv.Itoa(b.Steps)).
		Row("duration (h)", fmt.Sprintf("%.2f", m.DurationH), fmt.Sprintf("%.2f", b.DurationH)).
		Row("energy (kWh)", fmt.Sprintf("%.1f", m.EnergyKWh), fmt.Sprintf("%.1f", b.EnergyKWh)).
		Row("energy cost (EUR)", fmt.Sprintf("%.2f", m.EnergyCostEUR), fmt.Sprintf("%.2f", b.EnergyCostEUR)).
		Row("avg level (m)", fmt.Sprintf("%.2f", m.AvgLevel), fmt.Sprintf("%.2f", b.AvgLevel)).
		Row("min level (m)", fmt.Sprintf("%.2f", m.MinLevel), fmt.Sprintf("%.2f", b.MinLevel)).
		Row("max level (m)", fmt.Sprintf("%.2f", m.MaxLevel), fmt.Sprintf("%.2f", b.MaxLevel)).
		Row("violations", strconv.Itoa(m.ConstraintViolations), strconv.Itoa(b.ConstraintViolations))
	if _, err := fmt.Fprintln(w, t.Render()); err != nil {
		return err
	}
	_, err := fmt.Fprintf(w, "cost savings: %.2f EUR (%.1f%%), energy savings: %.1f kWh\n",
		c.CostSavingsEUR, c.CostSavingsPct, c.EnergySavingsKWh)
	return err
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
