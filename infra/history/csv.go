// Package history loads the plant history from CSV exports and builds
// synthetic histories from scenario files.
package history

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	corehistory "github.com/kilianp07/tunnelctl/core/history"
	"github.com/kilianp07/tunnelctl/core/model"
)

// ErrMissingColumn is returned when a required column is absent.
var ErrMissingColumn = errors.New("missing column")

// Columns names the CSV columns. Pump flow columns are detected from their
// header, e.g. "Pump flow 2.3".
type Columns struct {
	Timestamp string `json:"timestamp"`
	Level     string `json:"level"`
	Inflow    string `json:"inflow"`
	Price     string `json:"price"`
}

// DefaultColumns returns the plant export headers. An empty Timestamp
// selects the first column.
func DefaultColumns() Columns {
	return Columns{
		Level:  "Water level in tunnel L2",
		Inflow: "Inflow to tunnel F1",
		Price:  "Electricity price 2: normal",
	}
}

var timeLayouts = []string{
	time.RFC3339,
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
	"2006-01-02T15:04:05",
	"02.01.2006 15:04",
	"2.1.2006 15:04",
}

func parseTime(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, l := range timeLayouts {
		if t, err := time.ParseInLocation(l, s, time.UTC); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognised timestamp %q", s)
}

// parseValue returns NaN for empty or non-numeric cells so that the dataset
// gap-fills them. Decimal commas are accepted.
func parseValue(s string) float64 {
	s = strings.TrimSpace(s)
	if s == "" {
		return math.NaN()
	}
	v, err := strconv.ParseFloat(strings.Replace(s, ",", ".", 1), 64)
	if err != nil {
		return math.NaN()
	}
	return v
}

// LoadCSV reads a history export. Rows whose timestamp cannot be parsed are
// skipped.
func LoadCSV(r io.Reader, cols Columns) (*corehistory.Dataset, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true
	header, err := cr.Read()
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}
	if len(header) > 0 {
		header[0] = strings.TrimPrefix(header[0], "\ufeff")
	}
	find := func(name string) int {
		for i, h := range header {
			if strings.EqualFold(strings.TrimSpace(h), name) {
				return i
			}
		}
		return -1
	}

	tsCol := 0
	if cols.Timestamp != "" {
		if tsCol = find(cols.Timestamp); tsCol < 0 {
			return nil, fmt.Errorf("%w: %q", ErrMissingColumn, cols.Timestamp)
		}
	}
	idx := map[string]int{}
	for _, name := range []string{cols.Level, cols.Inflow, cols.Price} {
		i := find(name)
		if i < 0 {
			return nil, fmt.Errorf("%w: %q", ErrMissingColumn, name)
		}
		idx[name] = i
	}
	pumpCols := map[model.PumpID]int{}
	for i, h := range header {
		if !strings.HasPrefix(strings.ToLower(strings.TrimSpace(h)), "pump flow") {
			continue
		}
		if id, err := model.ParsePumpID(h); err == nil {
			pumpCols[id] = i
		}
	}

	cell := func(rec []string, i int) string {
		if i < 0 || i >= len(rec) {
			return ""
		}
		return rec[i]
	}
	var samples []corehistory.Sample
	for line := 2; ; line++ {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		ts, err := parseTime(cell(rec, tsCol))
		if err != nil {
			continue
		}
		s := corehistory.Sample{
			Timestamp:  ts,
			Level:      parseValue(cell(rec, idx[cols.Level])),
			Inflow:     parseValue(cell(rec, idx[cols.Inflow])),
			PriceCents: parseValue(cell(rec, idx[cols.Price])),
		}
		for _, id := range model.AllPumps {
			if i, ok := pumpCols[id]; ok {
				s.Flows[id] = parseValue(cell(rec, i))
			}
		}
		samples = append(samples, s)
	}
	return corehistory.New(regularize(samples))
}

// regularize sorts samples, drops duplicate timestamps and inserts empty
// rows for missing intervals on the grid of the smallest observed spacing.
func regularize(samples []corehistory.Sample) []corehistory.Sample {
	if len(samples) < 2 {
		return samples
	}
	sort.SliceStable(samples, func(i, j int) bool { return samples[i].Timestamp.Before(samples[j].Timestamp) })
	var step time.Duration
	for i := 1; i < len(samples); i++ {
		if d := samples[i].Timestamp.Sub(samples[i-1].Timestamp); d > 0 && (step == 0 || d < step) {
			step = d
		}
	}
	if step == 0 {
		return samples[:1]
	}
	out := []corehistory.Sample{samples[0]}
	for _, s := range samples[1:] {
		last := out[len(out)-1].Timestamp
		if !s.Timestamp.After(last) {
			continue
		}
		for t := last.Add(step); t.Before(s.Timestamp); t = t.Add(step) {
			out = append(out, emptySample(t))
		}
		out = append(out, s)
	}
	return out
}

func emptySample(t time.Time) corehistory.Sample {
	s := corehistory.Sample{Timestamp: t, Level: math.NaN(), Inflow: math.NaN(), PriceCents: math.NaN()}
	for i := range s.Flows {
		s.Flows[i] = math.NaN()
	}
	return s
}

// LoadCSVFile opens path and calls LoadCSV.
func LoadCSVFile(path string, cols Columns) (*corehistory.Dataset, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer func() { _ = f.Close() }()
	ds, err := LoadCSV(f, cols)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return ds, nil
}
