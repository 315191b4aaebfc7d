package history

import (
	"fmt"
	"path/filepath"
	"strings"

	corehistory "github.com/kilianp07/tunnelctl/core/history"
)

// Formats accepted by Load.
const (
	FormatCSV      = "csv"
	FormatScenario = "scenario"
)

// Config selects the history source.
type Config struct {
	Path string `json:"path"`
	// Format is csv or scenario. Empty infers it from the file extension.
	Format  string  `json:"format"`
	Columns Columns `json:"columns"`
}

// Load reads the configured history.
func Load(cfg Config) (*corehistory.Dataset, error) {
	if cfg.Path == "" {
		return nil, fmt.Errorf("history: path is required")
	}
	format := strings.ToLower(cfg.Format)
	if format == "" {
		switch strings.ToLower(filepath.Ext(cfg.Path)) {
		case ".yaml", ".yml":
			format = FormatScenario
		default:
			format = FormatCSV
		}
	}
	switch format {
	case FormatCSV:
		cols := cfg.Columns
		def := DefaultColumns()
		if cols.Level == "" {
			cols.Level = def.Level
		}
		if cols.Inflow == "" {
			cols.Inflow = def.Inflow
		}
		if cols.Price == "" {
			cols.Price = def.Price
		}
		return LoadCSVFile(cfg.Path, cols)
	case FormatScenario:
		return LoadScenarioFile(cfg.Path)
	default:
		return nil, fmt.Errorf("history: unknown format %q", cfg.Format)
	}
}
