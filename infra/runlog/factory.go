package runlog

import (
	"fmt"

	"github.com/kilianp07/tunnelctl/core/factory"
	"github.com/kilianp07/tunnelctl/core/telemetry"
)

type sqliteConfig struct {
	Path string `json:"path"`
}

func init() {
	_ = telemetry.RegisterPublisher("jsonl", func(conf map[string]any) (telemetry.StatePublisher, error) {
		var c JSONLConfig
		if err := factory.Decode(conf, &c); err != nil {
			return nil, err
		}
		if c.Path == "" {
			return nil, fmt.Errorf("jsonl: path is required")
		}
		store, err := NewJSONLStore(c)
		if err != nil {
			return nil, err
		}
		return NewSink(store), nil
	})
	_ = telemetry.RegisterPublisher("sqlite", func(conf map[string]any) (telemetry.StatePublisher, error) {
		var c sqliteConfig
		if err := factory.Decode(conf, &c); err != nil {
			return nil, err
		}
		if c.Path == "" {
			return nil, fmt.Errorf("sqlite: path is required")
		}
		store, err := NewSQLiteStore(c.Path)
		if err != nil {
			return nil, err
		}
		return NewSink(store), nil
	})
}
