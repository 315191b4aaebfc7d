package telemetry

import (
	"github.com/kilianp07/tunnelctl/core/factory"
	coretelemetry "github.com/kilianp07/tunnelctl/core/telemetry"
)

// init registers built-in publishers.
func init() {
	_ = coretelemetry.RegisterPublisher("nop", func(map[string]any) (coretelemetry.StatePublisher, error) {
		return coretelemetry.NopPublisher{}, nil
	})

	_ = coretelemetry.RegisterPublisher("prometheus", func(map[string]any) (coretelemetry.StatePublisher, error) {
		sink, err := NewPromSink()
		if err != nil {
			return nil, err
		}
		return sink, nil
	})

	_ = coretelemetry.RegisterPublisher("influx", func(conf map[string]any) (coretelemetry.StatePublisher, error) {
		var c InfluxConfig
		if err := factory.Decode(conf, &c); err != nil {
			return nil, err
		}
		return NewInfluxSinkWithFallback(c), nil
	})
}
