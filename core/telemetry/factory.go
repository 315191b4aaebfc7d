package telemetry

import "github.com/kilianp07/tunnelctl/core/factory"

var publisherRegistry = factory.NewRegistry[StatePublisher]()

// Config defines the telemetry sinks and the Prometheus listen address.
type Config struct {
	Sinks []factory.ModuleConfig `json:"sinks"`
	// ListenAddr serves /metrics when non-empty.
	ListenAddr string `json:"listen_addr"`
}

// RegisterPublisher adds a publisher factory identified by name.
func RegisterPublisher(name string, f factory.Factory[StatePublisher]) error {
	return publisherRegistry.Register(name, f)
}

// RegisteredPublishers lists the known sink types.
func RegisteredPublishers() []string { return publisherRegistry.Names() }

// NewPublisher creates a StatePublisher from the provided configuration.
func NewPublisher(cfgs []factory.ModuleConfig) (StatePublisher, error) {
	if len(cfgs) == 0 {
		return NopPublisher{}, nil
	}
	if len(cfgs) == 1 {
		return publisherRegistry.Create(cfgs[0])
	}
	pubs := make([]StatePublisher, len(cfgs))
	for i, c := range cfgs {
		p, err := publisherRegistry.Create(c)
		if err != nil {
			return nil, err
		}
		pubs[i] = p
	}
	return NewMultiPublisher(pubs...), nil
}
