package telemetry

import (
	"errors"

	"github.com/prometheus/client_golang/prometheus"

	coretelemetry "github.com/kilianp07/tunnelctl/core/telemetry"
)

// PromSink exposes the latest snapshot of every run strategy as gauges.
type PromSink struct {
	level     *prometheus.GaugeVec
	volume    *prometheus.GaugeVec
	inflow    *prometheus.GaugeVec
	outflow   *prometheus.GaugeVec
	price     *prometheus.GaugeVec
	energy    *prometheus.CounterVec
	pumpFlow  *prometheus.GaugeVec
	pumpHz    *prometheus.GaugeVec
	decisions *prometheus.CounterVec
	runCost   *prometheus.GaugeVec
}

// NewPromSink registers the tunnel metrics on the default Prometheus registerer.
func NewPromSink() (*PromSink, error) {
	return NewPromSinkWithRegistry(prometheus.DefaultRegisterer)
}

// NewPromSinkWithRegistry registers metrics on the provided registerer.
// A nil registerer defaults to the global Prometheus registerer.
func NewPromSinkWithRegistry(reg prometheus.Registerer) (*PromSink, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	gauge := func(name, help string, labels ...string) (*prometheus.GaugeVec, error) {
		return register(reg, prometheus.NewGaugeVec(prometheus.GaugeOpts{Name: name, Help: help}, labels))
	}
	s := &PromSink{}
	var err error
	if s.level, err = gauge("tunnel_level_meters", "Tunnel water level", "strategy"); err != nil {
		return nil, err
	}
	if s.volume, err = gauge("tunnel_volume_cubic_meters", "Stored tunnel volume", "strategy"); err != nil {
		return nil, err
	}
	if s.inflow, err = gauge("tunnel_inflow_m3_per_hour", "Tunnel inflow", "strategy"); err != nil {
		return nil, err
	}
	if s.outflow, err = gauge("tunnel_outflow_m3_per_hour", "Total pumped outflow", "strategy"); err != nil {
		return nil, err
	}
	if s.price, err = gauge("tunnel_price_eur_per_kwh", "Electricity price", "strategy"); err != nil {
		return nil, err
	}
	if s.pumpFlow, err = gauge("tunnel_pump_flow_m3_per_hour", "Flow per pump", "strategy", "pump"); err != nil {
		return nil, err
	}
	if s.pumpHz, err = gauge("tunnel_pump_frequency_hertz", "Estimated drive frequency per pump", "strategy", "pump"); err != nil {
		return nil, err
	}
	if s.runCost, err = gauge("tunnel_run_energy_cost_eur", "Energy cost of the last finished run", "strategy"); err != nil {
		return nil, err
	}
	if s.energy, err = register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "tunnel_energy_kwh_total",
		Help: "Pumping energy drawn",
	}, []string{"strategy"})); err != nil {
		return nil, err
	}
	if s.decisions, err = register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "tunnel_decisions_total",
		Help: "Decision log entries per source",
	}, []string{"strategy", "source"})); err != nil {
		return nil, err
	}
	return s, nil
}

// register returns the collector already registered under the same
// descriptor when there is one.
func register[C prometheus.Collector](reg prometheus.Registerer, c C) (C, error) {
	if err := reg.Register(c); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			if existing, ok := are.ExistingCollector.(C); ok {
				return existing, nil
			}
		}
		return c, err
	}
	return c, nil
}

// PublishState sets the gauges to the snapshot values.
func (s *PromSink) PublishState(snap coretelemetry.Snapshot) error {
	st := string(snap.Strategy)
	s.level.WithLabelValues(st).Set(snap.Level)
	s.volume.WithLabelValues(st).Set(snap.Volume)
	s.inflow.WithLabelValues(st).Set(snap.Inflow)
	s.outflow.WithLabelValues(st).Set(snap.Outflow)
	s.price.WithLabelValues(st).Set(snap.Price)
	if snap.EnergyKWh > 0 {
		s.energy.WithLabelValues(st).Add(snap.EnergyKWh)
	}
	for id, q := range snap.Flows {
		s.pumpFlow.WithLabelValues(st, pumpLabel(id)).Set(q)
	}
	for id, hz := range snap.Frequencies {
		s.pumpHz.WithLabelValues(st, pumpLabel(id)).Set(hz)
	}
	return nil
}

// RecordDecision counts decision log entries.
func (s *PromSink) RecordDecision(d coretelemetry.Decision) error {
	s.decisions.WithLabelValues(string(d.Strategy), d.Event.Source).Inc()
	return nil
}

// RecordRunSummary exposes the cost of the finished run.
func (s *PromSink) RecordRunSummary(r coretelemetry.RunSummary) error {
	s.runCost.WithLabelValues(string(r.Summary.Strategy)).Set(r.Summary.EnergyCostEUR)
	return nil
}
