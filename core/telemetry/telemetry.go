package telemetry

import (
	"errors"
	"io"
	"time"

	"github.com/kilianp07/tunnelctl/core/curve"
	"github.com/kilianp07/tunnelctl/core/model"
	"github.com/kilianp07/tunnelctl/core/report"
)

// Point names exposed by a Snapshot.
const (
	PointLevel   = "level"
	PointVolume  = "volume"
	PointInflow  = "inflow"
	PointOutflow = "outflow"
	PointPrice   = "price"
	PointEnergy  = "energy"
)

// PumpPoint returns the point name of the flow of pump p, e.g. "pump/2.3/flow".
func PumpPoint(p model.PumpID) string { return "pump/" + p.String() + "/flow" }

// FrequencyPoint returns the point name of the drive frequency of pump p.
func FrequencyPoint(p model.PumpID) string { return "pump/" + p.String() + "/frequency" }

// PumpFrequencies estimates the drive frequency in Hz of every running
// pump. Stopped pumps report 0.
func PumpFrequencies(flows model.Flows) model.Flows {
	var hz model.Flows
	for _, p := range model.AllPumps {
		if flows[p] > 0 {
			hz[p] = curve.Frequency(p, flows[p])
		}
	}
	return hz
}

// Point is one named value of a snapshot.
type Point struct {
	Name  string
	Value float64
}

// Snapshot is the plant state after one executed step.
type Snapshot struct {
	RunID     string
	Strategy  model.Strategy
	Timestamp time.Time
	Level     float64
	Volume    float64
	Inflow    float64
	Outflow   float64
	Price     float64
	EnergyKWh float64
	Flows     model.Flows

	// Frequencies holds the drive frequency per pump in Hz.
	Frequencies model.Flows
}

// SnapshotFromRecord converts a run table row.
func SnapshotFromRecord(r model.Record) Snapshot {
	return Snapshot{
		RunID:     r.RunID,
		Strategy:  r.Strategy,
		Timestamp: r.Timestamp,
		Level:     r.Level,
		Volume:    r.Volume,
		Inflow:    r.Inflow,
		Outflow:   r.Outflow,
		Price:     r.Price,
		EnergyKWh: r.EnergyKWh,
		Flows:     r.Flows,

		Frequencies: PumpFrequencies(r.Flows),
	}
}

// Points lists the snapshot values in a stable order: plant values first,
// then pump flows in fleet order, then pump frequencies in fleet order.
func (s Snapshot) Points() []Point {
	pts := make([]Point, 0, 6+2*model.NumPumps)
	pts = append(pts,
		Point{PointLevel, s.Level},
		Point{PointVolume, s.Volume},
		Point{PointInflow, s.Inflow},
		Point{PointOutflow, s.Outflow},
		Point{PointPrice, s.Price},
		Point{PointEnergy, s.EnergyKWh},
	)
	for _, p := range model.AllPumps {
		pts = append(pts, Point{PumpPoint(p), s.Flows[p]})
	}
	for _, p := range model.AllPumps {
		pts = append(pts, Point{FrequencyPoint(p), s.Frequencies[p]})
	}
	return pts
}

// StatePublisher pushes snapshots to an external system.
type StatePublisher interface {
	PublishState(Snapshot) error
}

// Decision is one entry of a run event log.
type Decision struct {
	RunID    string
	Strategy model.Strategy
	Event    model.Event
}

// DecisionRecorder is implemented by sinks that store the event log.
type DecisionRecorder interface {
	RecordDecision(Decision) error
}

// RunSummary is emitted once a run has finished.
type RunSummary struct {
	RunID   string
	Summary report.Summary
	Time    time.Time
}

// RunRecorder is implemented by sinks that store run summaries.
type RunRecorder interface {
	RecordRunSummary(RunSummary) error
}

// NopPublisher drops everything.
type NopPublisher struct{}

func (NopPublisher) PublishState(Snapshot) error       { return nil }
func (NopPublisher) RecordDecision(Decision) error     { return nil }
func (NopPublisher) RecordRunSummary(RunSummary) error { return nil }

// MultiPublisher fans snapshots out to several publishers. Optional
// capabilities are forwarded to the publishers that implement them.
type MultiPublisher struct {
	Publishers []StatePublisher
}

// NewMultiPublisher creates a MultiPublisher.
func NewMultiPublisher(pubs ...StatePublisher) *MultiPublisher {
	return &MultiPublisher{Publishers: pubs}
}

// PublishState forwards s to every publisher. A failing publisher does not
// prevent delivery to the others; all errors are joined.
func (m *MultiPublisher) PublishState(s Snapshot) error {
	var errs []error
	for _, p := range m.Publishers {
		if err := p.PublishState(s); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// RecordDecision forwards d to the publishers implementing DecisionRecorder.
func (m *MultiPublisher) RecordDecision(d Decision) error {
	var errs []error
	for _, p := range m.Publishers {
		if rec, ok := p.(DecisionRecorder); ok {
			if err := rec.RecordDecision(d); err != nil {
				errs = append(errs, err)
			}
		}
	}
	return errors.Join(errs...)
}

// RecordRunSummary forwards r to the publishers implementing RunRecorder.
func (m *MultiPublisher) RecordRunSummary(r RunSummary) error {
	var errs []error
	for _, p := range m.Publishers {
		if rec, ok := p.(RunRecorder); ok {
			if err := rec.RecordRunSummary(r); err != nil {
				errs = append(errs, err)
			}
		}
	}
	return errors.Join(errs...)
}

// Close closes the publishers implementing io.Closer.
func (m *MultiPublisher) Close() error {
	var errs []error
	for _, p := range m.Publishers {
		if c, ok := p.(io.Closer); ok {
			if err := c.Close(); err != nil {
				errs = append(errs, err)
			}
		}
	}
	return errors.Join(errs...)
}
