package runlog

import (
	"context"

	"github.com/kilianp07/tunnelctl/core/model"
	"github.com/kilianp07/tunnelctl/core/telemetry"
)

// Sink adapts a Store to the telemetry publisher interfaces.
type Sink struct {
	store Store
}

// NewSink returns a telemetry sink writing to store.
func NewSink(store Store) *Sink { return &Sink{store: store} }

// Store returns the underlying store.
func (s *Sink) Store() Store { return s.store }

// PublishState appends a step entry.
func (s *Sink) PublishState(snap telemetry.Snapshot) error {
	rec := model.Record{
		RunID:     snap.RunID,
		Timestamp: snap.Timestamp,
		Level:     snap.Level,
		Volume:    snap.Volume,
		Price:     snap.Price,
		Inflow:    snap.Inflow,
		Outflow:   snap.Outflow,
		EnergyKWh: snap.EnergyKWh,
		Flows:     snap.Flows,
		Strategy:  snap.Strategy,
	}
	return s.store.Append(context.Background(), Entry{
		Kind:      KindStep,
		RunID:     snap.RunID,
		Strategy:  snap.Strategy,
		Timestamp: snap.Timestamp,
		Record:    &rec,
	})
}

// RecordDecision appends a decision entry.
func (s *Sink) RecordDecision(d telemetry.Decision) error {
	ev := d.Event
	return s.store.Append(context.Background(), Entry{
		Kind:      KindDecision,
		RunID:     d.RunID,
		Strategy:  d.Strategy,
		Timestamp: ev.Timestamp,
		Event:     &ev,
	})
}

// RecordRunSummary appends the summary of a finished run.
func (s *Sink) RecordRunSummary(r telemetry.RunSummary) error {
	sum := r.Summary
	return s.store.Append(context.Background(), Entry{
		Kind:      KindSummary,
		RunID:     r.RunID,
		Strategy:  sum.Strategy,
		Timestamp: r.Time,
		Summary:   &sum,
	})
}

// Close closes the store.
func (s *Sink) Close() error { return s.store.Close() }
