package telemetry

import (
	"context"
	"time"

	"github.com/kilianp07/tunnelctl/core/events"
	"github.com/kilianp07/tunnelctl/core/logger"
	coretelemetry "github.com/kilianp07/tunnelctl/core/telemetry"
	"github.com/kilianp07/tunnelctl/internal/eventbus"
)

// StartEventCollector subscribes to the event bus and forwards run events to
// pub. It stops when the context is canceled or the bus is closed. The
// returned channel is closed once the collector has stopped.
func StartEventCollector(ctx context.Context, bus eventbus.EventBus, pub coretelemetry.StatePublisher, log logger.Logger) <-chan struct{} {
	done := make(chan struct{})
	if bus == nil || pub == nil {
		close(done)
		return done
	}
	if log == nil {
		log = logger.NopLogger{}
	}
	sub := bus.Subscribe()
	go func() {
		defer close(done)
		defer bus.Unsubscribe(sub)
		for {
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-sub:
				if !ok {
					return
				}
				if err := forward(pub, ev); err != nil {
					log.Warnf("telemetry collector: %v", err)
				}
			}
		}
	}()
	return done
}

func forward(pub coretelemetry.StatePublisher, ev eventbus.Event) error {
	switch e := ev.(type) {
	case events.StepEvent:
		return pub.PublishState(coretelemetry.SnapshotFromRecord(e.Record))
	case events.DecisionEvent:
		if r, ok := pub.(coretelemetry.DecisionRecorder); ok {
			return r.RecordDecision(coretelemetry.Decision{RunID: e.RunID, Strategy: e.Strategy, Event: e.Event})
		}
	case events.RunEvent:
		if !e.Finished {
			return nil
		}
		if r, ok := pub.(coretelemetry.RunRecorder); ok {
			return r.RecordRunSummary(coretelemetry.RunSummary{RunID: e.RunID, Summary: e.Summary, Time: time.Now()})
		}
	}
	return nil
}
