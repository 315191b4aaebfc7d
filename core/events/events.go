package events

import (
	"github.com/kilianp07/tunnelctl/core/model"
	"github.com/kilianp07/tunnelctl/core/report"
)

// RunEvent is published when a run starts and when it finishes. Summary is
// only set on the final event; Err is set when the run stopped early.
type RunEvent struct {
	RunID    string
	Strategy model.Strategy
	Finished bool
	Steps    int
	Summary  report.Summary
	Err      error
}

// StepEvent carries the record of one executed step.
type StepEvent struct {
	RunID  string
	Record model.Record
	AtEnd  bool
}

// DecisionEvent mirrors one entry of the run event log.
type DecisionEvent struct {
	RunID    string
	Strategy model.Strategy
	Event    model.Event
}
