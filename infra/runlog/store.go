// Package runlog persists run tables, decision logs and run summaries so
// that runs can be audited after the process exits.
package runlog

import (
	"context"
	"time"

	"github.com/kilianp07/tunnelctl/core/model"
	"github.com/kilianp07/tunnelctl/core/report"
)

// Kind tells which part of a run an entry holds.
type Kind string

const (
	KindStep     Kind = "step"
	KindDecision Kind = "decision"
	KindSummary  Kind = "summary"
)

// Entry is one persisted item. Exactly one of Record, Event and Summary is
// set, according to Kind.
type Entry struct {
	Kind      Kind            `json:"kind"`
	RunID     string          `json:"run_id"`
	Strategy  model.Strategy  `json:"strategy"`
	Timestamp time.Time       `json:"timestamp"`
	Record    *model.Record   `json:"record,omitempty"`
	Event     *model.Event    `json:"event,omitempty"`
	Summary   *report.Summary `json:"summary,omitempty"`
}

// Query filters entries. Zero fields match everything.
type Query struct {
	RunID    string
	Strategy model.Strategy
	Kind     Kind
	Start    time.Time
	End      time.Time
}

// Match reports whether e passes the filters.
func (q Query) Match(e Entry) bool {
	if q.RunID != "" && e.RunID != q.RunID {
		return false
	}
	if q.Strategy != "" && e.Strategy != q.Strategy {
		return false
	}
	if q.Kind != "" && e.Kind != q.Kind {
		return false
	}
	if !q.Start.IsZero() && e.Timestamp.Before(q.Start) {
		return false
	}
	if !q.End.IsZero() && e.Timestamp.After(q.End) {
		return false
	}
	return true
}

// Store persists entries and supports querying.
type Store interface {
	Append(ctx context.Context, e Entry) error
	Query(ctx context.Context, q Query) ([]Entry, error)
	Close() error
}
