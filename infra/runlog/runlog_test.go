package runlog

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kilianp07/tunnelctl/core/factory"
	"github.com/kilianp07/tunnelctl/core/model"
	"github.com/kilianp07/tunnelctl/core/report"
	"github.com/kilianp07/tunnelctl/core/telemetry"
)

var t0 = time.Date(2024, 11, 15, 6, 0, 0, 0, time.UTC)

func fill(t *testing.T, sink *Sink) {
	t.Helper()
	var flows model.Flows
	flows[model.Pump11] = 1500
	for i := 0; i < 3; i++ {
		ts := t0.Add(time.Duration(i) * 15 * time.Minute)
		require.NoError(t, sink.RecordDecision(telemetry.Decision{
			RunID: "run-1", Strategy: model.StrategyMultiAgent,
			Event: model.Event{Timestamp: ts, Source: "Planner", Message: "Optimized outflow 1500.0 m³/h with horizon 8 (optimal)"},
		}))
		require.NoError(t, sink.PublishState(telemetry.Snapshot{
			RunID: "run-1", Strategy: model.StrategyMultiAgent, Timestamp: ts,
			Level: 3 + float64(i)/10, Volume: 12000, Inflow: 500, Outflow: 1500, Price: 0.1, EnergyKWh: 20, Flows: flows,
		}))
	}
	require.NoError(t, sink.PublishState(telemetry.Snapshot{RunID: "run-2", Strategy: model.StrategyBaseline, Timestamp: t0, Level: 4}))
	require.NoError(t, sink.RecordRunSummary(telemetry.RunSummary{
		RunID: "run-1", Time: t0.Add(time.Hour),
		Summary: report.Summary{Strategy: model.StrategyMultiAgent, Steps: 3, EnergyKWh: 60},
	}))
}

func checkStore(t *testing.T, store Store) {
	t.Helper()
	ctx := context.Background()

	all, err := store.Query(ctx, Query{})
	require.NoError(t, err)
	assert.Len(t, all, 8)

	steps, err := store.Query(ctx, Query{RunID: "run-1", Kind: KindStep})
	require.NoError(t, err)
	require.Len(t, steps, 3)
	for i, e := range steps {
		require.NotNil(t, e.Record)
		assert.InDelta(t, 3+float64(i)/10, e.Record.Level, 1e-12)
		assert.Equal(t, 1500.0, e.Record.Flows[model.Pump11])
		assert.Equal(t, model.StrategyMultiAgent, e.Record.Strategy)
		assert.True(t, t0.Add(time.Duration(i)*15*time.Minute).Equal(e.Timestamp))
	}

	decisions, err := store.Query(ctx, Query{Kind: KindDecision, Start: t0.Add(15 * time.Minute)})
	require.NoError(t, err)
	require.Len(t, decisions, 2)
	assert.Equal(t, "Planner", decisions[0].Event.Source)

	summaries, err := store.Query(ctx, Query{Kind: KindSummary})
	require.NoError(t, err)
	require.Len(t, summaries, 1)
	assert.Equal(t, 3, summaries[0].Summary.Steps)
	assert.Equal(t, model.StrategyMultiAgent, summaries[0].Strategy)

	base, err := store.Query(ctx, Query{Strategy: model.StrategyBaseline, End: t0})
	require.NoError(t, err)
	require.Len(t, base, 1)
	assert.Equal(t, "run-2", base[0].RunID)
}

func TestSQLiteStore(t *testing.T) {
	store, err := NewSQLiteStore(filepath.Join(t.TempDir(), "runs.db"))
	require.NoError(t, err)
	sink := NewSink(store)
	fill(t, sink)
	checkStore(t, store)
	require.NoError(t, sink.Close())
}

func TestJSONLStore(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "runs.jsonl")
	store, err := NewJSONLStore(JSONLConfig{Path: path, MaxSizeMB: 1})
	require.NoError(t, err)
	sink := NewSink(store)
	fill(t, sink)
	checkStore(t, store)
	require.NoError(t, sink.Close())

	// Undecodable lines are skipped.
	f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0o644)
	require.NoError(t, err)
	_, err = f.WriteString("not json\n")
	require.NoError(t, err)
	require.NoError(t, f.Close())
	reopened, err := NewJSONLStore(JSONLConfig{Path: path})
	require.NoError(t, err)
	all, err := reopened.Query(context.Background(), Query{})
	require.NoError(t, err)
	assert.Len(t, all, 8)
	require.NoError(t, reopened.Close())
}

func TestQueryMatch(t *testing.T) {
	e := Entry{Kind: KindStep, RunID: "a", Strategy: model.StrategyBaseline, Timestamp: t0}
	assert.True(t, Query{}.Match(e))
	assert.True(t, Query{RunID: "a", Kind: KindStep, Start: t0, End: t0}.Match(e))
	assert.False(t, Query{RunID: "b"}.Match(e))
	assert.False(t, Query{Strategy: model.StrategyMultiAgent}.Match(e))
	assert.False(t, Query{Kind: KindSummary}.Match(e))
	assert.False(t, Query{Start: t0.Add(time.Second)}.Match(e))
	assert.False(t, Query{End: t0.Add(-time.Second)}.Match(e))
}

func TestFactories(t *testing.T) {
	dir := t.TempDir()
	pub, err := telemetry.NewPublisher([]factory.ModuleConfig{
		{Type: "sqlite", Conf: map[string]any{"path": filepath.Join(dir, "runs.db")}},
		{Type: "jsonl", Conf: map[string]any{"path": filepath.Join(dir, "runs.jsonl"), "max_backups": "2"}},
	})
	require.NoError(t, err)
	multi, ok := pub.(*telemetry.MultiPublisher)
	require.True(t, ok)
	require.NoError(t, multi.PublishState(telemetry.Snapshot{RunID: "x", Timestamp: t0}))
	require.NoError(t, multi.Close())

	_, err = telemetry.NewPublisher([]factory.ModuleConfig{{Type: "sqlite"}})
	assert.ErrorContains(t, err, "path is required")
	_, err = telemetry.NewPublisher([]factory.ModuleConfig{{Type: "jsonl"}})
	assert.ErrorContains(t, err, "path is required")
}
