package telemetry

import (
	"context"
	"net/http"
	"strings"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api"
	"github.com/influxdata/influxdb-client-go/v2/api/write"

	coretelemetry "github.com/kilianp07/tunnelctl/core/telemetry"
	"github.com/kilianp07/tunnelctl/infra/logger"
)

// Measurement names written by InfluxSink.
const (
	MeasurementState    = "tunnel_state"
	MeasurementDecision = "tunnel_decision"
	MeasurementRun      = "tunnel_run"
)

// InfluxConfig holds the InfluxDB connection settings.
type InfluxConfig struct {
	URL     string        `json:"url"`
	Token   string        `json:"token"`
	Org     string        `json:"org"`
	Bucket  string        `json:"bucket"`
	Timeout time.Duration `json:"timeout"`
}

// InfluxSink writes snapshots to an InfluxDB instance using the official client.
type InfluxSink struct {
	client   influxdb2.Client
	writeAPI api.WriteAPIBlocking
	timeout  time.Duration
	log      logger.Logger
}

// NewInfluxSink creates a new sink configured for the given InfluxDB endpoint.
func NewInfluxSink(cfg InfluxConfig) *InfluxSink {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 5 * time.Second
	}
	base := strings.TrimSuffix(cfg.URL, "/api/v2/write")
	client := influxdb2.NewClientWithOptions(base, cfg.Token,
		influxdb2.DefaultOptions().SetHTTPClient(&http.Client{Timeout: cfg.Timeout}))
	return &InfluxSink{
		client:   client,
		writeAPI: client.WriteAPIBlocking(cfg.Org, cfg.Bucket),
		timeout:  cfg.Timeout,
		log:      logger.New("influx-sink"),
	}
}

// NewInfluxSinkWithFallback tries to ping the InfluxDB instance and
// returns a NopPublisher if the health check fails.
func NewInfluxSinkWithFallback(cfg InfluxConfig) coretelemetry.StatePublisher {
	sink := NewInfluxSink(cfg)
	ctx, cancel := context.WithTimeout(context.Background(), sink.timeout)
	defer cancel()
	health, err := sink.client.Health(ctx)
	if err != nil || health.Status != "pass" {
		if err != nil {
			sink.log.Errorf("influx health check error: %v", err)
		} else {
			sink.log.Errorf("influx health status: %s", health.Status)
		}
		sink.client.Close()
		return coretelemetry.NopPublisher{}
	}
	return sink
}

// StatePoint converts a snapshot to one point whose fields are named after
// the snapshot points.
func StatePoint(s coretelemetry.Snapshot) *write.Point {
	p := write.NewPointWithMeasurement(MeasurementState).
		AddTag("run_id", s.RunID).
		AddTag("strategy", string(s.Strategy))
	for _, pt := range s.Points() {
		p = p.AddField(pt.Name, round3(pt.Value))
	}
	return p.SetTime(s.Timestamp)
}

// PublishState writes the snapshot.
func (s *InfluxSink) PublishState(snap coretelemetry.Snapshot) error {
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()
	return s.writeAPI.WritePoint(ctx, StatePoint(snap))
}

// RecordDecision writes one decision log entry.
func (s *InfluxSink) RecordDecision(d coretelemetry.Decision) error {
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()
	p := write.NewPointWithMeasurement(MeasurementDecision).
		AddTag("run_id", d.RunID).
		AddTag("strategy", string(d.Strategy)).
		AddTag("source", d.Event.Source).
		AddField("message", d.Event.Message).
		SetTime(d.Event.Timestamp)
	return s.writeAPI.WritePoint(ctx, p)
}

// RecordRunSummary writes the indicators of a finished run.
func (s *InfluxSink) RecordRunSummary(r coretelemetry.RunSummary) error {
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()
	sum := r.Summary
	p := write.NewPointWithMeasurement(MeasurementRun).
		AddTag("run_id", r.RunID).
		AddTag("strategy", string(sum.Strategy)).
		AddField("steps", sum.Steps).
		AddField("energy_kwh", round3(sum.EnergyKWh)).
		AddField("energy_cost_eur", round3(sum.EnergyCostEUR)).
		AddField("avg_level_m", round3(sum.AvgLevel)).
		AddField("min_level_m", round3(sum.MinLevel)).
		AddField("max_level_m", round3(sum.MaxLevel)).
		AddField("violations", sum.ConstraintViolations).
		SetTime(r.Time)
	return s.writeAPI.WritePoint(ctx, p)
}

// Close releases the client.
func (s *InfluxSink) Close() error {
	s.client.Close()
	return nil
}
