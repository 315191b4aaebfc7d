package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/kilianp07/tunnelctl/app/plugins"
	"github.com/kilianp07/tunnelctl/config"
	"github.com/kilianp07/tunnelctl/core/coordinator"
	"github.com/kilianp07/tunnelctl/core/forecast"
	coremon "github.com/kilianp07/tunnelctl/core/monitoring"
	corehistory "github.com/kilianp07/tunnelctl/core/history"
	"github.com/kilianp07/tunnelctl/core/physics"
	"github.com/kilianp07/tunnelctl/core/solver"
	coretelemetry "github.com/kilianp07/tunnelctl/core/telemetry"
	"github.com/kilianp07/tunnelctl/infra/history"
	"github.com/kilianp07/tunnelctl/infra/logger"
	"github.com/kilianp07/tunnelctl/infra/monitoring"
	"github.com/kilianp07/tunnelctl/infra/telemetry"
	"github.com/kilianp07/tunnelctl/internal/eventbus"
)

// busBuffer absorbs sink latency; beyond it the control loop waits for the
// collector so that no record is lost.
const busBuffer = 1024

// Service wires the history, the coordinator and the telemetry sinks.
type Service struct {
	cfg   *config.Config
	data  *corehistory.Dataset
	coord *coordinator.Coordinator
	pub   coretelemetry.StatePublisher
	bus   *eventbus.Bus
	log   logger.Logger

	cancel    context.CancelFunc
	collector <-chan struct{}
	server    chan error
}

// Options tune a Service for tests.
type Options struct {
	// Data replaces the configured history source.
	Data *corehistory.Dataset
	// Solver replaces the default planner solver.
	Solver solver.Solver
}

// New creates a Service from the configuration.
func New(cfg *config.Config) (*Service, error) { return NewWithOptions(cfg, Options{}) }

// NewWithOptions creates a Service, optionally overriding collaborators.
func NewWithOptions(cfg *config.Config, opts Options) (*Service, error) {
	logg, err := cfg.Logging.Logger("service")
	if err != nil {
		return nil, fmt.Errorf("logger: %w", err)
	}
	mon, err := monitoring.NewSentryMonitor(cfg.Monitoring.Sentry)
	if err != nil {
		return nil, fmt.Errorf("monitoring: %w", err)
	}
	coremon.Init(mon)

	data := opts.Data
	if data == nil {
		data, err = history.Load(cfg.History)
		if err != nil {
			return nil, fmt.Errorf("load history: %w", err)
		}
	}
	logg.Infof("history loaded: %d records from %s to %s", data.Len(),
		data.Start().Format(time.RFC3339), data.End().Format(time.RFC3339))

	pub, err := coretelemetry.NewPublisher(cfg.Telemetry.Sinks)
	if err != nil {
		return nil, fmt.Errorf("telemetry (known sinks %v): %w", plugins.Sinks(), err)
	}
	bus := eventbus.New(eventbus.WithBuffer(busBuffer), eventbus.WithBackpressure())
	coord, err := coordinator.New(data, cfg.Settings(), coordinator.Deps{
		Logger: logg,
		Bus:    bus,
		Solver: opts.Solver,
	})
	if err != nil {
		bus.Close()
		return nil, errors.Join(err, closePublisher(pub))
	}
	return &Service{cfg: cfg, data: data, coord: coord, pub: pub, bus: bus, log: logg}, nil
}

// Start launches the telemetry collector and, when configured, the metrics
// server. Both keep running after ctx is cancelled so that the events of an
// interrupted run still reach the sinks; Close stops them.
func (s *Service) Start(ctx context.Context) {
	ctx, s.cancel = context.WithCancel(context.WithoutCancel(ctx))
	s.collector = telemetry.StartEventCollector(ctx, s.bus, s.pub, s.log)
	if addr := s.cfg.Telemetry.ListenAddr; addr != "" {
		s.server = make(chan error, 1)
		go func() {
			s.server <- telemetry.StartPromServer(ctx, addr, nil, s.log)
		}()
	}
}

// Coordinator exposes the underlying coordinator.
func (s *Service) Coordinator() *coordinator.Coordinator { return s.coord }

// Data returns the loaded history.
func (s *Service) Data() *corehistory.Dataset { return s.data }

// Steps resolves the number of steps of a run. A non-positive request runs
// until the last record.
func (s *Service) Steps(requested int, start time.Time) (int, error) {
	if requested > 0 {
		return requested, nil
	}
	idx := 0
	if !start.IsZero() {
		i, ok := s.data.IndexOf(start)
		if !ok {
			return 0, fmt.Errorf("%w: %s", physics.ErrStartNotFound, start.Format(time.RFC3339))
		}
		idx = i
	}
	return s.data.Len() - idx, nil
}

// Run executes one strategy.
func (s *Service) Run(ctx context.Context, strategy string, steps int, start time.Time) (coordinator.Run, error) {
	n, err := s.Steps(steps, start)
	if err != nil {
		return coordinator.Run{}, err
	}
	var run coordinator.Run
	switch strategy {
	case "multi_agent", "multi-agent":
		run, err = s.coord.RunMultiAgent(ctx, n, start)
	case "baseline":
		run, err = s.coord.RunBaseline(ctx, n, start)
	default:
		return coordinator.Run{}, fmt.Errorf("unknown strategy %q", strategy)
	}
	if err != nil && ctx.Err() == nil {
		coremon.CaptureException(err, coremon.RunTags(run.RunID, strategy))
	}
	return run, err
}

// Compare runs both strategies over the same window.
func (s *Service) Compare(ctx context.Context, steps int, start time.Time) (coordinator.Comparison, error) {
	n, err := s.Steps(steps, start)
	if err != nil {
		return coordinator.Comparison{}, err
	}
	cmp, err := s.coord.Compare(ctx, n, start)
	if err != nil && ctx.Err() == nil {
		coremon.CaptureException(err, coremon.RunTags("", "compare"))
	}
	return cmp, err
}

// Forecast predicts the horizon following ts. A zero ts selects the first
// record.
func (s *Service) Forecast(ts time.Time) (forecast.Forecast, error) {
	if ts.IsZero() {
		ts = s.data.Start()
	}
	return s.coord.Forecaster().Predict(ts)
}

// Close drains the telemetry pipeline and releases the sinks.
func (s *Service) Close() error {
	s.bus.Close()
	if s.collector != nil {
		<-s.collector
	}
	if s.cancel != nil {
		s.cancel()
	}
	var errs []error
	if n := s.bus.Dropped(); n > 0 {
		s.log.Warnf("telemetry: %d events were not delivered to the sinks", n)
		errs = append(errs, fmt.Errorf("telemetry: %d events dropped", n))
	}
	if s.server != nil {
		errs = append(errs, <-s.server)
	}
	errs = append(errs, closePublisher(s.pub))
	coremon.Flush(2 * time.Second)
	return errors.Join(errs...)
}

func closePublisher(pub coretelemetry.StatePublisher) error {
	if c, ok := pub.(io.Closer); ok {
		return c.Close()
	}
	return nil
}
