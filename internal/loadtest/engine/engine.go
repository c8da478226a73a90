// Package engine provides the run orchestrator.
package engine

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/wesleyorama2/loadrig/internal/loadtest"
	"github.com/wesleyorama2/loadrig/internal/loadtest/executor"
	"github.com/wesleyorama2/loadrig/internal/loadtest/metrics"
	"github.com/wesleyorama2/loadrig/internal/loadtest/threshold"
)

// DefaultCaptureInterval is how often a time series point is captured.
const DefaultCaptureInterval = time.Second

// Engine is the orchestrator of a single run.
//
// It coordinates:
//   - The ramping executor and the VU scheduler it drives
//   - Metrics collection into a registry owned by this engine
//   - Periodic and final threshold evaluation
//   - The graceful drain and the report
//
// Example usage:
//
//	eng, err := engine.New(scenario, engine.WithLogger(logger))
//	if err != nil {
//	    return err // *loadtest.ConfigurationError
//	}
//	report, _ := eng.Run(ctx)
//	os.Exit(report.ExitCode)
type Engine struct {
	scenario   *loadtest.Scenario
	options    loadtest.Options
	thresholds []threshold.Threshold
	registry   *metrics.Registry

	logger          *zap.Logger
	client          *http.Client
	captureInterval time.Duration
	progress        func(Progress)
	now             func() time.Time

	runID string
	state atomic.Int32

	mu       sync.Mutex
	started  bool
	executor *executor.RampingVUs
}

// Progress is passed to the progress callback on every capture.
type Progress struct {
	RunID string
	State RunState
	Point metrics.Point
	Stats *executor.Stats
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(e *Engine) {
		if l != nil {
			e.logger = l
		}
	}
}

// WithHTTPClient sets the HTTP client used by the request driver.
func WithHTTPClient(c *http.Client) Option {
	return func(e *Engine) {
		e.client = c
	}
}

// WithCaptureInterval sets the time series capture interval (default 1s).
func WithCaptureInterval(d time.Duration) Option {
	return func(e *Engine) {
		if d > 0 {
			e.captureInterval = d
		}
	}
}

// WithProgress registers a callback invoked after every time series capture.
func WithProgress(fn func(Progress)) Option {
	return func(e *Engine) {
		e.progress = fn
	}
}

// New validates the scenario and its thresholds. Any problem is returned
// as a *loadtest.ConfigurationError and nothing is executed.
func New(scenario *loadtest.Scenario, opts ...Option) (*Engine, error) {
	if scenario == nil {
		return nil, &loadtest.ConfigurationError{Err: errors.New("scenario is required")}
	}
	if err := scenario.Validate(); err != nil {
		return nil, err
	}

	registry := metrics.NewRegistry()
	thresholds, err := threshold.Build(registry, scenario.Thresholds)
	if err != nil {
		return nil, err
	}

	e := &Engine{
		scenario:        scenario,
		options:         scenario.Options.WithDefaults(),
		thresholds:      thresholds,
		registry:        registry,
		logger:          zap.NewNop(),
		captureInterval: DefaultCaptureInterval,
		now:             time.Now,
		runID:           uuid.NewString(),
	}
	for _, opt := range opts {
		opt(e)
	}
	e.logger = e.logger.With(zap.String("run_id", e.runID))
	return e, nil
}

// RunID returns the identifier of this run.
func (e *Engine) RunID() string {
	return e.runID
}

// State returns the current run state.
func (e *Engine) State() RunState {
	return RunState(e.state.Load())
}

// Metrics returns the registry the run records into.
func (e *Engine) Metrics() *metrics.Registry {
	return e.registry
}

// Thresholds returns the parsed thresholds.
func (e *Engine) Thresholds() []threshold.Threshold {
	return e.thresholds
}

// Stats returns executor statistics, or nil before Run.
func (e *Engine) Stats() *executor.Stats {
	e.mu.Lock()
	exec := e.executor
	e.mu.Unlock()
	if exec == nil {
		return nil
	}
	return exec.GetStats()
}

// Run executes the scenario and returns its report. An Engine runs once.
//
// The run drains when the profile is exhausted, when a threshold with
// abortOnFail fails, or when ctx is cancelled. Draining retires every VU and
// waits up to GracefulStop for in-flight iterations before interrupting
// them. A report is returned in all three cases; the error is only non-nil
// when the engine had already been run.
func (e *Engine) Run(ctx context.Context) (*Report, error) {
	e.mu.Lock()
	if e.started {
		e.mu.Unlock()
		return nil, fmt.Errorf("engine has already run")
	}
	e.started = true
	e.mu.Unlock()

	opts := e.options
	start := e.now()
	e.registry.Start(start)

	e.logger.Info("starting run",
		zap.String("scenario", e.scenario.Name),
		zap.Int("stages", len(e.scenario.Stages)),
		zap.Duration("duration", e.scenario.Stages.TotalDuration()),
		zap.Int("maxVUs", e.scenario.Stages.MaxTarget()),
		zap.Int("thresholds", len(e.thresholds)))

	driver := loadtest.NewDriver(e.registry, loadtest.DriverConfig{
		Client:  e.client,
		Timeout: opts.Timeout,
		MaxRPS:  opts.MaxRPS,
		Logger:  e.logger,

		MaxIdleConnsPerHost: opts.MaxIdleConnsPerHost,
	})
	scheduler := loadtest.NewVUScheduler(ctx, loadtest.SchedulerConfig{
		Body:    e.scenario.Body,
		Driver:  driver,
		Metrics: e.registry,
		Options: opts,
		Logger:  e.logger,
	})

	exec := executor.NewRampingVUs(e.scenario.Stages,
		executor.WithTick(opts.Tick),
		executor.WithLogger(e.logger),
		executor.WithStageListener(e.onStage),
	)
	e.mu.Lock()
	e.executor = exec
	e.mu.Unlock()

	// runCtx ends the ramp. Its cause tells a threshold abort apart from
	// an external cancellation.
	runCtx, cancelRun := context.WithCancelCause(ctx)
	defer cancelRun(nil)

	bgCtx, stopBackground := context.WithCancel(context.Background())
	var bg sync.WaitGroup

	evaluator := threshold.NewEvaluator(e.registry, e.thresholds, e.logger)
	bg.Add(1)
	go func() {
		defer bg.Done()
		evaluator.Run(bgCtx, opts.ThresholdInterval, func(err error) {
			cancelRun(err)
		})
	}()

	series := metrics.NewTimeSeries(0)
	bg.Add(1)
	go func() {
		defer bg.Done()
		e.captureLoop(bgCtx, series, exec)
	}()

	runErr := exec.Run(runCtx, scheduler)

	e.setState(StateDraining)
	cause := context.Cause(runCtx)
	thresholdAbort := runErr != nil && threshold.IsAbort(cause)
	externalAbort := runErr != nil && !thresholdAbort && ctx.Err() != nil

	switch {
	case thresholdAbort:
		e.logger.Warn("run aborted by threshold", zap.Error(cause))
	case externalAbort:
		e.logger.Warn("run cancelled", zap.Error(ctx.Err()))
	default:
		e.logger.Info("profile completed, draining",
			zap.Int("activeVUs", scheduler.Active()),
			zap.Duration("gracefulStop", opts.GracefulStop))
	}

	graceful := scheduler.Shutdown(opts.GracefulStop)

	stopBackground()
	bg.Wait()
	e.capture(series, exec)

	e.registry.Freeze()
	end := e.now()

	results := evaluator.Final()
	for _, r := range results {
		if r.Pass {
			e.logger.Debug("threshold passed", zap.String("threshold", r.Threshold.String()), zap.Float64("actual", r.Actual))
		} else {
			e.logger.Info("threshold failed", zap.String("threshold", r.Threshold.String()), zap.Float64("actual", r.Actual))
		}
	}

	snapshots := e.registry.Snapshots()
	report := &Report{
		RunID:       e.runID,
		Scenario:    e.scenario.Name,
		Start:       start,
		End:         end,
		Duration:    end.Sub(start),
		State:       StateFinished,
		Metrics:     snapshots,
		Checks:      checkSummaries(snapshots[metrics.Checks]),
		Thresholds:  results,
		TimeSeries:  series.Points(),
		HardStopped: !graceful,
		Aborted:     thresholdAbort || externalAbort,
		ExitCode:    exitCode(externalAbort, thresholdAbort, results),
	}
	switch {
	case thresholdAbort:
		report.AbortReason = cause.Error()
	case externalAbort:
		report.AbortReason = "run cancelled: " + ctx.Err().Error()
	}
	report.Passed = report.ExitCode == ExitOK

	e.setState(StateFinished)
	e.logger.Info("run finished",
		zap.Bool("passed", report.Passed),
		zap.Int("exitCode", report.ExitCode),
		zap.Duration("duration", report.Duration),
		zap.Int("peakVUs", scheduler.Peak()))

	return report, nil
}

func (e *Engine) onStage(index int, _ loadtest.Stage, ramping bool) {
	switch {
	case index < 0:
		// Profile exhausted; Run moves to draining.
	case ramping:
		e.setState(StateRamping)
	default:
		e.setState(StateSteady)
	}
}

func (e *Engine) setState(s RunState) {
	prev := RunState(e.state.Swap(int32(s)))
	if prev != s {
		e.logger.Debug("run state changed", zap.Stringer("from", prev), zap.Stringer("to", s))
	}
}

func (e *Engine) captureLoop(ctx context.Context, series *metrics.TimeSeries, exec *executor.RampingVUs) {
	ticker := time.NewTicker(e.captureInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			e.capture(series, exec)
		}
	}
}

func (e *Engine) capture(series *metrics.TimeSeries, exec *executor.RampingVUs) {
	state := e.State()
	point := series.Capture(e.registry, state.String(), e.now())
	if e.progress != nil {
		e.progress(Progress{
			RunID: e.runID,
			State: state,
			Point: point,
			Stats: exec.GetStats(),
		})
	}
}
