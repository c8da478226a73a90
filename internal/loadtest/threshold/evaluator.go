package threshold

import (
	"context"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/wesleyorama2/loadrig/internal/loadtest/metrics"
)

// DefaultInterval is how often thresholds are evaluated during a run.
const DefaultInterval = 2 * time.Second

// Evaluator checks a set of thresholds against a metrics registry, both
// periodically while the run is in progress and once at the end.
type Evaluator struct {
	registry   *metrics.Registry
	thresholds []Threshold
	logger     *zap.Logger
	now        func() time.Time

	mu      sync.Mutex
	started time.Time
	crossed map[string]bool
	aborted bool
}

// NewEvaluator creates an evaluator. thresholds are expected to come from
// Build so that every metric exists in registry.
func NewEvaluator(registry *metrics.Registry, thresholds []Threshold, logger *zap.Logger) *Evaluator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Evaluator{
		registry:   registry,
		thresholds: thresholds,
		logger:     logger,
		now:        time.Now,
		crossed:    make(map[string]bool),
	}
}

// Thresholds returns the thresholds being evaluated.
func (e *Evaluator) Thresholds() []Threshold {
	return e.thresholds
}

// Run evaluates thresholds every interval until ctx is done. When a
// threshold with AbortOnFail fails after its DelayAbortEval has elapsed,
// abort is called once with an *AbortError and Run returns.
//
// Metrics with no samples yet are skipped so that an early tick does not
// abort a run that simply has not produced data.
func (e *Evaluator) Run(ctx context.Context, interval time.Duration, abort func(error)) {
	if len(e.thresholds) == 0 {
		return
	}
	if interval <= 0 {
		interval = DefaultInterval
	}

	e.mu.Lock()
	e.started = e.now()
	e.mu.Unlock()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := e.check(); err != nil {
				e.logger.Warn("aborting run", zap.Error(err))
				if abort != nil {
					abort(err)
				}
				return
			}
		}
	}
}

// check runs one periodic evaluation and returns an *AbortError when the
// run should stop.
func (e *Evaluator) check() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.aborted {
		return nil
	}

	elapsed := e.now().Sub(e.started)
	var abortOn []string

	for _, t := range e.thresholds {
		agg, ok := e.registry.Snapshot(t.Metric)
		if !ok || agg.Count == 0 {
			continue
		}

		res := Evaluate(t, agg)
		key := t.String()
		if res.Pass {
			delete(e.crossed, key)
			continue
		}
		if !e.crossed[key] {
			e.crossed[key] = true
			e.logger.Debug("threshold crossed",
				zap.String("metric", t.Metric),
				zap.String("threshold", t.Source),
				zap.Float64("actual", res.Actual))
		}
		if t.AbortOnFail && elapsed >= t.DelayAbortEval {
			abortOn = append(abortOn, key)
		}
	}

	if len(abortOn) == 0 {
		return nil
	}
	sort.Strings(abortOn)
	e.aborted = true
	return &AbortError{Thresholds: abortOn}
}

// Crossed returns the thresholds that failed at the latest periodic
// evaluation.
func (e *Evaluator) Crossed() []string {
	e.mu.Lock()
	defer e.mu.Unlock()

	out := make([]string, 0, len(e.crossed))
	for k := range e.crossed {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// Final evaluates every threshold once against the registry. It is meant
// to be called after the registry is frozen. Metrics that never received a
// sample evaluate as zero.
func (e *Evaluator) Final() []Result {
	results := make([]Result, 0, len(e.thresholds))
	for _, t := range e.thresholds {
		agg, ok := e.registry.Snapshot(t.Metric)
		if !ok {
			agg = metrics.Aggregate{Name: t.Metric}
		}
		results = append(results, Evaluate(t, agg))
	}
	return results
}
