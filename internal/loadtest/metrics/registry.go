package metrics

import (
	"errors"
	"fmt"
	"regexp"
	"sync"
	"time"
)

// ErrFrozen is returned by Record once the registry has been frozen.
var ErrFrozen = errors.New("metrics registry is frozen")

// ErrUnknownMetric is returned when recording into an unregistered metric.
var ErrUnknownMetric = errors.New("unknown metric")

var metricNameRe = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_.:-]*$`)

// Registry is the metric sink of a run. It owns every series and is
// scoped to a single run; there is no process-wide registry.
type Registry struct {
	mu     sync.RWMutex
	series map[string]*series
	frozen bool

	start time.Time
	end   time.Time
	now   func() time.Time
}

// NewRegistry creates a registry with the built-in HTTP, iteration and VU metrics.
func NewRegistry() *Registry {
	r := &Registry{
		series: make(map[string]*series),
		now:    time.Now,
	}
	r.start = r.now()
	for _, b := range builtins {
		r.series[b.name] = newSeries(b.name, b.typ, b.contains)
	}
	return r
}

// Register adds a custom metric. Registering an existing name with the same
// type is a no-op; a different type is an error.
func (r *Registry) Register(name string, typ MetricType, contains ValueType) error {
	if !metricNameRe.MatchString(name) {
		return fmt.Errorf("invalid metric name %q", name)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if existing, ok := r.series[name]; ok {
		if existing.typ != typ || existing.contains != contains {
			return fmt.Errorf("metric %q already registered as %s/%s", name, existing.typ, existing.contains)
		}
		return nil
	}
	r.series[name] = newSeries(name, typ, contains)
	return nil
}

// Lookup returns the type and value type of a registered metric.
func (r *Registry) Lookup(name string) (MetricType, ValueType, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	s, ok := r.series[name]
	if !ok {
		return 0, 0, false
	}
	return s.typ, s.contains, true
}

// Start resets the clock used for per-second rates.
func (r *Registry) Start(t time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.start = t
}

// Record appends a sample to its metric. Safe for concurrent use.
func (r *Registry) Record(sample Sample) error {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.frozen {
		return ErrFrozen
	}
	s, ok := r.series[sample.Metric]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownMetric, sample.Metric)
	}
	s.add(sample)
	return nil
}

// Add records a value observed now.
func (r *Registry) Add(metric string, value float64, tags Tags) error {
	return r.Record(Sample{Metric: metric, Time: r.now(), Value: value, Tags: tags})
}

// Freeze stops accepting samples. Rates computed afterwards use the freeze
// time as the end of the run.
func (r *Registry) Freeze() {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.frozen {
		return
	}
	r.frozen = true
	r.end = r.now()
}

// Frozen reports whether Freeze has been called.
func (r *Registry) Frozen() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.frozen
}

// Elapsed returns the time since Start, or the run length once frozen.
func (r *Registry) Elapsed() time.Duration {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.elapsedLocked()
}

func (r *Registry) elapsedLocked() time.Duration {
	if r.frozen {
		return r.end.Sub(r.start)
	}
	return r.now().Sub(r.start)
}

// Snapshot returns the current aggregate of one metric.
func (r *Registry) Snapshot(name string) (Aggregate, bool) {
	r.mu.RLock()
	s, ok := r.series[name]
	elapsed := r.elapsedLocked()
	r.mu.RUnlock()

	if !ok {
		return Aggregate{}, false
	}
	return s.aggregate(elapsed.Seconds()), true
}

// Snapshots returns aggregates for every registered metric.
func (r *Registry) Snapshots() map[string]Aggregate {
	r.mu.RLock()
	all := make([]*series, 0, len(r.series))
	for _, s := range r.series {
		all = append(all, s)
	}
	elapsed := r.elapsedLocked()
	r.mu.RUnlock()

	result := make(map[string]Aggregate, len(all))
	for _, s := range all {
		result[s.name] = s.aggregate(elapsed.Seconds())
	}
	return result
}
