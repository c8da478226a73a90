package metrics

import (
	"sync"
	"time"
)

// Point is one interval of the run's time series.
type Point struct {
	Timestamp time.Time     `json:"timestamp"`
	Elapsed   time.Duration `json:"elapsed"`
	Phase     string        `json:"phase"`

	// Cumulative totals since run start
	TotalRequests int64 `json:"totalRequests"`
	TotalFailures int64 `json:"totalFailures"`

	// Interval metrics since the previous point
	IntervalRequests  int64   `json:"intervalRequests"`
	IntervalRPS       float64 `json:"intervalRps"`
	IntervalErrorRate float64 `json:"intervalErrorRate"`

	// Latency percentiles over the whole run so far, in milliseconds
	LatencyP50 float64 `json:"latencyP50"`
	LatencyP95 float64 `json:"latencyP95"`
	LatencyP99 float64 `json:"latencyP99"`

	ActiveVUs int `json:"activeVUs"`
}

// TimeSeries keeps the most recent points in a ring buffer with bounded memory.
type TimeSeries struct {
	mu     sync.RWMutex
	points []Point
	head   int
	count  int

	lastTime     time.Time
	lastRequests int64
	lastFailures int64
}

// NewTimeSeries creates a time series retaining up to maxPoints points.
// For a 1-hour run captured every second, use maxPoints=3600.
func NewTimeSeries(maxPoints int) *TimeSeries {
	if maxPoints <= 0 {
		maxPoints = 3600
	}
	return &TimeSeries{points: make([]Point, maxPoints)}
}

// Capture appends a point derived from the registry's current state.
func (ts *TimeSeries) Capture(r *Registry, phase string, now time.Time) Point {
	reqs, _ := r.Snapshot(HTTPReqs)
	failed, _ := r.Snapshot(HTTPReqFailed)
	duration, _ := r.Snapshot(HTTPReqDuration)
	vus, _ := r.Snapshot(VUs)

	ts.mu.Lock()
	defer ts.mu.Unlock()

	total := int64(reqs.Sum)
	failures := failed.Passes

	p := Point{
		Timestamp:        now,
		Elapsed:          r.Elapsed(),
		Phase:            phase,
		TotalRequests:    total,
		TotalFailures:    failures,
		IntervalRequests: total - ts.lastRequests,
		LatencyP50:       duration.Med,
		LatencyP95:       duration.P95,
		LatencyP99:       duration.P99,
		ActiveVUs:        int(vus.Value),
	}

	if !ts.lastTime.IsZero() {
		if interval := now.Sub(ts.lastTime).Seconds(); interval > 0 {
			p.IntervalRPS = float64(p.IntervalRequests) / interval
		}
	}
	if p.IntervalRequests > 0 {
		p.IntervalErrorRate = float64(failures-ts.lastFailures) / float64(p.IntervalRequests)
	}

	ts.points[ts.head] = p
	ts.head = (ts.head + 1) % len(ts.points)
	if ts.count < len(ts.points) {
		ts.count++
	}

	ts.lastTime = now
	ts.lastRequests = total
	ts.lastFailures = failures

	return p
}

// Points returns a copy of the retained points in chronological order.
func (ts *TimeSeries) Points() []Point {
	ts.mu.RLock()
	defer ts.mu.RUnlock()

	if ts.count == 0 {
		return nil
	}

	result := make([]Point, ts.count)
	start := 0
	if ts.count == len(ts.points) {
		start = ts.head
	}
	for i := 0; i < ts.count; i++ {
		result[i] = ts.points[(start+i)%len(ts.points)]
	}
	return result
}

// Len returns the number of retained points.
func (ts *TimeSeries) Len() int {
	ts.mu.RLock()
	defer ts.mu.RUnlock()
	return ts.count
}
