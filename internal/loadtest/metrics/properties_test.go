package metrics

import (
	"math"
	"sync"
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

func TestProperty_RecordOrderDoesNotMatter(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 50

	properties := gopter.NewProperties(parameters)

	properties.Property("split concurrent recording equals sequential recording", prop.ForAll(
		func(values []int64, workers int) bool {
			sequential := NewRegistry()
			for _, v := range values {
				_ = sequential.Add(HTTPReqDuration, float64(v), nil)
				_ = sequential.Add(HTTPReqFailed, Bool(v%2 == 0), nil)
			}

			concurrent := NewRegistry()
			var wg sync.WaitGroup
			for w := 0; w < workers; w++ {
				wg.Add(1)
				go func(w int) {
					defer wg.Done()
					for i := len(values) - 1 - w; i >= 0; i -= workers {
						_ = concurrent.Add(HTTPReqDuration, float64(values[i]), nil)
						_ = concurrent.Add(HTTPReqFailed, Bool(values[i]%2 == 0), nil)
					}
				}(w)
			}
			wg.Wait()

			a, _ := sequential.Snapshot(HTTPReqDuration)
			b, _ := concurrent.Snapshot(HTTPReqDuration)
			if a.Count != b.Count || a.Min != b.Min || a.Max != b.Max || a.P95 != b.P95 || a.Med != b.Med {
				return false
			}
			if math.Abs(a.Sum-b.Sum) > 1e-9 {
				return false
			}

			fa, _ := sequential.Snapshot(HTTPReqFailed)
			fb, _ := concurrent.Snapshot(HTTPReqFailed)
			return fa.Passes == fb.Passes && fa.Fails == fb.Fails
		},
		gen.SliceOf(gen.Int64Range(0, 60_000)),
		gen.IntRange(1, 8),
	))

	properties.Property("trend percentiles are ordered", prop.ForAll(
		func(values []int64) bool {
			r := NewRegistry()
			for _, v := range values {
				_ = r.Add(HTTPReqDuration, float64(v), nil)
			}
			agg, _ := r.Snapshot(HTTPReqDuration)
			if agg.Count == 0 {
				return agg.P99 == 0
			}
			return agg.Med <= agg.P90 && agg.P90 <= agg.P95 && agg.P95 <= agg.P99
		},
		gen.SliceOf(gen.Int64Range(1, 10_000)),
	))

	properties.TestingRun(t)
}

func TestTimeSeries_CaptureAndWrap(t *testing.T) {
	r := NewRegistry()
	ts := NewTimeSeries(3)

	base := time.Unix(1_700_000_000, 0)
	for i := 0; i < 5; i++ {
		for j := 0; j < 10; j++ {
			_ = r.Add(HTTPReqs, 1, nil)
			_ = r.Add(HTTPReqFailed, Bool(j < 2), nil)
			_ = r.Add(HTTPReqDuration, 20, nil)
		}
		ts.Capture(r, "steady", base.Add(time.Duration(i)*time.Second))
	}

	if ts.Len() != 3 {
		t.Fatalf("Len() = %d, want 3", ts.Len())
	}

	points := ts.Points()
	for i, p := range points {
		wantTotal := int64((i + 3) * 10)
		if p.TotalRequests != wantTotal {
			t.Errorf("points[%d].TotalRequests = %d, want %d", i, p.TotalRequests, wantTotal)
		}
		if p.IntervalRequests != 10 {
			t.Errorf("points[%d].IntervalRequests = %d, want 10", i, p.IntervalRequests)
		}
		if p.IntervalRPS != 10 {
			t.Errorf("points[%d].IntervalRPS = %v, want 10", i, p.IntervalRPS)
		}
		if math.Abs(p.IntervalErrorRate-0.2) > 1e-9 {
			t.Errorf("points[%d].IntervalErrorRate = %v, want 0.2", i, p.IntervalErrorRate)
		}
	}
	if !points[0].Timestamp.Before(points[2].Timestamp) {
		t.Error("points are not in chronological order")
	}
}
