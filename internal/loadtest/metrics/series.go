package metrics

import (
	"math"
	"sync"

	"github.com/HdrHistogram/hdrhistogram-go"
)

const (
	// Trend values are stored at 1/valueScale of their unit.
	valueScale = 1000

	histMin     = 1
	histMax     = 3_600_000_000
	histSigFigs = 3

	// maxBreakdownValues bounds the distinct values tracked per breakdown tag.
	maxBreakdownValues = 64
	overflowTagValue   = "other"
)

var breakdownTags = []string{TagStatus, TagCheck, TagName}

// TagTotals accumulates the samples that carried one tag value.
type TagTotals struct {
	Count   int64   `json:"count"`
	Sum     float64 `json:"sum"`
	Min     float64 `json:"min"`
	Max     float64 `json:"max"`
	NonZero int64   `json:"nonZero"`
}

func (t *TagTotals) add(v float64) {
	if t.Count == 0 || v < t.Min {
		t.Min = v
	}
	if t.Count == 0 || v > t.Max {
		t.Max = v
	}
	t.Count++
	t.Sum += v
	if v != 0 {
		t.NonZero++
	}
}

// series holds the running state of one metric.
type series struct {
	name     string
	typ      MetricType
	contains ValueType

	mu      sync.Mutex
	count   int64
	sum     float64
	min     float64
	max     float64
	last    float64
	nonZero int64
	clamped int64

	// Only set for Trend metrics.
	hist *hdrhistogram.Histogram

	breakdown map[string]map[string]*TagTotals
}

func newSeries(name string, typ MetricType, contains ValueType) *series {
	s := &series{
		name:      name,
		typ:       typ,
		contains:  contains,
		breakdown: make(map[string]map[string]*TagTotals),
	}
	if typ == Trend {
		s.hist = hdrhistogram.New(histMin, histMax, histSigFigs)
	}
	return s
}

func (s *series) add(sample Sample) {
	v := sample.Value

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.count == 0 || v < s.min {
		s.min = v
	}
	if s.count == 0 || v > s.max {
		s.max = v
	}
	s.count++
	s.sum += v
	s.last = v
	if v != 0 {
		s.nonZero++
	}

	if s.hist != nil {
		s.recordHistogram(v)
	}

	for _, key := range breakdownTags {
		tagValue, ok := sample.Tags[key]
		if !ok {
			continue
		}
		s.tagTotals(key, tagValue).add(v)
	}
}

// recordHistogram must be called with s.mu held.
// NOTE: HDR histogram RecordValue is not thread-safe.
func (s *series) recordHistogram(v float64) {
	scaled := math.Round(v * valueScale)
	switch {
	case math.IsNaN(scaled) || scaled < 0:
		scaled = 0
		s.clamped++
	case scaled > histMax:
		scaled = histMax
		s.clamped++
	}
	if err := s.hist.RecordValue(int64(scaled)); err != nil {
		s.clamped++
	}
}

func (s *series) tagTotals(key, value string) *TagTotals {
	values, ok := s.breakdown[key]
	if !ok {
		values = make(map[string]*TagTotals)
		s.breakdown[key] = values
	}
	totals, ok := values[value]
	if ok {
		return totals
	}
	if len(values) >= maxBreakdownValues {
		value = overflowTagValue
		if totals, ok = values[value]; ok {
			return totals
		}
	}
	totals = &TagTotals{}
	values[value] = totals
	return totals
}

func (s *series) aggregate(elapsedSeconds float64) Aggregate {
	s.mu.Lock()
	defer s.mu.Unlock()

	a := Aggregate{
		Name:     s.name,
		Type:     s.typ,
		Contains: s.contains,
		Count:    s.count,
		Sum:      s.sum,
		Min:      s.min,
		Max:      s.max,
		Value:    s.last,
		Passes:   s.nonZero,
		Fails:    s.count - s.nonZero,
		Clamped:  s.clamped,
	}
	if s.count > 0 {
		a.Avg = s.sum / float64(s.count)
	}

	switch s.typ {
	case Counter:
		if elapsedSeconds > 0 {
			a.Rate = s.sum / elapsedSeconds
		}
	case Rate:
		if s.count > 0 {
			a.Rate = float64(s.nonZero) / float64(s.count)
		}
	case Trend:
		a.hist = hdrhistogram.Import(s.hist.Export())
		a.Med = a.Percentile(50)
		a.P90 = a.Percentile(90)
		a.P95 = a.Percentile(95)
		a.P99 = a.Percentile(99)
	}

	if len(s.breakdown) > 0 {
		a.Breakdown = make(map[string]map[string]TagTotals, len(s.breakdown))
		for key, values := range s.breakdown {
			copied := make(map[string]TagTotals, len(values))
			for v, totals := range values {
				copied[v] = *totals
			}
			a.Breakdown[key] = copied
		}
	}

	return a
}
