package metrics

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/HdrHistogram/hdrhistogram-go"
)

// Aggregate is a point-in-time, read-only view of one metric.
//
// Which fields are meaningful depends on Type:
//   - Counter: Count, Sum, Rate (sum per second)
//   - Gauge: Value, Min, Max
//   - Rate: Rate (fraction of non-zero samples), Passes, Fails
//   - Trend: Count, Avg, Min, Max, Med, P90, P95, P99 and Percentile
type Aggregate struct {
	Name     string     `json:"name"`
	Type     MetricType `json:"type"`
	Contains ValueType  `json:"contains"`

	Count int64   `json:"count"`
	Sum   float64 `json:"sum"`
	Rate  float64 `json:"rate"`

	Passes int64 `json:"passes"`
	Fails  int64 `json:"fails"`

	Value float64 `json:"value"`
	Min   float64 `json:"min"`
	Max   float64 `json:"max"`
	Avg   float64 `json:"avg"`
	Med   float64 `json:"med"`
	P90   float64 `json:"p90"`
	P95   float64 `json:"p95"`
	P99   float64 `json:"p99"`

	// Clamped counts samples that fell outside the histogram range.
	Clamped int64 `json:"clamped,omitempty"`

	// Breakdown maps tag key -> tag value -> totals for the status, check and name tags.
	Breakdown map[string]map[string]TagTotals `json:"breakdown,omitempty"`

	hist *hdrhistogram.Histogram
}

// Percentile returns the value at percentile p (0-100) of a Trend.
// It returns 0 for other metric types or when no samples were recorded.
func (a Aggregate) Percentile(p float64) float64 {
	if a.hist == nil || a.hist.TotalCount() == 0 {
		return 0
	}
	if p < 0 {
		p = 0
	}
	if p > 100 {
		p = 100
	}
	return float64(a.hist.ValueAtQuantile(p)) / valueScale
}

// Stat returns a named statistic of the aggregate.
//
// Supported names: count, rate, value, min, max, avg, med, passes, fails,
// and p(N) for any percentile N.
func (a Aggregate) Stat(name string) (float64, error) {
	if err := CheckStat(a.Type, name); err != nil {
		return 0, err
	}

	switch name {
	case "count":
		if a.Type == Counter {
			return a.Sum, nil
		}
		return float64(a.Count), nil
	case "rate":
		return a.Rate, nil
	case "value":
		return a.Value, nil
	case "min":
		return a.Min, nil
	case "max":
		return a.Max, nil
	case "avg":
		return a.Avg, nil
	case "med":
		return a.Med, nil
	case "passes":
		return float64(a.Passes), nil
	case "fails":
		return float64(a.Fails), nil
	}

	p, _ := ParsePercentileStat(name)
	return a.Percentile(p), nil
}

// ParsePercentileStat parses a "p(N)" statistic name.
func ParsePercentileStat(name string) (float64, bool) {
	if !strings.HasPrefix(name, "p(") || !strings.HasSuffix(name, ")") {
		return 0, false
	}
	p, err := strconv.ParseFloat(strings.TrimSpace(name[2:len(name)-1]), 64)
	if err != nil || p < 0 || p > 100 {
		return 0, false
	}
	return p, true
}

// CheckStat reports whether a statistic is defined for a metric type.
func CheckStat(typ MetricType, name string) error {
	var ok bool
	switch typ {
	case Counter:
		ok = name == "count" || name == "rate"
	case Gauge:
		ok = name == "value" || name == "min" || name == "max"
	case Rate:
		ok = name == "rate" || name == "passes" || name == "fails"
	case Trend:
		switch name {
		case "count", "avg", "min", "max", "med":
			ok = true
		default:
			_, ok = ParsePercentileStat(name)
		}
	}
	if !ok {
		return fmt.Errorf("statistic %q is not supported for %s metrics", name, typ)
	}
	return nil
}
