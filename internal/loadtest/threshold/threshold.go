// Package threshold parses and evaluates pass/fail criteria against metric
// aggregates.
package threshold

import (
	"errors"
	"fmt"
	"math"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/wesleyorama2/loadrig/internal/loadtest"
	"github.com/wesleyorama2/loadrig/internal/loadtest/metrics"
)

// Threshold is a parsed threshold expression bound to one metric.
type Threshold struct {
	Metric     string  // e.g. "http_req_duration"
	Statistic  string  // e.g. "p(95)", "avg", "rate"
	Percentile float64 // set when Statistic is p(N)
	Operator   string  // "<", "<=", ">", ">=", "==", "!="
	Bound      float64 // in the metric's unit; ms for Time metrics
	Unit       string  // "", "ms" or "s" as written

	AbortOnFail    bool
	DelayAbortEval time.Duration

	Source string // original expression for display
}

// String returns "metric: source".
func (t Threshold) String() string {
	return t.Metric + ": " + t.Source
}

// Result represents the outcome of evaluating a threshold.
type Result struct {
	Threshold Threshold `json:"-"`
	Metric    string    `json:"metric"`
	Source    string    `json:"threshold"`
	Actual    float64   `json:"actual"`
	Pass      bool      `json:"pass"`
	Message   string    `json:"message"`
}

// Pattern: statistic[(metric)] operator value[unit]
// e.g. "p(95) < 500", "avg(http_req_duration) < 200", "p(99)<1.5s"
var expressionRe = regexp.MustCompile(
	`^\s*(p\(\s*[0-9]+(?:\.[0-9]+)?\s*\)|[a-z]+)` +
		`(?:\(\s*([A-Za-z_][A-Za-z0-9_.:-]*)\s*\))?` +
		`\s*(<=|>=|==|!=|<|>)\s*` +
		`(-?[0-9]+(?:\.[0-9]+)?)\s*(ms|s)?\s*$`)

var statistics = map[string]bool{
	"rate": true, "avg": true, "min": true, "max": true, "med": true,
	"count": true, "value": true, "passes": true, "fails": true,
}

// Parse parses an expression listed under metric.
// Supported formats:
//   - "p(95)<500"                      (percentile, ms for Time metrics)
//   - "avg < 200ms", "max<1.5s"        (unit suffix on Time metrics)
//   - "rate<0.05"                      (fraction for Rate, per second for Counter)
//   - "count>=100"
//   - "avg(http_req_duration) < 200"   (qualified; must name metric)
func Parse(metric, expr string) (Threshold, error) {
	m := expressionRe.FindStringSubmatch(expr)
	if m == nil {
		return Threshold{}, fmt.Errorf("invalid threshold %q (expected format: statistic operator value, e.g. 'p(95)<500')", expr)
	}

	stat := strings.ReplaceAll(m[1], " ", "")
	t := Threshold{
		Metric:    metric,
		Statistic: stat,
		Operator:  m[3],
		Unit:      m[5],
		Source:    strings.TrimSpace(expr),
	}

	if p, ok := metrics.ParsePercentileStat(stat); ok {
		t.Percentile = p
	} else if strings.HasPrefix(stat, "p(") {
		return Threshold{}, fmt.Errorf("invalid percentile %q in threshold %q", stat, expr)
	} else if !statistics[stat] {
		return Threshold{}, fmt.Errorf("unsupported statistic %q in threshold %q", stat, expr)
	}

	if m[2] != "" && m[2] != metric {
		return Threshold{}, fmt.Errorf("threshold %q refers to metric %q but is listed under %q", expr, m[2], metric)
	}

	bound, err := strconv.ParseFloat(m[4], 64)
	if err != nil {
		return Threshold{}, fmt.Errorf("invalid threshold value %q: %v", m[4], err)
	}
	if t.Unit == "s" {
		bound *= 1000
	}
	t.Bound = bound

	return t, nil
}

// Validate checks that the statistic and unit make sense for a metric of
// the given type.
func (t Threshold) Validate(typ metrics.MetricType, contains metrics.ValueType) error {
	if err := metrics.CheckStat(typ, t.Statistic); err != nil {
		return fmt.Errorf("threshold %q: %w", t.Source, err)
	}
	if t.Unit != "" && contains != metrics.Time {
		return fmt.Errorf("threshold %q: unit %q is only allowed on time metrics", t.Source, t.Unit)
	}
	if t.Unit != "" && typ == metrics.Trend && (t.Statistic == "count") {
		return fmt.Errorf("threshold %q: unit %q is not allowed on count", t.Source, t.Unit)
	}
	return nil
}

// Build parses and validates every threshold of a scenario against the
// metrics known to registry. All problems are reported together in a
// *loadtest.ConfigurationError.
func Build(registry *metrics.Registry, specs map[string][]loadtest.ThresholdSpec) ([]Threshold, error) {
	errs := &loadtest.ValidationErrors{}
	var result []Threshold

	names := make([]string, 0, len(specs))
	for name := range specs {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, metric := range names {
		typ, contains, ok := registry.Lookup(metric)
		for i, spec := range specs[metric] {
			field := fmt.Sprintf("thresholds.%s[%d]", metric, i)
			if !ok {
				errs.Addf(field, "unknown metric %q", metric)
				continue
			}

			t, err := Parse(metric, spec.Expression)
			if err != nil {
				errs.Add(field, err.Error())
				continue
			}
			if err := t.Validate(typ, contains); err != nil {
				errs.Add(field, err.Error())
				continue
			}
			if spec.DelayAbortEval < 0 {
				errs.Add(field, "delayAbortEval must not be negative")
				continue
			}
			t.AbortOnFail = spec.AbortOnFail
			t.DelayAbortEval = spec.DelayAbortEval
			result = append(result, t)
		}
	}

	if err := errs.Err(); err != nil {
		return nil, &loadtest.ConfigurationError{Err: err}
	}
	return result, nil
}

// Evaluate checks one threshold against an aggregate of its metric.
func Evaluate(t Threshold, agg metrics.Aggregate) Result {
	result := Result{Threshold: t, Metric: t.Metric, Source: t.Source}

	actual, err := agg.Stat(t.Statistic)
	if err != nil {
		result.Message = fmt.Sprintf("✗ %s: error: %v", t, err)
		return result
	}

	result.Actual = actual
	result.Pass = compareValues(actual, t.Operator, t.Bound)

	status := "✓"
	if !result.Pass {
		status = "✗"
	}
	result.Message = fmt.Sprintf("%s %s (actual %s)", status, t, formatValue(actual, agg.Contains))
	return result
}

func compareValues(actual float64, operator string, expected float64) bool {
	// Handle floating point comparison with small epsilon
	epsilon := 1e-9

	switch operator {
	case "<":
		return actual < expected
	case "<=":
		return actual <= expected || math.Abs(actual-expected) < epsilon
	case ">":
		return actual > expected
	case ">=":
		return actual >= expected || math.Abs(actual-expected) < epsilon
	case "==":
		return math.Abs(actual-expected) < epsilon
	case "!=":
		return math.Abs(actual-expected) >= epsilon
	default:
		return false
	}
}

func formatValue(v float64, contains metrics.ValueType) string {
	switch contains {
	case metrics.Time:
		return strconv.FormatFloat(v, 'f', 2, 64) + "ms"
	case metrics.Data:
		return strconv.FormatFloat(v, 'f', 0, 64) + "B"
	}
	return strconv.FormatFloat(v, 'f', 4, 64)
}

// Failed returns the failing results.
func Failed(results []Result) []Result {
	var failed []Result
	for _, r := range results {
		if !r.Pass {
			failed = append(failed, r)
		}
	}
	return failed
}

// Breach converts failing results into a *loadtest.ThresholdBreach, or nil
// when every result passed.
func Breach(results []Result) error {
	failed := Failed(results)
	if len(failed) == 0 {
		return nil
	}
	breach := &loadtest.ThresholdBreach{}
	for _, r := range failed {
		breach.Failed = append(breach.Failed, r.Threshold.String())
	}
	return breach
}

// AbortError reports thresholds that crossed with abortOnFail set.
type AbortError struct {
	Thresholds []string
}

func (e *AbortError) Error() string {
	return fmt.Sprintf("thresholds crossed with abortOnFail enabled: %s", strings.Join(e.Thresholds, ", "))
}

// IsAbort reports whether err is an *AbortError.
func IsAbort(err error) bool {
	var abortErr *AbortError
	return errors.As(err, &abortErr)
}
