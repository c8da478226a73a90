package metrics

import (
	"fmt"
	"strings"
	"time"
)

// MetricType is the aggregation strategy of a metric.
type MetricType int

const (
	// Counter sums sample values.
	Counter MetricType = iota
	// Gauge keeps the latest value along with min and max.
	Gauge
	// Rate tracks the fraction of non-zero samples.
	Rate
	// Trend keeps a distribution for percentile queries.
	Trend
)

func (t MetricType) String() string {
	switch t {
	case Counter:
		return "counter"
	case Gauge:
		return "gauge"
	case Rate:
		return "rate"
	case Trend:
		return "trend"
	default:
		return "unknown"
	}
}

// MarshalText implements encoding.TextMarshaler.
func (t MetricType) MarshalText() ([]byte, error) {
	return []byte(t.String()), nil
}

// ParseMetricType parses a metric type name.
func ParseMetricType(s string) (MetricType, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "counter":
		return Counter, nil
	case "gauge":
		return Gauge, nil
	case "rate":
		return Rate, nil
	case "trend":
		return Trend, nil
	default:
		return 0, fmt.Errorf("unknown metric type: %q", s)
	}
}

// ValueType describes the unit of a metric's values.
type ValueType int

const (
	// Default is a plain number.
	Default ValueType = iota
	// Time values are milliseconds.
	Time
	// Data values are bytes.
	Data
)

func (v ValueType) String() string {
	switch v {
	case Time:
		return "time"
	case Data:
		return "data"
	default:
		return "default"
	}
}

// MarshalText implements encoding.TextMarshaler.
func (v ValueType) MarshalText() ([]byte, error) {
	return []byte(v.String()), nil
}

// Built-in metric names.
const (
	HTTPReqs          = "http_reqs"
	HTTPReqDuration   = "http_req_duration"
	HTTPReqWaiting    = "http_req_waiting"
	HTTPReqFailed     = "http_req_failed"
	DataReceived      = "data_received"
	DataSent          = "data_sent"
	Checks            = "checks"
	Iterations        = "iterations"
	IterationDuration = "iteration_duration"
	IterationErrors   = "iteration_errors"
	VUs               = "vus"
	VUsMax            = "vus_max"
)

// Tag keys that get a per-value breakdown in aggregates.
const (
	TagStatus = "status"
	TagCheck  = "check"
	TagName   = "name"
	TagMethod = "method"
)

// Tags are key/value labels attached to a sample.
type Tags map[string]string

// Sample is a single observation of a metric.
type Sample struct {
	Metric string
	Time   time.Time
	Value  float64
	Tags   Tags
}

// Bool converts a boolean into a Rate sample value.
func Bool(b bool) float64 {
	if b {
		return 1
	}
	return 0
}

// Millis converts a duration into a Time sample value.
func Millis(d time.Duration) float64 {
	return float64(d) / float64(time.Millisecond)
}

type builtin struct {
	name     string
	typ      MetricType
	contains ValueType
}

var builtins = []builtin{
	{HTTPReqs, Counter, Default},
	{HTTPReqDuration, Trend, Time},
	{HTTPReqWaiting, Trend, Time},
	{HTTPReqFailed, Rate, Default},
	{DataReceived, Counter, Data},
	{DataSent, Counter, Data},
	{Checks, Rate, Default},
	{Iterations, Counter, Default},
	{IterationDuration, Trend, Time},
	{IterationErrors, Counter, Default},
	{VUs, Gauge, Default},
	{VUsMax, Gauge, Default},
}
