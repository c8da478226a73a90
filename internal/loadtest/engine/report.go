package engine

import (
	"sort"
	"time"

	"github.com/wesleyorama2/loadrig/internal/loadtest/metrics"
	"github.com/wesleyorama2/loadrig/internal/loadtest/threshold"
)

// Report is the result of one run.
type Report struct {
	// Run metadata
	RunID    string        `json:"runId"`
	Scenario string        `json:"scenario"`
	Start    time.Time     `json:"start"`
	End      time.Time     `json:"end"`
	Duration time.Duration `json:"duration"`
	State    RunState      `json:"state"`

	// Final aggregates keyed by metric name
	Metrics map[string]metrics.Aggregate `json:"metrics"`

	// Per-check pass/fail counts
	Checks []CheckSummary `json:"checks,omitempty"`

	Thresholds []threshold.Result `json:"thresholds,omitempty"`
	TimeSeries []metrics.Point    `json:"timeSeries,omitempty"`

	// HardStopped is set when in-flight iterations outlived the graceful stop.
	HardStopped bool `json:"hardStopped,omitempty"`

	Passed      bool   `json:"passed"`
	Aborted     bool   `json:"aborted"`
	AbortReason string `json:"abortReason,omitempty"`
	ExitCode    int    `json:"exitCode"`
}

// CheckSummary contains the outcomes of one named check.
type CheckSummary struct {
	Name   string `json:"name"`
	Passes int64  `json:"passes"`
	Fails  int64  `json:"fails"`
}

// Err returns a *loadtest.ThresholdBreach when any threshold failed.
func (r *Report) Err() error {
	return threshold.Breach(r.Thresholds)
}

// Metric returns the aggregate for name, or a zero aggregate.
func (r *Report) Metric(name string) metrics.Aggregate {
	return r.Metrics[name]
}

func checkSummaries(agg metrics.Aggregate) []CheckSummary {
	byCheck := agg.Breakdown[metrics.TagCheck]
	if len(byCheck) == 0 {
		return nil
	}

	out := make([]CheckSummary, 0, len(byCheck))
	for name, totals := range byCheck {
		out = append(out, CheckSummary{
			Name:   name,
			Passes: totals.NonZero,
			Fails:  totals.Count - totals.NonZero,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

func exitCode(externalAbort, thresholdAbort bool, results []threshold.Result) int {
	switch {
	case externalAbort:
		return ExitExternalAbort
	case thresholdAbort, len(threshold.Failed(results)) > 0:
		return ExitThresholdsFailed
	default:
		return ExitOK
	}
}
