// Package output renders run progress and reports for people and tools.
package output

import (
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/fatih/color"
	"github.com/mattn/go-isatty"

	"github.com/wesleyorama2/loadrig/internal/loadtest"
	"github.com/wesleyorama2/loadrig/internal/loadtest/engine"
	"github.com/wesleyorama2/loadrig/internal/loadtest/metrics"
)

const (
	ruleWidth = 60
	rule      = "─"
	dotsWidth = 28

	clearLine = "\r\033[K"
)

// ConsoleConfig configures console output.
type ConsoleConfig struct {
	// Writer defaults to os.Stdout.
	Writer io.Writer
	// Quiet suppresses everything except the final PASSED/FAILED line.
	Quiet bool
	// NoColor disables colors even on a terminal.
	NoColor bool
	// ForceTTY treats Writer as a terminal. Used by tests.
	ForceTTY bool
}

// Console prints a header, live progress lines and the end-of-run summary.
//
// On a terminal, progress redraws a single line in place; otherwise each
// progress update is printed on its own line so logs stay readable in CI.
type Console struct {
	w     io.Writer
	quiet bool
	isTTY bool

	mu      sync.Mutex
	pending bool

	title *color.Color
	label *color.Color
	value *color.Color
	dim   *color.Color
	pass  *color.Color
	warn  *color.Color
	fail  *color.Color
}

// NewConsole creates a console writer.
func NewConsole(cfg ConsoleConfig) *Console {
	w := cfg.Writer
	if w == nil {
		w = os.Stdout
	}

	c := &Console{
		w:     w,
		quiet: cfg.Quiet,
		isTTY: cfg.ForceTTY || isTerminal(w),
		title: color.New(color.FgCyan, color.Bold),
		label: color.New(color.Bold),
		value: color.New(color.FgCyan),
		dim:   color.New(color.Faint),
		pass:  color.New(color.FgGreen),
		warn:  color.New(color.FgYellow),
		fail:  color.New(color.FgRed, color.Bold),
	}

	useColor := c.isTTY && !cfg.NoColor && os.Getenv("NO_COLOR") == ""
	for _, col := range []*color.Color{c.title, c.label, c.value, c.dim, c.pass, c.warn, c.fail} {
		if useColor {
			col.EnableColor()
		} else {
			col.DisableColor()
		}
	}
	return c
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

// IsTTY reports whether output goes to a terminal.
func (c *Console) IsTTY() bool {
	return c.isTTY
}

// PrintHeader prints the scenario banner.
func (c *Console) PrintHeader(sc *loadtest.Scenario, runID string) {
	if c.quiet || sc == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	line := strings.Repeat(rule, ruleWidth)
	c.println(c.title.Sprint(line))
	c.println(c.label.Sprint(sc.Name))
	c.println(c.title.Sprint(line))

	c.printf("  run id:        %s\n", c.dim.Sprint(runID))
	c.printf("  stages:        %s\n", c.value.Sprint(len(sc.Stages)))
	drain := "unbounded"
	if gs := sc.Options.WithDefaults().GracefulStop; gs >= 0 {
		drain = formatDuration(gs)
	}
	c.printf("  duration:      %s (+%s graceful stop)\n",
		c.value.Sprint(formatDuration(sc.Stages.TotalDuration())), drain)
	c.printf("  max VUs:       %s\n", c.value.Sprint(sc.Stages.MaxTarget()))
	if sc.Options.MaxRPS > 0 {
		c.printf("  max RPS:       %s\n", c.value.Sprint(sc.Options.MaxRPS))
	}
	c.println("")
}

// Progress prints one progress update. It is meant to be passed to
// engine.WithProgress.
func (c *Console) Progress(p engine.Progress) {
	if c.quiet {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	line := c.progressLine(p)
	if c.isTTY {
		fmt.Fprint(c.w, clearLine+line)
		c.pending = true
		return
	}
	c.println(line)
}

func (c *Console) progressLine(p engine.Progress) string {
	pt := p.Point

	stage := p.State.String()
	active, target := pt.ActiveVUs, 0
	if s := p.Stats; s != nil {
		active, target = s.ActiveVUs, s.TargetVUs
		if s.TotalStages > 0 && s.CurrentStage >= 0 && s.CurrentStage < s.TotalStages {
			stage = fmt.Sprintf("%s %d/%d", stage, s.CurrentStage+1, s.TotalStages)
		}
	}

	errColor := c.pass
	switch {
	case pt.IntervalErrorRate > 0.05:
		errColor = c.fail
	case pt.IntervalErrorRate > 0.01:
		errColor = c.warn
	}

	return fmt.Sprintf("[%s] %-14s VUs %s/%d | reqs %s | %s req/s | errors %s | p95 %s",
		formatDuration(pt.Elapsed),
		stage,
		c.value.Sprint(active), target,
		c.value.Sprint(formatNumber(pt.TotalRequests)),
		c.value.Sprintf("%.1f", pt.IntervalRPS),
		errColor.Sprintf("%.1f%%", pt.IntervalErrorRate*100),
		formatMillis(pt.LatencyP95))
}

// PrintSummary prints the end-of-run summary.
func (c *Console) PrintSummary(r *engine.Report) {
	if r == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.pending {
		c.println("")
		c.pending = false
	}

	if c.quiet {
		if r.Passed {
			c.println(c.pass.Sprint("PASSED"))
		} else {
			c.println(c.fail.Sprint("FAILED"))
		}
		return
	}

	status := c.pass.Sprint("PASSED ✓")
	if !r.Passed {
		status = c.fail.Sprint("FAILED ✗")
	}

	line := strings.Repeat(rule, ruleWidth)
	c.println("")
	c.println(c.title.Sprint(line))
	c.printf("%s - %s\n", c.label.Sprint(r.Scenario), status)
	c.println(c.title.Sprint(line))
	c.printf("  duration:      %s\n", c.value.Sprint(formatDuration(r.Duration)))
	c.printf("  exit code:     %d\n", r.ExitCode)
	if r.Aborted {
		c.printf("  aborted:       %s\n", c.warn.Sprint(r.AbortReason))
	}
	if r.HardStopped {
		c.printf("  %s\n", c.warn.Sprint("graceful stop expired; in-flight iterations were interrupted"))
	}
	c.println("")

	c.printMetrics(r)
	c.printChecks(r.Checks)
	c.printThresholds(r)
}

func (c *Console) printMetrics(r *engine.Report) {
	names := make([]string, 0, len(r.Metrics))
	for name, agg := range r.Metrics {
		if agg.Count > 0 {
			names = append(names, name)
		}
	}
	if len(names) == 0 {
		return
	}
	sort.Strings(names)

	c.println(c.label.Sprint("Metrics:"))
	for _, name := range names {
		dots := dotsWidth - len(name)
		if dots < 3 {
			dots = 3
		}
		c.printf("  %s%s: %s\n", name, c.dim.Sprint(strings.Repeat(".", dots)), c.describe(r.Metrics[name], r.Duration))
	}
	c.println("")
}

// describe renders the statistics relevant to the metric's type.
func (c *Console) describe(agg metrics.Aggregate, elapsed time.Duration) string {
	val := func(v float64) string { return c.value.Sprint(formatValue(v, agg.Contains)) }

	switch agg.Type {
	case metrics.Counter:
		perSec := 0.0
		if elapsed > 0 {
			perSec = agg.Sum / elapsed.Seconds()
		}
		return fmt.Sprintf("%s  %s/s", val(agg.Sum), formatValue(perSec, agg.Contains))
	case metrics.Gauge:
		return fmt.Sprintf("%s  min=%s max=%s", val(agg.Value), val(agg.Min), val(agg.Max))
	case metrics.Rate:
		return fmt.Sprintf("%s  ✓ %d ✗ %d", c.value.Sprintf("%.2f%%", agg.Rate*100), agg.Passes, agg.Fails)
	default:
		return fmt.Sprintf("avg=%s min=%s med=%s max=%s p(90)=%s p(95)=%s p(99)=%s",
			val(agg.Avg), val(agg.Min), val(agg.Med), val(agg.Max), val(agg.P90), val(agg.P95), val(agg.P99))
	}
}

func (c *Console) printChecks(checks []engine.CheckSummary) {
	if len(checks) == 0 {
		return
	}
	c.println(c.label.Sprint("Checks:"))
	for _, ch := range checks {
		mark := c.pass.Sprint("✓")
		if ch.Fails > 0 {
			mark = c.fail.Sprint("✗")
		}
		total := ch.Passes + ch.Fails
		pct := 0.0
		if total > 0 {
			pct = float64(ch.Passes) / float64(total) * 100
		}
		c.printf("  %s %s %s\n", mark, ch.Name, c.dim.Sprintf("(%.1f%%, ✓ %d ✗ %d)", pct, ch.Passes, ch.Fails))
	}
	c.println("")
}

func (c *Console) printThresholds(r *engine.Report) {
	if len(r.Thresholds) == 0 {
		return
	}
	c.println(c.label.Sprint("Thresholds:"))
	for _, t := range r.Thresholds {
		mark := c.pass.Sprint("✓")
		if !t.Pass {
			mark = c.fail.Sprint("✗")
		}
		contains := r.Metrics[t.Metric].Contains
		c.printf("  %s %s %s %s\n", mark, t.Metric, t.Source,
			c.dim.Sprintf("(actual %s)", formatValue(t.Actual, contains)))
	}
	c.println("")
}

func (c *Console) println(s string) {
	fmt.Fprintln(c.w, s)
}

func (c *Console) printf(format string, args ...interface{}) {
	fmt.Fprintf(c.w, format, args...)
}
