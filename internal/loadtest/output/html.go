package output

import (
	"bytes"
	"encoding/json"
	"fmt"
	"html/template"
	"os"
	"sort"

	"github.com/wesleyorama2/loadrig/internal/loadtest/engine"
	"github.com/wesleyorama2/loadrig/internal/loadtest/metrics"
)

// htmlData is what the report template renders.
type htmlData struct {
	*engine.Report
	Rows           []metricRow
	TimeSeriesJSON template.JS
}

type metricRow struct {
	Name    string
	Type    string
	Summary string
}

// chartPoint is the subset of a time series point the charts plot.
type chartPoint struct {
	Elapsed   float64 `json:"t"`
	RPS       float64 `json:"rps"`
	P95       float64 `json:"p95"`
	ErrorRate float64 `json:"err"`
	VUs       int     `json:"vus"`
	Phase     string  `json:"phase"`
}

var reportTemplate = template.Must(template.New("report").Funcs(template.FuncMap{
	"duration": formatDuration,
	"value":    formatValue,
	"pct": func(passes, fails int64) string {
		if passes+fails == 0 {
			return "0.0%"
		}
		return fmt.Sprintf("%.1f%%", float64(passes)/float64(passes+fails)*100)
	},
	"contains": func(r *engine.Report, metric string) metrics.ValueType {
		return r.Metrics[metric].Contains
	},
}).Parse(htmlTemplate))

// RenderHTML renders a self-contained HTML report.
func RenderHTML(r *engine.Report) ([]byte, error) {
	if r == nil {
		return nil, fmt.Errorf("report cannot be nil")
	}

	points := make([]chartPoint, len(r.TimeSeries))
	for i, p := range r.TimeSeries {
		points[i] = chartPoint{
			Elapsed:   p.Elapsed.Seconds(),
			RPS:       p.IntervalRPS,
			P95:       p.LatencyP95,
			ErrorRate: p.IntervalErrorRate * 100,
			VUs:       p.ActiveVUs,
			Phase:     p.Phase,
		}
	}
	series, err := json.Marshal(points)
	if err != nil {
		return nil, fmt.Errorf("failed to encode time series: %w", err)
	}

	data := htmlData{
		Report:         r,
		Rows:           metricRows(r),
		TimeSeriesJSON: template.JS(series),
	}

	var buf bytes.Buffer
	if err := reportTemplate.Execute(&buf, data); err != nil {
		return nil, fmt.Errorf("failed to execute template: %w", err)
	}
	return buf.Bytes(), nil
}

// WriteHTMLFile renders the report to path.
func WriteHTMLFile(path string, r *engine.Report) error {
	html, err := RenderHTML(r)
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, html, 0o644); err != nil {
		return fmt.Errorf("failed to write HTML file: %w", err)
	}
	return nil
}

func metricRows(r *engine.Report) []metricRow {
	plain := NewConsole(ConsoleConfig{Writer: &bytes.Buffer{}, NoColor: true})

	rows := make([]metricRow, 0, len(r.Metrics))
	for name, agg := range r.Metrics {
		if agg.Count == 0 {
			continue
		}
		rows = append(rows, metricRow{
			Name:    name,
			Type:    agg.Type.String(),
			Summary: plain.describe(agg, r.Duration),
		})
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].Name < rows[j].Name })
	return rows
}

const htmlTemplate = `<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="UTF-8">
<meta name="viewport" content="width=device-width, initial-scale=1.0">
<title>{{.Scenario}} - loadrig report</title>
<script src="https://cdn.jsdelivr.net/npm/chart.js@4.4.1/dist/chart.umd.min.js"></script>
<style>
body { font-family: -apple-system, BlinkMacSystemFont, "Segoe UI", Roboto, sans-serif; margin: 0; background: #f8fafc; color: #1e293b; }
main { max-width: 1100px; margin: 0 auto; padding: 2rem; }
header { display: flex; justify-content: space-between; align-items: center; }
.status { padding: .4rem 1rem; border-radius: 999px; font-weight: 600; color: #fff; }
.pass { background: #22c55e; } .fail { background: #ef4444; }
.meta span { margin-right: 1.5rem; color: #64748b; }
section { background: #fff; border-radius: 8px; padding: 1rem 1.5rem; margin-top: 1.5rem; box-shadow: 0 1px 3px rgba(0,0,0,.08); }
table { width: 100%; border-collapse: collapse; font-size: .9rem; }
th, td { text-align: left; padding: .4rem .6rem; border-bottom: 1px solid #e2e8f0; }
td.mono { font-family: ui-monospace, Menlo, monospace; }
.ok { color: #16a34a; } .bad { color: #dc2626; }
.charts { display: grid; grid-template-columns: 1fr 1fr; gap: 1rem; }
.warn { color: #b45309; }
</style>
</head>
<body>
<main>
<header>
  <div>
    <h1>{{.Scenario}}</h1>
    <div class="meta">
      <span>{{.Start.Format "2006-01-02 15:04:05"}}</span>
      <span>{{duration .Duration}}</span>
      <span>run {{.RunID}}</span>
      <span>exit code {{.ExitCode}}</span>
    </div>
  </div>
  <div class="status {{if .Passed}}pass{{else}}fail{{end}}">{{if .Passed}}✓ PASSED{{else}}✗ FAILED{{end}}</div>
</header>
{{if .Aborted}}<p class="warn">Aborted: {{.AbortReason}}</p>{{end}}
{{if .HardStopped}}<p class="warn">Graceful stop expired; in-flight iterations were interrupted.</p>{{end}}

{{if .Thresholds}}
<section>
<h2>Thresholds</h2>
<table>
<tr><th></th><th>Metric</th><th>Threshold</th><th>Actual</th></tr>
{{range .Thresholds}}
<tr>
  <td class="{{if .Pass}}ok{{else}}bad{{end}}">{{if .Pass}}✓{{else}}✗{{end}}</td>
  <td>{{.Metric}}</td>
  <td class="mono">{{.Source}}</td>
  <td class="mono">{{value .Actual (contains $.Report .Metric)}}</td>
</tr>
{{end}}
</table>
</section>
{{end}}

{{if .TimeSeries}}
<section>
<h2>Over time</h2>
<div class="charts">
  <canvas id="rps"></canvas>
  <canvas id="p95"></canvas>
  <canvas id="vus"></canvas>
  <canvas id="err"></canvas>
</div>
</section>
{{end}}

<section>
<h2>Metrics</h2>
<table>
<tr><th>Metric</th><th>Type</th><th>Values</th></tr>
{{range .Rows}}
<tr><td>{{.Name}}</td><td>{{.Type}}</td><td class="mono">{{.Summary}}</td></tr>
{{end}}
</table>
</section>

{{if .Checks}}
<section>
<h2>Checks</h2>
<table>
<tr><th></th><th>Check</th><th>Passes</th><th>Fails</th><th>Success</th></tr>
{{range .Checks}}
<tr>
  <td class="{{if .Fails}}bad{{else}}ok{{end}}">{{if .Fails}}✗{{else}}✓{{end}}</td>
  <td>{{.Name}}</td><td>{{.Passes}}</td><td>{{.Fails}}</td><td>{{pct .Passes .Fails}}</td>
</tr>
{{end}}
</table>
</section>
{{end}}
</main>
<script>
const series = {{.TimeSeriesJSON}};
function chart(id, label, key, color) {
  const el = document.getElementById(id);
  if (!el || typeof Chart === 'undefined') return;
  new Chart(el, {
    type: 'line',
    data: {
      labels: series.map(p => p.t.toFixed(0) + 's'),
      datasets: [{ label: label, data: series.map(p => p[key]), borderColor: color, pointRadius: 0, tension: 0.2 }]
    },
    options: { animation: false, scales: { y: { beginAtZero: true } } }
  });
}
chart('rps', 'Requests/s', 'rps', '#3b82f6');
chart('p95', 'p95 latency (ms)', 'p95', '#8b5cf6');
chart('vus', 'Active VUs', 'vus', '#22c55e');
chart('err', 'Error rate (%)', 'err', '#ef4444');
</script>
</body>
</html>
`
