package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wesleyorama2/loadrig/internal/loadtest/engine"
)

const smokeScenario = "../../scenarios/smoke.yaml"

func healthServer(t *testing.T, status int) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		w.Write([]byte(`{"status":"UP"}`))
	}))
	t.Cleanup(server.Close)
	return server
}

func readReport(t *testing.T, path string) map[string]interface{} {
	t.Helper()
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	var report map[string]interface{}
	require.NoError(t, json.Unmarshal(data, &report))
	return report
}

func TestRunCmd_Passes(t *testing.T) {
	server := healthServer(t, http.StatusOK)
	dir := t.TempDir()
	jsonPath := filepath.Join(dir, "report.json")
	htmlPath := filepath.Join(dir, "report.html")

	code, stdout, _ := execute(t, context.Background(), "run", smokeScenario,
		"--vus", "1", "--duration", "1s",
		"--base-url", server.URL,
		"--out", jsonPath, "--html", htmlPath,
		"--no-color")

	assert.Equal(t, engine.ExitOK, code)
	assert.Contains(t, stdout, "smoke - PASSED ✓")
	assert.Contains(t, stdout, "✓ health check returns status UP")

	report := readReport(t, jsonPath)
	assert.Equal(t, "smoke", report["scenario"])
	assert.Equal(t, true, report["passed"])
	assert.Equal(t, float64(0), report["exitCode"])

	html, err := os.ReadFile(htmlPath)
	require.NoError(t, err)
	assert.Contains(t, string(html), "✓ PASSED")
}

func TestRunCmd_ThresholdsFail(t *testing.T) {
	server := healthServer(t, http.StatusInternalServerError)

	code, stdout, stderr := execute(t, context.Background(), "run", smokeScenario,
		"--vus", "1", "--duration", "1s", "--base-url", server.URL, "--no-color")

	assert.Equal(t, engine.ExitThresholdsFailed, code)
	assert.Contains(t, stdout, "smoke - FAILED ✗")
	assert.Contains(t, stdout, "✗ http_req_failed rate<0.01")
	assert.Empty(t, stderr, "a breach is reported through the summary and exit code")
}

func TestRunCmd_Quiet(t *testing.T) {
	server := healthServer(t, http.StatusOK)

	code, stdout, _ := execute(t, context.Background(), "run", smokeScenario,
		"-q", "--vus", "1", "--duration", "1s", "--base-url", server.URL)

	assert.Equal(t, engine.ExitOK, code)
	assert.Equal(t, "PASSED\n", stdout)
}

func TestRunCmd_EnvironmentOverrides(t *testing.T) {
	server := healthServer(t, http.StatusOK)
	jsonPath := filepath.Join(t.TempDir(), "report.json")

	t.Setenv("LOADRIG_VUS", "3")
	t.Setenv("LOADRIG_DURATION", "1s")
	t.Setenv("LOADRIG_BASE_URL", server.URL)
	t.Setenv("LOADRIG_OUT", jsonPath)

	code, _, _ := execute(t, context.Background(), "run", smokeScenario, "-q")
	require.Equal(t, engine.ExitOK, code)

	report := readReport(t, jsonPath)
	vusMax := report["metrics"].(map[string]interface{})["vus_max"].(map[string]interface{})
	assert.Equal(t, float64(3), vusMax["max"])
}

func TestRunCmd_ConfigErrors(t *testing.T) {
	dir := t.TempDir()
	invalid := filepath.Join(dir, "invalid.yaml")
	require.NoError(t, os.WriteFile(invalid, []byte("vus: 1\nduration: 1s\nrequests: [{url: http://x/, method: FETCH}]\n"), 0o644))

	tests := []struct {
		name   string
		args   []string
		stderr string
	}{
		{"missing file", []string{"run", filepath.Join(dir, "missing.yaml")}, "failed to read scenario file"},
		{"invalid file", []string{"run", invalid}, "requests[0].method"},
		{"invalid override", []string{"run", smokeScenario, "--base-url", "ftp://nowhere"}, "scheme must be http or https"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			code, stdout, stderr := execute(t, context.Background(), tt.args...)
			assert.Equal(t, engine.ExitConfigError, code)
			assert.Contains(t, stderr, tt.stderr)
			assert.Empty(t, stdout, "nothing runs")
		})
	}
}

func TestRunCmd_Interrupted(t *testing.T) {
	server := healthServer(t, http.StatusOK)

	ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
	defer cancel()

	start := time.Now()
	code, stdout, _ := execute(t, ctx, "run", smokeScenario,
		"--vus", "2", "--duration", "30s", "--base-url", server.URL, "--no-color")

	assert.Equal(t, engine.ExitExternalAbort, code)
	assert.Less(t, time.Since(start), 10*time.Second)
	assert.Contains(t, stdout, "aborted:")
}

// checkoutServer answers the endpoints the example scenarios call.
func checkoutServer(t *testing.T) *httptest.Server {
	t.Helper()
	var orders atomic.Int64

	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"UP"}`))
	})
	checkout := func(w http.ResponseWriter, r *http.Request) {
		var payload map[string]interface{}
		if err := json.NewDecoder(r.Body).Decode(&payload); err != nil || payload["userId"] == nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		json.NewEncoder(w).Encode(map[string]interface{}{
			"id":     fmt.Sprintf("ord_%d", orders.Add(1)),
			"status": "APPROVED",
		})
	}
	mux.HandleFunc("POST /checkout/simple", checkout)
	mux.HandleFunc("POST /checkout/crypto", checkout)

	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)
	return server
}

func TestRunCmd_ExampleScenarios(t *testing.T) {
	server := checkoutServer(t)

	for _, name := range []string{"smoke", "load", "spike", "stress"} {
		t.Run(name, func(t *testing.T) {
			code, stdout, stderr := execute(t, context.Background(), "run", "../../scenarios/"+name+".yaml",
				"--vus", "40", "--duration", "1s", "--base-url", server.URL, "--no-color")

			assert.Equal(t, engine.ExitOK, code, "stdout:\n%s\nstderr:\n%s", stdout, stderr)
			assert.Contains(t, stdout, name+" - PASSED ✓")
		})
	}
}
