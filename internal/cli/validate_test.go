package cli

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wesleyorama2/loadrig/internal/loadtest/engine"
)

func TestValidateCmd_ExampleScenarios(t *testing.T) {
	files, err := filepath.Glob("../../scenarios/*.yaml")
	require.NoError(t, err)
	require.Len(t, files, 4)

	code, stdout, _ := execute(t, context.Background(), append([]string{"validate", "--no-color"}, files...)...)

	assert.Equal(t, engine.ExitOK, code)
	assert.Equal(t, 4, strings.Count(stdout, "✓ "))
	assert.Contains(t, stdout, "load, 3 stages, 5m0s, up to 50 VUs, 1 request(s), 4 thresholds")
}

func TestValidateCmd_ReportsEveryProblem(t *testing.T) {
	path := filepath.Join(t.TempDir(), "broken.yaml")
	doc := `
vus: 1
duration: 1s
thresholds:
  http_req_failed: ["p(95)<1"]
requests:
  - url: http://x/
    method: FETCH
`
	require.NoError(t, os.WriteFile(path, []byte(doc), 0o644))

	code, stdout, stderr := execute(t, context.Background(), "validate", "--no-color", path, "../../scenarios/smoke.yaml")

	assert.Equal(t, engine.ExitConfigError, code)
	assert.Contains(t, stdout, "✗ "+path)
	assert.Contains(t, stdout, "requests[0].method: invalid HTTP method: FETCH")
	assert.Contains(t, stdout, "thresholds.http_req_failed[0]:")
	assert.Contains(t, stdout, "✓ ../../scenarios/smoke.yaml")
	assert.Contains(t, stderr, "1 of 2 scenario files are invalid")
}

func TestSchemaCmd(t *testing.T) {
	code, stdout, _ := execute(t, context.Background(), "schema")
	assert.Equal(t, 0, code)
	assert.Contains(t, stdout, `"$schema": "http://json-schema.org/draft-07/schema#"`)
}
