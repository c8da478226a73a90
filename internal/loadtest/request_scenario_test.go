package loadtest_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wesleyorama2/loadrig/internal/loadtest"
	"github.com/wesleyorama2/loadrig/internal/loadtest/metrics"
)

type capturedRequest struct {
	Path   string
	Header http.Header
	Body   map[string]any
}

func createCapturingServer(t *testing.T) (*httptest.Server, func() []capturedRequest) {
	t.Helper()

	var mu sync.Mutex
	var captured []capturedRequest

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		c := capturedRequest{Path: r.URL.Path, Header: r.Header.Clone()}
		_ = json.NewDecoder(r.Body).Decode(&c.Body)

		mu.Lock()
		captured = append(captured, c)
		mu.Unlock()

		switch r.URL.Path {
		case "/login":
			w.Header().Set("Content-Type", "application/json")
			w.Write([]byte(`{"token":"tok_42"}`))
		default:
			w.WriteHeader(http.StatusCreated)
			w.Write([]byte(`{"id":"ord_1"}`))
		}
	}))

	return server, func() []capturedRequest {
		mu.Lock()
		defer mu.Unlock()
		return append([]capturedRequest(nil), captured...)
	}
}

func runOnce(t *testing.T, registry *metrics.Registry, body loadtest.Iteration, vuID int) {
	t.Helper()

	driver := loadtest.NewDriver(registry, loadtest.DriverConfig{})
	vu := loadtest.NewVirtualUser(vuID, driver, registry, loadtest.Options{StopOnError: true}, nil)

	done := make(chan struct{})
	once := loadtest.IterationFunc(func(ctx context.Context) error {
		defer close(done)
		err := body.Run(ctx)
		vu.Retire()
		return err
	})
	go vu.Run(context.Background(), once)

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("iteration did not complete")
	}
	<-vu.Done()
}

func TestRequestScenario_TemplatingAndExtraction(t *testing.T) {
	server, captured := createCapturingServer(t)
	defer server.Close()

	scenario, err := loadtest.NewRequestScenario(
		map[string]string{"baseUrl": server.URL, "campaign": "BLACK_FRIDAY"},
		[]loadtest.RequestSpec{
			{
				Name:    "login",
				Method:  "post",
				URL:     "{{baseUrl}}/login",
				Body:    `{"user":"user_{{__VU}}"}`,
				Extract: []loadtest.ExtractSpec{{Name: "token", Source: "body", Path: "$.token"}},
			},
			{
				Name:    "checkout",
				Method:  "POST",
				URL:     "{{baseUrl}}/checkout/simple",
				Headers: map[string]string{"Authorization": "Bearer {{token}}", "Content-Type": "application/json"},
				Body:    `{"userId":"user_{{__VU}}","cartId":"cart_{{randInt 1000}}","iter":{{__ITER}},"campaign":"{{campaign}}","unknown":"{{nope}}"}`,
				Checks: []loadtest.CheckSpec{
					{Name: "status is 201", Type: "status", Condition: "eq", Value: "201"},
				},
			},
		},
	)
	require.NoError(t, err)

	registry := metrics.NewRegistry()
	runOnce(t, registry, scenario, 7)

	reqs := captured()
	require.Len(t, reqs, 2)

	assert.Equal(t, "/login", reqs[0].Path)
	assert.Equal(t, "user_7", reqs[0].Body["user"])

	assert.Equal(t, "Bearer tok_42", reqs[1].Header.Get("Authorization"))
	assert.Equal(t, "user_7", reqs[1].Body["userId"])
	assert.Equal(t, float64(0), reqs[1].Body["iter"])
	assert.Equal(t, "BLACK_FRIDAY", reqs[1].Body["campaign"])
	assert.Equal(t, "{{nope}}", reqs[1].Body["unknown"], "unknown placeholders are left untouched")

	cart := reqs[1].Body["cartId"].(string)
	n, err := strconv.Atoi(cart[len("cart_"):])
	require.NoError(t, err)
	assert.True(t, n >= 0 && n < 1000)

	checks, _ := registry.Snapshot(metrics.Checks)
	assert.Equal(t, 1.0, checks.Rate)
}

func TestRequestScenario_TransportErrorFailsIteration(t *testing.T) {
	server, _ := createCapturingServer(t)
	url := server.URL
	server.Close()

	scenario, err := loadtest.NewRequestScenario(nil, []loadtest.RequestSpec{
		{Name: "first", URL: url + "/a"},
		{Name: "second", URL: url + "/b"},
	})
	require.NoError(t, err)

	registry := metrics.NewRegistry()
	runOnce(t, registry, scenario, 1)

	reqs, _ := registry.Snapshot(metrics.HTTPReqs)
	assert.Equal(t, float64(1), reqs.Sum, "the iteration stops at the first transport error")

	errs, _ := registry.Snapshot(metrics.IterationErrors)
	assert.Equal(t, float64(1), errs.Sum)
}

func TestNewRequestScenario_Errors(t *testing.T) {
	_, err := loadtest.NewRequestScenario(nil, nil)
	assert.Error(t, err)

	_, err = loadtest.NewRequestScenario(nil, []loadtest.RequestSpec{{Method: "GET"}})
	assert.Error(t, err)

	_, err = loadtest.NewRequestScenario(nil, []loadtest.RequestSpec{{
		URL:    "http://localhost",
		Checks: []loadtest.CheckSpec{{Type: "bogus"}},
	}})
	assert.Error(t, err)

	_, err = loadtest.NewRequestScenario(nil, []loadtest.RequestSpec{{
		URL:     "http://localhost",
		Extract: []loadtest.ExtractSpec{{Name: "x", Source: "cookie"}},
	}})
	assert.Error(t, err)
}

func TestRequestScenario_RequiresVirtualUser(t *testing.T) {
	scenario, err := loadtest.NewRequestScenario(nil, []loadtest.RequestSpec{{URL: "http://localhost"}})
	require.NoError(t, err)
	assert.Error(t, scenario.Run(context.Background()))
}
