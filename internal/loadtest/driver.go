package loadtest

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptrace"
	"strconv"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/wesleyorama2/loadrig/internal/loadtest/metrics"
)

// Request is a single HTTP request issued by an iteration.
type Request struct {
	// Name groups requests in metrics; defaults to the URL
	Name string

	Method  string
	URL     string
	Headers map[string]string
	Body    []byte

	// Timeout overrides the driver default when > 0
	Timeout time.Duration

	// Checks are evaluated against the response
	Checks []Check
}

// Response is the outcome of a Request. Status is 0 when the request failed
// at the transport level; Err then holds a *RequestError.
type Response struct {
	Request *Request

	Status  int
	Proto   string
	Headers http.Header
	Body    []byte

	// Duration is the time from sending the request until the whole body
	// was received
	Duration time.Duration

	// Waiting is the time to first byte after the request was written
	Waiting time.Duration

	Err error

	// CheckFailures holds one entry per failed check
	CheckFailures []*CheckFailure
}

// Failed reports whether the request counts as failed in http_req_failed.
func (r *Response) Failed() bool {
	return r.Err != nil || r.Status >= 400
}

// DriverConfig contains HTTP client configuration for a Driver.
type DriverConfig struct {
	// Client to use; a pooled client is created when nil
	Client *http.Client

	// Timeout is the default per-request timeout
	Timeout time.Duration

	// MaxRPS caps requests per second across all VUs; 0 means unlimited
	MaxRPS float64

	// MaxIdleConnsPerHost controls the maximum idle connections per host
	MaxIdleConnsPerHost int

	Logger *zap.Logger
}

// Driver issues HTTP requests and records a sample for every one of them.
// It is shared by all VUs of a run.
type Driver struct {
	client  *http.Client
	metrics *metrics.Registry
	limiter *rate.Limiter
	timeout time.Duration
	logger  *zap.Logger
}

// NewDriver creates a driver recording into registry.
func NewDriver(registry *metrics.Registry, cfg DriverConfig) *Driver {
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.MaxIdleConnsPerHost <= 0 {
		cfg.MaxIdleConnsPerHost = 100
	}

	client := cfg.Client
	if client == nil {
		client = &http.Client{
			Transport: &http.Transport{
				Proxy:               http.ProxyFromEnvironment,
				MaxIdleConns:        1000,
				MaxIdleConnsPerHost: cfg.MaxIdleConnsPerHost,
				IdleConnTimeout:     90 * time.Second,
			},
		}
	}

	d := &Driver{
		client:  client,
		metrics: registry,
		timeout: cfg.Timeout,
		logger:  cfg.Logger,
	}
	if cfg.MaxRPS > 0 {
		burst := int(cfg.MaxRPS)
		if burst < 1 {
			burst = 1
		}
		d.limiter = rate.NewLimiter(rate.Limit(cfg.MaxRPS), burst)
	}
	return d
}

// Get issues a GET request.
func (d *Driver) Get(ctx context.Context, name, url string, checks ...Check) *Response {
	return d.Execute(ctx, &Request{Name: name, Method: http.MethodGet, URL: url, Checks: checks})
}

// Post issues a POST request with a JSON body.
func (d *Driver) Post(ctx context.Context, name, url string, body []byte, checks ...Check) *Response {
	return d.Execute(ctx, &Request{
		Name:    name,
		Method:  http.MethodPost,
		URL:     url,
		Headers: map[string]string{"Content-Type": "application/json"},
		Body:    body,
		Checks:  checks,
	})
}

// Execute sends req and records http_reqs, http_req_duration,
// http_req_waiting, http_req_failed, data_sent and data_received, then runs
// the request's checks. A request interrupted by cancellation of ctx is
// recorded as failed with status 0 and its checks are skipped. A request
// that was never sent because ctx was already done is not recorded.
func (d *Driver) Execute(ctx context.Context, req *Request) *Response {
	resp := &Response{Request: req}
	method := req.Method
	if method == "" {
		method = http.MethodGet
	}

	if ctx.Err() != nil {
		resp.Err = d.requestError(req, method, ctx.Err())
		return resp
	}

	if d.limiter != nil {
		if err := d.limiter.Wait(ctx); err != nil {
			resp.Err = d.requestError(req, method, err)
			return resp
		}
	}

	timeout := req.Timeout
	if timeout <= 0 {
		timeout = d.timeout
	}
	reqCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	// The transport may still be writing the body when Do returns.
	var wrote, firstByte atomic.Int64
	trace := &httptrace.ClientTrace{
		WroteRequest: func(httptrace.WroteRequestInfo) {
			wrote.Store(time.Now().UnixNano())
		},
		GotFirstResponseByte: func() {
			firstByte.Store(time.Now().UnixNano())
		},
	}

	var body io.Reader
	if len(req.Body) > 0 {
		body = bytes.NewReader(req.Body)
	}
	httpReq, err := http.NewRequestWithContext(httptrace.WithClientTrace(reqCtx, trace), method, req.URL, body)
	if err != nil {
		resp.Err = d.requestError(req, method, err)
		d.record(resp, method, 0)
		return resp
	}
	for key, value := range req.Headers {
		httpReq.Header.Set(key, value)
	}

	start := time.Now()
	httpResp, err := d.client.Do(httpReq)
	if err == nil {
		resp.Status = httpResp.StatusCode
		resp.Proto = httpResp.Proto
		resp.Headers = httpResp.Header
		resp.Body, err = io.ReadAll(httpResp.Body)
		httpResp.Body.Close()
	}
	resp.Duration = time.Since(start)

	if w, fb := wrote.Load(), firstByte.Load(); w != 0 && fb > w {
		resp.Waiting = time.Duration(fb - w)
	}
	if err != nil {
		resp.Status = 0
		resp.Err = d.requestError(req, method, err)
	}

	d.record(resp, method, len(req.Body))
	if ctx.Err() != nil {
		return resp
	}
	d.runChecks(resp)
	return resp
}

func (d *Driver) record(resp *Response, method string, sent int) {
	req := resp.Request
	name := req.Name
	if name == "" {
		name = req.URL
	}
	tags := metrics.Tags{
		metrics.TagStatus: strconv.Itoa(resp.Status),
		metrics.TagName:   name,
		metrics.TagMethod: method,
	}

	_ = d.metrics.Add(metrics.HTTPReqs, 1, tags)
	_ = d.metrics.Add(metrics.HTTPReqDuration, metrics.Millis(resp.Duration), tags)
	_ = d.metrics.Add(metrics.HTTPReqWaiting, metrics.Millis(resp.Waiting), tags)
	_ = d.metrics.Add(metrics.HTTPReqFailed, metrics.Bool(resp.Failed()), tags)
	_ = d.metrics.Add(metrics.DataSent, float64(sent), nil)
	_ = d.metrics.Add(metrics.DataReceived, float64(len(resp.Body)), nil)

	if resp.Err != nil {
		d.logger.Debug("request failed", zap.String("name", name), zap.Error(resp.Err))
	}
}

func (d *Driver) runChecks(resp *Response) {
	for _, c := range resp.Request.Checks {
		err := c.evaluate(resp)
		_ = d.metrics.Add(metrics.Checks, metrics.Bool(err == nil), metrics.Tags{metrics.TagCheck: c.Name})
		if err != nil {
			resp.CheckFailures = append(resp.CheckFailures, &CheckFailure{
				Check:   c.Name,
				Request: resp.Request.displayName(),
				Reason:  err.Error(),
			})
		}
	}
}

func (d *Driver) requestError(req *Request, method string, err error) *RequestError {
	return &RequestError{Name: req.Name, Method: method, URL: req.URL, Err: err}
}

// CloseIdleConnections releases pooled connections.
func (d *Driver) CloseIdleConnections() {
	d.client.CloseIdleConnections()
}

func (r *Request) displayName() string {
	if r.Name != "" {
		return r.Name
	}
	return fmt.Sprintf("%s %s", r.Method, r.URL)
}
