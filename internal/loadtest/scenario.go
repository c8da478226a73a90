package loadtest

import (
	"errors"
	"fmt"
	"math/rand"
	"time"
)

// Default option values.
const (
	DefaultGracefulStop = 30 * time.Second
	DefaultTick         = 100 * time.Millisecond
	DefaultTimeout      = 60 * time.Second

	// UnboundedGracefulStop waits for in-flight iterations however long
	// they take.
	UnboundedGracefulStop time.Duration = -1
)

// Scenario describes a complete run: a load profile, the work each VU
// repeats and the pass/fail criteria. It must not be modified once a run
// has started.
//
// Example:
//
//	sc := &loadtest.Scenario{
//	    Name:   "checkout",
//	    Stages: loadtest.Profile{{Duration: 30 * time.Second, Target: 20}},
//	    Thresholds: map[string][]loadtest.ThresholdSpec{
//	        "http_req_duration": {{Expression: "p(95)<500"}},
//	    },
//	    Body: loadtest.IterationFunc(func(ctx context.Context) error {
//	        loadtest.DriverFrom(ctx).Get(ctx, "home", baseURL)
//	        return nil
//	    }),
//	}
type Scenario struct {
	// Name of the scenario (for reporting)
	Name string

	// Stages define the concurrency over time
	Stages Profile

	// Thresholds maps metric name to its threshold expressions
	Thresholds map[string][]ThresholdSpec

	// Body is executed repeatedly by every VU
	Body Iteration

	// Options tune execution
	Options Options
}

// ThresholdSpec is one threshold expression with its abort settings.
type ThresholdSpec struct {
	Expression string `json:"threshold" yaml:"threshold"`

	// AbortOnFail stops the run as soon as the threshold fails during
	// periodic evaluation.
	AbortOnFail bool `json:"abortOnFail,omitempty" yaml:"abortOnFail,omitempty"`

	// DelayAbortEval postpones abort decisions after run start.
	DelayAbortEval time.Duration `json:"delayAbortEval,omitempty" yaml:"delayAbortEval,omitempty"`
}

// Options tune how a scenario is executed.
type Options struct {
	// ThinkTime is the pause between iterations of one VU
	ThinkTime ThinkTime

	// GracefulStop bounds how long in-flight iterations may run after the
	// VU has been retired. Zero means the larger of 30s and Timeout; a
	// negative value waits without limit.
	GracefulStop time.Duration

	// StopOnError retires a VU after its first failing iteration
	StopOnError bool

	// MaxRPS caps requests per second across all VUs; 0 means unlimited
	MaxRPS float64

	// Timeout is the default per-request timeout (default 60s)
	Timeout time.Duration

	// MaxIdleConnsPerHost sizes the shared connection pool (default 100)
	MaxIdleConnsPerHost int

	// Tick is the scheduler adjustment interval (default 100ms)
	Tick time.Duration

	// ThresholdInterval is the periodic threshold evaluation interval (default 2s)
	ThresholdInterval time.Duration
}

// WithDefaults returns a copy of o with zero values replaced by defaults.
func (o Options) WithDefaults() Options {
	if o.Tick <= 0 {
		o.Tick = DefaultTick
	}
	if o.Timeout <= 0 {
		o.Timeout = DefaultTimeout
	}
	if o.GracefulStop == 0 {
		o.GracefulStop = max(DefaultGracefulStop, o.Timeout)
	}
	return o
}

// Validate checks option ranges.
func (o Options) Validate(errs *ValidationErrors) {
	if o.MaxRPS < 0 {
		errs.Add("maxRps", "maxRps must not be negative")
	}
	if o.Timeout < 0 {
		errs.Add("timeout", "timeout must not be negative")
	}
	if o.MaxIdleConnsPerHost < 0 {
		errs.Add("maxIdleConnsPerHost", "maxIdleConnsPerHost must not be negative")
	}
	o.ThinkTime.validate("thinkTime", errs)
}

// ThinkTime is the pause between iterations: constant when only Duration is
// set, uniform in [Min, Max] otherwise.
type ThinkTime struct {
	Duration time.Duration
	Min      time.Duration
	Max      time.Duration
}

// Zero reports whether no think time is configured.
func (t ThinkTime) Zero() bool {
	return t.Duration == 0 && t.Min == 0 && t.Max == 0
}

// Next returns the next pause.
func (t ThinkTime) Next(rng *rand.Rand) time.Duration {
	if t.Duration > 0 {
		return t.Duration
	}
	diff := t.Max - t.Min
	if diff <= 0 {
		return t.Min
	}
	return t.Min + time.Duration(rng.Int63n(int64(diff)))
}

func (t ThinkTime) validate(field string, errs *ValidationErrors) {
	if t.Duration < 0 || t.Min < 0 || t.Max < 0 {
		errs.Add(field, "think time must not be negative")
	}
	if t.Max > 0 && t.Min > t.Max {
		errs.Addf(field, "min (%s) must not exceed max (%s)", t.Min, t.Max)
	}
}

// Validate checks everything that can be checked without parsing thresholds.
func (s *Scenario) Validate() error {
	errs := &ValidationErrors{}

	if s.Body == nil {
		errs.Add("body", "an iteration body is required")
	}
	var stageErrs *ValidationErrors
	if err := s.Stages.Validate(); errors.As(err, &stageErrs) {
		errs.Errors = append(errs.Errors, stageErrs.Errors...)
	}
	s.Options.Validate(errs)

	for metric, specs := range s.Thresholds {
		for i, spec := range specs {
			if spec.Expression == "" {
				errs.Add(fmt.Sprintf("thresholds.%s[%d]", metric, i), "threshold expression is empty")
			}
			if spec.DelayAbortEval < 0 {
				errs.Add(fmt.Sprintf("thresholds.%s[%d]", metric, i), "delayAbortEval must not be negative")
			}
		}
	}

	if err := errs.Err(); err != nil {
		return &ConfigurationError{Err: err}
	}
	return nil
}
