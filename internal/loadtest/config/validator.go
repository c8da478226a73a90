package config

import (
	"errors"
	"fmt"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/wesleyorama2/loadrig/internal/loadtest"
	"github.com/wesleyorama2/loadrig/internal/loadtest/metrics"
	"github.com/wesleyorama2/loadrig/internal/loadtest/threshold"
)

var validMethods = map[string]bool{
	"GET": true, "POST": true, "PUT": true, "DELETE": true,
	"PATCH": true, "HEAD": true, "OPTIONS": true,
}

var placeholderRe = regexp.MustCompile(`\{\{[^}]*\}\}`)

// Validate validates the file semantically. Schema checks have already
// been applied by Parse.
//
// Returns nil if valid, or a *loadtest.ConfigurationError wrapping
// *loadtest.ValidationErrors with every problem found.
func (f *File) Validate() error {
	errs := &loadtest.ValidationErrors{}

	f.validateLoad(errs)
	validateSettings(&f.Settings, errs)

	if f.ThinkTime != nil {
		validateThinkTime(f.ThinkTime, errs)
	}

	switch f.OnIterationError {
	case "", "continue", "stop":
	default:
		errs.Addf("onIterationError", "must be continue or stop, got %q", f.OnIterationError)
	}

	if len(f.Requests) == 0 {
		errs.Add("requests", "at least one request is required")
	}
	for i := range f.Requests {
		validateRequest(fmt.Sprintf("requests[%d]", i), &f.Requests[i], errs)
	}

	f.validateThresholds(errs)

	if err := errs.Err(); err != nil {
		return &loadtest.ConfigurationError{Err: err}
	}
	return nil
}

func (f *File) validateLoad(errs *loadtest.ValidationErrors) {
	fixed := f.VUs > 0 || f.Duration > 0

	switch {
	case len(f.Stages) > 0 && fixed:
		errs.Add("stages", "use either stages or vus and duration, not both")
	case len(f.Stages) > 0:
		var stageErrs *loadtest.ValidationErrors
		if err := f.profile().Validate(); errors.As(err, &stageErrs) {
			errs.Errors = append(errs.Errors, stageErrs.Errors...)
		}
	case fixed:
		if f.VUs <= 0 {
			errs.Add("vus", "vus must be greater than 0")
		}
		if f.Duration <= 0 {
			errs.Add("duration", "duration must be greater than 0")
		}
	default:
		errs.Add("stages", "either stages or vus and duration is required")
	}
}

func validateSettings(s *Settings, errs *loadtest.ValidationErrors) {
	if s.BaseURL != "" {
		u, err := url.Parse(s.BaseURL)
		if err != nil {
			errs.Addf("settings.baseUrl", "invalid URL: %v", err)
		} else if u.Scheme != "http" && u.Scheme != "https" {
			errs.Add("settings.baseUrl", "scheme must be http or https")
		}
	}
	if s.Timeout < 0 {
		errs.Add("settings.timeout", "timeout must not be negative")
	}
	if s.GracefulStop < 0 && time.Duration(s.GracefulStop) != loadtest.UnboundedGracefulStop {
		errs.Add("settings.gracefulStop", `gracefulStop must not be negative; use "none" to wait without limit`)
	}
	if s.MaxRPS < 0 {
		errs.Add("settings.maxRps", "maxRps must not be negative")
	}
	if s.MaxIdleConnsPerHost < 0 {
		errs.Add("settings.maxIdleConnsPerHost", "cannot be negative")
	}
}

func validateThinkTime(t *ThinkTimeConfig, errs *loadtest.ValidationErrors) {
	if t.Duration > 0 && (t.Min > 0 || t.Max > 0) {
		errs.Add("thinkTime", "use either duration or min and max, not both")
	}
	if t.Min > t.Max && t.Max > 0 {
		errs.Add("thinkTime", "min must be less than or equal to max")
	}
	if t.Duration < 0 || t.Min < 0 || t.Max < 0 {
		errs.Add("thinkTime", "think time must not be negative")
	}
}

func validateRequest(prefix string, req *RequestConfig, errs *loadtest.ValidationErrors) {
	method := strings.ToUpper(req.Method)
	if method != "" && !validMethods[method] {
		errs.Addf(prefix+".method", "invalid HTTP method: %s", req.Method)
	}

	if req.URL == "" {
		errs.Add(prefix+".url", "url is required")
	} else {
		// Placeholders are resolved per iteration; check the shape only.
		urlToCheck := placeholderRe.ReplaceAllString(req.URL, "placeholder")
		if strings.HasPrefix(req.URL, "{{") {
			urlToCheck = "http://" + urlToCheck
		}
		if _, err := url.Parse(urlToCheck); err != nil {
			errs.Addf(prefix+".url", "invalid URL: %v", err)
		}
	}

	if req.Timeout < 0 {
		errs.Add(prefix+".timeout", "timeout must not be negative")
	}

	for i, c := range req.Checks {
		if _, err := c.Spec().Compile(); err != nil {
			errs.Add(fmt.Sprintf("%s.checks[%d]", prefix, i), err.Error())
		}
	}

	for i, ext := range req.Extract {
		field := fmt.Sprintf("%s.extract[%d]", prefix, i)
		if ext.Name == "" {
			errs.Add(field+".name", "name is required")
		}
		switch ext.Source {
		case "body", "header":
			if ext.Path == "" {
				errs.Addf(field+".path", "path is required for %s extraction", ext.Source)
			}
		case "status":
		default:
			errs.Addf(field+".source", "invalid source: %s", ext.Source)
		}
	}
}

// validateThresholds parses every threshold against the built-in metrics.
func (f *File) validateThresholds(errs *loadtest.ValidationErrors) {
	if len(f.Thresholds) == 0 {
		return
	}
	_, err := threshold.Build(metrics.NewRegistry(), f.thresholdSpecs())
	var thresholdErrs *loadtest.ValidationErrors
	if errors.As(err, &thresholdErrs) {
		errs.Errors = append(errs.Errors, thresholdErrs.Errors...)
	}
}
