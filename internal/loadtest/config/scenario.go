package config

import (
	"time"

	"github.com/wesleyorama2/loadrig/internal/loadtest"
)

// Overrides are command-line values that replace parts of a file.
type Overrides struct {
	VUs      int
	Duration time.Duration
	BaseURL  string
}

// Apply replaces the file's load shape and base URL with any non-zero
// override. Setting VUs or Duration turns the file into a fixed load and
// drops its stages.
func (f *File) Apply(o Overrides) {
	if o.BaseURL != "" {
		f.Settings.BaseURL = o.BaseURL
	}
	if o.VUs <= 0 && o.Duration <= 0 {
		return
	}

	vus, duration := f.VUs, time.Duration(f.Duration)
	if len(f.Stages) > 0 {
		profile := f.profile()
		vus, duration = profile.MaxTarget(), profile.TotalDuration()
	}
	if o.VUs > 0 {
		vus = o.VUs
	}
	if o.Duration > 0 {
		duration = o.Duration
	}

	f.Stages = nil
	f.VUs = vus
	f.Duration = Duration(duration)
}

// Scenario converts the file into a runnable scenario whose body issues the
// file's requests in order.
func (f *File) Scenario() (*loadtest.Scenario, error) {
	body, err := loadtest.NewRequestScenario(f.variables(), f.requestSpecs())
	if err != nil {
		return nil, &loadtest.ConfigurationError{Err: err}
	}

	sc := &loadtest.Scenario{
		Name:       f.Name,
		Stages:     f.profile(),
		Thresholds: f.thresholdSpecs(),
		Body:       body,
		Options:    f.options(),
	}
	if err := sc.Validate(); err != nil {
		return nil, err
	}
	return sc, nil
}

func (f *File) profile() loadtest.Profile {
	if len(f.Stages) == 0 {
		return loadtest.FixedProfile(f.VUs, time.Duration(f.Duration))
	}
	profile := make(loadtest.Profile, len(f.Stages))
	for i, s := range f.Stages {
		profile[i] = loadtest.Stage{
			Duration: time.Duration(s.Duration),
			Target:   s.Target,
			Name:     s.Name,
		}
	}
	return profile
}

func (f *File) thresholdSpecs() map[string][]loadtest.ThresholdSpec {
	if len(f.Thresholds) == 0 {
		return nil
	}
	out := make(map[string][]loadtest.ThresholdSpec, len(f.Thresholds))
	for metric, list := range f.Thresholds {
		out[metric] = []loadtest.ThresholdSpec(list)
	}
	return out
}

func (f *File) options() loadtest.Options {
	opts := loadtest.Options{
		GracefulStop: time.Duration(f.Settings.GracefulStop),
		StopOnError:  f.OnIterationError == "stop",
		MaxRPS:       f.Settings.MaxRPS,
		Timeout:      time.Duration(f.Settings.Timeout),

		MaxIdleConnsPerHost: f.Settings.MaxIdleConnsPerHost,
	}
	if f.ThinkTime != nil {
		opts.ThinkTime = loadtest.ThinkTime{
			Duration: time.Duration(f.ThinkTime.Duration),
			Min:      time.Duration(f.ThinkTime.Min),
			Max:      time.Duration(f.ThinkTime.Max),
		}
	}
	return opts
}

// variables returns the file's variables plus baseUrl.
func (f *File) variables() map[string]string {
	vars := make(map[string]string, len(f.Variables)+2)
	for k, v := range f.Variables {
		vars[k] = v
	}
	if f.Settings.BaseURL != "" {
		vars["baseUrl"] = f.Settings.BaseURL
		vars["baseURL"] = f.Settings.BaseURL
	}
	return vars
}

// requestSpecs converts the requests, merging default headers underneath
// request-specific ones.
func (f *File) requestSpecs() []loadtest.RequestSpec {
	specs := make([]loadtest.RequestSpec, 0, len(f.Requests))
	for _, r := range f.Requests {
		headers := make(map[string]string, len(f.Settings.Headers)+len(r.Headers))
		for k, v := range f.Settings.Headers {
			headers[k] = v
		}
		for k, v := range r.Headers {
			headers[k] = v
		}

		spec := loadtest.RequestSpec{
			Name:    r.Name,
			Method:  r.Method,
			URL:     r.URL,
			Headers: headers,
			Body:    r.Body,
			Timeout: time.Duration(r.Timeout),
			Extract: r.Extract,
		}
		for _, c := range r.Checks {
			spec.Checks = append(spec.Checks, c.Spec())
		}
		specs = append(specs, spec)
	}
	return specs
}
