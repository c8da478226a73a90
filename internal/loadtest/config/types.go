// Package config loads scenario files (YAML or JSON) and turns them into
// runnable scenarios.
package config

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/wesleyorama2/loadrig/internal/loadtest"
)

// File is the root of a scenario file.
//
// Example YAML:
//
//	name: smoke
//	settings:
//	  baseUrl: http://localhost:3000
//	vus: 1
//	duration: 30s
//	thresholds:
//	  http_req_duration: ["p(95)<500"]
//	requests:
//	  - name: health
//	    method: GET
//	    url: "{{baseUrl}}/health"
type File struct {
	// Name of the scenario (for reporting)
	Name string `json:"name,omitempty" yaml:"name,omitempty"`

	// Description of the scenario (optional)
	Description string `json:"description,omitempty" yaml:"description,omitempty"`

	// Settings contains HTTP and execution settings
	Settings Settings `json:"settings,omitempty" yaml:"settings,omitempty"`

	// Variables are available to every request as {{name}}
	Variables map[string]string `json:"variables,omitempty" yaml:"variables,omitempty"`

	// VUs and Duration describe a fixed load; use Stages to ramp instead
	VUs      int      `json:"vus,omitempty" yaml:"vus,omitempty"`
	Duration Duration `json:"duration,omitempty" yaml:"duration,omitempty"`

	// Stages define the concurrency over time
	Stages []StageConfig `json:"stages,omitempty" yaml:"stages,omitempty"`

	// ThinkTime is the pause between iterations
	ThinkTime *ThinkTimeConfig `json:"thinkTime,omitempty" yaml:"thinkTime,omitempty"`

	// OnIterationError is "continue" (default) or "stop"
	OnIterationError string `json:"onIterationError,omitempty" yaml:"onIterationError,omitempty"`

	// Thresholds maps metric name to its threshold expressions
	Thresholds map[string]ThresholdList `json:"thresholds,omitempty" yaml:"thresholds,omitempty"`

	// Requests are executed in order by every iteration
	Requests []RequestConfig `json:"requests" yaml:"requests"`
}

// Settings contains HTTP and execution settings.
type Settings struct {
	// BaseURL is exposed to requests as {{baseUrl}}
	BaseURL string `json:"baseUrl,omitempty" yaml:"baseUrl,omitempty"`

	// Timeout is the default HTTP request timeout
	Timeout Duration `json:"timeout,omitempty" yaml:"timeout,omitempty"`

	// GracefulStop bounds the drain at the end of the run; "none" waits
	// for every in-flight iteration
	GracefulStop Duration `json:"gracefulStop,omitempty" yaml:"gracefulStop,omitempty"`

	// MaxRPS caps requests per second across all VUs
	MaxRPS float64 `json:"maxRps,omitempty" yaml:"maxRps,omitempty"`

	// MaxIdleConnsPerHost limits idle connections per host
	MaxIdleConnsPerHost int `json:"maxIdleConnsPerHost,omitempty" yaml:"maxIdleConnsPerHost,omitempty"`

	// Headers are default headers applied to all requests
	Headers map[string]string `json:"headers,omitempty" yaml:"headers,omitempty"`
}

// StageConfig defines a single stage.
type StageConfig struct {
	Duration Duration `json:"duration" yaml:"duration"`
	Target   int      `json:"target" yaml:"target"`
	Name     string   `json:"name,omitempty" yaml:"name,omitempty"`
}

// ThinkTimeConfig is a constant pause (duration) or a uniform one (min, max).
type ThinkTimeConfig struct {
	Duration Duration `json:"duration,omitempty" yaml:"duration,omitempty"`
	Min      Duration `json:"min,omitempty" yaml:"min,omitempty"`
	Max      Duration `json:"max,omitempty" yaml:"max,omitempty"`
}

// RequestConfig defines a single HTTP request.
type RequestConfig struct {
	Name    string            `json:"name,omitempty" yaml:"name,omitempty"`
	Method  string            `json:"method,omitempty" yaml:"method,omitempty"`
	URL     string            `json:"url" yaml:"url"`
	Headers map[string]string `json:"headers,omitempty" yaml:"headers,omitempty"`
	Body    string            `json:"body,omitempty" yaml:"body,omitempty"`
	Timeout Duration          `json:"timeout,omitempty" yaml:"timeout,omitempty"`

	Checks  []CheckConfig          `json:"checks,omitempty" yaml:"checks,omitempty"`
	Extract []loadtest.ExtractSpec `json:"extract,omitempty" yaml:"extract,omitempty"`
}

// CheckConfig is a declarative response check.
type CheckConfig struct {
	Name      string `json:"name,omitempty" yaml:"name,omitempty"`
	Type      string `json:"type" yaml:"type"`
	Path      string `json:"path,omitempty" yaml:"path,omitempty"`
	Condition string `json:"condition,omitempty" yaml:"condition,omitempty"`
	Value     Scalar `json:"value,omitempty" yaml:"value,omitempty"`
}

// Spec converts the check into its runtime form.
func (c CheckConfig) Spec() loadtest.CheckSpec {
	return loadtest.CheckSpec{
		Name:      c.Name,
		Type:      c.Type,
		Path:      c.Path,
		Condition: c.Condition,
		Value:     string(c.Value),
	}
}

// Scalar is a string that also accepts JSON numbers and booleans, so that
// `value: 201` and `value: "201"` mean the same thing.
type Scalar string

// UnmarshalJSON implements json.Unmarshaler.
func (s *Scalar) UnmarshalJSON(b []byte) error {
	if len(b) > 0 && b[0] == '"' {
		var str string
		if err := json.Unmarshal(b, &str); err != nil {
			return err
		}
		*s = Scalar(str)
		return nil
	}
	if string(b) == "null" {
		*s = ""
		return nil
	}
	*s = Scalar(bytes.TrimSpace(b))
	return nil
}

// UnmarshalYAML implements yaml.Unmarshaler.
func (s *Scalar) UnmarshalYAML(value *yaml.Node) error {
	if value.Kind != yaml.ScalarNode {
		return fmt.Errorf("line %d: expected a scalar value", value.Line)
	}
	*s = Scalar(value.Value)
	return nil
}

// ThresholdList is the list of thresholds of one metric. Each entry is
// either an expression string or an object with threshold, abortOnFail and
// delayAbortEval.
type ThresholdList []loadtest.ThresholdSpec

type thresholdObject struct {
	Threshold      string   `json:"threshold" yaml:"threshold"`
	AbortOnFail    bool     `json:"abortOnFail,omitempty" yaml:"abortOnFail,omitempty"`
	DelayAbortEval Duration `json:"delayAbortEval,omitempty" yaml:"delayAbortEval,omitempty"`
}

func (o thresholdObject) spec() loadtest.ThresholdSpec {
	return loadtest.ThresholdSpec{
		Expression:     o.Threshold,
		AbortOnFail:    o.AbortOnFail,
		DelayAbortEval: time.Duration(o.DelayAbortEval),
	}
}

// UnmarshalJSON implements json.Unmarshaler.
func (l *ThresholdList) UnmarshalJSON(b []byte) error {
	var raw []json.RawMessage
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}

	out := make(ThresholdList, 0, len(raw))
	for _, item := range raw {
		var expr string
		if err := json.Unmarshal(item, &expr); err == nil {
			out = append(out, loadtest.ThresholdSpec{Expression: expr})
			continue
		}
		var obj thresholdObject
		if err := json.Unmarshal(item, &obj); err != nil {
			return fmt.Errorf("threshold must be a string or an object: %w", err)
		}
		out = append(out, obj.spec())
	}
	*l = out
	return nil
}

// UnmarshalYAML implements yaml.Unmarshaler.
func (l *ThresholdList) UnmarshalYAML(value *yaml.Node) error {
	if value.Kind != yaml.SequenceNode {
		return fmt.Errorf("line %d: thresholds must be a list", value.Line)
	}

	out := make(ThresholdList, 0, len(value.Content))
	for _, item := range value.Content {
		switch item.Kind {
		case yaml.ScalarNode:
			out = append(out, loadtest.ThresholdSpec{Expression: item.Value})
		case yaml.MappingNode:
			var obj thresholdObject
			if err := item.Decode(&obj); err != nil {
				return err
			}
			out = append(out, obj.spec())
		default:
			return fmt.Errorf("line %d: threshold must be a string or an object", item.Line)
		}
	}
	*l = out
	return nil
}

// Duration is a time.Duration that can be unmarshaled from JSON/YAML
// strings such as "30s" or "1m30s". Bare integers are seconds. "none" is
// loadtest.UnboundedGracefulStop; the schema allows it for gracefulStop
// only.
type Duration time.Duration

// MarshalJSON implements json.Marshaler.
func (d Duration) MarshalJSON() ([]byte, error) {
	return []byte(`"` + d.String() + `"`), nil
}

// UnmarshalJSON implements json.Unmarshaler.
func (d *Duration) UnmarshalJSON(b []byte) error {
	s := string(b)
	if len(s) >= 2 && s[0] == '"' && s[len(s)-1] == '"' {
		s = s[1 : len(s)-1]
	}
	return d.parse(s)
}

// MarshalYAML implements yaml.Marshaler.
func (d Duration) MarshalYAML() (interface{}, error) {
	return d.String(), nil
}

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	if value.Kind != yaml.ScalarNode {
		return fmt.Errorf("line %d: expected a duration", value.Line)
	}
	if err := d.parse(value.Value); err != nil {
		return fmt.Errorf("line %d: %w", value.Line, err)
	}
	return nil
}

func (d *Duration) parse(s string) error {
	switch s {
	case "", "null":
		*d = 0
		return nil
	case "none":
		*d = Duration(loadtest.UnboundedGracefulStop)
		return nil
	}
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		*d = Duration(time.Duration(n) * time.Second)
		return nil
	}
	dur, err := time.ParseDuration(s)
	if err != nil {
		return err
	}
	*d = Duration(dur)
	return nil
}

// String returns the duration as a string.
func (d Duration) String() string {
	if time.Duration(d) == loadtest.UnboundedGracefulStop {
		return "none"
	}
	return time.Duration(d).String()
}
