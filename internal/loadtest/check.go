package loadtest

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/tidwall/gjson"

	"github.com/wesleyorama2/loadrig/pkg/jsonpath"
)

// Check is a named predicate on a response. Fn returns nil when the check
// passes and an error describing the mismatch otherwise.
type Check struct {
	Name string
	Fn   func(*Response) error
}

func (c Check) evaluate(resp *Response) (err error) {
	if c.Fn == nil {
		return nil
	}
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("check panicked: %v", r)
		}
	}()
	return c.Fn(resp)
}

// StatusIs passes when the response status equals code.
func StatusIs(code int) Check {
	return Check{
		Name: fmt.Sprintf("status is %d", code),
		Fn: func(r *Response) error {
			if r.Status != code {
				return fmt.Errorf("expected status %d, got %d", code, r.Status)
			}
			return nil
		},
	}
}

// BodyContains passes when the body contains s.
func BodyContains(s string) Check {
	return Check{
		Name: fmt.Sprintf("body contains %q", s),
		Fn: func(r *Response) error {
			if !strings.Contains(string(r.Body), s) {
				return fmt.Errorf("body does not contain %q", s)
			}
			return nil
		},
	}
}

// DurationBelow passes when the request took less than d.
func DurationBelow(d time.Duration) Check {
	return Check{
		Name: fmt.Sprintf("duration < %s", d),
		Fn: func(r *Response) error {
			if r.Duration >= d {
				return fmt.Errorf("duration %s exceeds %s", r.Duration, d)
			}
			return nil
		},
	}
}

// JSONPathExists passes when the JSON body has a value at path.
func JSONPathExists(path string) Check {
	return Check{
		Name: fmt.Sprintf("%s exists", path),
		Fn: func(r *Response) error {
			if _, ok := jsonpath.Lookup(r.Body, path); !ok {
				return fmt.Errorf("path %s not found", path)
			}
			return nil
		},
	}
}

// Check types accepted by CheckSpec.
const (
	CheckStatus   = "status"
	CheckBody     = "body"
	CheckHeader   = "header"
	CheckDuration = "duration"
	CheckJSON     = "json"
)

// Check conditions accepted by CheckSpec.
const (
	CondEquals      = "eq"
	CondNotEquals   = "ne"
	CondGreater     = "gt"
	CondLess        = "lt"
	CondGreaterOrEq = "gte"
	CondLessOrEq    = "lte"
	CondContains    = "contains"
	CondMatches     = "matches"
	CondExists      = "exists"
)

// CheckSpec is the declarative form of a check used by scenario files.
//
// Example:
//
//	{name: "has id", type: json, path: "$.id", condition: exists}
//	{name: "fast", type: duration, condition: lt, value: "500ms"}
type CheckSpec struct {
	Name      string `json:"name" yaml:"name"`
	Type      string `json:"type" yaml:"type"`
	Path      string `json:"path,omitempty" yaml:"path,omitempty"`
	Condition string `json:"condition" yaml:"condition"`
	Value     string `json:"value,omitempty" yaml:"value,omitempty"`
}

// Compile validates the spec and returns the equivalent Check.
func (s CheckSpec) Compile() (Check, error) {
	cond := s.Condition
	if cond == "" {
		cond = CondEquals
	}

	switch s.Type {
	case CheckStatus, CheckBody:
	case CheckDuration:
		switch cond {
		case CondGreater, CondLess, CondGreaterOrEq, CondLessOrEq:
		default:
			return Check{}, fmt.Errorf("check %q: duration checks support gt, lt, gte and lte, not %q", s.Name, cond)
		}
	case CheckHeader, CheckJSON:
		if s.Path == "" {
			return Check{}, fmt.Errorf("check %q: path is required for %s checks", s.Name, s.Type)
		}
	default:
		return Check{}, fmt.Errorf("check %q: unknown type %q", s.Name, s.Type)
	}

	match, err := compileCondition(cond, s.Value, s.Type == CheckDuration)
	if err != nil {
		return Check{}, fmt.Errorf("check %q: %w", s.Name, err)
	}

	name := s.Name
	if name == "" {
		name = strings.TrimSpace(fmt.Sprintf("%s %s %s %s", s.Type, s.Path, cond, s.Value))
	}

	extract := s.extractor()
	return Check{
		Name: name,
		Fn: func(r *Response) error {
			actual, found := extract(r)
			return match(actual, found)
		},
	}, nil
}

// extractor returns the response value the check looks at.
func (s CheckSpec) extractor() func(*Response) (string, bool) {
	switch s.Type {
	case CheckStatus:
		return func(r *Response) (string, bool) {
			return strconv.Itoa(r.Status), r.Err == nil
		}
	case CheckBody:
		return func(r *Response) (string, bool) {
			return string(r.Body), len(r.Body) > 0
		}
	case CheckHeader:
		return func(r *Response) (string, bool) {
			if r.Headers == nil {
				return "", false
			}
			values := r.Headers.Values(s.Path)
			if len(values) == 0 {
				return "", false
			}
			return values[0], true
		}
	case CheckDuration:
		return func(r *Response) (string, bool) {
			return strconv.FormatInt(r.Duration.Milliseconds(), 10), true
		}
	default:
		return func(r *Response) (string, bool) {
			result, ok := jsonpath.Lookup(r.Body, s.Path)
			if !ok {
				return "", false
			}
			if result.Type == gjson.Null {
				return "null", true
			}
			return result.String(), true
		}
	}
}

type matcher func(actual string, found bool) error

func compileCondition(cond, expected string, isDuration bool) (matcher, error) {
	switch cond {
	case CondExists:
		return func(_ string, found bool) error {
			if !found {
				return fmt.Errorf("value does not exist")
			}
			return nil
		}, nil

	case CondEquals:
		return func(actual string, _ bool) error {
			if actual != expected {
				return fmt.Errorf("expected %q, got %q", expected, truncate(actual))
			}
			return nil
		}, nil

	case CondNotEquals:
		return func(actual string, _ bool) error {
			if actual == expected {
				return fmt.Errorf("expected value other than %q", expected)
			}
			return nil
		}, nil

	case CondContains:
		return func(actual string, _ bool) error {
			if !strings.Contains(actual, expected) {
				return fmt.Errorf("%q does not contain %q", truncate(actual), expected)
			}
			return nil
		}, nil

	case CondMatches:
		re, err := regexp.Compile(expected)
		if err != nil {
			return nil, fmt.Errorf("invalid regex %q: %w", expected, err)
		}
		return func(actual string, _ bool) error {
			if !re.MatchString(actual) {
				return fmt.Errorf("%q does not match %s", truncate(actual), expected)
			}
			return nil
		}, nil

	case CondGreater, CondLess, CondGreaterOrEq, CondLessOrEq:
		bound, err := parseBound(expected, isDuration)
		if err != nil {
			return nil, err
		}
		return func(actual string, found bool) error {
			if !found {
				return fmt.Errorf("value does not exist")
			}
			v, err := strconv.ParseFloat(strings.TrimSpace(actual), 64)
			if err != nil {
				return fmt.Errorf("%q is not numeric", truncate(actual))
			}
			if !compareNumbers(v, cond, bound) {
				return fmt.Errorf("%v is not %s %s", v, cond, expected)
			}
			return nil
		}, nil
	}

	return nil, fmt.Errorf("unknown condition %q", cond)
}

// parseBound parses a numeric bound; durations are converted to milliseconds.
func parseBound(s string, isDuration bool) (float64, error) {
	if isDuration {
		if d, err := time.ParseDuration(s); err == nil {
			return float64(d) / float64(time.Millisecond), nil
		}
	}
	v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return 0, fmt.Errorf("invalid numeric value %q", s)
	}
	return v, nil
}

func compareNumbers(v float64, cond string, bound float64) bool {
	switch cond {
	case CondGreater:
		return v > bound
	case CondLess:
		return v < bound
	case CondGreaterOrEq:
		return v >= bound
	case CondLessOrEq:
		return v <= bound
	}
	return false
}

// truncate shortens s to at most 64 bytes without splitting a rune.
func truncate(s string) string {
	const max = 64
	if len(s) <= max {
		return s
	}
	cut := max
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut] + "..."
}
