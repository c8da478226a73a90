package loadtest

import (
	"context"
	"fmt"
	"math/rand"
	"net/http"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/wesleyorama2/loadrig/pkg/jsonpath"
)

// RequestSpec defines a single HTTP request of a declarative scenario.
// URL, header values and Body may contain {{placeholders}}.
type RequestSpec struct {
	// Name for this request (used in metrics)
	Name string `json:"name,omitempty" yaml:"name,omitempty"`

	Method  string            `json:"method" yaml:"method"`
	URL     string            `json:"url" yaml:"url"`
	Headers map[string]string `json:"headers,omitempty" yaml:"headers,omitempty"`
	Body    string            `json:"body,omitempty" yaml:"body,omitempty"`

	// Timeout for this specific request (optional)
	Timeout time.Duration `json:"timeout,omitempty" yaml:"timeout,omitempty"`

	Checks []CheckSpec `json:"checks,omitempty" yaml:"checks,omitempty"`

	// Extract stores response values in the VU's variables for later requests
	Extract []ExtractSpec `json:"extract,omitempty" yaml:"extract,omitempty"`
}

// ExtractSpec defines how to extract a variable from a response.
type ExtractSpec struct {
	// Name of the variable to store
	Name string `json:"name" yaml:"name"`

	// Source: "body", "header", "status"
	Source string `json:"source" yaml:"source"`

	// Path: header name, or JSONPath for body
	Path string `json:"path,omitempty" yaml:"path,omitempty"`
}

type compiledRequest struct {
	spec   RequestSpec
	checks []Check
}

// RequestScenario is an Iteration that issues a fixed list of requests in
// order. A transport failure ends the iteration with a *RequestError;
// failed checks do not.
//
// Placeholders:
//
//	{{name}}        scenario variable, or a value extracted earlier by this VU
//	{{__VU}}        VU id
//	{{__ITER}}      iteration number of this VU
//	{{randInt N}}   random integer in [0, N)
//	{{uuid}}        random UUID
type RequestScenario struct {
	variables map[string]string
	requests  []compiledRequest
}

// NewRequestScenario compiles the requests and their checks.
func NewRequestScenario(variables map[string]string, specs []RequestSpec) (*RequestScenario, error) {
	if len(specs) == 0 {
		return nil, fmt.Errorf("at least one request is required")
	}

	rs := &RequestScenario{variables: variables}
	for i, spec := range specs {
		if spec.Method == "" {
			spec.Method = http.MethodGet
		}
		spec.Method = strings.ToUpper(spec.Method)
		if spec.URL == "" {
			return nil, fmt.Errorf("requests[%d]: url is required", i)
		}

		cr := compiledRequest{spec: spec}
		for _, cs := range spec.Checks {
			c, err := cs.Compile()
			if err != nil {
				return nil, fmt.Errorf("requests[%d]: %w", i, err)
			}
			cr.checks = append(cr.checks, c)
		}
		for j, ex := range spec.Extract {
			switch ex.Source {
			case "body", "header", "status":
			default:
				return nil, fmt.Errorf("requests[%d].extract[%d]: unknown source %q", i, j, ex.Source)
			}
			if ex.Name == "" {
				return nil, fmt.Errorf("requests[%d].extract[%d]: name is required", i, j)
			}
		}
		rs.requests = append(rs.requests, cr)
	}
	return rs, nil
}

// Run executes every request once.
func (rs *RequestScenario) Run(ctx context.Context) error {
	st := StateFrom(ctx)
	if st == nil || st.Driver == nil {
		return fmt.Errorf("request scenario must run inside a virtual user")
	}

	for _, cr := range rs.requests {
		req := &Request{
			Name:    cr.spec.Name,
			Method:  cr.spec.Method,
			URL:     rs.render(cr.spec.URL, st),
			Timeout: cr.spec.Timeout,
			Checks:  cr.checks,
		}
		if len(cr.spec.Headers) > 0 {
			req.Headers = make(map[string]string, len(cr.spec.Headers))
			for k, v := range cr.spec.Headers {
				req.Headers[k] = rs.render(v, st)
			}
		}
		if cr.spec.Body != "" {
			req.Body = []byte(rs.render(cr.spec.Body, st))
		}

		resp := st.Driver.Execute(ctx, req)
		if err := ctx.Err(); err != nil {
			return err
		}
		if resp.Err != nil {
			return resp.Err
		}

		extract(cr.spec.Extract, resp, st.Vars)
	}
	return nil
}

var placeholderRe = regexp.MustCompile(`\{\{\s*([^{}]+?)\s*\}\}`)

// render replaces {{placeholders}}. Unknown names are left untouched.
func (rs *RequestScenario) render(input string, st *State) string {
	if !strings.Contains(input, "{{") {
		return input
	}
	return placeholderRe.ReplaceAllStringFunc(input, func(m string) string {
		expr := placeholderRe.FindStringSubmatch(m)[1]
		if v, ok := resolve(expr, rs.variables, st); ok {
			return v
		}
		return m
	})
}

func resolve(expr string, variables map[string]string, st *State) (string, bool) {
	switch expr {
	case "__VU":
		return strconv.Itoa(st.VU), true
	case "__ITER":
		return strconv.FormatInt(st.Iteration, 10), true
	case "uuid":
		return uuid.NewString(), true
	}

	if rest, ok := strings.CutPrefix(expr, "randInt "); ok {
		n, err := strconv.Atoi(strings.TrimSpace(rest))
		if err != nil || n <= 0 {
			return "", false
		}
		return strconv.Itoa(randIntn(st.Rand, n)), true
	}

	// Values extracted by this VU take priority over scenario variables.
	if v, ok := st.Vars[expr]; ok {
		return v, true
	}
	if v, ok := variables[expr]; ok {
		return v, true
	}
	return "", false
}

func randIntn(rng *rand.Rand, n int) int {
	if rng == nil {
		return rand.Intn(n)
	}
	return rng.Intn(n)
}

func extract(specs []ExtractSpec, resp *Response, vars map[string]string) {
	for _, ex := range specs {
		var value string
		switch ex.Source {
		case "header":
			if resp.Headers != nil {
				value = resp.Headers.Get(ex.Path)
			}
		case "status":
			value = strconv.Itoa(resp.Status)
		case "body":
			if ex.Path == "" {
				value = string(resp.Body)
			} else if v, err := jsonpath.Extract(resp.Body, ex.Path); err == nil {
				value = v
			}
		}
		if value != "" {
			vars[ex.Name] = value
		}
	}
}
