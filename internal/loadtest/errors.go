package loadtest

import (
	"fmt"
	"strings"
)

// ValidationError represents a single configuration problem.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("validation error on field '%s': %s", e.Field, e.Message)
	}
	return fmt.Sprintf("validation error: %s", e.Message)
}

// ValidationErrors is a collection of validation errors.
type ValidationErrors struct {
	Errors []*ValidationError
}

func (e *ValidationErrors) Error() string {
	if len(e.Errors) == 0 {
		return "no validation errors"
	}
	if len(e.Errors) == 1 {
		return e.Errors[0].Error()
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("%d validation errors:\n", len(e.Errors)))
	for i, err := range e.Errors {
		sb.WriteString(fmt.Sprintf("  %d. %s\n", i+1, err.Error()))
	}
	return sb.String()
}

// Add adds an error to the collection.
func (e *ValidationErrors) Add(field, message string) {
	e.Errors = append(e.Errors, &ValidationError{Field: field, Message: message})
}

// Addf adds a formatted error to the collection.
func (e *ValidationErrors) Addf(field, format string, args ...any) {
	e.Add(field, fmt.Sprintf(format, args...))
}

// HasErrors returns true if there are any errors.
func (e *ValidationErrors) HasErrors() bool {
	return len(e.Errors) > 0
}

// Err returns the collection as an error, or nil when it is empty.
func (e *ValidationErrors) Err() error {
	if !e.HasErrors() {
		return nil
	}
	return e
}

// ConfigurationError is returned before a run starts when the scenario,
// profile or thresholds are invalid. Nothing has been executed.
type ConfigurationError struct {
	Err error
}

func (e *ConfigurationError) Error() string {
	return "configuration error: " + e.Err.Error()
}

func (e *ConfigurationError) Unwrap() error {
	return e.Err
}

// RequestError describes a transport-level failure. The request is still
// recorded with status 0.
type RequestError struct {
	Name   string
	Method string
	URL    string
	Err    error
}

func (e *RequestError) Error() string {
	name := e.Name
	if name == "" {
		name = e.Method + " " + e.URL
	}
	return fmt.Sprintf("request %s failed: %v", name, e.Err)
}

func (e *RequestError) Unwrap() error {
	return e.Err
}

// CheckFailure is a failed response check. It is recorded in the checks
// metric and never aborts the iteration.
type CheckFailure struct {
	Check   string
	Request string
	Reason  string
}

func (e *CheckFailure) Error() string {
	if e.Reason == "" {
		return fmt.Sprintf("check %q failed on %s", e.Check, e.Request)
	}
	return fmt.Sprintf("check %q failed on %s: %s", e.Check, e.Request, e.Reason)
}

// ThresholdBreach lists the thresholds that did not hold at the end of a run.
type ThresholdBreach struct {
	Failed []string
}

func (e *ThresholdBreach) Error() string {
	if len(e.Failed) == 1 {
		return "threshold failed: " + e.Failed[0]
	}
	return fmt.Sprintf("%d thresholds failed: %s", len(e.Failed), strings.Join(e.Failed, "; "))
}
