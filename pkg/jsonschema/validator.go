// Package jsonschema validates decoded JSON documents against a JSON Schema.
package jsonschema

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// ValidationErrors represents a collection of validation errors
type ValidationErrors []error

// Error implements the error interface for ValidationErrors
func (ve ValidationErrors) Error() string {
	if len(ve) == 0 {
		return ""
	}

	var sb strings.Builder
	for i, err := range ve {
		if i > 0 {
			sb.WriteString("; ")
		}
		sb.WriteString(err.Error())
	}
	return sb.String()
}

// FieldError is a schema violation at one location of the document.
type FieldError struct {
	// Location is a JSON pointer such as "/stages/0/target"
	Location string
	Message  string
}

func (e *FieldError) Error() string {
	if e.Location == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Location, e.Message)
}

// Field returns the location in dotted form, e.g. "stages[0].target".
func (e *FieldError) Field() string {
	parts := strings.Split(strings.TrimPrefix(e.Location, "/"), "/")
	var sb strings.Builder
	for _, p := range parts {
		if p == "" {
			continue
		}
		if isIndex(p) {
			sb.WriteString("[" + p + "]")
			continue
		}
		if sb.Len() > 0 {
			sb.WriteByte('.')
		}
		sb.WriteString(strings.ReplaceAll(strings.ReplaceAll(p, "~1", "/"), "~0", "~"))
	}
	return sb.String()
}

func isIndex(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return s != ""
}

// Schema is a compiled schema, safe for concurrent use.
type Schema struct {
	schema *jsonschema.Schema
}

// Compile compiles schemaStr. name is only used in error messages.
func Compile(name, schemaStr string) (*Schema, error) {
	compiler := jsonschema.NewCompiler()
	compiler.Draft = jsonschema.Draft7

	if err := compiler.AddResource(name, strings.NewReader(schemaStr)); err != nil {
		return nil, fmt.Errorf("invalid schema: %w", err)
	}
	schema, err := compiler.Compile(name)
	if err != nil {
		return nil, fmt.Errorf("invalid schema: %w", err)
	}
	return &Schema{schema: schema}, nil
}

// MustCompile is like Compile but panics on error.
func MustCompile(name, schemaStr string) *Schema {
	s, err := Compile(name, schemaStr)
	if err != nil {
		panic(err)
	}
	return s
}

// Validate validates a document decoded with encoding/json (maps, slices,
// float64, string, bool, nil). It returns nil when the document is valid.
func (s *Schema) Validate(doc interface{}) ValidationErrors {
	err := s.schema.Validate(doc)
	if err == nil {
		return nil
	}

	var validationErr *jsonschema.ValidationError
	if !errors.As(err, &validationErr) {
		return ValidationErrors{err}
	}
	return extractValidationErrors(validationErr)
}

// extractValidationErrors flattens the leaf errors of a jsonschema.ValidationError
func extractValidationErrors(err *jsonschema.ValidationError) ValidationErrors {
	var leaves []*FieldError
	collectLeaves(err, &leaves)

	sort.SliceStable(leaves, func(i, j int) bool { return leaves[i].Location < leaves[j].Location })

	seen := make(map[string]bool)
	var errs ValidationErrors
	for _, leaf := range leaves {
		key := leaf.Error()
		if seen[key] {
			continue
		}
		seen[key] = true
		errs = append(errs, leaf)
	}
	return errs
}

func collectLeaves(err *jsonschema.ValidationError, out *[]*FieldError) {
	if len(err.Causes) == 0 {
		*out = append(*out, &FieldError{Location: err.InstanceLocation, Message: err.Message})
		return
	}
	for _, cause := range err.Causes {
		collectLeaves(cause, out)
	}
}
