package config

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/wesleyorama2/loadrig/internal/loadtest"
	"github.com/wesleyorama2/loadrig/pkg/jsonschema"
)

// Format is the encoding of a scenario file.
type Format string

const (
	FormatYAML Format = "yaml"
	FormatJSON Format = "json"
)

//go:embed schema.json
var schemaJSON string

var fileSchema = jsonschema.MustCompile("scenario.schema.json", schemaJSON)

// Schema returns the JSON Schema scenario files are validated against.
func Schema() string {
	return schemaJSON
}

// Load reads and validates a scenario file. The format is chosen by file
// extension, defaulting to YAML.
func Load(path string) (*File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}

	f, err := Parse(data, DetectFormat(path, data))
	if err != nil {
		return nil, err
	}
	if f.Name == "" {
		f.Name = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	}
	return f, nil
}

// DetectFormat guesses the format from the file extension, then from the
// first non-space byte.
func DetectFormat(path string, data []byte) Format {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		return FormatJSON
	case ".yaml", ".yml":
		return FormatYAML
	}
	if trimmed := bytes.TrimSpace(data); len(trimmed) > 0 && trimmed[0] == '{' {
		return FormatJSON
	}
	return FormatYAML
}

// Parse decodes a scenario document, validates it against the schema and
// then semantically. Every problem found is returned together in a
// *loadtest.ConfigurationError.
func Parse(data []byte, format Format) (*File, error) {
	doc, err := decodeGeneric(data, format)
	if err != nil {
		return nil, &loadtest.ConfigurationError{Err: err}
	}

	if schemaErrs := fileSchema.Validate(doc); len(schemaErrs) > 0 {
		errs := &loadtest.ValidationErrors{}
		for _, e := range schemaErrs {
			var fieldErr *jsonschema.FieldError
			if errors.As(e, &fieldErr) {
				errs.Add(fieldErr.Field(), fieldErr.Message)
			} else {
				errs.Add("", e.Error())
			}
		}
		return nil, &loadtest.ConfigurationError{Err: errs}
	}

	f := &File{}
	switch format {
	case FormatJSON:
		err = json.Unmarshal(data, f)
	default:
		err = yaml.Unmarshal(data, f)
	}
	if err != nil {
		return nil, &loadtest.ConfigurationError{Err: fmt.Errorf("failed to parse scenario: %w", err)}
	}

	if err := f.Validate(); err != nil {
		return nil, err
	}
	return f, nil
}

// decodeGeneric decodes data into the value shapes produced by
// encoding/json, which is what the schema validator expects.
func decodeGeneric(data []byte, format Format) (interface{}, error) {
	var doc interface{}

	if format == FormatJSON {
		if err := json.Unmarshal(data, &doc); err != nil {
			return nil, fmt.Errorf("invalid JSON: %w", err)
		}
		return doc, nil
	}

	var raw interface{}
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("invalid YAML: %w", err)
	}
	if raw == nil {
		return nil, errors.New("scenario file is empty")
	}
	b, err := json.Marshal(raw)
	if err != nil {
		return nil, fmt.Errorf("unsupported YAML content: %w", err)
	}
	if err := json.Unmarshal(b, &doc); err != nil {
		return nil, err
	}
	return doc, nil
}
