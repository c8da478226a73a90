package jsonschema

import (
	"encoding/json"
	"errors"
	"testing"
)

const personSchema = `{
	"type": "object",
	"properties": {
		"name": { "type": "string" },
		"age": { "type": "integer", "minimum": 0 },
		"tags": { "type": "array", "items": { "type": "string" } }
	},
	"required": ["name"],
	"additionalProperties": false
}`

func decode(t *testing.T, s string) interface{} {
	t.Helper()
	var doc interface{}
	if err := json.Unmarshal([]byte(s), &doc); err != nil {
		t.Fatalf("invalid test JSON: %v", err)
	}
	return doc
}

func TestSchema_Validate(t *testing.T) {
	schema := MustCompile("person.json", personSchema)

	tests := []struct {
		name      string
		json      string
		wantCount int
	}{
		{"Valid simple object", `{"name": "John Doe", "age": 30}`, 0},
		{"Missing required property", `{"age": 30}`, 1},
		{"Wrong type", `{"name": "John Doe", "age": "thirty"}`, 1},
		{"Several problems", `{"age": -1, "extra": true, "tags": [1]}`, 4},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			errs := schema.Validate(decode(t, tt.json))
			if len(errs) != tt.wantCount {
				t.Errorf("Validate() returned %d errors, want %d: %v", len(errs), tt.wantCount, errs)
			}
		})
	}
}

func TestSchema_FieldLocation(t *testing.T) {
	schema := MustCompile("person.json", personSchema)

	errs := schema.Validate(decode(t, `{"name": "x", "tags": ["a", 2]}`))
	if len(errs) != 1 {
		t.Fatalf("Validate() returned %d errors, want 1: %v", len(errs), errs)
	}

	var fieldErr *FieldError
	if !errors.As(errs[0], &fieldErr) {
		t.Fatalf("error is %T, want *FieldError", errs[0])
	}
	if fieldErr.Location != "/tags/1" {
		t.Errorf("Location = %q, want /tags/1", fieldErr.Location)
	}
	if fieldErr.Field() != "tags[1]" {
		t.Errorf("Field() = %q, want tags[1]", fieldErr.Field())
	}
}

func TestCompile_InvalidSchema(t *testing.T) {
	if _, err := Compile("bad.json", `{"type": "object"`); err == nil {
		t.Error("Compile() expected error for malformed schema")
	}
	if _, err := Compile("bad.json", `{"type": 12}`); err == nil {
		t.Error("Compile() expected error for invalid type keyword")
	}
}

func TestValidationErrors_Error(t *testing.T) {
	var empty ValidationErrors
	if empty.Error() != "" {
		t.Errorf("empty Error() = %q", empty.Error())
	}

	errs := ValidationErrors{&FieldError{Location: "/a", Message: "bad"}, &FieldError{Message: "worse"}}
	if got, want := errs.Error(), "/a: bad; worse"; got != want {
		t.Errorf("Error() = %q, want %q", got, want)
	}
}
