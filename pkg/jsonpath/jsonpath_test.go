package jsonpath

import (
	"testing"
)

const orderJSON = `{
	"id": "ord_123",
	"total": 99.5,
	"status": "confirmed",
	"customer": {"id": "user_7", "tier": "gold"},
	"items": [
		{"sku": "A-1", "qty": 2},
		{"sku": "B-9", "qty": 1}
	],
	"paid": true,
	"coupon": null
}`

func TestExtract(t *testing.T) {
	tests := []struct {
		name    string
		path    string
		want    string
		wantErr bool
	}{
		{name: "simple property", path: "$.id", want: "ord_123"},
		{name: "numeric property", path: "$.total", want: "99.5"},
		{name: "boolean property", path: "$.paid", want: "true"},
		{name: "nested property", path: "$.customer.tier", want: "gold"},
		{name: "object in array", path: "$.items[1].sku", want: "B-9"},
		{name: "bracket notation", path: "$['customer']['id']", want: "user_7"},
		{name: "double quoted bracket", path: `$["status"]`, want: "confirmed"},
		{name: "without dollar", path: "items.0.qty", want: "2"},
		{name: "null value", path: "$.coupon", want: "null"},
		{name: "missing property", path: "$.shipping", wantErr: true},
		{name: "index out of range", path: "$.items[5].sku", wantErr: true},
		{name: "empty path", path: "", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Extract([]byte(orderJSON), tt.path)
			if (err != nil) != tt.wantErr {
				t.Fatalf("Extract() error = %v, wantErr %v", err, tt.wantErr)
			}
			if !tt.wantErr && got != tt.want {
				t.Errorf("Extract() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestExtract_InvalidDocument(t *testing.T) {
	if _, err := Extract(nil, "$.id"); err == nil {
		t.Error("Extract() on empty document should fail")
	}
	if _, err := Extract([]byte("<html>"), "$.id"); err == nil {
		t.Error("Extract() on non-JSON document should fail")
	}
}

func TestLookup(t *testing.T) {
	result, ok := Lookup([]byte(orderJSON), "$.items")
	if !ok {
		t.Fatal("Lookup($.items) not found")
	}
	if !result.IsArray() || len(result.Array()) != 2 {
		t.Errorf("Lookup($.items) = %s, want array of 2", result.Raw)
	}

	if _, ok := Lookup([]byte(orderJSON), "$.nope"); ok {
		t.Error("Lookup($.nope) should not be found")
	}
}

func TestToGjson(t *testing.T) {
	tests := []struct {
		path string
		want string
	}{
		{"$", "@this"},
		{"$.a.b", "a.b"},
		{"$[0]", "0"},
		{"$[0].name", "0.name"},
		{"$.a[1][2]", "a.1.2"},
		{"$['a'].b", "a.b"},
		{"a.b", "a.b"},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			if got := ToGjson(tt.path); got != tt.want {
				t.Errorf("ToGjson(%q) = %q, want %q", tt.path, got, tt.want)
			}
		})
	}
}
