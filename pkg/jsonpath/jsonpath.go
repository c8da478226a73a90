// Package jsonpath resolves simple JSONPath expressions ($.a.b[0].c) against
// JSON documents using gjson.
package jsonpath

import (
	"fmt"
	"strings"

	"github.com/tidwall/gjson"
)

// Lookup resolves path in doc. The second return value is false when the
// path does not exist.
func Lookup(doc []byte, path string) (gjson.Result, bool) {
	if len(doc) == 0 || path == "" {
		return gjson.Result{}, false
	}
	result := gjson.GetBytes(doc, ToGjson(path))
	return result, result.Exists()
}

// Extract returns the value at path as a string. JSON null is returned as
// "null".
func Extract(doc []byte, path string) (string, error) {
	if len(doc) == 0 {
		return "", fmt.Errorf("empty JSON document")
	}
	if path == "" {
		return "", fmt.Errorf("empty JSONPath expression")
	}
	if !gjson.ValidBytes(doc) {
		return "", fmt.Errorf("response is not valid JSON")
	}

	result, ok := Lookup(doc, path)
	if !ok {
		return "", fmt.Errorf("path not found: %s", path)
	}
	if result.Type == gjson.Null {
		return "null", nil
	}
	return result.String(), nil
}

// ToGjson converts a JSONPath expression to gjson path syntax.
//
//	$.users[0].name  -> users.0.name
//	$['user']['id']  -> user.id
//	$[2]             -> 2
//	$                -> @this
func ToGjson(path string) string {
	path = strings.TrimPrefix(path, "$")
	path = strings.TrimPrefix(path, ".")
	if path == "" {
		return "@this"
	}

	var sb strings.Builder
	for i := 0; i < len(path); i++ {
		c := path[i]
		switch c {
		case '[':
			end := strings.IndexByte(path[i:], ']')
			if end < 0 {
				sb.WriteString(path[i:])
				return sb.String()
			}
			key := strings.Trim(path[i+1:i+end], `'"`)
			if sb.Len() > 0 {
				sb.WriteByte('.')
			}
			sb.WriteString(key)
			i += end
		default:
			sb.WriteByte(c)
		}
	}
	return sb.String()
}
