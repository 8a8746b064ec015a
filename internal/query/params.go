package query

import (
	"net/url"
	"strings"
)

// Params is a read-only view over request parameters.
type Params url.Values

// Value returns nil when the key is absent, a string for a single value and a
// []string when the key repeats or is sent as "key[]".
func (p Params) Value(key string) any {
	values := append([]string(nil), p[key]...)
	listed, isList := p[key+"[]"]
	values = append(values, listed...)

	switch {
	case len(values) == 0 && !isList:
		return nil
	case isList || len(values) > 1:
		return values
	default:
		return values[0]
	}
}

// First returns the first value of key, trimmed.
func (p Params) First(key string) (string, bool) {
	values, ok := p[key]
	if !ok || len(values) == 0 {
		return "", false
	}
	return strings.TrimSpace(values[0]), true
}

// All returns every non-blank value of key in request order.
func (p Params) All(key string) []string {
	var out []string
	values := append(append([]string(nil), p[key]...), p[key+"[]"]...)
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}
