package dispatch

import (
	"encoding/json"
	"strings"
	"time"
)

// Args are the validated arguments of one call. Accessors assume the schema
// already checked types and fall back to zero values otherwise.
type Args map[string]any

// now is replaced in tests.
var now = time.Now

func (a Args) Has(key string) bool {
	v, ok := a[key]
	return ok && v != nil
}

func (a Args) String(key string) string {
	s, _ := a[key].(string)
	return strings.TrimSpace(s)
}

func (a Args) Int(key string, def int) int {
	if f, ok := toFloat(a[key]); ok {
		return int(f)
	}
	return def
}

func (a Args) Float(key string, def float64) float64 {
	if f, ok := toFloat(a[key]); ok {
		return f
	}
	return def
}

func (a Args) Bool(key string) bool {
	b, _ := a[key].(bool)
	return b
}

// Strings accepts an array of strings or a single comma-separated string.
func (a Args) Strings(key string) []string {
	switch v := a[key].(type) {
	case []string:
		return v
	case []any:
		out := make([]string, 0, len(v))
		for _, x := range v {
			if s, ok := x.(string); ok && s != "" {
				out = append(out, s)
			}
		}
		return out
	case string:
		if v == "" {
			return nil
		}
		var out []string
		for _, part := range strings.Split(v, ",") {
			if p := strings.TrimSpace(part); p != "" {
				out = append(out, p)
			}
		}
		return out
	}
	return nil
}

// Object returns a nested object argument or nil.
func (a Args) Object(key string) map[string]any {
	m, _ := a[key].(map[string]any)
	return m
}

// Raw returns the argument untouched.
func (a Args) Raw(key string) any {
	return a[key]
}

// Time parses an optional ISO-8601 instant. A missing key yields nil.
func (a Args) Time(key string) (*time.Time, error) {
	s := a.String(key)
	if s == "" {
		return nil, nil
	}
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return nil, InvalidArgument(key, "must be an ISO-8601 timestamp such as 2025-01-31T00:00:00Z")
	}
	t = t.UTC()
	return &t, nil
}

// Window resolves a time window from two optional timestamp arguments. A
// missing end defaults to now and a missing start to end minus span. The
// start must not be after the end.
func (a Args) Window(fromKey, toKey string, span time.Duration) (from, to time.Time, err error) {
	fromPtr, err := a.Time(fromKey)
	if err != nil {
		return from, to, err
	}
	toPtr, err := a.Time(toKey)
	if err != nil {
		return from, to, err
	}

	to = now().UTC()
	if toPtr != nil {
		to = *toPtr
	}
	from = to.Add(-span)
	if fromPtr != nil {
		from = *fromPtr
	}
	if from.After(to) {
		return from, to, InvalidArgument(fromKey, "must not be after %s", toKey)
	}
	return from, to, nil
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	}
	return 0, false
}
