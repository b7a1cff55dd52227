package dispatch

import (
	"errors"
	"testing"
	"time"
)

func TestArgsAccessors(t *testing.T) {
	a := Args{
		"name":  "  evals ",
		"limit": 25.0,
		"score": 0.75,
		"flag":  true,
		"tags":  []any{"a", "", "b"},
		"csv":   "x, y,,z",
		"meta":  map[string]any{"k": "v"},
	}

	if a.String("name") != "evals" {
		t.Errorf("String: got %q", a.String("name"))
	}
	if a.Int("limit", 10) != 25 || a.Int("missing", 10) != 10 {
		t.Error("Int did not return value or default")
	}
	if a.Float("score", 0) != 0.75 {
		t.Error("Float mismatch")
	}
	if !a.Bool("flag") || a.Bool("missing") {
		t.Error("Bool mismatch")
	}
	if got := a.Strings("tags"); len(got) != 2 || got[1] != "b" {
		t.Errorf("Strings array: got %v", got)
	}
	if got := a.Strings("csv"); len(got) != 3 || got[2] != "z" {
		t.Errorf("Strings csv: got %v", got)
	}
	if a.Object("meta")["k"] != "v" {
		t.Error("Object mismatch")
	}
	if !a.Has("name") || a.Has("missing") {
		t.Error("Has mismatch")
	}
}

func TestArgsTime(t *testing.T) {
	a := Args{"from": "2025-01-31T10:00:00+02:00", "bad": "yesterday"}

	got, err := a.Time("from")
	if err != nil {
		t.Fatal(err)
	}
	if !got.Equal(time.Date(2025, 1, 31, 8, 0, 0, 0, time.UTC)) || got.Location() != time.UTC {
		t.Errorf("unexpected time %v", got)
	}

	if _, err := a.Time("bad"); !errors.Is(err, ErrInvalidArguments) {
		t.Errorf("expected ErrInvalidArguments, got %v", err)
	}
	if got, err := a.Time("missing"); got != nil || err != nil {
		t.Errorf("expected nil for missing key, got %v %v", got, err)
	}
}

func TestArgsWindow(t *testing.T) {
	fixed := time.Date(2025, 6, 10, 12, 0, 0, 0, time.UTC)
	now = func() time.Time { return fixed }
	t.Cleanup(func() { now = time.Now })

	from, to, err := Args{}.Window("fromTimestamp", "toTimestamp", 7*24*time.Hour)
	if err != nil {
		t.Fatal(err)
	}
	if !to.Equal(fixed) || !from.Equal(fixed.Add(-7*24*time.Hour)) {
		t.Errorf("unexpected default window %v - %v", from, to)
	}

	_, _, err = Args{
		"fromTimestamp": "2025-02-01T00:00:00Z",
		"toTimestamp":   "2025-01-01T00:00:00Z",
	}.Window("fromTimestamp", "toTimestamp", time.Hour)
	var ae *ArgumentError
	if !errors.As(err, &ae) || ae.Field != "fromTimestamp" {
		t.Errorf("expected ArgumentError on fromTimestamp, got %v", err)
	}

	from, to, err = Args{
		"fromTimestamp": "2025-01-01T00:00:00Z",
		"toTimestamp":   "2025-01-01T00:00:00Z",
	}.Window("fromTimestamp", "toTimestamp", time.Hour)
	if err != nil || !from.Equal(to) {
		t.Errorf("expected empty window to be valid, got %v", err)
	}
}
