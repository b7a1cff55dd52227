// Package mode implements the process-wide read-only / read-write capability
// gate.
package mode

import (
	"errors"
	"fmt"
	"strings"
)

// Mode is fixed for the lifetime of the process.
type Mode string

const (
	ReadOnly  Mode = "readonly"
	ReadWrite Mode = "readwrite"
)

// WritePrefix marks the visible name of every mutating operation in
// read-write mode.
const WritePrefix = "write_"

// ConfirmArg is the argument destructive operations must set to true.
const ConfirmArg = "confirm"

var (
	// ErrModeViolation is returned when a call is not allowed in the current
	// mode or does not use the operation's visible name.
	ErrModeViolation = errors.New("mode violation")
	// ErrConfirmationRequired is returned when a destructive call lacks
	// confirm=true.
	ErrConfirmationRequired = errors.New("confirmation required")
)

// Parse converts a config value into a Mode. Empty means ReadOnly.
func Parse(s string) (Mode, error) {
	switch Mode(strings.ToLower(strings.TrimSpace(s))) {
	case "", ReadOnly:
		return ReadOnly, nil
	case ReadWrite:
		return ReadWrite, nil
	default:
		return "", fmt.Errorf("unknown mode %q", s)
	}
}

// Capability is what the gate needs to know about an operation.
type Capability struct {
	Name        string
	Mutating    bool
	Destructive bool
}

// Gate filters and authorizes operations for one mode.
type Gate struct {
	mode Mode
}

// NewGate creates a gate. Any value other than ReadWrite yields a read-only
// gate.
func NewGate(m Mode) *Gate {
	if m != ReadWrite {
		m = ReadOnly
	}
	return &Gate{mode: m}
}

// Mode returns the gate's mode.
func (g *Gate) Mode() Mode {
	return g.mode
}

// VisibleName is the name under which c is exposed in this mode.
func (g *Gate) VisibleName(c Capability) string {
	if g.mode == ReadWrite && c.Mutating {
		return WritePrefix + c.Name
	}
	return c.Name
}

// Visible returns the capabilities callable in this mode, renamed to their
// visible names, in input order.
func (g *Gate) Visible(caps []Capability) []Capability {
	out := make([]Capability, 0, len(caps))
	for _, c := range caps {
		if c.Mutating && g.mode == ReadOnly {
			continue
		}
		c.Name = g.VisibleName(c)
		out = append(out, c)
	}
	return out
}

// BaseName strips the write prefix so the caller can look up the operation
// a requested name refers to.
func (g *Gate) BaseName(requested string) string {
	return strings.TrimPrefix(requested, WritePrefix)
}

// Authorize checks that requested is the visible name of c in this mode.
// It is evaluated on every call regardless of what was listed.
func (g *Gate) Authorize(requested string, c Capability) error {
	if c.Mutating && g.mode == ReadOnly {
		return fmt.Errorf("%w: %s modifies data and the server is in read-only mode", ErrModeViolation, c.Name)
	}
	if requested != g.VisibleName(c) {
		return fmt.Errorf("%w: %s must be called as %s", ErrModeViolation, requested, g.VisibleName(c))
	}
	return nil
}

// Confirm rejects destructive calls that do not carry confirm=true. It must
// run before any network call.
func (g *Gate) Confirm(c Capability, args map[string]any) error {
	if !c.Destructive {
		return nil
	}
	if v, ok := args[ConfirmArg].(bool); ok && v {
		return nil
	}
	return fmt.Errorf("%w: %s deletes data; call again with %s=true", ErrConfirmationRequired, g.VisibleName(c), ConfirmArg)
}
