package detect

import (
	"errors"
	"fmt"
)

var (
	// ErrNoProbes is returned when a registry would contain no entries.
	ErrNoProbes = errors.New("no probes registered")
	// ErrDuplicateProbe is returned when two entries share an id.
	ErrDuplicateProbe = errors.New("duplicate probe id")
	// ErrUnknownCategory is returned for a category outside the scoring table.
	ErrUnknownCategory = errors.New("unknown category")
	// ErrNilProbe is returned when an entry has no probe.
	ErrNilProbe = errors.New("nil probe")
)

// DetectionError is the only failure surfaced by the Engine. It wraps the
// configuration problem that prevented the probe registry from being built.
type DetectionError struct {
	Op  string
	Err error
}

func (e *DetectionError) Error() string {
	if e == nil {
		return ""
	}
	if e.Op == "" {
		return fmt.Sprintf("detection: %v", e.Err)
	}
	return fmt.Sprintf("detection: %s: %v", e.Op, e.Err)
}

func (e *DetectionError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}
