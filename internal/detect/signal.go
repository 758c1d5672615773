// Package detect implements the compromise-detection engine: probe
// orchestration, signal collection, risk scoring and verdict policy.
package detect

import "fmt"

// Category groups signals for scoring. Scoring counts each category once.
type Category string

const (
	CategoryBinaryPresence  Category = "binary_presence"
	CategoryPackagePresence Category = "package_presence"
	CategoryBuildMetadata   Category = "build_metadata"
	CategorySystemProperty  Category = "system_property"
	CategoryMountState      Category = "mount_state"
	CategoryProcessState    Category = "process_state"
	CategoryExternalNative  Category = "external_native"
)

// Categories lists every known category in scoring-table order.
var Categories = []Category{
	CategoryBinaryPresence,
	CategoryPackagePresence,
	CategoryBuildMetadata,
	CategorySystemProperty,
	CategoryMountState,
	CategoryProcessState,
	CategoryExternalNative,
}

// Valid reports whether c is a known category.
func (c Category) Valid() bool {
	_, ok := categoryWeights[c]
	return ok
}

// ParseCategory converts a string into a Category.
func ParseCategory(s string) (Category, error) {
	c := Category(s)
	if !c.Valid() {
		return "", fmt.Errorf("%w: %q", ErrUnknownCategory, s)
	}
	return c, nil
}

// Outcome is the result of a single probe invocation.
type Outcome string

const (
	// Fired means the probe found evidence of compromise.
	Fired Outcome = "fired"
	// NotFired means the probe completed and found nothing.
	NotFired Outcome = "not_fired"
	// Indeterminate means the probe could not complete. It is neither a
	// positive nor a negative result.
	Indeterminate Outcome = "indeterminate"
)

// Result is what a probe returns from one run.
type Result struct {
	Outcome  Outcome
	Evidence string
}

// Detected returns a Fired result carrying evidence.
func Detected(evidence string) Result {
	return Result{Outcome: Fired, Evidence: evidence}
}

// Clean returns a NotFired result.
func Clean() Result {
	return Result{Outcome: NotFired}
}

// Unknown returns an Indeterminate result for the given failure.
func Unknown(err error) Result {
	r := Result{Outcome: Indeterminate}
	if err != nil {
		r.Evidence = err.Error()
	}
	return r
}

// Signal is one atomic piece of evidence attributed to a registry entry.
type Signal struct {
	ID       string   `json:"id" yaml:"id"`
	Category Category `json:"category" yaml:"category"`
	Evidence string   `json:"evidence" yaml:"evidence"`
	Outcome  Outcome  `json:"outcome" yaml:"outcome"`
}

// Fired reports whether the signal carries positive evidence.
func (s Signal) Fired() bool { return s.Outcome == Fired }
