package detect

import (
	"fmt"
	"time"
)

// Entry pairs a probe with the identity and category of the signal it emits.
type Entry struct {
	ID          string
	Category    Category
	Description string
	Probe       Probe

	// Timeout overrides the collector default for this entry when non-zero.
	Timeout time.Duration
}

// Weight returns the scoring weight of the entry's category.
func (e Entry) Weight() int { return CategoryWeight(e.Category) }

// Registry is an ordered, immutable probe catalog.
type Registry struct {
	entries []Entry
}

// NewRegistry validates entries and returns a registry preserving their order.
// Ids must be unique, categories known and probes non-nil.
func NewRegistry(entries ...Entry) (*Registry, error) {
	if len(entries) == 0 {
		return nil, ErrNoProbes
	}
	seen := make(map[string]struct{}, len(entries))
	out := make([]Entry, len(entries))
	for i, e := range entries {
		if e.ID == "" {
			return nil, fmt.Errorf("entry %d: empty probe id", i)
		}
		if _, dup := seen[e.ID]; dup {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateProbe, e.ID)
		}
		if !e.Category.Valid() {
			return nil, fmt.Errorf("probe %s: %w: %q", e.ID, ErrUnknownCategory, e.Category)
		}
		if e.Probe == nil {
			return nil, fmt.Errorf("probe %s: %w", e.ID, ErrNilProbe)
		}
		if e.Timeout < 0 {
			return nil, fmt.Errorf("probe %s: negative timeout", e.ID)
		}
		seen[e.ID] = struct{}{}
		out[i] = e
	}
	return &Registry{entries: out}, nil
}

// Len returns the number of entries.
func (r *Registry) Len() int {
	if r == nil {
		return 0
	}
	return len(r.entries)
}

// Entries returns a copy of the entries in registry order.
func (r *Registry) Entries() []Entry {
	if r == nil {
		return nil
	}
	out := make([]Entry, len(r.entries))
	copy(out, r.entries)
	return out
}

// Lookup returns the entry with the given id.
func (r *Registry) Lookup(id string) (Entry, bool) {
	if r == nil {
		return Entry{}, false
	}
	for _, e := range r.entries {
		if e.ID == id {
			return e, true
		}
	}
	return Entry{}, false
}
