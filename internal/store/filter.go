package store

import (
	"context"

	"github.com/rootsense/rootsense/internal/detect"
)

// Filter selects which reports reach a sink.
type Filter struct {
	CompromisedOnly bool
	MinSeverity     detect.Severity
	// Changes passes only reports whose verdict differs from the previous
	// report seen by the filter.
	Changes bool
}

var severityRank = map[detect.Severity]int{
	detect.SeverityNone:     0,
	detect.SeverityLow:      1,
	detect.SeverityMedium:   2,
	detect.SeverityHigh:     3,
	detect.SeverityCritical: 4,
}

// SeverityAtLeast reports whether s ranks at or above min. An empty min
// admits everything.
func SeverityAtLeast(s, min detect.Severity) bool {
	if min == "" {
		return true
	}
	return severityRank[s] >= severityRank[min]
}

// Match reports whether r passes the static part of the filter.
func (f Filter) Match(r *detect.Report) bool {
	if r == nil {
		return false
	}
	if f.CompromisedOnly && !r.Verdict {
		return false
	}
	return SeverityAtLeast(r.Severity, f.MinSeverity)
}

// FilteredStore wraps a ReportStore and drops reports the filter rejects.
type FilteredStore struct {
	inner  ReportStore
	filter Filter

	seen bool
	last bool
}

// NewFilteredStore wraps inner with f.
func NewFilteredStore(inner ReportStore, f Filter) *FilteredStore {
	return &FilteredStore{inner: inner, filter: f}
}

// AppendReport forwards r when it passes the filter. Not safe for concurrent
// use when Changes is set; the watch loop appends serially.
func (s *FilteredStore) AppendReport(ctx context.Context, r *detect.Report) error {
	if s.filter.Changes && r != nil {
		changed := !s.seen || s.last != r.Verdict
		s.seen, s.last = true, r.Verdict
		if !changed {
			return nil
		}
	}
	if !s.filter.Match(r) {
		return nil
	}
	return s.inner.AppendReport(ctx, r)
}

// QueryReports delegates to the inner store.
func (s *FilteredStore) QueryReports(ctx context.Context, q ReportQuery) ([]*detect.Report, error) {
	return s.inner.QueryReports(ctx, q)
}

// Close closes the inner store.
func (s *FilteredStore) Close() error {
	return s.inner.Close()
}
