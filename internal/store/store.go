// Package store defines where detection reports go after a run. Reports are
// history for operators; the detection engine itself never reads them back.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/rootsense/rootsense/internal/detect"
)

// ErrQueryUnsupported is returned by write-only sinks.
var ErrQueryUnsupported = errors.New("store does not support queries")

type ReportStore interface {
	AppendReport(ctx context.Context, r *detect.Report) error
	QueryReports(ctx context.Context, q ReportQuery) ([]*detect.Report, error)
	Close() error
}

// ReportQuery selects stored reports. Results are newest first unless Asc
// is set.
type ReportQuery struct {
	Since           *time.Time
	Until           *time.Time
	CompromisedOnly bool
	MinSeverity     detect.Severity
	// FiredProbe keeps reports in which the named probe fired.
	FiredProbe string
	Limit           int
	Offset          int
	Asc             bool
}

// Pruner is implemented by stores that can drop old reports.
type Pruner interface {
	Prune(ctx context.Context, keep int) (int64, error)
}

// Match reports whether r satisfies the filtering fields of q. Sinks that
// query in memory use it; paging is applied separately by Page.
func (q ReportQuery) Match(r *detect.Report) bool {
	if r == nil {
		return false
	}
	if q.Since != nil && r.GeneratedAt.Before(*q.Since) {
		return false
	}
	if q.Until != nil && r.GeneratedAt.After(*q.Until) {
		return false
	}
	if q.CompromisedOnly && !r.Verdict {
		return false
	}
	if !SeverityAtLeast(r.Severity, q.MinSeverity) {
		return false
	}
	if q.FiredProbe != "" {
		for _, s := range r.Signals {
			if s.ID == q.FiredProbe && s.Fired() {
				return true
			}
		}
		return false
	}
	return true
}

// Page orders oldest-first input per q and applies offset and limit. A
// non-positive limit defaults to 200.
func (q ReportQuery) Page(oldestFirst []*detect.Report) []*detect.Report {
	out := make([]*detect.Report, len(oldestFirst))
	copy(out, oldestFirst)
	if !q.Asc {
		for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
			out[i], out[j] = out[j], out[i]
		}
	}
	offset := q.Offset
	if offset < 0 {
		offset = 0
	}
	if offset >= len(out) {
		return nil
	}
	out = out[offset:]
	limit := q.Limit
	if limit <= 0 {
		limit = 200
	}
	if limit < len(out) {
		out = out[:limit]
	}
	return out
}
