// Package composite fans reports out to several sinks.
package composite

import (
	"context"

	"github.com/rootsense/rootsense/internal/detect"
	"github.com/rootsense/rootsense/internal/store"
)

// Store writes every report to the primary and to each other sink. Queries
// and pruning go to the primary only. A nil primary makes the store
// write-only.
type Store struct {
	primary store.ReportStore
	others  []store.ReportStore
}

func New(primary store.ReportStore, others ...store.ReportStore) *Store {
	return &Store{primary: primary, others: others}
}

// AppendReport writes r to every sink and returns the first error. A failing
// sink does not stop the others.
func (s *Store) AppendReport(ctx context.Context, r *detect.Report) error {
	var firstErr error
	if s.primary != nil {
		if err := s.primary.AppendReport(ctx, r); err != nil {
			firstErr = err
		}
	}
	for _, o := range s.others {
		if err := o.AppendReport(ctx, r); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func (s *Store) QueryReports(ctx context.Context, q store.ReportQuery) ([]*detect.Report, error) {
	if s.primary == nil {
		return nil, store.ErrQueryUnsupported
	}
	return s.primary.QueryReports(ctx, q)
}

// Prune trims the primary when it supports pruning.
func (s *Store) Prune(ctx context.Context, keep int) (int64, error) {
	p, ok := s.primary.(store.Pruner)
	if !ok {
		return 0, nil
	}
	return p.Prune(ctx, keep)
}

func (s *Store) Close() error {
	var firstErr error
	if s.primary != nil {
		if err := s.primary.Close(); err != nil {
			firstErr = err
		}
	}
	for _, o := range s.others {
		if err := o.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
