package metrics

import (
	"context"

	"github.com/rootsense/rootsense/internal/detect"
	"github.com/rootsense/rootsense/internal/store"
)

type wrappedReportStore struct {
	inner store.ReportStore
	c     *Collector
}

// WrapReportStore counts appends and append failures on c.
func WrapReportStore(inner store.ReportStore, c *Collector) store.ReportStore {
	if inner == nil {
		return nil
	}
	if c == nil {
		c = New()
	}
	return &wrappedReportStore{inner: inner, c: c}
}

func (w *wrappedReportStore) AppendReport(ctx context.Context, r *detect.Report) error {
	if err := w.inner.AppendReport(ctx, r); err != nil {
		w.c.IncStoreError()
		return err
	}
	w.c.IncStoreAppend()
	return nil
}

func (w *wrappedReportStore) QueryReports(ctx context.Context, q store.ReportQuery) ([]*detect.Report, error) {
	return w.inner.QueryReports(ctx, q)
}

// Prune forwards to the inner store when it supports pruning.
func (w *wrappedReportStore) Prune(ctx context.Context, keep int) (int64, error) {
	if p, ok := w.inner.(store.Pruner); ok {
		return p.Prune(ctx, keep)
	}
	return 0, nil
}

func (w *wrappedReportStore) Close() error { return w.inner.Close() }
