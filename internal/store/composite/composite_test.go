package composite

import (
	"context"
	"errors"
	"testing"

	"github.com/rootsense/rootsense/internal/detect"
	"github.com/rootsense/rootsense/internal/store"
)

type fakeStore struct {
	appendErr error
	closeErr  error
	appended  int
	closed    bool
}

func (f *fakeStore) AppendReport(context.Context, *detect.Report) error {
	f.appended++
	return f.appendErr
}

func (f *fakeStore) QueryReports(context.Context, store.ReportQuery) ([]*detect.Report, error) {
	return []*detect.Report{{ID: "x"}}, nil
}

func (f *fakeStore) Close() error { f.closed = true; return f.closeErr }

type pruningStore struct {
	fakeStore
	kept int
}

func (p *pruningStore) Prune(_ context.Context, keep int) (int64, error) {
	p.kept = keep
	return 3, nil
}

func TestAppendReportCollectsFirstError(t *testing.T) {
	primary := &fakeStore{appendErr: errors.New("primary")}
	secondary := &fakeStore{appendErr: errors.New("secondary")}
	s := New(primary, secondary)

	err := s.AppendReport(context.Background(), &detect.Report{ID: "1"})
	if err == nil || err.Error() != "primary" {
		t.Fatalf("expected primary error, got %v", err)
	}
	if primary.appended != 1 || secondary.appended != 1 {
		t.Fatalf("expected both stores to receive append, got %d %d", primary.appended, secondary.appended)
	}
}

func TestQueryUsesPrimary(t *testing.T) {
	s := New(&fakeStore{}, &fakeStore{})
	got, err := s.QueryReports(context.Background(), store.ReportQuery{})
	if err != nil || len(got) != 1 || got[0].ID != "x" {
		t.Fatalf("QueryReports = %v, %v", got, err)
	}
}

func TestWriteOnlyWithoutPrimary(t *testing.T) {
	other := &fakeStore{}
	s := New(nil, other)

	if err := s.AppendReport(context.Background(), &detect.Report{ID: "1"}); err != nil {
		t.Fatal(err)
	}
	if other.appended != 1 {
		t.Fatalf("other appended = %d", other.appended)
	}
	if _, err := s.QueryReports(context.Background(), store.ReportQuery{}); !errors.Is(err, store.ErrQueryUnsupported) {
		t.Fatalf("expected ErrQueryUnsupported, got %v", err)
	}
	if n, err := s.Prune(context.Background(), 5); n != 0 || err != nil {
		t.Fatalf("Prune = %d, %v", n, err)
	}
	if err := s.Close(); err != nil || !other.closed {
		t.Fatalf("Close = %v, closed=%v", err, other.closed)
	}
}

func TestPruneDelegatesToPrimary(t *testing.T) {
	p := &pruningStore{}
	s := New(p)
	n, err := s.Prune(context.Background(), 10)
	if err != nil || n != 3 || p.kept != 10 {
		t.Fatalf("Prune = %d, %v (kept %d)", n, err, p.kept)
	}
}

func TestCloseClosesAll(t *testing.T) {
	primary := &fakeStore{}
	secondary := &fakeStore{closeErr: errors.New("boom")}
	s := New(primary, secondary)
	if err := s.Close(); err == nil || err.Error() != "boom" {
		t.Fatalf("Close err = %v", err)
	}
	if !primary.closed || !secondary.closed {
		t.Fatal("expected all stores closed")
	}
}
