package sqlite

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/rootsense/rootsense/internal/detect"
	"github.com/rootsense/rootsense/internal/store"
)

func report(id string, ts time.Time, score int, fired ...string) *detect.Report {
	r := &detect.Report{
		ID:          id,
		RiskScore:   score,
		Severity:    detect.SeverityFor(score),
		Verdict:     len(fired) > 0,
		Policy:      detect.PolicyAny,
		GeneratedAt: ts,
	}
	for _, f := range fired {
		r.Signals = append(r.Signals, detect.Signal{ID: f, Category: detect.CategoryBinaryPresence, Evidence: "/sbin/su", Outcome: detect.Fired})
	}
	r.Signals = append(r.Signals, detect.Signal{ID: "rw_system_partition", Category: detect.CategoryMountState, Outcome: detect.NotFired})
	r.Summary = detect.Summarize(r.Signals)
	return r
}

func openTemp(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "nested", "history.db"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestAppendAndQueryReports(t *testing.T) {
	s := openTemp(t)
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	if err := s.AppendReport(ctx, report("r1", base, 0)); err != nil {
		t.Fatalf("AppendReport: %v", err)
	}
	if err := s.AppendReport(ctx, report("r2", base.Add(time.Minute), 30, "found_su_binary")); err != nil {
		t.Fatalf("AppendReport: %v", err)
	}
	if err := s.AppendReport(ctx, report("r3", base.Add(2*time.Minute), 80, "found_su_binary", "detected_magisk")); err != nil {
		t.Fatalf("AppendReport: %v", err)
	}

	got, err := s.QueryReports(ctx, store.ReportQuery{})
	if err != nil {
		t.Fatalf("QueryReports: %v", err)
	}
	if len(got) != 3 || got[0].ID != "r3" || got[2].ID != "r1" {
		t.Fatalf("unexpected order: %+v", ids(got))
	}
	if len(got[0].Signals) != 3 || got[0].Summary.Fired != 2 || !got[0].GeneratedAt.Equal(base.Add(2*time.Minute)) {
		t.Fatalf("report did not round-trip: %+v", got[0])
	}

	got, _ = s.QueryReports(ctx, store.ReportQuery{Asc: true, Limit: 1})
	if len(got) != 1 || got[0].ID != "r1" {
		t.Fatalf("asc limit: %v", ids(got))
	}

	got, _ = s.QueryReports(ctx, store.ReportQuery{CompromisedOnly: true})
	if fmt.Sprint(ids(got)) != "[r3 r2]" {
		t.Fatalf("compromised only: %v", ids(got))
	}

	got, _ = s.QueryReports(ctx, store.ReportQuery{MinSeverity: detect.SeverityHigh})
	if fmt.Sprint(ids(got)) != "[r3]" {
		t.Fatalf("min severity: %v", ids(got))
	}

	got, _ = s.QueryReports(ctx, store.ReportQuery{FiredProbe: "detected_magisk"})
	if fmt.Sprint(ids(got)) != "[r3]" {
		t.Fatalf("fired probe: %v", ids(got))
	}

	since := base.Add(30 * time.Second)
	until := base.Add(90 * time.Second)
	got, _ = s.QueryReports(ctx, store.ReportQuery{Since: &since, Until: &until})
	if fmt.Sprint(ids(got)) != "[r2]" {
		t.Fatalf("time window: %v", ids(got))
	}

	got, _ = s.QueryReports(ctx, store.ReportQuery{Offset: 1, Limit: 1})
	if fmt.Sprint(ids(got)) != "[r2]" {
		t.Fatalf("offset: %v", ids(got))
	}
}

func TestAppendReportRejectsBadInput(t *testing.T) {
	s := openTemp(t)
	ctx := context.Background()
	if err := s.AppendReport(ctx, nil); err == nil {
		t.Fatal("expected error for nil report")
	}
	if err := s.AppendReport(ctx, &detect.Report{}); err == nil {
		t.Fatal("expected error for report without id")
	}
	r := report("dup", time.Now().UTC(), 30, "found_su_binary")
	if err := s.AppendReport(ctx, r); err != nil {
		t.Fatalf("AppendReport: %v", err)
	}
	if err := s.AppendReport(ctx, r); err == nil {
		t.Fatal("expected duplicate id to fail")
	}
}

func TestPruneAndFiredCounts(t *testing.T) {
	s := openTemp(t)
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < 5; i++ {
		if err := s.AppendReport(ctx, report(fmt.Sprintf("r%d", i), base.Add(time.Duration(i)*time.Second), 30, "found_su_binary")); err != nil {
			t.Fatalf("AppendReport: %v", err)
		}
	}

	counts, err := s.FiredCounts(ctx)
	if err != nil {
		t.Fatalf("FiredCounts: %v", err)
	}
	if counts["found_su_binary"] != 5 {
		t.Fatalf("counts = %v", counts)
	}

	n, err := s.Prune(ctx, 2)
	if err != nil {
		t.Fatalf("Prune: %v", err)
	}
	if n != 3 {
		t.Fatalf("pruned %d, want 3", n)
	}
	got, _ := s.QueryReports(ctx, store.ReportQuery{})
	if fmt.Sprint(ids(got)) != "[r4 r3]" {
		t.Fatalf("after prune: %v", ids(got))
	}
	counts, _ = s.FiredCounts(ctx)
	if counts["found_su_binary"] != 2 {
		t.Fatalf("fired signals not cascaded: %v", counts)
	}

	if n, _ := s.Prune(ctx, 0); n != 0 {
		t.Fatalf("prune 0 removed %d", n)
	}
}

func TestOpenRejectsEmptyPath(t *testing.T) {
	if _, err := Open(""); err == nil {
		t.Fatal("expected error")
	}
}

func TestStoreSatisfiesInterfaces(t *testing.T) {
	var _ store.ReportStore = (*Store)(nil)
	var _ store.Pruner = (*Store)(nil)
}

func ids(rs []*detect.Report) []string {
	out := make([]string, len(rs))
	for i, r := range rs {
		out[i] = r.ID
	}
	return out
}
