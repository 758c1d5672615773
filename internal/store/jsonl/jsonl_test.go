package jsonl

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/rootsense/rootsense/internal/detect"
	"github.com/rootsense/rootsense/internal/store"
)

func rep(id string, score int, at time.Time) *detect.Report {
	return &detect.Report{ID: id, RiskScore: score, Severity: detect.SeverityFor(score), Verdict: score > 0, GeneratedAt: at}
}

func TestAppendAndRotate(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "reports.log")

	st, err := New(path, 1, 2) // 1 MB limit to make rotation feasible
	if err != nil {
		t.Fatalf("New error: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })

	if err := st.AppendReport(context.Background(), rep("1", 0, time.Now())); err != nil {
		t.Fatalf("AppendReport: %v", err)
	}

	// Force size beyond threshold then trigger rotation on next append.
	big := rep("2", 30, time.Now())
	big.Signals = []detect.Signal{{ID: "found_su_binary", Category: detect.CategoryBinaryPresence, Outcome: detect.Fired, Evidence: strings.Repeat("x", 2<<20)}}
	if err := st.AppendReport(context.Background(), big); err != nil {
		t.Fatalf("AppendReport large: %v", err)
	}
	if err := st.AppendReport(context.Background(), rep("3", 0, time.Now())); err != nil {
		t.Fatalf("AppendReport post-rotate: %v", err)
	}

	if _, err := os.Stat(path + ".1"); err != nil {
		t.Fatalf("expected rotated backup .1, got err: %v", err)
	}

	got, err := st.QueryReports(context.Background(), store.ReportQuery{})
	if err != nil {
		t.Fatalf("QueryReports: %v", err)
	}
	if len(got) != 1 || got[0].ID != "3" {
		t.Fatalf("expected only the live file to be searched, got %d reports", len(got))
	}
}

func TestQueryReports(t *testing.T) {
	path := filepath.Join(t.TempDir(), "reports.log")
	st, err := New(path, 1, 1)
	if err != nil {
		t.Fatalf("New error: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })

	base := time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)
	for i, score := range []int{0, 30, 80, 0} {
		if err := st.AppendReport(context.Background(), rep(string(rune('a'+i)), score, base.Add(time.Duration(i)*time.Minute))); err != nil {
			t.Fatalf("AppendReport: %v", err)
		}
	}
	// A torn line is skipped.
	f, _ := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0o644)
	_, _ = f.WriteString("{\"id\": \"trunc\n")
	_ = f.Close()

	got, err := st.QueryReports(context.Background(), store.ReportQuery{})
	if err != nil {
		t.Fatalf("QueryReports: %v", err)
	}
	if len(got) != 4 || got[0].ID != "d" {
		t.Fatalf("newest first expected, got %d first=%v", len(got), got)
	}

	got, _ = st.QueryReports(context.Background(), store.ReportQuery{CompromisedOnly: true, Asc: true})
	if len(got) != 2 || got[0].ID != "b" || got[1].ID != "c" {
		t.Fatalf("compromised asc: %v", got)
	}

	got, _ = st.QueryReports(context.Background(), store.ReportQuery{MinSeverity: detect.SeverityCritical})
	if len(got) != 1 || got[0].ID != "c" {
		t.Fatalf("critical: %v", got)
	}
}

func TestAppendNil(t *testing.T) {
	st, err := New(filepath.Join(t.TempDir(), "r.log"), 1, 1)
	if err != nil {
		t.Fatalf("New error: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })
	if err := st.AppendReport(context.Background(), nil); err == nil {
		t.Fatal("expected error")
	}
}

func TestNewRejectsEmptyPath(t *testing.T) {
	if _, err := New("", 1, 1); err == nil {
		t.Fatal("expected error")
	}
}
