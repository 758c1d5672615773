package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rootsense/rootsense/internal/detect"
)

type memStore struct {
	reports []*detect.Report
	closed  bool
}

func (m *memStore) AppendReport(_ context.Context, r *detect.Report) error {
	m.reports = append(m.reports, r)
	return nil
}

func (m *memStore) QueryReports(_ context.Context, q ReportQuery) ([]*detect.Report, error) {
	var out []*detect.Report
	for _, r := range m.reports {
		if q.Match(r) {
			out = append(out, r)
		}
	}
	return q.Page(out), nil
}

func (m *memStore) Close() error {
	m.closed = true
	return nil
}

func mk(id string, score int, at time.Time, fired ...string) *detect.Report {
	r := &detect.Report{ID: id, RiskScore: score, Severity: detect.SeverityFor(score), Verdict: len(fired) > 0, GeneratedAt: at}
	for _, f := range fired {
		r.Signals = append(r.Signals, detect.Signal{ID: f, Outcome: detect.Fired})
	}
	return r
}

func TestSeverityAtLeast(t *testing.T) {
	assert.True(t, SeverityAtLeast(detect.SeverityNone, ""))
	assert.True(t, SeverityAtLeast(detect.SeverityHigh, detect.SeverityMedium))
	assert.True(t, SeverityAtLeast(detect.SeverityHigh, detect.SeverityHigh))
	assert.False(t, SeverityAtLeast(detect.SeverityLow, detect.SeverityHigh))
}

func TestReportQuery_Match(t *testing.T) {
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	r := mk("a", 55, base, "found_su_binary")

	assert.True(t, ReportQuery{}.Match(r))
	assert.False(t, ReportQuery{}.Match(nil))

	after := base.Add(time.Second)
	assert.False(t, ReportQuery{Since: &after}.Match(r))
	before := base.Add(-time.Second)
	assert.False(t, ReportQuery{Until: &before}.Match(r))

	assert.True(t, ReportQuery{CompromisedOnly: true}.Match(r))
	assert.False(t, ReportQuery{CompromisedOnly: true}.Match(mk("b", 0, base)))

	assert.True(t, ReportQuery{MinSeverity: detect.SeverityHigh}.Match(r))
	assert.False(t, ReportQuery{MinSeverity: detect.SeverityCritical}.Match(r))

	assert.True(t, ReportQuery{FiredProbe: "found_su_binary"}.Match(r))
	assert.False(t, ReportQuery{FiredProbe: "detected_magisk"}.Match(r))
}

func TestReportQuery_Page(t *testing.T) {
	var in []*detect.Report
	for _, id := range []string{"a", "b", "c", "d"} {
		in = append(in, mk(id, 0, time.Time{}))
	}
	idsOf := func(rs []*detect.Report) []string {
		var out []string
		for _, r := range rs {
			out = append(out, r.ID)
		}
		return out
	}

	assert.Equal(t, []string{"d", "c", "b", "a"}, idsOf(ReportQuery{}.Page(in)))
	assert.Equal(t, []string{"a", "b"}, idsOf(ReportQuery{Asc: true, Limit: 2}.Page(in)))
	assert.Equal(t, []string{"c"}, idsOf(ReportQuery{Offset: 1, Limit: 1}.Page(in)))
	assert.Empty(t, ReportQuery{Offset: 10}.Page(in))
	assert.Equal(t, "a", in[0].ID, "input is not reordered")
}

func TestFilteredStore(t *testing.T) {
	inner := &memStore{}
	s := NewFilteredStore(inner, Filter{CompromisedOnly: true, MinSeverity: detect.SeverityMedium})
	ctx := context.Background()

	require.NoError(t, s.AppendReport(ctx, mk("clean", 0, time.Time{})))
	require.NoError(t, s.AppendReport(ctx, mk("low", 10, time.Time{}, "rw_system_partition")))
	require.NoError(t, s.AppendReport(ctx, mk("high", 55, time.Time{}, "found_su_binary", "detected_root_app")))
	require.NoError(t, s.AppendReport(ctx, nil))

	got, err := s.QueryReports(ctx, ReportQuery{})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "high", got[0].ID)

	require.NoError(t, s.Close())
	assert.True(t, inner.closed)
}

func TestFilteredStore_Changes(t *testing.T) {
	inner := &memStore{}
	s := NewFilteredStore(inner, Filter{Changes: true})
	ctx := context.Background()

	for _, r := range []*detect.Report{
		mk("1", 0, time.Time{}),
		mk("2", 0, time.Time{}),
		mk("3", 30, time.Time{}, "found_su_binary"),
		mk("4", 30, time.Time{}, "found_su_binary"),
		mk("5", 0, time.Time{}),
	} {
		require.NoError(t, s.AppendReport(ctx, r))
	}

	var ids []string
	for _, r := range inner.reports {
		ids = append(ids, r.ID)
	}
	assert.Equal(t, []string{"1", "3", "5"}, ids)
}
