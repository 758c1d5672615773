package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rootsense/rootsense/internal/detect"
	"github.com/rootsense/rootsense/internal/store"
	_ "modernc.org/sqlite"
)

type Store struct {
	db *sql.DB
}

func Open(path string) (*Store, error) {
	if path == "" {
		return nil, fmt.Errorf("sqlite path is empty")
	}
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("mkdir db dir: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)

	s := &Store{db: db}
	if err := s.migrate(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) Close() error { return s.db.Close() }

func (s *Store) migrate(ctx context.Context) error {
	stmts := []string{
		`PRAGMA journal_mode=WAL;`,
		`PRAGMA foreign_keys=ON;`,
		`CREATE TABLE IF NOT EXISTS reports (
			report_id TEXT PRIMARY KEY,
			ts_unix_ns INTEGER NOT NULL,
			verdict INTEGER NOT NULL,
			risk_score INTEGER NOT NULL,
			severity TEXT NOT NULL,
			policy TEXT,
			fired_count INTEGER NOT NULL,
			indeterminate_count INTEGER NOT NULL,
			payload_json TEXT NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_reports_ts ON reports(ts_unix_ns);`,
		`CREATE INDEX IF NOT EXISTS idx_reports_verdict_ts ON reports(verdict, ts_unix_ns);`,
		`CREATE TABLE IF NOT EXISTS fired_signals (
			report_id TEXT NOT NULL REFERENCES reports(report_id) ON DELETE CASCADE,
			probe_id TEXT NOT NULL,
			category TEXT NOT NULL,
			evidence TEXT,
			PRIMARY KEY(report_id, probe_id)
		);`,
		`CREATE INDEX IF NOT EXISTS idx_fired_signals_probe ON fired_signals(probe_id);`,
	}

	for _, stmt := range stmts {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("sqlite migrate: %w", err)
		}
	}
	return nil
}

func (s *Store) AppendReport(ctx context.Context, r *detect.Report) error {
	if r == nil {
		return fmt.Errorf("report is nil")
	}
	if r.ID == "" {
		return fmt.Errorf("report missing id")
	}
	ts := r.GeneratedAt
	if ts.IsZero() {
		ts = time.Now().UTC()
	}
	b, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("marshal report: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO reports(
			report_id, ts_unix_ns, verdict, risk_score, severity, policy,
			fired_count, indeterminate_count, payload_json
		) VALUES(?,?,?,?,?,?,?,?,?);`,
		r.ID,
		ts.UTC().UnixNano(),
		boolToInt(r.Verdict),
		r.RiskScore,
		string(r.Severity),
		nullable(string(r.Policy)),
		r.Summary.Fired,
		r.Summary.Indeterminate,
		string(b),
	)
	if err != nil {
		return fmt.Errorf("insert report: %w", err)
	}

	for _, sig := range r.FiredSignals() {
		if _, err := tx.ExecContext(ctx,
			`INSERT OR IGNORE INTO fired_signals(report_id, probe_id, category, evidence) VALUES(?,?,?,?);`,
			r.ID, sig.ID, string(sig.Category), nullable(sig.Evidence),
		); err != nil {
			return fmt.Errorf("insert signal: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit report: %w", err)
	}
	return nil
}

func (s *Store) QueryReports(ctx context.Context, q store.ReportQuery) ([]*detect.Report, error) {
	where := []string{"1=1"}
	var args []any

	if q.Since != nil {
		where = append(where, "ts_unix_ns >= ?")
		args = append(args, q.Since.UTC().UnixNano())
	}
	if q.Until != nil {
		where = append(where, "ts_unix_ns <= ?")
		args = append(args, q.Until.UTC().UnixNano())
	}
	if q.CompromisedOnly {
		where = append(where, "verdict = 1")
	}
	if q.MinSeverity != "" {
		place := []string{}
		for _, sev := range atOrAbove(q.MinSeverity) {
			place = append(place, "?")
			args = append(args, string(sev))
		}
		where = append(where, "severity IN ("+strings.Join(place, ",")+")")
	}
	if q.FiredProbe != "" {
		where = append(where, "report_id IN (SELECT report_id FROM fired_signals WHERE probe_id = ?)")
		args = append(args, q.FiredProbe)
	}

	order := "DESC"
	if q.Asc {
		order = "ASC"
	}
	limit := q.Limit
	if limit <= 0 || limit > 5000 {
		limit = 200
	}
	offset := q.Offset
	if offset < 0 {
		offset = 0
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT payload_json FROM reports WHERE `+strings.Join(where, " AND ")+` ORDER BY ts_unix_ns `+order+`, rowid `+order+` LIMIT ? OFFSET ?`,
		append(args, limit, offset)...,
	)
	if err != nil {
		return nil, fmt.Errorf("query reports: %w", err)
	}
	defer rows.Close()

	var out []*detect.Report
	for rows.Next() {
		var payload string
		if err := rows.Scan(&payload); err != nil {
			return nil, fmt.Errorf("scan report: %w", err)
		}
		var r detect.Report
		if err := json.Unmarshal([]byte(payload), &r); err != nil {
			return nil, fmt.Errorf("unmarshal report: %w", err)
		}
		out = append(out, &r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("query reports rows: %w", err)
	}
	return out, nil
}

// Prune keeps the newest keep reports and deletes the rest. It returns the
// number of reports removed. keep <= 0 is a no-op.
func (s *Store) Prune(ctx context.Context, keep int) (int64, error) {
	if keep <= 0 {
		return 0, nil
	}
	res, err := s.db.ExecContext(ctx, `
		DELETE FROM reports WHERE report_id NOT IN (
			SELECT report_id FROM reports ORDER BY ts_unix_ns DESC, rowid DESC LIMIT ?
		);`, keep)
	if err != nil {
		return 0, fmt.Errorf("prune reports: %w", err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}

// FiredCounts returns how many stored reports each probe fired in.
func (s *Store) FiredCounts(ctx context.Context) (map[string]int, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT probe_id, COUNT(*) FROM fired_signals GROUP BY probe_id`)
	if err != nil {
		return nil, fmt.Errorf("query fired counts: %w", err)
	}
	defer rows.Close()

	out := map[string]int{}
	for rows.Next() {
		var id string
		var n int
		if err := rows.Scan(&id, &n); err != nil {
			return nil, fmt.Errorf("scan fired count: %w", err)
		}
		out[id] = n
	}
	return out, rows.Err()
}

func atOrAbove(min detect.Severity) []detect.Severity {
	var out []detect.Severity
	for _, sev := range []detect.Severity{
		detect.SeverityNone, detect.SeverityLow, detect.SeverityMedium,
		detect.SeverityHigh, detect.SeverityCritical,
	} {
		if store.SeverityAtLeast(sev, min) {
			out = append(out, sev)
		}
	}
	return out
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
