// Package watch re-runs detection on a schedule and when watched directories
// change, and routes each report to history and callbacks.
package watch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rootsense/rootsense/internal/detect"
	"github.com/rootsense/rootsense/internal/store"
)

// Evaluator produces a fresh report per call. *detect.Engine satisfies it.
type Evaluator interface {
	DetailedReport(ctx context.Context) (*detect.Report, error)
}

type Config struct {
	Evaluator Evaluator
	Interval  time.Duration
	// Paths are directories whose changes trigger a run after Debounce.
	Paths    []string
	Debounce time.Duration

	// Store receives every report when set. Retain > 0 prunes it after each
	// append if it implements store.Pruner.
	Store  store.ReportStore
	Retain int
	Logger *slog.Logger

	OnReport func(*detect.Report)
	// OnChange fires when the verdict differs from the previous report.
	// prev is nil for the first report.
	OnChange func(prev, cur *detect.Report)
}

// Stats summarises a monitor's activity.
type Stats struct {
	Runs      int64     `json:"runs"`
	Failures  int64     `json:"failures"`
	Changes   int64     `json:"changes"`
	FSEvents  int64     `json:"fsEvents"`
	LastRun   time.Time `json:"lastRun,omitempty"`
	LastError string    `json:"lastError,omitempty"`
	Watched   []string  `json:"watched,omitempty"`
}

type Monitor struct {
	cfg     Config
	logger  *slog.Logger
	trigger chan string
	running atomic.Bool

	// runMu serialises detection runs.
	runMu sync.Mutex

	mu     sync.RWMutex
	latest *detect.Report
	stats  Stats
	paths  *pathWatcher
}

func New(cfg Config) (*Monitor, error) {
	if cfg.Evaluator == nil {
		return nil, fmt.Errorf("evaluator is required")
	}
	if cfg.Interval <= 0 {
		return nil, fmt.Errorf("interval must be > 0")
	}
	if cfg.Debounce <= 0 {
		cfg.Debounce = 2 * time.Second
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Monitor{
		cfg:     cfg,
		logger:  logger,
		trigger: make(chan string, 1),
	}, nil
}

// Run evaluates once immediately and then on every tick or trigger until ctx
// ends. It returns ctx.Err() on shutdown.
func (m *Monitor) Run(ctx context.Context) error {
	if !m.running.CompareAndSwap(false, true) {
		return fmt.Errorf("monitor already running")
	}
	defer m.running.Store(false)

	if len(m.cfg.Paths) > 0 {
		pw, err := newPathWatcher(m.cfg.Paths, m.cfg.Debounce, m.logger)
		if err != nil {
			m.logger.Warn("filesystem triggers disabled", "error", err)
		} else {
			defer pw.close()
			m.mu.Lock()
			m.paths = pw
			m.stats.Watched = append([]string(nil), pw.watched...)
			m.mu.Unlock()
			go pw.run(ctx, m.Trigger)
		}
	}

	m.logger.Info("monitor started", "interval", m.cfg.Interval, "watched", len(m.cfg.Paths))
	m.evaluate(ctx, "startup")

	ticker := time.NewTicker(m.cfg.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			m.evaluate(ctx, "interval")
		case reason := <-m.trigger:
			m.evaluate(ctx, reason)
		case <-ctx.Done():
			m.logger.Info("monitor stopped")
			return ctx.Err()
		}
	}
}

// Trigger requests a run as soon as the loop is free. Requests made while
// one is already pending are merged.
func (m *Monitor) Trigger(reason string) {
	select {
	case m.trigger <- reason:
	default:
	}
}

// RunOnce evaluates synchronously and returns the report.
func (m *Monitor) RunOnce(ctx context.Context) (*detect.Report, error) {
	return m.evaluate(ctx, "manual")
}

// Latest returns the newest report, or nil before the first run.
func (m *Monitor) Latest() *detect.Report {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.latest
}

func (m *Monitor) Stats() Stats {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s := m.stats
	s.Watched = append([]string(nil), m.stats.Watched...)
	if m.paths != nil {
		s.FSEvents = m.paths.events.Load()
	}
	return s
}

func (m *Monitor) evaluate(ctx context.Context, reason string) (*detect.Report, error) {
	m.runMu.Lock()
	defer m.runMu.Unlock()

	start := time.Now()
	r, err := m.cfg.Evaluator.DetailedReport(ctx)
	elapsed := time.Since(start)

	m.mu.Lock()
	m.stats.Runs++
	m.stats.LastRun = time.Now().UTC()
	if err != nil {
		m.stats.Failures++
		m.stats.LastError = err.Error()
		m.mu.Unlock()
		if !errors.Is(err, context.Canceled) {
			m.logger.Error("detection failed", "reason", reason, "error", err)
		}
		return nil, err
	}
	prev := m.latest
	m.latest = r
	changed := prev == nil || prev.Verdict != r.Verdict
	if changed && prev != nil {
		m.stats.Changes++
	}
	m.mu.Unlock()

	m.logger.Debug("detection run", "reason", reason, "report", r.ID, "elapsed", elapsed)
	m.record(ctx, r)

	if m.cfg.OnReport != nil {
		m.cfg.OnReport(r)
	}
	if changed {
		if prev != nil {
			m.logger.Warn("verdict changed", "from", prev.Verdict, "to", r.Verdict, "risk_score", r.RiskScore)
		}
		if m.cfg.OnChange != nil {
			m.cfg.OnChange(prev, r)
		}
	}
	return r, nil
}

func (m *Monitor) record(ctx context.Context, r *detect.Report) {
	if m.cfg.Store == nil {
		return
	}
	if err := m.cfg.Store.AppendReport(ctx, r); err != nil {
		m.logger.Warn("history append failed", "report", r.ID, "error", err)
		return
	}
	if m.cfg.Retain <= 0 {
		return
	}
	if p, ok := m.cfg.Store.(store.Pruner); ok {
		n, err := p.Prune(ctx, m.cfg.Retain)
		if err != nil {
			m.logger.Warn("history prune failed", "error", err)
		} else if n > 0 {
			m.logger.Debug("history pruned", "removed", n)
		}
	}
}
