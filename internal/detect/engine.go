package detect

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
)

// RegistryBuilder constructs the probe registry. It is called at most once
// per Engine.
type RegistryBuilder func() (*Registry, error)

// Options configures an Engine.
type Options struct {
	Policy Policy
	// Threshold applies to threshold policies. Values <= 0 select
	// DefaultThreshold.
	Threshold int
	Collector *Collector
	Logger    *slog.Logger

	// OnReport, when set, receives every report after it is built along
	// with the time collection took.
	OnReport func(r *Report, elapsed time.Duration)

	// Now overrides the report clock in tests.
	Now func() time.Time
}

// Engine is the public face of detection. It is safe for concurrent use and
// keeps no state between calls other than the registry.
type Engine struct {
	build RegistryBuilder
	once  sync.Once
	reg   *Registry
	err   error

	policy    Policy
	threshold int
	collector *Collector
	logger    *slog.Logger
	onReport  func(*Report, time.Duration)
	now       func() time.Time
}

// NewEngine returns an engine that builds its registry lazily with build.
func NewEngine(build RegistryBuilder, opts Options) *Engine {
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	collector := opts.Collector
	if collector == nil {
		collector = NewCollector(0, 0, logger)
	}
	policy := opts.Policy
	if policy == "" {
		policy = PolicyAny
	}
	threshold := opts.Threshold
	if threshold <= 0 {
		threshold = DefaultThreshold
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	return &Engine{
		build:     build,
		policy:    policy,
		threshold: threshold,
		collector: collector,
		logger:    logger,
		onReport:  opts.OnReport,
		now:       now,
	}
}

// NewEngineFromRegistry returns an engine over an already built registry.
func NewEngineFromRegistry(reg *Registry, opts Options) *Engine {
	return NewEngine(func() (*Registry, error) {
		if reg.Len() == 0 {
			return nil, ErrNoProbes
		}
		return reg, nil
	}, opts)
}

// Registry returns the engine's registry, building it on first use.
func (e *Engine) Registry() (*Registry, error) {
	e.once.Do(func() {
		if e.build == nil {
			e.err = ErrNoProbes
			return
		}
		reg, err := e.build()
		if err == nil && reg.Len() == 0 {
			err = ErrNoProbes
		}
		e.reg, e.err = reg, err
	})
	if e.err != nil {
		return nil, &DetectionError{Op: "build registry", Err: e.err}
	}
	return e.reg, nil
}

// IsCompromised runs a full detection and returns the verdict. It fails only
// when the registry cannot be built.
func (e *Engine) IsCompromised(ctx context.Context) (bool, error) {
	r, err := e.DetailedReport(ctx)
	if err != nil {
		return false, err
	}
	return r.Verdict, nil
}

// DetailedReport runs a full detection and returns a fresh report.
func (e *Engine) DetailedReport(ctx context.Context) (*Report, error) {
	reg, err := e.Registry()
	if err != nil {
		return nil, err
	}

	start := time.Now()
	signals := e.collector.Collect(ctx, reg)
	elapsed := time.Since(start)
	score := Score(signals)
	r := &Report{
		ID:          uuid.NewString(),
		Signals:     signals,
		Verdict:     e.policy.Verdict(signals, score, e.threshold),
		RiskScore:   score,
		Severity:    SeverityFor(score),
		Policy:      e.policy,
		Summary:     Summarize(signals),
		GeneratedAt: e.now().UTC(),
	}

	e.logger.Info("detection complete",
		"report", r.ID,
		"verdict", r.Verdict,
		"risk_score", r.RiskScore,
		"fired", r.Summary.Fired,
		"indeterminate", r.Summary.Indeterminate)

	if e.onReport != nil {
		e.onReport(r, elapsed)
	}
	return r, nil
}
