package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/rootsense/rootsense/internal/catalog"
	"github.com/rootsense/rootsense/internal/config"
	"github.com/rootsense/rootsense/internal/detect"
	"github.com/rootsense/rootsense/internal/host"
	"github.com/rootsense/rootsense/internal/logging"
	"github.com/rootsense/rootsense/internal/metrics"
	"github.com/rootsense/rootsense/internal/native"
	"github.com/rootsense/rootsense/internal/probe"
	"github.com/rootsense/rootsense/internal/store"
	"github.com/rootsense/rootsense/internal/store/composite"
	"github.com/rootsense/rootsense/internal/store/jsonl"
	"github.com/rootsense/rootsense/internal/store/otel"
	"github.com/rootsense/rootsense/internal/store/sqlite"
	"github.com/rootsense/rootsense/internal/store/webhook"
)

// app holds everything a command needs to run detection.
type app struct {
	cfg     *config.Config
	logger  *slog.Logger
	engine  *detect.Engine
	metrics *metrics.Collector
	// reports is nil when neither history nor any export is configured.
	reports store.ReportStore

	closers []io.Closer
}

func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	path, _ := cmd.Root().PersistentFlags().GetString("config")
	cfg, err := config.LoadOrDefault(path)
	if err != nil {
		return nil, err
	}
	if lvl, _ := cmd.Root().PersistentFlags().GetString("log-level"); lvl != "" {
		cfg.Logging.Level = lvl
	}
	return cfg, nil
}

// newApp wires configuration, logging and the engine. withStores also opens
// history and export sinks.
func newApp(ctx context.Context, cmd *cobra.Command, st *rootState, withStores bool) (*app, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, err
	}
	logger, logCloser, err := logging.New(cfg.Logging)
	if err != nil {
		return nil, err
	}
	a := &app{cfg: cfg, logger: logger, metrics: metrics.New()}
	a.closers = append(a.closers, logCloser)

	h := st.host
	if h == nil {
		runner := host.NewRunner(cfg.Detection.SubprocessTimeoutDuration())
		runner.MaxOutput = cfg.Detection.MaxCommandOutputBytes()
		h = host.Local(runner)
	}
	verdict, verdictName, err := nativeVerdict(cfg.Native, h)
	if err != nil {
		a.Close()
		return nil, err
	}
	cat, err := catalog.Load(cfg.Detection.CatalogFile)
	if err != nil {
		a.Close()
		return nil, err
	}
	policy, err := detect.ParsePolicy(cfg.Detection.Policy)
	if err != nil {
		a.Close()
		return nil, err
	}

	build := func() (*detect.Registry, error) {
		return catalog.Build(cat, h, catalog.BuildOptions{
			Native:     verdict,
			NativeName: verdictName,
			Disabled:   cfg.Detection.DisabledProbes,
			Logger:     logger,
		})
	}
	a.engine = detect.NewEngine(build, detect.Options{
		Policy:    policy,
		Threshold: cfg.Detection.ScoreThreshold(),
		Collector: detect.NewCollector(cfg.Detection.Parallelism, cfg.Detection.ProbeTimeoutDuration(), logger),
		Logger:    logger,
		OnReport:  a.metrics.ObserveReport,
	})

	if withStores {
		reports, err := openReportStore(ctx, cfg, a.metrics)
		if err != nil {
			a.Close()
			return nil, err
		}
		if reports != nil {
			a.reports = reports
			a.closers = append(a.closers, reports)
		}
	}
	return a, nil
}

// Close releases sinks first and the log output last.
func (a *app) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i].Close(); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}

func nativeVerdict(cfg config.NativeConfig, h *host.Host) (probe.Verdict, string, error) {
	switch cfg.Mode {
	case "off":
		return nil, "", nil
	case "exec":
		e := &native.Exec{Runner: host.NewRunner(cfg.TimeoutDuration()), Command: cfg.Command, Args: cfg.Args}
		return e.Detect, cfg.Command, nil
	default:
		b, err := native.NewBuiltin(h.FS)
		if err != nil {
			return nil, "", fmt.Errorf("native detector: %w", err)
		}
		return b.Detect, "builtin native detector", nil
	}
}

// openReportStore assembles history and exports into one sink. History, when
// enabled, is the queryable primary.
func openReportStore(ctx context.Context, cfg *config.Config, c *metrics.Collector) (store.ReportStore, error) {
	var primary store.ReportStore
	var others []store.ReportStore
	closeAll := func() {
		if primary != nil {
			_ = primary.Close()
		}
		for _, o := range others {
			_ = o.Close()
		}
	}

	if cfg.History.Enabled {
		db, err := sqlite.Open(cfg.History.SQLitePath)
		if err != nil {
			return nil, fmt.Errorf("open history: %w", err)
		}
		primary = db
	}

	exp := cfg.Export
	if exp.JSONL.Path != "" {
		s, err := jsonl.New(exp.JSONL.Path, exp.JSONL.MaxSizeMB, exp.JSONL.MaxBackups)
		if err != nil {
			closeAll()
			return nil, fmt.Errorf("open jsonl export: %w", err)
		}
		others = append(others, filtered(s, exp.JSONL.Filter))
	}
	if exp.Webhook.URL != "" {
		s, err := webhook.New(webhook.Options{
			URL:           exp.Webhook.URL,
			BatchSize:     exp.Webhook.BatchSize,
			FlushInterval: exp.Webhook.FlushIntervalDuration(),
			Timeout:       exp.Webhook.TimeoutDuration(),
			Headers:       exp.Webhook.Headers,
		})
		if err != nil {
			closeAll()
			return nil, fmt.Errorf("open webhook export: %w", err)
		}
		others = append(others, filtered(s, exp.Webhook.Filter))
	}
	if exp.OTLP.Endpoint != "" {
		s, err := otel.New(ctx, otel.Config{
			Endpoint:    exp.OTLP.Endpoint,
			Protocol:    exp.OTLP.Protocol,
			Headers:     exp.OTLP.Headers,
			TLSEnabled:  exp.OTLP.TLSEnabled,
			TLSCertFile: exp.OTLP.TLSCertFile,
			TLSKeyFile:  exp.OTLP.TLSKeyFile,
			TLSInsecure: exp.OTLP.TLSInsecure,
			Timeout:     exp.OTLP.TimeoutDuration(),
			Resource:    otel.BuildResource("rootsense", exp.OTLP.ResourceAttributes),
		})
		if err != nil {
			closeAll()
			return nil, fmt.Errorf("open otlp export: %w", err)
		}
		others = append(others, filtered(s, exp.OTLP.Filter))
	}

	if primary == nil && len(others) == 0 {
		return nil, nil
	}
	return metrics.WrapReportStore(composite.New(primary, others...), c), nil
}

func filtered(s store.ReportStore, f config.ExportFilter) store.ReportStore {
	if !f.CompromisedOnly && !f.Changes && f.MinSeverity == "" {
		return s
	}
	return store.NewFilteredStore(s, store.Filter{
		CompromisedOnly: f.CompromisedOnly,
		MinSeverity:     f.Severity(),
		Changes:         f.Changes,
	})
}
