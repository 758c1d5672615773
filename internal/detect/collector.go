package detect

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/rootsense/rootsense/pkg/observability"
)

const (
	// DefaultProbeTimeout bounds each probe when neither the entry nor the
	// collector sets a timeout.
	DefaultProbeTimeout = 2 * time.Second
	// DefaultParallelism is the number of probes run at once by default.
	DefaultParallelism = 4
)

// Collector runs every probe of a registry and gathers one signal per entry.
// A probe that fails, panics, or exceeds its timeout yields an Indeterminate
// signal; it never affects the other probes.
type Collector struct {
	// Parallelism caps concurrently running probes. Values <= 1 run probes
	// sequentially in registry order.
	Parallelism int
	// Timeout is the per-probe budget for entries without their own.
	Timeout time.Duration
	Logger  *slog.Logger
}

// NewCollector returns a collector with the given bounds. Zero values select
// the defaults.
func NewCollector(parallelism int, timeout time.Duration, logger *slog.Logger) *Collector {
	if parallelism == 0 {
		parallelism = DefaultParallelism
	}
	if timeout <= 0 {
		timeout = DefaultProbeTimeout
	}
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Collector{Parallelism: parallelism, Timeout: timeout, Logger: logger}
}

// Collect runs the registry and returns signals in registry order. It never
// caches: each call reflects host state at call time. Cancelling ctx turns
// every probe still pending or running into an Indeterminate signal.
func (c *Collector) Collect(ctx context.Context, reg *Registry) []Signal {
	entries := reg.Entries()
	signals := make([]Signal, len(entries))
	if len(entries) == 0 {
		return signals
	}

	ctx, span := observability.StartCollection(ctx, len(entries))
	defer span.End()

	workers := c.Parallelism
	if workers <= 1 {
		for i, e := range entries {
			signals[i] = c.run(ctx, e)
		}
		observability.RecordCollection(span, countOutcomes(signals))
		return signals
	}

	sem := make(chan struct{}, workers)
	var wg sync.WaitGroup
	for i, e := range entries {
		wg.Add(1)
		go func(i int, e Entry) {
			defer wg.Done()
			select {
			case sem <- struct{}{}:
			case <-ctx.Done():
				signals[i] = c.indeterminate(e, ctx.Err())
				return
			}
			defer func() { <-sem }()
			signals[i] = c.run(ctx, e)
		}(i, e)
	}
	wg.Wait()

	observability.RecordCollection(span, countOutcomes(signals))
	return signals
}

// run executes one probe under its timeout. The probe runs on its own
// goroutine so a probe that ignores ctx cannot stall the collection.
func (c *Collector) run(ctx context.Context, e Entry) Signal {
	if err := ctx.Err(); err != nil {
		return c.indeterminate(e, err)
	}

	timeout := e.Timeout
	if timeout <= 0 {
		timeout = c.Timeout
	}
	if timeout <= 0 {
		timeout = DefaultProbeTimeout
	}
	pctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	pctx, span := observability.StartProbe(pctx, e.ID, string(e.Category))
	defer span.End()

	done := make(chan Result, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- Unknown(fmt.Errorf("probe panicked: %v", r))
			}
		}()
		done <- e.Probe.Run(pctx)
	}()

	var res Result
	select {
	case res = <-done:
	case <-pctx.Done():
		res = Unknown(fmt.Errorf("probe did not finish: %w", pctx.Err()))
	}

	switch res.Outcome {
	case Fired, NotFired, Indeterminate:
	default:
		res = Unknown(fmt.Errorf("probe returned invalid outcome %q", res.Outcome))
	}

	sig := Signal{ID: e.ID, Category: e.Category, Evidence: res.Evidence, Outcome: res.Outcome}
	observability.RecordProbe(span, string(sig.Outcome), sig.Evidence)
	if sig.Outcome == Indeterminate {
		c.logger().Debug("probe indeterminate", "probe", e.ID, "category", e.Category, "error", sig.Evidence)
	}
	return sig
}

func (c *Collector) indeterminate(e Entry, err error) Signal {
	c.logger().Debug("probe skipped", "probe", e.ID, "category", e.Category, "error", err)
	return Signal{ID: e.ID, Category: e.Category, Evidence: Unknown(err).Evidence, Outcome: Indeterminate}
}

func (c *Collector) logger() *slog.Logger {
	if c.Logger == nil {
		return slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return c.Logger
}

func countOutcomes(signals []Signal) map[string]int {
	counts := map[string]int{}
	for _, s := range signals {
		counts[string(s.Outcome)]++
	}
	return counts
}
