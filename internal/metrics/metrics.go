package metrics

import (
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rootsense/rootsense/internal/detect"
)

// Histogram buckets for a full detection run, in seconds.
var runBuckets = []float64{0.01, 0.05, 0.1, 0.5, 1, 2, 5, 10}

// Collector provides a minimal Prometheus-compatible metrics exporter for
// detection runs.
type Collector struct {
	startedAt time.Time

	runsTotal       atomic.Uint64
	compromised     atomic.Uint64
	lastRiskScore   atomic.Int64
	lastVerdict     atomic.Int64
	lastRunUnixNano atomic.Int64

	outcomes sync.Map // "category:outcome" -> *atomic.Uint64
	fired    sync.Map // probe id -> *atomic.Uint64

	runMu      sync.Mutex
	runCounts  []uint64 // per bucket, cumulative on export
	runSum     float64
	runSamples uint64

	storeAppends atomic.Uint64
	storeErrors  atomic.Uint64
}

func New() *Collector {
	return &Collector{
		startedAt: time.Now().UTC(),
		runCounts: make([]uint64, len(runBuckets)),
	}
}

// ObserveReport records one finished detection run.
func (c *Collector) ObserveReport(r *detect.Report, elapsed time.Duration) {
	if c == nil || r == nil {
		return
	}
	c.runsTotal.Add(1)
	if r.Verdict {
		c.compromised.Add(1)
		c.lastVerdict.Store(1)
	} else {
		c.lastVerdict.Store(0)
	}
	c.lastRiskScore.Store(int64(r.RiskScore))
	c.lastRunUnixNano.Store(r.GeneratedAt.UnixNano())

	for _, s := range r.Signals {
		inc(&c.outcomes, string(s.Category)+":"+string(s.Outcome))
		if s.Fired() {
			inc(&c.fired, s.ID)
		}
	}

	secs := elapsed.Seconds()
	c.runMu.Lock()
	for i, b := range runBuckets {
		if secs <= b {
			c.runCounts[i]++
			break
		}
	}
	c.runSum += secs
	c.runSamples++
	c.runMu.Unlock()
}

func (c *Collector) IncStoreAppend() {
	if c == nil {
		return
	}
	c.storeAppends.Add(1)
}

func (c *Collector) IncStoreError() {
	if c == nil {
		return
	}
	c.storeErrors.Add(1)
}

func inc(m *sync.Map, key string) {
	ptr, _ := m.LoadOrStore(key, &atomic.Uint64{})
	ptr.(*atomic.Uint64).Add(1)
}

func load(m *sync.Map, key string) uint64 {
	ptr, ok := m.Load(key)
	if !ok {
		return 0
	}
	return ptr.(*atomic.Uint64).Load()
}

type HandlerOptions struct {
	// ProbeCount reports the size of the active registry when set.
	ProbeCount func() int
}

func (c *Collector) Handler(opts HandlerOptions) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain; version=0.0.4; charset=utf-8")
		fmt.Fprint(w, "# HELP rootsense_up Whether the rootsense process is running.\n")
		fmt.Fprint(w, "# TYPE rootsense_up gauge\n")
		fmt.Fprint(w, "rootsense_up 1\n")

		fmt.Fprint(w, "# HELP rootsense_start_time_seconds Unix time the process started.\n")
		fmt.Fprint(w, "# TYPE rootsense_start_time_seconds gauge\n")
		fmt.Fprintf(w, "rootsense_start_time_seconds %d\n", c.startedAt.Unix())

		fmt.Fprint(w, "# HELP rootsense_detection_runs_total Detection runs completed.\n")
		fmt.Fprint(w, "# TYPE rootsense_detection_runs_total counter\n")
		fmt.Fprintf(w, "rootsense_detection_runs_total %d\n", c.runsTotal.Load())

		fmt.Fprint(w, "# HELP rootsense_compromised_runs_total Detection runs that returned a compromised verdict.\n")
		fmt.Fprint(w, "# TYPE rootsense_compromised_runs_total counter\n")
		fmt.Fprintf(w, "rootsense_compromised_runs_total %d\n", c.compromised.Load())

		if c.runsTotal.Load() > 0 {
			fmt.Fprint(w, "# HELP rootsense_compromised Verdict of the latest run (1 compromised, 0 trusted).\n")
			fmt.Fprint(w, "# TYPE rootsense_compromised gauge\n")
			fmt.Fprintf(w, "rootsense_compromised %d\n", c.lastVerdict.Load())

			fmt.Fprint(w, "# HELP rootsense_risk_score Risk score of the latest run.\n")
			fmt.Fprint(w, "# TYPE rootsense_risk_score gauge\n")
			fmt.Fprintf(w, "rootsense_risk_score %d\n", c.lastRiskScore.Load())

			fmt.Fprint(w, "# HELP rootsense_last_run_timestamp_seconds Unix time of the latest report.\n")
			fmt.Fprint(w, "# TYPE rootsense_last_run_timestamp_seconds gauge\n")
			fmt.Fprintf(w, "rootsense_last_run_timestamp_seconds %d\n", time.Unix(0, c.lastRunUnixNano.Load()).Unix())
		}

		if keys := snapshotKeys(&c.outcomes); len(keys) > 0 {
			fmt.Fprint(w, "# HELP rootsense_signals_total Signals produced by category and outcome.\n")
			fmt.Fprint(w, "# TYPE rootsense_signals_total counter\n")
			for _, k := range keys {
				category, outcome, _ := strings.Cut(k, ":")
				fmt.Fprintf(w, "rootsense_signals_total{category=\"%s\",outcome=\"%s\"} %d\n",
					escapeLabelValue(category), escapeLabelValue(outcome), load(&c.outcomes, k))
			}
		}

		if keys := snapshotKeys(&c.fired); len(keys) > 0 {
			fmt.Fprint(w, "# HELP rootsense_probe_fired_total Times each probe fired.\n")
			fmt.Fprint(w, "# TYPE rootsense_probe_fired_total counter\n")
			for _, k := range keys {
				fmt.Fprintf(w, "rootsense_probe_fired_total{probe=\"%s\"} %d\n", escapeLabelValue(k), load(&c.fired, k))
			}
		}

		c.writeRunHistogram(w)

		fmt.Fprint(w, "# HELP rootsense_history_appends_total Reports written to history sinks.\n")
		fmt.Fprint(w, "# TYPE rootsense_history_appends_total counter\n")
		fmt.Fprintf(w, "rootsense_history_appends_total %d\n", c.storeAppends.Load())

		fmt.Fprint(w, "# HELP rootsense_history_errors_total Failed history writes.\n")
		fmt.Fprint(w, "# TYPE rootsense_history_errors_total counter\n")
		fmt.Fprintf(w, "rootsense_history_errors_total %d\n", c.storeErrors.Load())

		if opts.ProbeCount != nil {
			fmt.Fprint(w, "# HELP rootsense_probes_registered Probes in the active registry.\n")
			fmt.Fprint(w, "# TYPE rootsense_probes_registered gauge\n")
			fmt.Fprintf(w, "rootsense_probes_registered %d\n", opts.ProbeCount())
		}
	})
}

func (c *Collector) writeRunHistogram(w io.Writer) {
	c.runMu.Lock()
	counts := append([]uint64(nil), c.runCounts...)
	sum, samples := c.runSum, c.runSamples
	c.runMu.Unlock()

	fmt.Fprint(w, "# HELP rootsense_detection_duration_seconds Wall time of detection runs.\n")
	fmt.Fprint(w, "# TYPE rootsense_detection_duration_seconds histogram\n")
	var cumulative uint64
	for i, b := range runBuckets {
		cumulative += counts[i]
		fmt.Fprintf(w, "rootsense_detection_duration_seconds_bucket{le=\"%g\"} %d\n", b, cumulative)
	}
	fmt.Fprintf(w, "rootsense_detection_duration_seconds_bucket{le=\"+Inf\"} %d\n", samples)
	fmt.Fprintf(w, "rootsense_detection_duration_seconds_sum %g\n", sum)
	fmt.Fprintf(w, "rootsense_detection_duration_seconds_count %d\n", samples)
}

func snapshotKeys(m *sync.Map) []string {
	var out []string
	m.Range(func(k, _ any) bool {
		if s, ok := k.(string); ok {
			out = append(out, s)
		}
		return true
	})
	sort.Strings(out)
	return out
}

func escapeLabelValue(v string) string {
	// Prometheus text format label escaping for " and \ and newlines.
	v = strings.ReplaceAll(v, "\\", "\\\\")
	v = strings.ReplaceAll(v, "\n", "\\n")
	v = strings.ReplaceAll(v, "\"", "\\\"")
	return v
}
