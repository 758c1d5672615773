package api

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/rootsense/rootsense/internal/detect"
	"github.com/rootsense/rootsense/internal/metrics"
	"github.com/rootsense/rootsense/internal/store"
	"github.com/rootsense/rootsense/internal/watch"
)

// Detector is the engine surface the API needs. *detect.Engine satisfies it.
type Detector interface {
	DetailedReport(ctx context.Context) (*detect.Report, error)
	Registry() (*detect.Registry, error)
}

type Options struct {
	Detector Detector
	// History backs /history; nil disables the endpoint.
	History store.ReportStore
	// Monitor backs /report/latest and /watch; nil disables both.
	Monitor *watch.Monitor
	Metrics *metrics.Collector
	// MetricsPath mounts the Prometheus handler when Metrics is set.
	MetricsPath string
	// APIKey, when set, is required in the X-API-Key header on /api/v1.
	APIKey string
}

type App struct {
	opts Options
}

func NewApp(opts Options) *App {
	return &App{opts: opts}
}

const apiKeyHeader = "X-API-Key"

func (a *App) Router() http.Handler {
	r := chi.NewRouter()

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) { writeText(w, http.StatusOK, "ok\n") })
	r.Get("/readyz", a.ready)
	if a.opts.Metrics != nil && a.opts.MetricsPath != "" {
		r.Method(http.MethodGet, a.opts.MetricsPath, a.opts.Metrics.Handler(metrics.HandlerOptions{ProbeCount: a.probeCount}))
	}

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(a.authMiddleware)

		r.Get("/compromised", a.compromised)
		r.Get("/report", a.report)
		r.Get("/report/latest", a.latestReport)
		r.Get("/probes", a.listProbes)
		r.Get("/history", a.history)
		r.Get("/watch", a.watchStats)
	})

	return r
}

func (a *App) authMiddleware(next http.Handler) http.Handler {
	if a.opts.APIKey == "" {
		return next
	}
	want := []byte(a.opts.APIKey)
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := r.Header.Get(apiKeyHeader)
		if key == "" || subtle.ConstantTimeCompare([]byte(key), want) != 1 {
			writeJSON(w, http.StatusUnauthorized, map[string]any{"error": "unauthorized"})
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (a *App) probeCount() int {
	reg, err := a.opts.Detector.Registry()
	if err != nil {
		return 0
	}
	return reg.Len()
}

func (a *App) ready(w http.ResponseWriter, r *http.Request) {
	if _, err := a.opts.Detector.Registry(); err != nil {
		writeText(w, http.StatusServiceUnavailable, err.Error()+"\n")
		return
	}
	writeText(w, http.StatusOK, "ready\n")
}

func (a *App) compromised(w http.ResponseWriter, r *http.Request) {
	rep, err := a.opts.Detector.DetailedReport(r.Context())
	if err != nil {
		writeDetectError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"compromised": rep.Verdict,
		"reportId":    rep.ID,
	})
}

func (a *App) report(w http.ResponseWriter, r *http.Request) {
	rep, err := a.opts.Detector.DetailedReport(r.Context())
	if err != nil {
		writeDetectError(w, err)
		return
	}
	writeReport(w, r, rep)
}

func (a *App) latestReport(w http.ResponseWriter, r *http.Request) {
	if a.opts.Monitor == nil {
		writeJSON(w, http.StatusNotImplemented, map[string]any{"error": "watch mode not enabled"})
		return
	}
	rep := a.opts.Monitor.Latest()
	if rep == nil {
		writeJSON(w, http.StatusNotFound, map[string]any{"error": "no report yet"})
		return
	}
	writeReport(w, r, rep)
}

func (a *App) watchStats(w http.ResponseWriter, r *http.Request) {
	if a.opts.Monitor == nil {
		writeJSON(w, http.StatusNotImplemented, map[string]any{"error": "watch mode not enabled"})
		return
	}
	writeJSON(w, http.StatusOK, a.opts.Monitor.Stats())
}

type probeInfo struct {
	ID          string          `json:"id"`
	Category    detect.Category `json:"category"`
	Weight      int             `json:"weight"`
	Description string          `json:"description,omitempty"`
}

func (a *App) listProbes(w http.ResponseWriter, r *http.Request) {
	reg, err := a.opts.Detector.Registry()
	if err != nil {
		writeDetectError(w, err)
		return
	}
	entries := reg.Entries()
	out := make([]probeInfo, 0, len(entries))
	for _, e := range entries {
		out = append(out, probeInfo{ID: e.ID, Category: e.Category, Weight: e.Weight(), Description: e.Description})
	}
	writeJSON(w, http.StatusOK, out)
}

func (a *App) history(w http.ResponseWriter, r *http.Request) {
	if a.opts.History == nil {
		writeJSON(w, http.StatusNotImplemented, map[string]any{"error": "history not enabled"})
		return
	}
	q, err := parseReportQuery(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": err.Error()})
		return
	}
	reports, err := a.opts.History.QueryReports(r.Context(), q)
	if err != nil {
		if errors.Is(err, store.ErrQueryUnsupported) {
			writeJSON(w, http.StatusNotImplemented, map[string]any{"error": err.Error()})
			return
		}
		writeJSON(w, http.StatusInternalServerError, map[string]any{"error": err.Error()})
		return
	}
	if reports == nil {
		reports = []*detect.Report{}
	}
	writeJSON(w, http.StatusOK, reports)
}

func parseReportQuery(r *http.Request) (store.ReportQuery, error) {
	v := r.URL.Query()
	var q store.ReportQuery
	var err error
	if s := v.Get("limit"); s != "" {
		if q.Limit, err = strconv.Atoi(s); err != nil || q.Limit < 0 {
			return q, fmt.Errorf("limit: must be a non-negative integer")
		}
	}
	if s := v.Get("offset"); s != "" {
		if q.Offset, err = strconv.Atoi(s); err != nil || q.Offset < 0 {
			return q, fmt.Errorf("offset: must be a non-negative integer")
		}
	}
	q.Asc = v.Get("order") == "asc"
	q.CompromisedOnly = v.Get("compromised") == "true"
	q.FiredProbe = v.Get("probe")
	if q.MinSeverity, err = detect.ParseSeverity(v.Get("min_severity")); err != nil {
		return q, fmt.Errorf("min_severity: %w", err)
	}
	if since := v.Get("since"); since != "" {
		t, err := parseTimeOrAgo(since)
		if err != nil {
			return q, fmt.Errorf("since: %w", err)
		}
		q.Since = &t
	}
	if until := v.Get("until"); until != "" {
		t, err := parseTimeOrAgo(until)
		if err != nil {
			return q, fmt.Errorf("until: %w", err)
		}
		q.Until = &t
	}
	return q, nil
}

// parseTimeOrAgo accepts RFC3339 or a duration meaning that long ago.
func parseTimeOrAgo(s string) (time.Time, error) {
	if strings.ContainsAny(s, "smh") && !strings.Contains(s, "T") {
		d, err := time.ParseDuration(s)
		if err != nil {
			return time.Time{}, err
		}
		return time.Now().UTC().Add(-d), nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, err
	}
	return t.UTC(), nil
}

func writeReport(w http.ResponseWriter, r *http.Request, rep *detect.Report) {
	if r.URL.Query().Get("format") == "yaml" {
		b, err := rep.YAML()
		if err != nil {
			writeJSON(w, http.StatusInternalServerError, map[string]any{"error": err.Error()})
			return
		}
		w.Header().Set("Content-Type", "application/yaml")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write(b)
		return
	}
	writeJSON(w, http.StatusOK, rep)
}

func writeDetectError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	if errors.Is(err, detect.ErrNoProbes) {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, map[string]any{"error": err.Error()})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeText(w http.ResponseWriter, status int, s string) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(status)
	_, _ = w.Write([]byte(s))
}
