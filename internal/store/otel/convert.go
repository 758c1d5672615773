package otel

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	otellog "go.opentelemetry.io/otel/log"
	"go.opentelemetry.io/otel/sdk/resource"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"

	"github.com/rootsense/rootsense/internal/detect"
)

func reportRecord(r *detect.Report) otellog.Record {
	var rec otellog.Record
	rec.SetTimestamp(r.GeneratedAt)
	rec.SetBody(otellog.StringValue(reportBody(r)))
	sev := reportSeverity(r)
	rec.SetSeverity(sev)
	rec.SetSeverityText(sev.String())
	rec.AddAttributes(reportAttributes(r)...)
	return rec
}

func reportBody(r *detect.Report) string {
	if !r.Verdict {
		return fmt.Sprintf("device clean: risk %d (%s)", r.RiskScore, r.Severity)
	}
	return fmt.Sprintf("device compromised: risk %d (%s), %d probe(s) fired",
		r.RiskScore, r.Severity, r.Summary.Fired)
}

// reportSeverity maps a clean report to INFO, a compromised one to WARN, and
// a compromised one at high or critical risk to ERROR.
func reportSeverity(r *detect.Report) otellog.Severity {
	if !r.Verdict {
		return otellog.SeverityInfo
	}
	switch r.Severity {
	case detect.SeverityHigh, detect.SeverityCritical:
		return otellog.SeverityError
	default:
		return otellog.SeverityWarn
	}
}

func reportAttributes(r *detect.Report) []otellog.KeyValue {
	attrs := []otellog.KeyValue{
		otellog.String("rootsense.report.id", r.ID),
		otellog.Bool("rootsense.verdict", r.Verdict),
		otellog.Int("rootsense.risk_score", r.RiskScore),
		otellog.String("rootsense.severity", string(r.Severity)),
		otellog.String("rootsense.policy", string(r.Policy)),
		otellog.Int("rootsense.signals.fired", r.Summary.Fired),
		otellog.Int("rootsense.signals.not_fired", r.Summary.NotFired),
		otellog.Int("rootsense.signals.indeterminate", r.Summary.Indeterminate),
	}

	fired := r.FiredSignals()
	if len(fired) > 0 {
		probes := make([]otellog.Value, 0, len(fired))
		for _, s := range fired {
			probes = append(probes, otellog.StringValue(s.ID))
		}
		attrs = append(attrs, otellog.Slice("rootsense.fired_probes", probes...))

		cats := detect.FiredCategories(r.Signals)
		vals := make([]otellog.Value, 0, len(cats))
		for _, c := range cats {
			vals = append(vals, otellog.StringValue(string(c)))
		}
		attrs = append(attrs, otellog.Slice("rootsense.fired_categories", vals...))
	}
	return attrs
}

// BuildResource creates a Resource carrying the service name and any extra
// attributes.
func BuildResource(serviceName string, extraAttrs map[string]string) *resource.Resource {
	kvs := []attribute.KeyValue{semconv.ServiceName(serviceName)}
	for k, v := range extraAttrs {
		kvs = append(kvs, attribute.String(k, v))
	}
	res, _ := resource.New(context.Background(), resource.WithAttributes(kvs...))
	return res
}
