// Package observability provides OpenTelemetry tracing for rootsense
// detection runs. Spans go to whatever tracer provider the host process has
// installed; without one they are no-ops.
package observability

import (
	"context"
	"sort"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const (
	// TracerName is the OpenTelemetry tracer name.
	TracerName = "rootsense"

	maxEvidenceAttr = 256
)

// StartCollection starts the span covering one collection run.
func StartCollection(ctx context.Context, probes int) (context.Context, trace.Span) {
	tracer := otel.Tracer(TracerName)
	return tracer.Start(ctx, "detect.collect",
		trace.WithAttributes(attribute.Int("probes.total", probes)),
		trace.WithSpanKind(trace.SpanKindInternal),
	)
}

// RecordCollection records per-outcome counts on a collection span.
func RecordCollection(span trace.Span, outcomes map[string]int) {
	keys := make([]string, 0, len(outcomes))
	for k := range outcomes {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	attrs := make([]attribute.KeyValue, 0, len(keys))
	for _, k := range keys {
		attrs = append(attrs, attribute.Int("probes."+k, outcomes[k]))
	}
	span.SetAttributes(attrs...)
}

// StartProbe starts a child span for a single probe.
func StartProbe(ctx context.Context, id, category string) (context.Context, trace.Span) {
	tracer := otel.Tracer(TracerName)
	return tracer.Start(ctx, "detect.probe",
		trace.WithAttributes(
			attribute.String("probe.id", id),
			attribute.String("probe.category", category),
		),
		trace.WithSpanKind(trace.SpanKindInternal),
	)
}

// RecordProbe records a probe outcome. Indeterminate outcomes mark the span
// as errored so failing signal sources are visible in traces.
func RecordProbe(span trace.Span, outcome, evidence string) {
	if len(evidence) > maxEvidenceAttr {
		evidence = evidence[:maxEvidenceAttr]
	}
	span.SetAttributes(
		attribute.String("probe.outcome", outcome),
		attribute.String("probe.evidence", evidence),
	)
	if outcome == "indeterminate" {
		span.SetStatus(codes.Error, evidence)
	}
}

// RecordError records an error on a span.
func RecordError(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
}
