package observability

import (
	"context"
	"errors"
	"strings"
	"testing"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace/noop"
)

func init() {
	// Use noop tracer for tests
	otel.SetTracerProvider(noop.NewTracerProvider())
}

func TestStartCollection(t *testing.T) {
	ctx, span := StartCollection(context.Background(), 12)
	defer span.End()

	if ctx == nil {
		t.Fatal("StartCollection returned nil context")
	}
	if span == nil {
		t.Fatal("StartCollection returned nil span")
	}
	RecordCollection(span, map[string]int{"fired": 1, "not_fired": 10, "indeterminate": 1})
}

func TestStartProbe(t *testing.T) {
	ctx, span := StartProbe(context.Background(), "found_su_binary", "binary_presence")
	defer span.End()

	if ctx == nil || span == nil {
		t.Fatal("StartProbe returned nil")
	}
	RecordProbe(span, "fired", "/system/xbin/su")
	RecordProbe(span, "indeterminate", strings.Repeat("x", 1000))
}

func TestRecordError(t *testing.T) {
	_, span := StartProbe(context.Background(), "p", "c")
	defer span.End()

	RecordError(span, nil)
	RecordError(span, errors.New("boom"))
}
