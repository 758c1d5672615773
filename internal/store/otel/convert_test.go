package otel

import (
	"testing"
	"time"

	otellog "go.opentelemetry.io/otel/log"

	"github.com/rootsense/rootsense/internal/detect"
)

func compromisedReport() *detect.Report {
	signals := []detect.Signal{
		{ID: "found_su_binary", Category: detect.CategoryBinaryPresence, Outcome: detect.Fired, Evidence: "/system/xbin/su"},
		{ID: "detected_magisk", Category: detect.CategoryBinaryPresence, Outcome: detect.Fired, Evidence: "/sbin/.magisk"},
		{ID: "detected_root_app", Category: detect.CategoryPackagePresence, Outcome: detect.Fired, Evidence: "com.topjohnwu.magisk"},
		{ID: "rw_system_partition", Category: detect.CategoryMountState, Outcome: detect.NotFired},
		{ID: "su_process_running", Category: detect.CategoryProcessState, Outcome: detect.Indeterminate, Evidence: "ps: not found"},
	}
	return &detect.Report{
		ID:          "rep-1",
		Signals:     signals,
		Verdict:     true,
		RiskScore:   50,
		Severity:    detect.SeverityHigh,
		Policy:      detect.PolicyAny,
		Summary:     detect.Summarize(signals),
		GeneratedAt: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
	}
}

func attrMap(rec otellog.Record) map[string]otellog.Value {
	out := map[string]otellog.Value{}
	rec.WalkAttributes(func(kv otellog.KeyValue) bool {
		out[kv.Key] = kv.Value
		return true
	})
	return out
}

func sliceStrings(v otellog.Value) []string {
	var out []string
	for _, e := range v.AsSlice() {
		out = append(out, e.AsString())
	}
	return out
}

func TestReportRecord_Compromised(t *testing.T) {
	rec := reportRecord(compromisedReport())

	if got := rec.Body().AsString(); got != "device compromised: risk 50 (high), 3 probe(s) fired" {
		t.Errorf("body = %q", got)
	}
	if rec.Severity() != otellog.SeverityError {
		t.Errorf("severity = %v", rec.Severity())
	}
	if rec.SeverityText() != "ERROR" {
		t.Errorf("severity text = %q", rec.SeverityText())
	}

	attrs := attrMap(rec)
	if attrs["rootsense.report.id"].AsString() != "rep-1" {
		t.Error("missing report id")
	}
	if !attrs["rootsense.verdict"].AsBool() {
		t.Error("verdict should be true")
	}
	if attrs["rootsense.risk_score"].AsInt64() != 50 {
		t.Errorf("risk_score = %d", attrs["rootsense.risk_score"].AsInt64())
	}
	if attrs["rootsense.signals.indeterminate"].AsInt64() != 1 {
		t.Error("indeterminate count wrong")
	}
	probes := sliceStrings(attrs["rootsense.fired_probes"])
	if len(probes) != 3 || probes[0] != "found_su_binary" {
		t.Errorf("fired_probes = %v", probes)
	}
	cats := sliceStrings(attrs["rootsense.fired_categories"])
	if len(cats) != 2 || cats[0] != "binary_presence" || cats[1] != "package_presence" {
		t.Errorf("fired_categories = %v", cats)
	}
}

func TestReportRecord_Clean(t *testing.T) {
	r := &detect.Report{ID: "rep-2", Severity: detect.SeverityNone, Policy: detect.PolicyAny}
	rec := reportRecord(r)

	if got := rec.Body().AsString(); got != "device clean: risk 0 (none)" {
		t.Errorf("body = %q", got)
	}
	if rec.Severity() != otellog.SeverityInfo {
		t.Errorf("severity = %v", rec.Severity())
	}
	attrs := attrMap(rec)
	if _, ok := attrs["rootsense.fired_probes"]; ok {
		t.Error("clean report should carry no fired_probes")
	}
}

func TestReportSeverity_MediumCompromise(t *testing.T) {
	r := &detect.Report{Verdict: true, Severity: detect.SeverityMedium}
	if got := reportSeverity(r); got != otellog.SeverityWarn {
		t.Errorf("severity = %v", got)
	}
}

func TestBuildResource_ExtraAttrs(t *testing.T) {
	res := BuildResource("rootsense", map[string]string{"device.id": "abc"})
	found := map[string]string{}
	for _, kv := range res.Attributes() {
		found[string(kv.Key)] = kv.Value.AsString()
	}
	if found["service.name"] != "rootsense" || found["device.id"] != "abc" {
		t.Errorf("attributes = %v", found)
	}
}
