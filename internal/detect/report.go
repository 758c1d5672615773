package detect

import (
	"encoding/json"
	"fmt"
	"strings"
	"text/tabwriter"
	"time"
	"unicode/utf8"

	"gopkg.in/yaml.v3"
)

// Summary counts signals by outcome.
type Summary struct {
	Fired         int `json:"fired" yaml:"fired"`
	NotFired      int `json:"notFired" yaml:"not_fired"`
	Indeterminate int `json:"indeterminate" yaml:"indeterminate"`
}

// Report is the result of one detection run. Signals keep registry order.
type Report struct {
	ID          string    `json:"id" yaml:"id"`
	Signals     []Signal  `json:"signals" yaml:"signals"`
	Verdict     bool      `json:"verdict" yaml:"verdict"`
	RiskScore   int       `json:"riskScore" yaml:"risk_score"`
	Severity    Severity  `json:"severity" yaml:"severity"`
	Policy      Policy    `json:"policy" yaml:"policy"`
	Summary     Summary   `json:"summary" yaml:"summary"`
	GeneratedAt time.Time `json:"generatedAt" yaml:"generated_at"`
}

// Summarize counts the outcomes in signals.
func Summarize(signals []Signal) Summary {
	var s Summary
	for _, sig := range signals {
		switch sig.Outcome {
		case Fired:
			s.Fired++
		case NotFired:
			s.NotFired++
		case Indeterminate:
			s.Indeterminate++
		}
	}
	return s
}

// FiredSignals returns the signals that fired, in report order.
func (r *Report) FiredSignals() []Signal {
	return r.filter(Fired)
}

// IndeterminateSignals returns the signals that could not be evaluated.
func (r *Report) IndeterminateSignals() []Signal {
	return r.filter(Indeterminate)
}

func (r *Report) filter(o Outcome) []Signal {
	var out []Signal
	for _, s := range r.Signals {
		if s.Outcome == o {
			out = append(out, s)
		}
	}
	return out
}

// JSON returns the report as indented JSON bytes.
func (r *Report) JSON() ([]byte, error) {
	return json.MarshalIndent(r, "", "  ")
}

// YAML returns the report as YAML bytes.
func (r *Report) YAML() ([]byte, error) {
	return yaml.Marshal(r)
}

// truncate shortens s to at most n runes, marking the cut with an ellipsis.
func truncate(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n-1]) + "…"
}

// Table renders the report for terminals.
func (r *Report) Table() string {
	var sb strings.Builder
	verdict := "trusted"
	if r.Verdict {
		verdict = "COMPROMISED"
	}
	fmt.Fprintf(&sb, "Verdict:    %s\n", verdict)
	fmt.Fprintf(&sb, "Risk score: %d/%d (%s)\n", r.RiskScore, MaxScore, r.Severity)
	fmt.Fprintf(&sb, "Signals:    %d fired, %d clean, %d indeterminate\n",
		r.Summary.Fired, r.Summary.NotFired, r.Summary.Indeterminate)
	fmt.Fprintf(&sb, "Generated:  %s\n\n", r.GeneratedAt.Format(time.RFC3339))

	tw := tabwriter.NewWriter(&sb, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tCATEGORY\tOUTCOME\tEVIDENCE")
	for _, s := range r.Signals {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", s.ID, s.Category, s.Outcome, truncate(s.Evidence, 60))
	}
	_ = tw.Flush()
	return sb.String()
}
