package detect

import "fmt"

// MaxScore is the upper bound of a risk score.
const MaxScore = 100

var categoryWeights = map[Category]int{
	CategoryBinaryPresence:  30,
	CategoryPackagePresence: 25,
	CategoryBuildMetadata:   15,
	CategorySystemProperty:  10,
	CategoryMountState:      5,
	CategoryProcessState:    10,
	CategoryExternalNative:  50,
}

// CategoryWeight returns the scoring weight of c, or 0 for unknown categories.
func CategoryWeight(c Category) int {
	return categoryWeights[c]
}

// FiredCategories returns the distinct categories with at least one Fired
// signal, in first-seen order.
func FiredCategories(signals []Signal) []Category {
	seen := make(map[Category]bool)
	var out []Category
	for _, s := range signals {
		if s.Outcome != Fired || seen[s.Category] {
			continue
		}
		seen[s.Category] = true
		out = append(out, s.Category)
	}
	return out
}

// Score sums the weight of every category that fired at least once and
// clamps the total to [0, MaxScore]. Indeterminate and NotFired signals
// contribute nothing.
func Score(signals []Signal) int {
	total := 0
	for _, c := range FiredCategories(signals) {
		total += CategoryWeight(c)
	}
	if total > MaxScore {
		return MaxScore
	}
	return total
}

// Severity is an advisory label derived from a risk score.
type Severity string

const (
	SeverityNone     Severity = "none"
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// SeverityFor maps a score to its severity label.
func SeverityFor(score int) Severity {
	switch {
	case score >= 75:
		return SeverityCritical
	case score >= 50:
		return SeverityHigh
	case score >= 25:
		return SeverityMedium
	case score > 0:
		return SeverityLow
	default:
		return SeverityNone
	}
}

// ParseSeverity converts a label into a Severity. The empty string is
// accepted and returned as is.
func ParseSeverity(s string) (Severity, error) {
	switch sev := Severity(s); sev {
	case "", SeverityNone, SeverityLow, SeverityMedium, SeverityHigh, SeverityCritical:
		return sev, nil
	}
	return "", fmt.Errorf("unknown severity %q", s)
}
