package detect

import "fmt"

// Policy decides the boolean verdict from collected signals and the score.
type Policy string

const (
	// PolicyAny flags compromise when any signal fired.
	PolicyAny Policy = "any"
	// PolicyThreshold flags compromise when the score reaches the threshold.
	PolicyThreshold Policy = "threshold"
	// PolicyAnyAndThreshold requires a fired signal and a score at or above
	// the threshold.
	PolicyAnyAndThreshold Policy = "any_and_threshold"
)

// DefaultThreshold is used by threshold policies when none is configured.
const DefaultThreshold = 50

// ParsePolicy converts a configuration string into a Policy. An empty string
// selects PolicyAny.
func ParsePolicy(s string) (Policy, error) {
	switch p := Policy(s); p {
	case "":
		return PolicyAny, nil
	case PolicyAny, PolicyThreshold, PolicyAnyAndThreshold:
		return p, nil
	default:
		return "", fmt.Errorf("invalid verdict policy %q", s)
	}
}

// Verdict applies the policy. Unknown policies fall back to PolicyAny.
func (p Policy) Verdict(signals []Signal, score, threshold int) bool {
	anyFired := false
	for _, s := range signals {
		if s.Outcome == Fired {
			anyFired = true
			break
		}
	}
	switch p {
	case PolicyThreshold:
		return score >= threshold
	case PolicyAnyAndThreshold:
		return anyFired && score >= threshold
	default:
		return anyFired
	}
}
