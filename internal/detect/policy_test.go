package detect

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParsePolicy(t *testing.T) {
	p, err := ParsePolicy("")
	require.NoError(t, err)
	assert.Equal(t, PolicyAny, p)

	for _, s := range []string{"any", "threshold", "any_and_threshold"} {
		p, err := ParsePolicy(s)
		require.NoError(t, err)
		assert.Equal(t, Policy(s), p)
	}

	_, err = ParsePolicy("majority")
	assert.Error(t, err)
}

func TestPolicyAny_VerdictMatchesFiredSignals(t *testing.T) {
	clean := []Signal{
		{ID: "a", Category: CategoryBinaryPresence, Outcome: NotFired},
		{ID: "b", Category: CategoryExternalNative, Outcome: Indeterminate},
	}
	assert.False(t, PolicyAny.Verdict(clean, Score(clean), DefaultThreshold))

	dirty := append(clean, Signal{ID: "c", Category: CategoryMountState, Outcome: Fired})
	assert.True(t, PolicyAny.Verdict(dirty, Score(dirty), DefaultThreshold),
		"a single low-weight signal must flip the verdict")
}

func TestPolicyThreshold(t *testing.T) {
	low := []Signal{{ID: "m", Category: CategoryMountState, Outcome: Fired}}
	assert.False(t, PolicyThreshold.Verdict(low, Score(low), 50))

	high := []Signal{{ID: "n", Category: CategoryExternalNative, Outcome: Fired}}
	assert.True(t, PolicyThreshold.Verdict(high, Score(high), 50))
}

func TestPolicyAnyAndThreshold(t *testing.T) {
	low := []Signal{{ID: "m", Category: CategoryMountState, Outcome: Fired}}
	assert.False(t, PolicyAnyAndThreshold.Verdict(low, Score(low), 10))

	both := []Signal{
		{ID: "m", Category: CategoryMountState, Outcome: Fired},
		{ID: "p", Category: CategoryProcessState, Outcome: Fired},
	}
	assert.True(t, PolicyAnyAndThreshold.Verdict(both, Score(both), 10))

	assert.False(t, PolicyAnyAndThreshold.Verdict(nil, 0, 0))
}
