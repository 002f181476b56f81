package rulegen

import (
	"context"
	"testing"

	"argus/core"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHeuristicGenerator(t *testing.T) {
	tests := []struct {
		description string
		name        string
		ruleType    core.RuleType
		threshold   int
		window      int64
	}{
		{
			description: "Detect more than 10 failed logins from the same IP in 5 minutes",
			name:        "BruteForceAttempt",
			ruleType:    core.TypeOf(core.RuleKindBruteForce),
			threshold:   10,
			window:      300,
		},
		{
			description: "brute force attempts",
			name:        "BruteForceAttempt",
			ruleType:    core.TypeOf(core.RuleKindBruteForce),
			threshold:   5,
			window:      300,
		},
		{
			description: "Alert if there are an unusual number of requests (over 500) to /admin in 30 seconds",
			name:        "HighFrequencyRequest",
			ruleType:    core.TypeOf(core.RuleKindHighFrequencyRequest),
			threshold:   500,
			window:      30,
		},
		{
			description: "Flag any connection from a known malicious IP address, more than 3 times",
			name:        "SuspiciousIpAccess",
			ruleType:    core.TypeOf(core.RuleKindSuspiciousIP),
			threshold:   1,
			window:      3600,
		},
		{
			description: "Custom rule for unusual activity within 2 hours",
			name:        "GeneratedRule",
			ruleType:    core.CustomType("generated"),
			threshold:   1,
			window:      7200,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name+"/"+tt.description, func(t *testing.T) {
			rule, err := HeuristicGenerator{}.Generate(context.Background(), tt.description)
			require.NoError(t, err)
			assert.Equal(t, tt.name, rule.Name)
			assert.Equal(t, tt.ruleType, rule.RuleType)
			assert.Equal(t, tt.threshold, rule.Threshold)
			assert.Equal(t, tt.window, rule.TimeWindow)
			assert.Equal(t, tt.description, rule.Description)
		})
	}
}

func TestHeuristicGenerator_Empty(t *testing.T) {
	_, err := HeuristicGenerator{}.Generate(context.Background(), "   ")
	assert.ErrorIs(t, err, ErrEmptyDescription)
}
