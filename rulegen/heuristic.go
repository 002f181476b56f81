package rulegen

import (
	"context"
	"strconv"
	"strings"

	"argus/core"

	"github.com/dlclark/regexp2"
)

var (
	thresholdRe = regexp2.MustCompile(`(?:more than|over|at least)\s+(\d+)`, regexp2.RE2)
	windowRe    = regexp2.MustCompile(`\b(?:in|within|per)\s+(\d+)\s*(second|sec|minute|min|hour)s?\b`, regexp2.RE2)
)

// HeuristicGenerator recognizes a few phrasings of the built-in rule kinds
// and falls back to a catch-all Custom rule.
type HeuristicGenerator struct{}

func (HeuristicGenerator) Name() string { return "heuristic" }

func (HeuristicGenerator) Generate(_ context.Context, description string) (core.Rule, error) {
	description = strings.TrimSpace(description)
	if description == "" {
		return core.Rule{}, ErrEmptyDescription
	}
	text := strings.ToLower(description)

	rule := core.Rule{
		Name:        "GeneratedRule",
		Description: description,
		RuleType:    core.CustomType("generated"),
		Threshold:   1,
		TimeWindow:  60,
	}

	switch {
	case containsAny(text, "failed login", "brute force", "brute-force"):
		rule.Name = "BruteForceAttempt"
		rule.RuleType = core.TypeOf(core.RuleKindBruteForce)
		rule.Threshold = 5
		rule.TimeWindow = 300
	case containsAny(text, "high frequency request", "unusual number of requests", "too many requests"):
		rule.Name = "HighFrequencyRequest"
		rule.RuleType = core.TypeOf(core.RuleKindHighFrequencyRequest)
		rule.Threshold = 100
	case containsAny(text, "suspicious ip", "malicious ip"):
		rule.Name = "SuspiciousIpAccess"
		rule.RuleType = core.TypeOf(core.RuleKindSuspiciousIP)
		rule.Threshold = 1
		rule.TimeWindow = 3600
		// A single access is enough; numbers in the text do not apply.
		return rule, rule.Validate()
	}

	if n, ok := firstNumber(thresholdRe, text); ok && n > 0 {
		rule.Threshold = n
	}
	if m, _ := windowRe.FindStringMatch(text); m != nil {
		groups := m.Groups()
		n, err := strconv.Atoi(groups[1].String())
		if err == nil && n > 0 {
			rule.TimeWindow = int64(n) * unitSeconds(groups[2].String())
		}
	}
	return rule, rule.Validate()
}

func firstNumber(re *regexp2.Regexp, text string) (int, bool) {
	m, err := re.FindStringMatch(text)
	if err != nil || m == nil {
		return 0, false
	}
	n, err := strconv.Atoi(m.Groups()[1].String())
	if err != nil {
		return 0, false
	}
	return n, true
}

func unitSeconds(unit string) int64 {
	switch unit {
	case "minute", "min":
		return 60
	case "hour":
		return 3600
	}
	return 1
}

func containsAny(s string, subs ...string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}
