package core

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func sampleRules() []Rule {
	return []Rule{
		{
			Name:        "ssh-brute-force",
			Description: "Repeated failed logins",
			RuleType:    TypeOf(RuleKindBruteForce),
			Threshold:   5,
			TimeWindow:  300,
		},
		{
			Name:       "flood",
			RuleType:   TypeOf(RuleKindHighFrequencyRequest),
			Threshold:  100,
			TimeWindow: 60,
			GroupBy:    GroupByIPUser,
		},
		{
			Name:         "admin-probe",
			RuleType:     CustomType("web"),
			Threshold:    2,
			EventTypes:   []string{"http_request"},
			Match:        map[string]string{"method": "POST"},
			Pattern:      `^/admin`,
			PatternField: "path",
		},
	}
}

func TestRuleJSONRoundTrip(t *testing.T) {
	for _, rule := range sampleRules() {
		data, err := json.Marshal(rule)
		require.NoError(t, err)

		var decoded Rule
		require.NoError(t, json.Unmarshal(data, &decoded))
		assert.Equal(t, rule, decoded)
	}
}

func TestRuleYAMLRoundTrip(t *testing.T) {
	for _, rule := range sampleRules() {
		data, err := yaml.Marshal(rule)
		require.NoError(t, err)

		var decoded Rule
		require.NoError(t, yaml.Unmarshal(data, &decoded))
		assert.Equal(t, rule, decoded)
	}
}

func TestRuleTypeJSONShape(t *testing.T) {
	data, err := json.Marshal(TypeOf(RuleKindSuspiciousIP))
	require.NoError(t, err)
	assert.Equal(t, `"SuspiciousIp"`, string(data))

	data, err = json.Marshal(CustomType("dns"))
	require.NoError(t, err)
	assert.Equal(t, `{"Custom":"dns"}`, string(data))

	var rt RuleType
	require.NoError(t, json.Unmarshal([]byte(`"Custom"`), &rt))
	assert.Equal(t, CustomType(""), rt)

	require.NoError(t, json.Unmarshal([]byte(`"brute_force"`), &rt))
	assert.Equal(t, TypeOf(RuleKindBruteForce), rt)

	assert.Error(t, json.Unmarshal([]byte(`"Nope"`), &rt))
	assert.Error(t, json.Unmarshal([]byte(`{"BruteForce":"x"}`), &rt))
	assert.Error(t, json.Unmarshal([]byte(`{"Custom":"a","Other":"b"}`), &rt))
}

func TestRuleLegacyTimeWindowKey(t *testing.T) {
	var r Rule
	require.NoError(t, json.Unmarshal([]byte(`{"name":"x","rule_type":"BruteForce","threshold":3,"time_window_seconds":90}`), &r))
	assert.Equal(t, int64(90), r.TimeWindow)

	var y Rule
	require.NoError(t, yaml.Unmarshal([]byte("name: x\nrule_type: BruteForce\nthreshold: 3\ntime_window_seconds: 45\n"), &y))
	assert.Equal(t, int64(45), y.TimeWindow)
}

func TestRuleValidate(t *testing.T) {
	for _, rule := range sampleRules() {
		r := rule
		assert.NoError(t, r.Validate(), r.Name)
	}

	tests := []struct {
		name string
		rule Rule
	}{
		{"missing name", Rule{RuleType: TypeOf(RuleKindBruteForce), Threshold: 1}},
		{"blank name", Rule{Name: "  ", RuleType: TypeOf(RuleKindBruteForce), Threshold: 1}},
		{"zero threshold", Rule{Name: "r", RuleType: TypeOf(RuleKindBruteForce), Threshold: 0}},
		{"negative window", Rule{Name: "r", RuleType: TypeOf(RuleKindBruteForce), Threshold: 1, TimeWindow: -1}},
		{"unknown kind", Rule{Name: "r", RuleType: RuleType{Kind: "Weird"}, Threshold: 1}},
		{"bad group_by", Rule{Name: "r", RuleType: TypeOf(RuleKindBruteForce), Threshold: 1, GroupBy: "user"}},
		{"match on builtin", Rule{Name: "r", RuleType: TypeOf(RuleKindBruteForce), Threshold: 1, Match: map[string]string{"a": "b"}}},
		{"field without pattern", Rule{Name: "r", RuleType: CustomType("x"), Threshold: 1, PatternField: "path"}},
		{"bad pattern", Rule{Name: "r", RuleType: CustomType("x"), Threshold: 1, Pattern: "(unclosed"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.rule.Validate()
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrInvalidRule))
			var ire *InvalidRuleError
			assert.True(t, errors.As(err, &ire))
		})
	}
}

func TestValidateRulesDuplicateName(t *testing.T) {
	rules := sampleRules()
	rules = append(rules, rules[0])

	err := ValidateRules(rules)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInvalidRule)
	assert.Contains(t, err.Error(), "duplicate")
}

func TestRuleGroupKey_PipeInAddressDoesNotCollide(t *testing.T) {
	rule := Rule{GroupBy: GroupByIPUser}
	a := LogEntry{IPAddress: "1.1.1.1|a", UserID: "b"}
	b := LogEntry{IPAddress: "1.1.1.1", UserID: "a|b"}

	assert.NotEqual(t, rule.GroupKey(&a), rule.GroupKey(&b))
	assert.NotEqual(t, "1.1.1.1|a", rule.GroupKey(&a))
}

func TestRuleGroupKeyAndEventTypes(t *testing.T) {
	rules := sampleRules()
	entry := LogEntry{IPAddress: "10.0.0.1", UserID: "alice"}

	assert.Equal(t, "10.0.0.1", rules[0].GroupKey(&entry))
	assert.Equal(t, "10.0.0.1\x00alice", rules[1].GroupKey(&entry))
	assert.Equal(t, "10.0.0.1|alice", DisplayGroupKey(rules[1].GroupKey(&entry)))

	anon := LogEntry{IPAddress: "10.0.0.1"}
	assert.Equal(t, "10.0.0.1", rules[1].GroupKey(&anon))

	assert.Equal(t, BruteForceEventTypes, rules[0].QualifyingEventTypes())
	assert.Nil(t, rules[1].QualifyingEventTypes())
	assert.Equal(t, []string{"http_request"}, rules[2].QualifyingEventTypes())

	suspicious := Rule{RuleType: TypeOf(RuleKindSuspiciousIP)}
	assert.Equal(t, SuspiciousIPEventTypes, suspicious.QualifyingEventTypes())
}
