package core

import (
	"encoding/json"
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"
)

// RuleKind is the detection behaviour of a rule.
type RuleKind string

const (
	RuleKindBruteForce           RuleKind = "BruteForce"
	RuleKindHighFrequencyRequest RuleKind = "HighFrequencyRequest"
	RuleKindSuspiciousIP         RuleKind = "SuspiciousIp"
	RuleKindCustom               RuleKind = "Custom"
)

// Grouping keys. Both are refinements of the source IP.
const (
	GroupByIP     = "ip"
	GroupByIPUser = "ip_user"
)

// Default qualifying event types for the built-in kinds.
var (
	BruteForceEventTypes   = []string{"login_failed"}
	SuspiciousIPEventTypes = []string{"port_scan", "unauthorized_access"}
)

// RuleType is a rule kind plus, for Custom rules, a free-form tag.
//
// Built-in kinds serialize as a bare string ("BruteForce"); custom rules
// serialize as {"Custom": "tag"}. A bare "Custom" decodes with an empty tag.
type RuleType struct {
	Kind RuleKind `msgpack:"kind"`
	Tag  string   `msgpack:"tag,omitempty"`
}

// CustomType builds a Custom rule type with the given tag.
func CustomType(tag string) RuleType {
	return RuleType{Kind: RuleKindCustom, Tag: tag}
}

// TypeOf builds a built-in rule type.
func TypeOf(kind RuleKind) RuleType {
	return RuleType{Kind: kind}
}

// IsValid reports whether the kind is one of the known kinds.
func (t RuleType) IsValid() bool {
	switch t.Kind {
	case RuleKindBruteForce, RuleKindHighFrequencyRequest, RuleKindSuspiciousIP, RuleKindCustom:
		return true
	}
	return false
}

func (t RuleType) String() string {
	if t.Kind == RuleKindCustom && t.Tag != "" {
		return fmt.Sprintf("Custom(%s)", t.Tag)
	}
	return string(t.Kind)
}

func (t RuleType) MarshalJSON() ([]byte, error) {
	if t.Kind == RuleKindCustom {
		return json.Marshal(map[string]string{string(RuleKindCustom): t.Tag})
	}
	return json.Marshal(string(t.Kind))
}

func (t *RuleType) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		return t.fromString(s)
	}
	var m map[string]string
	if err := json.Unmarshal(data, &m); err != nil {
		return fmt.Errorf("rule_type must be a string or {\"Custom\": tag}: %w", err)
	}
	return t.fromMap(m)
}

func (t RuleType) MarshalYAML() (interface{}, error) {
	if t.Kind == RuleKindCustom {
		return map[string]string{string(RuleKindCustom): t.Tag}, nil
	}
	return string(t.Kind), nil
}

func (t *RuleType) UnmarshalYAML(value *yaml.Node) error {
	switch value.Kind {
	case yaml.ScalarNode:
		return t.fromString(value.Value)
	case yaml.MappingNode:
		var m map[string]string
		if err := value.Decode(&m); err != nil {
			return fmt.Errorf("rule_type: %w", err)
		}
		return t.fromMap(m)
	default:
		return fmt.Errorf("rule_type must be a scalar or a mapping, line %d", value.Line)
	}
}

func (t *RuleType) fromString(s string) error {
	kind, ok := parseRuleKind(s)
	if !ok {
		return fmt.Errorf("unknown rule_type %q", s)
	}
	*t = RuleType{Kind: kind}
	return nil
}

func (t *RuleType) fromMap(m map[string]string) error {
	if len(m) != 1 {
		return fmt.Errorf("rule_type mapping must have exactly one key, got %d", len(m))
	}
	for k, v := range m {
		if kind, ok := parseRuleKind(k); !ok || kind != RuleKindCustom {
			return fmt.Errorf("rule_type mapping key must be %q, got %q", RuleKindCustom, k)
		}
		*t = CustomType(v)
	}
	return nil
}

func parseRuleKind(s string) (RuleKind, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "bruteforce", "brute_force":
		return RuleKindBruteForce, true
	case "highfrequencyrequest", "high_frequency_request":
		return RuleKindHighFrequencyRequest, true
	case "suspiciousip", "suspicious_ip":
		return RuleKindSuspiciousIP, true
	case "custom":
		return RuleKindCustom, true
	}
	return "", false
}

// Rule is a named behavioral detection rule.
//
// TimeWindow is in seconds; zero means the window spans the whole batch.
// EventTypes, Match, Pattern and PatternField narrow which records qualify;
// Match, Pattern and PatternField are only meaningful for Custom rules.
type Rule struct {
	Name         string            `json:"name" yaml:"name" msgpack:"name" validate:"required,max=200"`
	Description  string            `json:"description" yaml:"description" msgpack:"description" validate:"max=2000"`
	RuleType     RuleType          `json:"rule_type" yaml:"rule_type" msgpack:"rule_type"`
	Threshold    int               `json:"threshold" yaml:"threshold" msgpack:"threshold" validate:"min=1"`
	TimeWindow   int64             `json:"time_window" yaml:"time_window" msgpack:"time_window" validate:"min=0"`
	EventTypes   []string          `json:"event_types,omitempty" yaml:"event_types,omitempty" msgpack:"event_types,omitempty" validate:"max=50,dive,required,max=100"`
	GroupBy      string            `json:"group_by,omitempty" yaml:"group_by,omitempty" msgpack:"group_by,omitempty" validate:"omitempty,oneof=ip ip_user"`
	Match        map[string]string `json:"match,omitempty" yaml:"match,omitempty" msgpack:"match,omitempty" validate:"max=50"`
	Pattern      string            `json:"pattern,omitempty" yaml:"pattern,omitempty" msgpack:"pattern,omitempty" validate:"max=1000"`
	PatternField string            `json:"pattern_field,omitempty" yaml:"pattern_field,omitempty" msgpack:"pattern_field,omitempty" validate:"max=100"`
}

// ruleAlias has Rule's fields without its methods, so decoding can add the
// legacy time_window_seconds key without recursing.
type ruleAlias Rule

type ruleJSON struct {
	ruleAlias
	TimeWindowSeconds *int64 `json:"time_window_seconds,omitempty"`
}

func (r *Rule) UnmarshalJSON(data []byte) error {
	var raw ruleJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*r = Rule(raw.ruleAlias)
	if raw.TimeWindowSeconds != nil && r.TimeWindow == 0 {
		r.TimeWindow = *raw.TimeWindowSeconds
	}
	return nil
}

type ruleYAML struct {
	ruleAlias         `yaml:",inline"`
	TimeWindowSeconds *int64 `yaml:"time_window_seconds,omitempty"`
}

func (r *Rule) UnmarshalYAML(value *yaml.Node) error {
	var raw ruleYAML
	if err := value.Decode(&raw); err != nil {
		return err
	}
	*r = Rule(raw.ruleAlias)
	if raw.TimeWindowSeconds != nil && r.TimeWindow == 0 {
		r.TimeWindow = *raw.TimeWindowSeconds
	}
	return nil
}

// Grouping returns the effective grouping key mode.
func (r *Rule) Grouping() string {
	if r.GroupBy == "" {
		return GroupByIP
	}
	return r.GroupBy
}

// QualifyingEventTypes returns the event types that count toward the rule.
// A nil result means every event type qualifies.
func (r *Rule) QualifyingEventTypes() []string {
	if len(r.EventTypes) > 0 && r.RuleType.Kind != RuleKindHighFrequencyRequest {
		return r.EventTypes
	}
	switch r.RuleType.Kind {
	case RuleKindBruteForce:
		return BruteForceEventTypes
	case RuleKindSuspiciousIP:
		return SuspiciousIPEventTypes
	}
	return nil
}

// groupKeySep joins the parts of an ip_user key. Addresses may carry
// arbitrary printable text, so the separator is a control byte.
const groupKeySep = "\x00"

// GroupKey derives the grouping key of a record under this rule.
func (r *Rule) GroupKey(e *LogEntry) string {
	if r.Grouping() == GroupByIPUser && e.UserID != "" {
		return e.IPAddress + groupKeySep + e.UserID
	}
	return e.IPAddress
}

// DisplayGroupKey renders a GroupKey for people, as ip|user.
func DisplayGroupKey(key string) string {
	return strings.ReplaceAll(key, groupKeySep, "|")
}
