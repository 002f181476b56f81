package core

import (
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
)

// alertNamespace seeds content-derived alert ids.
var alertNamespace = uuid.MustParse("6f1c2a4e-3b7d-5e8f-9a0b-1c2d3e4f5a6b")

// Alert is emitted when a rule's threshold is crossed for one group.
type Alert struct {
	ID             string    `json:"id" yaml:"id" msgpack:"id"`
	Timestamp      time.Time `json:"timestamp" yaml:"timestamp" msgpack:"timestamp"`
	AlertType      RuleType  `json:"alert_type" yaml:"alert_type" msgpack:"alert_type"`
	Description    string    `json:"description" yaml:"description" msgpack:"description"`
	LogEntrySample LogEntry  `json:"log_entry_sample" yaml:"log_entry_sample" msgpack:"log_entry_sample"`
	RuleName       string    `json:"rule_name" yaml:"rule_name" msgpack:"rule_name"`
	GroupKey       string    `json:"group_key" yaml:"group_key" msgpack:"group_key"`
	WindowStart    time.Time `json:"window_start" yaml:"window_start" msgpack:"window_start"`
	Count          int       `json:"count" yaml:"count" msgpack:"count"`
}

// NewAlert builds the alert for a threshold crossing. The id depends only on
// the rule, group, crossing ordinal and trigger record, so every execution
// mode produces the same id for the same crossing.
func NewAlert(rule *Rule, groupKey string, crossing int, trigger LogEntry, windowStart time.Time, count int) Alert {
	return Alert{
		ID:             AlertID(rule.Name, groupKey, crossing, trigger.Timestamp),
		Timestamp:      trigger.Timestamp,
		AlertType:      rule.RuleType,
		Description:    describeAlert(rule, DisplayGroupKey(groupKey), count),
		LogEntrySample: trigger,
		RuleName:       rule.Name,
		GroupKey:       DisplayGroupKey(groupKey),
		WindowStart:    windowStart,
		Count:          count,
	}
}

// AlertID derives the deterministic id of a crossing.
func AlertID(ruleName, groupKey string, crossing int, ts time.Time) string {
	key := ruleName + "\x00" + groupKey + "\x00" + strconv.Itoa(crossing) + "\x00" + ts.UTC().Format(time.RFC3339Nano)
	return uuid.NewSHA1(alertNamespace, []byte(key)).String()
}

func describeAlert(rule *Rule, groupKey string, count int) string {
	window := "the whole batch"
	if rule.TimeWindow > 0 {
		window = fmt.Sprintf("%ds", rule.TimeWindow)
	}
	return fmt.Sprintf("%s: %d qualifying events from %s within %s (threshold %d)",
		rule.Name, count, groupKey, window, rule.Threshold)
}
