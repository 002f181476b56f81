package core

import (
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/dlclark/regexp2"
	"github.com/go-playground/validator/v10"
)

var (
	validateOnce sync.Once
	validate     *validator.Validate
)

func ruleValidator() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New(validator.WithRequiredStructEnabled())
	})
	return validate
}

// Validate checks the rule invariants and returns an *InvalidRuleError on
// the first violation.
func (r *Rule) Validate() error {
	if err := ruleValidator().Struct(r); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			fe := verrs[0]
			return &InvalidRuleError{Rule: r.Name, Reason: describeFieldError(fe)}
		}
		return &InvalidRuleError{Rule: r.Name, Reason: err.Error()}
	}
	if strings.TrimSpace(r.Name) == "" {
		return &InvalidRuleError{Reason: "name must not be blank"}
	}
	if !r.RuleType.IsValid() {
		return &InvalidRuleError{Rule: r.Name, Reason: fmt.Sprintf("unknown rule_type %q", r.RuleType.Kind)}
	}
	if r.RuleType.Kind != RuleKindCustom {
		if len(r.Match) > 0 || r.Pattern != "" || r.PatternField != "" {
			return &InvalidRuleError{Rule: r.Name, Reason: "match, pattern and pattern_field are only allowed on Custom rules"}
		}
	}
	if r.PatternField != "" && r.Pattern == "" {
		return &InvalidRuleError{Rule: r.Name, Reason: "pattern_field requires pattern"}
	}
	if r.Pattern != "" {
		if _, err := regexp2.Compile(r.Pattern, regexp2.None); err != nil {
			return &InvalidRuleError{Rule: r.Name, Reason: fmt.Sprintf("pattern does not compile: %v", err)}
		}
	}
	return nil
}

// ValidateRules validates every rule and rejects duplicate names.
func ValidateRules(rules []Rule) error {
	seen := make(map[string]struct{}, len(rules))
	for i := range rules {
		if err := rules[i].Validate(); err != nil {
			return err
		}
		if _, dup := seen[rules[i].Name]; dup {
			return &InvalidRuleError{Rule: rules[i].Name, Reason: "duplicate rule name"}
		}
		seen[rules[i].Name] = struct{}{}
	}
	return nil
}

func describeFieldError(fe validator.FieldError) string {
	field := strings.ToLower(fe.Field())
	switch fe.Tag() {
	case "required":
		return fmt.Sprintf("%s is required", field)
	case "min":
		return fmt.Sprintf("%s must be at least %s, got %v", field, fe.Param(), fe.Value())
	case "max":
		return fmt.Sprintf("%s exceeds maximum of %s", field, fe.Param())
	case "oneof":
		return fmt.Sprintf("%s must be one of [%s], got %v", field, fe.Param(), fe.Value())
	default:
		return fmt.Sprintf("%s failed %s validation", field, fe.Tag())
	}
}
