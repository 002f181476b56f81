package detect

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"argus/core"

	"github.com/xeipuuv/gojsonschema"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

//go:embed rules_schema.json
var rulesSchemaJSON []byte

var (
	schemaOnce sync.Once
	schema     *gojsonschema.Schema
	schemaErr  error
)

func rulesSchema() (*gojsonschema.Schema, error) {
	schemaOnce.Do(func() {
		schema, schemaErr = gojsonschema.NewSchema(gojsonschema.NewBytesLoader(rulesSchemaJSON))
	})
	return schema, schemaErr
}

// Format is the encoding of a rule source.
type Format string

const (
	FormatJSON Format = "json"
	FormatYAML Format = "yaml"
)

// FormatForPath picks the format from the file extension.
func FormatForPath(path string) (Format, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		return FormatJSON, nil
	case ".yaml", ".yml":
		return FormatYAML, nil
	}
	return "", fmt.Errorf("%w: unsupported rules file extension %q", core.ErrRuleSourceMalformed, filepath.Ext(path))
}

// LoadRules reads and validates a rule set from a JSON or YAML file.
// A single invalid rule rejects the whole file.
func LoadRules(path string, logger *zap.SugaredLogger) ([]core.Rule, error) {
	format, err := FormatForPath(path)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", core.ErrRuleSourceUnreadable, err)
	}

	rules, err := ParseRules(data, format)
	if err != nil {
		return nil, fmt.Errorf("failed to load rules from %s: %w", path, err)
	}

	logger.Infof("Loaded %d rules from %s", len(rules), path)
	return rules, nil
}

// ParseRules decodes a rule set. Both a bare list and {"rules": [...]} are
// accepted.
func ParseRules(data []byte, format Format) ([]core.Rule, error) {
	var doc interface{}
	var err error
	switch format {
	case FormatJSON:
		err = json.Unmarshal(data, &doc)
	case FormatYAML:
		err = yaml.Unmarshal(data, &doc)
	default:
		return nil, fmt.Errorf("%w: unknown format %q", core.ErrRuleSourceMalformed, format)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %w", core.ErrRuleSourceMalformed, err)
	}

	if err := validateAgainstSchema(doc); err != nil {
		return nil, err
	}

	var rules []core.Rule
	_, isList := doc.([]interface{})
	switch {
	case isList && format == FormatJSON:
		err = json.Unmarshal(data, &rules)
	case isList:
		err = yaml.Unmarshal(data, &rules)
	case format == FormatJSON:
		var wrapped struct {
			Rules []core.Rule `json:"rules"`
		}
		err = json.Unmarshal(data, &wrapped)
		rules = wrapped.Rules
	default:
		var wrapped struct {
			Rules []core.Rule `yaml:"rules"`
		}
		err = yaml.Unmarshal(data, &wrapped)
		rules = wrapped.Rules
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %w", core.ErrRuleSourceMalformed, err)
	}

	if err := core.ValidateRules(rules); err != nil {
		return nil, err
	}
	if rules == nil {
		rules = []core.Rule{}
	}
	return rules, nil
}

func validateAgainstSchema(doc interface{}) error {
	s, err := rulesSchema()
	if err != nil {
		return fmt.Errorf("failed to compile rules schema: %w", err)
	}
	result, err := s.Validate(gojsonschema.NewGoLoader(doc))
	if err != nil {
		return fmt.Errorf("%w: %w", core.ErrRuleSourceMalformed, err)
	}
	if result.Valid() {
		return nil
	}
	msgs := make([]string, 0, len(result.Errors()))
	for _, e := range result.Errors() {
		msgs = append(msgs, e.String())
	}
	return fmt.Errorf("%w: %s", core.ErrRuleSourceMalformed, strings.Join(msgs, "; "))
}
