package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/zhfg/refly-sub011/model"
)

// filterFile is the YAML layout of a context filter file:
//
//	rules:
//	  document: {limit: 5, required: true}
//	  historyItem: {disabled: true}
type filterFile struct {
	Rules map[string]model.FilterRule `yaml:"rules"`
}

// DefaultFilterConfig allows up to model.MaxLimit items of every type and
// requires none.
func DefaultFilterConfig() model.FilterConfig {
	cfg := make(model.FilterConfig, len(model.ContextItemTypes))
	for _, typ := range model.ContextItemTypes {
		cfg[typ] = model.FilterRule{Limit: model.MaxLimit}
	}
	return cfg
}

// LoadFilterConfig reads filter rules from a YAML file. Types missing from
// the file keep their default rule. An empty path returns the defaults.
func LoadFilterConfig(path string) (model.FilterConfig, error) {
	cfg := DefaultFilterConfig()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read filter config %s: %w", path, err)
	}
	var file filterFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parse filter config %s: %w", path, err)
	}

	for name, rule := range file.Rules {
		typ := model.ContextItemType(name)
		if !typ.Valid() {
			return nil, fmt.Errorf("filter config %s: unknown item type %q", path, name)
		}
		if rule.Limit < 0 {
			return nil, fmt.Errorf("filter config %s: negative limit for %s", path, name)
		}
		cfg[typ] = rule
	}
	return cfg, nil
}
