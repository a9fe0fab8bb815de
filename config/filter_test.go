package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/zhfg/refly-sub011/model"
)

func writeFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "filter.yaml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("write: %v", err)
	}
	return path
}

func TestDefaultFilterConfig(t *testing.T) {
	cfg := DefaultFilterConfig()
	for _, typ := range model.ContextItemTypes {
		rule, ok := cfg[typ]
		if !ok || rule.Limit != model.MaxLimit || rule.Required {
			t.Errorf("unexpected default rule for %s: %+v", typ, rule)
		}
	}
}

func TestLoadFilterConfigMergesDefaults(t *testing.T) {
	path := writeFile(t, `
rules:
  document:
    limit: 2
    required: true
  historyItem:
    disabled: true
`)
	cfg, err := LoadFilterConfig(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if doc := cfg[model.ContextDocument]; doc.Limit != 2 || !doc.Required {
		t.Errorf("unexpected document rule %+v", doc)
	}
	if limit, ok := cfg[model.ContextHistoryItem].EffectiveLimit(); !ok || limit != 0 {
		t.Errorf("expected history disabled, got %d %v", limit, ok)
	}
	if cfg[model.ContextResource].Limit != model.MaxLimit {
		t.Errorf("expected resource default, got %+v", cfg[model.ContextResource])
	}
}

func TestLoadFilterConfigEmptyPath(t *testing.T) {
	cfg, err := LoadFilterConfig("")
	if err != nil || len(cfg) != len(model.ContextItemTypes) {
		t.Errorf("expected defaults, got %v (%v)", cfg, err)
	}
}

func TestLoadFilterConfigErrors(t *testing.T) {
	cases := map[string]string{
		"unknown type":   "rules:\n  canvas: {limit: 1}\n",
		"negative limit": "rules:\n  document: {limit: -1}\n",
		"bad yaml":       "rules: [",
	}
	for name, content := range cases {
		t.Run(name, func(t *testing.T) {
			if _, err := LoadFilterConfig(writeFile(t, content)); err == nil {
				t.Error("expected error")
			}
		})
	}
	if _, err := LoadFilterConfig(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("expected error for missing file")
	}
}
