package config_test

import (
	"strings"
	"testing"

	"shiftledger/internal/config"
)

func TestDefaultConfigValidates(t *testing.T) {
	cfg := config.Default("sunrise-house")
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}
	if cfg.Facility.ID != "sunrise-house" {
		t.Fatalf("facility id not applied: %q", cfg.Facility.ID)
	}
	if len(cfg.Catalog) == 0 {
		t.Fatal("default catalog empty")
	}
}

func TestUnknownDependencyRejected(t *testing.T) {
	_, err := config.FromYAML([]byte(`facility:
  id: f1
catalog:
  - id: a
    label: A
    category: morning
    dependencies: [missing]
`))
	if err == nil || !strings.Contains(err.Error(), "unknown task") {
		t.Fatalf("expected unknown dependency error, got %v", err)
	}
}

func TestDependencyCycleRejected(t *testing.T) {
	_, err := config.FromYAML([]byte(`facility:
  id: f1
catalog:
  - id: a
    label: A
    category: morning
    dependencies: [b]
  - id: b
    label: B
    category: morning
    dependencies: [a]
`))
	if err == nil || !strings.Contains(err.Error(), "cycle") {
		t.Fatalf("expected cycle error, got %v", err)
	}
}

func TestInvalidCategoryRejected(t *testing.T) {
	_, err := config.FromYAML([]byte(`facility:
  id: f1
catalog:
  - id: a
    label: A
    category: overnight
`))
	if err == nil || !strings.Contains(err.Error(), "invalid category") {
		t.Fatalf("expected category error, got %v", err)
	}
}

func TestInvalidTimezoneRejected(t *testing.T) {
	_, err := config.FromYAML([]byte(`facility:
  id: f1
  timezone: Mars/Olympus
catalog:
  - id: a
    label: A
    category: prn
`))
	if err == nil || !strings.Contains(err.Error(), "timezone") {
		t.Fatalf("expected timezone error, got %v", err)
	}
}
