package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"shiftledger/internal/domain"
)

// Config models shiftledger.yml: one facility, its task catalog, and any
// outbound webhooks.
type Config struct {
	Facility struct {
		ID       string `yaml:"id"`
		Name     string `yaml:"name"`
		Timezone string `yaml:"timezone"`
	} `yaml:"facility"`
	Catalog  []TaskConfig    `yaml:"catalog"`
	Webhooks []WebhookConfig `yaml:"webhooks"`
}

// TaskConfig is one checklist task definition. Catalog order is file order.
type TaskConfig struct {
	ID               string   `yaml:"id"`
	Label            string   `yaml:"label"`
	Description      string   `yaml:"description"`
	Category         string   `yaml:"category"`
	Required         bool     `yaml:"required"`
	EstimatedMinutes *int     `yaml:"estimated_minutes"`
	Dependencies     []string `yaml:"dependencies"`
}

// WebhookConfig describes one event subscriber.
type WebhookConfig struct {
	URL            string   `yaml:"url"`
	Secret         string   `yaml:"secret"`
	Events         []string `yaml:"events"`
	ResidentID     string   `yaml:"resident_id"`
	TimeoutSeconds int      `yaml:"timeout_seconds"`
	Enabled        *bool    `yaml:"enabled"`
}

// Load reads and validates config from workspace.
func Load(workspace string) (*Config, error) {
	path := Path(workspace)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("config %s not found; import with sl config import --file <path>", path)
		}
		return nil, err
	}
	return FromYAML(data)
}

// LoadOptional returns nil,nil if the config file does not exist.
func LoadOptional(workspace string) (*Config, error) {
	path := Path(workspace)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	return FromYAML(data)
}

// Validate ensures the config meets required structure. Catalog checks are
// static validity only: dependencies must name known tasks and may not form
// cycles, but nothing here gates runtime completion order.
func (c *Config) Validate() error {
	if c.Facility.ID == "" {
		return fmt.Errorf("config.facility.id is required")
	}
	if c.Facility.Timezone != "" {
		if _, err := time.LoadLocation(c.Facility.Timezone); err != nil {
			return fmt.Errorf("config.facility.timezone %q is not a valid IANA zone", c.Facility.Timezone)
		}
	}
	if len(c.Catalog) == 0 {
		return fmt.Errorf("config.catalog must define at least one task")
	}
	seen := map[string]bool{}
	for i, t := range c.Catalog {
		if t.ID == "" {
			return fmt.Errorf("catalog[%d] has empty task id", i)
		}
		if seen[t.ID] {
			return fmt.Errorf("catalog task id %s is duplicated", t.ID)
		}
		seen[t.ID] = true
		if t.Label == "" {
			return fmt.Errorf("catalog task %s has empty label", t.ID)
		}
		if !domain.Category(t.Category).Valid() {
			return fmt.Errorf("catalog task %s has invalid category %q", t.ID, t.Category)
		}
		if t.EstimatedMinutes != nil && *t.EstimatedMinutes < 0 {
			return fmt.Errorf("catalog task %s has negative estimated_minutes", t.ID)
		}
	}
	for _, t := range c.Catalog {
		for _, dep := range t.Dependencies {
			if !seen[dep] {
				return fmt.Errorf("catalog task %s depends on unknown task %s", t.ID, dep)
			}
			if dep == t.ID {
				return fmt.Errorf("catalog task %s depends on itself", t.ID)
			}
		}
	}
	if cycle := findDependencyCycle(c.Catalog); cycle != "" {
		return fmt.Errorf("catalog dependencies contain a cycle through %s", cycle)
	}
	for i, hook := range c.Webhooks {
		if hook.URL == "" {
			return fmt.Errorf("webhooks[%d] has empty url", i)
		}
		if hook.TimeoutSeconds < 0 {
			return fmt.Errorf("webhooks[%d] has negative timeout_seconds", i)
		}
	}
	return nil
}

// findDependencyCycle walks the dependency edges and returns a task id on
// a cycle, or "" when the graph is acyclic.
func findDependencyCycle(tasks []TaskConfig) string {
	deps := make(map[string][]string, len(tasks))
	for _, t := range tasks {
		deps[t.ID] = t.Dependencies
	}
	const (
		visiting = 1
		done     = 2
	)
	state := map[string]int{}
	var visit func(id string) string
	visit = func(id string) string {
		switch state[id] {
		case visiting:
			return id
		case done:
			return ""
		}
		state[id] = visiting
		for _, dep := range deps[id] {
			if hit := visit(dep); hit != "" {
				return hit
			}
		}
		state[id] = done
		return ""
	}
	for _, t := range tasks {
		if hit := visit(t.ID); hit != "" {
			return hit
		}
	}
	return ""
}

// Location resolves the facility timezone, defaulting to the process-local
// zone when unset.
func (c *Config) Location() *time.Location {
	if c.Facility.Timezone == "" {
		return time.Local
	}
	loc, err := time.LoadLocation(c.Facility.Timezone)
	if err != nil {
		return time.Local
	}
	return loc
}

// Path returns the config file path for a workspace.
func Path(workspace string) string {
	if workspace == "" {
		workspace = "."
	}
	return filepath.Join(workspace, "shiftledger.yml")
}

// GenerateDefault returns default config YAML.
func GenerateDefault(facilityID string) string {
	return fmt.Sprintf(defaultTemplate, facilityID)
}

// Default returns the default Config struct for a facility.
func Default(facilityID string) *Config {
	var cfg Config
	cfg.Facility.ID = facilityID
	_ = yaml.Unmarshal([]byte(fmt.Sprintf(defaultTemplate, facilityID)), &cfg)
	return &cfg
}

// FromYAML parses and validates config from raw YAML bytes.
func FromYAML(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("invalid config yaml: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// FromFile reads YAML config from the given path.
func FromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return FromYAML(data)
}

const defaultTemplate = `facility:
  id: %s
  name: Default Facility
  timezone: ""

catalog:
  - id: morning-medication
    label: "Morning medication"
    description: "Administer prescribed morning medication"
    category: morning
    required: true
    estimated_minutes: 10

  - id: breakfast-assist
    label: "Breakfast assistance"
    description: "Assist with breakfast and note intake"
    category: morning
    required: true
    estimated_minutes: 30
    dependencies: [morning-medication]

  - id: morning-hygiene
    label: "Morning hygiene"
    description: "Washing, dressing, oral care"
    category: morning
    required: true
    estimated_minutes: 25

  - id: mobility-exercise
    label: "Mobility exercise"
    description: "Guided movement or walking round"
    category: morning
    required: false
    estimated_minutes: 15
    dependencies: [breakfast-assist]

  - id: lunch-assist
    label: "Lunch assistance"
    category: afternoon
    required: true
    estimated_minutes: 30

  - id: afternoon-activity
    label: "Afternoon activity"
    description: "Social or recreational activity"
    category: afternoon
    required: false
    estimated_minutes: 45

  - id: evening-medication
    label: "Evening medication"
    category: evening
    required: true
    estimated_minutes: 10

  - id: night-prep
    label: "Night preparation"
    description: "Evening hygiene and bed preparation"
    category: evening
    required: true
    estimated_minutes: 20
    dependencies: [evening-medication]

  - id: prn-pain-check
    label: "Pain check"
    description: "As-needed pain assessment"
    category: prn
    required: false
    estimated_minutes: 5

  - id: prn-hydration
    label: "Hydration round"
    description: "As-needed fluid offer"
    category: prn
    required: false
    estimated_minutes: 5
`
