package catalog_test

import (
	"testing"

	"shiftledger/internal/catalog"
	"shiftledger/internal/config"
	"shiftledger/internal/domain"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg, err := config.FromYAML([]byte(`facility:
  id: f1
catalog:
  - id: meds
    label: Medication
    category: morning
    required: true
  - id: breakfast
    label: Breakfast
    category: morning
    required: true
    dependencies: [meds]
  - id: lunch
    label: Lunch
    category: afternoon
    required: true
  - id: pain-check
    label: Pain check
    category: prn
`))
	if err != nil {
		t.Fatalf("config: %v", err)
	}
	return cfg
}

func TestOrderPreserved(t *testing.T) {
	c := catalog.New(testConfig(t))
	tasks := c.AllTasks()
	want := []string{"meds", "breakfast", "lunch", "pain-check"}
	if len(tasks) != len(want) {
		t.Fatalf("got %d tasks", len(tasks))
	}
	for i, id := range want {
		if tasks[i].ID != id {
			t.Errorf("tasks[%d] = %s, want %s", i, tasks[i].ID, id)
		}
	}
}

func TestTaskByID(t *testing.T) {
	c := catalog.New(testConfig(t))
	task, ok := c.TaskByID("breakfast")
	if !ok || task.Label != "Breakfast" {
		t.Fatalf("lookup failed: %v %v", task, ok)
	}
	if len(task.Dependencies) != 1 || task.Dependencies[0] != "meds" {
		t.Fatalf("dependencies: %v", task.Dependencies)
	}
	if _, ok := c.TaskByID("nope"); ok {
		t.Fatal("expected miss")
	}
}

func TestTasksByCategory(t *testing.T) {
	c := catalog.New(testConfig(t))
	tasks := c.TasksByCategory(domain.CategoryMorning, domain.CategoryPRN)
	want := []string{"meds", "breakfast", "pain-check"}
	if len(tasks) != len(want) {
		t.Fatalf("got %d tasks: %v", len(tasks), tasks)
	}
	for i, id := range want {
		if tasks[i].ID != id {
			t.Errorf("tasks[%d] = %s, want %s", i, tasks[i].ID, id)
		}
	}
}
