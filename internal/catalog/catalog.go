// Package catalog exposes read-only, order-preserving views over the
// facility task catalog defined in config.
package catalog

import (
	"shiftledger/internal/config"
	"shiftledger/internal/domain"
)

type Catalog struct {
	tasks []domain.Task
	byID  map[string]int
}

// New builds a catalog from validated config. Order is config file order.
func New(cfg *config.Config) *Catalog {
	c := &Catalog{byID: make(map[string]int, len(cfg.Catalog))}
	for _, t := range cfg.Catalog {
		task := domain.Task{
			ID:               t.ID,
			Label:            t.Label,
			Description:      t.Description,
			Category:         domain.Category(t.Category),
			Required:         t.Required,
			EstimatedMinutes: t.EstimatedMinutes,
			Dependencies:     append([]string(nil), t.Dependencies...),
		}
		c.byID[task.ID] = len(c.tasks)
		c.tasks = append(c.tasks, task)
	}
	return c
}

// AllTasks returns every task in catalog order. The slice is a copy.
func (c *Catalog) AllTasks() []domain.Task {
	return append([]domain.Task(nil), c.tasks...)
}

// TaskByID looks a task up; catalog misses are routine, not errors.
func (c *Catalog) TaskByID(id string) (domain.Task, bool) {
	i, ok := c.byID[id]
	if !ok {
		return domain.Task{}, false
	}
	return c.tasks[i], true
}

// TasksByCategory returns the ordered subsequence matching any of the
// given categories.
func (c *Catalog) TasksByCategory(cats ...domain.Category) []domain.Task {
	want := make(map[domain.Category]bool, len(cats))
	for _, cat := range cats {
		want[cat] = true
	}
	var res []domain.Task
	for _, t := range c.tasks {
		if want[t.Category] {
			res = append(res, t)
		}
	}
	return res
}
