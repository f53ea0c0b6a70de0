package shift

import (
	"time"

	"shiftledger/internal/domain"
)

// Shift is one of the four fixed daily staff windows.
type Shift string

const (
	Morning   Shift = "morning"
	Afternoon Shift = "afternoon"
	Evening   Shift = "evening"
	Night     Shift = "night"
)

func (s Shift) Valid() bool {
	switch s {
	case Morning, Afternoon, Evening, Night:
		return true
	}
	return false
}

// ForTime maps a wall-clock instant to its shift: [6,12) morning,
// [12,18) afternoon, [18,24) evening, everything else night. The caller
// passes a time already in the facility timezone.
func ForTime(t time.Time) Shift {
	switch h := t.Hour(); {
	case h >= 6 && h < 12:
		return Morning
	case h >= 12 && h < 18:
		return Afternoon
	case h >= 18:
		return Evening
	default:
		return Night
	}
}

// RelevantCategories returns the task categories a shift's staff work
// through. Night staff only see as-needed tasks; every other shift sees
// its own scheduled category plus prn.
func RelevantCategories(s Shift) []domain.Category {
	if s == Night {
		return []domain.Category{domain.CategoryPRN}
	}
	return []domain.Category{domain.Category(s), domain.CategoryPRN}
}

// DateOf formats t's calendar date as YYYY-MM-DD.
func DateOf(t time.Time) string {
	return t.Format("2006-01-02")
}
