package domain

// Category buckets catalog tasks by the shift they are scheduled for.
// PRN tasks are "as needed" and relevant on every shift.
type Category string

const (
	CategoryMorning   Category = "morning"
	CategoryAfternoon Category = "afternoon"
	CategoryEvening   Category = "evening"
	CategoryPRN       Category = "prn"
)

// Valid reports whether c is a known task category.
func (c Category) Valid() bool {
	switch c {
	case CategoryMorning, CategoryAfternoon, CategoryEvening, CategoryPRN:
		return true
	}
	return false
}

// Priority grades a journal entry.
type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityNormal Priority = "normal"
	PriorityHigh   Priority = "high"
	PriorityUrgent Priority = "urgent"
)

func (p Priority) Valid() bool {
	switch p {
	case PriorityLow, PriorityNormal, PriorityHigh, PriorityUrgent:
		return true
	}
	return false
}

// Task is a catalog checklist item. The catalog is defined in facility
// config and immutable at runtime; Dependencies list other task ids that
// are usually done first (ordering hint, never a completion gate).
type Task struct {
	ID               string   `json:"id"`
	Label            string   `json:"label"`
	Description      string   `json:"description,omitempty"`
	Category         Category `json:"category" enum:"morning,afternoon,evening,prn"`
	Required         bool     `json:"required"`
	EstimatedMinutes *int     `json:"estimated_minutes,omitempty"`
	Dependencies     []string `json:"dependencies,omitempty"`
}

// CompletionEvent records that a staff member completed (or deliberately
// skipped) a catalog task for a resident. OccurredOn is the calendar date
// in the facility timezone, fixed at write time so later timezone changes
// cannot move the event across day boundaries.
type CompletionEvent struct {
	ID          string `json:"id"`
	TaskID      string `json:"task_id"`
	ResidentID  string `json:"resident_id"`
	StaffID     string `json:"staff_id"`
	CompletedAt string `json:"completed_at" format:"date-time"`
	OccurredOn  string `json:"occurred_on" format:"date"`
	Notes       string `json:"notes,omitempty"`
	Skipped     bool   `json:"skipped"`
	SkipReason  string `json:"skip_reason,omitempty"`
	Removed     bool   `json:"-"`
}

// JournalEntry is a free-text shift note. ResidentID is nil for general
// shift notes. Shift is derived from the clock at creation, never supplied
// by the caller.
type JournalEntry struct {
	ID         string   `json:"id"`
	ResidentID *string  `json:"resident_id,omitempty"`
	StaffID    string   `json:"staff_id"`
	Shift      string   `json:"shift" enum:"morning,afternoon,evening,night"`
	Content    string   `json:"content"`
	IsHandover bool     `json:"is_handover"`
	Priority   Priority `json:"priority" enum:"low,normal,high,urgent"`
	Tags       []string `json:"tags"`
	AudioURL   *string  `json:"audio_url,omitempty"`
	CreatedAt  string   `json:"created_at" format:"date-time"`
	UpdatedAt  string   `json:"updated_at" format:"date-time"`
	EntryOn    string   `json:"entry_on" format:"date"`
}

// Progress is the derived completion state for one resident and day,
// scoped to the shift that is current when it is computed.
type Progress struct {
	ResidentID         string `json:"resident_id"`
	Day                string `json:"day" format:"date"`
	Shift              string `json:"shift" enum:"morning,afternoon,evening,night"`
	Total              int    `json:"total"`
	Completed          int    `json:"completed"`
	Percentage         int    `json:"percentage"`
	RequiredTotal      int    `json:"required_total"`
	RequiredCompleted  int    `json:"required_completed"`
	RequiredPercentage int    `json:"required_percentage"`
}

// Event is one row of the append-only change log; webhooks and `sl log
// tail` read from it.
type Event struct {
	ID         int64  `json:"id"`
	TS         string `json:"ts" format:"date-time"`
	Type       string `json:"type"`
	FacilityID string `json:"facility_id,omitempty"`
	EntityKind string `json:"entity_kind"`
	EntityID   string `json:"entity_id,omitempty"`
	StaffID    string `json:"staff_id"`
	Payload    string `json:"payload_json"`
}

// APIKey maps a hashed device key to a staff identity.
type APIKey struct {
	ID        string `json:"id"`
	StaffID   string `json:"staff_id"`
	Name      string `json:"name,omitempty"`
	KeyHash   string `json:"-"`
	CreatedAt string `json:"created_at" format:"date-time"`
}
