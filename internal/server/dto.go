package server

import (
	"encoding/json"

	"shiftledger/internal/config"
	"shiftledger/internal/domain"
)

// Request payloads

type RecordCompletionRequest struct {
	TaskID     string  `json:"task_id"`
	ResidentID string  `json:"resident_id"`
	Notes      *string `json:"notes,omitempty"`
	Skipped    bool    `json:"skipped,omitempty"`
	SkipReason *string `json:"skip_reason,omitempty"`
}

type UpdateCompletionRequest struct {
	Notes      *string `json:"notes,omitempty"`
	Skipped    *bool   `json:"skipped,omitempty"`
	SkipReason *string `json:"skip_reason,omitempty"`
}

type CreateEntryRequest struct {
	ResidentID *string  `json:"resident_id,omitempty"`
	Content    string   `json:"content"`
	IsHandover bool     `json:"is_handover,omitempty"`
	Priority   *string  `json:"priority,omitempty" enum:"low,normal,high,urgent"`
	Tags       []string `json:"tags,omitempty"`
	AudioURL   *string  `json:"audio_url,omitempty"`
}

type UpdateEntryRequest struct {
	Content    *string  `json:"content,omitempty"`
	Priority   *string  `json:"priority,omitempty" enum:"low,normal,high,urgent"`
	IsHandover *bool    `json:"is_handover,omitempty"`
	Tags       []string `json:"tags,omitempty"`
	AudioURL   *string  `json:"audio_url,omitempty"`
}

type AttachVoiceNoteRequest struct {
	AudioURL string `json:"audio_url"`
}

type CreateAPIKeyRequest struct {
	StaffID string `json:"staff_id,omitempty"`
	Name    string `json:"name,omitempty"`
}

// Response payloads

type TaskResponse struct {
	ID               string   `json:"id"`
	Label            string   `json:"label"`
	Description      string   `json:"description,omitempty"`
	Category         string   `json:"category" enum:"morning,afternoon,evening,prn"`
	Required         bool     `json:"required"`
	EstimatedMinutes *int     `json:"estimated_minutes,omitempty"`
	Dependencies     []string `json:"dependencies"`
}

type CompletionResponse struct {
	ID          string `json:"id"`
	TaskID      string `json:"task_id"`
	ResidentID  string `json:"resident_id"`
	StaffID     string `json:"staff_id"`
	CompletedAt string `json:"completed_at" format:"date-time"`
	OccurredOn  string `json:"occurred_on" format:"date"`
	Notes       string `json:"notes,omitempty"`
	Skipped     bool   `json:"skipped"`
	SkipReason  string `json:"skip_reason,omitempty"`
}

type EntryResponse struct {
	ID         string   `json:"id"`
	ResidentID *string  `json:"resident_id,omitempty"`
	StaffID    string   `json:"staff_id"`
	Shift      string   `json:"shift" enum:"morning,afternoon,evening,night"`
	Content    string   `json:"content"`
	IsHandover bool     `json:"is_handover"`
	Priority   string   `json:"priority" enum:"low,normal,high,urgent"`
	Tags       []string `json:"tags"`
	AudioURL   *string  `json:"audio_url,omitempty"`
	CreatedAt  string   `json:"created_at" format:"date-time"`
	UpdatedAt  string   `json:"updated_at" format:"date-time"`
	EntryOn    string   `json:"entry_on" format:"date"`
}

type ProgressResponse struct {
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

type EventResponse struct {
	ID         int64          `json:"id"`
	TS         string         `json:"ts" format:"date-time"`
	Type       string         `json:"type"`
	FacilityID string         `json:"facility_id,omitempty"`
	EntityKind string         `json:"entity_kind"`
	EntityID   string         `json:"entity_id,omitempty"`
	StaffID    string         `json:"staff_id"`
	Payload    map[string]any `json:"payload"`
}

type APIKeyResponse struct {
	ID        string `json:"id"`
	StaffID   string `json:"staff_id"`
	Name      string `json:"name,omitempty"`
	Key       string `json:"key,omitempty"`
	CreatedAt string `json:"created_at" format:"date-time"`
}

type FacilityConfigResponse struct {
	Facility facilityConfigSection `json:"facility"`
	Catalog  []TaskResponse        `json:"catalog"`
}

type facilityConfigSection struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Timezone string `json:"timezone,omitempty"`
}

type WhoAmIResponse struct {
	StaffID string `json:"staff_id"`
	Source  string `json:"source"`
}

type paginatedEvents struct {
	Items      []EventResponse `json:"items"`
	NextCursor string          `json:"next_cursor,omitempty"`
}

// Conversion helpers

func taskResponse(t domain.Task) TaskResponse {
	return TaskResponse{
		ID:               t.ID,
		Label:            t.Label,
		Description:      t.Description,
		Category:         string(t.Category),
		Required:         t.Required,
		EstimatedMinutes: t.EstimatedMinutes,
		Dependencies:     nonNilSlice(t.Dependencies),
	}
}

func mapTasks(tasks []domain.Task) []TaskResponse {
	res := make([]TaskResponse, 0, len(tasks))
	for _, t := range tasks {
		res = append(res, taskResponse(t))
	}
	return res
}

func completionResponse(c domain.CompletionEvent) CompletionResponse {
	return CompletionResponse{
		ID:          c.ID,
		TaskID:      c.TaskID,
		ResidentID:  c.ResidentID,
		StaffID:     c.StaffID,
		CompletedAt: c.CompletedAt,
		OccurredOn:  c.OccurredOn,
		Notes:       c.Notes,
		Skipped:     c.Skipped,
		SkipReason:  c.SkipReason,
	}
}

func mapCompletions(items []domain.CompletionEvent) []CompletionResponse {
	res := make([]CompletionResponse, 0, len(items))
	for _, c := range items {
		res = append(res, completionResponse(c))
	}
	return res
}

func entryResponse(e domain.JournalEntry) EntryResponse {
	return EntryResponse{
		ID:         e.ID,
		ResidentID: e.ResidentID,
		StaffID:    e.StaffID,
		Shift:      e.Shift,
		Content:    e.Content,
		IsHandover: e.IsHandover,
		Priority:   string(e.Priority),
		Tags:       nonNilSlice(e.Tags),
		AudioURL:   e.AudioURL,
		CreatedAt:  e.CreatedAt,
		UpdatedAt:  e.UpdatedAt,
		EntryOn:    e.EntryOn,
	}
}

func mapEntries(items []domain.JournalEntry) []EntryResponse {
	res := make([]EntryResponse, 0, len(items))
	for _, e := range items {
		res = append(res, entryResponse(e))
	}
	return res
}

func progressResponse(p domain.Progress) ProgressResponse {
	return ProgressResponse(p)
}

func eventResponse(e domain.Event) EventResponse {
	return EventResponse{
		ID:         e.ID,
		TS:         e.TS,
		Type:       e.Type,
		FacilityID: e.FacilityID,
		EntityKind: e.EntityKind,
		EntityID:   e.EntityID,
		StaffID:    e.StaffID,
		Payload:    decodeJSONMap(e.Payload),
	}
}

func apiKeyResponse(k domain.APIKey) APIKeyResponse {
	return APIKeyResponse{
		ID:        k.ID,
		StaffID:   k.StaffID,
		Name:      k.Name,
		CreatedAt: k.CreatedAt,
	}
}

func configResponse(cfg *config.Config) FacilityConfigResponse {
	res := FacilityConfigResponse{
		Facility: facilityConfigSection{
			ID:       cfg.Facility.ID,
			Name:     cfg.Facility.Name,
			Timezone: cfg.Facility.Timezone,
		},
		Catalog: []TaskResponse{},
	}
	for _, t := range cfg.Catalog {
		res.Catalog = append(res.Catalog, TaskResponse{
			ID:               t.ID,
			Label:            t.Label,
			Description:      t.Description,
			Category:         t.Category,
			Required:         t.Required,
			EstimatedMinutes: t.EstimatedMinutes,
			Dependencies:     nonNilSlice(t.Dependencies),
		})
	}
	return res
}

// JSON helpers

func decodeJSONMap(raw string) map[string]any {
	if raw == "" {
		return nil
	}
	var tmp any
	if err := json.Unmarshal([]byte(raw), &tmp); err != nil {
		return nil
	}
	if obj, ok := tmp.(map[string]any); ok {
		return obj
	}
	return nil
}

func nonNilSlice[T any](in []T) []T {
	if in == nil {
		return []T{}
	}
	return in
}

func stringOrEmpty(in *string) string {
	if in == nil {
		return ""
	}
	return *in
}
