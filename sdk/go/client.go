package shiftledgersdk

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Client is a minimal Shiftledger HTTP API client.
type Client struct {
	BaseURL     string
	APIKey      string
	BearerToken string
	StaffID     string // legacy X-Staff-Id fallback, used when no key or token is set
	HTTPClient  *http.Client
	Timeout     time.Duration
}

// New creates a client with sane defaults.
func New(baseURL string) *Client {
	return &Client{
		BaseURL: baseURL,
		Timeout: 10 * time.Second,
	}
}

// Task represents a catalog task.
type Task struct {
	ID               string   `json:"id"`
	Label            string   `json:"label"`
	Description      string   `json:"description"`
	Category         string   `json:"category"`
	Required         bool     `json:"required"`
	EstimatedMinutes *int     `json:"estimated_minutes"`
	Dependencies     []string `json:"dependencies"`
}

// Completion represents a recorded completion or skip.
type Completion struct {
	ID          string `json:"id"`
	TaskID      string `json:"task_id"`
	ResidentID  string `json:"resident_id"`
	StaffID     string `json:"staff_id"`
	CompletedAt string `json:"completed_at"`
	OccurredOn  string `json:"occurred_on"`
	Notes       string `json:"notes"`
	Skipped     bool   `json:"skipped"`
	SkipReason  string `json:"skip_reason"`
}

// Entry represents a journal entry.
type Entry struct {
	ID         string   `json:"id"`
	ResidentID *string  `json:"resident_id"`
	StaffID    string   `json:"staff_id"`
	Shift      string   `json:"shift"`
	Content    string   `json:"content"`
	IsHandover bool     `json:"is_handover"`
	Priority   string   `json:"priority"`
	Tags       []string `json:"tags"`
	AudioURL   *string  `json:"audio_url"`
	CreatedAt  string   `json:"created_at"`
	UpdatedAt  string   `json:"updated_at"`
	EntryOn    string   `json:"entry_on"`
}

// Progress represents current-shift completion state for a resident.
type Progress struct {
	ResidentID         string `json:"resident_id"`
	Day                string `json:"day"`
	Shift              string `json:"shift"`
	Total              int    `json:"total"`
	Completed          int    `json:"completed"`
	Percentage         int    `json:"percentage"`
	RequiredTotal      int    `json:"required_total"`
	RequiredCompleted  int    `json:"required_completed"`
	RequiredPercentage int    `json:"required_percentage"`
}

// Event represents a change-log entry.
type Event struct {
	ID         int64          `json:"id"`
	TS         string         `json:"ts"`
	Type       string         `json:"type"`
	FacilityID string         `json:"facility_id"`
	EntityKind string         `json:"entity_kind"`
	EntityID   string         `json:"entity_id"`
	StaffID    string         `json:"staff_id"`
	Payload    map[string]any `json:"payload"`
}

// APIError wraps non-2xx responses.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api error: status=%d body=%s", e.StatusCode, e.Body)
}

// PaginatedEvents wraps event listings with cursors.
type PaginatedEvents struct {
	Items      []Event `json:"items"`
	NextCursor string  `json:"next_cursor"`
}

// Tasks lists the catalog, optionally narrowed to a shift's relevant tasks.
func (c *Client) Tasks(ctx context.Context, shift string) ([]Task, error) {
	endpoint := "v0/tasks"
	if shift != "" {
		endpoint += "?shift=" + url.QueryEscape(shift)
	}
	var resp []Task
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp, err
}

// RecordCompletion records a completed task for a resident.
func (c *Client) RecordCompletion(ctx context.Context, taskID, residentID, notes string) (Completion, error) {
	body := map[string]any{
		"task_id":     taskID,
		"resident_id": residentID,
		"notes":       notes,
	}
	var resp Completion
	err := c.do(ctx, http.MethodPost, "v0/completions", body, &resp)
	return resp, err
}

// SkipTask records a deliberate skip with a reason.
func (c *Client) SkipTask(ctx context.Context, taskID, residentID, reason string) (Completion, error) {
	body := map[string]any{
		"task_id":     taskID,
		"resident_id": residentID,
		"skipped":     true,
		"skip_reason": reason,
	}
	var resp Completion
	err := c.do(ctx, http.MethodPost, "v0/completions", body, &resp)
	return resp, err
}

// RemoveCompletion removes a completion; unknown ids are a no-op.
func (c *Client) RemoveCompletion(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, "v0/completions/"+url.PathEscape(id), nil, nil)
}

// Completions lists a resident's completions for a day (empty day = today).
func (c *Client) Completions(ctx context.Context, residentID, day string) ([]Completion, error) {
	endpoint := "v0/completions?resident_id=" + url.QueryEscape(residentID)
	if day != "" {
		endpoint += "&day=" + url.QueryEscape(day)
	}
	var resp []Completion
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp, err
}

// Progress returns current-shift progress for a resident.
func (c *Client) Progress(ctx context.Context, residentID, day string) (Progress, error) {
	endpoint := fmt.Sprintf("v0/residents/%s/progress", url.PathEscape(residentID))
	if day != "" {
		endpoint += "?day=" + url.QueryEscape(day)
	}
	var resp Progress
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp, err
}

// CreateEntry creates a journal entry. residentID may be empty for a
// general shift note.
func (c *Client) CreateEntry(ctx context.Context, residentID, content string, handover bool) (Entry, error) {
	body := map[string]any{
		"content":     content,
		"is_handover": handover,
	}
	if residentID != "" {
		body["resident_id"] = residentID
	}
	var resp Entry
	err := c.do(ctx, http.MethodPost, "v0/journal", body, &resp)
	return resp, err
}

// Entries lists journal entries for a day, optionally filtered by shift.
func (c *Client) Entries(ctx context.Context, shift, day string, handoverOnly bool) ([]Entry, error) {
	q := url.Values{}
	if shift != "" {
		q.Set("shift", shift)
	}
	if day != "" {
		q.Set("day", day)
	}
	if handoverOnly {
		q.Set("handover", "true")
	}
	endpoint := "v0/journal"
	if encoded := q.Encode(); encoded != "" {
		endpoint += "?" + encoded
	}
	var resp []Entry
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp, err
}

// DeleteEntry deletes a journal entry; unknown ids are a no-op.
func (c *Client) DeleteEntry(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, "v0/journal/"+url.PathEscape(id), nil, nil)
}

// AttachVoiceNote links an audio reference to an entry.
func (c *Client) AttachVoiceNote(ctx context.Context, id, audioURL string) (Entry, error) {
	body := map[string]any{"audio_url": audioURL}
	var resp Entry
	endpoint := fmt.Sprintf("v0/journal/%s/voice-note", url.PathEscape(id))
	err := c.do(ctx, http.MethodPost, endpoint, body, &resp)
	return resp, err
}

// Events returns recent events.
func (c *Client) Events(ctx context.Context, limit int) ([]Event, error) {
	page, err := c.EventsPage(ctx, limit, "")
	return page.Items, err
}

// EventsPage returns a paginated event listing.
func (c *Client) EventsPage(ctx context.Context, limit int, cursor string) (PaginatedEvents, error) {
	endpoint := "v0/events"
	if limit > 0 {
		endpoint = fmt.Sprintf("%s?limit=%d", endpoint, limit)
	}
	if cursor != "" {
		sep := "?"
		if strings.Contains(endpoint, "?") {
			sep = "&"
		}
		endpoint = fmt.Sprintf("%s%scursor=%s", endpoint, sep, url.QueryEscape(cursor))
	}
	var resp PaginatedEvents
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp, err
}

func (c *Client) do(ctx context.Context, method, endpoint string, body any, out any) error {
	if c.HTTPClient == nil {
		c.HTTPClient = &http.Client{Timeout: c.Timeout}
	}
	url := c.base() + "/" + strings.TrimLeft(endpoint, "/")
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return err
		}
	}
	req, err := http.NewRequestWithContext(ctx, method, url, &buf)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	switch {
	case c.BearerToken != "":
		req.Header.Set("Authorization", "Bearer "+c.BearerToken)
	case c.APIKey != "":
		req.Header.Set("X-Api-Key", c.APIKey)
	case c.StaffID != "":
		req.Header.Set("X-Staff-Id", c.StaffID)
	}
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		b, _ := io.ReadAll(resp.Body)
		return &APIError{StatusCode: resp.StatusCode, Body: string(b)}
	}
	if out != nil {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}

func (c *Client) base() string {
	return strings.TrimRight(c.BaseURL, "/")
}
