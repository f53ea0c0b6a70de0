// Package engine is the query/mutation facade over the completion and
// journal ledgers. Every mutation requires an acting staff identity, runs
// in one transaction, appends a change event, and invalidates the read
// caches for the keys it touched.
package engine

import (
	"context"
	"database/sql"
	"math"
	"strings"
	"time"

	"github.com/google/uuid"

	"shiftledger/internal/catalog"
	"shiftledger/internal/config"
	"shiftledger/internal/domain"
	"shiftledger/internal/events"
	"shiftledger/internal/repo"
	"shiftledger/internal/shift"
)

type Engine struct {
	DB      *sql.DB
	Repo    repo.Repo
	Catalog *catalog.Catalog
	Events  events.Writer
	Config  *config.Config
	Now     func() time.Time

	cache *caches
}

func New(db *sql.DB, cfg *config.Config) Engine {
	return Engine{
		DB:      db,
		Repo:    repo.Repo{DB: db},
		Catalog: catalog.New(cfg),
		Events:  events.Writer{DB: db},
		Config:  cfg,
		Now:     time.Now,
		cache:   newCaches(),
	}
}

func (e Engine) now() time.Time {
	if e.Now != nil {
		return e.Now()
	}
	return time.Now()
}

// localNow returns the current instant in the facility timezone; shifts
// and calendar days are always derived from it.
func (e Engine) localNow() time.Time {
	return e.now().In(e.Config.Location())
}

// Today returns the current calendar date in the facility timezone.
func (e Engine) Today() string {
	return shift.DateOf(e.localNow())
}

// CurrentShift returns the shift the facility clock is in right now.
func (e Engine) CurrentShift() shift.Shift {
	return shift.ForTime(e.localNow())
}

func (e Engine) facilityID() string {
	return e.Config.Facility.ID
}

// CompletionOptions are parameters for recording a completion or skip.
type CompletionOptions struct {
	TaskID     string
	ResidentID string
	StaffID    string
	Notes      string
	Skipped    bool
	SkipReason string
}

// RecordCompletion appends a completion event. The timestamp is assigned
// here, never supplied by the caller, and inserts are not deduplicated:
// progress treats completion as set membership, so duplicates are harmless.
func (e Engine) RecordCompletion(ctx context.Context, opts CompletionOptions) (domain.CompletionEvent, error) {
	if strings.TrimSpace(opts.StaffID) == "" {
		return domain.CompletionEvent{}, ErrUnauthenticated
	}
	if opts.ResidentID == "" {
		return domain.CompletionEvent{}, ValidationError{Field: "resident_id", Reason: "required"}
	}
	if _, ok := e.Catalog.TaskByID(opts.TaskID); !ok {
		return domain.CompletionEvent{}, ValidationError{Field: "task_id", Reason: "unknown task " + opts.TaskID}
	}
	now := e.now()
	c := domain.CompletionEvent{
		ID:          uuid.NewString(),
		TaskID:      opts.TaskID,
		ResidentID:  opts.ResidentID,
		StaffID:     opts.StaffID,
		CompletedAt: now.UTC().Format(time.RFC3339),
		OccurredOn:  shift.DateOf(now.In(e.Config.Location())),
		Notes:       opts.Notes,
		Skipped:     opts.Skipped,
		SkipReason:  opts.SkipReason,
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.CompletionEvent{}, err
	}
	defer tx.Rollback()
	if err := e.Repo.EnsureStaff(ctx, tx, c.StaffID, c.CompletedAt); err != nil {
		return domain.CompletionEvent{}, err
	}
	if err := e.Repo.InsertCompletion(ctx, tx, c); err != nil {
		return domain.CompletionEvent{}, err
	}
	if err := e.Events.Append(ctx, tx, "completion.recorded", e.facilityID(), "completion", c.ID, c.StaffID, events.EventPayload{
		"task_id":     c.TaskID,
		"resident_id": c.ResidentID,
		"skipped":     c.Skipped,
	}); err != nil {
		return domain.CompletionEvent{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.CompletionEvent{}, err
	}
	e.cache.invalidateCompletions(c.ResidentID, c.OccurredOn)
	return c, nil
}

// RemoveCompletion soft-removes a completion. Removing a missing or
// already-removed id is a no-op: the UI removes optimistically and may
// race its own confirmation.
func (e Engine) RemoveCompletion(ctx context.Context, id, staffID string) error {
	if strings.TrimSpace(staffID) == "" {
		return ErrUnauthenticated
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	existing, err := e.Repo.GetCompletionTx(ctx, tx, id)
	if err == repo.ErrNotFound {
		return nil
	}
	if err != nil {
		return err
	}
	removed, err := e.Repo.MarkCompletionRemoved(ctx, tx, id)
	if err != nil {
		return err
	}
	if !removed {
		return nil
	}
	if err := e.Events.Append(ctx, tx, "completion.removed", e.facilityID(), "completion", id, staffID, events.EventPayload{
		"task_id":     existing.TaskID,
		"resident_id": existing.ResidentID,
	}); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return err
	}
	e.cache.invalidateCompletions(existing.ResidentID, existing.OccurredOn)
	return nil
}

// CompletionUpdateOptions carries a partial completion update; nil fields
// are left untouched.
type CompletionUpdateOptions struct {
	ID         string
	StaffID    string
	Notes      *string
	Skipped    *bool
	SkipReason *string
}

func (e Engine) UpdateCompletion(ctx context.Context, opts CompletionUpdateOptions) (domain.CompletionEvent, error) {
	if strings.TrimSpace(opts.StaffID) == "" {
		return domain.CompletionEvent{}, ErrUnauthenticated
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.CompletionEvent{}, err
	}
	defer tx.Rollback()
	c, err := e.Repo.GetCompletionTx(ctx, tx, opts.ID)
	if err != nil {
		return domain.CompletionEvent{}, err
	}
	if opts.Notes != nil {
		c.Notes = *opts.Notes
	}
	if opts.Skipped != nil {
		c.Skipped = *opts.Skipped
	}
	if opts.SkipReason != nil {
		c.SkipReason = *opts.SkipReason
	}
	if err := e.Repo.UpdateCompletion(ctx, tx, c); err != nil {
		return domain.CompletionEvent{}, err
	}
	if err := e.Events.Append(ctx, tx, "completion.updated", e.facilityID(), "completion", c.ID, opts.StaffID, events.EventPayload{
		"task_id":     c.TaskID,
		"resident_id": c.ResidentID,
	}); err != nil {
		return domain.CompletionEvent{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.CompletionEvent{}, err
	}
	e.cache.invalidateCompletions(c.ResidentID, c.OccurredOn)
	return c, nil
}

// CompletionsFor returns the non-removed completion events for a resident
// on a calendar day (default today). Results come from a read-through
// cache invalidated by mutations on the same resident+day key.
func (e Engine) CompletionsFor(ctx context.Context, residentID, day string) ([]domain.CompletionEvent, error) {
	if day == "" {
		day = e.Today()
	}
	key := completionKey(residentID, day)
	if cached, ok := e.cache.completions.Get(key); ok {
		return append([]domain.CompletionEvent(nil), cached...), nil
	}
	res, err := e.Repo.ListCompletions(ctx, repo.CompletionFilters{ResidentID: residentID, Day: day})
	if err != nil {
		return nil, err
	}
	e.cache.completions.Add(key, res)
	return append([]domain.CompletionEvent(nil), res...), nil
}

// Progress computes completion percentages for a resident and day against
// the current shift's relevant categories. A shift with no relevant tasks
// is vacuously fully done.
func (e Engine) Progress(ctx context.Context, residentID, day string) (domain.Progress, error) {
	if day == "" {
		day = e.Today()
	}
	current := e.CurrentShift()
	relevant := e.Catalog.TasksByCategory(shift.RelevantCategories(current)...)

	completions, err := e.CompletionsFor(ctx, residentID, day)
	if err != nil {
		return domain.Progress{}, err
	}
	completedIDs := make(map[string]bool)
	for _, c := range completions {
		if c.Skipped {
			continue
		}
		completedIDs[c.TaskID] = true
	}

	p := domain.Progress{ResidentID: residentID, Day: day, Shift: string(current)}
	for _, t := range relevant {
		p.Total++
		if t.Required {
			p.RequiredTotal++
		}
		if completedIDs[t.ID] {
			p.Completed++
			if t.Required {
				p.RequiredCompleted++
			}
		}
	}
	p.Percentage = percentage(p.Completed, p.Total)
	p.RequiredPercentage = percentage(p.RequiredCompleted, p.RequiredTotal)
	return p, nil
}

func percentage(completed, total int) int {
	if total == 0 {
		return 100
	}
	return int(math.Round(100 * float64(completed) / float64(total)))
}

// RelevantTasks returns the catalog tasks a shift's staff work through,
// in catalog order.
func (e Engine) RelevantTasks(shiftName string) ([]domain.Task, error) {
	s := shift.Shift(shiftName)
	if !s.Valid() {
		return nil, ValidationError{Field: "shift", Reason: "must be one of morning, afternoon, evening, night"}
	}
	return e.Catalog.TasksByCategory(shift.RelevantCategories(s)...), nil
}

// PendingDependencies returns the ids of a task's dependencies that are
// not yet completed for the resident on the given day. Purely an ordering
// hint for the UI; nothing blocks on it.
func (e Engine) PendingDependencies(ctx context.Context, residentID, taskID, day string) ([]string, error) {
	task, ok := e.Catalog.TaskByID(taskID)
	if !ok {
		return nil, ValidationError{Field: "task_id", Reason: "unknown task " + taskID}
	}
	if len(task.Dependencies) == 0 {
		return nil, nil
	}
	completions, err := e.CompletionsFor(ctx, residentID, day)
	if err != nil {
		return nil, err
	}
	done := make(map[string]bool)
	for _, c := range completions {
		if !c.Skipped {
			done[c.TaskID] = true
		}
	}
	var pending []string
	for _, dep := range task.Dependencies {
		if !done[dep] {
			pending = append(pending, dep)
		}
	}
	return pending, nil
}

// EntryOptions are parameters for creating a journal entry. Shift is
// always derived from the clock, never supplied.
type EntryOptions struct {
	StaffID    string
	ResidentID *string
	Content    string
	IsHandover bool
	Priority   domain.Priority
	Tags       []string
	AudioURL   *string
}

func (e Engine) CreateEntry(ctx context.Context, opts EntryOptions) (domain.JournalEntry, error) {
	if strings.TrimSpace(opts.StaffID) == "" {
		return domain.JournalEntry{}, ErrUnauthenticated
	}
	if strings.TrimSpace(opts.Content) == "" {
		return domain.JournalEntry{}, ValidationError{Field: "content", Reason: "required"}
	}
	priority := opts.Priority
	if priority == "" {
		priority = domain.PriorityNormal
	}
	if !priority.Valid() {
		return domain.JournalEntry{}, ValidationError{Field: "priority", Reason: "must be one of low, normal, high, urgent"}
	}
	tags := opts.Tags
	if tags == nil {
		tags = ExtractTags(opts.Content)
	}
	now := e.now()
	local := now.In(e.Config.Location())
	ts := now.UTC().Format(time.RFC3339)
	entry := domain.JournalEntry{
		ID:         uuid.NewString(),
		ResidentID: opts.ResidentID,
		StaffID:    opts.StaffID,
		Shift:      string(shift.ForTime(local)),
		Content:    opts.Content,
		IsHandover: opts.IsHandover,
		Priority:   priority,
		Tags:       tags,
		AudioURL:   opts.AudioURL,
		CreatedAt:  ts,
		UpdatedAt:  ts,
		EntryOn:    shift.DateOf(local),
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.JournalEntry{}, err
	}
	defer tx.Rollback()
	if err := e.Repo.EnsureStaff(ctx, tx, entry.StaffID, ts); err != nil {
		return domain.JournalEntry{}, err
	}
	if err := e.Repo.InsertEntry(ctx, tx, entry); err != nil {
		return domain.JournalEntry{}, err
	}
	payload := events.EventPayload{"shift": entry.Shift, "is_handover": entry.IsHandover}
	if entry.ResidentID != nil {
		payload["resident_id"] = *entry.ResidentID
	}
	if err := e.Events.Append(ctx, tx, "journal.entry.created", e.facilityID(), "journal_entry", entry.ID, entry.StaffID, payload); err != nil {
		return domain.JournalEntry{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.JournalEntry{}, err
	}
	e.cache.invalidateEntries(entry.EntryOn)
	return entry, nil
}

// EntryUpdateOptions carries a partial journal update; nil fields are
// left untouched. A content change with no explicit tags re-extracts
// tags from the new content.
type EntryUpdateOptions struct {
	ID         string
	StaffID    string
	Content    *string
	Priority   *domain.Priority
	IsHandover *bool
	Tags       []string
	AudioURL   *string
}

func (e Engine) UpdateEntry(ctx context.Context, opts EntryUpdateOptions) (domain.JournalEntry, error) {
	if strings.TrimSpace(opts.StaffID) == "" {
		return domain.JournalEntry{}, ErrUnauthenticated
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.JournalEntry{}, err
	}
	defer tx.Rollback()
	entry, err := e.Repo.GetEntryTx(ctx, tx, opts.ID)
	if err != nil {
		return domain.JournalEntry{}, err
	}
	if opts.Content != nil {
		if strings.TrimSpace(*opts.Content) == "" {
			return domain.JournalEntry{}, ValidationError{Field: "content", Reason: "required"}
		}
		entry.Content = *opts.Content
		if opts.Tags == nil {
			entry.Tags = ExtractTags(entry.Content)
		}
	}
	if opts.Tags != nil {
		entry.Tags = opts.Tags
	}
	if opts.Priority != nil {
		if !opts.Priority.Valid() {
			return domain.JournalEntry{}, ValidationError{Field: "priority", Reason: "must be one of low, normal, high, urgent"}
		}
		entry.Priority = *opts.Priority
	}
	if opts.IsHandover != nil {
		entry.IsHandover = *opts.IsHandover
	}
	if opts.AudioURL != nil {
		entry.AudioURL = opts.AudioURL
	}
	entry.UpdatedAt = e.now().UTC().Format(time.RFC3339)
	if err := e.Repo.UpdateEntry(ctx, tx, entry); err != nil {
		return domain.JournalEntry{}, err
	}
	if err := e.Events.Append(ctx, tx, "journal.entry.updated", e.facilityID(), "journal_entry", entry.ID, opts.StaffID, nil); err != nil {
		return domain.JournalEntry{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.JournalEntry{}, err
	}
	e.cache.invalidateEntries(entry.EntryOn)
	return entry, nil
}

// DeleteEntry removes a journal entry; deleting a missing id is a no-op.
func (e Engine) DeleteEntry(ctx context.Context, id, staffID string) error {
	if strings.TrimSpace(staffID) == "" {
		return ErrUnauthenticated
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	entry, err := e.Repo.GetEntryTx(ctx, tx, id)
	if err == repo.ErrNotFound {
		return nil
	}
	if err != nil {
		return err
	}
	deleted, err := e.Repo.DeleteEntry(ctx, tx, id)
	if err != nil {
		return err
	}
	if !deleted {
		return nil
	}
	if err := e.Events.Append(ctx, tx, "journal.entry.deleted", e.facilityID(), "journal_entry", id, staffID, nil); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return err
	}
	e.cache.invalidateEntries(entry.EntryOn)
	return nil
}

// AttachVoiceNote links an uploaded audio reference to an entry. The
// upload itself happens elsewhere; this only stores the opaque URL.
func (e Engine) AttachVoiceNote(ctx context.Context, id, staffID, audioURL string) (domain.JournalEntry, error) {
	if strings.TrimSpace(audioURL) == "" {
		return domain.JournalEntry{}, ValidationError{Field: "audio_url", Reason: "required"}
	}
	return e.UpdateEntry(ctx, EntryUpdateOptions{ID: id, StaffID: staffID, AudioURL: &audioURL})
}

// EntryFilters narrow a journal listing. Empty fields are not filtered
// on; Day defaults to today.
type EntryFilters struct {
	ResidentID   string
	Shift        string
	Day          string
	HandoverOnly bool
}

// Entries returns journal entries newest-first, filtered by exact match
// on each supplied criterion and bucketed to one calendar day.
func (e Engine) Entries(ctx context.Context, f EntryFilters) ([]domain.JournalEntry, error) {
	if f.Shift != "" && !shift.Shift(f.Shift).Valid() {
		return nil, ValidationError{Field: "shift", Reason: "must be one of morning, afternoon, evening, night"}
	}
	if f.Day == "" {
		f.Day = e.Today()
	}
	key := entryKey(f)
	if cached, ok := e.cache.entries.Get(key); ok {
		return copyEntries(cached), nil
	}
	res, err := e.Repo.ListEntries(ctx, repo.EntryFilters{
		ResidentID:   f.ResidentID,
		Shift:        f.Shift,
		Day:          f.Day,
		HandoverOnly: f.HandoverOnly,
	})
	if err != nil {
		return nil, err
	}
	e.cache.entries.Add(key, copyEntries(res))
	return res, nil
}

// HandoverEntries returns the entries flagged for the next shift's staff.
func (e Engine) HandoverEntries(ctx context.Context, shiftName, day string) ([]domain.JournalEntry, error) {
	return e.Entries(ctx, EntryFilters{Shift: shiftName, Day: day, HandoverOnly: true})
}
