package engine_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"shiftledger/internal/config"
	"shiftledger/internal/db"
	"shiftledger/internal/domain"
	"shiftledger/internal/engine"
	"shiftledger/internal/migrate"
)

// testConfig has four required and one optional morning task plus one
// optional prn task, so a morning shift sees six relevant tasks.
func testConfig() *config.Config {
	cfg := &config.Config{}
	cfg.Facility.ID = "fac-test"
	cfg.Facility.Name = "Test Facility"
	cfg.Facility.Timezone = "UTC"
	cfg.Catalog = []config.TaskConfig{
		{ID: "meds", Label: "Medication", Category: "morning", Required: true},
		{ID: "breakfast", Label: "Breakfast", Category: "morning", Required: true, Dependencies: []string{"meds"}},
		{ID: "hygiene", Label: "Hygiene", Category: "morning", Required: true},
		{ID: "vitals", Label: "Vitals", Category: "morning", Required: true},
		{ID: "walk", Label: "Walk", Category: "morning", Required: false},
		{ID: "pain-check", Label: "Pain check", Category: "prn", Required: false},
		{ID: "dinner", Label: "Dinner", Category: "evening", Required: true},
	}
	return cfg
}

func newTestEngine(t *testing.T, cfg *config.Config, now *time.Time) engine.Engine {
	t.Helper()
	conn, err := db.Open(db.Config{Workspace: t.TempDir()})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	if err := migrate.Migrate(conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	e := engine.New(conn, cfg)
	e.Now = func() time.Time { return *now }
	return e
}

// 2026-03-02 is a Monday; 09:30 UTC falls in the morning shift.
var morning = time.Date(2026, 3, 2, 9, 30, 0, 0, time.UTC)

func TestRecordCompletionRequiresStaff(t *testing.T) {
	now := morning
	e := newTestEngine(t, testConfig(), &now)
	ctx := context.Background()

	_, err := e.RecordCompletion(ctx, engine.CompletionOptions{TaskID: "meds", ResidentID: "r1"})
	if !errors.Is(err, engine.ErrUnauthenticated) {
		t.Fatalf("expected ErrUnauthenticated, got %v", err)
	}
	list, err := e.CompletionsFor(ctx, "r1", "")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(list) != 0 {
		t.Fatalf("rejected mutation must not touch the ledger, found %d rows", len(list))
	}
}

func TestRecordCompletionValidation(t *testing.T) {
	now := morning
	e := newTestEngine(t, testConfig(), &now)
	ctx := context.Background()

	var verr engine.ValidationError
	_, err := e.RecordCompletion(ctx, engine.CompletionOptions{TaskID: "no-such-task", ResidentID: "r1", StaffID: "s1"})
	if !errors.As(err, &verr) || verr.Field != "task_id" {
		t.Fatalf("expected task_id validation error, got %v", err)
	}
	_, err = e.RecordCompletion(ctx, engine.CompletionOptions{TaskID: "meds", StaffID: "s1"})
	if !errors.As(err, &verr) || verr.Field != "resident_id" {
		t.Fatalf("expected resident_id validation error, got %v", err)
	}
}

func TestRecordCompletionKeepsDuplicates(t *testing.T) {
	now := morning
	e := newTestEngine(t, testConfig(), &now)
	ctx := context.Background()

	opts := engine.CompletionOptions{TaskID: "meds", ResidentID: "r1", StaffID: "s1"}
	if _, err := e.RecordCompletion(ctx, opts); err != nil {
		t.Fatalf("first record: %v", err)
	}
	// warm the cache, then mutate again to exercise invalidation
	if list, _ := e.CompletionsFor(ctx, "r1", ""); len(list) != 1 {
		t.Fatalf("expected 1 completion, got %d", len(list))
	}
	if _, err := e.RecordCompletion(ctx, opts); err != nil {
		t.Fatalf("second record: %v", err)
	}
	list, err := e.CompletionsFor(ctx, "r1", "")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(list) != 2 {
		t.Fatalf("duplicates must be kept in the ledger, got %d rows", len(list))
	}

	p, err := e.Progress(ctx, "r1", "")
	if err != nil {
		t.Fatalf("progress: %v", err)
	}
	if p.Completed != 1 {
		t.Fatalf("progress must count each task once, got completed=%d", p.Completed)
	}
}

func TestRemoveCompletionIdempotent(t *testing.T) {
	now := morning
	e := newTestEngine(t, testConfig(), &now)
	ctx := context.Background()

	c, err := e.RecordCompletion(ctx, engine.CompletionOptions{TaskID: "meds", ResidentID: "r1", StaffID: "s1"})
	if err != nil {
		t.Fatalf("record: %v", err)
	}
	if err := e.RemoveCompletion(ctx, c.ID, "s1"); err != nil {
		t.Fatalf("remove: %v", err)
	}
	if err := e.RemoveCompletion(ctx, c.ID, "s1"); err != nil {
		t.Fatalf("second remove must be a no-op, got %v", err)
	}
	if err := e.RemoveCompletion(ctx, "never-existed", "s1"); err != nil {
		t.Fatalf("removing an unknown id must be a no-op, got %v", err)
	}
	list, err := e.CompletionsFor(ctx, "r1", "")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(list) != 0 {
		t.Fatalf("removed completion still listed: %d rows", len(list))
	}
	if err := e.RemoveCompletion(ctx, c.ID, ""); !errors.Is(err, engine.ErrUnauthenticated) {
		t.Fatalf("expected ErrUnauthenticated, got %v", err)
	}
}

func TestUpdateCompletion(t *testing.T) {
	now := morning
	e := newTestEngine(t, testConfig(), &now)
	ctx := context.Background()

	c, err := e.RecordCompletion(ctx, engine.CompletionOptions{TaskID: "walk", ResidentID: "r1", StaffID: "s1"})
	if err != nil {
		t.Fatalf("record: %v", err)
	}
	skipped := true
	reason := "resident declined"
	updated, err := e.UpdateCompletion(ctx, engine.CompletionUpdateOptions{ID: c.ID, StaffID: "s2", Skipped: &skipped, SkipReason: &reason})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if !updated.Skipped || updated.SkipReason != reason {
		t.Fatalf("update not applied: %+v", updated)
	}
	if updated.StaffID != "s1" {
		t.Fatalf("recording staff must not change on update, got %s", updated.StaffID)
	}
}

func TestProgressMorningShift(t *testing.T) {
	now := morning
	e := newTestEngine(t, testConfig(), &now)
	ctx := context.Background()

	for _, taskID := range []string{"meds", "breakfast", "hygiene", "vitals"} {
		if _, err := e.RecordCompletion(ctx, engine.CompletionOptions{TaskID: taskID, ResidentID: "r1", StaffID: "s1"}); err != nil {
			t.Fatalf("record %s: %v", taskID, err)
		}
	}
	// a skip is documentation, not completion
	if _, err := e.RecordCompletion(ctx, engine.CompletionOptions{TaskID: "walk", ResidentID: "r1", StaffID: "s1", Skipped: true, SkipReason: "tired"}); err != nil {
		t.Fatalf("record skip: %v", err)
	}

	p, err := e.Progress(ctx, "r1", "")
	if err != nil {
		t.Fatalf("progress: %v", err)
	}
	want := domain.Progress{
		ResidentID: "r1", Day: "2026-03-02", Shift: "morning",
		Total: 6, Completed: 4, Percentage: 67,
		RequiredTotal: 4, RequiredCompleted: 4, RequiredPercentage: 100,
	}
	if p != want {
		t.Fatalf("progress mismatch:\n got %+v\nwant %+v", p, want)
	}
}

func TestProgressSkippedRequiredTaskNotCounted(t *testing.T) {
	now := morning
	e := newTestEngine(t, testConfig(), &now)
	ctx := context.Background()

	if _, err := e.RecordCompletion(ctx, engine.CompletionOptions{TaskID: "meds", ResidentID: "r1", StaffID: "s1", Skipped: true, SkipReason: "refused"}); err != nil {
		t.Fatalf("record skip: %v", err)
	}

	p, err := e.Progress(ctx, "r1", "")
	if err != nil {
		t.Fatalf("progress: %v", err)
	}
	if p.Completed != 0 || p.Percentage != 0 {
		t.Fatalf("skipped required task counted as completed: %+v", p)
	}
	if p.RequiredCompleted != 0 || p.RequiredPercentage != 0 {
		t.Fatalf("skipped required task counted in required figures: %+v", p)
	}
}

func TestProgressVacuouslyComplete(t *testing.T) {
	cfg := testConfig()
	cfg.Catalog = []config.TaskConfig{
		{ID: "dinner", Label: "Dinner", Category: "evening", Required: true},
	}
	now := time.Date(2026, 3, 2, 2, 0, 0, 0, time.UTC) // night shift, no prn tasks
	e := newTestEngine(t, cfg, &now)

	p, err := e.Progress(context.Background(), "r1", "")
	if err != nil {
		t.Fatalf("progress: %v", err)
	}
	if p.Total != 0 || p.Percentage != 100 || p.RequiredPercentage != 100 {
		t.Fatalf("empty shift must report 100%%, got %+v", p)
	}
}

func TestProgressNightShiftSeesOnlyPRN(t *testing.T) {
	now := time.Date(2026, 3, 2, 3, 0, 0, 0, time.UTC)
	e := newTestEngine(t, testConfig(), &now)

	p, err := e.Progress(context.Background(), "r1", "")
	if err != nil {
		t.Fatalf("progress: %v", err)
	}
	if p.Shift != "night" || p.Total != 1 {
		t.Fatalf("night shift should see the single prn task, got %+v", p)
	}
}

func TestPendingDependencies(t *testing.T) {
	now := morning
	e := newTestEngine(t, testConfig(), &now)
	ctx := context.Background()

	pending, err := e.PendingDependencies(ctx, "r1", "breakfast", "")
	if err != nil {
		t.Fatalf("pending: %v", err)
	}
	if len(pending) != 1 || pending[0] != "meds" {
		t.Fatalf("expected [meds], got %v", pending)
	}

	if _, err := e.RecordCompletion(ctx, engine.CompletionOptions{TaskID: "meds", ResidentID: "r1", StaffID: "s1"}); err != nil {
		t.Fatalf("record: %v", err)
	}
	pending, err = e.PendingDependencies(ctx, "r1", "breakfast", "")
	if err != nil {
		t.Fatalf("pending: %v", err)
	}
	if len(pending) != 0 {
		t.Fatalf("expected no pending deps, got %v", pending)
	}

	// dependency satisfaction is advisory: recording out of order still works
	if _, err := e.RecordCompletion(ctx, engine.CompletionOptions{TaskID: "breakfast", ResidentID: "r2", StaffID: "s1"}); err != nil {
		t.Fatalf("out-of-order record must succeed: %v", err)
	}
}

func TestCreateEntryDerivesShiftAndTags(t *testing.T) {
	now := time.Date(2026, 3, 2, 14, 0, 0, 0, time.UTC)
	e := newTestEngine(t, testConfig(), &now)
	ctx := context.Background()

	resident := "r1"
	entry, err := e.CreateEntry(ctx, engine.EntryOptions{
		StaffID:    "s1",
		ResidentID: &resident,
		Content:    "#mood-good ate well at lunch #appetite",
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if entry.Shift != "afternoon" {
		t.Fatalf("expected afternoon shift, got %s", entry.Shift)
	}
	if entry.Priority != domain.PriorityNormal {
		t.Fatalf("expected default priority normal, got %s", entry.Priority)
	}
	if len(entry.Tags) != 2 || entry.Tags[0] != "mood-good" || entry.Tags[1] != "appetite" {
		t.Fatalf("tag extraction mismatch: %v", entry.Tags)
	}
}

func TestCreateEntryRepeatedTagsKept(t *testing.T) {
	now := morning
	e := newTestEngine(t, testConfig(), &now)

	entry, err := e.CreateEntry(context.Background(), engine.EntryOptions{StaffID: "s1", Content: "#a then #a again"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if len(entry.Tags) != 2 || entry.Tags[0] != "a" || entry.Tags[1] != "a" {
		t.Fatalf("repeated tags must be kept in order, got %v", entry.Tags)
	}
}

func TestCreateEntryValidation(t *testing.T) {
	now := morning
	e := newTestEngine(t, testConfig(), &now)
	ctx := context.Background()

	if _, err := e.CreateEntry(ctx, engine.EntryOptions{Content: "unattributed"}); !errors.Is(err, engine.ErrUnauthenticated) {
		t.Fatalf("expected ErrUnauthenticated, got %v", err)
	}
	var verr engine.ValidationError
	if _, err := e.CreateEntry(ctx, engine.EntryOptions{StaffID: "s1", Content: "   "}); !errors.As(err, &verr) || verr.Field != "content" {
		t.Fatalf("expected content validation error, got %v", err)
	}
	if _, err := e.CreateEntry(ctx, engine.EntryOptions{StaffID: "s1", Content: "x", Priority: "critical"}); !errors.As(err, &verr) || verr.Field != "priority" {
		t.Fatalf("expected priority validation error, got %v", err)
	}
}

func TestUpdateEntryReextractsTags(t *testing.T) {
	now := morning
	e := newTestEngine(t, testConfig(), &now)
	ctx := context.Background()

	entry, err := e.CreateEntry(ctx, engine.EntryOptions{StaffID: "s1", Content: "#old note"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	content := "revised #new note"
	updated, err := e.UpdateEntry(ctx, engine.EntryUpdateOptions{ID: entry.ID, StaffID: "s1", Content: &content})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if len(updated.Tags) != 1 || updated.Tags[0] != "new" {
		t.Fatalf("tags must be re-extracted from new content, got %v", updated.Tags)
	}

	explicit := []string{"curated"}
	content2 := "rewritten again #ignored"
	updated, err = e.UpdateEntry(ctx, engine.EntryUpdateOptions{ID: entry.ID, StaffID: "s1", Content: &content2, Tags: explicit})
	if err != nil {
		t.Fatalf("update with tags: %v", err)
	}
	if len(updated.Tags) != 1 || updated.Tags[0] != "curated" {
		t.Fatalf("explicit tags must win over extraction, got %v", updated.Tags)
	}
}

func TestDeleteEntryIdempotent(t *testing.T) {
	now := morning
	e := newTestEngine(t, testConfig(), &now)
	ctx := context.Background()

	entry, err := e.CreateEntry(ctx, engine.EntryOptions{StaffID: "s1", Content: "short note"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := e.DeleteEntry(ctx, entry.ID, "s1"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if err := e.DeleteEntry(ctx, entry.ID, "s1"); err != nil {
		t.Fatalf("second delete must be a no-op, got %v", err)
	}
	list, err := e.Entries(ctx, engine.EntryFilters{})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(list) != 0 {
		t.Fatalf("deleted entry still listed")
	}
}

func TestAttachVoiceNote(t *testing.T) {
	now := morning
	e := newTestEngine(t, testConfig(), &now)
	ctx := context.Background()

	entry, err := e.CreateEntry(ctx, engine.EntryOptions{StaffID: "s1", Content: "see audio"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	updated, err := e.AttachVoiceNote(ctx, entry.ID, "s1", "s3://notes/abc.ogg")
	if err != nil {
		t.Fatalf("attach: %v", err)
	}
	if updated.AudioURL == nil || *updated.AudioURL != "s3://notes/abc.ogg" {
		t.Fatalf("audio url not stored: %+v", updated.AudioURL)
	}
	var verr engine.ValidationError
	if _, err := e.AttachVoiceNote(ctx, entry.ID, "s1", ""); !errors.As(err, &verr) {
		t.Fatalf("expected validation error for empty url, got %v", err)
	}
}

func TestEntriesCachedReadsDoNotShareStorage(t *testing.T) {
	now := time.Date(2026, 3, 2, 19, 0, 0, 0, time.UTC)
	e := newTestEngine(t, testConfig(), &now)
	ctx := context.Background()

	resident := "r1"
	if _, err := e.CreateEntry(ctx, engine.EntryOptions{StaffID: "s1", ResidentID: &resident, Content: "restless #mood-low"}); err != nil {
		t.Fatalf("create: %v", err)
	}

	first, err := e.Entries(ctx, engine.EntryFilters{})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	first[0].Tags[0] = "scribbled-over"
	*first[0].ResidentID = "someone-else"

	second, err := e.Entries(ctx, engine.EntryFilters{})
	if err != nil {
		t.Fatalf("relist: %v", err)
	}
	if second[0].Tags[0] != "mood-low" {
		t.Fatalf("caller mutation leaked into cached tags: %q", second[0].Tags[0])
	}
	if *second[0].ResidentID != "r1" {
		t.Fatalf("caller mutation leaked into cached resident: %q", *second[0].ResidentID)
	}
}

func TestEntriesInvalidationWithAwkwardResidentID(t *testing.T) {
	now := time.Date(2026, 3, 2, 19, 0, 0, 0, time.UTC)
	e := newTestEngine(t, testConfig(), &now)
	ctx := context.Background()

	// resident ids are opaque; a separator character must not confuse the
	// cache keys used for day-scoped invalidation
	resident := "ward-b|bed-4"
	if _, err := e.CreateEntry(ctx, engine.EntryOptions{StaffID: "s1", ResidentID: &resident, Content: "first note"}); err != nil {
		t.Fatalf("create: %v", err)
	}
	list, err := e.Entries(ctx, engine.EntryFilters{ResidentID: resident})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(list) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(list))
	}

	if _, err := e.CreateEntry(ctx, engine.EntryOptions{StaffID: "s1", ResidentID: &resident, Content: "second note"}); err != nil {
		t.Fatalf("create second: %v", err)
	}
	list, err = e.Entries(ctx, engine.EntryFilters{ResidentID: resident})
	if err != nil {
		t.Fatalf("relist: %v", err)
	}
	if len(list) != 2 {
		t.Fatalf("stale listing after write, got %d entries", len(list))
	}
}

func TestEntriesNewestFirstAndHandoverFilter(t *testing.T) {
	now := time.Date(2026, 3, 2, 19, 0, 0, 0, time.UTC) // evening shift
	e := newTestEngine(t, testConfig(), &now)
	ctx := context.Background()

	if _, err := e.CreateEntry(ctx, engine.EntryOptions{StaffID: "s1", Content: "routine note"}); err != nil {
		t.Fatalf("create: %v", err)
	}
	now = now.Add(5 * time.Minute)
	if _, err := e.CreateEntry(ctx, engine.EntryOptions{StaffID: "s1", Content: "watch fluid intake overnight", IsHandover: true, Priority: domain.PriorityHigh}); err != nil {
		t.Fatalf("create handover: %v", err)
	}

	list, err := e.Entries(ctx, engine.EntryFilters{})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(list) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(list))
	}
	if list[0].Content != "watch fluid intake overnight" {
		t.Fatalf("entries must come back newest-first, got %q first", list[0].Content)
	}

	handover, err := e.HandoverEntries(ctx, "evening", "")
	if err != nil {
		t.Fatalf("handover: %v", err)
	}
	if len(handover) != 1 || !handover[0].IsHandover {
		t.Fatalf("handover filter mismatch: %+v", handover)
	}

	if _, err := e.Entries(ctx, engine.EntryFilters{Shift: "overnightish"}); err == nil {
		t.Fatal("expected validation error for bad shift name")
	}
}
