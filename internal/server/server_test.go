package server

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"testing"
	"time"

	"shiftledger/internal/config"
	"shiftledger/internal/db"
	"shiftledger/internal/engine"
	"shiftledger/internal/migrate"
	"shiftledger/internal/repo"
)

type testServer struct {
	URL    string
	client *http.Client
	close  func()
}

func (s *testServer) Client() *http.Client { return s.client }
func (s *testServer) Close()               { s.close() }

func newTestServer(t *testing.T, now time.Time) (*testServer, func()) {
	t.Helper()
	workspace := t.TempDir()
	if _, err := db.EnsureWorkspace(workspace); err != nil {
		t.Fatalf("ensure workspace: %v", err)
	}
	cfg := config.Default("fac-test")
	cfg.Facility.Timezone = "UTC"
	conn, err := db.Open(db.Config{Workspace: workspace})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if err := migrate.Migrate(conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	e := engine.New(conn, cfg)
	e.Now = func() time.Time { return now }
	tx, err := conn.BeginTx(context.Background(), nil)
	if err != nil {
		t.Fatalf("begin tx: %v", err)
	}
	nowStr := now.UTC().Format(time.RFC3339)
	if err := e.Repo.EnsureFacility(context.Background(), tx, cfg.Facility.ID, cfg.Facility.Name, nowStr); err != nil {
		tx.Rollback()
		t.Fatalf("ensure facility: %v", err)
	}
	if err := tx.Commit(); err != nil {
		t.Fatalf("commit facility: %v", err)
	}
	if err := e.Repo.UpsertFacilityConfig(context.Background(), cfg.Facility.ID, cfg); err != nil {
		t.Fatalf("seed facility config: %v", err)
	}
	handler, err := New(Config{
		Engine:   e,
		BasePath: "/v0",
		Auth:     AuthConfig{AllowLegacyStaffHeader: true},
	})
	if err != nil {
		t.Fatalf("build handler: %v", err)
	}
	ln, err := net.Listen("tcp4", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	srv := &http.Server{Handler: handler}
	go srv.Serve(ln)
	testSrv := &testServer{
		URL:    "http://" + ln.Addr().String(),
		client: &http.Client{},
		close: func() {
			srv.Shutdown(context.Background())
			ln.Close()
			conn.Close()
		},
	}
	return testSrv, func() { testSrv.Close() }
}

func doJSON(t *testing.T, client *http.Client, method, url string, body any, headers map[string]string) (*http.Response, []byte) {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(b)
	} else {
		reader = bytes.NewReader(nil)
	}
	req, err := http.NewRequest(method, url, reader)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	res, err := client.Do(req)
	if err != nil {
		t.Fatalf("do request: %v", err)
	}
	defer res.Body.Close()
	data, err := io.ReadAll(res.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	return res, data
}

var asStaff = map[string]string{"X-Staff-Id": "nurse-1"}

func TestCompletionAndProgressFlow(t *testing.T) {
	srv, cleanup := newTestServer(t, time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC))
	defer cleanup()
	client := srv.Client()

	res, data := doJSON(t, client, http.MethodPost, srv.URL+"/v0/completions", map[string]any{
		"task_id":     "morning-medication",
		"resident_id": "r1",
	}, asStaff)
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("record completion status %d: %s", res.StatusCode, string(data))
	}
	var created CompletionResponse
	if err := json.Unmarshal(data, &created); err != nil {
		t.Fatalf("unmarshal completion: %v", err)
	}
	if created.StaffID != "nurse-1" || created.OccurredOn != "2026-03-02" {
		t.Fatalf("unexpected completion: %+v", created)
	}

	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/v0/residents/r1/progress", nil, asStaff)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("progress status %d: %s", res.StatusCode, string(data))
	}
	var progress ProgressResponse
	if err := json.Unmarshal(data, &progress); err != nil {
		t.Fatalf("unmarshal progress: %v", err)
	}
	if progress.Shift != "morning" || progress.Completed != 1 {
		t.Fatalf("unexpected progress: %+v", progress)
	}

	res, data = doJSON(t, client, http.MethodDelete, srv.URL+"/v0/completions/"+created.ID, nil, asStaff)
	if res.StatusCode != http.StatusNoContent {
		t.Fatalf("remove status %d: %s", res.StatusCode, string(data))
	}
	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/v0/completions?resident_id=r1", nil, asStaff)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("list status %d: %s", res.StatusCode, string(data))
	}
	var list []CompletionResponse
	_ = json.Unmarshal(data, &list)
	if len(list) != 0 {
		t.Fatalf("removed completion still listed: %v", list)
	}
}

func TestUnauthenticatedMutationRejected(t *testing.T) {
	srv, cleanup := newTestServer(t, time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC))
	defer cleanup()
	client := srv.Client()

	res, data := doJSON(t, client, http.MethodPost, srv.URL+"/v0/completions", map[string]any{
		"task_id":     "morning-medication",
		"resident_id": "r1",
	}, nil)
	if res.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d: %s", res.StatusCode, string(data))
	}

	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/v0/completions?resident_id=r1", nil, asStaff)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("list status %d: %s", res.StatusCode, string(data))
	}
	var list []CompletionResponse
	_ = json.Unmarshal(data, &list)
	if len(list) != 0 {
		t.Fatalf("rejected mutation must not touch the ledger: %v", list)
	}
}

func TestRecordCompletionUnknownTask(t *testing.T) {
	srv, cleanup := newTestServer(t, time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC))
	defer cleanup()

	res, data := doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/v0/completions", map[string]any{
		"task_id":     "does-not-exist",
		"resident_id": "r1",
	}, asStaff)
	if res.StatusCode != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422, got %d: %s", res.StatusCode, string(data))
	}
	var envelope struct {
		Error apiErrorBody `json:"error"`
	}
	if err := json.Unmarshal(data, &envelope); err != nil {
		t.Fatalf("unmarshal error: %v", err)
	}
	if envelope.Error.Code != "validation_failed" {
		t.Fatalf("expected validation_failed, got %q", envelope.Error.Code)
	}
}

func TestJournalFlow(t *testing.T) {
	srv, cleanup := newTestServer(t, time.Date(2026, 3, 2, 19, 30, 0, 0, time.UTC))
	defer cleanup()
	client := srv.Client()

	res, data := doJSON(t, client, http.MethodPost, srv.URL+"/v0/journal", map[string]any{
		"resident_id": "r1",
		"content":     "#mood-good calm evening, ate all of dinner",
		"is_handover": true,
		"priority":    "high",
	}, asStaff)
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("create entry status %d: %s", res.StatusCode, string(data))
	}
	var entry EntryResponse
	if err := json.Unmarshal(data, &entry); err != nil {
		t.Fatalf("unmarshal entry: %v", err)
	}
	if entry.Shift != "evening" {
		t.Fatalf("expected evening shift, got %s", entry.Shift)
	}
	if len(entry.Tags) != 1 || entry.Tags[0] != "mood-good" {
		t.Fatalf("tag extraction mismatch: %v", entry.Tags)
	}

	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/v0/journal/handover?shift=evening", nil, asStaff)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("handover status %d: %s", res.StatusCode, string(data))
	}
	var handover []EntryResponse
	if err := json.Unmarshal(data, &handover); err != nil {
		t.Fatalf("unmarshal handover: %v", err)
	}
	if len(handover) != 1 || handover[0].ID != entry.ID {
		t.Fatalf("handover filter mismatch: %v", handover)
	}

	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v0/journal/"+entry.ID+"/voice-note", map[string]any{
		"audio_url": "s3://notes/abc.ogg",
	}, asStaff)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("voice note status %d: %s", res.StatusCode, string(data))
	}
	var updated EntryResponse
	_ = json.Unmarshal(data, &updated)
	if updated.AudioURL == nil || *updated.AudioURL != "s3://notes/abc.ogg" {
		t.Fatalf("audio url not attached: %+v", updated.AudioURL)
	}

	res, _ = doJSON(t, client, http.MethodDelete, srv.URL+"/v0/journal/"+entry.ID, nil, asStaff)
	if res.StatusCode != http.StatusNoContent {
		t.Fatalf("delete status %d", res.StatusCode)
	}
	// deleting again stays a no-op
	res, _ = doJSON(t, client, http.MethodDelete, srv.URL+"/v0/journal/"+entry.ID, nil, asStaff)
	if res.StatusCode != http.StatusNoContent {
		t.Fatalf("second delete status %d", res.StatusCode)
	}
}

func TestAPIKeyAuth(t *testing.T) {
	srv, cleanup := newTestServer(t, time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC))
	defer cleanup()
	client := srv.Client()

	res, data := doJSON(t, client, http.MethodPost, srv.URL+"/v0/keys", map[string]any{
		"name": "tablet-3",
	}, asStaff)
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("mint key status %d: %s", res.StatusCode, string(data))
	}
	var key APIKeyResponse
	if err := json.Unmarshal(data, &key); err != nil {
		t.Fatalf("unmarshal key: %v", err)
	}
	if key.Key == "" {
		t.Fatal("expected plaintext key in mint response")
	}

	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/v0/me", nil, map[string]string{"X-Api-Key": key.Key})
	if res.StatusCode != http.StatusOK {
		t.Fatalf("me status %d: %s", res.StatusCode, string(data))
	}
	var me WhoAmIResponse
	if err := json.Unmarshal(data, &me); err != nil {
		t.Fatalf("unmarshal me: %v", err)
	}
	if me.StaffID != "nurse-1" || me.Source != "api_key" {
		t.Fatalf("unexpected principal: %+v", me)
	}

	res, _ = doJSON(t, client, http.MethodDelete, srv.URL+"/v0/keys/"+key.ID, nil, asStaff)
	if res.StatusCode != http.StatusNoContent {
		t.Fatalf("revoke status %d", res.StatusCode)
	}
	res, _ = doJSON(t, client, http.MethodGet, srv.URL+"/v0/me", nil, map[string]string{"X-Api-Key": key.Key})
	if res.StatusCode != http.StatusUnauthorized {
		t.Fatalf("revoked key must be rejected, got %d", res.StatusCode)
	}

	// key hash round-trips through the repo helper
	if repo.HashAPIKey(key.Key) == "" {
		t.Fatal("hash helper returned empty digest")
	}
}

func TestHealthUnauthenticated(t *testing.T) {
	srv, cleanup := newTestServer(t, time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC))
	defer cleanup()

	res, data := doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/v0/health", nil, nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("health status %d: %s", res.StatusCode, string(data))
	}
}
