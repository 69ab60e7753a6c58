package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"path/filepath"
	"testing"
	"time"

	"github.com/navvy-dev/navvy/internal/config"
	"github.com/navvy-dev/navvy/internal/events"
	"github.com/navvy-dev/navvy/internal/queue"
	"github.com/navvy-dev/navvy/internal/session"
	"github.com/navvy-dev/navvy/internal/storage"
	"github.com/navvy-dev/navvy/internal/workspace"
)

const testAPIKey = "test-api-key"

type fakeSessionAdmin struct {
	sessions  []workspace.Session
	sizes     []workspace.SizeInfo
	stats     session.Stats
	deleted   []string
	deleteErr error
}

func (f *fakeSessionAdmin) ListSessions(ctx context.Context) ([]workspace.Session, error) {
	return f.sessions, nil
}

func (f *fakeSessionAdmin) SessionSizes(ctx context.Context) ([]workspace.SizeInfo, error) {
	return f.sizes, nil
}

func (f *fakeSessionAdmin) Stats(ctx context.Context) (session.Stats, error) {
	return f.stats, nil
}

func (f *fakeSessionAdmin) DeleteSession(ctx context.Context, key string) error {
	if f.deleteErr != nil {
		return f.deleteErr
	}
	f.deleted = append(f.deleted, key)
	return nil
}

func newTestAPI(t *testing.T) (*httptest.Server, *fakeSessionAdmin, *queue.Queue, *events.Hub) {
	t.Helper()

	db, err := storage.OpenSQLite(context.Background(), filepath.Join(t.TempDir(), "navvy.db"))
	if err != nil {
		t.Fatalf("OpenSQLite: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	admin := &fakeSessionAdmin{}
	q := queue.New(db)
	hub := events.NewHub(16)

	s := New(config.APIConfig{Enabled: true, Listen: "127.0.0.1:0", APIKey: testAPIKey}, admin, q, hub)
	srv := httptest.NewServer(s.Routes())
	t.Cleanup(srv.Close)
	return srv, admin, q, hub
}

func doAuthed(t *testing.T, method, url string, body []byte) *http.Response {
	t.Helper()
	req, err := http.NewRequest(method, url, bytes.NewReader(body))
	if err != nil {
		t.Fatalf("build request: %v", err)
	}
	req.Header.Set("Authorization", "Bearer "+testAPIKey)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, url, err)
	}
	t.Cleanup(func() { _ = resp.Body.Close() })
	return resp
}

func TestHealthzNeedsNoAuth(t *testing.T) {
	t.Parallel()
	srv, admin, _, _ := newTestAPI(t)

	admin.stats = session.Stats{Total: 3, SoftCap: 20, Available: 17}
	resp, err := http.Get(srv.URL + "/healthz")
	if err != nil {
		t.Fatalf("GET /healthz: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	var health HealthzResponse
	if err := json.NewDecoder(resp.Body).Decode(&health); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if health.Status != "ok" || health.Sessions.Total != 3 {
		t.Fatalf("health = %+v", health)
	}
}

func TestProtectedEndpointsRequireKey(t *testing.T) {
	t.Parallel()
	srv, _, _, _ := newTestAPI(t)

	resp, err := http.Get(srv.URL + "/v1/sessions")
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("no-auth status = %d, want 401", resp.StatusCode)
	}

	req, _ := http.NewRequest("GET", srv.URL+"/v1/sessions", nil)
	req.Header.Set("Authorization", "Bearer wrong-key-padded")
	resp2, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	defer resp2.Body.Close()
	if resp2.StatusCode != http.StatusUnauthorized {
		t.Fatalf("bad-key status = %d, want 401", resp2.StatusCode)
	}
}

func TestListSessions(t *testing.T) {
	t.Parallel()
	srv, admin, _, _ := newTestAPI(t)

	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	admin.sessions = []workspace.Session{
		{Key: "OPS-1", CreatedAt: now, LastUsed: now, HasSessionData: true},
		{Key: "acme/widgets#2", CreatedAt: now, LastUsed: now},
	}

	resp := doAuthed(t, "GET", srv.URL+"/v1/sessions", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	var got []SessionResponse
	if err := json.NewDecoder(resp.Body).Decode(&got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(got) != 2 || got[0].Key != "OPS-1" || !got[0].HasSessionData || got[1].Key != "acme/widgets#2" {
		t.Fatalf("sessions = %+v", got)
	}
}

func TestDeleteSessionByQueryParam(t *testing.T) {
	t.Parallel()
	srv, admin, _, _ := newTestAPI(t)

	key := "acme/widgets#42"
	resp := doAuthed(t, "DELETE", srv.URL+"/v1/sessions?key="+url.QueryEscape(key), nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	if len(admin.deleted) != 1 || admin.deleted[0] != key {
		t.Fatalf("deleted = %v", admin.deleted)
	}

	// Missing key.
	resp2 := doAuthed(t, "DELETE", srv.URL+"/v1/sessions", nil)
	if resp2.StatusCode != http.StatusBadRequest {
		t.Fatalf("missing-key status = %d, want 400", resp2.StatusCode)
	}

	// Busy session refusal surfaces as a conflict.
	admin.deleteErr = fmt.Errorf("session %q has an active invocation", key)
	resp3 := doAuthed(t, "DELETE", srv.URL+"/v1/sessions?key="+url.QueryEscape(key), nil)
	if resp3.StatusCode != http.StatusConflict {
		t.Fatalf("busy status = %d, want 409", resp3.StatusCode)
	}
}

func TestTriggerEnqueuesJob(t *testing.T) {
	t.Parallel()
	srv, _, q, _ := newTestAPI(t)

	body := []byte(`{"ticket": {"kind": "github", "repo": "acme/widgets", "number": 5, "body": "do it"}}`)
	resp := doAuthed(t, "POST", srv.URL+"/v1/trigger", body)
	if resp.StatusCode != http.StatusAccepted {
		t.Fatalf("status = %d, want 202", resp.StatusCode)
	}
	var trig TriggerResponse
	if err := json.NewDecoder(resp.Body).Decode(&trig); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if trig.TicketKey != "acme/widgets#5" || trig.JobID == "" {
		t.Fatalf("response = %+v", trig)
	}

	job, err := q.Get(context.Background(), trig.JobID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if job.SubmittedBy != "api" || job.TicketKey != "acme/widgets#5" {
		t.Fatalf("job = %#v", job)
	}
}

func TestTriggerRejectsInvalidTicket(t *testing.T) {
	t.Parallel()
	srv, _, _, _ := newTestAPI(t)

	body := []byte(`{"ticket": {"kind": "github", "repo": "", "number": 0}}`)
	resp := doAuthed(t, "POST", srv.URL+"/v1/trigger", body)
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", resp.StatusCode)
	}
}

func TestGetJobNotFound(t *testing.T) {
	t.Parallel()
	srv, _, _, _ := newTestAPI(t)

	resp := doAuthed(t, "GET", srv.URL+"/v1/jobs/nope", nil)
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", resp.StatusCode)
	}
}

func TestEventsStreamReplaysBuffer(t *testing.T) {
	t.Parallel()
	srv, _, _, hub := newTestAPI(t)

	hub.Publish("session.created", map[string]any{"key": "acme/widgets#1"})
	hub.Publish("job.settled", map[string]any{"job_id": "j1"})

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	req, _ := http.NewRequestWithContext(ctx, "GET", srv.URL+"/v1/events", nil)
	req.Header.Set("Authorization", "Bearer "+testAPIKey)

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("GET /v1/events: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); ct != "text/event-stream" {
		t.Fatalf("content type = %q", ct)
	}

	// Read the replayed frames; the stream then stays open until ctx ends.
	buf := make([]byte, 4096)
	var seen string
	for !bytes.Contains([]byte(seen), []byte("job.settled")) {
		n, err := resp.Body.Read(buf)
		if n > 0 {
			seen += string(buf[:n])
		}
		if err != nil {
			break
		}
	}
	if !bytes.Contains([]byte(seen), []byte("event: session.created")) ||
		!bytes.Contains([]byte(seen), []byte("event: job.settled")) {
		t.Fatalf("stream = %q", seen)
	}
}
