package webhook

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/navvy-dev/navvy/internal/config"
	"github.com/navvy-dev/navvy/internal/queue"
	"github.com/navvy-dev/navvy/internal/secrets"
	"github.com/navvy-dev/navvy/internal/storage"
)

const (
	testGitHubSecret = "gh-hook-secret"
	testJiraToken    = "jira-shared-token"
)

func newTestServer(t *testing.T) (*httptest.Server, *queue.Queue) {
	t.Helper()

	db, err := storage.OpenSQLite(context.Background(), filepath.Join(t.TempDir(), "navvy.db"))
	if err != nil {
		t.Fatalf("OpenSQLite: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	q := queue.New(db)

	cfg := config.WebhooksConfig{
		Listen: "127.0.0.1:0",
		GitHub: &config.GitHubHookConfig{Path: "/hooks/github", SecretRef: "gh_secret"},
		Jira:   &config.JiraHookConfig{Path: "/hooks/jira", TokenRef: "jira_token", MaxBodySize: 2048},
	}
	vault := secrets.Static{"gh_secret": testGitHubSecret, "jira_token": testJiraToken}

	s, err := New(cfg, config.NewRuntime(config.Defaults(), ""), q, vault)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	srv := httptest.NewServer(s.Routes())
	t.Cleanup(srv.Close)
	return srv, q
}

func githubCommentBody(t *testing.T, comment string) []byte {
	t.Helper()
	body, err := json.Marshal(map[string]any{
		"action":     "created",
		"issue":      map[string]any{"number": 42, "title": "Widget is broken"},
		"comment":    map[string]any{"body": comment, "user": map[string]any{"login": "alice", "type": "User"}},
		"repository": map[string]any{"full_name": "acme/widgets"},
	})
	if err != nil {
		t.Fatalf("marshal payload: %v", err)
	}
	return body
}

func postGitHub(t *testing.T, url string, body []byte, delivery string) *http.Response {
	t.Helper()
	req, err := http.NewRequest(http.MethodPost, url+"/hooks/github", bytes.NewReader(body))
	if err != nil {
		t.Fatalf("build request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Hub-Signature-256", signBody(body, testGitHubSecret))
	if delivery != "" {
		req.Header.Set("X-GitHub-Delivery", delivery)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("post: %v", err)
	}
	t.Cleanup(func() { _ = resp.Body.Close() })
	return resp
}

func TestGitHubWebhookEnqueues(t *testing.T) {
	t.Parallel()
	srv, q := newTestServer(t)

	body := githubCommentBody(t, "@navvy please fix")
	resp := postGitHub(t, srv.URL, body, "delivery-1")
	if resp.StatusCode != http.StatusAccepted {
		t.Fatalf("status = %d, want 202", resp.StatusCode)
	}

	var accept AcceptResponse
	if err := json.NewDecoder(resp.Body).Decode(&accept); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if accept.TicketKey != "acme/widgets#42" || accept.JobID == "" || accept.Duplicate {
		t.Fatalf("response = %+v", accept)
	}

	job, err := q.Dequeue(context.Background())
	if err != nil || job == nil {
		t.Fatalf("Dequeue: job=%v err=%v", job, err)
	}
	if job.ID != accept.JobID || job.TicketKey != "acme/widgets#42" || job.Kind != "github" {
		t.Fatalf("job = %#v", job)
	}
	if !strings.Contains(job.Prompt, "acme/widgets#42") {
		t.Fatalf("prompt = %q", job.Prompt)
	}
	if job.SubmittedBy != "webhook:/hooks/github" {
		t.Fatalf("submitted_by = %q", job.SubmittedBy)
	}
}

func TestGitHubWebhookDeduplicatesRedelivery(t *testing.T) {
	t.Parallel()
	srv, q := newTestServer(t)

	body := githubCommentBody(t, "@navvy please fix")

	first := postGitHub(t, srv.URL, body, "delivery-dup")
	if first.StatusCode != http.StatusAccepted {
		t.Fatalf("first status = %d", first.StatusCode)
	}
	var a1 AcceptResponse
	_ = json.NewDecoder(first.Body).Decode(&a1)

	second := postGitHub(t, srv.URL, body, "delivery-dup")
	if second.StatusCode != http.StatusAccepted {
		t.Fatalf("second status = %d", second.StatusCode)
	}
	var a2 AcceptResponse
	if err := json.NewDecoder(second.Body).Decode(&a2); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !a2.Duplicate || a2.JobID != a1.JobID {
		t.Fatalf("redelivery response = %+v, first = %+v", a2, a1)
	}

	if n, err := q.Depth(context.Background()); err != nil || n != 1 {
		t.Fatalf("Depth = %d, %v, want 1", n, err)
	}
}

func TestGitHubWebhookRejectsBadSignature(t *testing.T) {
	t.Parallel()
	srv, q := newTestServer(t)

	body := githubCommentBody(t, "@navvy please fix")
	req, _ := http.NewRequest(http.MethodPost, srv.URL+"/hooks/github", bytes.NewReader(body))
	req.Header.Set("X-Hub-Signature-256", signBody(body, "wrong-secret"))
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("post: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusForbidden {
		t.Fatalf("status = %d, want 403", resp.StatusCode)
	}
	if n, _ := q.Depth(context.Background()); n != 0 {
		t.Fatalf("unauthenticated event enqueued %d jobs", n)
	}
}

func TestGitHubWebhookIgnoresUnmentionedComment(t *testing.T) {
	t.Parallel()
	srv, q := newTestServer(t)

	resp := postGitHub(t, srv.URL, githubCommentBody(t, "great work everyone"), "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	var ignore IgnoreResponse
	if err := json.NewDecoder(resp.Body).Decode(&ignore); err != nil || ignore.Status != "ignored" {
		t.Fatalf("response = %+v, %v", ignore, err)
	}
	if n, _ := q.Depth(context.Background()); n != 0 {
		t.Fatalf("ignored event enqueued %d jobs", n)
	}
}

func TestJiraWebhook(t *testing.T) {
	t.Parallel()
	srv, q := newTestServer(t)

	body := []byte(`{
		"webhookEvent": "comment_created",
		"issue": {"key": "OPS-9", "fields": {"summary": "Rotate certs"}},
		"comment": {"body": "@navvy handle this", "author": {"name": "alice"}}
	}`)

	req, _ := http.NewRequest(http.MethodPost, srv.URL+"/hooks/jira", bytes.NewReader(body))
	req.Header.Set(jiraTokenHeader, testJiraToken)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("post: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusAccepted {
		t.Fatalf("status = %d, want 202", resp.StatusCode)
	}
	var accept AcceptResponse
	if err := json.NewDecoder(resp.Body).Decode(&accept); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if accept.TicketKey != "OPS-9" {
		t.Fatalf("ticket key = %q", accept.TicketKey)
	}

	// Wrong token is refused.
	req2, _ := http.NewRequest(http.MethodPost, srv.URL+"/hooks/jira", bytes.NewReader(body))
	req2.Header.Set(jiraTokenHeader, "wrong")
	resp2, err := http.DefaultClient.Do(req2)
	if err != nil {
		t.Fatalf("post: %v", err)
	}
	defer resp2.Body.Close()
	if resp2.StatusCode != http.StatusForbidden {
		t.Fatalf("wrong token status = %d, want 403", resp2.StatusCode)
	}

	if n, _ := q.Depth(context.Background()); n != 1 {
		t.Fatalf("Depth = %d, want 1", n)
	}
}

func TestWebhookRejectsOversizedBody(t *testing.T) {
	t.Parallel()
	srv, _ := newTestServer(t)

	big := bytes.Repeat([]byte("x"), 4096) // Jira endpoint caps at 2048
	req, _ := http.NewRequest(http.MethodPost, srv.URL+"/hooks/jira", bytes.NewReader(big))
	req.Header.Set(jiraTokenHeader, testJiraToken)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("post: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusRequestEntityTooLarge {
		t.Fatalf("status = %d, want 413", resp.StatusCode)
	}
}
