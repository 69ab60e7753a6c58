package notify

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/navvy-dev/navvy/internal/ticket"
)

type jiraClient struct {
	baseURL    string
	email      string
	token      string
	httpClient *http.Client
}

func newJiraClient(baseURL, email, token string, httpClient *http.Client) *jiraClient {
	return &jiraClient{
		baseURL:    strings.TrimRight(baseURL, "/"),
		email:      email,
		token:      token,
		httpClient: httpClient,
	}
}

func (c *jiraClient) Comment(ctx context.Context, t ticket.Ticket, body string) error {
	if t.Kind != ticket.KindJira {
		return fmt.Errorf("jira client got ticket kind %q", t.Kind)
	}
	key, err := t.Key()
	if err != nil {
		return err
	}
	if c.baseURL == "" {
		return fmt.Errorf("jira base_url is empty")
	}

	payload, err := json.Marshal(map[string]string{"body": body})
	if err != nil {
		return fmt.Errorf("marshal comment: %w", err)
	}

	url := fmt.Sprintf("%s/rest/api/2/issue/%s/comment", c.baseURL, key)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("build comment request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	// Jira Cloud wants basic auth with the account email; server setups
	// take a bearer token.
	if c.email != "" {
		cred := base64.StdEncoding.EncodeToString([]byte(c.email + ":" + c.token))
		req.Header.Set("Authorization", "Basic "+cred)
	} else {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("post jira comment: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("jira comment on %s: status %d: %s", key, resp.StatusCode, string(snippet))
	}
	return nil
}
