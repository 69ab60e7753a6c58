package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/navvy-dev/navvy/internal/ticket"
)

const githubDefaultAPIBase = "https://api.github.com"

type githubClient struct {
	apiBase    string
	token      string
	httpClient *http.Client
}

func newGitHubClient(apiBase, token string, httpClient *http.Client) *githubClient {
	base := strings.TrimRight(apiBase, "/")
	if base == "" {
		base = githubDefaultAPIBase
	}
	return &githubClient{apiBase: base, token: token, httpClient: httpClient}
}

func (c *githubClient) Comment(ctx context.Context, t ticket.Ticket, body string) error {
	if t.Kind != ticket.KindGitHub {
		return fmt.Errorf("github client got ticket kind %q", t.Kind)
	}
	if err := t.Validate(); err != nil {
		return err
	}

	payload, err := json.Marshal(map[string]string{"body": body})
	if err != nil {
		return fmt.Errorf("marshal comment: %w", err)
	}

	url := fmt.Sprintf("%s/repos/%s/issues/%d/comments", c.apiBase, t.Repo, t.Number)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("build comment request: %w", err)
	}
	req.Header.Set("Accept", "application/vnd.github+json")
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.token)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("post github comment: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("github comment on %s#%d: status %d: %s", t.Repo, t.Number, resp.StatusCode, string(snippet))
	}
	return nil
}
