package webhook

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/navvy-dev/navvy/internal/ticket"
)

type githubPayload struct {
	Action string `json:"action"`
	Issue  *struct {
		Number int    `json:"number"`
		Title  string `json:"title"`
		Body   string `json:"body"`
	} `json:"issue"`
	Comment *struct {
		Body string `json:"body"`
		User struct {
			Login string `json:"login"`
			Type  string `json:"type"`
		} `json:"user"`
	} `json:"comment"`
	Repository struct {
		FullName string `json:"full_name"`
	} `json:"repository"`
}

// extractGitHub maps a GitHub event to a ticket. ok is false for events
// that are valid but not actionable: wrong action, no bot mention, or the
// bot talking to itself.
func extractGitHub(body []byte, botName string) (ticket.Ticket, bool, error) {
	var p githubPayload
	if err := json.Unmarshal(body, &p); err != nil {
		return ticket.Ticket{}, false, fmt.Errorf("decode github payload: %w", err)
	}
	if p.Issue == nil || p.Repository.FullName == "" {
		return ticket.Ticket{}, false, nil
	}

	tk := ticket.Ticket{
		Kind:   ticket.KindGitHub,
		Repo:   p.Repository.FullName,
		Number: p.Issue.Number,
		Title:  p.Issue.Title,
	}

	switch {
	case p.Comment != nil:
		// issue_comment event.
		if p.Action != "created" {
			return ticket.Ticket{}, false, nil
		}
		// Comments the bot posts itself must never re-trigger it.
		if p.Comment.User.Type == "Bot" || strings.EqualFold(p.Comment.User.Login, botName) {
			return ticket.Ticket{}, false, nil
		}
		if !mentions(p.Comment.Body, botName) {
			return ticket.Ticket{}, false, nil
		}
		tk.Body = p.Comment.Body
	default:
		// issues event.
		if p.Action != "opened" {
			return ticket.Ticket{}, false, nil
		}
		if !mentions(p.Issue.Body, botName) {
			return ticket.Ticket{}, false, nil
		}
		tk.Body = p.Issue.Body
	}

	if err := tk.Validate(); err != nil {
		return ticket.Ticket{}, false, err
	}
	return tk, true, nil
}

type jiraPayload struct {
	WebhookEvent string `json:"webhookEvent"`
	Issue        *struct {
		Key    string `json:"key"`
		Fields struct {
			Summary     string `json:"summary"`
			Description string `json:"description"`
		} `json:"fields"`
	} `json:"issue"`
	Comment *struct {
		Body   string `json:"body"`
		Author struct {
			Name        string `json:"name"`
			DisplayName string `json:"displayName"`
		} `json:"author"`
	} `json:"comment"`
}

func extractJira(body []byte, botName string) (ticket.Ticket, bool, error) {
	var p jiraPayload
	if err := json.Unmarshal(body, &p); err != nil {
		return ticket.Ticket{}, false, fmt.Errorf("decode jira payload: %w", err)
	}
	if p.Issue == nil || p.Issue.Key == "" {
		return ticket.Ticket{}, false, nil
	}

	project, issue, err := splitIssueKey(p.Issue.Key)
	if err != nil {
		return ticket.Ticket{}, false, err
	}
	tk := ticket.Ticket{
		Kind:    ticket.KindJira,
		Project: project,
		Issue:   issue,
		Title:   p.Issue.Fields.Summary,
	}

	switch p.WebhookEvent {
	case "comment_created":
		if p.Comment == nil {
			return ticket.Ticket{}, false, nil
		}
		if strings.EqualFold(p.Comment.Author.Name, botName) {
			return ticket.Ticket{}, false, nil
		}
		if !mentions(p.Comment.Body, botName) {
			return ticket.Ticket{}, false, nil
		}
		tk.Body = p.Comment.Body
	case "jira:issue_created":
		if !mentions(p.Issue.Fields.Description, botName) {
			return ticket.Ticket{}, false, nil
		}
		tk.Body = p.Issue.Fields.Description
	default:
		return ticket.Ticket{}, false, nil
	}

	if err := tk.Validate(); err != nil {
		return ticket.Ticket{}, false, err
	}
	return tk, true, nil
}

// splitIssueKey parses "OPS-42" into ("OPS", 42).
func splitIssueKey(key string) (string, int, error) {
	i := strings.LastIndexByte(key, '-')
	if i <= 0 || i == len(key)-1 {
		return "", 0, fmt.Errorf("malformed issue key %q", key)
	}
	n, err := strconv.Atoi(key[i+1:])
	if err != nil || n <= 0 {
		return "", 0, fmt.Errorf("malformed issue key %q", key)
	}
	return key[:i], n, nil
}

// mentions reports whether text addresses the bot by name.
func mentions(text, botName string) bool {
	if botName == "" {
		return false
	}
	lower := strings.ToLower(text)
	needle := "@" + strings.ToLower(botName)

	for i := 0; ; {
		j := strings.Index(lower[i:], needle)
		if j < 0 {
			return false
		}
		end := i + j + len(needle)
		// Reject prefixes of longer handles, e.g. @navvy-prod.
		if end == len(lower) || !isHandleChar(lower[end]) {
			return true
		}
		i = end
	}
}

func isHandleChar(c byte) bool {
	return c == '-' || c == '_' ||
		(c >= 'a' && c <= 'z') || (c >= '0' && c <= '9')
}
