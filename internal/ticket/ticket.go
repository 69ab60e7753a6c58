package ticket

import (
	"fmt"
	"strings"
)

// Kind discriminates ticket origins. Every consumer switches on it
// exhaustively; an unknown kind is an error, never a silent default.
type Kind string

const (
	KindGitHub Kind = "github"
	KindJira   Kind = "jira"
	KindAdmin  Kind = "admin"
)

// AdminKey is the fixed workspace key shared by administrative jobs.
const AdminKey = "admin"

// Ticket is the tagged work-item variant carried in job payloads.
type Ticket struct {
	Kind Kind `json:"kind"`

	// GitHub fields.
	Repo   string `json:"repo,omitempty"`   // "owner/name"
	Number int    `json:"number,omitempty"` // issue or PR number

	// Jira fields.
	Project string `json:"project,omitempty"` // e.g. "OPS"
	Issue   int    `json:"issue,omitempty"`   // numeric suffix of the issue key

	// Title and Body describe the work item; Body typically carries the
	// triggering comment or issue text.
	Title string `json:"title,omitempty"`
	Body  string `json:"body,omitempty"`
}

// Key derives the opaque identifier that keys workspace/session state.
// The key is stable across events for the same work item.
func (t Ticket) Key() (string, error) {
	switch t.Kind {
	case KindGitHub:
		if t.Repo == "" || t.Number <= 0 {
			return "", fmt.Errorf("github ticket needs repo and number, got repo=%q number=%d", t.Repo, t.Number)
		}
		return fmt.Sprintf("%s#%d", t.Repo, t.Number), nil
	case KindJira:
		if t.Project == "" || t.Issue <= 0 {
			return "", fmt.Errorf("jira ticket needs project and issue, got project=%q issue=%d", t.Project, t.Issue)
		}
		return fmt.Sprintf("%s-%d", t.Project, t.Issue), nil
	case KindAdmin:
		return AdminKey, nil
	default:
		return "", fmt.Errorf("unknown ticket kind %q", t.Kind)
	}
}

// Validate checks the variant is well-formed for its kind.
func (t Ticket) Validate() error {
	_, err := t.Key()
	return err
}

// Prompt renders the instruction text handed to the assistant CLI.
func (t Ticket) Prompt() (string, error) {
	key, err := t.Key()
	if err != nil {
		return "", err
	}

	var b strings.Builder
	switch t.Kind {
	case KindGitHub:
		fmt.Fprintf(&b, "You are working on GitHub issue %s.\n", key)
	case KindJira:
		fmt.Fprintf(&b, "You are working on Jira issue %s.\n", key)
	case KindAdmin:
		b.WriteString("You are running an administrative task.\n")
	}

	if t.Title != "" {
		fmt.Fprintf(&b, "Title: %s\n", t.Title)
	}
	if t.Body != "" {
		b.WriteString("\n")
		b.WriteString(strings.TrimSpace(t.Body))
		b.WriteString("\n")
	}
	return b.String(), nil
}
