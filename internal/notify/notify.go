// Package notify posts job results back to the ticket that triggered them,
// as an issue comment on GitHub or Jira. Posting is best-effort: the worker
// logs failures and moves on, since the job itself already settled.
package notify

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/navvy-dev/navvy/internal/config"
	"github.com/navvy-dev/navvy/internal/secrets"
	"github.com/navvy-dev/navvy/internal/ticket"
)

// Commenter posts one comment on the work item behind a ticket.
type Commenter interface {
	Comment(ctx context.Context, t ticket.Ticket, body string) error
}

// Notifier routes comments to the client matching the ticket's kind. Kinds
// without a configured client are skipped silently, as is the admin kind,
// which has no external work item to comment on.
type Notifier struct {
	github Commenter
	jira   Commenter
}

// New builds a notifier from configuration, resolving API tokens through
// the vault. Targets absent from cfg are left unconfigured.
func New(cfg config.NotifyConfig, vault secrets.Vault) (*Notifier, error) {
	n := &Notifier{}

	httpClient := &http.Client{Timeout: 30 * time.Second}

	if cfg.GitHub != nil {
		token, err := vault.Get(cfg.GitHub.TokenRef)
		if err != nil {
			return nil, fmt.Errorf("resolve github token %q: %w", cfg.GitHub.TokenRef, err)
		}
		n.github = newGitHubClient(cfg.GitHub.APIBase, token, httpClient)
	}

	if cfg.Jira != nil {
		token, err := vault.Get(cfg.Jira.TokenRef)
		if err != nil {
			return nil, fmt.Errorf("resolve jira token %q: %w", cfg.Jira.TokenRef, err)
		}
		n.jira = newJiraClient(cfg.Jira.BaseURL, cfg.Jira.Email, token, httpClient)
	}

	return n, nil
}

func (n *Notifier) Comment(ctx context.Context, t ticket.Ticket, body string) error {
	switch t.Kind {
	case ticket.KindGitHub:
		if n.github == nil {
			return nil
		}
		return n.github.Comment(ctx, t, body)
	case ticket.KindJira:
		if n.jira == nil {
			return nil
		}
		return n.jira.Comment(ctx, t, body)
	case ticket.KindAdmin:
		return nil
	default:
		return fmt.Errorf("unknown ticket kind %q", t.Kind)
	}
}

var _ Commenter = (*Notifier)(nil)
