package assist

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/navvy-dev/navvy/internal/config"
	"github.com/navvy-dev/navvy/internal/secrets"
	"github.com/navvy-dev/navvy/internal/supervise"
	"github.com/navvy-dev/navvy/internal/ticket"
)

// StateDirEnv tells the assistant CLI where to keep session-continuation
// data. Pointing it inside the workspace keeps sessions self-contained, so
// removing the workspace removes the session.
const StateDirEnv = "NAVVY_STATE_DIR"

// Request describes one assistant invocation to build.
type Request struct {
	Ticket   ticket.Ticket
	WorkDir  string
	StateDir string

	// Resume continues the workspace's prior session instead of starting
	// fresh.
	Resume bool

	// Output, when set, receives the assistant's combined output live.
	Output io.Writer
}

// Builder assembles supervised invocation specs from configuration, the
// ticket's prompt, and vault secrets.
type Builder struct {
	cfg   *config.Runtime
	vault secrets.Vault
}

func NewBuilder(cfg *config.Runtime, vault secrets.Vault) *Builder {
	return &Builder{cfg: cfg, vault: vault}
}

// Build produces the supervise.Spec for req. The model and generated prompt
// are passed as arguments; secrets travel via environment only.
func (b *Builder) Build(req Request) (supervise.Spec, error) {
	if req.WorkDir == "" {
		return supervise.Spec{}, fmt.Errorf("workdir is empty")
	}

	prompt, err := req.Ticket.Prompt()
	if err != nil {
		return supervise.Spec{}, fmt.Errorf("build prompt: %w", err)
	}

	a := b.cfg.Assistant()

	args := append([]string{}, a.Args...)
	if req.Resume {
		args = append(args, "--resume")
	}
	args = append(args, "--model", a.Model, "--prompt", prompt)

	env := append(scrubbedEnviron(), b.vault.Env()...)
	if req.StateDir != "" {
		env = append(env, StateDirEnv+"="+req.StateDir)
	}

	return supervise.Spec{
		Command: a.Command,
		Args:    args,
		Dir:     req.WorkDir,
		Env:     env,
		Timeout: a.Timeout,
		Grace:   a.Grace,
		Output:  req.Output,
	}, nil
}

// inheritedEnvVars is the allowlist of process environment the assistant
// inherits. Everything else, in particular this service's own credentials
// and webhook secrets, stays out of the child.
var inheritedEnvVars = []string{
	"PATH", "HOME", "USER", "SHELL", "LANG", "TERM", "TMPDIR",
}

func scrubbedEnviron() []string {
	env := make([]string, 0, len(inheritedEnvVars))
	for _, entry := range os.Environ() {
		name, _, ok := strings.Cut(entry, "=")
		if !ok {
			continue
		}
		for _, allowed := range inheritedEnvVars {
			if name == allowed {
				env = append(env, entry)
				break
			}
		}
	}
	return env
}
