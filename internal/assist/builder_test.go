package assist

import (
	"slices"
	"strings"
	"testing"
	"time"

	"github.com/navvy-dev/navvy/internal/config"
	"github.com/navvy-dev/navvy/internal/secrets"
	"github.com/navvy-dev/navvy/internal/ticket"
)

func testRuntime() *config.Runtime {
	cfg := config.Defaults()
	cfg.Assistant = config.AssistantConfig{
		Command: "/usr/local/bin/assistant",
		Model:   "large-v2",
		Args:    []string{"--non-interactive"},
		Timeout: 10 * time.Minute,
		Grace:   5 * time.Second,
	}
	return config.NewRuntime(cfg, "")
}

func TestBuildFreshInvocation(t *testing.T) {
	b := NewBuilder(testRuntime(), secrets.Static{"GITHUB_TOKEN": "ghp_secret"})

	spec, err := b.Build(Request{
		Ticket:   ticket.Ticket{Kind: ticket.KindGitHub, Repo: "acme/widgets", Number: 5, Body: "fix the build"},
		WorkDir:  "/srv/ws/acme",
		StateDir: "/srv/ws/acme/.navvy",
	})
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}

	if spec.Command != "/usr/local/bin/assistant" {
		t.Fatalf("Command = %q", spec.Command)
	}
	if spec.Dir != "/srv/ws/acme" {
		t.Fatalf("Dir = %q", spec.Dir)
	}
	if slices.Contains(spec.Args, "--resume") {
		t.Fatalf("fresh invocation carries --resume: %v", spec.Args)
	}

	modelIdx := slices.Index(spec.Args, "--model")
	if modelIdx < 0 || spec.Args[modelIdx+1] != "large-v2" {
		t.Fatalf("model not passed: %v", spec.Args)
	}

	promptIdx := slices.Index(spec.Args, "--prompt")
	if promptIdx < 0 || !strings.Contains(spec.Args[promptIdx+1], "acme/widgets#5") {
		t.Fatalf("prompt not passed: %v", spec.Args)
	}

	if spec.Timeout != 10*time.Minute || spec.Grace != 5*time.Second {
		t.Fatalf("timeout/grace = %v/%v", spec.Timeout, spec.Grace)
	}
}

func TestBuildResumeFlag(t *testing.T) {
	b := NewBuilder(testRuntime(), secrets.Static{})

	spec, err := b.Build(Request{
		Ticket:  ticket.Ticket{Kind: ticket.KindAdmin, Body: "rotate deploy keys"},
		WorkDir: "/srv/ws/admin",
		Resume:  true,
	})
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}
	if !slices.Contains(spec.Args, "--resume") {
		t.Fatalf("resume invocation missing --resume: %v", spec.Args)
	}
}

func TestSecretsTravelInEnvOnly(t *testing.T) {
	b := NewBuilder(testRuntime(), secrets.Static{"GITHUB_TOKEN": "ghp_secret"})

	spec, err := b.Build(Request{
		Ticket:   ticket.Ticket{Kind: ticket.KindJira, Project: "OPS", Issue: 1},
		WorkDir:  "/srv/ws/ops",
		StateDir: "/srv/ws/ops/.navvy",
	})
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}

	for _, arg := range spec.Args {
		if strings.Contains(arg, "ghp_secret") {
			t.Fatalf("secret leaked into args: %v", spec.Args)
		}
	}
	if !slices.Contains(spec.Env, "GITHUB_TOKEN=ghp_secret") {
		t.Fatal("secret missing from env")
	}
	if !slices.Contains(spec.Env, StateDirEnv+"=/srv/ws/ops/.navvy") {
		t.Fatal("state dir missing from env")
	}
}

func TestBuildScrubsInheritedEnvironment(t *testing.T) {
	t.Setenv("NAVVY_API_KEY", "service-admin-key")
	t.Setenv("PATH", "/usr/bin:/bin")

	b := NewBuilder(testRuntime(), secrets.Static{"GITHUB_TOKEN": "ghp_secret"})

	spec, err := b.Build(Request{
		Ticket:  ticket.Ticket{Kind: ticket.KindGitHub, Repo: "acme/widgets", Number: 5},
		WorkDir: "/srv/ws/acme",
	})
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}

	// The service's own environment must not leak; only the allowlist and
	// the vault reach the child.
	for _, entry := range spec.Env {
		if strings.HasPrefix(entry, "NAVVY_API_KEY=") {
			t.Fatalf("service env leaked into child: %v", spec.Env)
		}
	}
	if !slices.Contains(spec.Env, "PATH=/usr/bin:/bin") {
		t.Fatalf("allowlisted PATH missing from env: %v", spec.Env)
	}
	if !slices.Contains(spec.Env, "GITHUB_TOKEN=ghp_secret") {
		t.Fatal("vault secret missing from env")
	}
}

func TestBuildRejectsInvalidTicket(t *testing.T) {
	b := NewBuilder(testRuntime(), secrets.Static{})

	_, err := b.Build(Request{
		Ticket:  ticket.Ticket{Kind: ticket.Kind("bogus")},
		WorkDir: "/srv/ws/x",
	})
	if err == nil {
		t.Fatal("Build() accepted invalid ticket")
	}
}
