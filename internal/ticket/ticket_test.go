package ticket

import (
	"strings"
	"testing"
)

func TestKeyDerivation(t *testing.T) {
	cases := []struct {
		name    string
		tk      Ticket
		want    string
		wantErr bool
	}{
		{
			name: "github",
			tk:   Ticket{Kind: KindGitHub, Repo: "acme/widgets", Number: 42},
			want: "acme/widgets#42",
		},
		{
			name: "jira",
			tk:   Ticket{Kind: KindJira, Project: "OPS", Issue: 17},
			want: "OPS-17",
		},
		{
			name: "admin",
			tk:   Ticket{Kind: KindAdmin},
			want: AdminKey,
		},
		{
			name:    "github missing number",
			tk:      Ticket{Kind: KindGitHub, Repo: "acme/widgets"},
			wantErr: true,
		},
		{
			name:    "jira missing project",
			tk:      Ticket{Kind: KindJira, Issue: 17},
			wantErr: true,
		},
		{
			name:    "unknown kind",
			tk:      Ticket{Kind: Kind("gitlab")},
			wantErr: true,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := tc.tk.Key()
			if tc.wantErr {
				if err == nil {
					t.Fatalf("Key() = %q, want error", got)
				}
				return
			}
			if err != nil {
				t.Fatalf("Key() error = %v", err)
			}
			if got != tc.want {
				t.Fatalf("Key() = %q, want %q", got, tc.want)
			}
		})
	}
}

func TestKeyStableAcrossEvents(t *testing.T) {
	a := Ticket{Kind: KindGitHub, Repo: "acme/widgets", Number: 7, Body: "first comment"}
	b := Ticket{Kind: KindGitHub, Repo: "acme/widgets", Number: 7, Body: "follow-up comment"}

	ka, err := a.Key()
	if err != nil {
		t.Fatalf("Key(a) error = %v", err)
	}
	kb, err := b.Key()
	if err != nil {
		t.Fatalf("Key(b) error = %v", err)
	}
	if ka != kb {
		t.Fatalf("keys differ for same work item: %q vs %q", ka, kb)
	}
}

func TestPromptIncludesContext(t *testing.T) {
	tk := Ticket{
		Kind:    KindJira,
		Project: "OPS",
		Issue:   3,
		Title:   "Fix flaky deploy",
		Body:    "The deploy job fails intermittently.",
	}

	prompt, err := tk.Prompt()
	if err != nil {
		t.Fatalf("Prompt() error = %v", err)
	}

	for _, want := range []string{"OPS-3", "Fix flaky deploy", "fails intermittently"} {
		if !strings.Contains(prompt, want) {
			t.Fatalf("Prompt() missing %q:\n%s", want, prompt)
		}
	}
}
