package secrets

import (
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"filippo.io/age"
	"gopkg.in/yaml.v3"
)

// Vault hands out API tokens and other secrets. Values reach the supervised
// process only through its environment, never through arguments or logs.
type Vault interface {
	// Get returns the named secret.
	Get(name string) (string, error)

	// Env returns all secrets as KEY=value pairs in a deterministic order.
	Env() []string
}

// fileVault is an age-encrypted YAML map of env-var name to value.
type fileVault struct {
	values map[string]string
}

var _ Vault = (*fileVault)(nil)

// OpenAgeVault decrypts the secrets file at vaultPath with the age identity
// at identityPath and parses it as a flat YAML string map.
func OpenAgeVault(vaultPath, identityPath string) (Vault, error) {
	idData, err := os.Open(identityPath)
	if err != nil {
		return nil, fmt.Errorf("open age identity: %w", err)
	}
	defer idData.Close()

	identities, err := age.ParseIdentities(idData)
	if err != nil {
		return nil, fmt.Errorf("parse age identity: %w", err)
	}

	enc, err := os.Open(vaultPath)
	if err != nil {
		return nil, fmt.Errorf("open secrets vault: %w", err)
	}
	defer enc.Close()

	dec, err := age.Decrypt(enc, identities...)
	if err != nil {
		return nil, fmt.Errorf("decrypt secrets vault: %w", err)
	}

	plain, err := io.ReadAll(dec)
	if err != nil {
		return nil, fmt.Errorf("read secrets vault: %w", err)
	}

	values := make(map[string]string)
	if err := yaml.Unmarshal(plain, &values); err != nil {
		return nil, fmt.Errorf("parse secrets vault: %w", err)
	}

	for name := range values {
		if strings.TrimSpace(name) == "" || strings.ContainsAny(name, "= \t") {
			return nil, fmt.Errorf("invalid secret name %q", name)
		}
	}

	return &fileVault{values: values}, nil
}

func (v *fileVault) Get(name string) (string, error) {
	val, ok := v.values[name]
	if !ok {
		return "", fmt.Errorf("secret %q not found", name)
	}
	return val, nil
}

func (v *fileVault) Env() []string {
	out := make([]string, 0, len(v.values))
	for name, val := range v.values {
		out = append(out, name+"="+val)
	}
	sort.Strings(out)
	return out
}

// Static is an in-memory vault for tests and for deployments without an
// encrypted secrets file.
type Static map[string]string

var _ Vault = Static(nil)

func (s Static) Get(name string) (string, error) {
	val, ok := s[name]
	if !ok {
		return "", fmt.Errorf("secret %q not found", name)
	}
	return val, nil
}

func (s Static) Env() []string {
	out := make([]string, 0, len(s))
	for name, val := range s {
		out = append(out, name+"="+val)
	}
	sort.Strings(out)
	return out
}
