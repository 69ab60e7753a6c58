package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRuntimeSetSessionsValidates(t *testing.T) {
	rt := NewRuntime(Defaults(), "")

	s := rt.Sessions()
	s.MaxSessions = 5
	require.NoError(t, rt.SetSessions(s))
	require.Equal(t, 5, rt.Sessions().MaxSessions)

	s.MaxSessions = 0
	err := rt.SetSessions(s)
	require.Error(t, err)
	// Rejected update leaves the previous snapshot in effect.
	require.Equal(t, 5, rt.Sessions().MaxSessions)
}

func TestRuntimeReload(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("sessions:\n  max_sessions: 3\n"), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)

	rt := NewRuntime(cfg, path)
	require.Equal(t, 3, rt.Sessions().MaxSessions)

	require.NoError(t, os.WriteFile(path, []byte("sessions:\n  max_sessions: 9\n"), 0o644))
	require.NoError(t, rt.Reload())
	require.Equal(t, 9, rt.Sessions().MaxSessions)

	// Broken file keeps the old snapshot.
	require.NoError(t, os.WriteFile(path, []byte("sessions:\n  max_sessions: 0\n"), 0o644))
	require.Error(t, rt.Reload())
	require.Equal(t, 9, rt.Sessions().MaxSessions)
}

func TestRuntimeReloadWithoutBackingFile(t *testing.T) {
	rt := NewRuntime(Defaults(), "")
	require.Error(t, rt.Reload())
}
