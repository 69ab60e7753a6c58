package storage

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

var networkFilesystems = map[string]struct{}{
	"afpfs":  {},
	"cifs":   {},
	"nfs":    {},
	"smbfs":  {},
	"smb2":   {},
	"webdav": {},
}

// validateSQLiteFilesystem ensures the DB path is on a local filesystem.
func validateSQLiteFilesystem(path string) error {
	return checkLocalFilesystemWithDetector(path, "state.path",
		"SQLite requires a local filesystem for reliable locking", detectFilesystemType)
}

// ValidateWorkspaceFilesystem ensures the workspace root is on a local
// filesystem. Session reuse depends on rename/remove semantics that network
// mounts do not provide reliably.
func ValidateWorkspaceFilesystem(path string) error {
	return checkLocalFilesystemWithDetector(path, "sessions.dir",
		"workspace lifecycle needs local rename and remove semantics", detectFilesystemType)
}

func checkLocalFilesystemWithDetector(path, configKey, reason string, detector func(string) (string, error)) error {
	if path == "" {
		return fmt.Errorf("%s is empty", configKey)
	}

	inspectPath, err := nearestExistingPath(path)
	if err != nil {
		return fmt.Errorf("resolve path %q: %w", path, err)
	}

	fsType, err := detector(inspectPath)
	if err != nil {
		return fmt.Errorf("detect filesystem for %q: %w", inspectPath, err)
	}

	if isNetworkFilesystem(fsType) {
		return fmt.Errorf(
			"path %q is on network filesystem %q; %s. Point %s at local disk",
			path, fsType, reason, configKey,
		)
	}

	return nil
}

func nearestExistingPath(path string) (string, error) {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return "", fmt.Errorf("absolute path: %w", err)
	}

	candidate := absPath
	for {
		_, err := os.Stat(candidate)
		if err == nil {
			return candidate, nil
		}
		if !errors.Is(err, os.ErrNotExist) {
			return "", fmt.Errorf("stat %q: %w", candidate, err)
		}

		parent := filepath.Dir(candidate)
		if parent == candidate {
			return "", fmt.Errorf("no existing parent for %q", absPath)
		}
		candidate = parent
	}
}

func isNetworkFilesystem(fsType string) bool {
	normalized := strings.TrimSpace(strings.ToLower(fsType))
	_, found := networkFilesystems[normalized]
	return found
}
