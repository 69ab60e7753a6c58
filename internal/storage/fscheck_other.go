//go:build !darwin && !linux

package storage

import "fmt"

// detectFilesystemType has no statfs support here; the preflight surfaces
// this instead of guessing.
func detectFilesystemType(path string) (string, error) {
	return "", fmt.Errorf("filesystem type detection not implemented for this platform")
}
