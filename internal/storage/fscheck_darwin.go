//go:build darwin

package storage

import (
	"fmt"
	"syscall"
)

// detectFilesystemType names the filesystem holding path. Darwin's statfs
// carries the name directly as a NUL-terminated int8 array.
func detectFilesystemType(path string) (string, error) {
	var stat syscall.Statfs_t
	if err := syscall.Statfs(path, &stat); err != nil {
		return "", fmt.Errorf("statfs %q: %w", path, err)
	}
	return cstringName(stat.Fstypename[:]), nil
}

func cstringName(buf []int8) string {
	name := make([]byte, 0, len(buf))
	for _, c := range buf {
		if c == 0 {
			break
		}
		name = append(name, byte(c))
	}
	return string(name)
}
