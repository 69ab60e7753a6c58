//go:build linux

package storage

import (
	"fmt"
	"syscall"
)

// statfs magic numbers for the network filesystems the preflight refuses.
var linuxFsMagics = map[uint64]string{
	0x6969:     "nfs",
	0xFF534D42: "cifs",
	0x517B:     "smbfs",
	0xFE534D42: "smb2",
}

// detectFilesystemType names the filesystem holding path. Types without a
// known magic come back as the raw hex value, which the network check
// treats as local.
func detectFilesystemType(path string) (string, error) {
	var stat syscall.Statfs_t
	if err := syscall.Statfs(path, &stat); err != nil {
		return "", fmt.Errorf("statfs %q: %w", path, err)
	}

	magic := uint64(stat.Type)
	if name, ok := linuxFsMagics[magic]; ok {
		return name, nil
	}
	return fmt.Sprintf("0x%x", magic), nil
}
