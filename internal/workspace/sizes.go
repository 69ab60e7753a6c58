package workspace

import (
	"context"
	"io/fs"
	"os"
	"path/filepath"
)

// SizeOf measures the disk footprint of one session with a recursive walk.
// This is the explicit slow path: nothing in the lifecycle calls it
// implicitly, it exists only for the admin sizes surface.
func (s *Store) SizeOf(ctx context.Context, key string) (SizeInfo, error) {
	if err := validateKey(key); err != nil {
		return SizeInfo{}, err
	}
	if err := ctx.Err(); err != nil {
		return SizeInfo{}, err
	}

	dir := s.dirFor(key)
	total, err := dirSize(ctx, dir)
	if err != nil {
		return SizeInfo{}, ioErr("size", key, err)
	}

	stateSize, err := dirSize(ctx, filepath.Join(dir, stateDirName))
	if err != nil {
		return SizeInfo{}, ioErr("size", key, err)
	}

	return SizeInfo{
		Key:                key,
		SizeBytes:          stateSize,
		WorkspaceSizeBytes: total,
	}, nil
}

func dirSize(ctx context.Context, dir string) (int64, error) {
	var total int64
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			if path == dir && os.IsNotExist(walkErr) {
				return filepath.SkipAll
			}
			return walkErr
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		total += info.Size()
		return nil
	})
	if err != nil {
		return 0, err
	}
	return total, nil
}
