// SPDX-License-Identifier: MIT
// Copyright (c) 2026 xuexu
// Source: github.com/xuexu/cotw-mod-builder-sub000

// Package fsutil holds the commit primitives shared by the archive and
// pipeline layers: temp-and-rename writes and rotating backup generations.
package fsutil

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

// WriteFileAtomic writes data to a temporary file next to path and renames
// it over path. On failure path is left untouched.
func WriteFileAtomic(path string, data []byte, perm os.FileMode) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return fmt.Errorf("create directory %s: %w", dir, err)
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temporary for %s: %w", path, err)
	}
	tmpPath := tmp.Name()
	defer func() {
		if tmp != nil {
			_ = tmp.Close()
			_ = os.Remove(tmpPath)
		}
	}()

	if _, err := tmp.Write(data); err != nil {
		return fmt.Errorf("write temporary for %s: %w", path, err)
	}

	if err := tmp.Sync(); err != nil {
		return fmt.Errorf("sync temporary for %s: %w", path, err)
	}

	if err := tmp.Chmod(perm); err != nil {
		return fmt.Errorf("chmod temporary for %s: %w", path, err)
	}

	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temporary for %s: %w", path, err)
	}

	if err := os.Rename(tmpPath, path); err != nil {
		_ = os.Remove(tmpPath)
		tmp = nil
		return fmt.Errorf("rename temporary to %s: %w", path, err)
	}
	tmp = nil

	return nil
}

// CopyFile copies src to dst through WriteFileAtomic, keeping src's mode.
func CopyFile(src, dst string) error {
	info, err := os.Stat(src)
	if err != nil {
		return fmt.Errorf("stat %s: %w", src, err)
	}

	data, err := os.ReadFile(src)
	if err != nil {
		return fmt.Errorf("read %s: %w", src, err)
	}

	return WriteFileAtomic(dst, data, info.Mode().Perm())
}

// Exists reports whether path exists.
func Exists(path string) (bool, error) {
	_, err := os.Stat(path)
	if err == nil {
		return true, nil
	}
	if errors.Is(err, os.ErrNotExist) {
		return false, nil
	}

	return false, fmt.Errorf("stat %s: %w", path, err)
}

// PrepareBackupSlot rotates or removes existing backup generations so that
// backupPath is free. keep is the number of generations to retain.
func PrepareBackupSlot(backupPath string, keep int) error {
	if keep < 0 {
		keep = 0
	}

	switch keep {
	case 0, 1:
		return RemoveAllIfExists(backupPath)
	default:
		oldest := fmt.Sprintf("%s.%d", backupPath, keep-1)
		if err := RemoveAllIfExists(oldest); err != nil {
			return err
		}

		for i := keep - 2; i >= 1; i-- {
			from := fmt.Sprintf("%s.%d", backupPath, i)
			to := fmt.Sprintf("%s.%d", backupPath, i+1)
			if err := RenameIfExists(from, to); err != nil {
				return err
			}
		}

		return RenameIfExists(backupPath, backupPath+".1")
	}
}

// RenameIfExists renames from to to when from exists, replacing to.
func RenameIfExists(from string, to string) error {
	ok, err := Exists(from)
	if err != nil || !ok {
		return err
	}

	if err := RemoveAllIfExists(to); err != nil {
		return err
	}

	if err := os.Rename(from, to); err != nil {
		return fmt.Errorf("rename %s to %s: %w", from, to, err)
	}

	return nil
}

// RemoveAllIfExists removes a file or directory tree when present.
func RemoveAllIfExists(path string) error {
	if err := os.RemoveAll(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("remove %s: %w", path, err)
	}

	return nil
}

// Rollback restores backupPath over path after a failed commit.
func Rollback(path string, backupPath string) error {
	_ = os.RemoveAll(path)

	if err := os.Rename(backupPath, path); err != nil {
		return fmt.Errorf("restore backup: %w", err)
	}

	return nil
}
