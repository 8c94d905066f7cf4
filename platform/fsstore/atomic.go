// Package fsstore holds crash-safe file helpers for the file-backed stores.
package fsstore

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

var ErrAtomicWriteFailed = errors.New("fsstore: atomic write failed")

const (
	defaultDirPerm  os.FileMode = 0o700
	defaultFilePerm os.FileMode = 0o600
)

// EnsureDir creates path and its parents.
func EnsureDir(path string) error {
	if err := os.MkdirAll(path, defaultDirPerm); err != nil {
		return fmt.Errorf("fsstore ensure dir %s: %w", path, err)
	}
	return nil
}

// WriteAtomic replaces path with content via a synced temp file and rename.
func WriteAtomic(path string, content []byte) error {
	parentDir := filepath.Dir(path)
	if err := EnsureDir(parentDir); err != nil {
		return err
	}

	tmp, err := os.CreateTemp(parentDir, filepath.Base(path)+".tmp.*")
	if err != nil {
		return fmt.Errorf("%w: create temp for %s: %v", ErrAtomicWriteFailed, path, err)
	}
	tmpPath := tmp.Name()
	defer func() {
		_ = tmp.Close()
		_ = os.Remove(tmpPath)
	}()

	if _, err := tmp.Write(content); err != nil {
		return fmt.Errorf("%w: write temp for %s: %v", ErrAtomicWriteFailed, path, err)
	}
	if err := tmp.Sync(); err != nil {
		return fmt.Errorf("%w: sync temp for %s: %v", ErrAtomicWriteFailed, path, err)
	}
	if err := tmp.Chmod(defaultFilePerm); err != nil {
		return fmt.Errorf("%w: chmod temp for %s: %v", ErrAtomicWriteFailed, path, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("%w: close temp for %s: %v", ErrAtomicWriteFailed, path, err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("%w: rename temp for %s: %v", ErrAtomicWriteFailed, path, err)
	}

	if dir, err := os.Open(parentDir); err == nil {
		_ = dir.Sync()
		_ = dir.Close()
	}
	return nil
}

// AppendLine appends one newline-terminated record and syncs the file.
func AppendLine(path string, line []byte) error {
	if err := EnsureDir(filepath.Dir(path)); err != nil {
		return err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, defaultFilePerm)
	if err != nil {
		return fmt.Errorf("fsstore open %s: %w", path, err)
	}
	defer f.Close()

	buf := make([]byte, 0, len(line)+1)
	buf = append(buf, line...)
	buf = append(buf, '\n')
	if _, err := f.Write(buf); err != nil {
		return fmt.Errorf("fsstore append %s: %w", path, err)
	}
	return f.Sync()
}
