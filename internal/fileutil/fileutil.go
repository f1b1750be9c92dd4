// Package fileutil provides filesystem helpers for files that hold
// credentials: owner-only directories, owner-only files, and atomic rewrites.
package fileutil

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

// Owner-only permission modes.
const (
	PrivateDirPerm  os.FileMode = 0o700
	PrivateFilePerm os.FileMode = 0o600
)

// ErrEmptyPath indicates an empty file path was provided.
var ErrEmptyPath = errors.New("path is empty")

// EnsurePrivateDir creates dir (and parents) with owner-only permissions.
// An existing directory is tightened to PrivateDirPerm.
func EnsurePrivateDir(dir string) error {
	if dir == "" {
		return ErrEmptyPath
	}

	if err := os.MkdirAll(dir, PrivateDirPerm); err != nil {
		return fmt.Errorf("creating directory %s: %w", dir, err)
	}

	info, err := os.Stat(dir)
	if err != nil {
		return fmt.Errorf("inspecting directory %s: %w", dir, err)
	}
	if !info.IsDir() {
		return fmt.Errorf("%s: %w", dir, os.ErrExist)
	}
	if info.Mode().Perm() != PrivateDirPerm {
		if err := os.Chmod(dir, PrivateDirPerm); err != nil {
			return fmt.Errorf("restricting directory %s: %w", dir, err)
		}
	}
	return nil
}

// TouchPrivate creates path if it does not exist and restricts it to the
// owner. Existing content is left untouched.
func TouchPrivate(path string) error {
	if path == "" {
		return ErrEmptyPath
	}

	//nolint:gosec // G304: path is derived from the application home directory
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY, PrivateFilePerm)
	if err != nil {
		return fmt.Errorf("opening %s: %w", path, err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("closing %s: %w", path, err)
	}
	if err := os.Chmod(path, PrivateFilePerm); err != nil {
		return fmt.Errorf("restricting %s: %w", path, err)
	}
	return nil
}

// WriteAtomic writes data to path atomically with the provided permissions.
// It writes to a temp file in the same directory, fsyncs, then renames.
func WriteAtomic(path string, data []byte, perm os.FileMode) error {
	if path == "" {
		return ErrEmptyPath
	}

	dir := filepath.Dir(path)
	tmpFile, err := os.CreateTemp(dir, filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}

	tmpPath := tmpFile.Name()
	closed := false
	defer func() {
		if !closed {
			_ = tmpFile.Close()
		}
		_ = os.Remove(tmpPath)
	}()

	if _, err := tmpFile.Write(data); err != nil {
		return fmt.Errorf("writing temp file: %w", err)
	}
	if err := tmpFile.Chmod(perm); err != nil {
		return fmt.Errorf("setting temp file permissions: %w", err)
	}
	if err := tmpFile.Sync(); err != nil {
		return fmt.Errorf("syncing temp file: %w", err)
	}
	if err := tmpFile.Close(); err != nil {
		return fmt.Errorf("closing temp file: %w", err)
	}
	closed = true

	if err := os.Rename(tmpPath, path); err != nil { //nolint:gosec // G703: path comes from the application home directory
		return fmt.Errorf("renaming temp file: %w", err)
	}

	// Best effort directory sync for rename durability.
	if dirFile, err := os.Open(dir); err == nil { //nolint:gosec // G304: dir is derived from path
		_ = dirFile.Sync()
		_ = dirFile.Close()
	}

	return nil
}
