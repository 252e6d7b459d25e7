// Package safefile reads and writes the files controldesk trusts (config,
// exported control sets) without following symlinks and with a size cap.
package safefile

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// DefaultMaxBytes caps ReadFile.
const DefaultMaxBytes = 4 << 20

var (
	// ErrSymlink is returned for paths that are symbolic links.
	ErrSymlink = errors.New("symbolic link rejected")
	// ErrTooLarge is returned when a file exceeds the read limit.
	ErrTooLarge = errors.New("file too large")
)

// RejectSymlink returns an error if path is a symbolic link. It uses Lstat
// so the check is not followed through the link.
func RejectSymlink(path string) error {
	info, err := os.Lstat(path)
	if err != nil {
		return err
	}
	if info.Mode()&os.ModeSymlink != 0 {
		return fmt.Errorf("%s: %w", path, ErrSymlink)
	}
	return nil
}

// ReadFile reads path with the DefaultMaxBytes limit.
func ReadFile(path string) ([]byte, error) {
	return ReadFileMax(path, DefaultMaxBytes)
}

// ReadFileMax reads path after verifying it is not a symlink. Files larger
// than maxBytes are rejected; the limit is enforced on the bytes actually
// read as well as on the size reported by Lstat.
func ReadFileMax(path string, maxBytes int64) ([]byte, error) {
	info, err := os.Lstat(path)
	if err != nil {
		return nil, err
	}
	if info.Mode()&os.ModeSymlink != 0 {
		return nil, fmt.Errorf("%s: %w", path, ErrSymlink)
	}
	if info.Size() > maxBytes {
		return nil, fmt.Errorf("%s is %d bytes, max %d: %w", path, info.Size(), maxBytes, ErrTooLarge)
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer func() { _ = f.Close() }()

	data, err := io.ReadAll(io.LimitReader(f, maxBytes+1))
	if err != nil {
		return nil, err
	}
	if int64(len(data)) > maxBytes {
		return nil, fmt.Errorf("%s grew past %d bytes: %w", path, maxBytes, ErrTooLarge)
	}
	return data, nil
}

// WriteFileAtomic writes data to a temp file in the target directory and
// renames it over path. An existing symlink at path is rejected.
func WriteFileAtomic(path string, data []byte, perm os.FileMode) error {
	if err := RejectSymlink(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}

	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}
	tmpName := tmp.Name()
	cleanup := func() { _ = os.Remove(tmpName) }

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		cleanup()
		return fmt.Errorf("writing temp file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		cleanup()
		return fmt.Errorf("syncing temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		cleanup()
		return fmt.Errorf("closing temp file: %w", err)
	}
	if err := os.Chmod(tmpName, perm); err != nil {
		cleanup()
		return fmt.Errorf("setting permissions: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		cleanup()
		return fmt.Errorf("replacing %s: %w", path, err)
	}
	return nil
}
