package filemgr

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// SaveUpload copies src to dir/name, writing at most max bytes. When src holds
// more than max bytes the partial file is removed and the oversize error is
// returned. It returns the full path and the number of bytes written.
func SaveUpload(src io.Reader, dir, name string, max int64) (string, int64, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", 0, fmt.Errorf("mkdir %s: %w", dir, err)
	}

	fullPath := filepath.Join(dir, name)
	out, err := os.Create(fullPath)
	if err != nil {
		return "", 0, fmt.Errorf("create %s: %w", fullPath, err)
	}

	written, err := io.Copy(out, io.LimitReader(src, max+1))
	closeErr := out.Close()
	if err == nil {
		err = closeErr
	}
	if err != nil {
		_ = os.Remove(fullPath)
		return "", 0, fmt.Errorf("write %s: %w", fullPath, err)
	}

	if written > max {
		_ = os.Remove(fullPath)
		// The true size is unknown past max+1, so report the ceiling only.
		return "", 0, TooLarge(max)
	}
	return fullPath, written, nil
}

// RemoveQuietly deletes path, ignoring files that are already gone.
func RemoveQuietly(path string) error {
	if path == "" {
		return nil
	}
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}
