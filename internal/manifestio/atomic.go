// Package manifestio provides the atomic-write and byte-preserving text
// surgery primitives shared by every ecosystem adapter: write to a
// sibling temp file, then rename into place, so a crash mid-write never
// leaves a manifest half-written.
package manifestio

import (
	"fmt"
	"os"
	"path/filepath"
)

// AtomicWriteFile replaces the contents of path with data, preserving the
// file's existing permissions where possible.
func AtomicWriteFile(path string, data []byte) error {
	info, err := os.Stat(path)
	mode := os.FileMode(0o644)
	if err == nil {
		mode = info.Mode()
	}

	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, ".manifestio-*")
	if err != nil {
		return fmt.Errorf("manifestio: creating temp file: %w", err)
	}
	tmpPath := tmp.Name()

	success := false
	defer func() {
		if !success {
			os.Remove(tmpPath)
		}
	}()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("manifestio: writing temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("manifestio: closing temp file: %w", err)
	}
	if err := os.Chmod(tmpPath, mode); err != nil {
		return fmt.Errorf("manifestio: preserving mode: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("manifestio: renaming into place: %w", err)
	}
	success = true
	return nil
}
