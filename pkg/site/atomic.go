package site

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/watchkeep/watchkeep/pkg/defaults"
)

// atomicWrite persists data to path without ever leaving a torn or
// half-written file in its place: the previous file (if any) is hardlinked
// aside, the new content lands in a temp file in the same directory and is
// fsynced, then an atomic rename installs it, and finally the preserved
// link is renamed to path+".bak".
func atomicWrite(path string, data []byte) error {
	dir := filepath.Dir(path)
	bakTemp := path + ".bak-tmp"
	os.Remove(bakTemp)

	hadPrior := false
	if _, err := os.Stat(path); err == nil {
		if err := os.Link(path, bakTemp); err != nil {
			return fmt.Errorf("site: preserve prior config: %w", err)
		}
		hadPrior = true
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("site: create temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("site: write temp file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("site: fsync temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("site: close temp file: %w", err)
	}
	if err := os.Chmod(tmpName, defaults.ConfigFileMode); err != nil {
		return fmt.Errorf("site: chmod temp file: %w", err)
	}

	if err := os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("site: rename into place: %w", err)
	}

	if hadPrior {
		if err := os.Rename(bakTemp, path+".bak"); err != nil {
			return fmt.Errorf("site: rename backup: %w", err)
		}
	}
	return nil
}
