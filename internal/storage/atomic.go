package storage

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// PartialPath returns the in-progress path for output, a hidden sibling tagged
// with owner so concurrent writers of the same output never share a file. The
// extension is kept last so encoders still infer the container from it.
func PartialPath(output, owner string) string {
	dir, base := filepath.Split(output)
	ext := filepath.Ext(base)
	stem := strings.TrimSuffix(base, ext)
	return filepath.Join(dir, fmt.Sprintf(".%s.%s.partial%s", stem, owner, ext))
}

// Commit atomically moves a finished partial file onto its final path.
func Commit(partial, output string) error {
	if err := os.Rename(partial, output); err != nil {
		return fmt.Errorf("commit %s: %w", output, err)
	}
	return nil
}

// WriteFileAtomic writes data to a temporary sibling of path and renames it into
// place, so readers observe either the previous file or the complete new one.
func WriteFileAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	f, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmp := f.Name()

	if _, err := f.Write(data); err != nil {
		_ = f.Close()
		_ = os.Remove(tmp)
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Chmod(tmp, 0644); err != nil { // #nosec G302 - outputs are meant to be shared
		_ = os.Remove(tmp)
		return fmt.Errorf("chmod temp file: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("rename temp file: %w", err)
	}
	return nil
}
