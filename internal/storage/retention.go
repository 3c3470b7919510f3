package storage

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

// ErrInvalidSink is returned when a WriteToFiles destination is unusable.
var ErrInvalidSink = errors.New("invalid file sink")

// WriteToFiles describes a directory of files named <prefix><name><suffix>
// with an optional cap on how many of them may exist at once.
type WriteToFiles struct {
	Path       string  `json:"path" validate:"required"`
	FilePrefix string  `json:"file_prefix"`
	FileSuffix string  `json:"file_suffix"`
	MaxFiles   *uint64 `json:"max_files,omitempty" validate:"omitempty,gt=0"`
}

// Validate checks the sink and creates its directory.
func (w WriteToFiles) Validate() error {
	if w.Path == "" {
		return fmt.Errorf("%w: path is required", ErrInvalidSink)
	}
	if w.MaxFiles != nil && *w.MaxFiles == 0 {
		return fmt.Errorf("%w: max_files must be positive", ErrInvalidSink)
	}
	if strings.ContainsRune(w.FilePrefix, filepath.Separator) || strings.ContainsRune(w.FileSuffix, filepath.Separator) {
		return fmt.Errorf("%w: prefix and suffix must not contain path separators", ErrInvalidSink)
	}
	if err := os.MkdirAll(w.Path, 0750); err != nil {
		return fmt.Errorf("create sink directory: %w", err)
	}
	return nil
}

// FilePath joins the sink directory with <prefix><name><suffix>.
func (w WriteToFiles) FilePath(name string) string {
	return filepath.Join(w.Path, w.FilePrefix+name+w.FileSuffix)
}

// Matches reports whether a file name belongs to the sink.
func (w WriteToFiles) Matches(name string) bool {
	if len(name) <= len(w.FilePrefix)+len(w.FileSuffix) {
		return false
	}
	return strings.HasPrefix(name, w.FilePrefix) && strings.HasSuffix(name, w.FileSuffix)
}

// MakeRoom evicts the oldest sink files so that writing incoming keeps the
// number of matching files at or below MaxFiles. Files are ordered by
// modification time, then name. It returns the evicted paths.
func (w WriteToFiles) MakeRoom(incoming string) ([]string, error) {
	if w.MaxFiles == nil {
		return nil, nil
	}
	return Prune(w.Path, w.Matches, *w.MaxFiles, filepath.Base(incoming))
}

type agedFile struct {
	name    string
	modTime time.Time
}

// Prune removes the oldest files in dir accepted by match until, counting the
// file named incoming, no more than max remain. incoming itself is never removed.
func Prune(dir string, match func(string) bool, max uint64, incoming string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("list sink directory: %w", err)
	}

	var files []agedFile
	for _, e := range entries {
		if !e.Type().IsRegular() || e.Name() == incoming || !match(e.Name()) {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		files = append(files, agedFile{name: e.Name(), modTime: info.ModTime()})
	}

	allowed := int(max) - 1 // #nosec G115 - sink caps are small
	if allowed < 0 {
		allowed = 0
	}
	if len(files) <= allowed {
		return nil, nil
	}

	sort.Slice(files, func(i, j int) bool {
		if files[i].modTime.Equal(files[j].modTime) {
			return files[i].name < files[j].name
		}
		return files[i].modTime.Before(files[j].modTime)
	})

	var removed []string
	for _, f := range files[:len(files)-allowed] {
		p := filepath.Join(dir, f.name)
		if err := os.Remove(p); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return removed, fmt.Errorf("evict %s: %w", p, err)
		}
		removed = append(removed, p)
	}
	return removed, nil
}
