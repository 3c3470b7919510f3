package diag

import (
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/maauso/mediaforge/internal/metrics"
	"github.com/maauso/mediaforge/internal/storage"
)

const dayLayout = "2006-01-02"

// RollingWriter appends to one file per day named
// <prefix>.<YYYY-MM-DD>[.<suffix>] and evicts the oldest files when the
// sink caps their number.
type RollingWriter struct {
	files storage.WriteToFiles
	now   func() time.Time

	mu     sync.Mutex
	day    string
	file   *os.File
	closed bool
}

// NewRollingWriter validates the sink, creating its directory. The first
// file is opened lazily on the first write.
func NewRollingWriter(sink storage.WriteToFiles) (*RollingWriter, error) {
	if err := sink.Validate(); err != nil {
		return nil, err
	}
	return &RollingWriter{files: dailyFiles(sink), now: time.Now}, nil
}

// dailyFiles maps the user facing prefix and suffix onto the dotted
// daily naming.
func dailyFiles(sink storage.WriteToFiles) storage.WriteToFiles {
	out := sink
	out.FilePrefix = sink.FilePrefix + "."
	if sink.FileSuffix != "" {
		out.FileSuffix = "." + sink.FileSuffix
	}
	return out
}

// Path returns the file records written at t would go to.
func (w *RollingWriter) Path(t time.Time) string {
	return w.files.FilePath(t.Format(dayLayout))
}

// Write appends p to the current day's file, rolling over when the date changed.
func (w *RollingWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return 0, os.ErrClosed
	}
	now := w.now()
	if day := now.Format(dayLayout); w.file == nil || day != w.day {
		if err := w.roll(now, day); err != nil {
			return 0, err
		}
	}
	return w.file.Write(p)
}

func (w *RollingWriter) roll(now time.Time, day string) error {
	if w.file != nil {
		_ = w.file.Close()
		w.file = nil
	}

	path := w.Path(now)
	evicted, err := w.files.MakeRoom(path)
	metrics.LogFilesEvicted.Add(float64(len(evicted)))
	if err != nil {
		return fmt.Errorf("rotate log files: %w", err)
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0640) // #nosec G304 - configured log directory
	if err != nil {
		return fmt.Errorf("open log file: %w", err)
	}
	w.file = f
	w.day = day
	return nil
}

// Close closes the current file. Later writes fail with os.ErrClosed.
func (w *RollingWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.closed = true
	if w.file == nil {
		return nil
	}
	err := w.file.Close()
	w.file = nil
	return err
}
