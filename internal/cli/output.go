package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/maauso/mediaforge/internal/engine"
)

const progressInterval = 200 * time.Millisecond

// printer writes command results either as indented JSON or as text for people.
type printer struct {
	w      io.Writer
	asJSON bool
}

func (a *app) printer(cmd *cobra.Command) printer {
	asJSON, _ := cmd.Flags().GetBool("json")
	return printer{w: a.stdout, asJSON: asJSON || !a.tty}
}

func (p printer) print(v any, human func(w io.Writer)) error {
	if p.asJSON {
		enc := json.NewEncoder(p.w)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	}
	human(p.w)
	return nil
}

// watchProgress redraws a progress line on stderr until the returned stop
// function is called. It does nothing unless stderr is a terminal.
func (a *app) watchProgress(ctx context.Context, eng *engine.Engine, jobID, label string) (stop func()) {
	fd, ok := terminalFd(a.stderr)
	if !ok {
		return func() {}
	}
	width := 80
	if w, _, err := term.GetSize(fd); err == nil && w > 0 {
		width = w
	}

	done := make(chan struct{})
	finished := make(chan struct{})
	go func() {
		defer close(finished)
		ticker := time.NewTicker(progressInterval)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				fmt.Fprintf(a.stderr, "\r%s\r", strings.Repeat(" ", width-1))
				return
			case <-ctx.Done():
				return
			case <-ticker.C:
				j, err := eng.Runner().Get(ctx, jobID)
				if err != nil {
					continue
				}
				fmt.Fprintf(a.stderr, "\r%s", progressLine(label, j.Clone().Progress, width))
			}
		}
	}()
	return func() {
		close(done)
		<-finished
	}
}

func terminalFd(w io.Writer) (int, bool) {
	f, ok := w.(*os.File)
	if !ok {
		return 0, false
	}
	fd := int(f.Fd()) // #nosec G115 - file descriptors fit in int
	return fd, term.IsTerminal(fd)
}

// progressLine renders "label [#####     ]  42%" in at most width-1 columns.
func progressLine(label string, percent, width int) string {
	percent = max(0, min(percent, 100))
	bar := width - len(label) - 10
	if bar < 10 {
		return fmt.Sprintf("%s %3d%%", label, percent)
	}
	filled := bar * percent / 100
	return fmt.Sprintf("%s [%s%s] %3d%%", label, strings.Repeat("#", filled), strings.Repeat(" ", bar-filled), percent)
}

// humanBytes formats n with binary units.
func humanBytes(n uint64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := uint64(unit), 0
	for m := n / unit; m >= unit; m /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(n)/float64(div), "KMGTPE"[exp])
}

func humanDuration(ms uint64) string {
	return (time.Duration(ms) * time.Millisecond).Round(time.Millisecond).String() // #nosec G115 - media durations fit in int64
}
