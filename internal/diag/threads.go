package diag

import (
	"context"
	"fmt"
	"os"
	"runtime"
	"sort"
	"strconv"
	"strings"

	"github.com/shirou/gopsutil/v4/process"
)

// Thread is one OS thread of the process.
type Thread struct {
	ID   int32  `json:"id"`
	Name string `json:"name,omitempty"`
}

// ThreadReport describes the threads backing the process.
type ThreadReport struct {
	PID        int32    `json:"pid"`
	Count      int32    `json:"count"`
	Threads    []Thread `json:"threads,omitempty"`
	Goroutines int      `json:"goroutines"`
}

// Threads inspects the current process. Thread ids are only available where
// the platform exposes them; Count and Goroutines always are.
func Threads(ctx context.Context) (ThreadReport, error) {
	pid := int32(os.Getpid()) // #nosec G115 - pids fit in int32
	report := ThreadReport{PID: pid, Goroutines: runtime.NumGoroutine()}

	p, err := process.NewProcessWithContext(ctx, pid)
	if err != nil {
		return report, fmt.Errorf("inspect process: %w", err)
	}
	count, err := p.NumThreadsWithContext(ctx)
	if err != nil {
		return report, fmt.Errorf("count threads: %w", err)
	}
	report.Count = count

	times, err := p.ThreadsWithContext(ctx)
	if err != nil {
		// Not implemented on every platform.
		return report, nil
	}
	for tid := range times {
		report.Threads = append(report.Threads, Thread{ID: tid, Name: threadName(pid, tid)})
	}
	sort.Slice(report.Threads, func(i, j int) bool { return report.Threads[i].ID < report.Threads[j].ID })
	return report, nil
}

func threadName(pid, tid int32) string {
	path := "/proc/" + strconv.Itoa(int(pid)) + "/task/" + strconv.Itoa(int(tid)) + "/comm"
	b, err := os.ReadFile(path) // #nosec G304 - procfs path built from ids
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(b))
}
