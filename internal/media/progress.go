package media

import (
	"strconv"
	"strings"
)

// progressState accumulates the key=value blocks ffmpeg writes with `-progress pipe:1`.
// A block ends with a "progress=continue" or "progress=end" line.
type progressState struct {
	outTimeUs int64
	totalSize int64
}

// update consumes one line and returns a snapshot when the line closes a block.
func (ps *progressState) update(line string) (EncodeProgress, bool) {
	key, val, ok := strings.Cut(strings.TrimSpace(line), "=")
	if !ok {
		return EncodeProgress{}, false
	}

	switch key {
	case "out_time_us", "out_time_ms":
		// Both keys carry microseconds.
		if v, err := strconv.ParseInt(val, 10, 64); err == nil && v >= 0 {
			ps.outTimeUs = v
		}
	case "total_size":
		if v, err := strconv.ParseInt(val, 10, 64); err == nil && v >= 0 {
			ps.totalSize = v
		}
	case "progress":
		return ps.snapshot(val == "end"), true
	}

	return EncodeProgress{}, false
}

func (ps *progressState) snapshot(done bool) EncodeProgress {
	return EncodeProgress{
		OutTimeMs: uint64(ps.outTimeUs / 1000), // #nosec G115 - never negative
		SizeBytes: uint64(ps.totalSize),        // #nosec G115 - never negative
		Done:      done,
	}
}
