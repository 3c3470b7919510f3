package media

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// probeOutput is the subset of `ffprobe -print_format json -show_format -show_streams` we read.
type probeOutput struct {
	Format  probeFormat   `json:"format"`
	Streams []probeStream `json:"streams"`
}

type probeFormat struct {
	Filename   string `json:"filename"`
	Duration   string `json:"duration"`
	Size       string `json:"size"`
	FormatName string `json:"format_name"`
}

type probeStream struct {
	Index       int    `json:"index"`
	CodecType   string `json:"codec_type"`
	CodecName   string `json:"codec_name"`
	Width       int    `json:"width"`
	Height      int    `json:"height"`
	Duration    string `json:"duration"`
	BitRate     string `json:"bit_rate"`
	Disposition struct {
		Default     int `json:"default"`
		AttachedPic int `json:"attached_pic"`
	} `json:"disposition"`
}

// parseProbeOutput converts raw ffprobe JSON into StreamInfo.
// The default video stream is preferred, then the first one. Cover art is ignored.
func parseProbeOutput(data []byte) (StreamInfo, error) {
	var out probeOutput
	if err := json.Unmarshal(data, &out); err != nil {
		return StreamInfo{}, NewError(KindCorrupt, "probe", "", fmt.Errorf("parse ffprobe output: %w", err))
	}

	var first, preferred *probeStream
	hasAudio := false
	for i := range out.Streams {
		s := &out.Streams[i]
		switch s.CodecType {
		case "video":
			if s.Disposition.AttachedPic == 1 {
				continue
			}
			if first == nil {
				first = s
			}
			if preferred == nil && s.Disposition.Default == 1 {
				preferred = s
			}
		case "audio":
			hasAudio = true
		}
	}
	if preferred == nil {
		preferred = first
	}
	if preferred == nil {
		return StreamInfo{}, NewError(KindUnsupportedFormat, "probe", out.Format.Filename, fmt.Errorf("no video stream"))
	}

	if preferred.Width <= 0 || preferred.Height <= 0 {
		return StreamInfo{}, Errorf(KindCorrupt, "probe", out.Format.Filename,
			"invalid stream dimensions %dx%d", preferred.Width, preferred.Height)
	}

	durationMs, err := parseSeconds(preferred.Duration)
	if err != nil {
		durationMs, err = parseSeconds(out.Format.Duration)
	}
	if err != nil {
		return StreamInfo{}, NewError(KindCorrupt, "probe", out.Format.Filename, fmt.Errorf("read duration: %w", err))
	}

	info := StreamInfo{
		DurationMs: durationMs,
		Width:      uint32(preferred.Width),  // #nosec G115 - checked positive above
		Height:     uint32(preferred.Height), // #nosec G115 - checked positive above
		CodecName:  preferred.CodecName,
		FormatName: out.Format.FormatName,
		HasAudio:   hasAudio,
	}

	// Only the stream's own bitrate is reported. The container bit_rate is
	// filled by libavformat as size*8/duration when the muxer stores none.
	if b, ok := parseBitrate(preferred.BitRate); ok {
		info.Bitrate = &b
	}

	return info, nil
}

// parseSeconds converts an ffprobe seconds string ("12.345000") into milliseconds.
func parseSeconds(s string) (uint64, error) {
	s = strings.TrimSpace(s)
	if s == "" || s == "N/A" {
		return 0, fmt.Errorf("duration not reported")
	}
	sec, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("parse duration %q: %w", s, err)
	}
	if sec < 0 || math.IsNaN(sec) || math.IsInf(sec, 0) {
		return 0, fmt.Errorf("invalid duration %q", s)
	}
	return uint64(math.Round(sec * 1000)), nil
}

func parseBitrate(s string) (uint64, bool) {
	b, err := strconv.ParseUint(strings.TrimSpace(s), 10, 64)
	if err != nil || b == 0 {
		return 0, false
	}
	return b, true
}
