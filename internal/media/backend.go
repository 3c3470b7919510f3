// Package media provides the media backend port used by every engine component
// and its ffmpeg/ffprobe adapter.
package media

import (
	"context"
	"image"
	"sync/atomic"
)

// Handle is an opened media source. It is only valid for the Backend that produced it.
type Handle struct {
	// Path is the source file path as given by the caller.
	Path string
	// SizeBytes is the on-disk size of the source at open time.
	SizeBytes uint64

	closed atomic.Bool
}

// Closed reports whether Close has been called for the handle.
func (h *Handle) Closed() bool {
	return h.closed.Load()
}

// StreamInfo describes the primary video stream of a source.
type StreamInfo struct {
	DurationMs uint64
	Width      uint32
	Height     uint32
	CodecName  string
	FormatName string
	// Bitrate is nil when neither the stream nor the container states one.
	Bitrate  *uint64
	HasAudio bool
}

// EncodeSettings describes a single encode. The zero value re-encodes the
// whole source at the encoder defaults.
type EncodeSettings struct {
	// VideoCodec defaults to libx264.
	VideoCodec string
	// Speed is the encoder speed preset, e.g. "veryfast".
	Speed string
	// CRF selects constant-quality mode when set.
	CRF *uint8
	// BitrateKbps selects average-bitrate mode when CRF is nil, and acts as
	// the maxrate cap when CRF is set.
	BitrateKbps uint64
	// Width and Height select the output size. A zero side is derived from the
	// source aspect ratio; both zero keeps the source size.
	Width  uint32
	Height uint32
	// LimitMs truncates the encode to the first LimitMs of the source. Zero encodes everything.
	LimitMs uint64
	// OnProgress is called for every progress block ffmpeg reports.
	OnProgress func(EncodeProgress)
}

// EncodeProgress is a snapshot of a running encode.
type EncodeProgress struct {
	OutTimeMs uint64
	SizeBytes uint64
	Done      bool
}

// EncodeResult describes a finished encode.
type EncodeResult struct {
	// SizeBytes is the size of the written output.
	SizeBytes uint64
	// MediaDurationMs is the amount of media time encoded, zero when ffmpeg did not report it.
	MediaDurationMs uint64
}

// Backend abstracts the codec and container library. Implementations must be safe
// for concurrent use by independent jobs.
type Backend interface {
	// Open validates the source and returns a handle for it.
	Open(ctx context.Context, path string) (*Handle, error)

	// ProbeStreams reads the container and primary video stream metadata.
	ProbeStreams(ctx context.Context, h *Handle) (StreamInfo, error)

	// DecodeFrame seeks to atMs and decodes a single video frame.
	DecodeFrame(ctx context.Context, h *Handle, atMs uint64) (image.Image, error)

	// DecodeImage decodes a still image file.
	DecodeImage(ctx context.Context, path string) (image.Image, error)

	// Encode transcodes the source described by h into output.
	Encode(ctx context.Context, h *Handle, settings EncodeSettings, output string) (EncodeResult, error)

	// Close releases the handle. Calling Close more than once is allowed.
	Close(h *Handle) error
}
