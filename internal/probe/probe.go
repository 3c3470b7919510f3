// Package probe reads video metadata and derives encode suggestions from it.
package probe

import (
	"context"
	"log/slog"
	"time"

	"github.com/maauso/mediaforge/internal/media"
	"github.com/maauso/mediaforge/internal/preset"
)

// VideoInfo is an immutable snapshot of a probed video.
type VideoInfo struct {
	DurationMs uint64 `json:"duration_ms"`
	Width      uint32 `json:"width"`
	Height     uint32 `json:"height"`
	SizeBytes  uint64 `json:"size_bytes"`
	// Bitrate is only set when the file states one.
	Bitrate     *uint64             `json:"bitrate,omitempty"`
	CodecName   string              `json:"codec_name,omitempty"`
	FormatName  string              `json:"format_name,omitempty"`
	Suggestions []preset.Resolution `json:"suggestions"`
}

// Prober probes video files through a media backend.
type Prober struct {
	backend media.Backend
	catalog *preset.Catalog
	logger  *slog.Logger
}

// NewProber creates a new Prober.
func NewProber(backend media.Backend, catalog *preset.Catalog, logger *slog.Logger) *Prober {
	if logger == nil {
		logger = slog.Default()
	}
	return &Prober{
		backend: backend,
		catalog: catalog,
		logger:  logger,
	}
}

// Probe returns the metadata of the video at path. It never modifies the file.
func (p *Prober) Probe(ctx context.Context, path string) (VideoInfo, error) {
	start := time.Now()

	h, err := p.backend.Open(ctx, path)
	if err != nil {
		return VideoInfo{}, media.Classify("probe", path, err)
	}
	defer func() { _ = p.backend.Close(h) }()

	streams, err := p.backend.ProbeStreams(ctx, h)
	if err != nil {
		return VideoInfo{}, media.Classify("probe", path, err)
	}

	info := VideoInfo{
		DurationMs:  streams.DurationMs,
		Width:       streams.Width,
		Height:      streams.Height,
		SizeBytes:   h.SizeBytes,
		Bitrate:     streams.Bitrate,
		CodecName:   streams.CodecName,
		FormatName:  streams.FormatName,
		Suggestions: p.catalog.Suggest(streams.Width, streams.Height),
	}

	p.logger.Debug("probed video",
		slog.String("path", path),
		slog.Uint64("duration_ms", info.DurationMs),
		slog.Int("width", int(info.Width)),
		slog.Int("height", int(info.Height)),
		slog.Int("suggestions", len(info.Suggestions)),
		slog.Duration("elapsed", time.Since(start)),
	)

	return info, nil
}
