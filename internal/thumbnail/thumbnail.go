// Package thumbnail extracts still thumbnails from images and video frames,
// singly or as an evenly spaced timeline written to a rotating file sink.
package thumbnail

import (
	"context"
	"errors"
	"fmt"
	"image"
	"log/slog"
	"math/bits"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/maauso/mediaforge/internal/media"
	"github.com/maauso/mediaforge/internal/preset"
	"github.com/maauso/mediaforge/internal/storage"
)

// minIndexWidth is the minimum zero padding of timeline file indices.
const minIndexWidth = 3

// Request describes a single thumbnail.
type Request struct {
	// TimeMs is the video position; nil means the first frame. Ignored for images.
	TimeMs *uint64
	// Size defaults to the "medium" preset when nil.
	Size Size
	// Format defaults to PNG.
	Format Format
	// EmptyImageFallback substitutes a transparent image when decoding fails.
	EmptyImageFallback bool
	// OutputPath optionally writes the encoded image to disk. An existing directory
	// receives thumbnail_<stem>_<time_ms>.<ext>.
	OutputPath string
}

// Result is an encoded thumbnail.
type Result struct {
	Data     []byte `json:"-"`
	Width    int    `json:"width"`
	Height   int    `json:"height"`
	Format   Format `json:"format"`
	TimeMs   uint64 `json:"time_ms"`
	Path     string `json:"path,omitempty"`
	Fallback bool   `json:"fallback"`
}

// TimelineRequest describes count evenly spaced thumbnails written to Sink.
type TimelineRequest struct {
	Count              uint32 `validate:"gt=0"`
	Size               Size
	Format             Format
	EmptyImageFallback bool
	Sink               storage.WriteToFiles
}

// Frame is one written timeline thumbnail. Evicted is set when sink rotation
// removed the file while later frames were written.
type Frame struct {
	Index    int    `json:"index"`
	TimeMs   uint64 `json:"time_ms"`
	Path     string `json:"path"`
	Fallback bool   `json:"fallback"`
	Evicted  bool   `json:"evicted,omitempty"`
}

// TimelineResult lists the written frames in index order.
type TimelineResult struct {
	Width  int     `json:"width"`
	Height int     `json:"height"`
	Frames []Frame `json:"frames"`
}

// ProgressFunc receives the number of finished frames out of total.
type ProgressFunc func(done, total int)

// Extractor produces thumbnails through a media backend.
type Extractor struct {
	backend   media.Backend
	catalog   *preset.Catalog
	validator *validator.Validate
	logger    *slog.Logger
}

// NewExtractor creates a new Extractor.
func NewExtractor(backend media.Backend, catalog *preset.Catalog, logger *slog.Logger) *Extractor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Extractor{
		backend:   backend,
		catalog:   catalog,
		validator: validator.New(),
		logger:    logger,
	}
}

// Image creates a thumbnail of the still image at path.
func (e *Extractor) Image(ctx context.Context, path string, req Request) (Result, error) {
	format, err := ParseFormat(string(req.Format))
	if err != nil {
		return Result{}, err
	}

	var (
		img      image.Image
		fallback bool
		t        target
	)

	src, decodeErr := e.backend.DecodeImage(ctx, path)
	switch {
	case decodeErr == nil:
		b := src.Bounds()
		if t, err = resolveTarget(e.catalog, req.Size, b.Dx(), b.Dy()); err != nil {
			return Result{}, err
		}
		img = render(src, t)
	case canFallBack(decodeErr) && req.EmptyImageFallback:
		if t, err = resolveTarget(e.catalog, req.Size, 0, 0); err != nil {
			return Result{}, err
		}
		e.logger.Warn("image decode failed, using empty thumbnail",
			slog.String("path", path),
			slog.String("error", decodeErr.Error()),
		)
		img, fallback = blank(t), true
	default:
		return Result{}, media.Classify("image_thumbnail", path, decodeErr)
	}

	return e.finish(path, img, format, 0, fallback, req.OutputPath)
}

// Video creates a thumbnail of the frame at req.TimeMs.
func (e *Extractor) Video(ctx context.Context, path string, req Request) (Result, error) {
	format, err := ParseFormat(string(req.Format))
	if err != nil {
		return Result{}, err
	}

	h, streams, err := e.open(ctx, path)
	if err != nil {
		return Result{}, err
	}
	defer func() { _ = e.backend.Close(h) }()

	t, err := resolveTarget(e.catalog, req.Size, int(streams.Width), int(streams.Height))
	if err != nil {
		return Result{}, err
	}

	var at uint64
	if req.TimeMs != nil {
		at = *req.TimeMs
	}

	img, fallback, err := e.frame(ctx, h, at, streams.DurationMs, t, req.EmptyImageFallback)
	if err != nil {
		return Result{}, err
	}

	return e.finish(path, img, format, at, fallback, req.OutputPath)
}

// Timeline writes req.Count thumbnails at positions floor(i*D/N) into req.Sink.
// Frames are produced in index order. Without fallback the first failure aborts and
// files already written are kept.
func (e *Extractor) Timeline(ctx context.Context, path string, req TimelineRequest, progress ProgressFunc) (TimelineResult, error) {
	if err := e.validator.Struct(req); err != nil {
		return TimelineResult{}, media.NewError(media.KindInvalidParams, "timeline", path, err)
	}
	format, err := ParseFormat(string(req.Format))
	if err != nil {
		return TimelineResult{}, err
	}
	if err := req.Sink.Validate(); err != nil {
		kind := media.KindIOError
		if errors.Is(err, storage.ErrInvalidSink) {
			kind = media.KindInvalidParams
		}
		return TimelineResult{}, media.NewError(kind, "timeline", req.Sink.Path, err)
	}

	sink := req.Sink
	if sink.FileSuffix == "" {
		sink.FileSuffix = "." + format.Extension()
	}

	h, streams, err := e.open(ctx, path)
	if err != nil {
		return TimelineResult{}, err
	}
	defer func() { _ = e.backend.Close(h) }()

	t, err := resolveTarget(e.catalog, req.Size, int(streams.Width), int(streams.Height))
	if err != nil {
		return TimelineResult{}, err
	}

	n := int(req.Count)
	width := max(minIndexWidth, len(strconv.Itoa(n-1)))
	result := TimelineResult{Width: t.width, Height: t.height, Frames: make([]Frame, 0, n)}

	for i := 0; i < n; i++ {
		if err := ctx.Err(); err != nil {
			return TimelineResult{}, media.NewError(media.KindCancelled, "timeline", path, err)
		}

		at := Position(i, n, streams.DurationMs)
		img, fallback, err := e.frame(ctx, h, at, streams.DurationMs, t, req.EmptyImageFallback)
		if err != nil {
			return TimelineResult{}, err
		}

		data, err := encode(img, format)
		if err != nil {
			return TimelineResult{}, err
		}

		out := sink.FilePath(fmt.Sprintf("%0*d", width, i))
		evicted, err := sink.MakeRoom(out)
		if err != nil {
			return TimelineResult{}, media.NewError(media.KindIOError, "timeline", out, err)
		}
		if len(evicted) > 0 {
			markEvicted(result.Frames, evicted)
			e.logger.Debug("evicted timeline files", slog.Any("paths", evicted))
		}
		if err := storage.WriteFileAtomic(out, data); err != nil {
			return TimelineResult{}, media.NewError(media.KindIOError, "timeline", out, err)
		}

		result.Frames = append(result.Frames, Frame{Index: i, TimeMs: at, Path: out, Fallback: fallback})
		if progress != nil {
			progress(i+1, n)
		}
	}

	e.logger.Info("timeline written",
		slog.String("path", path),
		slog.Int("frames", n),
		slog.String("size", t.String()),
		slog.String("dir", sink.Path),
	)

	return result, nil
}

func markEvicted(frames []Frame, paths []string) {
	for i := range frames {
		if slices.Contains(paths, frames[i].Path) {
			frames[i].Evicted = true
		}
	}
}

// Position returns floor(i*durationMs/n) without intermediate overflow. It requires 0 <= i < n.
func Position(i, n int, durationMs uint64) uint64 {
	hi, lo := bits.Mul64(uint64(i), durationMs) // #nosec G115 - i is non-negative
	q, _ := bits.Div64(hi, lo, uint64(n))       // #nosec G115 - n is positive
	return q
}

func (e *Extractor) open(ctx context.Context, path string) (*media.Handle, media.StreamInfo, error) {
	h, err := e.backend.Open(ctx, path)
	if err != nil {
		return nil, media.StreamInfo{}, media.Classify("thumbnail", path, err)
	}
	streams, err := e.backend.ProbeStreams(ctx, h)
	if err != nil {
		_ = e.backend.Close(h)
		return nil, media.StreamInfo{}, media.Classify("thumbnail", path, err)
	}
	return h, streams, nil
}

// frame decodes and resizes the frame at at, substituting a blank raster on
// failure when fallback is set. Cancellation is never masked.
func (e *Extractor) frame(ctx context.Context, h *media.Handle, at, durationMs uint64, t target, fallback bool) (image.Image, bool, error) {
	var (
		img image.Image
		err error
	)
	if durationMs > 0 && at >= durationMs {
		err = media.Errorf(media.KindDecodeFailed, "thumbnail", h.Path, "position %d ms is past the end (%d ms)", at, durationMs)
	} else {
		img, err = e.backend.DecodeFrame(ctx, h, at)
	}
	if err == nil {
		return render(img, t), false, nil
	}

	if !canFallBack(err) || !fallback {
		return nil, false, media.Classify("thumbnail", h.Path, err)
	}

	e.logger.Warn("frame decode failed, using empty thumbnail",
		slog.String("path", h.Path),
		slog.Uint64("time_ms", at),
		slog.String("error", err.Error()),
	)
	return blank(t), true, nil
}

// canFallBack reports whether err is a decoding problem an empty image may replace.
func canFallBack(err error) bool {
	switch media.KindOf(err) {
	case media.KindDecodeFailed, media.KindUnsupportedFormat, media.KindCorrupt:
		return true
	default:
		return false
	}
}

func (e *Extractor) finish(src string, img image.Image, format Format, at uint64, fallback bool, outputPath string) (Result, error) {
	data, err := encode(img, format)
	if err != nil {
		return Result{}, err
	}

	res := Result{
		Data:     data,
		Width:    img.Bounds().Dx(),
		Height:   img.Bounds().Dy(),
		Format:   format,
		TimeMs:   at,
		Fallback: fallback,
	}

	if outputPath != "" {
		out := outputFile(outputPath, src, at, format)
		if err := storage.WriteFileAtomic(out, data); err != nil {
			return Result{}, media.NewError(media.KindIOError, "thumbnail", out, err)
		}
		res.Path = out
	}
	return res, nil
}

// outputFile resolves the destination; a directory receives thumbnail_<stem>_<time>.<ext>.
func outputFile(outputPath, src string, at uint64, format Format) string {
	st, err := os.Stat(outputPath)
	if err != nil || !st.IsDir() {
		return outputPath
	}
	stem := strings.TrimSuffix(filepath.Base(src), filepath.Ext(src))
	return filepath.Join(outputPath, fmt.Sprintf("thumbnail_%s_%d.%s", stem, at, format.Extension()))
}
