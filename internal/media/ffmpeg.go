package media

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/png"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/disintegration/imaging"
	_ "golang.org/x/image/webp" // WebP source images
)

// Compile-time check that FFmpegBackend implements Backend.
var _ Backend = (*FFmpegBackend)(nil)

// ErrNoFrame is returned when ffmpeg produced no frame for the requested position.
var ErrNoFrame = errors.New("no frame at requested position")

const (
	defaultVideoCodec = "libx264"
	defaultSpeed      = "veryfast"
	// interruptGrace is how long ffmpeg gets to finish its current chunk after SIGINT.
	interruptGrace = 5 * time.Second
)

// ImageDecoder decodes still images ahead of the built-in decoders.
type ImageDecoder interface {
	Decode(path string) (image.Image, error)
}

// FFmpegBackend implements Backend using the ffmpeg and ffprobe CLIs.
type FFmpegBackend struct {
	ffmpegPath   string
	ffprobePath  string
	imageDecoder ImageDecoder
	logger       *slog.Logger
}

// Option configures an FFmpegBackend.
type Option func(*FFmpegBackend)

// WithFFprobePath overrides the ffprobe binary.
func WithFFprobePath(path string) Option {
	return func(b *FFmpegBackend) {
		if path != "" {
			b.ffprobePath = path
		}
	}
}

// WithImageDecoder installs a decoder tried before imaging and ffmpeg.
func WithImageDecoder(d ImageDecoder) Option {
	return func(b *FFmpegBackend) {
		b.imageDecoder = d
	}
}

// WithLogger sets the logger used for subprocess diagnostics.
func WithLogger(logger *slog.Logger) Option {
	return func(b *FFmpegBackend) {
		if logger != nil {
			b.logger = logger
		}
	}
}

// NewFFmpegBackend creates a new FFmpegBackend.
// If ffmpegPath is empty, it defaults to "ffmpeg" (found via PATH). The ffprobe
// binary is looked up next to it unless WithFFprobePath is given.
func NewFFmpegBackend(ffmpegPath string, opts ...Option) *FFmpegBackend {
	if ffmpegPath == "" {
		ffmpegPath = "ffmpeg"
	}
	b := &FFmpegBackend{
		ffmpegPath:  ffmpegPath,
		ffprobePath: siblingProbe(ffmpegPath),
		logger:      slog.Default(),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// siblingProbe derives the ffprobe path from the ffmpeg path.
func siblingProbe(ffmpegPath string) string {
	dir, base := filepath.Split(ffmpegPath)
	probe := strings.Replace(base, "ffmpeg", "ffprobe", 1)
	if probe == base {
		probe = "ffprobe"
	}
	if dir == "" {
		return probe
	}
	return filepath.Join(dir, probe)
}

// Open checks that path is a readable regular file.
func (b *FFmpegBackend) Open(ctx context.Context, path string) (*Handle, error) {
	if err := ctx.Err(); err != nil {
		return nil, NewError(KindCancelled, "open", path, err)
	}
	st, err := os.Stat(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, NewError(KindNotFound, "open", path, err)
		}
		return nil, NewError(KindIOError, "open", path, err)
	}
	if st.IsDir() {
		return nil, Errorf(KindInvalidParams, "open", path, "path is a directory")
	}
	return &Handle{Path: path, SizeBytes: uint64(st.Size())}, nil // #nosec G115 - file sizes are non-negative
}

// Close marks the handle closed. The CLI backend holds no resources per handle.
func (b *FFmpegBackend) Close(h *Handle) error {
	if h != nil {
		h.closed.Store(true)
	}
	return nil
}

// ProbeStreams runs ffprobe and parses its JSON output.
func (b *FFmpegBackend) ProbeStreams(ctx context.Context, h *Handle) (StreamInfo, error) {
	if err := checkHandle("probe", h); err != nil {
		return StreamInfo{}, err
	}

	// #nosec G204 - ffprobePath is set by the application, not user input
	cmd := exec.CommandContext(ctx, b.ffprobePath,
		"-v", "error",
		"-print_format", "json",
		"-show_format",
		"-show_streams",
		h.Path,
	)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return StreamInfo{}, NewError(KindCancelled, "probe", h.Path, fmt.Errorf("ffprobe cancelled: %w", ctx.Err()))
		}
		ferr := &FFmpegError{Args: cmd.Args[1:], Stderr: stderr.String(), Err: err}
		if unrecognizedInput(ferr.Stderr) {
			return StreamInfo{}, NewError(KindUnsupportedFormat, "probe", h.Path, ferr)
		}
		return StreamInfo{}, NewError(KindCorrupt, "probe", h.Path, ferr)
	}

	info, err := parseProbeOutput(stdout.Bytes())
	if err != nil {
		var me *Error
		if errors.As(err, &me) {
			me.Path = h.Path
		}
		return StreamInfo{}, err
	}
	return info, nil
}

// DecodeFrame extracts one frame at atMs as PNG through a pipe and decodes it.
func (b *FFmpegBackend) DecodeFrame(ctx context.Context, h *Handle, atMs uint64) (image.Image, error) {
	if err := checkHandle("decode_frame", h); err != nil {
		return nil, err
	}

	args := []string{
		"-v", "error",
		"-ss", formatSeconds(atMs), // Input seeking, frame accurate when decoding
		"-i", h.Path,
		"-frames:v", "1",
		"-f", "image2pipe",
		"-vcodec", "png",
		"-",
	}
	out, err := b.runFFmpeg(ctx, args)
	if err != nil {
		if ctx.Err() != nil {
			return nil, NewError(KindCancelled, "decode_frame", h.Path, err)
		}
		return nil, NewError(KindDecodeFailed, "decode_frame", h.Path, err)
	}
	if len(out) == 0 {
		return nil, NewError(KindDecodeFailed, "decode_frame", h.Path, fmt.Errorf("%w: %d ms", ErrNoFrame, atMs))
	}

	img, err := png.Decode(bytes.NewReader(out))
	if err != nil {
		return nil, NewError(KindDecodeFailed, "decode_frame", h.Path, fmt.Errorf("decode frame png: %w", err))
	}
	return img, nil
}

// DecodeImage decodes a still image, trying the configured decoder, then imaging
// (with EXIF orientation), then ffmpeg for formats Go cannot read.
func (b *FFmpegBackend) DecodeImage(ctx context.Context, path string) (image.Image, error) {
	h, err := b.Open(ctx, path)
	if err != nil {
		return nil, err
	}
	defer func() { _ = b.Close(h) }()

	if b.imageDecoder != nil {
		img, err := b.imageDecoder.Decode(path)
		if err == nil {
			return img, nil
		}
		b.logger.Debug("image decoder failed, falling back",
			slog.String("path", path),
			slog.String("error", err.Error()),
		)
	}

	img, err := imaging.Open(path, imaging.AutoOrientation(true))
	if err == nil {
		return img, nil
	}
	imagingErr := err

	args := []string{
		"-v", "error",
		"-i", path,
		"-frames:v", "1",
		"-f", "image2pipe",
		"-vcodec", "png",
		"-",
	}
	out, err := b.runFFmpeg(ctx, args)
	if err != nil || len(out) == 0 {
		if ctx.Err() != nil {
			return nil, NewError(KindCancelled, "decode_image", path, ctx.Err())
		}
		if errors.Is(imagingErr, image.ErrFormat) {
			return nil, NewError(KindUnsupportedFormat, "decode_image", path, imagingErr)
		}
		return nil, NewError(KindDecodeFailed, "decode_image", path, imagingErr)
	}

	img, err = png.Decode(bytes.NewReader(out))
	if err != nil {
		return nil, NewError(KindDecodeFailed, "decode_image", path, fmt.Errorf("decode ffmpeg png: %w", err))
	}
	return img, nil
}

// Encode transcodes h into output with libx264/aac, reporting progress as ffmpeg writes it.
// On cancellation ffmpeg receives SIGINT so the current chunk is flushed; the output
// file is left in place as a partial artifact.
func (b *FFmpegBackend) Encode(ctx context.Context, h *Handle, s EncodeSettings, output string) (EncodeResult, error) {
	if err := checkHandle("encode", h); err != nil {
		return EncodeResult{}, err
	}
	if output == "" {
		return EncodeResult{}, Errorf(KindInvalidParams, "encode", h.Path, "output path is required")
	}

	args := BuildEncodeArgs(h.Path, output, s)

	// #nosec G204 - ffmpegPath is set by the application, not user input
	cmd := exec.CommandContext(ctx, b.ffmpegPath, args...)
	cmd.Cancel = func() error { return cmd.Process.Signal(os.Interrupt) }
	cmd.WaitDelay = interruptGrace

	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return EncodeResult{}, NewError(KindInternal, "encode", h.Path, fmt.Errorf("stdout pipe: %w", err))
	}

	b.logger.Debug("starting ffmpeg encode",
		slog.String("input", h.Path),
		slog.String("output", output),
		slog.String("args", strings.Join(args, " ")),
	)

	if err := cmd.Start(); err != nil {
		if ctx.Err() != nil {
			return EncodeResult{}, NewError(KindCancelled, "encode", h.Path, fmt.Errorf("ffmpeg cancelled: %w", ctx.Err()))
		}
		return EncodeResult{}, NewError(KindInternal, "encode", h.Path, fmt.Errorf("start ffmpeg: %w", err))
	}

	var (
		state progressState
		last  EncodeProgress
	)
	scanner := bufio.NewScanner(stdout)
	for scanner.Scan() {
		p, ok := state.update(scanner.Text())
		if !ok {
			continue
		}
		last = p
		if s.OnProgress != nil {
			s.OnProgress(p)
		}
	}
	// Drain anything left so ffmpeg never blocks on a full pipe.
	_, _ = io.Copy(io.Discard, stdout)

	if err := cmd.Wait(); err != nil {
		if ctx.Err() != nil {
			return EncodeResult{}, NewError(KindCancelled, "encode", h.Path, fmt.Errorf("ffmpeg cancelled: %w", ctx.Err()))
		}
		ferr := &FFmpegError{Args: args, Stderr: stderr.String(), Err: err}
		return EncodeResult{}, NewError(classifyEncodeFailure(ferr.Stderr), "encode", h.Path, ferr)
	}

	st, err := os.Stat(output)
	if err != nil {
		return EncodeResult{}, NewError(KindIOError, "encode", output, fmt.Errorf("stat output: %w", err))
	}

	return EncodeResult{
		SizeBytes:       uint64(st.Size()), // #nosec G115 - file sizes are non-negative
		MediaDurationMs: last.OutTimeMs,
	}, nil
}

// BuildEncodeArgs returns the ffmpeg arguments for an encode of input into output.
func BuildEncodeArgs(input, output string, s EncodeSettings) []string {
	codec := s.VideoCodec
	if codec == "" {
		codec = defaultVideoCodec
	}
	speed := s.Speed
	if speed == "" {
		speed = defaultSpeed
	}

	args := []string{
		"-y",       // Overwrite output file
		"-nostdin", // Never wait on the terminal
		"-i", input,
	}
	if s.LimitMs > 0 {
		args = append(args, "-t", formatSeconds(s.LimitMs))
	}

	args = append(args,
		"-c:v", codec,
		"-preset", speed,
	)
	switch {
	case s.CRF != nil:
		args = append(args, "-crf", strconv.Itoa(int(*s.CRF)))
		if s.BitrateKbps > 0 {
			args = append(args,
				"-maxrate", fmt.Sprintf("%dk", s.BitrateKbps),
				"-bufsize", fmt.Sprintf("%dk", 2*s.BitrateKbps),
			)
		}
	case s.BitrateKbps > 0:
		args = append(args, "-b:v", fmt.Sprintf("%dk", s.BitrateKbps))
	}

	if filter := scaleFilter(s.Width, s.Height); filter != "" {
		args = append(args, "-vf", filter)
	}

	args = append(args,
		"-pix_fmt", "yuv420p", // Broad player compatibility
		"-c:a", "aac",
		"-b:a", "128k",
		"-movflags", "+faststart",
		"-progress", "pipe:1",
		"-nostats",
		output,
	)
	return args
}

// scaleFilter builds the scale filter; -2 keeps the aspect ratio with an even size.
func scaleFilter(w, h uint32) string {
	switch {
	case w == 0 && h == 0:
		return ""
	case w == 0:
		return fmt.Sprintf("scale=-2:%d", h)
	case h == 0:
		return fmt.Sprintf("scale=%d:-2", w)
	default:
		return fmt.Sprintf("scale=%d:%d", w, h)
	}
}

// formatSeconds renders milliseconds as an ffmpeg duration ("12.345").
func formatSeconds(ms uint64) string {
	return fmt.Sprintf("%d.%03d", ms/1000, ms%1000)
}

// runFFmpeg executes ffmpeg and returns stdout. Failures carry stderr in an *FFmpegError.
func (b *FFmpegBackend) runFFmpeg(ctx context.Context, args []string) ([]byte, error) {
	// #nosec G204 - ffmpegPath is set by the application, not user input
	cmd := exec.CommandContext(ctx, b.ffmpegPath, args...)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return nil, fmt.Errorf("ffmpeg cancelled: %w", ctx.Err())
		}
		return nil, &FFmpegError{
			Args:   args,
			Stderr: stderr.String(),
			Err:    err,
		}
	}

	return stdout.Bytes(), nil
}

func checkHandle(op string, h *Handle) error {
	if h == nil {
		return Errorf(KindInvalidParams, op, "", "nil handle")
	}
	if h.Closed() {
		return Errorf(KindInvalidParams, op, h.Path, "handle is closed")
	}
	return nil
}

func unrecognizedInput(stderr string) bool {
	s := strings.ToLower(stderr)
	return strings.Contains(s, "invalid data found") ||
		strings.Contains(s, "could not find codec parameters") ||
		strings.Contains(s, "unknown format")
}

func classifyEncodeFailure(stderr string) Kind {
	s := strings.ToLower(stderr)
	switch {
	case unrecognizedInput(stderr),
		strings.Contains(s, "unknown encoder"),
		strings.Contains(s, "decoder not found"):
		return KindUnsupportedFormat
	case strings.Contains(s, "invalid argument"):
		return KindInvalidParams
	default:
		return KindIOError
	}
}

// FFmpegError represents an error from running ffmpeg, including the stderr output.
type FFmpegError struct {
	Args   []string
	Stderr string
	Err    error
}

func (e *FFmpegError) Error() string {
	return fmt.Sprintf("ffmpeg error: %v\nargs: %v\nstderr: %s", e.Err, e.Args, e.Stderr)
}

func (e *FFmpegError) Unwrap() error {
	return e.Err
}
