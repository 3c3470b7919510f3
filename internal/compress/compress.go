package compress

import (
	"context"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/maauso/mediaforge/internal/media"
	"github.com/maauso/mediaforge/internal/preset"
	"github.com/maauso/mediaforge/internal/storage"
)

// ProgressFunc receives the completed percentage of an encode, 0 to 100.
type ProgressFunc func(percent float64)

// Result describes a finished compression.
type Result struct {
	OutputPath string `json:"output_path"`
	SizeBytes  uint64 `json:"size_bytes"`
	DurationMs uint64 `json:"duration_ms"`
	// Truncated is set when only a leading sample was encoded. Such an output is a
	// partial artifact and not a compressed copy of the source.
	Truncated bool `json:"truncated"`
}

// Compressor re-encodes videos through a media backend.
type Compressor struct {
	backend   media.Backend
	catalog   *preset.Catalog
	validator *validator.Validate
	logger    *slog.Logger
}

// NewCompressor creates a new Compressor.
func NewCompressor(backend media.Backend, catalog *preset.Catalog, logger *slog.Logger) *Compressor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Compressor{
		backend:   backend,
		catalog:   catalog,
		validator: validator.New(),
		logger:    logger,
	}
}

// Compress encodes path into outputPath. The encode is written to a hidden partial
// sibling of outputPath and renamed into place once complete, so outputPath only
// ever holds a finished encode. On failure the partial file is left in place.
func (c *Compressor) Compress(ctx context.Context, path, outputPath string, params Params, progress ProgressFunc) (Result, error) {
	start := time.Now()

	res, err := c.prepare(path, outputPath, params)
	if err != nil {
		return Result{}, err
	}

	partial := storage.PartialPath(outputPath, uuid.NewString()[:8])
	enc, err := c.encode(ctx, path, partial, params, res, params.SampleDurationMs, progress)
	if err != nil {
		return Result{}, err
	}

	if err := storage.Commit(partial, outputPath); err != nil {
		return Result{}, media.NewError(media.KindIOError, "compress", outputPath, err)
	}

	c.logger.Info("compression finished",
		slog.String("input", path),
		slog.String("output", outputPath),
		slog.Uint64("size_bytes", enc.result.SizeBytes),
		slog.Duration("elapsed", time.Since(start)),
	)

	return Result{
		OutputPath: outputPath,
		SizeBytes:  enc.result.SizeBytes,
		DurationMs: enc.durationMs,
		Truncated:  params.SampleDurationMs != nil,
	}, nil
}

// prepare validates params against the paths and resolves the named preset.
func (c *Compressor) prepare(path, outputPath string, params Params) (*preset.Resolution, error) {
	if err := c.validator.Struct(params); err != nil {
		return nil, media.NewError(media.KindInvalidParams, "compress", path, err)
	}
	if outputPath == "" {
		return nil, media.Errorf(media.KindInvalidParams, "compress", path, "output path is required")
	}
	if samePath(path, outputPath) {
		return nil, media.Errorf(media.KindInvalidParams, "compress", path, "output path must differ from the input")
	}
	// yuv420p halves chroma in both directions, so libx264 rejects odd sizes.
	// A single given side keeps the other at -2, which is always even.
	if odd(params.Width) || odd(params.Height) {
		return nil, media.Errorf(media.KindInvalidParams, "compress", path, "width and height must be even")
	}
	if params.Preset == nil {
		return nil, nil
	}
	res, err := c.catalog.Resolution(*params.Preset)
	if err != nil {
		return nil, media.NewError(media.KindInvalidParams, "compress", path, err)
	}
	return &res, nil
}

func odd(v *uint32) bool {
	return v != nil && *v%2 == 1
}

type encodeOutcome struct {
	result     media.EncodeResult
	durationMs uint64
	sourceMs   uint64
}

// encode opens path and encodes it into output, truncated to limitMs when set.
func (c *Compressor) encode(ctx context.Context, path, output string, params Params, res *preset.Resolution, limitMs *uint64, progress ProgressFunc) (encodeOutcome, error) {
	h, err := c.backend.Open(ctx, path)
	if err != nil {
		return encodeOutcome{}, media.Classify("compress", path, err)
	}
	defer func() { _ = c.backend.Close(h) }()

	streams, err := c.backend.ProbeStreams(ctx, h)
	if err != nil {
		return encodeOutcome{}, media.Classify("compress", path, err)
	}

	settings := media.EncodeSettings{Speed: params.EncoderSpeed}
	ResolveRateControl(params, res).apply(&settings)
	settings.Width, settings.Height = ResolveDimensions(params, res, streams.Width, streams.Height)

	expected := streams.DurationMs
	if limitMs != nil {
		settings.LimitMs = *limitMs
		expected = min(expected, *limitMs)
	}
	if progress != nil {
		settings.OnProgress = func(p media.EncodeProgress) {
			progress(percent(p, expected))
		}
	}

	c.logger.Debug("starting encode",
		slog.String("input", path),
		slog.String("output", output),
		slog.Uint64("limit_ms", settings.LimitMs),
		slog.Int("width", int(settings.Width)),
		slog.Int("height", int(settings.Height)),
	)

	result, err := c.backend.Encode(ctx, h, settings, output)
	if err != nil {
		return encodeOutcome{}, media.Classify("compress", path, err)
	}

	duration := result.MediaDurationMs
	if duration == 0 {
		duration = expected
	}
	return encodeOutcome{result: result, durationMs: duration, sourceMs: streams.DurationMs}, nil
}

func percent(p media.EncodeProgress, expectedMs uint64) float64 {
	if p.Done {
		return 100
	}
	if expectedMs == 0 {
		return 0
	}
	return min(float64(p.OutTimeMs)/float64(expectedMs)*100, 99.9)
}

func samePath(a, b string) bool {
	absA, errA := filepath.Abs(a)
	absB, errB := filepath.Abs(b)
	if errA != nil || errB != nil {
		return filepath.Clean(a) == filepath.Clean(b)
	}
	return absA == absB
}
