package compress

import (
	"context"
	"log/slog"
	"math"
	"math/bits"
)

// Estimate is the extrapolated outcome of compressing a whole file.
type Estimate struct {
	EstimatedSizeBytes  uint64 `json:"estimated_size_bytes"`
	EstimatedDurationMs uint64 `json:"estimated_duration_ms"`
	SampleSizeBytes     uint64 `json:"sample_size_bytes"`
	SampleDurationMs    uint64 `json:"sample_duration_ms"`
}

// Estimator predicts compressed sizes from a sample encode.
type Estimator struct {
	compressor *Compressor
}

// NewEstimator creates an Estimator that encodes samples with c.
func NewEstimator(c *Compressor) *Estimator {
	return &Estimator{compressor: c}
}

// Estimate encodes the leading window of path into tempOutputPath and extrapolates
// the size of a full encode with the same params. The window is
// params.SampleDurationMs, DefaultSampleDurationMs when unset, clamped to the
// source duration. Encode complexity is assumed uniform across the file.
//
// tempOutputPath is written directly and left in place; it never holds a complete encode.
func (e *Estimator) Estimate(ctx context.Context, path, tempOutputPath string, params Params) (Estimate, error) {
	c := e.compressor

	res, err := c.prepare(path, tempOutputPath, params)
	if err != nil {
		return Estimate{}, err
	}

	window := DefaultSampleDurationMs
	if params.SampleDurationMs != nil {
		window = *params.SampleDurationMs
	}

	out, err := c.encode(ctx, path, tempOutputPath, params, res, &window, nil)
	if err != nil {
		return Estimate{}, err
	}

	full := out.sourceMs
	sampleMs := min(out.durationMs, full)
	if sampleMs == 0 {
		sampleMs = min(window, full)
	}

	est := Estimate{
		EstimatedSizeBytes:  extrapolate(out.result.SizeBytes, full, sampleMs),
		EstimatedDurationMs: full,
		SampleSizeBytes:     out.result.SizeBytes,
		SampleDurationMs:    sampleMs,
	}

	c.logger.Info("compression estimated",
		slog.String("input", path),
		slog.Uint64("sample_ms", sampleMs),
		slog.Uint64("sample_bytes", est.SampleSizeBytes),
		slog.Uint64("estimated_bytes", est.EstimatedSizeBytes),
	)
	return est, nil
}

// extrapolate returns sampleBytes*fullMs/sampleMs, saturating on overflow.
func extrapolate(sampleBytes, fullMs, sampleMs uint64) uint64 {
	if sampleMs == 0 {
		return 0
	}
	hi, lo := bits.Mul64(sampleBytes, fullMs)
	if hi >= sampleMs {
		return math.MaxUint64
	}
	q, _ := bits.Div64(hi, lo, sampleMs)
	return q
}
