// Package engine exposes the media components as asynchronous jobs. Every
// request becomes one job on the runner and its outcome is delivered once,
// through the returned future.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"github.com/maauso/mediaforge/internal/compress"
	"github.com/maauso/mediaforge/internal/job"
	"github.com/maauso/mediaforge/internal/media"
	"github.com/maauso/mediaforge/internal/preset"
	"github.com/maauso/mediaforge/internal/probe"
	"github.com/maauso/mediaforge/internal/storage"
	"github.com/maauso/mediaforge/internal/thumbnail"
)

// ThumbnailResult is a thumbnail plus its published location.
type ThumbnailResult struct {
	thumbnail.Result
	URL string `json:"url,omitempty"`
}

// CompressResult is a compression plus its published location.
type CompressResult struct {
	compress.Result
	URL string `json:"url,omitempty"`
}

// Engine submits media work to a job runner.
type Engine struct {
	runner     *job.Runner
	catalog    *preset.Catalog
	prober     *probe.Prober
	extractor  *thumbnail.Extractor
	compressor *compress.Compressor
	estimator  *compress.Estimator
	store      storage.Storage
	logger     *slog.Logger
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the logger handed to every component.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// New wires the components over backend. store provides scratch files for
// estimates and publication of finished outputs.
func New(runner *job.Runner, backend media.Backend, catalog *preset.Catalog, store storage.Storage, opts ...Option) *Engine {
	e := &Engine{
		runner:  runner,
		catalog: catalog,
		store:   store,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}

	e.prober = probe.NewProber(backend, catalog, e.logger)
	e.extractor = thumbnail.NewExtractor(backend, catalog, e.logger)
	e.compressor = compress.NewCompressor(backend, catalog, e.logger)
	e.estimator = compress.NewEstimator(e.compressor)
	return e
}

// Runner returns the runner jobs are submitted to.
func (e *Engine) Runner() *job.Runner {
	return e.runner
}

// Catalog returns the preset catalog.
func (e *Engine) Catalog() *preset.Catalog {
	return e.catalog
}

// Probe submits a probe of path.
func (e *Engine) Probe(path string) (*job.Future[probe.VideoInfo], error) {
	return job.Submit(e.runner, job.Spec{Kind: job.KindProbe, Input: path},
		func(ctx context.Context, _ job.ProgressFunc) (probe.VideoInfo, error) {
			return e.prober.Probe(ctx, path)
		})
}

// ImageThumbnail submits a thumbnail of a still image. With publish set the
// written file is uploaded once the thumbnail succeeds; req.OutputPath is
// then required.
func (e *Engine) ImageThumbnail(path string, req thumbnail.Request, publish bool) (*job.Future[ThumbnailResult], error) {
	return e.thumbnail(job.KindImageThumbnail, path, req, publish, e.extractor.Image)
}

// VideoThumbnail submits a thumbnail of one video frame.
func (e *Engine) VideoThumbnail(path string, req thumbnail.Request, publish bool) (*job.Future[ThumbnailResult], error) {
	return e.thumbnail(job.KindVideoThumbnail, path, req, publish, e.extractor.Video)
}

type extractFunc func(ctx context.Context, path string, req thumbnail.Request) (thumbnail.Result, error)

func (e *Engine) thumbnail(kind job.Kind, path string, req thumbnail.Request, publish bool, extract extractFunc) (*job.Future[ThumbnailResult], error) {
	if publish && req.OutputPath == "" {
		return nil, media.Errorf(media.KindInvalidParams, string(kind), path, "publishing requires an output path")
	}
	spec := job.Spec{Kind: kind, Input: path, Output: req.OutputPath}
	return job.Submit(e.runner, spec, func(ctx context.Context, _ job.ProgressFunc) (ThumbnailResult, error) {
		res, err := extract(ctx, path, req)
		if err != nil {
			return ThumbnailResult{}, err
		}
		out := ThumbnailResult{Result: res}
		if publish {
			url, err := e.publish(ctx, kind, res.Path)
			if err != nil {
				return ThumbnailResult{}, err
			}
			out.URL = url
		}
		return out, nil
	})
}

// Timeline submits a timeline of req.Count thumbnails written to req.Sink.
func (e *Engine) Timeline(path string, req thumbnail.TimelineRequest) (*job.Future[thumbnail.TimelineResult], error) {
	spec := job.Spec{Kind: job.KindTimeline, Input: path, Output: req.Sink.Path}
	return job.Submit(e.runner, spec, func(ctx context.Context, progress job.ProgressFunc) (thumbnail.TimelineResult, error) {
		return e.extractor.Timeline(ctx, path, req, func(done, total int) {
			if total > 0 {
				progress(float64(done) * 100 / float64(total))
			}
		})
	})
}

// Compress submits a re-encode of path into outputPath.
func (e *Engine) Compress(path, outputPath string, params compress.Params, publish bool) (*job.Future[CompressResult], error) {
	spec := job.Spec{Kind: job.KindCompress, Input: path, Output: outputPath}
	return job.Submit(e.runner, spec, func(ctx context.Context, progress job.ProgressFunc) (CompressResult, error) {
		res, err := e.compressor.Compress(ctx, path, outputPath, params, compress.ProgressFunc(progress))
		if err != nil {
			return CompressResult{}, err
		}
		out := CompressResult{Result: res}
		if publish {
			url, err := e.publish(ctx, job.KindCompress, res.OutputPath)
			if err != nil {
				return CompressResult{}, err
			}
			out.URL = url
		}
		return out, nil
	})
}

// Estimate submits a size estimate for compressing path with params. The
// sample is encoded to a scratch file that is removed afterwards.
func (e *Engine) Estimate(path string, params compress.Params) (*job.Future[compress.Estimate], error) {
	spec := job.Spec{Kind: job.KindEstimate, Input: path}
	return job.Submit(e.runner, spec, func(ctx context.Context, _ job.ProgressFunc) (compress.Estimate, error) {
		temp, err := e.store.TempPath(ctx, sampleName(path))
		if err != nil {
			return compress.Estimate{}, media.NewError(media.KindIOError, "estimate", path, err)
		}
		defer func() {
			if err := e.store.CleanupTemp(context.Background(), []string{temp}); err != nil {
				e.logger.Warn("failed to remove estimate sample",
					slog.String("path", temp),
					slog.String("error", err.Error()),
				)
			}
		}()
		return e.estimator.Estimate(ctx, path, temp, params)
	})
}

func (e *Engine) publish(ctx context.Context, kind job.Kind, path string) (string, error) {
	key := objectKey(kind, path, time.Now())
	url, err := e.store.Publish(ctx, key, path)
	if err != nil {
		if errors.Is(err, storage.ErrS3NotConfigured) {
			return "", media.NewError(media.KindInvalidParams, "publish", path, err)
		}
		return "", media.NewError(media.KindIOError, "publish", path, err)
	}
	e.logger.Info("output published",
		slog.String("kind", string(kind)),
		slog.String("key", key),
		slog.String("url", url),
	)
	return url, nil
}

// objectKey is <kind>/<YYYY-MM-DD>/<file name>.
func objectKey(kind job.Kind, path string, at time.Time) string {
	return fmt.Sprintf("%s/%s/%s", kind, at.UTC().Format("2006-01-02"), filepath.Base(path))
}

// sampleName keeps the source stem in scratch names and always encodes to MP4.
func sampleName(path string) string {
	base := filepath.Base(path)
	stem := strings.TrimSuffix(base, filepath.Ext(base))
	if stem == "" || stem == "." || stem == string(filepath.Separator) {
		stem = "sample"
	}
	return stem + "_estimate.mp4"
}
