package server

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/maauso/mediaforge/internal/compress"
	"github.com/maauso/mediaforge/internal/diag"
	"github.com/maauso/mediaforge/internal/engine"
	"github.com/maauso/mediaforge/internal/job"
	"github.com/maauso/mediaforge/internal/media"
	"github.com/maauso/mediaforge/internal/storage"
	"github.com/maauso/mediaforge/internal/thumbnail"
)

// errBadOptions marks request combinations the validator cannot express.
var errBadOptions = errors.New("invalid job options")

// Handlers contains the HTTP handlers for the API.
type Handlers struct {
	engine    *engine.Engine
	sink      *diag.Sink
	validator *validator.Validate
	logger    *slog.Logger
}

// HandlerOption is a function that configures a Handlers instance.
type HandlerOption func(*Handlers)

// WithDiagnostics exposes reconfiguration of sink under /diagnostics.
func WithDiagnostics(sink *diag.Sink) HandlerOption {
	return func(h *Handlers) {
		h.sink = sink
	}
}

// NewHandlers creates a new Handlers instance.
func NewHandlers(eng *engine.Engine, logger *slog.Logger, opts ...HandlerOption) *Handlers {
	if logger == nil {
		logger = slog.Default()
	}
	h := &Handlers{
		engine:    eng,
		validator: validator.New(),
		logger:    logger,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Health handles GET /health requests.
func (h *Handlers) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, HealthResponse{Status: "ok", Workers: h.engine.Runner().Workers()})
}

// Presets handles GET /presets requests.
func (h *Handlers) Presets(w http.ResponseWriter, r *http.Request) {
	catalog := h.engine.Catalog()
	writeJSON(w, http.StatusOK, PresetsResponse{
		Resolutions:    catalog.Resolutions(),
		ThumbnailSizes: catalog.ThumbnailSizes(),
	})
}

// CreateJob handles POST /jobs requests.
func (h *Handlers) CreateJob(w http.ResponseWriter, r *http.Request) {
	var req CreateJobRequest
	if !h.decode(w, r, &req) {
		return
	}

	id, err := h.submit(req)
	if err != nil {
		h.writeSubmitError(w, req, err)
		return
	}

	h.logger.Info("job created",
		slog.String("job_id", id),
		slog.String("kind", req.Kind),
		slog.String("input", req.Input),
	)

	writeJSON(w, http.StatusAccepted, CreateJobResponse{
		ID:     id,
		Status: string(job.StatusInQueue),
	})
}

// submit starts the job; the returned future is not needed since the record
// is polled through GET /jobs/{id}.
func (h *Handlers) submit(req CreateJobRequest) (string, error) {
	e := h.engine
	switch job.Kind(req.Kind) {
	case job.KindProbe:
		return futureID(e.Probe(req.Input))
	case job.KindImageThumbnail, job.KindVideoThumbnail:
		// Job records keep only metadata, so the encoded image must land on disk.
		if req.Output == "" {
			return "", errors.Join(errBadOptions, errors.New("output is required for thumbnails"))
		}
		treq, err := thumbnailRequest(req.Thumbnail)
		if err != nil {
			return "", err
		}
		treq.OutputPath = req.Output
		if job.Kind(req.Kind) == job.KindImageThumbnail {
			return futureID(e.ImageThumbnail(req.Input, treq, req.PushToS3))
		}
		return futureID(e.VideoThumbnail(req.Input, treq, req.PushToS3))
	case job.KindTimeline:
		treq, err := timelineRequest(req)
		if err != nil {
			return "", err
		}
		return futureID(e.Timeline(req.Input, treq))
	case job.KindCompress:
		if req.Output == "" {
			return "", errors.Join(errBadOptions, errors.New("output is required for compress"))
		}
		return futureID(e.Compress(req.Input, req.Output, compressParams(req.Compress), req.PushToS3))
	case job.KindEstimate:
		return futureID(e.Estimate(req.Input, compressParams(req.Compress)))
	default:
		return "", errors.Join(errBadOptions, errors.New("unknown kind"))
	}
}

type identified interface{ ID() string }

func futureID(f identified, err error) (string, error) {
	if err != nil {
		return "", err
	}
	return f.ID(), nil
}

func thumbnailRequest(opts *ThumbnailOptions) (thumbnail.Request, error) {
	var req thumbnail.Request
	if opts == nil {
		return req, nil
	}
	size, err := thumbnailSize(*opts)
	if err != nil {
		return req, err
	}
	req.TimeMs = opts.TimeMs
	req.Size = size
	req.Format = thumbnail.Format(opts.Format)
	req.EmptyImageFallback = opts.EmptyImageFallback
	return req, nil
}

func thumbnailSize(opts ThumbnailOptions) (thumbnail.Size, error) {
	custom := opts.Width > 0 || opts.Height > 0
	switch {
	case opts.SizePreset != "" && custom:
		return nil, errors.Join(errBadOptions, errors.New("size_preset and width/height are exclusive"))
	case opts.SizePreset != "":
		return thumbnail.PresetSize{Name: opts.SizePreset}, nil
	case custom:
		return thumbnail.CustomSize{Width: opts.Width, Height: opts.Height}, nil
	default:
		return nil, nil
	}
}

func timelineRequest(req CreateJobRequest) (thumbnail.TimelineRequest, error) {
	if req.Output == "" {
		return thumbnail.TimelineRequest{}, errors.Join(errBadOptions, errors.New("output directory is required for timeline"))
	}
	if req.Timeline == nil {
		return thumbnail.TimelineRequest{}, errors.Join(errBadOptions, errors.New("timeline options are required"))
	}
	opts := req.Timeline
	single, err := thumbnailRequest(&opts.ThumbnailOptions)
	if err != nil {
		return thumbnail.TimelineRequest{}, err
	}
	return thumbnail.TimelineRequest{
		Count:              opts.Count,
		Size:               single.Size,
		Format:             single.Format,
		EmptyImageFallback: single.EmptyImageFallback,
		Sink: storage.WriteToFiles{
			Path:       req.Output,
			FilePrefix: opts.FilePrefix,
			FileSuffix: opts.FileSuffix,
			MaxFiles:   opts.MaxFiles,
		},
	}, nil
}

func compressParams(opts *CompressOptions) compress.Params {
	if opts == nil {
		return compress.Params{}
	}
	return compress.Params{
		TargetBitrateKbps: opts.TargetBitrateKbps,
		Preset:            opts.Preset,
		CRF:               opts.CRF,
		Width:             opts.Width,
		Height:            opts.Height,
		SampleDurationMs:  opts.SampleDurationMs,
		EncoderSpeed:      opts.EncoderSpeed,
	}
}

func (h *Handlers) writeSubmitError(w http.ResponseWriter, req CreateJobRequest, err error) {
	switch {
	case errors.Is(err, errBadOptions), errors.Is(err, media.ErrInvalidParams):
		h.logger.Warn("job rejected",
			slog.String("kind", req.Kind),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusBadRequest, err.Error(), "VALIDATION_ERROR")
	case errors.Is(err, job.ErrQueueFull):
		writeError(w, http.StatusServiceUnavailable, "job queue is full", "QUEUE_FULL")
	case errors.Is(err, job.ErrRunnerClosed):
		writeError(w, http.StatusServiceUnavailable, "server is shutting down", "SHUTTING_DOWN")
	default:
		h.logger.Error("failed to create job",
			slog.String("kind", req.Kind),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to create job", "JOB_CREATION_FAILED")
	}
}

// ListJobs handles GET /jobs requests.
func (h *Handlers) ListJobs(w http.ResponseWriter, r *http.Request) {
	jobs, err := h.engine.Runner().List(r.Context())
	if err != nil {
		h.logger.Error("failed to list jobs", slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "failed to list jobs", "JOB_FETCH_FAILED")
		return
	}

	resp := JobListResponse{Jobs: make([]JobResponse, 0, len(jobs))}
	for _, j := range jobs {
		resp.Jobs = append(resp.Jobs, toJobResponse(j))
	}
	writeJSON(w, http.StatusOK, resp)
}

// GetJob handles GET /jobs/{id} requests.
func (h *Handlers) GetJob(w http.ResponseWriter, r *http.Request) {
	jobID := r.PathValue("id")
	if jobID == "" {
		writeError(w, http.StatusBadRequest, "job ID is required", "MISSING_JOB_ID")
		return
	}

	foundJob, err := h.engine.Runner().Get(r.Context(), jobID)
	if err != nil {
		if errors.Is(err, job.ErrJobNotFound) {
			writeError(w, http.StatusNotFound, "job not found", "JOB_NOT_FOUND")
			return
		}
		h.logger.Error("failed to get job",
			slog.String("job_id", jobID),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to get job", "JOB_FETCH_FAILED")
		return
	}

	writeJSON(w, http.StatusOK, toJobResponse(foundJob))
}

// CancelJob handles DELETE /jobs/{id} requests.
func (h *Handlers) CancelJob(w http.ResponseWriter, r *http.Request) {
	jobID := r.PathValue("id")

	err := h.engine.Runner().Cancel(r.Context(), jobID)
	switch {
	case err == nil:
	case errors.Is(err, job.ErrJobNotFound):
		writeError(w, http.StatusNotFound, "job not found", "JOB_NOT_FOUND")
		return
	case errors.Is(err, job.ErrJobFinished):
		writeError(w, http.StatusConflict, "job already finished", "JOB_FINISHED")
		return
	default:
		h.logger.Error("failed to cancel job",
			slog.String("job_id", jobID),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to cancel job", "JOB_CANCEL_FAILED")
		return
	}

	h.logger.Info("job cancellation requested", slog.String("job_id", jobID))
	foundJob, err := h.engine.Runner().Get(r.Context(), jobID)
	if err != nil {
		writeJSON(w, http.StatusAccepted, CreateJobResponse{ID: jobID, Status: string(job.StatusCancelled)})
		return
	}
	writeJSON(w, http.StatusAccepted, toJobResponse(foundJob))
}

func toJobResponse(j *job.Job) JobResponse {
	c := j.Clone()
	return JobResponse{
		ID:          c.ID,
		Kind:        string(c.Kind),
		Status:      string(c.Status),
		Input:       c.Input,
		Output:      c.Output,
		Progress:    c.Progress,
		ErrorKind:   c.ErrorKind,
		Error:       c.Error,
		Result:      c.Result,
		CreatedAt:   c.CreatedAt,
		StartedAt:   optionalTime(c.StartedAt),
		CompletedAt: optionalTime(c.CompletedAt),
	}
}

func optionalTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}

// GetDiagnostics handles GET /diagnostics requests.
func (h *Handlers) GetDiagnostics(w http.ResponseWriter, r *http.Request) {
	if !h.requireSink(w) {
		return
	}
	writeJSON(w, http.StatusOK, toDiagnosticsResponse(h.sink.Config()))
}

// ConfigureDiagnostics handles PUT /diagnostics requests.
func (h *Handlers) ConfigureDiagnostics(w http.ResponseWriter, r *http.Request) {
	if !h.requireSink(w) {
		return
	}
	var req DiagnosticsRequest
	if !h.decode(w, r, &req) {
		return
	}

	level, err := diag.ParseLevel(req.Level)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error(), "VALIDATION_ERROR")
		return
	}
	cfg := diag.Config{
		Level:         level,
		Format:        diag.FormatText,
		WriteToStdout: req.WriteToStdout,
		WriteToFiles:  req.WriteToFiles,
	}
	if req.Format == string(diag.FormatJSON) {
		cfg.Format = diag.FormatJSON
	}

	if err := h.sink.Configure(cfg); err != nil {
		if errors.Is(err, storage.ErrInvalidSink) {
			writeError(w, http.StatusBadRequest, err.Error(), "VALIDATION_ERROR")
			return
		}
		h.logger.Error("failed to configure diagnostics", slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "failed to configure diagnostics", "DIAGNOSTICS_FAILED")
		return
	}

	h.logger.Info("diagnostics reconfigured",
		slog.String("level", diag.LevelName(level)),
		slog.String("format", string(cfg.Format)),
		slog.Bool("write_to_stdout", cfg.WriteToStdout),
		slog.Bool("write_to_files", cfg.WriteToFiles != nil),
	)
	writeJSON(w, http.StatusOK, toDiagnosticsResponse(h.sink.Config()))
}

// ReloadLogFiles handles PUT /diagnostics/files requests.
func (h *Handlers) ReloadLogFiles(w http.ResponseWriter, r *http.Request) {
	if !h.requireSink(w) {
		return
	}
	var req storage.WriteToFiles
	if !h.decode(w, r, &req) {
		return
	}
	if err := h.sink.ReloadFileWriter(req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error(), "VALIDATION_ERROR")
		return
	}
	writeJSON(w, http.StatusOK, toDiagnosticsResponse(h.sink.Config()))
}

// IngestLog handles POST /diagnostics/logs requests.
func (h *Handlers) IngestLog(w http.ResponseWriter, r *http.Request) {
	if !h.requireSink(w) {
		return
	}
	var req LogRecordRequest
	if !h.decode(w, r, &req) {
		return
	}
	level, err := diag.ParseLevel(req.Level)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error(), "VALIDATION_ERROR")
		return
	}
	h.sink.Log(r.Context(), diag.Record{
		Level:   level,
		Target:  req.Target,
		File:    req.File,
		Line:    req.Line,
		Message: req.Message,
	})
	w.WriteHeader(http.StatusNoContent)
}

// Threads handles GET /diagnostics/threads requests.
func (h *Handlers) Threads(w http.ResponseWriter, r *http.Request) {
	report, err := diag.Threads(r.Context())
	if err != nil {
		h.logger.Error("failed to inspect threads", slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "failed to inspect threads", "THREADS_FAILED")
		return
	}
	writeJSON(w, http.StatusOK, report)
}

func (h *Handlers) requireSink(w http.ResponseWriter) bool {
	if h.sink == nil {
		writeError(w, http.StatusNotImplemented, "diagnostics are not enabled", "DIAGNOSTICS_DISABLED")
		return false
	}
	return true
}

func toDiagnosticsResponse(cfg diag.Config) DiagnosticsResponse {
	return DiagnosticsResponse{
		Level:         diag.LevelName(cfg.Level),
		Format:        string(cfg.Format),
		WriteToStdout: cfg.WriteToStdout,
		WriteToFiles:  cfg.WriteToFiles,
	}
}

// decode reads and validates a JSON body, writing the error response itself.
func (h *Handlers) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		h.logger.Warn("failed to decode request body",
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusBadRequest, "invalid JSON body", "INVALID_JSON")
		return false
	}

	// Validate request
	if err := h.validator.Struct(dst); err != nil {
		h.logger.Warn("request validation failed",
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusBadRequest, strings.TrimSpace(err.Error()), "VALIDATION_ERROR")
		return false
	}
	return true
}

// writeJSON writes a JSON response.
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		slog.Error("failed to encode JSON response", slog.String("error", err.Error()))
	}
}

// writeError writes an error response in the standard format.
func writeError(w http.ResponseWriter, status int, message, code string) {
	writeJSON(w, status, ErrorResponse{
		Error: message,
		Code:  code,
	})
}
