// Package server provides the HTTP surface of mediaforge.
// It includes handlers, middleware, routes, and DTOs separated from domain types.
package server

import (
	"encoding/json"
	"time"

	"github.com/maauso/mediaforge/internal/preset"
	"github.com/maauso/mediaforge/internal/storage"
)

// CreateJobRequest is the HTTP request body for submitting a job.
type CreateJobRequest struct {
	// Kind selects the operation.
	Kind string `json:"kind" validate:"required,oneof=probe image_thumbnail video_thumbnail timeline compress estimate"`
	// Input is the source file path.
	Input string `json:"input" validate:"required"`
	// Output is the destination file (thumbnails, compress) or directory (timeline).
	// It is required for every kind except probe and estimate.
	Output string `json:"output,omitempty"`
	// PushToS3 uploads the produced file once the job succeeds.
	PushToS3 bool `json:"push_to_s3"`

	Thumbnail *ThumbnailOptions `json:"thumbnail,omitempty"`
	Timeline  *TimelineOptions  `json:"timeline,omitempty"`
	Compress  *CompressOptions  `json:"compress,omitempty"`
}

// ThumbnailOptions configures image, video and timeline thumbnails.
type ThumbnailOptions struct {
	// TimeMs is the video position of a single thumbnail.
	TimeMs *uint64 `json:"time_ms,omitempty"`
	// SizePreset names a thumbnail or resolution preset. Exclusive with Width/Height.
	SizePreset string `json:"size_preset,omitempty"`
	// Width and Height request a custom size; one may be zero to keep the aspect ratio.
	Width  uint32 `json:"width,omitempty" validate:"max=16384"`
	Height uint32 `json:"height,omitempty" validate:"max=16384"`
	// Format is png (default), jpeg or webp.
	Format string `json:"format,omitempty" validate:"omitempty,oneof=png jpeg jpg webp"`
	// EmptyImageFallback substitutes a transparent image for undecodable frames.
	EmptyImageFallback bool `json:"empty_image_fallback"`
}

// TimelineOptions configures a timeline written to the Output directory.
type TimelineOptions struct {
	ThumbnailOptions
	Count      uint32  `json:"count" validate:"gt=0,max=10000"`
	FilePrefix string  `json:"file_prefix,omitempty"`
	FileSuffix string  `json:"file_suffix,omitempty"`
	MaxFiles   *uint64 `json:"max_files,omitempty" validate:"omitempty,gt=0"`
}

// CompressOptions mirrors the compression parameters.
type CompressOptions struct {
	TargetBitrateKbps *uint32 `json:"target_bitrate_kbps,omitempty"`
	Preset            *string `json:"preset,omitempty"`
	CRF               *uint8  `json:"crf,omitempty"`
	Width             *uint32 `json:"width,omitempty"`
	Height            *uint32 `json:"height,omitempty"`
	SampleDurationMs  *uint64 `json:"sample_duration_ms,omitempty"`
	EncoderSpeed      string  `json:"encoder_speed,omitempty"`
}

// CreateJobResponse is the HTTP response after submitting a job.
type CreateJobResponse struct {
	// ID is the unique identifier for the created job.
	ID string `json:"id"`
	// Status is the initial job status.
	Status string `json:"status"`
}

// JobResponse is the HTTP response for getting job details.
type JobResponse struct {
	ID     string `json:"id"`
	Kind   string `json:"kind"`
	Status string `json:"status"`
	Input  string `json:"input"`
	Output string `json:"output,omitempty"`
	// Progress is the percentage of completion (0-100).
	Progress  int    `json:"progress"`
	ErrorKind string `json:"error_kind,omitempty"`
	Error     string `json:"error,omitempty"`
	// Result is the operation output once the job completed.
	Result      json.RawMessage `json:"result,omitempty"`
	CreatedAt   time.Time       `json:"created_at"`
	StartedAt   *time.Time      `json:"started_at,omitempty"`
	CompletedAt *time.Time      `json:"completed_at,omitempty"`
}

// JobListResponse lists jobs, oldest first.
type JobListResponse struct {
	Jobs []JobResponse `json:"jobs"`
}

// PresetsResponse lists the preset catalog.
type PresetsResponse struct {
	Resolutions    []preset.Resolution    `json:"resolutions"`
	ThumbnailSizes []preset.ThumbnailSize `json:"thumbnail_sizes"`
}

// DiagnosticsRequest replaces the log sink configuration.
type DiagnosticsRequest struct {
	Level         string                `json:"level" validate:"omitempty,oneof=trace debug info warn warning error"`
	Format        string                `json:"format" validate:"omitempty,oneof=text json"`
	WriteToStdout bool                  `json:"write_to_stdout"`
	WriteToFiles  *storage.WriteToFiles `json:"write_to_files,omitempty"`
}

// DiagnosticsResponse is the active log sink configuration.
type DiagnosticsResponse struct {
	Level         string                `json:"level"`
	Format        string                `json:"format"`
	WriteToStdout bool                  `json:"write_to_stdout"`
	WriteToFiles  *storage.WriteToFiles `json:"write_to_files,omitempty"`
}

// LogRecordRequest is a log line forwarded by a client.
type LogRecordRequest struct {
	Level   string `json:"level" validate:"required,oneof=trace debug info warn warning error"`
	Target  string `json:"target"`
	File    string `json:"file"`
	Line    uint32 `json:"line"`
	Message string `json:"message" validate:"required"`
}

// ErrorResponse is the standard error response format.
type ErrorResponse struct {
	// Error is the human-readable error message.
	Error string `json:"error"`
	// Code is the error code for programmatic handling.
	Code string `json:"code"`
}

// HealthResponse is the HTTP response for the health check endpoint.
type HealthResponse struct {
	// Status is the health status of the service.
	Status string `json:"status"`
	// Workers is the size of the job worker pool.
	Workers int `json:"workers"`
}
