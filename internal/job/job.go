// Package job runs engine operations on a bounded worker pool and keeps a
// record of every submitted job for polling surfaces.
package job

import (
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/maauso/mediaforge/internal/job/id"
)

// Kind identifies the engine operation a job runs.
type Kind string

const (
	KindProbe          Kind = "probe"
	KindImageThumbnail Kind = "image_thumbnail"
	KindVideoThumbnail Kind = "video_thumbnail"
	KindTimeline       Kind = "timeline"
	KindCompress       Kind = "compress"
	KindEstimate       Kind = "estimate"
)

// IsValid returns true if the kind names a known operation.
func (k Kind) IsValid() bool {
	switch k {
	case KindProbe, KindImageThumbnail, KindVideoThumbnail, KindTimeline, KindCompress, KindEstimate:
		return true
	}
	return false
}

// Status represents the current state of a Job.
type Status string

const (
	// StatusInQueue indicates the job is waiting for an available worker.
	StatusInQueue Status = "IN_QUEUE"
	// StatusRunning indicates the job is being processed by a worker.
	StatusRunning Status = "RUNNING"
	// StatusCompleted indicates the job finished successfully.
	StatusCompleted Status = "COMPLETED"
	// StatusFailed indicates the job returned an error.
	StatusFailed Status = "FAILED"
	// StatusCancelled indicates the job was cancelled before or during execution.
	StatusCancelled Status = "CANCELLED"
)

// ErrInvalidTransition is returned when an invalid state transition is attempted.
var ErrInvalidTransition = errors.New("invalid state transition")

// validTransitions defines which state transitions are allowed.
var validTransitions = map[Status][]Status{
	StatusInQueue:   {StatusRunning, StatusCancelled},
	StatusRunning:   {StatusCompleted, StatusFailed, StatusCancelled},
	StatusCompleted: {},
	StatusFailed:    {},
	StatusCancelled: {},
}

// canTransition checks if a transition from one status to another is valid.
func canTransition(from, to Status) bool {
	for _, s := range validTransitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// Job is the record of one submitted operation.
type Job struct {
	mu sync.RWMutex

	// ID is the unique identifier for this job.
	ID string
	// Kind is the operation the job runs.
	Kind Kind
	// Status is the current job state.
	Status Status
	// Input is the source path.
	Input string
	// Output is the destination path, if the operation writes one.
	Output string
	// Progress is the percentage of completion (0-100).
	Progress int
	// ErrorKind is the media error kind of a failed or cancelled job.
	ErrorKind string
	// Error contains the error message if the job failed.
	Error string
	// Result is the JSON encoded success payload.
	Result json.RawMessage
	// CreatedAt is when the job was submitted.
	CreatedAt time.Time
	// UpdatedAt is when the job was last updated.
	UpdatedAt time.Time
	// StartedAt is when a worker picked the job up.
	StartedAt time.Time
	// CompletedAt is when the job reached a terminal state.
	CompletedAt time.Time
}

// New creates a new Job with a generated ID and initial IN_QUEUE status.
func New(kind Kind, input string) *Job {
	return NewWithID(id.Generate(), kind, input)
}

// NewWithID creates a new Job with the specified ID and initial IN_QUEUE status.
func NewWithID(jobID string, kind Kind, input string) *Job {
	now := time.Now()
	return &Job{
		ID:        jobID,
		Kind:      kind,
		Status:    StatusInQueue,
		Input:     input,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// TransitionTo attempts to change the job status to the specified state.
// Returns ErrInvalidTransition if the transition is not allowed.
func (j *Job) TransitionTo(status Status) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.transitionLocked(status)
}

func (j *Job) transitionLocked(status Status) error {
	if !canTransition(j.Status, status) {
		return ErrInvalidTransition
	}

	j.Status = status
	j.UpdatedAt = time.Now()

	switch status {
	case StatusRunning:
		j.StartedAt = j.UpdatedAt
	case StatusCompleted, StatusFailed, StatusCancelled:
		j.CompletedAt = j.UpdatedAt
	}
	return nil
}

// Start transitions the job from IN_QUEUE to RUNNING.
func (j *Job) Start() error {
	return j.TransitionTo(StatusRunning)
}

// Complete transitions the job to COMPLETED and stores its result.
func (j *Job) Complete(result json.RawMessage) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	if err := j.transitionLocked(StatusCompleted); err != nil {
		return err
	}
	j.Result = result
	j.Progress = 100
	return nil
}

// Fail transitions the job to FAILED with an error kind and message.
func (j *Job) Fail(kind, errMsg string) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	if err := j.transitionLocked(StatusFailed); err != nil {
		return err
	}
	j.ErrorKind = kind
	j.Error = errMsg
	return nil
}

// Cancel transitions the job to CANCELLED.
func (j *Job) Cancel(errMsg string) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	if err := j.transitionLocked(StatusCancelled); err != nil {
		return err
	}
	j.ErrorKind = "cancelled"
	j.Error = errMsg
	return nil
}

// GetStatus returns the current job status (thread-safe).
func (j *Job) GetStatus() Status {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return j.Status
}

// UpdateProgress sets the progress percentage, clamped to 0-100. It reports
// whether the stored value changed.
func (j *Job) UpdateProgress(progress int) bool {
	j.mu.Lock()
	defer j.mu.Unlock()
	progress = max(0, min(progress, 100))
	if progress == j.Progress {
		return false
	}
	j.Progress = progress
	j.UpdatedAt = time.Now()
	return true
}

// IsTerminal returns true if the job is in a terminal state.
func (j *Job) IsTerminal() bool {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return j.Status == StatusCompleted ||
		j.Status == StatusFailed ||
		j.Status == StatusCancelled
}

// Clone creates a deep copy of the job for safe reads.
func (j *Job) Clone() *Job {
	j.mu.RLock()
	defer j.mu.RUnlock()

	var result json.RawMessage
	if j.Result != nil {
		result = append(json.RawMessage(nil), j.Result...)
	}

	return &Job{
		ID:          j.ID,
		Kind:        j.Kind,
		Status:      j.Status,
		Input:       j.Input,
		Output:      j.Output,
		Progress:    j.Progress,
		ErrorKind:   j.ErrorKind,
		Error:       j.Error,
		Result:      result,
		CreatedAt:   j.CreatedAt,
		UpdatedAt:   j.UpdatedAt,
		StartedAt:   j.StartedAt,
		CompletedAt: j.CompletedAt,
	}
}
