package media

import (
	"context"
	"errors"
	"fmt"
)

// Kind classifies every failure the engine can report.
type Kind string

const (
	// KindNotFound indicates the input path does not exist.
	KindNotFound Kind = "not_found"
	// KindUnsupportedFormat indicates the container or codec cannot be handled.
	KindUnsupportedFormat Kind = "unsupported_format"
	// KindInvalidParams indicates the caller supplied out-of-range or contradictory parameters.
	KindInvalidParams Kind = "invalid_params"
	// KindCorrupt indicates the input was recognised but its metadata could not be read.
	KindCorrupt Kind = "corrupt"
	// KindDecodeFailed indicates a frame or image could not be decoded.
	KindDecodeFailed Kind = "decode_failed"
	// KindIOError indicates a read or write failure on the filesystem.
	KindIOError Kind = "io_error"
	// KindCancelled indicates the job was cancelled before completion.
	KindCancelled Kind = "cancelled"
	// KindInternal indicates a bug, including recovered panics.
	KindInternal Kind = "internal"
)

// Sentinel errors, one per Kind. An *Error matches the sentinel of its Kind with errors.Is.
var (
	ErrNotFound          = errors.New("not found")
	ErrUnsupportedFormat = errors.New("unsupported format")
	ErrInvalidParams     = errors.New("invalid parameters")
	ErrCorrupt           = errors.New("corrupt input")
	ErrDecodeFailed      = errors.New("decode failed")
	ErrIO                = errors.New("i/o error")
	ErrCancelled         = errors.New("cancelled")
	ErrInternal          = errors.New("internal error")
)

var sentinels = map[Kind]error{
	KindNotFound:          ErrNotFound,
	KindUnsupportedFormat: ErrUnsupportedFormat,
	KindInvalidParams:     ErrInvalidParams,
	KindCorrupt:           ErrCorrupt,
	KindDecodeFailed:      ErrDecodeFailed,
	KindIOError:           ErrIO,
	KindCancelled:         ErrCancelled,
	KindInternal:          ErrInternal,
}

// Error carries a Kind together with the operation and path that failed.
type Error struct {
	Kind Kind
	Op   string
	Path string
	Err  error
}

// NewError creates an *Error. A nil err is replaced by the sentinel of kind.
func NewError(kind Kind, op, path string, err error) *Error {
	if err == nil {
		err = sentinels[kind]
	}
	return &Error{Kind: kind, Op: op, Path: path, Err: err}
}

// Errorf is a shorthand for NewError with a formatted cause.
func Errorf(kind Kind, op, path, format string, args ...any) *Error {
	return NewError(kind, op, path, fmt.Errorf(format, args...))
}

func (e *Error) Error() string {
	if e.Path != "" {
		return fmt.Sprintf("%s: %s %s: %v", e.Op, e.Kind, e.Path, e.Err)
	}
	return fmt.Sprintf("%s: %s: %v", e.Op, e.Kind, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is reports whether target is the sentinel for e.Kind.
func (e *Error) Is(target error) bool {
	return sentinels[e.Kind] == target
}

// KindOf classifies err. Context cancellation maps to KindCancelled and
// anything unclassified maps to KindInternal.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	var me *Error
	if errors.As(err, &me) {
		return me.Kind
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return KindCancelled
	}
	for kind, sentinel := range sentinels {
		if errors.Is(err, sentinel) {
			return kind
		}
	}
	return KindInternal
}

// Classify returns err as an *Error, wrapping it with KindOf(err) when needed.
func Classify(op, path string, err error) error {
	if err == nil {
		return nil
	}
	var me *Error
	if errors.As(err, &me) {
		return err
	}
	return NewError(KindOf(err), op, path, err)
}
