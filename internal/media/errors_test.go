package media

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestError_IsAndUnwrap(t *testing.T) {
	cause := errors.New("boom")
	err := NewError(KindIOError, "encode", "/tmp/x.mp4", cause)

	assert.ErrorIs(t, err, ErrIO)
	assert.ErrorIs(t, err, cause)
	assert.NotErrorIs(t, err, ErrNotFound)
	assert.Equal(t, "encode: io_error /tmp/x.mp4: boom", err.Error())

	wrapped := fmt.Errorf("compress: %w", err)
	assert.ErrorIs(t, wrapped, ErrIO)
	assert.Equal(t, KindIOError, KindOf(wrapped))
}

func TestNewError_NilCause(t *testing.T) {
	err := NewError(KindInvalidParams, "thumbnail", "", nil)
	assert.ErrorIs(t, err, ErrInvalidParams)
	assert.Equal(t, "thumbnail: invalid_params: invalid parameters", err.Error())
}

func TestKindOf(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want Kind
	}{
		{"nil", nil, ""},
		{"context cancelled", fmt.Errorf("wait: %w", context.Canceled), KindCancelled},
		{"deadline", context.DeadlineExceeded, KindCancelled},
		{"bare sentinel", ErrDecodeFailed, KindDecodeFailed},
		{"unknown", errors.New("???"), KindInternal},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, KindOf(tt.err))
		})
	}
}

func TestClassify(t *testing.T) {
	assert.NoError(t, Classify("op", "", nil))

	err := Classify("probe", "a.mp4", context.Canceled)
	var me *Error
	assert.True(t, errors.As(err, &me))
	assert.Equal(t, KindCancelled, me.Kind)
	assert.Equal(t, "a.mp4", me.Path)

	orig := NewError(KindCorrupt, "probe", "b.mp4", nil)
	assert.Same(t, orig, Classify("other", "", orig))
}
