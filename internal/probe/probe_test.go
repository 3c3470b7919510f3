package probe

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/maauso/mediaforge/internal/media"
	"github.com/maauso/mediaforge/internal/media/mediatest"
	"github.com/maauso/mediaforge/internal/preset"
)

func TestProbe(t *testing.T) {
	bitrate := uint64(4_000_000)
	h := &media.Handle{Path: "in.mp4", SizeBytes: 5_000_000}

	backend := &mediatest.Backend{}
	backend.On("Open", mock.Anything, "in.mp4").Return(h, nil)
	backend.On("ProbeStreams", mock.Anything, h).Return(media.StreamInfo{
		DurationMs: 10_000,
		Width:      1920,
		Height:     1080,
		CodecName:  "h264",
		FormatName: "mov,mp4,m4a,3gp,3g2,mj2",
		Bitrate:    &bitrate,
	}, nil)
	backend.On("Close", h).Return(nil)

	p := NewProber(backend, preset.Default(), nil)
	info, err := p.Probe(context.Background(), "in.mp4")
	require.NoError(t, err)

	assert.Equal(t, uint64(10_000), info.DurationMs)
	assert.Equal(t, uint32(1920), info.Width)
	assert.Equal(t, uint32(1080), info.Height)
	assert.Equal(t, uint64(5_000_000), info.SizeBytes)
	require.NotNil(t, info.Bitrate)
	assert.Equal(t, bitrate, *info.Bitrate)
	require.NotEmpty(t, info.Suggestions)
	assert.Equal(t, "1080p", info.Suggestions[0].Name)
	for i, s := range info.Suggestions {
		assert.LessOrEqual(t, s.Width, info.Width)
		assert.LessOrEqual(t, s.Height, info.Height)
		if i > 0 {
			assert.GreaterOrEqual(t, info.Suggestions[i-1].BitrateKbps, s.BitrateKbps)
		}
	}

	backend.AssertExpectations(t)
}

func TestProbe_NoBitrateStaysAbsent(t *testing.T) {
	h := &media.Handle{Path: "in.mkv", SizeBytes: 1000}

	backend := &mediatest.Backend{}
	backend.On("Open", mock.Anything, "in.mkv").Return(h, nil)
	backend.On("ProbeStreams", mock.Anything, h).Return(media.StreamInfo{DurationMs: 1000, Width: 320, Height: 240}, nil)
	backend.On("Close", h).Return(nil)

	info, err := NewProber(backend, preset.Default(), nil).Probe(context.Background(), "in.mkv")
	require.NoError(t, err)
	assert.Nil(t, info.Bitrate)
	assert.Empty(t, info.Suggestions)
}

func TestProbe_Errors(t *testing.T) {
	t.Run("not found", func(t *testing.T) {
		backend := &mediatest.Backend{}
		backend.On("Open", mock.Anything, "missing.mp4").
			Return(nil, media.NewError(media.KindNotFound, "open", "missing.mp4", nil))

		_, err := NewProber(backend, preset.Default(), nil).Probe(context.Background(), "missing.mp4")
		assert.ErrorIs(t, err, media.ErrNotFound)
	})

	t.Run("unsupported", func(t *testing.T) {
		h := &media.Handle{Path: "a.txt"}
		backend := &mediatest.Backend{}
		backend.On("Open", mock.Anything, "a.txt").Return(h, nil)
		backend.On("ProbeStreams", mock.Anything, h).
			Return(media.StreamInfo{}, media.NewError(media.KindUnsupportedFormat, "probe", "a.txt", nil))
		backend.On("Close", h).Return(nil)

		_, err := NewProber(backend, preset.Default(), nil).Probe(context.Background(), "a.txt")
		assert.Equal(t, media.KindUnsupportedFormat, media.KindOf(err))
		backend.AssertCalled(t, "Close", h)
	})

	t.Run("cancelled", func(t *testing.T) {
		h := &media.Handle{Path: "b.mp4"}
		backend := &mediatest.Backend{}
		backend.On("Open", mock.Anything, "b.mp4").Return(h, nil)
		backend.On("ProbeStreams", mock.Anything, h).Return(media.StreamInfo{}, context.Canceled)
		backend.On("Close", h).Return(nil)

		_, err := NewProber(backend, preset.Default(), nil).Probe(context.Background(), "b.mp4")
		assert.ErrorIs(t, err, media.ErrCancelled)
	})
}
