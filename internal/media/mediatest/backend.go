// Package mediatest provides a testify mock of media.Backend for component tests.
package mediatest

import (
	"context"
	"image"
	"image/color"

	"github.com/stretchr/testify/mock"

	"github.com/maauso/mediaforge/internal/media"
)

// Compile-time check that Backend implements media.Backend.
var _ media.Backend = (*Backend)(nil)

// Backend is a mock implementation of media.Backend.
type Backend struct {
	mock.Mock
}

func (m *Backend) Open(ctx context.Context, path string) (*media.Handle, error) {
	args := m.Called(ctx, path)
	h, _ := args.Get(0).(*media.Handle)
	return h, args.Error(1)
}

func (m *Backend) ProbeStreams(ctx context.Context, h *media.Handle) (media.StreamInfo, error) {
	args := m.Called(ctx, h)
	return args.Get(0).(media.StreamInfo), args.Error(1)
}

func (m *Backend) DecodeFrame(ctx context.Context, h *media.Handle, atMs uint64) (image.Image, error) {
	args := m.Called(ctx, h, atMs)
	img, _ := args.Get(0).(image.Image)
	return img, args.Error(1)
}

func (m *Backend) DecodeImage(ctx context.Context, path string) (image.Image, error) {
	args := m.Called(ctx, path)
	img, _ := args.Get(0).(image.Image)
	return img, args.Error(1)
}

func (m *Backend) Encode(ctx context.Context, h *media.Handle, s media.EncodeSettings, output string) (media.EncodeResult, error) {
	args := m.Called(ctx, h, s, output)
	return args.Get(0).(media.EncodeResult), args.Error(1)
}

func (m *Backend) Close(h *media.Handle) error {
	args := m.Called(h)
	return args.Error(0)
}

// Solid returns a w x h image filled with c.
func Solid(w, h int, c color.Color) image.Image {
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, c)
		}
	}
	return img
}
