package thumbnail

import (
	"bytes"
	"image"
	"image/color"
	"testing"

	"github.com/chai2010/webp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/maauso/mediaforge/internal/media"
	"github.com/maauso/mediaforge/internal/media/mediatest"
)

func TestParseFormat(t *testing.T) {
	tests := []struct {
		in      string
		want    Format
		wantErr bool
	}{
		{"", FormatPNG, false},
		{"PNG", FormatPNG, false},
		{"jpg", FormatJPEG, false},
		{" jpeg ", FormatJPEG, false},
		{"webp", FormatWEBP, false},
		{"gif", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseFormat(tt.in)
			if tt.wantErr {
				assert.ErrorIs(t, err, media.ErrInvalidParams)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestEncode(t *testing.T) {
	src := mediatest.Solid(20, 10, color.NRGBA{R: 255, A: 255})

	for _, f := range []Format{FormatPNG, FormatJPEG} {
		t.Run(string(f), func(t *testing.T) {
			data, err := encode(src, f)
			require.NoError(t, err)

			img, name, err := image.Decode(bytes.NewReader(data))
			require.NoError(t, err)
			assert.Equal(t, string(f), name)
			assert.Equal(t, image.Pt(20, 10), img.Bounds().Size())
		})
	}

	t.Run("webp", func(t *testing.T) {
		data, err := encode(src, FormatWEBP)
		require.NoError(t, err)

		img, err := webp.Decode(bytes.NewReader(data))
		require.NoError(t, err)
		assert.Equal(t, image.Pt(20, 10), img.Bounds().Size())
	})

	t.Run("unknown", func(t *testing.T) {
		_, err := encode(src, Format("bmp"))
		assert.ErrorIs(t, err, media.ErrInvalidParams)
	})
}

func TestEncode_JPEGDropsAlpha(t *testing.T) {
	data, err := encode(blank(target{width: 4, height: 4}), FormatJPEG)
	require.NoError(t, err)

	img, _, err := image.Decode(bytes.NewReader(data))
	require.NoError(t, err)
	r, g, b, a := img.At(2, 2).RGBA()
	assert.Equal(t, uint32(0xffff), a)
	assert.Less(t, r+g+b, uint32(0x3000))
}
