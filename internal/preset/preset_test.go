package preset

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault(t *testing.T) {
	c := Default()

	res := c.Resolutions()
	require.Len(t, res, 7)
	assert.Equal(t, "2160p", res[0].Name)
	assert.Equal(t, "240p", res[len(res)-1].Name)

	for i := 1; i < len(res); i++ {
		assert.GreaterOrEqual(t, res[i-1].BitrateKbps, res[i].BitrateKbps)
	}
	for _, r := range res {
		assert.Positive(t, r.Width)
		assert.Positive(t, r.Height)
		assert.LessOrEqual(t, r.CRF, uint8(MaxCRF))
	}

	// Returned slices are copies.
	res[0].Name = "mutated"
	assert.Equal(t, "2160p", c.Resolutions()[0].Name)
}

func TestSuggest(t *testing.T) {
	c := Default()

	tests := []struct {
		name          string
		width, height uint32
		want          []string
	}{
		{"1080p landscape", 1920, 1080, []string{"1080p", "720p", "480p", "360p", "240p"}},
		{"odd 720p", 1280, 718, []string{"480p", "360p", "240p"}},
		{"portrait phone", 1080, 1920, []string{"1080p", "720p", "480p", "360p", "240p"}},
		{"tiny", 320, 200, []string{}},
		{"4k", 3840, 2160, []string{"2160p", "1440p", "1080p", "720p", "480p", "360p", "240p"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := c.Suggest(tt.width, tt.height)
			names := make([]string, 0, len(got))
			for _, r := range got {
				names = append(names, r.Name)
				assert.LessOrEqual(t, r.Width, tt.width)
				assert.LessOrEqual(t, r.Height, tt.height)
			}
			assert.Equal(t, tt.want, names)
		})
	}
}

func TestSuggest_PortraitTransposes(t *testing.T) {
	got := Default().Suggest(1080, 1920)
	require.NotEmpty(t, got)
	assert.Equal(t, uint32(1080), got[0].Width)
	assert.Equal(t, uint32(1920), got[0].Height)
}

func TestLookups(t *testing.T) {
	c := Default()

	r, err := c.Resolution("720p")
	require.NoError(t, err)
	assert.Equal(t, uint64(2500), r.BitrateKbps)

	_, err = c.Resolution("8k")
	assert.ErrorIs(t, err, ErrUnknownPreset)

	w, h, err := c.Box("icon")
	require.NoError(t, err)
	assert.Equal(t, [2]uint32{64, 64}, [2]uint32{w, h})

	w, h, err = c.Box("480p")
	require.NoError(t, err)
	assert.Equal(t, [2]uint32{854, 480}, [2]uint32{w, h})

	_, _, err = c.Box("huge")
	assert.ErrorIs(t, err, ErrUnknownPreset)
}

func TestNew_Validation(t *testing.T) {
	_, err := New([]Resolution{{Name: "a", Width: 1, Height: 1, BitrateKbps: 1, CRF: 60}}, nil)
	assert.Error(t, err)

	_, err = New([]Resolution{{Name: "a", Width: 0, Height: 1, BitrateKbps: 1}}, nil)
	assert.Error(t, err)

	dup := Resolution{Name: "a", Width: 1, Height: 1, BitrateKbps: 1}
	_, err = New([]Resolution{dup, dup}, nil)
	assert.ErrorIs(t, err, ErrDuplicatePreset)

	_, err = New(nil, []ThumbnailSize{{Name: "", Width: 1, Height: 1}})
	assert.Error(t, err)
}

func TestLoad(t *testing.T) {
	dir := t.TempDir()

	t.Run("overrides resolutions keeps thumbnails", func(t *testing.T) {
		path := filepath.Join(dir, "presets.yaml")
		content := `
resolutions:
  - name: small
    width: 640
    height: 360
    bitrate_kbps: 600
    crf: 27
  - name: big
    width: 1920
    height: 1080
    bitrate_kbps: 4000
    crf: 22
`
		require.NoError(t, os.WriteFile(path, []byte(content), 0600))

		c, err := Load(path)
		require.NoError(t, err)

		res := c.Resolutions()
		require.Len(t, res, 2)
		assert.Equal(t, "big", res[0].Name)
		assert.Len(t, c.ThumbnailSizes(), 5)
	})

	t.Run("invalid entry", func(t *testing.T) {
		path := filepath.Join(dir, "bad.yaml")
		require.NoError(t, os.WriteFile(path, []byte("thumbnail_sizes:\n  - name: x\n    width: 0\n    height: 5\n"), 0600))
		_, err := Load(path)
		assert.Error(t, err)
	})

	t.Run("missing file", func(t *testing.T) {
		_, err := Load(filepath.Join(dir, "nope.yaml"))
		assert.Error(t, err)
	})
}
