//go:build vips

package media

import (
	"bytes"
	"fmt"
	"image"
	"image/png"
	"sync"

	"github.com/davidbyttow/govips/v2/vips"
)

var vipsOnce sync.Once

// VipsDecoder decodes still images with libvips. It handles formats the Go
// decoders do not (HEIC, JPEG XL, AVIF) when libvips was built with them.
type VipsDecoder struct{}

// NewVipsDecoder starts libvips once per process with conservative cache limits.
func NewVipsDecoder() *VipsDecoder {
	vipsOnce.Do(func() {
		vips.LoggingSettings(nil, vips.LogLevelError)
		vips.Startup(&vips.Config{
			ConcurrencyLevel: 1,
			MaxCacheMem:      50 * 1024 * 1024,
			MaxCacheSize:     100,
		})
	})
	return &VipsDecoder{}
}

// Decode loads path with auto-rotation and returns it as an image.Image.
func (VipsDecoder) Decode(path string) (image.Image, error) {
	ref, err := vips.LoadImageFromFile(path, vips.NewImportParams())
	if err != nil {
		return nil, fmt.Errorf("vips load: %w", err)
	}
	defer ref.Close()

	if err := ref.AutoRotate(); err != nil {
		return nil, fmt.Errorf("vips autorotate: %w", err)
	}

	buf, _, err := ref.ExportPng(vips.NewPngExportParams())
	if err != nil {
		return nil, fmt.Errorf("vips export: %w", err)
	}
	return png.Decode(bytes.NewReader(buf))
}
