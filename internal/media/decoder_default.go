//go:build !vips

package media

// DefaultImageDecoder returns nil: without the vips build tag images are decoded by
// imaging and ffmpeg only.
func DefaultImageDecoder() ImageDecoder {
	return nil
}
