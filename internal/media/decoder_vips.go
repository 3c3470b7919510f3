//go:build vips

package media

// DefaultImageDecoder returns the libvips decoder.
func DefaultImageDecoder() ImageDecoder {
	return NewVipsDecoder()
}
