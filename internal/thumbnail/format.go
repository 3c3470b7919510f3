package thumbnail

import (
	"bytes"
	"fmt"
	"image"
	"strings"

	"github.com/chai2010/webp"
	"github.com/disintegration/imaging"

	"github.com/maauso/mediaforge/internal/media"
)

// Format is the encoded image format of a thumbnail.
type Format string

const (
	FormatPNG  Format = "png"
	FormatJPEG Format = "jpeg"
	FormatWEBP Format = "webp"
)

const lossyQuality = 90

// ParseFormat parses a format name. An empty name selects PNG.
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "png":
		return FormatPNG, nil
	case "jpeg", "jpg":
		return FormatJPEG, nil
	case "webp":
		return FormatWEBP, nil
	default:
		return "", media.Errorf(media.KindInvalidParams, "thumbnail", "", "unknown image format %q", s)
	}
}

// Extension returns the file extension without the dot.
func (f Format) Extension() string {
	if f == "" {
		return string(FormatPNG)
	}
	return string(f)
}

// encode serialises img. JPEG has no alpha channel so transparent pixels become black.
func encode(img image.Image, f Format) ([]byte, error) {
	var buf bytes.Buffer
	var err error

	switch f {
	case FormatPNG, "":
		err = imaging.Encode(&buf, img, imaging.PNG)
	case FormatJPEG:
		err = imaging.Encode(&buf, img, imaging.JPEG, imaging.JPEGQuality(lossyQuality))
	case FormatWEBP:
		err = webp.Encode(&buf, img, &webp.Options{Quality: lossyQuality})
	default:
		return nil, media.Errorf(media.KindInvalidParams, "thumbnail", "", "unknown image format %q", f)
	}
	if err != nil {
		return nil, media.NewError(media.KindInternal, "thumbnail", "", fmt.Errorf("encode %s: %w", f, err))
	}
	return buf.Bytes(), nil
}
