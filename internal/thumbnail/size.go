package thumbnail

import (
	"fmt"
	"image"
	"math"

	"github.com/disintegration/imaging"

	"github.com/maauso/mediaforge/internal/media"
	"github.com/maauso/mediaforge/internal/preset"
)

// Size selects the thumbnail dimensions. It is either a PresetSize or a CustomSize.
type Size interface {
	isSize()
}

// PresetSize names an entry of the preset catalog. The thumbnail fits inside the
// preset box and keeps the source aspect ratio.
type PresetSize struct {
	Name string
}

// CustomSize requests explicit dimensions. With one side zero the other follows the
// source aspect ratio. With both sides set the source is scaled to cover the box and
// the overflow is cropped around the center.
type CustomSize struct {
	Width  uint32
	Height uint32
}

func (PresetSize) isSize() {}
func (CustomSize) isSize() {}

// target is a resolved output size.
type target struct {
	width  int
	height int
	crop   bool
}

// resolveTarget computes the output size for a source of srcW x srcH. A zero source
// size means the source could not be read, in which case boxes are used as is.
func resolveTarget(catalog *preset.Catalog, size Size, srcW, srcH int) (target, error) {
	if size == nil {
		size = PresetSize{Name: preset.DefaultThumbnailSize}
	}

	switch s := size.(type) {
	case PresetSize:
		bw, bh, err := catalog.Box(s.Name)
		if err != nil {
			return target{}, media.NewError(media.KindInvalidParams, "thumbnail", "", err)
		}
		if srcW <= 0 || srcH <= 0 {
			return target{width: int(bw), height: int(bh)}, nil
		}
		w, h := fit(srcW, srcH, int(bw), int(bh))
		return target{width: w, height: h}, nil

	case CustomSize:
		w, h := int(s.Width), int(s.Height)
		switch {
		case w == 0 && h == 0:
			return target{}, media.Errorf(media.KindInvalidParams, "thumbnail", "", "custom size needs a width or a height")
		case srcW <= 0 || srcH <= 0:
			if w == 0 {
				w = h
			}
			if h == 0 {
				h = w
			}
			return target{width: w, height: h, crop: true}, nil
		case h == 0:
			h = proportional(srcH, w, srcW)
		case w == 0:
			w = proportional(srcW, h, srcH)
		default:
			return target{width: w, height: h, crop: true}, nil
		}
		return target{width: w, height: h}, nil

	default:
		return target{}, media.Errorf(media.KindInvalidParams, "thumbnail", "", "unknown size type %T", size)
	}
}

// fit scales srcW x srcH down to fit inside boxW x boxH. It never upscales.
func fit(srcW, srcH, boxW, boxH int) (int, int) {
	scale := math.Min(float64(boxW)/float64(srcW), float64(boxH)/float64(srcH))
	if scale >= 1 {
		return srcW, srcH
	}
	w := int(math.Round(float64(srcW) * scale))
	h := int(math.Round(float64(srcH) * scale))
	return max(w, 1), max(h, 1)
}

// proportional returns side*num/den rounded, at least 1.
func proportional(side, num, den int) int {
	return max(int(math.Round(float64(side)*float64(num)/float64(den))), 1)
}

// render resizes img to t.
func render(img image.Image, t target) image.Image {
	b := img.Bounds()
	if b.Dx() == t.width && b.Dy() == t.height {
		return img
	}
	if t.crop {
		return imaging.Fill(img, t.width, t.height, imaging.Center, imaging.Lanczos)
	}
	return imaging.Resize(img, t.width, t.height, imaging.Lanczos)
}

// blank returns a fully transparent raster of the target size.
func blank(t target) image.Image {
	return image.NewNRGBA(image.Rect(0, 0, t.width, t.height))
}

func (t target) String() string {
	return fmt.Sprintf("%dx%d", t.width, t.height)
}
