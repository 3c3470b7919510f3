// Package preset provides the immutable catalog of resolution presets and
// thumbnail sizes shared by every engine component.
package preset

import (
	"errors"
	"fmt"
	"os"
	"sort"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// Static errors for catalog lookups and construction.
var (
	// ErrUnknownPreset is returned when a preset name is not in the catalog.
	ErrUnknownPreset = errors.New("unknown preset")
	// ErrDuplicatePreset is returned when two entries share a name.
	ErrDuplicatePreset = errors.New("duplicate preset name")
)

// MaxCRF is the highest quality factor libx264 accepts.
const MaxCRF = 51

// Resolution is a named encode target.
type Resolution struct {
	Name        string `json:"name" yaml:"name" validate:"required"`
	Width       uint32 `json:"width" yaml:"width" validate:"gt=0"`
	Height      uint32 `json:"height" yaml:"height" validate:"gt=0"`
	BitrateKbps uint64 `json:"bitrate_kbps" yaml:"bitrate_kbps" validate:"gt=0"`
	CRF         uint8  `json:"crf" yaml:"crf" validate:"max=51"`
}

// ThumbnailSize is a named bounding box for thumbnails.
type ThumbnailSize struct {
	Name   string `json:"name" yaml:"name" validate:"required"`
	Width  uint32 `json:"width" yaml:"width" validate:"gt=0"`
	Height uint32 `json:"height" yaml:"height" validate:"gt=0"`
}

// DefaultThumbnailSize names the size used when a request does not pick one.
const DefaultThumbnailSize = "medium"

var defaultResolutions = []Resolution{
	{Name: "2160p", Width: 3840, Height: 2160, BitrateKbps: 16000, CRF: 20},
	{Name: "1440p", Width: 2560, Height: 1440, BitrateKbps: 9000, CRF: 21},
	{Name: "1080p", Width: 1920, Height: 1080, BitrateKbps: 5000, CRF: 22},
	{Name: "720p", Width: 1280, Height: 720, BitrateKbps: 2500, CRF: 23},
	{Name: "480p", Width: 854, Height: 480, BitrateKbps: 1200, CRF: 24},
	{Name: "360p", Width: 640, Height: 360, BitrateKbps: 700, CRF: 26},
	{Name: "240p", Width: 426, Height: 240, BitrateKbps: 400, CRF: 28},
}

var defaultThumbnailSizes = []ThumbnailSize{
	{Name: "icon", Width: 64, Height: 64},
	{Name: "small", Width: 128, Height: 128},
	{Name: "medium", Width: 256, Height: 256},
	{Name: "large", Width: 512, Height: 512},
	{Name: "larger", Width: 1024, Height: 1024},
}

// Catalog is built once and read concurrently without locking.
type Catalog struct {
	resolutions []Resolution
	thumbnails  []ThumbnailSize
	byName      map[string]Resolution
	thumbByName map[string]ThumbnailSize
}

// Default returns the built-in catalog.
func Default() *Catalog {
	c, err := New(defaultResolutions, defaultThumbnailSizes)
	if err != nil {
		panic(fmt.Sprintf("preset: invalid built-in catalog: %v", err))
	}
	return c
}

// New validates the entries and builds a catalog. Resolutions are kept ordered
// by decreasing bitrate.
func New(resolutions []Resolution, thumbnails []ThumbnailSize) (*Catalog, error) {
	v := validator.New()

	c := &Catalog{
		resolutions: make([]Resolution, len(resolutions)),
		thumbnails:  make([]ThumbnailSize, len(thumbnails)),
		byName:      make(map[string]Resolution, len(resolutions)),
		thumbByName: make(map[string]ThumbnailSize, len(thumbnails)),
	}
	copy(c.resolutions, resolutions)
	copy(c.thumbnails, thumbnails)

	for _, r := range c.resolutions {
		if err := v.Struct(r); err != nil {
			return nil, fmt.Errorf("resolution %q: %w", r.Name, err)
		}
		if _, dup := c.byName[r.Name]; dup {
			return nil, fmt.Errorf("%w: %s", ErrDuplicatePreset, r.Name)
		}
		c.byName[r.Name] = r
	}
	for _, t := range c.thumbnails {
		if err := v.Struct(t); err != nil {
			return nil, fmt.Errorf("thumbnail size %q: %w", t.Name, err)
		}
		if _, dup := c.thumbByName[t.Name]; dup {
			return nil, fmt.Errorf("%w: %s", ErrDuplicatePreset, t.Name)
		}
		c.thumbByName[t.Name] = t
	}

	sort.SliceStable(c.resolutions, func(i, j int) bool {
		return c.resolutions[i].BitrateKbps > c.resolutions[j].BitrateKbps
	})

	return c, nil
}

// file is the YAML layout accepted by Load.
type file struct {
	Resolutions    []Resolution    `yaml:"resolutions"`
	ThumbnailSizes []ThumbnailSize `yaml:"thumbnail_sizes"`
}

// Load reads a YAML catalog. A section that is absent keeps the built-in entries.
func Load(path string) (*Catalog, error) {
	data, err := os.ReadFile(path) // #nosec G304 - path comes from operator configuration
	if err != nil {
		return nil, fmt.Errorf("read preset file: %w", err)
	}

	var f file
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse preset file: %w", err)
	}
	if len(f.Resolutions) == 0 {
		f.Resolutions = defaultResolutions
	}
	if len(f.ThumbnailSizes) == 0 {
		f.ThumbnailSizes = defaultThumbnailSizes
	}

	return New(f.Resolutions, f.ThumbnailSizes)
}

// Resolutions returns a copy of all resolution presets, highest bitrate first.
func (c *Catalog) Resolutions() []Resolution {
	out := make([]Resolution, len(c.resolutions))
	copy(out, c.resolutions)
	return out
}

// ThumbnailSizes returns a copy of all thumbnail sizes.
func (c *Catalog) ThumbnailSizes() []ThumbnailSize {
	out := make([]ThumbnailSize, len(c.thumbnails))
	copy(out, c.thumbnails)
	return out
}

// Resolution looks up a resolution preset by name.
func (c *Catalog) Resolution(name string) (Resolution, error) {
	r, ok := c.byName[name]
	if !ok {
		return Resolution{}, fmt.Errorf("%w: %q", ErrUnknownPreset, name)
	}
	return r, nil
}

// Box returns the bounding box for a thumbnail preset name. Thumbnail sizes are
// searched first, then resolution presets.
func (c *Catalog) Box(name string) (width, height uint32, err error) {
	if t, ok := c.thumbByName[name]; ok {
		return t.Width, t.Height, nil
	}
	if r, ok := c.byName[name]; ok {
		return r.Width, r.Height, nil
	}
	return 0, 0, fmt.Errorf("%w: %q", ErrUnknownPreset, name)
}

// Suggest returns the presets that fit inside a width x height source, highest
// bitrate first. For portrait sources the preset dimensions are transposed so a
// 1080x1920 phone video is offered 1080p as 1080x1920.
func (c *Catalog) Suggest(width, height uint32) []Resolution {
	portrait := height > width
	out := make([]Resolution, 0, len(c.resolutions))
	for _, r := range c.resolutions {
		if portrait {
			r.Width, r.Height = r.Height, r.Width
		}
		if r.Width <= width && r.Height <= height {
			out = append(out, r)
		}
	}
	return out
}
