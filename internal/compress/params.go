// Package compress re-encodes videos under a rate-control target and estimates
// the compressed size of a whole file from a short leading sample.
package compress

import (
	"math"

	"github.com/maauso/mediaforge/internal/media"
	"github.com/maauso/mediaforge/internal/preset"
)

// DefaultCRF is used when no rate control is requested.
const DefaultCRF uint8 = 23

// DefaultSampleDurationMs is the estimator sample window when none is given.
const DefaultSampleDurationMs uint64 = 5000

// Params describes a compression. Precedence between rate controls is
// CRF, then TargetBitrateKbps, then Preset, then DefaultCRF.
type Params struct {
	TargetBitrateKbps *uint32 `json:"target_bitrate_kbps,omitempty" validate:"omitempty,gt=0"`
	Preset            *string `json:"preset,omitempty" validate:"omitempty,min=1"`
	CRF               *uint8  `json:"crf,omitempty" validate:"omitempty,max=51"`
	// Width and Height must be even. Giving one keeps the source aspect ratio.
	Width             *uint32 `json:"width,omitempty" validate:"omitempty,gt=0"`
	Height            *uint32 `json:"height,omitempty" validate:"omitempty,gt=0"`
	// SampleDurationMs truncates the encode to the leading window of the source.
	SampleDurationMs *uint64 `json:"sample_duration_ms,omitempty" validate:"omitempty,gt=0"`
	// EncoderSpeed is the x264 speed preset. Empty means veryfast.
	EncoderSpeed string `json:"encoder_speed,omitempty" validate:"omitempty,oneof=ultrafast superfast veryfast faster fast medium slow slower veryslow"`
}

// RateControl is the resolved quality target. It is one of ConstantQuality,
// TargetBitrate or CappedQuality.
type RateControl interface {
	apply(s *media.EncodeSettings)
}

// ConstantQuality encodes at a fixed CRF.
type ConstantQuality struct {
	CRF uint8
}

// TargetBitrate encodes at an average bitrate.
type TargetBitrate struct {
	Kbps uint64
}

// CappedQuality encodes at a CRF with the bitrate capped at MaxKbps.
type CappedQuality struct {
	CRF     uint8
	MaxKbps uint64
}

func (r ConstantQuality) apply(s *media.EncodeSettings) {
	crf := r.CRF
	s.CRF = &crf
	s.BitrateKbps = 0
}

func (r TargetBitrate) apply(s *media.EncodeSettings) {
	s.CRF = nil
	s.BitrateKbps = r.Kbps
}

func (r CappedQuality) apply(s *media.EncodeSettings) {
	crf := r.CRF
	s.CRF = &crf
	s.BitrateKbps = r.MaxKbps
}

// ResolveRateControl picks the rate control for p. res is the resolved preset, nil when
// p names none.
func ResolveRateControl(p Params, res *preset.Resolution) RateControl {
	switch {
	case p.CRF != nil:
		return ConstantQuality{CRF: *p.CRF}
	case p.TargetBitrateKbps != nil:
		return TargetBitrate{Kbps: uint64(*p.TargetBitrateKbps)}
	case res != nil:
		return CappedQuality{CRF: res.CRF, MaxKbps: res.BitrateKbps}
	default:
		return ConstantQuality{CRF: DefaultCRF}
	}
}

// ResolveDimensions returns the output size for a srcW x srcH source. Zero sides
// keep the source aspect ratio and both zero keep the source size.
//
// Explicit sizes win. Otherwise a preset only shrinks the source to fit its box,
// transposed for portrait sources, and never upscales.
func ResolveDimensions(p Params, res *preset.Resolution, srcW, srcH uint32) (uint32, uint32) {
	if p.Width != nil || p.Height != nil {
		var w, h uint32
		if p.Width != nil {
			w = *p.Width
		}
		if p.Height != nil {
			h = *p.Height
		}
		return w, h
	}
	if res == nil || srcW == 0 || srcH == 0 {
		return 0, 0
	}

	boxW, boxH := res.Width, res.Height
	if srcH > srcW {
		boxW, boxH = boxH, boxW
	}
	scale := math.Min(float64(boxW)/float64(srcW), float64(boxH)/float64(srcH))
	if scale >= 1 {
		return 0, 0
	}
	return even(float64(srcW) * scale), even(float64(srcH) * scale)
}

// even rounds v to the nearest even size of at least 2, as yuv420p requires.
func even(v float64) uint32 {
	n := uint32(math.Round(v/2)) * 2
	return max(n, 2)
}
