// Package quantize maps splat attributes onto fixed width integer codes using per bucket value
// ranges.
//
// Ranges are computed per bucket: position and scale get one range per axis, spherical
// harmonics share one range across all coefficients of the bucket. Rotation and color always
// live in the fixed ranges [-1, 1] and [0, 1] and carry no range in the output.
package quantize

import (
	"fmt"
	"math"

	"go.viam.com/splatbuffer/utils"
)

// Level is a compression level. Higher levels trade precision for size.
type Level uint8

const (
	// LevelRaw stores every channel as an IEEE-754 float32.
	LevelRaw Level = iota
	// LevelMedium stores every channel as a 16 bit code.
	LevelMedium
	// LevelHigh keeps 16 bit position and scale, and narrows rotation, color and spherical
	// harmonics to 8 bits.
	LevelHigh
)

// MaxLevel is the highest supported compression level.
const MaxLevel = LevelHigh

// ParseLevel validates n as a compression level.
func ParseLevel(n int) (Level, error) {
	if n < int(LevelRaw) || n > int(MaxLevel) {
		return 0, utils.NewInvalidArgumentError("compression level must be between %d and %d, got %d", LevelRaw, MaxLevel, n)
	}
	return Level(n), nil
}

func (l Level) String() string {
	switch l {
	case LevelRaw:
		return "raw"
	case LevelMedium:
		return "medium"
	case LevelHigh:
		return "high"
	}
	return fmt.Sprintf("level(%d)", uint8(l))
}

// Quantized reports whether the level stores codes rather than floats.
func (l Level) Quantized() bool {
	return l != LevelRaw
}

// Bits of each channel group at this level. Raw levels report 32.
func (l Level) Bits() (position, scale, rotation, color, sh uint) {
	switch l {
	case LevelMedium:
		return 16, 16, 16, 16, 16
	case LevelHigh:
		return 16, 16, 8, 8, 8
	default:
		return 32, 32, 32, 32, 32
	}
}

// Range is the closed interval a channel is quantized over.
type Range struct {
	Min, Max float32
}

// Fixed ranges for normalized channels.
var (
	RotationRange = Range{Min: -1, Max: 1}
	ColorRange    = Range{Min: 0, Max: 1}
)

// EmptyRange returns a range that Extend turns into the first value it sees.
func EmptyRange() Range {
	return Range{Min: math.MaxFloat32, Max: -math.MaxFloat32}
}

// Extend grows r to contain v.
func (r *Range) Extend(v float32) {
	if v < r.Min {
		r.Min = v
	}
	if v > r.Max {
		r.Max = v
	}
}

// Contains reports whether v lies in r.
func (r Range) Contains(v float32) bool {
	return v >= r.Min && v <= r.Max
}

// Degenerate reports whether r has no width. Every value quantizes to 0 in a degenerate range.
func (r Range) Degenerate() bool {
	return !(r.Max > r.Min)
}

// Step returns the width of one code, the bound on the round trip error.
func (r Range) Step(bits uint) float64 {
	if r.Degenerate() {
		return 0
	}
	return (float64(r.Max) - float64(r.Min)) / maxCode(bits)
}

func maxCode(bits uint) float64 {
	return float64(uint64(1)<<bits - 1)
}

// Quantize returns round((v - min) / (max - min) * (2^bits - 1)) clamped to [0, 2^bits - 1].
// A degenerate range yields 0.
func Quantize(v float64, r Range, bits uint) uint32 {
	if r.Degenerate() || math.IsNaN(v) {
		return 0
	}
	top := maxCode(bits)
	code := math.Round((v - float64(r.Min)) / (float64(r.Max) - float64(r.Min)) * top)
	if code <= 0 {
		return 0
	}
	if code >= top {
		return uint32(top)
	}
	return uint32(code)
}

// Dequantize inverts Quantize up to rounding.
func Dequantize(code uint32, r Range, bits uint) float64 {
	if r.Degenerate() {
		return float64(r.Min)
	}
	return float64(r.Min) + float64(code)/maxCode(bits)*(float64(r.Max)-float64(r.Min))
}
