// Package splat defines the splat record and the attribute array every stage of the
// conversion pipeline reads. Records are immutable once produced by a parser: the position of
// a record in its Array is its only identity.
package splat

import (
	"image/color"
	"math"

	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/num/quat"
)

// MaxSHDegree is the highest spherical harmonics degree a record may carry.
const MaxSHDegree = 3

// shCountByDegree is the number of coefficients stored for each degree, three color channels
// times the non-DC basis functions of that degree.
var shCountByDegree = [MaxSHDegree + 1]int{0, 9, 24, 45}

// SHCoefficientCount returns how many spherical harmonic coefficients a record of the given
// degree holds.
func SHCoefficientCount(degree int) int {
	if degree < 0 || degree > MaxSHDegree {
		return 0
	}
	return shCountByDegree[degree]
}

// ValidateSHDegree returns an error for degrees outside [0, MaxSHDegree].
func ValidateSHDegree(degree int) error {
	if degree < 0 || degree > MaxSHDegree {
		return errors.Errorf("spherical harmonics degree must be between 0 and %d, got %d", MaxSHDegree, degree)
	}
	return nil
}

// Record is a single anisotropic gaussian. SH is ordered coefficient-major, channel-minor:
// (c0.r, c0.g, c0.b, c1.r, ...).
type Record struct {
	Position r3.Vector
	Scale    r3.Vector
	Rotation quat.Number
	Color    color.NRGBA
	Opacity  float64
	SH       []float32
}

// NewRecord returns a record with its rotation normalized, its opacity clamped to [0,1] and
// the color alpha channel mirroring the opacity.
func NewRecord(position, scale r3.Vector, rotation quat.Number, c color.NRGBA, opacity float64, sh []float32) Record {
	opacity = clamp01(opacity)
	c.A = uint8(math.Round(opacity * 255))
	return Record{
		Position: position,
		Scale:    scale,
		Rotation: NormalizeRotation(rotation),
		Color:    c,
		Opacity:  opacity,
		SH:       sh,
	}
}

// NormalizeRotation returns q scaled to unit length. A zero or non-finite quaternion becomes
// the identity rotation.
func NormalizeRotation(q quat.Number) quat.Number {
	n := quat.Abs(q)
	if n == 0 || math.IsNaN(n) || math.IsInf(n, 0) {
		return quat.Number{Real: 1}
	}
	return quat.Scale(1/n, q)
}

// Clone returns a deep copy of the record.
func (r Record) Clone() Record {
	if r.SH != nil {
		r.SH = append([]float32(nil), r.SH...)
	}
	return r
}

func clamp01(v float64) float64 {
	switch {
	case math.IsNaN(v), v < 0:
		return 0
	case v > 1:
		return 1
	default:
		return v
	}
}
