package splat

import (
	"math"

	"github.com/golang/geo/r3"
)

// MetaData is data about the records stored in an Array.
type MetaData struct {
	Min, Max r3.Vector

	inited bool
}

// NewMetaData returns an empty MetaData whose bounds are inverted so the first Merge sets them.
func NewMetaData() MetaData {
	return MetaData{
		Min:    r3.Vector{X: math.MaxFloat64, Y: math.MaxFloat64, Z: math.MaxFloat64},
		Max:    r3.Vector{X: -math.MaxFloat64, Y: -math.MaxFloat64, Z: -math.MaxFloat64},
		inited: true,
	}
}

// Merge grows the bounds to contain v.
func (meta *MetaData) Merge(v r3.Vector) {
	if !meta.inited {
		*meta = NewMetaData()
	}
	if v.X > meta.Max.X {
		meta.Max.X = v.X
	}
	if v.Y > meta.Max.Y {
		meta.Max.Y = v.Y
	}
	if v.Z > meta.Max.Z {
		meta.Max.Z = v.Z
	}

	if v.X < meta.Min.X {
		meta.Min.X = v.X
	}
	if v.Y < meta.Min.Y {
		meta.Min.Y = v.Y
	}
	if v.Z < meta.Min.Z {
		meta.Min.Z = v.Z
	}
}

// Empty reports whether nothing has been merged.
func (meta MetaData) Empty() bool {
	return !meta.inited || meta.Min.X > meta.Max.X
}

// Center returns the center of the bounds, or the origin when empty.
func (meta MetaData) Center() r3.Vector {
	if meta.Empty() {
		return r3.Vector{}
	}
	return meta.Min.Add(meta.Max).Mul(0.5)
}

// Extent returns the size of the bounds along each axis.
func (meta MetaData) Extent() r3.Vector {
	if meta.Empty() {
		return r3.Vector{}
	}
	return meta.Max.Sub(meta.Min)
}

// MaxExtent returns the largest axis of Extent.
func (meta MetaData) MaxExtent() float64 {
	e := meta.Extent()
	return math.Max(e.X, math.Max(e.Y, e.Z))
}
