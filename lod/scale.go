package lod

import (
	"math"

	"go.viam.com/splatbuffer/splat"
	"go.viam.com/splatbuffer/utils"
)

// Factors maps a level to the factor its record scales are multiplied by. Levels without an
// entry are left unchanged.
type Factors map[int]float64

// Validate checks every level and factor.
func (f Factors) Validate() error {
	for level, factor := range f {
		if err := utils.ValidateLevel(level); err != nil {
			return err
		}
		if factor <= 0 || math.IsNaN(factor) || math.IsInf(factor, 0) {
			return utils.NewInvalidArgumentError("scale factor for level %d must be positive, got %v", level, factor)
		}
	}
	return nil
}

// Scale applies the spatial scale adjustment of level to every record of arr. An identity
// factor returns arr itself.
func Scale(arr *splat.Array, level int, factors Factors) (*splat.Array, error) {
	if err := utils.ValidateLevel(level); err != nil {
		return nil, err
	}
	if err := factors.Validate(); err != nil {
		return nil, err
	}
	factor, ok := factors[level]
	if !ok || factor == 1 {
		return arr, nil
	}
	out, err := splat.NewArray(arr.SHDegree(), arr.Len())
	if err != nil {
		return nil, err
	}
	arr.Iterate(func(_ int, r splat.Record) bool {
		r = r.Clone()
		r.Scale = r.Scale.Mul(factor)
		err = out.Append(r)
		return err == nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}
