// Package lod derives reduced density copies of a splat array, one per level of detail.
//
// Level 4 is the full array. Levels 3, 2 and 1 merge the records falling into the same cell of
// a voxel grid anchored at the minimum corner of the array's bounds. The grid of level L has an
// edge of base * 2^(3-L), and coarser cells are computed from the level 3 cell by integer
// shifts, so every coarse cell is an exact union of finer cells. This keeps point counts
// monotone across levels.
package lod

import (
	"image/color"
	"math"

	"github.com/golang/geo/r3"
	"github.com/samber/lo"
	"gonum.org/v1/gonum/stat"

	"go.viam.com/splatbuffer/splat"
	"go.viam.com/splatbuffer/utils"
)

// gridResolution is the number of finest cells spanning the largest axis of the bounds.
const gridResolution = 128

// Options tunes the reducer. The zero value derives the voxel size from the bounds.
type Options struct {
	// BaseVoxelSize is the edge of a level 3 cell in world units. Non-positive means
	// maxExtent / 128.
	BaseVoxelSize float64
}

// Reduce returns the reduced array for level using default options.
func Reduce(arr *splat.Array, level int) (*splat.Array, error) {
	return ReduceWithOptions(arr, level, Options{})
}

// ReduceWithOptions returns the reduced array for level. Records are merged per cell and the
// merged records are ordered by the smallest original index among the cell's members.
func ReduceWithOptions(arr *splat.Array, level int, opts Options) (*splat.Array, error) {
	if err := utils.ValidateLevel(level); err != nil {
		return nil, err
	}
	if level == utils.MaxLODLevel || arr.Len() == 0 {
		return arr.Clone(), nil
	}

	meta := arr.MetaData()
	base := opts.BaseVoxelSize
	if base <= 0 || math.IsNaN(base) || math.IsInf(base, 0) {
		base = meta.MaxExtent() / gridResolution
	}
	if base <= 0 {
		base = 1
	}
	shift := uint(utils.MaxLODLevel - 1 - level)

	clusters := map[cellKey]int{}
	var members [][]int
	arr.Iterate(func(i int, r splat.Record) bool {
		key := fineCell(r.Position, meta.Min, base).coarsen(shift)
		idx, ok := clusters[key]
		if !ok {
			idx = len(members)
			clusters[key] = idx
			members = append(members, nil)
		}
		members[idx] = append(members[idx], i)
		return true
	})

	out, err := splat.NewArray(arr.SHDegree(), len(members))
	if err != nil {
		return nil, err
	}
	for _, m := range members {
		if err := out.Append(merge(arr, m)); err != nil {
			return nil, err
		}
	}
	return out, nil
}

// ReduceAll reduces arr for every level in levels, keyed by level.
func ReduceAll(arr *splat.Array, levels []int, opts Options) (map[int]*splat.Array, error) {
	out := make(map[int]*splat.Array, len(levels))
	for _, level := range lo.Uniq(levels) {
		reduced, err := ReduceWithOptions(arr, level, opts)
		if err != nil {
			return nil, err
		}
		out[level] = reduced
	}
	return out, nil
}

type cellKey [3]int64

func fineCell(p, origin r3.Vector, edge float64) cellKey {
	d := p.Sub(origin)
	return cellKey{
		int64(math.Floor(d.X / edge)),
		int64(math.Floor(d.Y / edge)),
		int64(math.Floor(d.Z / edge)),
	}
}

// coarsen maps a cell onto the cell 2^shift times larger containing it. Arithmetic shifts
// floor negative coordinates as well.
func (c cellKey) coarsen(shift uint) cellKey {
	return cellKey{c[0] >> shift, c[1] >> shift, c[2] >> shift}
}

// mergeWeights returns opacity times volume per member, falling back to opacity and then to
// uniform weights when every member would weigh nothing.
func mergeWeights(records []splat.Record) []float64 {
	weights := lo.Map(records, func(r splat.Record, _ int) float64 {
		return r.Opacity * r.Scale.X * r.Scale.Y * r.Scale.Z
	})
	if sum := lo.Sum(weights); sum > 0 && !math.IsInf(sum, 0) {
		return weights
	}
	weights = lo.Map(records, func(r splat.Record, _ int) float64 { return r.Opacity })
	if lo.Sum(weights) > 0 {
		return weights
	}
	return nil
}

// merge collapses the records at indices into one. A single member is returned unchanged.
func merge(arr *splat.Array, indices []int) splat.Record {
	if len(indices) == 1 {
		return arr.At(indices[0]).Clone()
	}
	records := lo.Map(indices, func(i, _ int) splat.Record { return arr.At(i) })
	weights := mergeWeights(records)

	column := func(fn func(r splat.Record) float64) []float64 {
		return lo.Map(records, func(r splat.Record, _ int) float64 { return fn(r) })
	}
	meanStd := func(fn func(r splat.Record) float64) (float64, float64) {
		mean, std := stat.PopMeanStdDev(column(fn), weights)
		if math.IsNaN(std) {
			std = 0
		}
		return mean, std
	}

	px, sx := meanStd(func(r splat.Record) float64 { return r.Position.X })
	py, sy := meanStd(func(r splat.Record) float64 { return r.Position.Y })
	pz, sz := meanStd(func(r splat.Record) float64 { return r.Position.Z })
	scale := r3.Vector{
		X: math.Max(stat.Mean(column(func(r splat.Record) float64 { return r.Scale.X }), weights), sx),
		Y: math.Max(stat.Mean(column(func(r splat.Record) float64 { return r.Scale.Y }), weights), sy),
		Z: math.Max(stat.Mean(column(func(r splat.Record) float64 { return r.Scale.Z }), weights), sz),
	}

	c := color.NRGBA{
		R: meanByte(stat.Mean(column(func(r splat.Record) float64 { return float64(r.Color.R) }), weights)),
		G: meanByte(stat.Mean(column(func(r splat.Record) float64 { return float64(r.Color.G) }), weights)),
		B: meanByte(stat.Mean(column(func(r splat.Record) float64 { return float64(r.Color.B) }), weights)),
	}

	var sh []float32
	if n := len(records[0].SH); n > 0 {
		sh = make([]float32, n)
		for k := range sh {
			sh[k] = float32(stat.Mean(column(func(r splat.Record) float64 { return float64(r.SH[k]) }), weights))
		}
	}

	heaviest := 0
	transmittance := 1.0
	for i, r := range records {
		if weights != nil && weights[i] > weights[heaviest] {
			heaviest = i
		}
		transmittance *= 1 - r.Opacity
	}

	return splat.NewRecord(r3.Vector{X: px, Y: py, Z: pz}, scale, records[heaviest].Rotation, c, 1-transmittance, sh)
}

func meanByte(v float64) uint8 {
	return uint8(math.Round(math.Min(math.Max(v, 0), 255)))
}
