package lod

import (
	"image/color"
	"testing"

	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
	"go.viam.com/test"
	"gonum.org/v1/gonum/num/quat"

	"go.viam.com/splatbuffer/splat"
	"go.viam.com/splatbuffer/utils"
)

func TestReduceInvalidLevel(t *testing.T) {
	arr := splat.MakeTestArray(10, 0, 1, 1)
	for _, level := range []int{0, 5, -1} {
		_, err := Reduce(arr, level)
		test.That(t, errors.Is(err, utils.ErrInvalidLevel), test.ShouldBeTrue)
	}
}

func TestReduceFullLevel(t *testing.T) {
	arr := splat.MakeTestArray(100, 1, 2, 1)
	out, err := Reduce(arr, 4)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, out.Len(), test.ShouldEqual, arr.Len())
	test.That(t, out.At(42), test.ShouldResemble, arr.At(42))
	test.That(t, out, test.ShouldNotEqual, arr)
}

func TestReduceMonotone(t *testing.T) {
	arr := splat.MakeTestArray(4*256*4, 1, 10, 7)
	reduced, err := ReduceAll(arr, []int{1, 2, 3, 4, 4}, Options{})
	test.That(t, err, test.ShouldBeNil)
	test.That(t, len(reduced), test.ShouldEqual, 4)
	for level := 1; level < 4; level++ {
		test.That(t, reduced[level].Len(), test.ShouldBeLessThanOrEqualTo, reduced[level+1].Len())
		test.That(t, reduced[level].Len(), test.ShouldBeGreaterThan, 0)
		test.That(t, reduced[level].SHDegree(), test.ShouldEqual, 1)
	}
	test.That(t, reduced[1].Len(), test.ShouldBeLessThan, arr.Len())
}

func TestReduceDeterministic(t *testing.T) {
	arr := splat.MakeTestArray(2000, 2, 5, 11)
	a, err := Reduce(arr, 2)
	test.That(t, err, test.ShouldBeNil)
	b, err := Reduce(arr, 2)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, a.Len(), test.ShouldEqual, b.Len())
	for i := 0; i < a.Len(); i++ {
		test.That(t, a.At(i), test.ShouldResemble, b.At(i))
	}
}

func TestReduceMerge(t *testing.T) {
	arr, err := splat.NewArray(0, 3)
	test.That(t, err, test.ShouldBeNil)
	unit := r3.Vector{X: 1, Y: 1, Z: 1}
	test.That(t, arr.Append(splat.NewRecord(r3.Vector{X: 0}, unit, quat.Number{Real: 1}, color.NRGBA{R: 100}, 0.5, nil)), test.ShouldBeNil)
	test.That(t, arr.Append(splat.NewRecord(r3.Vector{X: 100}, unit, quat.Number{Real: 1}, color.NRGBA{}, 1, nil)), test.ShouldBeNil)
	test.That(t, arr.Append(splat.NewRecord(r3.Vector{X: 0.2}, unit.Mul(2), quat.Number{Kmag: 1}, color.NRGBA{R: 200}, 0.5, nil)), test.ShouldBeNil)

	out, err := ReduceWithOptions(arr, 3, Options{BaseVoxelSize: 1})
	test.That(t, err, test.ShouldBeNil)
	test.That(t, out.Len(), test.ShouldEqual, 2)

	// first cluster holds records 0 and 2, weights 0.5 and 4.
	merged := out.At(0)
	test.That(t, merged.Position.X, test.ShouldAlmostEqual, (0.5*0+4*0.2)/4.5)
	test.That(t, merged.Opacity, test.ShouldAlmostEqual, 0.75)
	test.That(t, merged.Color.R, test.ShouldEqual, uint8(189))
	test.That(t, merged.Rotation, test.ShouldResemble, quat.Number{Kmag: 1})
	test.That(t, merged.Scale.Y, test.ShouldAlmostEqual, (0.5*1+4*2)/4.5)

	test.That(t, out.At(1).Position.X, test.ShouldEqual, 100.0)
	test.That(t, out.At(1).Opacity, test.ShouldEqual, 1.0)
}

func TestReduceMergeSpread(t *testing.T) {
	arr, err := splat.NewArray(0, 2)
	test.That(t, err, test.ShouldBeNil)
	tiny := r3.Vector{X: 0.001, Y: 0.001, Z: 0.001}
	test.That(t, arr.Append(splat.NewRecord(r3.Vector{X: 0}, tiny, quat.Number{}, color.NRGBA{}, 1, nil)), test.ShouldBeNil)
	test.That(t, arr.Append(splat.NewRecord(r3.Vector{X: 0.5}, tiny, quat.Number{}, color.NRGBA{}, 1, nil)), test.ShouldBeNil)

	out, err := ReduceWithOptions(arr, 1, Options{BaseVoxelSize: 1})
	test.That(t, err, test.ShouldBeNil)
	test.That(t, out.Len(), test.ShouldEqual, 1)
	// equal weights: the position spread dominates the tiny member scale on x only.
	test.That(t, out.At(0).Scale.X, test.ShouldAlmostEqual, 0.25)
	test.That(t, out.At(0).Scale.Y, test.ShouldAlmostEqual, 0.001)
}

func TestReduceZeroOpacityCluster(t *testing.T) {
	arr, err := splat.NewArray(0, 2)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, arr.Append(splat.NewRecord(r3.Vector{X: 1}, r3.Vector{}, quat.Number{}, color.NRGBA{G: 10}, 0, nil)), test.ShouldBeNil)
	test.That(t, arr.Append(splat.NewRecord(r3.Vector{X: 3}, r3.Vector{}, quat.Number{}, color.NRGBA{G: 30}, 0, nil)), test.ShouldBeNil)

	out, err := ReduceWithOptions(arr, 1, Options{BaseVoxelSize: 10})
	test.That(t, err, test.ShouldBeNil)
	test.That(t, out.Len(), test.ShouldEqual, 1)
	test.That(t, out.At(0).Position.X, test.ShouldAlmostEqual, 2.0)
	test.That(t, out.At(0).Color.G, test.ShouldEqual, uint8(20))
	test.That(t, out.At(0).Opacity, test.ShouldEqual, 0.0)
}

func TestReduceEmpty(t *testing.T) {
	arr, err := splat.NewArray(0, 0)
	test.That(t, err, test.ShouldBeNil)
	out, err := Reduce(arr, 1)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, out.Len(), test.ShouldEqual, 0)
}

func TestCellCoarsen(t *testing.T) {
	c := fineCell(r3.Vector{X: -0.5, Y: 3.5, Z: 7}, r3.Vector{}, 1)
	test.That(t, c, test.ShouldResemble, cellKey{-1, 3, 7})
	test.That(t, c.coarsen(1), test.ShouldResemble, cellKey{-1, 1, 3})
	test.That(t, c.coarsen(2), test.ShouldResemble, cellKey{-1, 0, 1})
}

func TestScale(t *testing.T) {
	arr := splat.MakeTestArray(10, 0, 1, 3)

	same, err := Scale(arr, 2, nil)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, same, test.ShouldEqual, arr)

	scaled, err := Scale(arr, 2, Factors{2: 2, 3: 0.5})
	test.That(t, err, test.ShouldBeNil)
	test.That(t, scaled.Len(), test.ShouldEqual, arr.Len())
	test.That(t, scaled.At(3).Scale, test.ShouldResemble, arr.At(3).Scale.Mul(2))
	test.That(t, scaled.At(3).Position, test.ShouldResemble, arr.At(3).Position)

	untouched, err := Scale(arr, 1, Factors{2: 2})
	test.That(t, err, test.ShouldBeNil)
	test.That(t, untouched, test.ShouldEqual, arr)

	_, err = Scale(arr, 1, Factors{2: -1})
	test.That(t, errors.Is(err, utils.ErrInvalidArgument), test.ShouldBeTrue)
	_, err = Scale(arr, 1, Factors{7: 1})
	test.That(t, errors.Is(err, utils.ErrInvalidLevel), test.ShouldBeTrue)
	_, err = Scale(arr, 0, nil)
	test.That(t, errors.Is(err, utils.ErrInvalidLevel), test.ShouldBeTrue)
}
