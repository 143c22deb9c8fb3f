package splat

import (
	"image/color"
	"math/rand"

	"github.com/golang/geo/r3"
	"gonum.org/v1/gonum/num/quat"
)

// MakeTestArray returns a deterministic array of n records spread over a cube of the given edge
// length centered on the origin. Opacities cycle through [0, 1) so alpha filtering has
// something to remove.
func MakeTestArray(n, shDegree int, edge float64, seed int64) *Array {
	arr, err := NewArray(shDegree, n)
	if err != nil {
		return nil
	}
	//nolint:gosec
	rnd := rand.New(rand.NewSource(seed))
	half := edge / 2
	for i := 0; i < n; i++ {
		pos := r3.Vector{
			X: rnd.Float64()*edge - half,
			Y: rnd.Float64()*edge - half,
			Z: rnd.Float64()*edge - half,
		}
		scale := r3.Vector{X: 0.01 + rnd.Float64()*0.1, Y: 0.01 + rnd.Float64()*0.1, Z: 0.01 + rnd.Float64()*0.1}
		rot := quat.Number{Real: rnd.NormFloat64(), Imag: rnd.NormFloat64(), Jmag: rnd.NormFloat64(), Kmag: rnd.NormFloat64()}
		c := color.NRGBA{R: uint8(rnd.Intn(256)), G: uint8(rnd.Intn(256)), B: uint8(rnd.Intn(256))}
		opacity := float64(i%100) / 100
		var sh []float32
		if count := SHCoefficientCount(shDegree); count > 0 {
			sh = make([]float32, count)
			for j := range sh {
				sh[j] = float32(rnd.NormFloat64() * 0.2)
			}
		}
		if err := arr.Append(NewRecord(pos, scale, rot, c, opacity, sh)); err != nil {
			return nil
		}
	}
	return arr
}
