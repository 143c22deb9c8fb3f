package ply

import (
	"fmt"
	"image/color"
	"math"

	"github.com/golang/geo/r3"
	"github.com/montanaflynn/stats"
	"gonum.org/v1/gonum/num/quat"

	"go.viam.com/splatbuffer/splat"
	"go.viam.com/splatbuffer/utils"
)

const (
	vertexElement = "vertex"

	// shC0 is the zeroth order spherical harmonic basis constant, used to turn the DC
	// coefficients of a gaussian splat file into a base color.
	shC0 = 0.28209479177387814

	// DefaultPointScale is the scale given to records read from plain point clouds that carry
	// no gaussian shape.
	DefaultPointScale = 0.01
)

// columns resolves property names to row offsets once per file.
type columns struct {
	pos        [3]int
	scale      [3]int
	rot        [4]int
	dc         [3]int
	opacity    int
	rgb        [3]int
	alpha      int
	rest       []int
	colorScale float64
}

func lookup(elem Element, names ...string) []int {
	out := make([]int, len(names))
	for i, n := range names {
		out[i] = elem.PropertyIndex(n)
	}
	return out
}

func allFound(idx []int) bool {
	for _, i := range idx {
		if i < 0 {
			return false
		}
	}
	return true
}

func resolveColumns(elem Element) (*columns, error) {
	c := &columns{opacity: elem.PropertyIndex("opacity"), alpha: elem.PropertyIndex("alpha")}
	pos := lookup(elem, "x", "y", "z")
	if !allFound(pos) {
		return nil, utils.NewParseError("vertex element needs x, y and z properties")
	}
	copy(c.pos[:], pos)
	copy(c.scale[:], lookup(elem, "scale_0", "scale_1", "scale_2"))
	copy(c.rot[:], lookup(elem, "rot_0", "rot_1", "rot_2", "rot_3"))
	copy(c.dc[:], lookup(elem, "f_dc_0", "f_dc_1", "f_dc_2"))
	copy(c.rgb[:], lookup(elem, "red", "green", "blue"))

	c.colorScale = 1
	if i := c.rgb[0]; i >= 0 {
		switch elem.Properties[i].Type {
		case "float", "float32", "double", "float64":
			c.colorScale = 255
		}
	}

	for i := 0; ; i++ {
		idx := elem.PropertyIndex(fmt.Sprintf("f_rest_%d", i))
		if idx < 0 {
			break
		}
		c.rest = append(c.rest, idx)
	}
	return c, nil
}

func (c *columns) gaussian() bool {
	return allFound(c.dc[:])
}

// fileSHDegree is the highest degree whose coefficients are all present in the file.
func (c *columns) fileSHDegree() int {
	perChannel := len(c.rest) / 3
	for degree := splat.MaxSHDegree; degree > 0; degree-- {
		if splat.SHCoefficientCount(degree)/3 <= perChannel {
			return degree
		}
	}
	return 0
}

// toArray maps the vertex table onto records. The returned array's degree is the requested
// degree capped to what the file provides.
func toArray(t *table, shDegree int) (*splat.Array, error) {
	cols, err := resolveColumns(t.element)
	if err != nil {
		return nil, err
	}
	outDegree := shDegree
	if !cols.gaussian() {
		outDegree = 0
	} else if fileDegree := cols.fileSHDegree(); fileDegree < outDegree {
		outDegree = fileDegree
	}
	arr, err := splat.NewArray(outDegree, t.element.Count)
	if err != nil {
		return nil, err
	}

	opacities, err := opacityColumn(t, cols)
	if err != nil {
		return nil, err
	}

	restPerChannel := len(cols.rest) / 3
	outPerChannel := splat.SHCoefficientCount(outDegree) / 3
	for i := 0; i < t.element.Count; i++ {
		row := t.row(i)
		pos := r3.Vector{X: row[cols.pos[0]], Y: row[cols.pos[1]], Z: row[cols.pos[2]]}
		if !finite(pos) {
			return nil, utils.NewParseError("vertex %d has a non-finite position", i)
		}

		scale := r3.Vector{X: DefaultPointScale, Y: DefaultPointScale, Z: DefaultPointScale}
		if allFound(cols.scale[:]) {
			scale = r3.Vector{X: math.Exp(row[cols.scale[0]]), Y: math.Exp(row[cols.scale[1]]), Z: math.Exp(row[cols.scale[2]])}
			if !finite(scale) {
				return nil, utils.NewParseError("vertex %d has a non-finite scale", i)
			}
		}

		rot := quat.Number{Real: 1}
		if allFound(cols.rot[:]) {
			rot = quat.Number{Real: row[cols.rot[0]], Imag: row[cols.rot[1]], Jmag: row[cols.rot[2]], Kmag: row[cols.rot[3]]}
		}

		var c color.NRGBA
		switch {
		case cols.gaussian():
			c.R = unitToByte(0.5 + shC0*row[cols.dc[0]])
			c.G = unitToByte(0.5 + shC0*row[cols.dc[1]])
			c.B = unitToByte(0.5 + shC0*row[cols.dc[2]])
		case allFound(cols.rgb[:]):
			c.R = unitToByte(row[cols.rgb[0]] * cols.colorScale / 255)
			c.G = unitToByte(row[cols.rgb[1]] * cols.colorScale / 255)
			c.B = unitToByte(row[cols.rgb[2]] * cols.colorScale / 255)
		default:
			c = color.NRGBA{R: 255, G: 255, B: 255}
		}

		var sh []float32
		if outPerChannel > 0 {
			sh = make([]float32, 0, outPerChannel*3)
			for coeff := 0; coeff < outPerChannel; coeff++ {
				for channel := 0; channel < 3; channel++ {
					sh = append(sh, float32(row[cols.rest[channel*restPerChannel+coeff]]))
				}
			}
		}

		if err := arr.Append(splat.NewRecord(pos, scale, rot, c, opacities[i], sh)); err != nil {
			return nil, utils.NewParseError("vertex %d: %v", i, err)
		}
	}
	return arr, nil
}

// opacityColumn returns the opacity of every vertex in [0,1]. Gaussian splat files store the
// logit of the opacity; plain point clouds may store an 8 bit alpha.
func opacityColumn(t *table, cols *columns) ([]float64, error) {
	out := make([]float64, t.element.Count)
	switch {
	case cols.gaussian() && cols.opacity >= 0:
		if t.element.Count == 0 {
			return out, nil
		}
		logits := make([]float64, t.element.Count)
		for i := range logits {
			logits[i] = t.row(i)[cols.opacity]
		}
		return stats.Sigmoid(logits)
	case cols.alpha >= 0:
		scale := 1.0
		switch t.element.Properties[cols.alpha].Type {
		case "uchar", "uint8":
			scale = 1.0 / 255
		}
		for i := range out {
			out[i] = t.row(i)[cols.alpha] * scale
		}
	case cols.opacity >= 0:
		for i := range out {
			out[i] = t.row(i)[cols.opacity]
		}
	default:
		for i := range out {
			out[i] = 1
		}
	}
	return out, nil
}

func unitToByte(v float64) uint8 {
	if math.IsNaN(v) || v <= 0 {
		return 0
	}
	if v >= 1 {
		return 255
	}
	return uint8(math.Round(v * 255))
}

// finite reports whether every component survives the conversion to float32.
func finite(v r3.Vector) bool {
	for _, c := range []float64{v.X, v.Y, v.Z} {
		if math.IsNaN(c) || math.Abs(c) > math.MaxFloat32 {
			return false
		}
	}
	return true
}
