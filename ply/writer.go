package ply

import (
	"bufio"
	"fmt"
	"io"
	"math"
	"strconv"

	"go.viam.com/splatbuffer/splat"
)

// Write encodes arr as a gaussian splat PLY file, inverting the mapping applied by Parse:
// colors go back to DC coefficients, opacities to logits and scales to logarithms.
func Write(out io.Writer, arr *splat.Array, format Format) error {
	w := bufio.NewWriter(out)
	names := gaussianPropertyNames(arr.SHDegree())
	fmt.Fprintf(w, "%s\nformat %s 1.0\nelement %s %d\n", magic, format, vertexElement, arr.Len())
	for _, n := range names {
		fmt.Fprintf(w, "property float %s\n", n)
	}
	fmt.Fprint(w, "end_header\n")

	order := format.byteOrder()
	row := make([]float32, len(names))
	buf := make([]byte, 4)
	var err error
	arr.Iterate(func(_ int, r splat.Record) bool {
		fillRow(row, r)
		if format == FormatASCII {
			for i, v := range row {
				if i > 0 {
					if err = w.WriteByte(' '); err != nil {
						return false
					}
				}
				if _, err = w.WriteString(strconv.FormatFloat(float64(v), 'g', -1, 32)); err != nil {
					return false
				}
			}
			err = w.WriteByte('\n')
			return err == nil
		}
		for _, v := range row {
			order.PutUint32(buf, math.Float32bits(v))
			if _, err = w.Write(buf); err != nil {
				return false
			}
		}
		return true
	})
	if err != nil {
		return err
	}
	return w.Flush()
}

func gaussianPropertyNames(shDegree int) []string {
	names := []string{"x", "y", "z", "f_dc_0", "f_dc_1", "f_dc_2"}
	for i := 0; i < splat.SHCoefficientCount(shDegree); i++ {
		names = append(names, fmt.Sprintf("f_rest_%d", i))
	}
	return append(names, "opacity", "scale_0", "scale_1", "scale_2", "rot_0", "rot_1", "rot_2", "rot_3")
}

func fillRow(row []float32, r splat.Record) {
	row[0], row[1], row[2] = float32(r.Position.X), float32(r.Position.Y), float32(r.Position.Z)
	row[3] = float32((float64(r.Color.R)/255 - 0.5) / shC0)
	row[4] = float32((float64(r.Color.G)/255 - 0.5) / shC0)
	row[5] = float32((float64(r.Color.B)/255 - 0.5) / shC0)

	i := 6
	perChannel := len(r.SH) / 3
	for channel := 0; channel < 3; channel++ {
		for coeff := 0; coeff < perChannel; coeff++ {
			row[i] = r.SH[coeff*3+channel]
			i++
		}
	}

	opacity := math.Min(math.Max(r.Opacity, 1e-6), 1-1e-6)
	row[i] = float32(math.Log(opacity / (1 - opacity)))
	row[i+1] = float32(math.Log(r.Scale.X))
	row[i+2] = float32(math.Log(r.Scale.Y))
	row[i+3] = float32(math.Log(r.Scale.Z))
	row[i+4] = float32(r.Rotation.Real)
	row[i+5] = float32(r.Rotation.Imag)
	row[i+6] = float32(r.Rotation.Jmag)
	row[i+7] = float32(r.Rotation.Kmag)
}
