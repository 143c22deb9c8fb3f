package quantize

import (
	"encoding/binary"
	"image/color"
	"math"

	"github.com/golang/geo/r3"
	"gonum.org/v1/gonum/num/quat"

	"go.viam.com/splatbuffer/splat"
	"go.viam.com/splatbuffer/utils"
)

// Ranges holds the per bucket ranges a quantized payload is decoded with. SH is unused when
// the spherical harmonics degree is 0.
type Ranges struct {
	Position [3]Range
	Scale    [3]Range
	SH       Range
}

// ComputeRanges returns the ranges bounding every record. Values are converted to float32
// first so the ranges bound exactly what is stored.
func ComputeRanges(records []splat.Record) Ranges {
	if len(records) == 0 {
		return Ranges{}
	}
	out := Ranges{SH: EmptyRange()}
	for i := range out.Position {
		out.Position[i] = EmptyRange()
		out.Scale[i] = EmptyRange()
	}
	for _, r := range records {
		for axis, v := range axes(r.Position) {
			out.Position[axis].Extend(float32(v))
		}
		for axis, v := range axes(r.Scale) {
			out.Scale[axis].Extend(float32(v))
		}
		for _, v := range r.SH {
			out.SH.Extend(v)
		}
	}
	if out.SH.Min > out.SH.Max {
		out.SH = Range{}
	}
	return out
}

// Contains reports whether every channel of r lies inside the ranges.
func (rs Ranges) Contains(r splat.Record) bool {
	for axis, v := range axes(r.Position) {
		if !rs.Position[axis].Contains(float32(v)) {
			return false
		}
	}
	for axis, v := range axes(r.Scale) {
		if !rs.Scale[axis].Contains(float32(v)) {
			return false
		}
	}
	for _, v := range r.SH {
		if !rs.SH.Contains(v) {
			return false
		}
	}
	return true
}

// PointSize returns the number of payload bytes per point.
func PointSize(level Level, shDegree int) int {
	pos, scale, rot, col, sh := level.Bits()
	return int(3*pos+3*scale+4*rot+4*col)/8 + splat.SHCoefficientCount(shDegree)*int(sh)/8
}

func axes(v r3.Vector) [3]float64 {
	return [3]float64{v.X, v.Y, v.Z}
}

func rotationParts(q quat.Number) [4]float64 {
	return [4]float64{q.Real, q.Imag, q.Jmag, q.Kmag}
}

// colorParts returns r, g, b and opacity in [0, 1].
func colorParts(r splat.Record) [4]float64 {
	return [4]float64{float64(r.Color.R) / 255, float64(r.Color.G) / 255, float64(r.Color.B) / 255, r.Opacity}
}

// writer appends little endian values of a fixed width.
type writer struct {
	buf []byte
}

func (w *writer) float(v float64) {
	w.buf = binary.LittleEndian.AppendUint32(w.buf, math.Float32bits(float32(v)))
}

func (w *writer) code(v float64, r Range, bits uint) {
	// values are stored at float32 precision, so they are quantized at that precision too.
	c := Quantize(float64(float32(v)), r, bits)
	switch bits {
	case 8:
		w.buf = append(w.buf, uint8(c))
	case 16:
		w.buf = binary.LittleEndian.AppendUint16(w.buf, uint16(c))
	default:
		w.buf = binary.LittleEndian.AppendUint32(w.buf, c)
	}
}

func (w *writer) value(v float64, r Range, bits uint) {
	if bits == 32 {
		w.float(v)
		return
	}
	w.code(v, r, bits)
}

// EncodePoint appends the payload of r to dst.
func EncodePoint(dst []byte, r splat.Record, ranges Ranges, level Level) []byte {
	posBits, scaleBits, rotBits, colBits, shBits := level.Bits()
	w := writer{buf: dst}
	for axis, v := range axes(r.Position) {
		w.value(v, ranges.Position[axis], posBits)
	}
	for axis, v := range axes(r.Scale) {
		w.value(v, ranges.Scale[axis], scaleBits)
	}
	for _, v := range rotationParts(r.Rotation) {
		w.value(v, RotationRange, rotBits)
	}
	for _, v := range colorParts(r) {
		w.value(v, ColorRange, colBits)
	}
	for _, v := range r.SH {
		w.value(float64(v), ranges.SH, shBits)
	}
	return w.buf
}

// reader consumes little endian values of a fixed width.
type reader struct {
	buf []byte
	off int
}

func (rd *reader) value(r Range, bits uint) float64 {
	switch bits {
	case 8:
		c := rd.buf[rd.off]
		rd.off++
		return Dequantize(uint32(c), r, bits)
	case 16:
		c := binary.LittleEndian.Uint16(rd.buf[rd.off:])
		rd.off += 2
		return Dequantize(uint32(c), r, bits)
	default:
		v := math.Float32frombits(binary.LittleEndian.Uint32(rd.buf[rd.off:]))
		rd.off += 4
		return float64(v)
	}
}

// DecodePoint reads one point payload written by EncodePoint.
func DecodePoint(payload []byte, ranges Ranges, level Level, shDegree int) (splat.Record, error) {
	if size := PointSize(level, shDegree); len(payload) < size {
		return splat.Record{}, utils.NewParseError("point payload has %d bytes, want %d", len(payload), size)
	}
	posBits, scaleBits, rotBits, colBits, shBits := level.Bits()
	rd := reader{buf: payload}

	var pos, scale [3]float64
	for axis := range pos {
		pos[axis] = rd.value(ranges.Position[axis], posBits)
	}
	for axis := range scale {
		scale[axis] = rd.value(ranges.Scale[axis], scaleBits)
	}
	var rot, col [4]float64
	for i := range rot {
		rot[i] = rd.value(RotationRange, rotBits)
	}
	for i := range col {
		col[i] = rd.value(ColorRange, colBits)
	}
	var sh []float32
	if n := splat.SHCoefficientCount(shDegree); n > 0 {
		sh = make([]float32, n)
		for i := range sh {
			sh[i] = float32(rd.value(ranges.SH, shBits))
		}
	}

	c := color.NRGBA{R: unitByte(col[0]), G: unitByte(col[1]), B: unitByte(col[2])}
	return splat.NewRecord(
		r3.Vector{X: pos[0], Y: pos[1], Z: pos[2]},
		r3.Vector{X: scale[0], Y: scale[1], Z: scale[2]},
		quat.Number{Real: rot[0], Imag: rot[1], Jmag: rot[2], Kmag: rot[3]},
		c, col[3], sh,
	), nil
}

func unitByte(v float64) uint8 {
	return uint8(math.Round(math.Min(math.Max(v, 0), 1) * 255))
}
