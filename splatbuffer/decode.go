package splatbuffer

import (
	"bytes"
	"encoding/binary"
	"math"

	"github.com/golang/geo/r3"

	"go.viam.com/splatbuffer/partition"
	"go.viam.com/splatbuffer/quantize"
	"go.viam.com/splatbuffer/splat"
	"go.viam.com/splatbuffer/utils"
)

// Decoded is the content of a splat buffer.
type Decoded struct {
	VersionMajor, VersionMinor uint16
	Header                     Header
	TotalPoints                int
	Sections                   []DecodedSection
}

// DecodedSection is one LOD level of a decoded buffer.
type DecodedSection struct {
	Level       int
	PointCount  int
	BucketCount int
	Blocks      []DecodedBlock
}

// DecodedBlock is one block of a decoded section.
type DecodedBlock struct {
	Cell     partition.Cell
	Min, Max r3.Vector
	Buckets  []DecodedBucket
}

// DecodedBucket holds the ranges and decoded records of one bucket.
type DecodedBucket struct {
	Ranges  quantize.Ranges
	Records []splat.Record
}

// Records returns the records of every block and bucket in buffer order.
func (s DecodedSection) Records() []splat.Record {
	out := make([]splat.Record, 0, s.PointCount)
	for _, b := range s.Blocks {
		for _, k := range b.Buckets {
			out = append(out, k.Records...)
		}
	}
	return out
}

// Section returns the section of the given level.
func (d *Decoded) Section(level int) (DecodedSection, bool) {
	for _, s := range d.Sections {
		if s.Level == level {
			return s, true
		}
	}
	return DecodedSection{}, false
}

// Decode parses a buffer produced by Assemble. Buffers without the magic are rejected as an
// unsupported format, other major versions as unsupported versions and anything truncated or
// inconsistent as a parse error.
func Decode(data []byte) (*Decoded, error) {
	if !bytes.HasPrefix(data, []byte(Magic)) {
		return nil, utils.NewUnsupportedFormatError("missing %q magic", Magic)
	}
	d := decoder{buf: data, off: len(Magic)}
	out := &Decoded{}
	out.VersionMajor = d.u16()
	out.VersionMinor = d.u16()
	if d.err != nil {
		return nil, d.err
	}
	if out.VersionMajor != VersionMajor {
		return nil, utils.NewUnsupportedVersionError(out.VersionMajor, out.VersionMinor, VersionMajor)
	}

	sectionCount := int(d.u8())
	out.Header.CompressionLevel = quantize.Level(d.u8())
	out.Header.SHDegree = int(d.u8())
	d.skip(1)
	out.Header.SceneCenter = d.vec()
	out.Header.BlockSize = d.f32()
	out.Header.BucketSize = int(d.u32())
	var levels [MaxSections]int
	var counts [MaxSections]int
	for i := range levels {
		levels[i] = int(d.u8())
	}
	for i := range counts {
		counts[i] = int(d.u32())
	}
	out.TotalPoints = int(d.u32())
	d.skip(HeaderSize - d.off)
	if d.err != nil {
		return nil, d.err
	}
	if sectionCount == 0 || sectionCount > MaxSections {
		return nil, utils.NewParseError("header declares %d sections", sectionCount)
	}
	if out.Header.CompressionLevel > quantize.MaxLevel {
		return nil, utils.NewParseError("header declares unknown compression level %d", out.Header.CompressionLevel)
	}
	if !validSHDegree(out.Header.SHDegree) {
		return nil, utils.NewParseError("header declares spherical harmonics degree %d", out.Header.SHDegree)
	}

	total := 0
	for i := 0; i < sectionCount; i++ {
		s, err := d.section(out.Header)
		if err != nil {
			return nil, err
		}
		if s.Level != levels[i] || s.PointCount != counts[i] {
			return nil, utils.NewParseError("section %d is level %d with %d points, header says level %d with %d points",
				i, s.Level, s.PointCount, levels[i], counts[i])
		}
		total += s.PointCount
		out.Sections = append(out.Sections, s)
	}
	if total != out.TotalPoints {
		return nil, utils.NewParseError("sections hold %d points, header says %d", total, out.TotalPoints)
	}
	if d.off != len(data) {
		return nil, utils.NewParseError("%d trailing bytes after the last section", len(data)-d.off)
	}
	return out, nil
}

// decoder reads little endian fields and remembers the first overrun.
type decoder struct {
	buf []byte
	off int
	err error
}

// take returns the next n bytes. After an overrun it returns zeroed scratch space large
// enough for any fixed width field.
func (d *decoder) take(n int) []byte {
	if d.err == nil && (n < 0 || d.off+n > len(d.buf)) {
		d.err = utils.NewParseError("buffer truncated at byte %d, need %d more", d.off, n)
	}
	if d.err != nil {
		return make([]byte, 8)
	}
	b := d.buf[d.off : d.off+n]
	d.off += n
	return b
}

func (d *decoder) skip(n int) {
	d.take(n)
}

func (d *decoder) u8() uint8 {
	return d.take(1)[0]
}

func (d *decoder) u16() uint16 {
	return binary.LittleEndian.Uint16(d.take(2))
}

func (d *decoder) u32() uint32 {
	return binary.LittleEndian.Uint32(d.take(4))
}

func (d *decoder) i32() int32 {
	return int32(d.u32())
}

func (d *decoder) f32raw() float32 {
	return math.Float32frombits(d.u32())
}

func (d *decoder) f32() float64 {
	return float64(d.f32raw())
}

func (d *decoder) vec() r3.Vector {
	return r3.Vector{X: d.f32(), Y: d.f32(), Z: d.f32()}
}

func (d *decoder) rangeBounds() [3]quantize.Range {
	var out [3]quantize.Range
	for i := range out {
		out[i].Min = d.f32raw()
	}
	for i := range out {
		out[i].Max = d.f32raw()
	}
	return out
}

func (d *decoder) section(h Header) (DecodedSection, error) {
	s := DecodedSection{Level: int(d.u8())}
	d.skip(3)
	s.PointCount = int(d.u32())
	blockCount := int(d.u32())
	s.BucketCount = int(d.u32())
	if d.err != nil {
		return s, d.err
	}
	if err := utils.ValidateLevel(s.Level); err != nil {
		return s, utils.NewParseError("section level: %v", err)
	}
	if blockCount > len(d.buf)/BlockHeaderSize {
		return s, utils.NewParseError("level %d declares %d blocks", s.Level, blockCount)
	}

	pointSize := quantize.PointSize(h.CompressionLevel, h.SHDegree)
	points, buckets := 0, 0
	for bi := 0; bi < blockCount; bi++ {
		b := DecodedBlock{Cell: partition.Cell{I: d.i32(), J: d.i32(), K: d.i32()}}
		b.Min = d.vec()
		b.Max = d.vec()
		blockPoints := int(d.u32())
		bucketCount := int(d.u32())
		if d.err != nil {
			return s, d.err
		}
		if bucketCount > len(d.buf)/4 {
			return s, utils.NewParseError("level %d block %d declares %d buckets", s.Level, bi, bucketCount)
		}

		counts := make([]int, bucketCount)
		b.Buckets = make([]DecodedBucket, bucketCount)
		sum := 0
		for ki := range b.Buckets {
			counts[ki] = int(d.u32())
			sum += counts[ki]
			if !h.CompressionLevel.Quantized() {
				continue
			}
			b.Buckets[ki].Ranges.Position = d.rangeBounds()
			b.Buckets[ki].Ranges.Scale = d.rangeBounds()
			if h.SHDegree > 0 {
				b.Buckets[ki].Ranges.SH = quantize.Range{Min: d.f32raw(), Max: d.f32raw()}
			}
		}
		if d.err != nil {
			return s, d.err
		}
		if sum != blockPoints {
			return s, utils.NewParseError("level %d block %d buckets hold %d points, block says %d", s.Level, bi, sum, blockPoints)
		}

		for ki, n := range counts {
			payload := d.take(n * pointSize)
			if d.err != nil {
				return s, d.err
			}
			b.Buckets[ki].Records = make([]splat.Record, 0, n)
			for p := 0; p < n; p++ {
				r, err := quantize.DecodePoint(payload[p*pointSize:], b.Buckets[ki].Ranges, h.CompressionLevel, h.SHDegree)
				if err != nil {
					return s, err
				}
				b.Buckets[ki].Records = append(b.Buckets[ki].Records, r)
			}
		}
		points += blockPoints
		buckets += bucketCount
		s.Blocks = append(s.Blocks, b)
	}
	if points != s.PointCount || buckets != s.BucketCount {
		return s, utils.NewParseError("level %d blocks hold %d points in %d buckets, section says %d in %d",
			s.Level, points, buckets, s.PointCount, s.BucketCount)
	}
	return s, nil
}
