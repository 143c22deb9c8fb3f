package splatbuffer

import (
	"encoding/binary"
	"math"

	"github.com/golang/geo/r3"

	"go.viam.com/splatbuffer/partition"
	"go.viam.com/splatbuffer/quantize"
	"go.viam.com/splatbuffer/utils"
)

// Header holds the global settings written once per buffer.
type Header struct {
	CompressionLevel quantize.Level
	SHDegree         int
	SceneCenter      r3.Vector
	BlockSize        float64
	BucketSize       int
}

// Section is one LOD level ready to be laid out: its partition and the compressed blocks in
// partition order.
type Section struct {
	Level     int
	Partition *partition.Result
	Blocks    []quantize.Block
}

// PointCount returns the number of points in the section.
func (s Section) PointCount() int {
	return s.Partition.Len()
}

// Assemble lays out h and sections as one buffer. Sections must have distinct levels in
// ascending order. The output depends on nothing but the arguments.
func Assemble(h Header, sections []Section) ([]byte, error) {
	if err := validate(h, sections); err != nil {
		return nil, err
	}

	size := HeaderSize
	for _, s := range sections {
		size += SectionSize(h.CompressionLevel, h.SHDegree, s.PointCount(), len(s.Partition.Blocks), s.Partition.BucketCount())
	}
	e := encoder{buf: make([]byte, 0, size)}

	e.buf = append(e.buf, Magic...)
	e.u16(VersionMajor)
	e.u16(VersionMinor)
	e.u8(uint8(len(sections)))
	e.u8(uint8(h.CompressionLevel))
	e.u8(uint8(h.SHDegree))
	e.u8(0)
	e.vec(h.SceneCenter)
	e.f32(h.BlockSize)
	e.u32(uint32(h.BucketSize))
	var levels [MaxSections]uint8
	var counts [MaxSections]uint32
	total := 0
	for i, s := range sections {
		levels[i] = uint8(s.Level)
		counts[i] = uint32(s.PointCount())
		total += s.PointCount()
	}
	e.buf = append(e.buf, levels[:]...)
	for _, c := range counts {
		e.u32(c)
	}
	e.u32(uint32(total))
	e.pad(HeaderSize - len(e.buf))

	for _, s := range sections {
		e.section(h, s)
	}
	if len(e.buf) != size {
		return nil, utils.NewInvalidArgumentError("assembled %d bytes, expected %d", len(e.buf), size)
	}
	return e.buf, nil
}

func validate(h Header, sections []Section) error {
	if len(sections) == 0 || len(sections) > MaxSections {
		return utils.NewInvalidArgumentError("a buffer holds between 1 and %d sections, got %d", MaxSections, len(sections))
	}
	if h.CompressionLevel > quantize.MaxLevel {
		return utils.NewInvalidArgumentError("unknown compression level %d", h.CompressionLevel)
	}
	if !validSHDegree(h.SHDegree) {
		return utils.NewInvalidArgumentError("invalid spherical harmonics degree %d", h.SHDegree)
	}
	if h.BucketSize <= 0 || uint64(h.BucketSize) > math.MaxUint32 {
		return utils.NewInvalidArgumentError("invalid bucket size %d", h.BucketSize)
	}
	prev := 0
	for _, s := range sections {
		if err := utils.ValidateLevel(s.Level); err != nil {
			return err
		}
		if s.Level <= prev {
			return utils.NewInvalidArgumentError("section levels must be distinct and ascending, got %d after %d", s.Level, prev)
		}
		prev = s.Level
		if s.Partition == nil || len(s.Blocks) != len(s.Partition.Blocks) {
			return utils.NewInvalidArgumentError("level %d has compressed blocks that do not match its partition", s.Level)
		}
		for bi, b := range s.Blocks {
			pb := s.Partition.Blocks[bi]
			if len(b.Buckets) != len(pb.Buckets) {
				return utils.NewInvalidArgumentError("level %d block %d has %d buckets, partition has %d",
					s.Level, bi, len(b.Buckets), len(pb.Buckets))
			}
			for ki, k := range b.Buckets {
				if k.Count != pb.Buckets[ki].Len() || len(k.Payload) != k.Count*quantize.PointSize(h.CompressionLevel, h.SHDegree) {
					return utils.NewInvalidArgumentError("level %d block %d bucket %d payload does not match its %d points",
						s.Level, bi, ki, pb.Buckets[ki].Len())
				}
			}
		}
	}
	return nil
}

// encoder appends little endian fields.
type encoder struct {
	buf []byte
}

func (e *encoder) u8(v uint8) {
	e.buf = append(e.buf, v)
}

func (e *encoder) u16(v uint16) {
	e.buf = binary.LittleEndian.AppendUint16(e.buf, v)
}

func (e *encoder) u32(v uint32) {
	e.buf = binary.LittleEndian.AppendUint32(e.buf, v)
}

func (e *encoder) i32(v int32) {
	e.u32(uint32(v))
}

func (e *encoder) f32(v float64) {
	e.u32(math.Float32bits(float32(v)))
}

func (e *encoder) vec(v r3.Vector) {
	e.f32(v.X)
	e.f32(v.Y)
	e.f32(v.Z)
}

func (e *encoder) rangeBounds(rs [3]quantize.Range) {
	for _, r := range rs {
		e.u32(math.Float32bits(r.Min))
	}
	for _, r := range rs {
		e.u32(math.Float32bits(r.Max))
	}
}

func (e *encoder) pad(n int) {
	for i := 0; i < n; i++ {
		e.buf = append(e.buf, 0)
	}
}

func (e *encoder) section(h Header, s Section) {
	e.u8(uint8(s.Level))
	e.pad(3)
	e.u32(uint32(s.PointCount()))
	e.u32(uint32(len(s.Partition.Blocks)))
	e.u32(uint32(s.Partition.BucketCount()))

	for bi, pb := range s.Partition.Blocks {
		e.i32(pb.Cell.I)
		e.i32(pb.Cell.J)
		e.i32(pb.Cell.K)
		e.vec(pb.Min)
		e.vec(pb.Max)
		e.u32(uint32(pb.Len()))
		e.u32(uint32(len(pb.Buckets)))

		buckets := s.Blocks[bi].Buckets
		for _, k := range buckets {
			e.u32(uint32(k.Count))
			if !h.CompressionLevel.Quantized() {
				continue
			}
			e.rangeBounds(k.Ranges.Position)
			e.rangeBounds(k.Ranges.Scale)
			if h.SHDegree > 0 {
				e.u32(math.Float32bits(k.Ranges.SH.Min))
				e.u32(math.Float32bits(k.Ranges.SH.Max))
			}
		}
		for _, k := range buckets {
			e.buf = append(e.buf, k.Payload...)
		}
	}
}
