// Package splatbuffer assembles partitioned, quantized LOD sections into one binary splat
// buffer, decodes such buffers and writes them to disk.
//
// Layout version 1.0. Every integer and float is little endian; floats are IEEE-754 float32.
//
// Global header, HeaderSize bytes:
//
//	offset size
//	0      4    magic "SPLB"
//	4      2    version major
//	6      2    version minor
//	8      1    LOD section count
//	9      1    compression level
//	10     1    spherical harmonics degree
//	11     1    reserved
//	12     12   scene center x, y, z
//	24     4    block size
//	28     4    bucket size
//	32     4    LOD level of each section, unused slots are 0
//	36     16   point count of each section, unused slots are 0
//	52     4    total point count
//	56     8    reserved
//
// Then one section per LOD level in ascending level order. A section starts with a
// SectionHeaderSize byte header:
//
//	0      1    LOD level
//	1      3    reserved
//	4      4    point count
//	8      4    block count
//	12     4    bucket count
//
// followed by its blocks in partition order. A block is a BlockHeaderSize byte header:
//
//	0      12   cell i, j, k as int32
//	12     12   bounding box min x, y, z
//	24     12   bounding box max x, y, z
//	36     4    point count
//	40     4    bucket count
//
// then the bucket table, one entry per bucket: the bucket point count as uint32 and, for
// compression levels above 0, the position min x, y, z, position max x, y, z, scale min x, y,
// z and scale max x, y, z, plus the spherical harmonics min and max when the degree is above 0.
// The block payload follows the table: every point of the block, bucket-major and point-minor,
// each encoded as described by package quantize.
package splatbuffer

import (
	"go.viam.com/splatbuffer/quantize"
	"go.viam.com/splatbuffer/splat"
)

// Magic opens every splat buffer.
const Magic = "SPLB"

// Version of the layout written by Assemble. Decode accepts any minor version of VersionMajor.
const (
	VersionMajor uint16 = 1
	VersionMinor uint16 = 0
)

// Fixed sizes of the layout.
const (
	HeaderSize        = 64
	SectionHeaderSize = 16
	BlockHeaderSize   = 44
	// MaxSections is the number of LOD slots in the global header.
	MaxSections = 4
)

// BucketEntrySize returns the size of one bucket table entry.
func BucketEntrySize(level quantize.Level, shDegree int) int {
	if !level.Quantized() {
		return 4
	}
	size := 4 + 4*12
	if shDegree > 0 {
		size += 8
	}
	return size
}

// SectionSize returns the number of bytes a section with the given counts occupies.
func SectionSize(level quantize.Level, shDegree, points, blocks, buckets int) int {
	return SectionHeaderSize +
		blocks*BlockHeaderSize +
		buckets*BucketEntrySize(level, shDegree) +
		points*quantize.PointSize(level, shDegree)
}

// validSHDegree reports whether degree fits the header.
func validSHDegree(degree int) bool {
	return splat.ValidateSHDegree(degree) == nil
}
