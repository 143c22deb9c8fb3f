// Package partition divides a splat array into cubic blocks anchored at a scene center and
// packs each block into fixed capacity buckets.
//
// A point belongs to the cell floor((p - center) / blockSize) on every axis, so cell
// boundaries are lower inclusive: a point lying exactly on a face belongs to the cell whose
// lower face it is. Blocks are ordered by cell (k, j, i) ascending; inside a block points keep
// the order they have in the input array.
package partition

import (
	"math"
	"sort"

	"github.com/golang/geo/r3"
	"github.com/pkg/errors"

	"go.viam.com/splatbuffer/splat"
	"go.viam.com/splatbuffer/utils"
)

// Cell is the integer coordinate of a block, in block units from the scene center.
type Cell struct {
	I, J, K int32
}

// less orders cells by k, then j, then i.
func (c Cell) less(o Cell) bool {
	if c.K != o.K {
		return c.K < o.K
	}
	if c.J != o.J {
		return c.J < o.J
	}
	return c.I < o.I
}

// Bucket is a run of Result.Order.
type Bucket struct {
	Start, End int
}

// Len returns the number of points in the bucket.
func (b Bucket) Len() int {
	return b.End - b.Start
}

// Block is the run of Result.Order falling into one cell. Min and Max bound the positions of
// its points.
type Block struct {
	Cell       Cell
	Start, End int
	Min, Max   r3.Vector
	Buckets    []Bucket
}

// Len returns the number of points in the block.
func (b Block) Len() int {
	return b.End - b.Start
}

// Result is the partition of one array. Order lists original indices block by block and bucket
// by bucket, so every bucket is contiguous in Order.
type Result struct {
	Center     r3.Vector
	BlockSize  float64
	BucketSize int
	Order      []int
	Blocks     []Block
}

// CellOf returns the cell containing p.
func CellOf(p, center r3.Vector, blockSize float64) (Cell, error) {
	d := p.Sub(center)
	var out [3]int32
	for i, v := range []float64{d.X, d.Y, d.Z} {
		f := math.Floor(v / blockSize)
		if math.IsNaN(f) || f < math.MinInt32 || f > math.MaxInt32 {
			return Cell{}, utils.NewInvalidArgumentError("point %v is out of range for block size %v", p, blockSize)
		}
		out[i] = int32(f)
	}
	return Cell{I: out[0], J: out[1], K: out[2]}, nil
}

// Partition assigns every record of arr to a block and packs blocks into buckets of at most
// bucketSize points. The result is a pure function of its arguments.
func Partition(arr *splat.Array, center r3.Vector, blockSize float64, bucketSize int) (*Result, error) {
	if blockSize <= 0 || math.IsNaN(blockSize) || math.IsInf(blockSize, 0) {
		return nil, utils.NewInvalidArgumentError("block size must be a positive number, got %v", blockSize)
	}
	if bucketSize <= 0 {
		return nil, utils.NewInvalidArgumentError("bucket size must be positive, got %d", bucketSize)
	}
	for _, v := range []float64{center.X, center.Y, center.Z} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return nil, utils.NewInvalidArgumentError("scene center must be finite, got %v", center)
		}
	}

	members := map[Cell][]int{}
	var err error
	arr.Iterate(func(i int, r splat.Record) bool {
		var c Cell
		c, err = CellOf(r.Position, center, blockSize)
		if err != nil {
			return false
		}
		members[c] = append(members[c], i)
		return true
	})
	if err != nil {
		return nil, err
	}

	cells := make([]Cell, 0, len(members))
	for c := range members {
		cells = append(cells, c)
	}
	sort.Slice(cells, func(a, b int) bool {
		return cells[a].less(cells[b])
	})

	res := &Result{
		Center:     center,
		BlockSize:  blockSize,
		BucketSize: bucketSize,
		Order:      make([]int, 0, arr.Len()),
		Blocks:     make([]Block, 0, len(cells)),
	}
	for _, c := range cells {
		indices := members[c]
		start := len(res.Order)
		res.Order = append(res.Order, indices...)

		meta := splat.NewMetaData()
		for _, i := range indices {
			meta.Merge(arr.At(i).Position)
		}
		block := Block{Cell: c, Start: start, End: len(res.Order), Min: meta.Min, Max: meta.Max}
		for s := block.Start; s < block.End; s += bucketSize {
			block.Buckets = append(block.Buckets, Bucket{Start: s, End: min(s+bucketSize, block.End)})
		}
		res.Blocks = append(res.Blocks, block)
	}
	return res, nil
}

// Len returns the number of partitioned points.
func (res *Result) Len() int {
	return len(res.Order)
}

// BucketCount returns the number of buckets across all blocks.
func (res *Result) BucketCount() int {
	n := 0
	for _, b := range res.Blocks {
		n += len(b.Buckets)
	}
	return n
}

// Reorder returns the records of arr in partition order.
func (res *Result) Reorder(arr *splat.Array) (*splat.Array, error) {
	if arr.Len() != len(res.Order) {
		return nil, errors.Errorf("partition covers %d points, array has %d", len(res.Order), arr.Len())
	}
	return arr.Subset(res.Order)
}

// Validate checks that the partition covers [0, n) exactly once, that blocks and buckets tile
// Order without gaps and that no bucket exceeds capacity. A failure is a programming error.
func (res *Result) Validate(n int) error {
	if len(res.Order) != n {
		return errors.Errorf("partition covers %d points, want %d", len(res.Order), n)
	}
	seen := make([]bool, n)
	for _, i := range res.Order {
		if i < 0 || i >= n {
			return errors.Errorf("partition holds out of range index %d", i)
		}
		if seen[i] {
			return errors.Errorf("partition holds index %d twice", i)
		}
		seen[i] = true
	}

	next := 0
	for bi, b := range res.Blocks {
		if b.Start != next || b.End < b.Start {
			return errors.Errorf("block %d covers [%d,%d), want start %d", bi, b.Start, b.End, next)
		}
		if bi > 0 && !res.Blocks[bi-1].Cell.less(b.Cell) {
			return errors.Errorf("block %d cell %v is not after %v", bi, b.Cell, res.Blocks[bi-1].Cell)
		}
		bucketNext := b.Start
		for ki, k := range b.Buckets {
			if k.Start != bucketNext || k.Len() <= 0 {
				return errors.Errorf("block %d bucket %d covers [%d,%d), want start %d", bi, ki, k.Start, k.End, bucketNext)
			}
			if k.Len() > res.BucketSize {
				return errors.Errorf("block %d bucket %d holds %d points, capacity is %d", bi, ki, k.Len(), res.BucketSize)
			}
			if ki < len(b.Buckets)-1 && k.Len() != res.BucketSize {
				return errors.Errorf("block %d bucket %d is partial but not last", bi, ki)
			}
			bucketNext = k.End
		}
		if bucketNext != b.End {
			return errors.Errorf("block %d buckets end at %d, block ends at %d", bi, bucketNext, b.End)
		}
		next = b.End
	}
	if next != n {
		return errors.Errorf("blocks end at %d, want %d", next, n)
	}
	return nil
}
