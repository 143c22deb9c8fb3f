package quantize

import (
	"context"

	"github.com/pkg/errors"

	"go.viam.com/splatbuffer/partition"
	"go.viam.com/splatbuffer/splat"
	"go.viam.com/splatbuffer/utils"
)

// Bucket is the compressed form of one partition bucket. Ranges is zero for raw levels.
type Bucket struct {
	Count   int
	Ranges  Ranges
	Payload []byte
}

// Block is the compressed form of one partition block, buckets in partition order.
type Block struct {
	Buckets []Bucket
}

// CompressBucket quantizes records at level. The payload holds the points in order.
func CompressBucket(records []splat.Record, level Level, shDegree int) (Bucket, error) {
	want := splat.SHCoefficientCount(shDegree)
	out := Bucket{Count: len(records)}
	if level.Quantized() {
		out.Ranges = ComputeRanges(records)
	}
	out.Payload = make([]byte, 0, len(records)*PointSize(level, shDegree))
	for i, r := range records {
		if len(r.SH) != want {
			return Bucket{}, errors.Errorf("record %d has %d spherical harmonic coefficients, want %d", i, len(r.SH), want)
		}
		out.Payload = EncodePoint(out.Payload, r, out.Ranges, level)
	}
	return out, nil
}

// CompressPartition quantizes every bucket of part. Blocks are compressed in parallel and
// returned in partition order; the first failing block in that order decides the error.
func CompressPartition(ctx context.Context, arr *splat.Array, part *partition.Result, level Level, shDegree int) ([]Block, error) {
	if len(part.Order) != arr.Len() {
		return nil, errors.Errorf("partition covers %d points, array has %d", len(part.Order), arr.Len())
	}
	out := make([]Block, len(part.Blocks))
	errs := make([]error, len(part.Blocks))
	err := utils.GroupWorkParallel(
		ctx,
		len(part.Blocks),
		nil,
		func(groupNum, groupSize, from, to int) (utils.MemberWorkFunc, utils.GroupWorkDoneFunc) {
			return func(memberNum, workNum int) {
				out[workNum], errs[workNum] = compressBlock(arr, part, part.Blocks[workNum], level, shDegree)
			}, nil
		},
	)
	if err != nil {
		return nil, err
	}
	for i, err := range errs {
		if err != nil {
			return nil, errors.Wrapf(err, "block %d", i)
		}
	}
	return out, nil
}

func compressBlock(arr *splat.Array, part *partition.Result, b partition.Block, level Level, shDegree int) (Block, error) {
	out := Block{Buckets: make([]Bucket, 0, len(b.Buckets))}
	records := make([]splat.Record, 0, part.BucketSize)
	for _, k := range b.Buckets {
		records = records[:0]
		for _, i := range part.Order[k.Start:k.End] {
			records = append(records, arr.At(i))
		}
		bucket, err := CompressBucket(records, level, shDegree)
		if err != nil {
			return Block{}, err
		}
		out.Buckets = append(out.Buckets, bucket)
	}
	return out, nil
}
