package pipeline

import (
	"context"
	"fmt"

	"github.com/docker/go-units"
	"github.com/pkg/errors"
	"github.com/samber/lo"
	"golang.org/x/sync/errgroup"

	"go.viam.com/splatbuffer/logging"
	"go.viam.com/splatbuffer/lod"
	"go.viam.com/splatbuffer/partition"
	"go.viam.com/splatbuffer/quantize"
	"go.viam.com/splatbuffer/splat"
	"go.viam.com/splatbuffer/splatbuffer"
)

// LevelStats describes what happened to one level.
type LevelStats struct {
	Level int
	// Reduced is the point count after LOD reduction, Kept after alpha filtering.
	Reduced int
	Kept    int
	Blocks  int
	Buckets int
	Bytes   int
}

// Result is the assembled buffer together with per level statistics in level order.
type Result struct {
	Config Config
	Buffer []byte
	Stats  []LevelStats
}

// Generate converts arr into a splat buffer. cfg is validated and resolved against arr first.
// The output is a pure function of arr and cfg: levels may run concurrently but each writes
// only its own slot, and the buffer is assembled once all of them succeed. The first failing
// level cancels the others.
func Generate(ctx context.Context, arr *splat.Array, cfg Config, logger logging.Logger) (*Result, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	cfg = cfg.Resolve(arr)
	level, err := quantize.ParseLevel(cfg.CompressionLevel)
	if err != nil {
		return nil, err
	}
	if arr.SHDegree() > cfg.SHDegree {
		if arr, err = dropSH(arr, cfg.SHDegree); err != nil {
			return nil, err
		}
	}
	logger.Infow("generating splat buffer",
		"points", arr.Len(),
		"levels", cfg.Levels,
		"compression", level.String(),
		"shDegree", cfg.SHDegree,
		"sceneCenter", *cfg.SceneCenter,
	)

	sections := make([]splatbuffer.Section, len(cfg.Levels))
	stats := make([]LevelStats, len(cfg.Levels))
	process := func(ctx context.Context, i int) error {
		lodLevel := cfg.Levels[i]
		section, st, err := generateLevel(ctx, arr, lodLevel, level, cfg, logger.Sublogger(fmt.Sprintf("lod.%d", lodLevel)))
		if err != nil {
			return errors.Wrapf(err, "level %d", lodLevel)
		}
		sections[i], stats[i] = section, st
		return nil
	}

	if cfg.Parallel && len(cfg.Levels) > 1 {
		g, gctx := errgroup.WithContext(ctx)
		for i := range cfg.Levels {
			i := i
			g.Go(func() error {
				return process(gctx, i)
			})
		}
		if err := g.Wait(); err != nil {
			return nil, err
		}
	} else {
		for i := range cfg.Levels {
			if err := process(ctx, i); err != nil {
				return nil, err
			}
		}
	}

	header := splatbuffer.Header{
		CompressionLevel: level,
		SHDegree:         cfg.SHDegree,
		SceneCenter:      *cfg.SceneCenter,
		BlockSize:        cfg.BlockSize,
		BucketSize:       cfg.BucketSize,
	}
	buf, err := splatbuffer.Assemble(header, sections)
	if err != nil {
		return nil, err
	}
	logger.Infow("assembled splat buffer",
		"size", units.HumanSize(float64(len(buf))),
		"points", lo.SumBy(stats, func(s LevelStats) int { return s.Kept }),
	)
	return &Result{Config: cfg, Buffer: buf, Stats: stats}, nil
}

func generateLevel(
	ctx context.Context,
	arr *splat.Array,
	lodLevel int,
	level quantize.Level,
	cfg Config,
	logger logging.Logger,
) (splatbuffer.Section, LevelStats, error) {
	st := LevelStats{Level: lodLevel}

	reduced, err := lod.ReduceWithOptions(arr, lodLevel, lod.Options{BaseVoxelSize: cfg.BaseVoxelSize})
	if err != nil {
		return splatbuffer.Section{}, st, err
	}
	if reduced, err = lod.Scale(reduced, lodLevel, cfg.LODScale); err != nil {
		return splatbuffer.Section{}, st, err
	}
	st.Reduced = reduced.Len()

	kept, _, err := splat.FilterAlpha(reduced, cfg.AlphaThreshold)
	if err != nil {
		return splatbuffer.Section{}, st, err
	}
	st.Kept = kept.Len()
	if err := ctx.Err(); err != nil {
		return splatbuffer.Section{}, st, err
	}

	part, err := partition.Partition(kept, *cfg.SceneCenter, cfg.BlockSize, cfg.BucketSize)
	if err != nil {
		return splatbuffer.Section{}, st, err
	}
	if err := part.Validate(kept.Len()); err != nil {
		return splatbuffer.Section{}, st, err
	}
	st.Blocks = len(part.Blocks)
	st.Buckets = part.BucketCount()

	blocks, err := quantize.CompressPartition(ctx, kept, part, level, cfg.SHDegree)
	if err != nil {
		return splatbuffer.Section{}, st, err
	}
	st.Bytes = splatbuffer.SectionSize(level, cfg.SHDegree, st.Kept, st.Blocks, st.Buckets)

	logger.CDebugw(ctx, "level ready",
		"reduced", st.Reduced,
		"kept", st.Kept,
		"blocks", st.Blocks,
		"buckets", st.Buckets,
		"size", units.HumanSize(float64(st.Bytes)),
	)
	return splatbuffer.Section{Level: lodLevel, Partition: part, Blocks: blocks}, st, nil
}

// dropSH truncates every record's spherical harmonics to degree. Coefficients are ordered by
// band, so the lower degrees are a prefix.
func dropSH(arr *splat.Array, degree int) (*splat.Array, error) {
	out, err := splat.NewArray(degree, arr.Len())
	if err != nil {
		return nil, err
	}
	n := splat.SHCoefficientCount(degree)
	arr.Iterate(func(_ int, r splat.Record) bool {
		r = r.Clone()
		if n == 0 {
			r.SH = nil
		} else {
			r.SH = r.SH[:n]
		}
		err = out.Append(r)
		return err == nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}
