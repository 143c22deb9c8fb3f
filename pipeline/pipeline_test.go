package pipeline

import (
	"context"
	"testing"

	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
	"go.viam.com/test"

	"go.viam.com/splatbuffer/logging"
	"go.viam.com/splatbuffer/lod"
	"go.viam.com/splatbuffer/splat"
	"go.viam.com/splatbuffer/splatbuffer"
	"go.viam.com/splatbuffer/utils"
)

func TestConfigValidate(t *testing.T) {
	test.That(t, DefaultConfig().Validate(), test.ShouldBeNil)

	for _, tc := range []struct {
		name   string
		mutate func(*Config)
		kind   error
	}{
		{"no levels", func(c *Config) { c.Levels = nil }, utils.ErrInvalidArgument},
		{"level too high", func(c *Config) { c.Levels = []int{5} }, utils.ErrInvalidLevel},
		{"level zero", func(c *Config) { c.Levels = []int{0, 4} }, utils.ErrInvalidLevel},
		{"compression", func(c *Config) { c.CompressionLevel = 3 }, utils.ErrInvalidArgument},
		{"alpha", func(c *Config) { c.AlphaThreshold = 1.5 }, utils.ErrInvalidArgument},
		{"block size", func(c *Config) { c.BlockSize = 0 }, utils.ErrInvalidArgument},
		{"bucket size", func(c *Config) { c.BucketSize = -1 }, utils.ErrInvalidArgument},
		{"sh degree", func(c *Config) { c.SHDegree = 4 }, utils.ErrInvalidArgument},
		{"voxel size", func(c *Config) { c.BaseVoxelSize = -1 }, utils.ErrInvalidArgument},
		{"lod scale", func(c *Config) { c.LODScale = lod.Factors{2: 0} }, utils.ErrInvalidArgument},
	} {
		t.Run(tc.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tc.mutate(&cfg)
			test.That(t, errors.Is(cfg.Validate(), tc.kind), test.ShouldBeTrue)
		})
	}
}

func TestConfigResolve(t *testing.T) {
	arr := splat.MakeTestArray(100, 1, 4, 1)
	cfg := DefaultConfig()
	cfg.Levels = []int{3, 1, 3}
	cfg.SHDegree = 3
	resolved := cfg.Resolve(arr)
	test.That(t, resolved.Levels, test.ShouldResemble, []int{1, 3})
	test.That(t, cfg.Levels, test.ShouldResemble, []int{3, 1, 3})
	test.That(t, resolved.SHDegree, test.ShouldEqual, 1)
	test.That(t, *resolved.SceneCenter, test.ShouldResemble, arr.MetaData().Center())
	test.That(t, cfg.SceneCenter, test.ShouldBeNil)

	center := r3.Vector{X: 1, Y: 2, Z: 3}
	cfg.SceneCenter = &center
	resolved = cfg.Resolve(arr)
	test.That(t, *resolved.SceneCenter, test.ShouldResemble, center)
	test.That(t, resolved.SceneCenter, test.ShouldNotEqual, &center)
}

func TestGenerateEndToEnd(t *testing.T) {
	logger, logs := logging.NewObservedTestLogger(t)
	arr := splat.MakeTestArray(1000, 0, 8, 42)

	cfg := DefaultConfig()
	cfg.Levels = []int{4}
	cfg.CompressionLevel = 1
	cfg.AlphaThreshold = 0.01
	cfg.BlockSize = 5.0
	cfg.BucketSize = 256
	cfg.SHDegree = 0

	res, err := Generate(context.Background(), arr, cfg, logger)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, len(res.Stats), test.ShouldEqual, 1)
	// opacities cycle through i%100/100, so 0.00 and 0.01 are dropped from every hundred.
	test.That(t, res.Stats[0].Kept, test.ShouldEqual, 980)
	test.That(t, res.Stats[0].Reduced, test.ShouldEqual, 1000)

	decoded, err := splatbuffer.Decode(res.Buffer)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, len(decoded.Sections), test.ShouldEqual, 1)
	test.That(t, decoded.TotalPoints, test.ShouldEqual, 980)
	test.That(t, int(decoded.Header.CompressionLevel), test.ShouldEqual, 1)
	test.That(t, decoded.Header.BucketSize, test.ShouldEqual, 256)

	s := decoded.Sections[0]
	test.That(t, s.Level, test.ShouldEqual, 4)
	test.That(t, s.PointCount, test.ShouldEqual, 980)
	buckets := 0
	for _, b := range s.Blocks {
		points := 0
		for _, k := range b.Buckets {
			points += len(k.Records)
			test.That(t, len(k.Records), test.ShouldBeLessThanOrEqualTo, 256)
		}
		test.That(t, len(b.Buckets), test.ShouldEqual, (points+255)/256)
		buckets += len(b.Buckets)
	}
	test.That(t, buckets, test.ShouldEqual, res.Stats[0].Buckets)
	test.That(t, len(res.Buffer), test.ShouldEqual, splatbuffer.HeaderSize+res.Stats[0].Bytes)
	for _, r := range s.Records() {
		test.That(t, r.Opacity, test.ShouldBeGreaterThan, 0.01)
	}

	test.That(t, logs.FilterMessage("assembled splat buffer").Len(), test.ShouldEqual, 1)
}

func TestGenerateDeterministic(t *testing.T) {
	logger := logging.NewTestLogger(t)
	arr := splat.MakeTestArray(3000, 1, 12, 9)

	cfg := DefaultConfig()
	cfg.Levels = []int{1, 2, 3, 4}
	cfg.CompressionLevel = 2
	cfg.SHDegree = 1
	cfg.BucketSize = 64

	first, err := Generate(context.Background(), arr, cfg, logger)
	test.That(t, err, test.ShouldBeNil)
	second, err := Generate(context.Background(), arr, cfg, logger)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, second.Buffer, test.ShouldResemble, first.Buffer)

	cfg.Parallel = false
	sequential, err := Generate(context.Background(), arr, cfg, logger)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, sequential.Buffer, test.ShouldResemble, first.Buffer)
}

func TestGenerateMonotone(t *testing.T) {
	logger := logging.NewTestLogger(t)
	arr := splat.MakeTestArray(4*256*2, 0, 10, 5)

	cfg := DefaultConfig()
	cfg.Levels = []int{4, 3, 2, 1}
	res, err := Generate(context.Background(), arr, cfg, logger)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, len(res.Stats), test.ShouldEqual, 4)
	for i, st := range res.Stats {
		test.That(t, st.Level, test.ShouldEqual, i+1)
		if i > 0 {
			test.That(t, res.Stats[i-1].Reduced, test.ShouldBeLessThanOrEqualTo, st.Reduced)
		}
	}

	decoded, err := splatbuffer.Decode(res.Buffer)
	test.That(t, err, test.ShouldBeNil)
	for i, s := range decoded.Sections {
		test.That(t, s.Level, test.ShouldEqual, i+1)
		test.That(t, s.PointCount, test.ShouldEqual, res.Stats[i].Kept)
	}

	table := StatsTable(res.Stats)
	test.That(t, table, test.ShouldContainSubstring, "LOD")
	test.That(t, table, test.ShouldContainSubstring, "TOTAL")
}

func TestGenerateSHAndScale(t *testing.T) {
	logger := logging.NewTestLogger(t)
	arr := splat.MakeTestArray(50, 2, 2, 13)

	cfg := DefaultConfig()
	cfg.SHDegree = 1
	cfg.LODScale = lod.Factors{4: 2}
	res, err := Generate(context.Background(), arr, cfg, logger)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, res.Config.SHDegree, test.ShouldEqual, 1)

	decoded, err := splatbuffer.Decode(res.Buffer)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, decoded.Header.SHDegree, test.ShouldEqual, 1)

	s := decoded.Sections[0]
	records := s.Records()
	byPosition := map[r3.Vector]splat.Record{}
	for _, r := range records {
		test.That(t, len(r.SH), test.ShouldEqual, 9)
		byPosition[r.Position] = r
	}
	found := 0
	arr.Iterate(func(_ int, want splat.Record) bool {
		pos := r3.Vector{X: float64(float32(want.Position.X)), Y: float64(float32(want.Position.Y)), Z: float64(float32(want.Position.Z))}
		got, ok := byPosition[pos]
		if !ok {
			return true
		}
		found++
		test.That(t, got.Scale.X, test.ShouldAlmostEqual, 2*want.Scale.X, 1e-6)
		test.That(t, got.SH[4], test.ShouldEqual, want.SH[4])
		return true
	})
	test.That(t, found, test.ShouldEqual, len(records))
}

func TestGenerateErrors(t *testing.T) {
	logger := logging.NewTestLogger(t)
	arr := splat.MakeTestArray(10, 0, 1, 1)

	cfg := DefaultConfig()
	cfg.Levels = []int{5}
	_, err := Generate(context.Background(), arr, cfg, logger)
	test.That(t, errors.Is(err, utils.ErrInvalidLevel), test.ShouldBeTrue)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	cfg = DefaultConfig()
	cfg.Levels = []int{1, 4}
	_, err = Generate(ctx, arr, cfg, logger)
	test.That(t, errors.Is(err, context.Canceled), test.ShouldBeTrue)

	cfg.AlphaThreshold = 1
	res, err := Generate(context.Background(), arr, cfg, logger)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, res.Stats[0].Kept, test.ShouldEqual, 0)
	decoded, err := splatbuffer.Decode(res.Buffer)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, decoded.TotalPoints, test.ShouldEqual, 0)
}
