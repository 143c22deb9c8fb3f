// Package pipeline turns a parsed splat array into a splat buffer: every requested level of
// detail is reduced, scaled, alpha filtered, partitioned and quantized, then all levels are
// assembled into one buffer.
package pipeline

import (
	"math"
	"sort"

	"github.com/golang/geo/r3"
	"github.com/samber/lo"

	"go.viam.com/splatbuffer/lod"
	"go.viam.com/splatbuffer/quantize"
	"go.viam.com/splatbuffer/splat"
	"go.viam.com/splatbuffer/utils"
)

// Defaults applied by DefaultConfig.
const (
	DefaultBlockSize  = 5.0
	DefaultBucketSize = 256
)

// Config is every setting of a conversion. It is built once at the boundary, resolved against
// the input with Resolve and then only read.
type Config struct {
	// Levels are the LOD levels to produce, each in [1, 4].
	Levels []int `json:"levels" mapstructure:"levels"`
	// CompressionLevel is 0 (raw floats), 1 or 2.
	CompressionLevel int `json:"compression_level" mapstructure:"compression_level"`
	// AlphaThreshold drops records whose opacity is not strictly greater than it.
	AlphaThreshold float64 `json:"alpha_threshold" mapstructure:"alpha_threshold"`
	// SceneCenter anchors the block grid. Nil means the center of the input bounds.
	SceneCenter *r3.Vector `json:"scene_center,omitempty" mapstructure:"scene_center"`
	BlockSize   float64    `json:"block_size" mapstructure:"block_size"`
	BucketSize  int        `json:"bucket_size" mapstructure:"bucket_size"`
	SHDegree    int        `json:"sh_degree" mapstructure:"sh_degree"`
	// LODScale multiplies record scales per level. Missing levels are left as is.
	LODScale lod.Factors `json:"lod_scale,omitempty" mapstructure:"lod_scale"`
	// BaseVoxelSize overrides the voxel edge of the LOD reducer. Zero derives it from the bounds.
	BaseVoxelSize float64 `json:"base_voxel_size" mapstructure:"base_voxel_size"`
	// Parallel processes levels concurrently.
	Parallel bool `json:"parallel" mapstructure:"parallel"`
}

// DefaultConfig returns the configuration used when nothing is specified: full detail only,
// raw floats, no alpha filtering, 5 unit blocks of 256 point buckets and no spherical
// harmonics.
func DefaultConfig() Config {
	return Config{
		Levels:     []int{utils.MaxLODLevel},
		BlockSize:  DefaultBlockSize,
		BucketSize: DefaultBucketSize,
		Parallel:   true,
	}
}

// Validate checks every field, reporting the first problem.
func (cfg Config) Validate() error {
	if len(cfg.Levels) == 0 {
		return utils.NewInvalidArgumentError("at least one LOD level is required")
	}
	for _, level := range cfg.Levels {
		if err := utils.ValidateLevel(level); err != nil {
			return err
		}
	}
	if _, err := quantize.ParseLevel(cfg.CompressionLevel); err != nil {
		return err
	}
	if math.IsNaN(cfg.AlphaThreshold) || cfg.AlphaThreshold < 0 || cfg.AlphaThreshold > 1 {
		return utils.NewInvalidArgumentError("alpha threshold must be between 0 and 1, got %v", cfg.AlphaThreshold)
	}
	if cfg.SceneCenter != nil {
		for _, v := range []float64{cfg.SceneCenter.X, cfg.SceneCenter.Y, cfg.SceneCenter.Z} {
			if math.IsNaN(v) || math.IsInf(v, 0) {
				return utils.NewInvalidArgumentError("scene center must be finite, got %v", *cfg.SceneCenter)
			}
		}
	}
	if cfg.BlockSize <= 0 || math.IsNaN(cfg.BlockSize) || math.IsInf(cfg.BlockSize, 0) {
		return utils.NewInvalidArgumentError("block size must be a positive number, got %v", cfg.BlockSize)
	}
	if cfg.BucketSize <= 0 || cfg.BucketSize > math.MaxInt32 {
		return utils.NewInvalidArgumentError("bucket size must be positive, got %d", cfg.BucketSize)
	}
	if err := splat.ValidateSHDegree(cfg.SHDegree); err != nil {
		return utils.NewInvalidArgumentError("%v", err)
	}
	if cfg.BaseVoxelSize < 0 || math.IsNaN(cfg.BaseVoxelSize) || math.IsInf(cfg.BaseVoxelSize, 0) {
		return utils.NewInvalidArgumentError("base voxel size must not be negative, got %v", cfg.BaseVoxelSize)
	}
	return cfg.LODScale.Validate()
}

// Resolve returns a copy of cfg with the levels sorted and deduplicated, the scene center
// filled from the bounds of arr when unset and the spherical harmonics degree capped to what
// arr carries.
func (cfg Config) Resolve(arr *splat.Array) Config {
	out := cfg
	out.Levels = lo.Uniq(cfg.Levels)
	sort.Ints(out.Levels)
	if cfg.SceneCenter == nil {
		center := arr.MetaData().Center()
		out.SceneCenter = &center
	} else {
		center := *cfg.SceneCenter
		out.SceneCenter = &center
	}
	if arr.SHDegree() < out.SHDegree {
		out.SHDegree = arr.SHDegree()
	}
	if cfg.LODScale != nil {
		out.LODScale = lo.Assign(lod.Factors{}, cfg.LODScale)
	}
	return out
}
