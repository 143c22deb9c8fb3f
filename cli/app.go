// Package cli contains the splat buffer conversion command line application.
package cli

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/pkg/errors"
	"github.com/urfave/cli/v2"

	"go.viam.com/splatbuffer/logging"
	"go.viam.com/splatbuffer/pipeline"
	"go.viam.com/splatbuffer/ply"
	"go.viam.com/splatbuffer/splatbuffer"
	"go.viam.com/splatbuffer/utils"
)

const (
	flagDebug  = "debug"
	flagConfig = "config"
	flagAtomic = "atomic"
	flagStats  = "stats"

	argsUsage = "<input.ply> <output> <lodLevel 1-4> [compressionLevel=0] [alphaRemovalThreshold=0] " +
		`[sceneCenter="x,y,z"] [blockSize=5.0] [bucketSize=256] [sphericalHarmonicsDegree=0]`
	minArgs = 3
	maxArgs = 9
)

// NewApp returns the conversion app with Writer set to out and ErrWriter set to errOut.
func NewApp(out, errOut io.Writer) *cli.App {
	return &cli.App{
		Name:            "convert",
		Usage:           "convert a gaussian splat PLY file into a splat buffer",
		ArgsUsage:       argsUsage,
		HideHelpCommand: true,
		Writer:          out,
		ErrWriter:       errOut,
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:    flagDebug,
				Aliases: []string{"vvv"},
				Usage:   "enable debug logging",
			},
			&cli.StringFlag{
				Name:    flagConfig,
				Aliases: []string{"c"},
				Usage:   "load default settings from JSON `FILE`; positional arguments take precedence",
			},
			&cli.BoolFlag{
				Name:  flagAtomic,
				Usage: "write the output to a temporary file and rename it into place",
			},
			&cli.BoolFlag{
				Name:  flagStats,
				Usage: "print per level statistics when done",
			},
		},
		Action: ConvertAction,
	}
}

// convertArgs are the positional arguments. Optional arguments that were not given are nil.
type convertArgs struct {
	Input, Output    string
	LODLevel         int
	CompressionLevel *int
	AlphaThreshold   *float64
	SceneCenter      *string
	BlockSize        *float64
	BucketSize       *int
	SHDegree         *int
}

func usageError() error {
	return cli.Exit("usage: convert [options] "+argsUsage, 1)
}

// parseConvertArgs validates the positional arguments. The LOD level and the input extension
// are checked first so they fail before any I/O happens.
func parseConvertArgs(args []string) (convertArgs, error) {
	var out convertArgs
	if len(args) < minArgs || len(args) > maxArgs {
		return out, usageError()
	}
	out.Input, out.Output = args[0], args[1]

	lodLevel, err := strconv.Atoi(strings.TrimSpace(args[2]))
	if err != nil {
		return out, errors.Wrapf(utils.ErrInvalidLevel, "LOD level must be between %d and %d, got %q",
			utils.MinLODLevel, utils.MaxLODLevel, args[2])
	}
	if err := utils.ValidateLevel(lodLevel); err != nil {
		return out, err
	}
	out.LODLevel = lodLevel

	if !ply.HasExtension(out.Input) {
		return out, utils.NewUnsupportedFormatError("input file must be a .ply file, got %q", out.Input)
	}

	optional := args[3:]
	intArg := func(i int, name string) (*int, error) {
		if i >= len(optional) {
			return nil, nil
		}
		v, err := strconv.Atoi(strings.TrimSpace(optional[i]))
		if err != nil {
			return nil, utils.NewInvalidArgumentError("%s must be an integer, got %q", name, optional[i])
		}
		return &v, nil
	}
	floatArg := func(i int, name string) (*float64, error) {
		if i >= len(optional) {
			return nil, nil
		}
		v, err := strconv.ParseFloat(strings.TrimSpace(optional[i]), 64)
		if err != nil {
			return nil, utils.NewInvalidArgumentError("%s must be a number, got %q", name, optional[i])
		}
		return &v, nil
	}

	if out.CompressionLevel, err = intArg(0, "compressionLevel"); err != nil {
		return out, err
	}
	if out.AlphaThreshold, err = floatArg(1, "alphaRemovalThreshold"); err != nil {
		return out, err
	}
	if len(optional) > 2 {
		center := optional[2]
		out.SceneCenter = &center
	}
	if out.BlockSize, err = floatArg(3, "blockSize"); err != nil {
		return out, err
	}
	if out.BucketSize, err = intArg(4, "bucketSize"); err != nil {
		return out, err
	}
	if out.SHDegree, err = intArg(5, "sphericalHarmonicsDegree"); err != nil {
		return out, err
	}
	return out, nil
}

// apply overlays the given arguments onto cfg.
func (args convertArgs) apply(cfg pipeline.Config) (pipeline.Config, error) {
	cfg.Levels = []int{args.LODLevel}
	if args.CompressionLevel != nil {
		cfg.CompressionLevel = *args.CompressionLevel
	}
	if args.AlphaThreshold != nil {
		cfg.AlphaThreshold = *args.AlphaThreshold
	}
	if args.SceneCenter != nil && strings.TrimSpace(*args.SceneCenter) != "" {
		center, err := parseVector(*args.SceneCenter)
		if err != nil {
			return cfg, utils.NewInvalidArgumentError("sceneCenter: %v", err)
		}
		cfg.SceneCenter = &center
	}
	if args.BlockSize != nil {
		cfg.BlockSize = *args.BlockSize
	}
	if args.BucketSize != nil {
		cfg.BucketSize = *args.BucketSize
	}
	if args.SHDegree != nil {
		cfg.SHDegree = *args.SHDegree
	}
	return cfg, cfg.Validate()
}

func newLogger(c *cli.Context) logging.Logger {
	level := logging.INFO
	if c.Bool(flagDebug) {
		level = logging.DEBUG
	}
	logger := logging.NewBlankLogger("convert")
	logger.SetLevel(level)
	logger.AddAppender(logging.NewWriterAppender(c.App.ErrWriter))
	return logger
}

// ConvertAction is the entry point of the convert command. Every failure is returned as an
// exit error with code 1; the output file is only written once the whole buffer is built.
func ConvertAction(c *cli.Context) error {
	if err := convert(c); err != nil {
		var exitErr cli.ExitCoder
		if errors.As(err, &exitErr) {
			return exitErr
		}
		return cli.Exit(fmt.Sprintf("Error: %v", err), 1)
	}
	return nil
}

func convert(c *cli.Context) error {
	args, err := parseConvertArgs(c.Args().Slice())
	if err != nil {
		return err
	}
	logger := newLogger(c)

	cfg := pipeline.DefaultConfig()
	if path := c.String(flagConfig); path != "" {
		if cfg, err = readConfigFile(path); err != nil {
			return err
		}
	}
	if cfg, err = args.apply(cfg); err != nil {
		return err
	}

	arr, err := ply.NewFromFile(args.Input, cfg.SHDegree, args.LODLevel, logger)
	if err != nil {
		return err
	}
	ctx := c.Context
	if c.Bool(flagDebug) {
		ctx = logging.EnableDebugMode(ctx, args.Input)
	}
	res, err := pipeline.Generate(ctx, arr, cfg, logger)
	if err != nil {
		return err
	}
	if err := splatbuffer.WriteFile(args.Output, res.Buffer, c.Bool(flagAtomic)); err != nil {
		return err
	}
	logger.Infow("wrote splat buffer", "path", args.Output, "bytes", len(res.Buffer))
	if c.Bool(flagStats) {
		fmt.Fprintln(c.App.Writer, pipeline.StatsTable(res.Stats))
	}
	return nil
}
