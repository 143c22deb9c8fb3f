package cli

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
	"github.com/urfave/cli/v2"
	"go.viam.com/test"

	"go.viam.com/splatbuffer/pipeline"
	"go.viam.com/splatbuffer/ply"
	"go.viam.com/splatbuffer/splat"
	"go.viam.com/splatbuffer/splatbuffer"
	"go.viam.com/splatbuffer/utils"
)

func runApp(t *testing.T, args ...string) (string, string, error) {
	t.Helper()
	var out, errOut bytes.Buffer
	app := NewApp(&out, &errOut)
	app.ExitErrHandler = func(*cli.Context, error) {}
	err := app.Run(append([]string{"convert"}, args...))
	return out.String(), errOut.String(), err
}

func exitCode(t *testing.T, err error) int {
	t.Helper()
	if err == nil {
		return 0
	}
	var exitErr cli.ExitCoder
	test.That(t, errors.As(err, &exitErr), test.ShouldBeTrue)
	return exitErr.ExitCode()
}

func writeInput(t *testing.T, dir string, n, shDegree int) string {
	t.Helper()
	var buf bytes.Buffer
	test.That(t, ply.Write(&buf, splat.MakeTestArray(n, shDegree, 8, 1), ply.FormatBinaryLittleEndian), test.ShouldBeNil)
	fn := filepath.Join(dir, "scene.ply")
	test.That(t, os.WriteFile(fn, buf.Bytes(), 0o600), test.ShouldBeNil)
	return fn
}

func TestConvertUsage(t *testing.T) {
	_, _, err := runApp(t, "in.ply", "out.splat")
	test.That(t, exitCode(t, err), test.ShouldEqual, 1)
	test.That(t, err.Error(), test.ShouldContainSubstring, "usage")
	test.That(t, err.Error(), test.ShouldContainSubstring, "<lodLevel 1-4>")

	_, _, err = runApp(t)
	test.That(t, exitCode(t, err), test.ShouldEqual, 1)
}

func TestConvertInvalidLevel(t *testing.T) {
	dir := t.TempDir()
	for _, level := range []string{"5", "0", "four"} {
		_, _, err := runApp(t, filepath.Join(dir, "missing.ply"), filepath.Join(dir, "out.splat"), level)
		test.That(t, exitCode(t, err), test.ShouldEqual, 1)
		test.That(t, err.Error(), test.ShouldContainSubstring, "LOD level must be between 1 and 4")
	}
	_, err := os.Stat(filepath.Join(dir, "out.splat"))
	test.That(t, os.IsNotExist(err), test.ShouldBeTrue)
}

func TestConvertWrongExtension(t *testing.T) {
	dir := t.TempDir()
	_, _, err := runApp(t, filepath.Join(dir, "scene.obj"), filepath.Join(dir, "out.splat"), "4")
	test.That(t, exitCode(t, err), test.ShouldEqual, 1)
	test.That(t, err.Error(), test.ShouldContainSubstring, ".ply")
}

func TestConvertMissingInput(t *testing.T) {
	dir := t.TempDir()
	_, _, err := runApp(t, filepath.Join(dir, "missing.ply"), filepath.Join(dir, "out.splat"), "4")
	test.That(t, exitCode(t, err), test.ShouldEqual, 1)
	_, err = os.Stat(filepath.Join(dir, "out.splat"))
	test.That(t, os.IsNotExist(err), test.ShouldBeTrue)
}

func TestConvertBadOptional(t *testing.T) {
	dir := t.TempDir()
	in := writeInput(t, dir, 10, 0)
	out := filepath.Join(dir, "out.splat")
	for _, args := range [][]string{
		{in, out, "4", "x"},
		{in, out, "4", "3"},
		{in, out, "4", "0", "0", "1,2"},
		{in, out, "4", "0", "0", "", "-1"},
		{in, out, "4", "0", "0", "", "5", "0"},
		{in, out, "4", "0", "0", "", "5", "256", "4"},
		{in, out, "4", "0", "0", "", "5", "256", "0", "extra"},
	} {
		_, _, err := runApp(t, args...)
		test.That(t, exitCode(t, err), test.ShouldEqual, 1)
	}
	_, err := os.Stat(out)
	test.That(t, os.IsNotExist(err), test.ShouldBeTrue)
}

func TestConvertSuccess(t *testing.T) {
	dir := t.TempDir()
	in := writeInput(t, dir, 1000, 1)
	out := filepath.Join(dir, "out.splat")

	stdout, _, err := runApp(t, "--atomic", "--stats", in, out, "4", "1", "0.015", "", "5.0", "256", "1")
	test.That(t, err, test.ShouldBeNil)
	test.That(t, stdout, test.ShouldContainSubstring, "KEPT")

	data, err := os.ReadFile(out)
	test.That(t, err, test.ShouldBeNil)
	decoded, err := splatbuffer.Decode(data)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, len(decoded.Sections), test.ShouldEqual, 1)
	test.That(t, decoded.Sections[0].Level, test.ShouldEqual, 4)
	test.That(t, decoded.TotalPoints, test.ShouldEqual, 980)
	test.That(t, decoded.Header.SHDegree, test.ShouldEqual, 1)
	test.That(t, int(decoded.Header.CompressionLevel), test.ShouldEqual, 1)

	_, _, err = runApp(t, in, out, "2")
	test.That(t, err, test.ShouldBeNil)
	data, err = os.ReadFile(out)
	test.That(t, err, test.ShouldBeNil)
	decoded, err = splatbuffer.Decode(data)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, decoded.Sections[0].Level, test.ShouldEqual, 2)
	test.That(t, decoded.Header.SHDegree, test.ShouldEqual, 0)
	test.That(t, decoded.Header.BlockSize, test.ShouldEqual, pipeline.DefaultBlockSize)
}

func TestConvertConfigFile(t *testing.T) {
	dir := t.TempDir()
	in := writeInput(t, dir, 200, 0)
	out := filepath.Join(dir, "out.splat")
	cfgPath := filepath.Join(dir, "convert.json")
	test.That(t, os.WriteFile(cfgPath, []byte(`{"block_size": 2.5, "scene_center": "1,2,3", "bucket_size": 64}`), 0o600), test.ShouldBeNil)

	_, _, err := runApp(t, "--config", cfgPath, in, out, "3")
	test.That(t, err, test.ShouldBeNil)
	data, err := os.ReadFile(out)
	test.That(t, err, test.ShouldBeNil)
	decoded, err := splatbuffer.Decode(data)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, decoded.Header.BlockSize, test.ShouldEqual, 2.5)
	test.That(t, decoded.Header.BucketSize, test.ShouldEqual, 64)
	test.That(t, decoded.Header.SceneCenter, test.ShouldResemble, r3.Vector{X: 1, Y: 2, Z: 3})

	_, _, err = runApp(t, "--config", cfgPath, in, out, "3", "0", "0", "0,0,0", "1.5")
	test.That(t, err, test.ShouldBeNil)
	data, err = os.ReadFile(out)
	test.That(t, err, test.ShouldBeNil)
	decoded, err = splatbuffer.Decode(data)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, decoded.Header.BlockSize, test.ShouldEqual, 1.5)
	test.That(t, decoded.Header.SceneCenter, test.ShouldResemble, r3.Vector{})

	test.That(t, os.WriteFile(cfgPath, []byte(`{"block_sise": 2.5}`), 0o600), test.ShouldBeNil)
	_, _, err = runApp(t, "--config", cfgPath, in, out, "3")
	test.That(t, exitCode(t, err), test.ShouldEqual, 1)

	_, _, err = runApp(t, "--config", filepath.Join(dir, "missing.json"), in, out, "3")
	test.That(t, exitCode(t, err), test.ShouldEqual, 1)
}

func TestDecodeConfig(t *testing.T) {
	cfg := pipeline.DefaultConfig()
	err := decodeConfig([]byte(`{
		"compression_level": 2,
		"alpha_threshold": 0.25,
		"scene_center": {"x": 1, "y": -1, "z": 0.5},
		"lod_scale": {"2": 1.5},
		"parallel": false
	}`), &cfg)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, cfg.CompressionLevel, test.ShouldEqual, 2)
	test.That(t, cfg.AlphaThreshold, test.ShouldEqual, 0.25)
	test.That(t, *cfg.SceneCenter, test.ShouldResemble, r3.Vector{X: 1, Y: -1, Z: 0.5})
	test.That(t, cfg.LODScale[2], test.ShouldEqual, 1.5)
	test.That(t, cfg.Parallel, test.ShouldBeFalse)
	test.That(t, cfg.BlockSize, test.ShouldEqual, pipeline.DefaultBlockSize)

	err = decodeConfig([]byte(`[1, 2]`), &cfg)
	test.That(t, errors.Is(err, utils.ErrParse), test.ShouldBeTrue)
	err = decodeConfig([]byte(`{"scene_center": "1,2"}`), &cfg)
	test.That(t, errors.Is(err, utils.ErrParse), test.ShouldBeTrue)
}

func TestParseConvertArgs(t *testing.T) {
	args, err := parseConvertArgs([]string{"a.PLY", "b", "2", "1", "0.5"})
	test.That(t, err, test.ShouldBeNil)
	test.That(t, args.LODLevel, test.ShouldEqual, 2)
	test.That(t, *args.CompressionLevel, test.ShouldEqual, 1)
	test.That(t, *args.AlphaThreshold, test.ShouldEqual, 0.5)
	test.That(t, args.SceneCenter, test.ShouldBeNil)
	test.That(t, args.BlockSize, test.ShouldBeNil)

	cfg, err := args.apply(pipeline.DefaultConfig())
	test.That(t, err, test.ShouldBeNil)
	test.That(t, cfg.Levels, test.ShouldResemble, []int{2})
	test.That(t, cfg.AlphaThreshold, test.ShouldEqual, 0.5)
	test.That(t, cfg.BucketSize, test.ShouldEqual, pipeline.DefaultBucketSize)

	_, err = parseConvertArgs([]string{"a.ply", "b", "9"})
	test.That(t, errors.Is(err, utils.ErrInvalidLevel), test.ShouldBeTrue)
	_, err = parseConvertArgs([]string{"a.txt", "b", "1"})
	test.That(t, errors.Is(err, utils.ErrUnsupportedFormat), test.ShouldBeTrue)
	_, err = parseConvertArgs([]string{"a.ply", "b", "1", "0", "x"})
	test.That(t, errors.Is(err, utils.ErrInvalidArgument), test.ShouldBeTrue)

	v, err := parseVector(" 1, 2.5 ,-3")
	test.That(t, err, test.ShouldBeNil)
	test.That(t, v, test.ShouldResemble, r3.Vector{X: 1, Y: 2.5, Z: -3})
}
