package ply

import (
	"os"
	"path/filepath"
	"strings"

	"go.viam.com/splatbuffer/logging"
	"go.viam.com/splatbuffer/splat"
	"go.viam.com/splatbuffer/utils"
)

// Extension is the file extension inputs must carry.
const Extension = ".ply"

// Parse reads the vertex element of a PLY file into an array. shDegree is the requested
// spherical harmonics degree; the result is capped to what the file carries and can be read
// back from the array. lodLevel is validated only: the parser never alters record geometry per
// level.
func Parse(data []byte, shDegree, lodLevel int) (*splat.Array, error) {
	if err := utils.ValidateLevel(lodLevel); err != nil {
		return nil, err
	}
	if err := splat.ValidateSHDegree(shDegree); err != nil {
		return nil, utils.NewInvalidArgumentError("%v", err)
	}
	header, err := ParseHeader(data)
	if err != nil {
		return nil, err
	}
	t, err := readElement(data, header, vertexElement)
	if err != nil {
		return nil, err
	}
	return toArray(t, shDegree)
}

// HasExtension reports whether path ends in Extension, ignoring case and surrounding space.
func HasExtension(path string) bool {
	return strings.HasSuffix(strings.ToLower(strings.TrimSpace(path)), Extension)
}

// NewFromFile reads and parses the PLY file at path.
func NewFromFile(path string, shDegree, lodLevel int, logger logging.Logger) (*splat.Array, error) {
	if !HasExtension(path) {
		return nil, utils.NewUnsupportedFormatError("input file must be a %s file, got %q", strings.ToUpper(Extension), filepath.Base(path))
	}
	data, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return nil, utils.NewIOError(err, "reading %q", path)
	}
	arr, err := Parse(data, shDegree, lodLevel)
	if err != nil {
		return nil, err
	}
	if arr.SHDegree() < shDegree {
		logger.Warnw("input carries fewer spherical harmonics than requested; lowering degree",
			"requested", shDegree, "using", arr.SHDegree())
	}
	logger.Debugw("parsed input", "path", path, "points", arr.Len(), "shDegree", arr.SHDegree())
	return arr, nil
}
