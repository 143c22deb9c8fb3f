package splatbuffer

import (
	"os"
	"path/filepath"

	"go.uber.org/multierr"
	"go.viam.com/utils"

	rutils "go.viam.com/splatbuffer/utils"
)

// FileMode is the permission WriteFile creates output files with.
const FileMode = 0o644

// WriteFile writes data verbatim to path. With atomic set, data is written to a temporary file
// in the same directory and renamed over path once fully flushed, so readers never see a
// partial buffer.
func WriteFile(path string, data []byte, atomic bool) error {
	path = filepath.Clean(path)
	if !atomic {
		return rutils.NewIOError(os.WriteFile(path, data, FileMode), "writing %q", path)
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return rutils.NewIOError(err, "creating temporary file for %q", path)
	}
	tmpPath := tmp.Name()
	_, err = tmp.Write(data)
	if err == nil {
		err = tmp.Sync()
	}
	if err == nil {
		err = tmp.Chmod(FileMode)
	}
	err = multierr.Combine(err, tmp.Close())
	if err == nil {
		err = os.Rename(tmpPath, path)
	}
	if err != nil {
		utils.UncheckedError(os.Remove(tmpPath))
		return rutils.NewIOError(err, "writing %q", path)
	}
	return nil
}
