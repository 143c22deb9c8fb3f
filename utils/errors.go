package utils

import (
	"github.com/pkg/errors"
)

// Error kinds surfaced by the conversion pipeline. Callers match them with errors.Is; the
// constructors below wrap them with the detail needed for a user facing message.
var (
	ErrInvalidArgument    = errors.New("invalid argument")
	ErrInvalidLevel       = errors.New("invalid level")
	ErrUnsupportedFormat  = errors.New("unsupported format")
	ErrParse              = errors.New("parse error")
	ErrIO                 = errors.New("io error")
	ErrUnsupportedVersion = errors.New("unsupported version")
)

// MinLODLevel and MaxLODLevel bound the level of detail tiers.
const (
	MinLODLevel = 1
	MaxLODLevel = 4
)

// NewInvalidLevelError is used when a level of detail is outside [MinLODLevel, MaxLODLevel].
func NewInvalidLevelError(level int) error {
	return errors.Wrapf(ErrInvalidLevel, "LOD level must be between %d and %d, got %d", MinLODLevel, MaxLODLevel, level)
}

// NewInvalidArgumentError is used when an argument fails validation.
func NewInvalidArgumentError(format string, args ...interface{}) error {
	return errors.Wrapf(ErrInvalidArgument, format, args...)
}

// NewUnsupportedFormatError is used when input does not carry the expected extension or magic.
func NewUnsupportedFormatError(format string, args ...interface{}) error {
	return errors.Wrapf(ErrUnsupportedFormat, format, args...)
}

// NewParseError is used when interchange or buffer data is malformed.
func NewParseError(format string, args ...interface{}) error {
	return errors.Wrapf(ErrParse, format, args...)
}

// NewIOError wraps an underlying read or write failure. A nil err yields nil.
func NewIOError(err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	return errors.Wrapf(&ioError{cause: err}, format, args...)
}

// NewUnsupportedVersionError is used when a decoder meets a layout version it does not know.
func NewUnsupportedVersionError(major, minor, supported uint16) error {
	return errors.Wrapf(ErrUnsupportedVersion, "buffer version %d.%d is not supported (want %d.x)", major, minor, supported)
}

// ValidateLevel returns an invalid level error for levels outside [MinLODLevel, MaxLODLevel].
func ValidateLevel(level int) error {
	if level < MinLODLevel || level > MaxLODLevel {
		return NewInvalidLevelError(level)
	}
	return nil
}

// ioError keeps both the ErrIO kind and the underlying cause reachable through errors.Is.
type ioError struct {
	cause error
}

func (e *ioError) Error() string {
	return e.cause.Error()
}

func (e *ioError) Is(target error) bool {
	return target == ErrIO
}

func (e *ioError) Unwrap() error {
	return e.cause
}
