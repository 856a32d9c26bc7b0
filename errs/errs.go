// Package errs defines the error kinds shared by the scanning, coding and
// container packages. Detection sites wrap a kind with context; callers
// classify with errors.Is.
package errs

import (
	"io"

	"github.com/pkg/errors"
)

var (
	// ErrInvalidArgument reports a parameter outside its accepted range.
	ErrInvalidArgument = errors.New("invalid argument")
	// ErrUnsupportedConfiguration reports a method/width combination that is not implemented.
	ErrUnsupportedConfiguration = errors.New("unsupported configuration")
	// ErrTruncated reports a stream that ended in the middle of a value.
	ErrTruncated = errors.New("truncated input")
	// ErrFormatMismatch reports serialized data that is inconsistent with itself.
	ErrFormatMismatch = errors.New("format mismatch")
)

// truncated carries both ErrTruncated and io.ErrUnexpectedEOF.
type truncated struct {
	msg string
}

func (t *truncated) Error() string { return t.msg + ": " + ErrTruncated.Error() }

func (t *truncated) Is(target error) bool {
	return target == ErrTruncated || target == io.ErrUnexpectedEOF
}

// Truncated returns an error matching both ErrTruncated and io.ErrUnexpectedEOF.
func Truncated(format string, args ...interface{}) error {
	return errors.WithStack(&truncated{msg: errors.Errorf(format, args...).Error()})
}

// IsEOF reports whether err means the reader ran dry, cleanly or not.
func IsEOF(err error) bool {
	return errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF)
}

// Kind returns the kind name of err, or "error" if err carries no known kind.
func Kind(err error) string {
	switch {
	case errors.Is(err, ErrInvalidArgument):
		return "InvalidArgument"
	case errors.Is(err, ErrUnsupportedConfiguration):
		return "UnsupportedConfiguration"
	case errors.Is(err, ErrTruncated):
		return "Truncated"
	case errors.Is(err, ErrFormatMismatch):
		return "FormatMismatch"
	default:
		return "error"
	}
}
