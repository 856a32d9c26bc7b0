package errs

import (
	"io"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"
)

func TestKind(t *testing.T) {
	cases := map[string]error{
		"InvalidArgument":          errors.Wrap(ErrInvalidArgument, "width 0"),
		"UnsupportedConfiguration": errors.Wrapf(ErrUnsupportedConfiguration, "%d-bit byte strings", 12),
		"Truncated":                Truncated("read count at offset %d", 3),
		"FormatMismatch":           errors.WithMessage(ErrFormatMismatch, "bad tag"),
		"error":                    io.ErrClosedPipe,
	}
	for want, err := range cases {
		require.Equal(t, want, Kind(err))
	}
}

func TestTruncated(t *testing.T) {
	err := errors.Wrap(Truncated("read %s", "magic"), "archive")
	require.ErrorIs(t, err, ErrTruncated)
	require.ErrorIs(t, err, io.ErrUnexpectedEOF)
	require.True(t, IsEOF(err))
	require.Equal(t, "archive: read magic: truncated input", err.Error())

	require.True(t, IsEOF(io.EOF))
	require.False(t, IsEOF(ErrFormatMismatch))
}
