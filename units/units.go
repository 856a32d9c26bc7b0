// Package units converts between byte counts and human-readable sizes such
// as "70.00 MB" and "70 MB". Units are binary: 1 KB is 1024 bytes.
package units

import (
	"fmt"
	"regexp"
	"strconv"

	"github.com/c2h5oh/datasize"
	"github.com/pkg/errors"

	"github.com/seiflotfy/huffscan/errs"
)

var sizePattern = regexp.MustCompile(`^([1-9][0-9]*) *([KMGTPE]?)[bB]$`)

var scales = []struct {
	unit  string
	size  datasize.ByteSize
	value func(datasize.ByteSize) float64
}{
	{"EB", datasize.EB, datasize.ByteSize.EBytes},
	{"PB", datasize.PB, datasize.ByteSize.PBytes},
	{"TB", datasize.TB, datasize.ByteSize.TBytes},
	{"GB", datasize.GB, datasize.ByteSize.GBytes},
	{"MB", datasize.MB, datasize.ByteSize.MBytes},
	{"KB", datasize.KB, datasize.ByteSize.KBytes},
}

// Format renders n with two decimals in the largest unit not exceeding it.
func Format(n uint64) string {
	b := datasize.ByteSize(n)
	for _, s := range scales {
		if b >= s.size {
			return fmt.Sprintf("%.2f %s", s.value(b), s.unit)
		}
	}
	return fmt.Sprintf("%.2f B", float64(n))
}

// Parse reads a size like "70 MB", "512B" or "3 KB". The number must be a
// positive integer and the unit one of B, KB, MB, GB, TB, PB or EB.
func Parse(s string) (uint64, error) {
	m := sizePattern.FindStringSubmatch(s)
	if m == nil {
		return 0, errors.Wrapf(errs.ErrInvalidArgument, "invalid size %q", s)
	}
	if _, err := strconv.ParseUint(m[1], 10, 64); err != nil {
		return 0, errors.Wrapf(errs.ErrInvalidArgument, "size %q: %v", s, err)
	}
	var size datasize.ByteSize
	if err := size.UnmarshalText([]byte(m[1] + m[2] + "B")); err != nil {
		return 0, errors.Wrapf(errs.ErrInvalidArgument, "size %q: %v", s, err)
	}
	return size.Bytes(), nil
}
