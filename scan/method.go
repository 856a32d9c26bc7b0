package scan

import (
	"strconv"
	"strings"

	"github.com/pkg/errors"

	"github.com/seiflotfy/huffscan/errs"
)

// Method selects how a fixed-width symbol is represented. The numeric value
// is the tag stored in serialized containers.
type Method uint8

const (
	MethodUndefined  Method = 0
	MethodInteger    Method = 1
	MethodByteString Method = 2
)

const (
	// MinDataBits and MaxDataBits bound the accepted symbol width. Widths of a
	// single bit are rejected.
	MinDataBits = 2
	MaxDataBits = 1024
)

func (m Method) String() string {
	switch m {
	case MethodInteger:
		return "integer"
	case MethodByteString:
		return "bytestring"
	case MethodUndefined:
		return "undefined"
	default:
		return "method(" + strconv.Itoa(int(m)) + ")"
	}
}

// Valid reports whether m names a scanning method.
func (m Method) Valid() bool {
	return m == MethodInteger || m == MethodByteString
}

// ParseMethod accepts "integer"/"int" and "bytestring"/"bytes", case-insensitively.
func ParseMethod(s string) (Method, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "integer", "int":
		return MethodInteger, nil
	case "bytestring", "byte_string", "bytes":
		return MethodByteString, nil
	}
	return MethodUndefined, errors.Wrapf(errs.ErrInvalidArgument, "unknown method %q", s)
}

// MarshalText implements encoding.TextMarshaler.
func (m Method) MarshalText() ([]byte, error) {
	if !m.Valid() {
		return nil, errors.Wrapf(errs.ErrInvalidArgument, "cannot marshal %s", m)
	}
	return []byte(m.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler, so a Method can be read
// straight from TOML and flag values.
func (m *Method) UnmarshalText(text []byte) error {
	v, err := ParseMethod(string(text))
	if err != nil {
		return err
	}
	*m = v
	return nil
}

// DataSize returns the number of bytes needed to hold dataBits bits.
func DataSize(dataBits int) int {
	return (dataBits + 7) / 8
}

// Validate checks a width/method combination before any work is done.
func Validate(dataBits int, method Method) error {
	if dataBits < MinDataBits || dataBits > MaxDataBits {
		return errors.Wrapf(errs.ErrInvalidArgument, "data bits %d outside (1, %d]", dataBits, MaxDataBits)
	}
	switch method {
	case MethodInteger:
		return nil
	case MethodByteString:
		if dataBits%8 != 0 {
			return errors.Wrapf(errs.ErrUnsupportedConfiguration,
				"bytestring method needs a byte-aligned width, got %d bits", dataBits)
		}
		return nil
	default:
		return errors.Wrapf(errs.ErrInvalidArgument, "scan method %s", method)
	}
}
