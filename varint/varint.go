// Package varint implements a big-endian, self-delimiting variable-length
// integer encoding for arbitrary-precision values.
//
// Every byte carries 7 payload bits below a continuation flag (0x80) that is
// set on all bytes but the last. Groups are emitted most significant first.
//
// The signed form reserves bit 0x40 of the first byte as a sign flag, leaving
// 6 payload bits in the first byte and full 7-bit groups afterwards. Negative
// values encode their absolute value with the sign flag set.
//
// Zero encodes as a single 0x00 byte in both forms.
package varint

import (
	"io"
	"math/big"
	"math/bits"

	"github.com/pkg/errors"

	"github.com/seiflotfy/huffscan/errs"
)

const (
	continueMask = 0b1000_0000
	signMask     = 0b0100_0000
	valueMask    = 0b0111_1111
	initialMask  = 0b0011_1111
	valueBits    = 7
	initialBits  = 6

	// MaxLen64 is the maximum encoded length of a 64-bit value in either form.
	MaxLen64 = 10
)

// ErrOverflow reports a decoded value that does not fit the requested Go type.
var ErrOverflow = errors.Wrap(errs.ErrFormatMismatch, "varint overflows 64 bits")

// unsignedGroups returns the number of 7-bit groups needed for a value of n bits.
func unsignedGroups(n int) int {
	if n == 0 {
		return 1
	}
	return (n + valueBits - 1) / valueBits
}

// signedTail returns the number of 7-bit groups following the 6-bit first group
// for a magnitude of n bits.
func signedTail(n int) int {
	if n <= initialBits {
		return 0
	}
	return (n - initialBits + valueBits - 1) / valueBits
}

// AppendUint64 appends the unsigned encoding of v to dst.
func AppendUint64(dst []byte, v uint64) []byte {
	groups := unsignedGroups(bits.Len64(v))
	for g := groups - 1; g > 0; g-- {
		dst = append(dst, continueMask|byte(v>>(uint(g)*valueBits))&valueMask)
	}
	return append(dst, byte(v)&valueMask)
}

// AppendInt64 appends the signed encoding of v to dst.
func AppendInt64(dst []byte, v int64) []byte {
	var sign byte
	mag := uint64(v)
	if v < 0 {
		sign = signMask
		mag = -mag
	}
	if mag == 0 {
		return append(dst, 0)
	}
	tail := signedTail(bits.Len64(mag))
	first := sign | byte(mag>>(uint(tail)*valueBits))&initialMask
	if tail == 0 {
		return append(dst, first)
	}
	dst = append(dst, continueMask|first)
	for g := tail - 1; g > 0; g-- {
		dst = append(dst, continueMask|byte(mag>>(uint(g)*valueBits))&valueMask)
	}
	return append(dst, byte(mag)&valueMask)
}

// groupAt returns the 7-bit group of v whose lowest bit is bit index shift.
func groupAt(v *big.Int, shift int) byte {
	var b byte
	for i := 0; i < valueBits; i++ {
		b |= byte(v.Bit(shift+i)) << uint(i)
	}
	return b
}

// AppendUint appends the unsigned encoding of v to dst. v must not be negative.
func AppendUint(dst []byte, v *big.Int) ([]byte, error) {
	if v.Sign() < 0 {
		return dst, errors.Wrapf(errs.ErrInvalidArgument, "unsigned varint of negative value %s", v)
	}
	if v.IsUint64() {
		return AppendUint64(dst, v.Uint64()), nil
	}
	groups := unsignedGroups(v.BitLen())
	for g := groups - 1; g > 0; g-- {
		dst = append(dst, continueMask|groupAt(v, g*valueBits))
	}
	return append(dst, groupAt(v, 0)), nil
}

// AppendInt appends the signed encoding of v to dst.
func AppendInt(dst []byte, v *big.Int) []byte {
	if v.IsInt64() {
		return AppendInt64(dst, v.Int64())
	}
	var sign byte
	if v.Sign() < 0 {
		sign = signMask
	}
	mag := new(big.Int).Abs(v)
	tail := signedTail(mag.BitLen())
	first := sign | groupAt(mag, tail*valueBits)&initialMask
	dst = append(dst, continueMask|first)
	for g := tail - 1; g > 0; g-- {
		dst = append(dst, continueMask|groupAt(mag, g*valueBits))
	}
	return append(dst, groupAt(mag, 0))
}

// Len64 returns the unsigned encoded length of v.
func Len64(v uint64) int {
	return unsignedGroups(bits.Len64(v))
}

func nextByte(r io.ByteReader, first bool) (byte, error) {
	b, err := r.ReadByte()
	if err == nil {
		return b, nil
	}
	if first && err == io.EOF {
		return 0, io.EOF
	}
	if errs.IsEOF(err) {
		return 0, errs.Truncated("varint ended before its last byte")
	}
	return 0, errors.WithStack(err)
}

// ReadUint decodes an unsigned value from r. It returns io.EOF if r is empty
// and a truncation error if r ends in the middle of a value.
func ReadUint(r io.ByteReader) (*big.Int, error) {
	b, err := nextByte(r, true)
	if err != nil {
		return nil, err
	}
	v := new(big.Int).SetUint64(uint64(b & valueMask))
	for b&continueMask != 0 {
		if b, err = nextByte(r, false); err != nil {
			return nil, err
		}
		v.Lsh(v, valueBits)
		v.Or(v, big.NewInt(int64(b&valueMask)))
	}
	return v, nil
}

// ReadInt decodes a signed value from r.
func ReadInt(r io.ByteReader) (*big.Int, error) {
	b, err := nextByte(r, true)
	if err != nil {
		return nil, err
	}
	negative := b&signMask != 0
	v := new(big.Int).SetUint64(uint64(b & initialMask))
	for b&continueMask != 0 {
		if b, err = nextByte(r, false); err != nil {
			return nil, err
		}
		v.Lsh(v, valueBits)
		v.Or(v, big.NewInt(int64(b&valueMask)))
	}
	if negative {
		v.Neg(v)
	}
	return v, nil
}

// ReadUint64 decodes an unsigned value that must fit in 64 bits.
func ReadUint64(r io.ByteReader) (uint64, error) {
	b, err := nextByte(r, true)
	if err != nil {
		return 0, err
	}
	v := uint64(b & valueMask)
	for b&continueMask != 0 {
		if b, err = nextByte(r, false); err != nil {
			return 0, err
		}
		if v>>(64-valueBits) != 0 {
			return 0, ErrOverflow
		}
		v = v<<valueBits | uint64(b&valueMask)
	}
	return v, nil
}

// ReadInt64 decodes a signed value that must fit in 64 bits.
func ReadInt64(r io.ByteReader) (int64, error) {
	v, err := ReadInt(r)
	if err != nil {
		return 0, err
	}
	if !v.IsInt64() {
		return 0, ErrOverflow
	}
	return v.Int64(), nil
}

// WriteUint64 writes the unsigned encoding of v to w and returns the bytes written.
func WriteUint64(w io.Writer, v uint64) (int, error) {
	var buf [MaxLen64]byte
	n, err := w.Write(AppendUint64(buf[:0], v))
	return n, errors.WithStack(err)
}
