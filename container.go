package huffscan

import (
	"bytes"
	"io"

	"github.com/pkg/errors"

	"github.com/seiflotfy/huffscan/errs"
	"github.com/seiflotfy/huffscan/scan"
)

// Container layout, all integers big-endian and N = size_of_size bytes wide:
//
//	size_of_size   uint8
//	buffer_bits    N
//	buffer_size    N
//	data_bits      N
//	data_size      N
//	remaining_bits N
//	remaining_size N
//	method         uint8 (1 integer, 2 bytestring)
//	symbol_count   N
//	repeat symbol_count times, ascending by count:
//	  symbol data_size bytes
//	  count  N
//	remaining      remaining_size bytes
//
// Both methods store symbols the same way, as data_size big-endian bytes.

// preallocLimit caps how many symbol slots are reserved up front from an
// untrusted symbol_count.
const preallocLimit = 1 << 16

// maxBufferSize keeps buffer_size*8 within 64 bits.
const maxBufferSize = 1<<61 - 1

func fitsN(v uint64, n int) bool {
	return n >= 8 || v>>(uint(n)*8) == 0
}

func appendUintN(dst []byte, v uint64, n int) []byte {
	for i := n - 1; i >= 0; i-- {
		dst = append(dst, byte(v>>(uint(i)*8)))
	}
	return dst
}

func readUintN(b []byte) uint64 {
	var v uint64
	for _, c := range b {
		v = v<<8 | uint64(c)
	}
	return v
}

func (sb *SegmentedBuffer) validate() error {
	if err := scan.Validate(sb.DataBits, sb.Method); err != nil {
		return err
	}
	switch {
	case sb.BufferBits != sb.BufferSize*8:
		return errors.Wrapf(errs.ErrFormatMismatch, "buffer bits %d for %d bytes", sb.BufferBits, sb.BufferSize)
	case sb.DataSize != scan.DataSize(sb.DataBits):
		return errors.Wrapf(errs.ErrFormatMismatch, "data size %d for %d bits", sb.DataSize, sb.DataBits)
	case uint64(sb.RemainingBits) != sb.BufferBits%uint64(sb.DataBits):
		return errors.Wrapf(errs.ErrFormatMismatch, "remaining bits %d for %d bits at width %d",
			sb.RemainingBits, sb.BufferBits, sb.DataBits)
	case sb.RemainingSize != scan.DataSize(sb.RemainingBits) || len(sb.Remaining) != sb.RemainingSize:
		return errors.Wrapf(errs.ErrFormatMismatch, "remaining size %d (%d bytes held) for %d bits",
			sb.RemainingSize, len(sb.Remaining), sb.RemainingBits)
	}
	if want := sb.SymbolBits() / uint64(sb.DataBits); sb.Total() != want {
		return errors.Wrapf(errs.ErrFormatMismatch, "symbol counts total %d, buffer holds %d", sb.Total(), want)
	}
	return nil
}

// MarshalBinary encodes sb in the container layout.
func (sb *SegmentedBuffer) MarshalBinary() ([]byte, error) {
	n := sb.SizeOfSize
	if n < 1 || n > maxSizeOfSize {
		return nil, errors.Wrapf(errs.ErrInvalidArgument, "size of size %d outside [1, %d]", n, maxSizeOfSize)
	}
	if err := sb.validate(); err != nil {
		return nil, errors.Wrap(err, "invalid segmented buffer")
	}

	fields := []struct {
		name string
		v    uint64
	}{
		{"buffer_bits", sb.BufferBits},
		{"buffer_size", sb.BufferSize},
		{"data_bits", uint64(sb.DataBits)},
		{"data_size", uint64(sb.DataSize)},
		{"remaining_bits", uint64(sb.RemainingBits)},
		{"remaining_size", uint64(sb.RemainingSize)},
	}

	out := make([]byte, 0, 2+(len(fields)+1)*n+len(sb.Counts)*(sb.DataSize+n)+sb.RemainingSize)
	out = append(out, byte(n))
	for _, f := range fields {
		if !fitsN(f.v, n) {
			return nil, errors.Wrapf(errs.ErrInvalidArgument, "%s %d does not fit %d bytes", f.name, f.v, n)
		}
		out = appendUintN(out, f.v, n)
	}
	out = append(out, byte(sb.Method))
	if !fitsN(uint64(len(sb.Counts)), n) {
		return nil, errors.Wrapf(errs.ErrInvalidArgument, "symbol count %d does not fit %d bytes", len(sb.Counts), n)
	}
	out = appendUintN(out, uint64(len(sb.Counts)), n)
	for _, dc := range sb.Counts {
		if dc.Symbol.Len() != sb.DataSize {
			return nil, errors.Wrapf(errs.ErrInvalidArgument, "symbol %s is %d bytes, want %d",
				dc.Symbol, dc.Symbol.Len(), sb.DataSize)
		}
		if !fitsN(dc.Count, n) {
			return nil, errors.Wrapf(errs.ErrInvalidArgument, "count %d of %s does not fit %d bytes", dc.Count, dc.Symbol, n)
		}
		out = append(out, dc.Symbol...)
		out = appendUintN(out, dc.Count, n)
	}
	return append(out, sb.Remaining...), nil
}

// WriteTo writes sb in the container layout.
func (sb *SegmentedBuffer) WriteTo(w io.Writer) (int64, error) {
	b, err := sb.MarshalBinary()
	if err != nil {
		return 0, err
	}
	n, err := w.Write(b)
	if err == nil && n != len(b) {
		err = io.ErrShortWrite
	}
	return int64(n), errors.WithStack(err)
}

// UnmarshalBinary decodes a container and rejects trailing bytes.
func (sb *SegmentedBuffer) UnmarshalBinary(data []byte) error {
	r := bytes.NewReader(data)
	if _, err := sb.ReadFrom(r); err != nil {
		return err
	}
	if r.Len() != 0 {
		return errors.Wrapf(errs.ErrFormatMismatch, "%d trailing bytes after container", r.Len())
	}
	return nil
}

// fieldReader reads container fields and tracks the offset for errors.
type fieldReader struct {
	r   io.Reader
	off int64
	n   int
	buf [maxSizeOfSize]byte
}

func (fr *fieldReader) read(dst []byte, what string) error {
	at := fr.off
	n, err := io.ReadFull(fr.r, dst)
	fr.off += int64(n)
	if err != nil {
		if errs.IsEOF(err) {
			return errs.Truncated("read %s at offset %d: got %d of %d bytes", what, at, n, len(dst))
		}
		return errors.Wrapf(err, "read %s at offset %d", what, at)
	}
	return nil
}

func (fr *fieldReader) u8(what string) (uint8, error) {
	if err := fr.read(fr.buf[:1], what); err != nil {
		return 0, err
	}
	return fr.buf[0], nil
}

func (fr *fieldReader) uN(what string) (uint64, error) {
	if err := fr.read(fr.buf[:fr.n], what); err != nil {
		return 0, err
	}
	return readUintN(fr.buf[:fr.n]), nil
}

// intField reads an N-byte field that must fit an int no larger than limit.
func (fr *fieldReader) intField(what string, limit uint64) (int, error) {
	at := fr.off
	v, err := fr.uN(what)
	if err != nil {
		return 0, err
	}
	if v > limit {
		return 0, errors.Wrapf(errs.ErrFormatMismatch, "%s %d at offset %d exceeds %d", what, v, at, limit)
	}
	return int(v), nil
}

// ReadFrom decodes a container from r, replacing the contents of sb only
// when the whole container is valid.
func (sb *SegmentedBuffer) ReadFrom(r io.Reader) (int64, error) {
	fr := &fieldReader{r: r}

	n, err := fr.u8("size_of_size")
	if err != nil {
		return fr.off, err
	}
	if n < 1 || n > maxSizeOfSize {
		return fr.off, errors.Wrapf(errs.ErrFormatMismatch, "size of size %d at offset 0", n)
	}
	fr.n = int(n)

	var tmp SegmentedBuffer
	tmp.SizeOfSize = int(n)
	if tmp.BufferBits, err = fr.uN("buffer_bits"); err != nil {
		return fr.off, err
	}
	if tmp.BufferSize, err = fr.uN("buffer_size"); err != nil {
		return fr.off, err
	}
	if tmp.DataBits, err = fr.intField("data_bits", scan.MaxDataBits); err != nil {
		return fr.off, err
	}
	if tmp.DataSize, err = fr.intField("data_size", uint64(scan.DataSize(scan.MaxDataBits))); err != nil {
		return fr.off, err
	}
	if tmp.RemainingBits, err = fr.intField("remaining_bits", scan.MaxDataBits); err != nil {
		return fr.off, err
	}
	if tmp.RemainingSize, err = fr.intField("remaining_size", uint64(scan.DataSize(scan.MaxDataBits))); err != nil {
		return fr.off, err
	}

	tagAt := fr.off
	tag, err := fr.u8("method")
	if err != nil {
		return fr.off, err
	}
	tmp.Method = scan.Method(tag)
	if !tmp.Method.Valid() {
		return fr.off, errors.Wrapf(errs.ErrFormatMismatch, "unknown method tag %d at offset %d", tag, tagAt)
	}
	if err := scan.Validate(tmp.DataBits, tmp.Method); err != nil {
		return fr.off, errors.Wrapf(errs.ErrFormatMismatch, "header: %v", err)
	}
	if tmp.BufferSize > maxBufferSize || tmp.BufferBits != tmp.BufferSize*8 {
		return fr.off, errors.Wrapf(errs.ErrFormatMismatch, "buffer bits %d for %d bytes", tmp.BufferBits, tmp.BufferSize)
	}
	if tmp.DataSize != scan.DataSize(tmp.DataBits) {
		return fr.off, errors.Wrapf(errs.ErrFormatMismatch, "data size %d for %d bits", tmp.DataSize, tmp.DataBits)
	}
	if uint64(tmp.RemainingBits) != tmp.BufferBits%uint64(tmp.DataBits) ||
		tmp.RemainingSize != scan.DataSize(tmp.RemainingBits) {
		return fr.off, errors.Wrapf(errs.ErrFormatMismatch, "remaining %d bits in %d bytes for %d bits at width %d",
			tmp.RemainingBits, tmp.RemainingSize, tmp.BufferBits, tmp.DataBits)
	}

	symbols := tmp.SymbolBits() / uint64(tmp.DataBits)
	countAt := fr.off
	count, err := fr.uN("symbol_count")
	if err != nil {
		return fr.off, err
	}
	if count > symbols {
		return fr.off, errors.Wrapf(errs.ErrFormatMismatch,
			"symbol count %d at offset %d exceeds the %d symbols in the buffer", count, countAt, symbols)
	}

	pad := uint(tmp.DataSize*8 - tmp.DataBits)
	tmp.Counts = make([]DataCount, 0, min(count, preallocLimit))
	seen := make(map[scan.Symbol]struct{}, min(count, preallocLimit))
	symBuf := make([]byte, tmp.DataSize)
	var total uint64
	for i := uint64(0); i < count; i++ {
		at := fr.off
		if err := fr.read(symBuf, "symbol"); err != nil {
			return fr.off, err
		}
		if pad != 0 && symBuf[0]>>(8-pad) != 0 {
			return fr.off, errors.Wrapf(errs.ErrFormatMismatch, "symbol at offset %d wider than %d bits", at, tmp.DataBits)
		}
		sym := scan.SymbolFromBytes(symBuf)
		if _, dup := seen[sym]; dup {
			return fr.off, errors.Wrapf(errs.ErrFormatMismatch, "duplicate symbol %s at offset %d", sym, at)
		}
		seen[sym] = struct{}{}

		c, err := fr.uN("count")
		if err != nil {
			return fr.off, err
		}
		if c == 0 || c > symbols-total {
			return fr.off, errors.Wrapf(errs.ErrFormatMismatch, "count %d of symbol %s at offset %d", c, sym, at)
		}
		if i > 0 && c < tmp.Counts[i-1].Count {
			return fr.off, errors.Wrapf(errs.ErrFormatMismatch, "symbol table not sorted at offset %d", at)
		}
		total += c
		tmp.Counts = append(tmp.Counts, DataCount{Symbol: sym, Count: c})
	}
	if total != symbols {
		return fr.off, errors.Wrapf(errs.ErrFormatMismatch, "symbol counts total %d, buffer holds %d", total, symbols)
	}

	tmp.Remaining = make([]byte, tmp.RemainingSize)
	remAt := fr.off
	if err := fr.read(tmp.Remaining, "remaining"); err != nil {
		return fr.off, err
	}
	if tmp.RemainingBits > 0 && tmp.Remaining[0]>>uint(tmp.RemainingBits-(tmp.RemainingSize-1)*8) != 0 {
		return fr.off, errors.Wrapf(errs.ErrFormatMismatch, "remaining value at offset %d wider than %d bits", remAt, tmp.RemainingBits)
	}

	*sb = tmp
	return fr.off, nil
}
