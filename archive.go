package huffscan

import (
	"bytes"
	"compress/flate"
	"encoding/binary"
	"io"

	"github.com/dgryski/go-bitstream"
	"github.com/klauspost/compress/zstd"
	"github.com/pkg/errors"

	"github.com/seiflotfy/huffscan/errs"
	"github.com/seiflotfy/huffscan/varint"
)

const (
	archiveMagic   = "HSAR"
	archiveVersion = uint16(1)

	stageSegmentedBuffer = "segmented_buffer"
	stagePayload         = "payload"

	payloadEncodingRaw   = uint8(0)
	payloadEncodingFlate = uint8(1)
	payloadEncodingZstd  = uint8(2)

	maxArchiveStages     = 64
	maxStageParamBytes   = 1 << 16
	maxStagePayloadBytes = 1 << 30 // 1 GiB
)

// Wire format (version 1), integers big-endian:
//
//	magic[4] = "HSAR"
//	version  = uint16
//	stageCnt = uint16
//	repeat stageCnt times:
//	  nameLen  = uint8
//	  name     = nameLen bytes
//	  paramLen = varint
//	  params   = paramLen bytes
//	  dataLen  = varint
//	  payload  = dataLen bytes
//
// Required stages:
//
//	segmented_buffer  params empty, payload is the SegmentedBuffer container
//	payload           params = encoding uint8 + varint payload bits,
//	                  payload is the codeword bitstream (raw, flate or zstd)
//
// Unknown stages are skipped via dataLen framing.
type wireStageHeader struct {
	name     string
	paramLen uint64
	dataLen  uint64
}

// Archive is a compressed buffer: the symbol table needed to rebuild the
// codebook and the codeword bitstream.
type Archive struct {
	Buffer *SegmentedBuffer
	// Payload holds PayloadBits codeword bits, most significant first,
	// zero-padded to a whole byte.
	Payload     []byte
	PayloadBits uint64

	compression Compression // requested by the Encoder
	stored      Compression // used by the last WriteTo or found by ReadFrom
}

// Compression reports how the payload stage is stored: the encoding the last
// WriteTo picked or ReadFrom found. Before either, it is the encoding the
// Encoder was configured with, which may be CompressionAuto.
func (a *Archive) Compression() Compression {
	if a.stored != CompressionAuto {
		return a.stored
	}
	return a.compression
}

// SpaceUsed returns the decoded size of the archive contents in bytes.
func (a *Archive) SpaceUsed() int {
	n := len(a.Payload)
	if a.Buffer != nil {
		n += len(a.Buffer.Counts)*(a.Buffer.DataSize+a.Buffer.SizeOfSize) + a.Buffer.RemainingSize
	}
	return n
}

// countingReader reads one byte at a time for varints without reading past
// the archive, and tracks the offset for error messages.
type countingReader struct {
	r   io.Reader
	off int64
	one [1]byte
}

func (c *countingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	c.off += int64(n)
	return n, err
}

func (c *countingReader) ReadByte() (byte, error) {
	if _, err := io.ReadFull(c, c.one[:]); err != nil {
		return 0, err
	}
	return c.one[0], nil
}

func readFull(c *countingReader, dst []byte, what string) error {
	at := c.off
	n, err := io.ReadFull(c, dst)
	if err != nil {
		if errs.IsEOF(err) {
			return errs.Truncated("read %s at offset %d: got %d of %d bytes", what, at, n, len(dst))
		}
		return errors.Wrapf(err, "read %s at offset %d", what, at)
	}
	return nil
}

func readLength(c *countingReader, what string, limit uint64) (uint64, error) {
	at := c.off
	v, err := varint.ReadUint64(c)
	if err != nil {
		if err == io.EOF {
			err = errs.Truncated("archive ended")
		}
		return 0, errors.Wrapf(err, "read %s at offset %d", what, at)
	}
	if v > limit {
		return 0, errors.Wrapf(errs.ErrFormatMismatch, "%s %d at offset %d exceeds %d", what, v, at, limit)
	}
	return v, nil
}

func writeBytes(w io.Writer, b []byte) (int64, error) {
	n, err := w.Write(b)
	if err != nil {
		return int64(n), errors.WithStack(err)
	}
	if n != len(b) {
		return int64(n), errors.WithStack(io.ErrShortWrite)
	}
	return int64(n), nil
}

func writeStage(w io.Writer, name string, params []byte, payload []byte) (int64, error) {
	if len(name) == 0 || len(name) > 255 {
		return 0, errors.Wrapf(errs.ErrInvalidArgument, "stage name length %d", len(name))
	}
	if len(params) > maxStageParamBytes {
		return 0, errors.Wrapf(errs.ErrInvalidArgument, "stage params too large for %q: %d", name, len(params))
	}
	if len(payload) > maxStagePayloadBytes {
		return 0, errors.Wrapf(errs.ErrInvalidArgument, "stage payload too large for %q: %d", name, len(payload))
	}

	header := make([]byte, 0, 1+len(name)+2*varint.MaxLen64)
	header = append(header, uint8(len(name)))
	header = append(header, name...)
	header = varint.AppendUint64(header, uint64(len(params)))

	var total int64
	for _, part := range [][]byte{header, params, varint.AppendUint64(nil, uint64(len(payload))), payload} {
		n, err := writeBytes(w, part)
		total += n
		if err != nil {
			return total, err
		}
	}
	return total, nil
}

func readStageHeader(c *countingReader) (wireStageHeader, error) {
	var nameLen [1]byte
	if err := readFull(c, nameLen[:], "stage name length"); err != nil {
		return wireStageHeader{}, err
	}
	if nameLen[0] == 0 {
		return wireStageHeader{}, errors.Wrapf(errs.ErrFormatMismatch, "empty stage name at offset %d", c.off-1)
	}
	name := make([]byte, nameLen[0])
	if err := readFull(c, name, "stage name"); err != nil {
		return wireStageHeader{}, err
	}
	paramLen, err := readLength(c, "stage params length", maxStageParamBytes)
	if err != nil {
		return wireStageHeader{}, err
	}
	return wireStageHeader{name: string(name), paramLen: paramLen}, nil
}

func encodeFlatePayload(raw []byte) ([]byte, error) {
	var buf bytes.Buffer
	w, err := flate.NewWriter(&buf, flate.BestCompression)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	if _, err := w.Write(raw); err != nil {
		_ = w.Close()
		return nil, errors.WithStack(err)
	}
	if err := w.Close(); err != nil {
		return nil, errors.WithStack(err)
	}
	return buf.Bytes(), nil
}

func encodeZstdPayload(raw []byte) ([]byte, error) {
	var buf bytes.Buffer
	enc, err := zstd.NewWriter(&buf, zstd.WithEncoderLevel(zstd.SpeedBestCompression))
	if err != nil {
		return nil, errors.WithStack(err)
	}
	if _, err := enc.Write(raw); err != nil {
		_ = enc.Close()
		return nil, errors.WithStack(err)
	}
	if err := enc.Close(); err != nil {
		return nil, errors.WithStack(err)
	}
	return buf.Bytes(), nil
}

// readLimited drains r, failing if it yields more than limit bytes.
func readLimited(r io.Reader, limit int, what string) ([]byte, error) {
	raw, err := io.ReadAll(io.LimitReader(r, int64(limit)+1))
	if err != nil {
		return nil, errors.Wrapf(errs.ErrFormatMismatch, "%s payload: %v", what, err)
	}
	if len(raw) > limit {
		return nil, errors.Wrapf(errs.ErrFormatMismatch, "%s payload expands beyond %d bytes", what, limit)
	}
	return raw, nil
}

func decodeFlatePayload(payload []byte, limit int) ([]byte, error) {
	r := flate.NewReader(bytes.NewReader(payload))
	defer r.Close()
	return readLimited(r, limit, "flate")
}

func decodeZstdPayload(payload []byte, limit int) ([]byte, error) {
	dec, err := zstd.NewReader(bytes.NewReader(payload), zstd.WithDecoderConcurrency(1))
	if err != nil {
		return nil, errors.WithStack(err)
	}
	defer dec.Close()
	return readLimited(dec, limit, "zstd")
}

// encodePayloadStage stores the codeword bits in the requested encoding, or
// in whichever encoding is smallest for CompressionAuto.
func encodePayloadStage(a *Archive) ([]byte, []byte, Compression, error) {
	type candidate struct {
		payload  []byte
		encoding uint8
		comp     Compression
	}
	raw := a.Payload
	if raw == nil {
		raw = []byte{}
	}

	var candidates []candidate
	comp := a.compression
	if comp == CompressionAuto || comp == CompressionNone {
		candidates = append(candidates, candidate{payload: raw, encoding: payloadEncodingRaw, comp: CompressionNone})
	}
	if comp == CompressionAuto || comp == CompressionFlate {
		p, err := encodeFlatePayload(raw)
		if err != nil {
			return nil, nil, 0, err
		}
		candidates = append(candidates, candidate{payload: p, encoding: payloadEncodingFlate, comp: CompressionFlate})
	}
	if comp == CompressionAuto || comp == CompressionZstd {
		p, err := encodeZstdPayload(raw)
		if err != nil {
			return nil, nil, 0, err
		}
		candidates = append(candidates, candidate{payload: p, encoding: payloadEncodingZstd, comp: CompressionZstd})
	}
	if len(candidates) == 0 {
		return nil, nil, 0, errors.Wrapf(errs.ErrInvalidArgument, "payload compression %d", comp)
	}

	best := candidates[0]
	for _, c := range candidates[1:] {
		if len(c.payload) < len(best.payload) {
			best = c
		}
	}
	params := varint.AppendUint64([]byte{best.encoding}, a.PayloadBits)
	return params, best.payload, best.comp, nil
}

func decodePayloadStage(dst *Archive, params []byte, payload []byte) error {
	if len(params) < 2 {
		return errors.Wrapf(errs.ErrFormatMismatch, "payload params of %d bytes", len(params))
	}
	pr := bytes.NewReader(params[1:])
	bits, err := varint.ReadUint64(pr)
	if err != nil {
		return errors.Wrap(err, "payload bit count")
	}
	if pr.Len() != 0 {
		return errors.Wrapf(errs.ErrFormatMismatch, "%d trailing payload param bytes", pr.Len())
	}
	if bits > uint64(maxStagePayloadBytes)*8 {
		return errors.Wrapf(errs.ErrFormatMismatch, "payload bit count %d", bits)
	}
	size := int((bits + 7) / 8)

	var raw []byte
	switch params[0] {
	case payloadEncodingRaw:
		raw = payload
		dst.stored = CompressionNone
	case payloadEncodingFlate:
		if raw, err = decodeFlatePayload(payload, size); err != nil {
			return err
		}
		dst.stored = CompressionFlate
	case payloadEncodingZstd:
		if raw, err = decodeZstdPayload(payload, size); err != nil {
			return err
		}
		dst.stored = CompressionZstd
	default:
		return errors.Wrapf(errs.ErrFormatMismatch, "unknown payload encoding %d", params[0])
	}
	dst.compression = dst.stored
	if len(raw) != size {
		return errors.Wrapf(errs.ErrFormatMismatch, "payload of %d bytes for %d bits", len(raw), bits)
	}
	if pad := uint(size*8) - uint(bits); pad > 0 && raw[size-1]&(1<<pad-1) != 0 {
		return errors.Wrap(errs.ErrFormatMismatch, "payload padding bits are not zero")
	}
	dst.Payload = append([]byte(nil), raw...)
	dst.PayloadBits = bits
	return nil
}

func validateArchiveStructure(a *Archive) error {
	if a.Buffer == nil {
		return errors.Wrap(errs.ErrInvalidArgument, "archive has no segmented buffer")
	}
	if err := a.Buffer.validate(); err != nil {
		return err
	}
	if uint64(len(a.Payload)) != (a.PayloadBits+7)/8 {
		return errors.Wrapf(errs.ErrFormatMismatch, "payload of %d bytes for %d bits", len(a.Payload), a.PayloadBits)
	}
	return nil
}

// WriteTo serializes the Archive to an io.Writer.
func (a *Archive) WriteTo(w io.Writer) (int64, error) {
	if err := validateArchiveStructure(a); err != nil {
		return 0, errors.Wrap(err, "invalid archive")
	}

	container, err := a.Buffer.MarshalBinary()
	if err != nil {
		return 0, err
	}
	payloadParams, payload, stored, err := encodePayloadStage(a)
	if err != nil {
		return 0, err
	}
	a.stored = stored

	stages := []struct {
		name    string
		params  []byte
		payload []byte
	}{
		{name: stageSegmentedBuffer, payload: container},
		{name: stagePayload, params: payloadParams, payload: payload},
	}

	var total int64
	var head [8]byte
	copy(head[:4], archiveMagic)
	binary.BigEndian.PutUint16(head[4:], archiveVersion)
	binary.BigEndian.PutUint16(head[6:], uint16(len(stages)))
	n, err := writeBytes(w, head[:])
	total += n
	if err != nil {
		return total, err
	}

	for _, stage := range stages {
		n, err := writeStage(w, stage.name, stage.params, stage.payload)
		total += n
		if err != nil {
			return total, err
		}
	}
	return total, nil
}

// ReadFrom deserializes an Archive from an io.Reader. a is only modified
// when the whole archive is valid.
func (a *Archive) ReadFrom(r io.Reader) (int64, error) {
	c := &countingReader{r: r}

	var head [8]byte
	if err := readFull(c, head[:], "archive header"); err != nil {
		return c.off, err
	}
	if string(head[:4]) != archiveMagic {
		return c.off, errors.Wrapf(errs.ErrFormatMismatch, "invalid archive magic at offset 0: %q", head[:4])
	}
	if version := binary.BigEndian.Uint16(head[4:]); version != archiveVersion {
		return c.off, errors.Wrapf(errs.ErrFormatMismatch, "unsupported archive version at offset 4: %d", version)
	}
	stageCount := binary.BigEndian.Uint16(head[6:])
	if stageCount == 0 || stageCount > maxArchiveStages {
		return c.off, errors.Wrapf(errs.ErrFormatMismatch, "invalid stage count at offset 6: %d", stageCount)
	}

	var tmp Archive
	seenStages := make(map[string]bool, stageCount)
	for i := 0; i < int(stageCount); i++ {
		headerOffset := c.off
		header, err := readStageHeader(c)
		if err != nil {
			return c.off, errors.Wrapf(err, "stage index %d", i)
		}
		if seenStages[header.name] {
			return c.off, errors.Wrapf(errs.ErrFormatMismatch, "duplicate stage %q at offset %d", header.name, headerOffset)
		}

		params := make([]byte, header.paramLen)
		if err := readFull(c, params, "stage params"); err != nil {
			return c.off, errors.Wrapf(err, "stage %q", header.name)
		}
		if header.dataLen, err = readLength(c, "stage payload length", maxStagePayloadBytes); err != nil {
			return c.off, errors.Wrapf(err, "stage %q", header.name)
		}

		switch header.name {
		case stageSegmentedBuffer, stagePayload:
			payloadOffset := c.off
			payload := make([]byte, header.dataLen)
			if err := readFull(c, payload, "stage payload"); err != nil {
				return c.off, errors.Wrapf(err, "stage %q", header.name)
			}
			var err error
			if header.name == stageSegmentedBuffer {
				var sb SegmentedBuffer
				err = sb.UnmarshalBinary(payload)
				tmp.Buffer = &sb
			} else {
				err = decodePayloadStage(&tmp, params, payload)
			}
			if err != nil {
				return c.off, errors.Wrapf(err, "decode stage %q at offset %d (stage index %d)", header.name, payloadOffset, i)
			}
			seenStages[header.name] = true

		default:
			skipOffset := c.off
			skipped, err := io.CopyN(io.Discard, c, int64(header.dataLen))
			if err != nil {
				if errs.IsEOF(err) {
					err = errs.Truncated("skipped %d of %d bytes", skipped, header.dataLen)
				}
				return c.off, errors.Wrapf(err, "skip unknown stage %q at offset %d (stage index %d)", header.name, skipOffset, i)
			}
		}
	}

	for _, stageName := range []string{stageSegmentedBuffer, stagePayload} {
		if !seenStages[stageName] {
			return c.off, errors.Wrapf(errs.ErrFormatMismatch, "missing required stage %q", stageName)
		}
	}
	if err := validateArchiveStructure(&tmp); err != nil {
		return c.off, errors.Wrap(err, "invalid archive structure")
	}

	*a = tmp
	return c.off, nil
}

// MarshalBinary encodes the archive in its wire format.
func (a *Archive) MarshalBinary() ([]byte, error) {
	var buf bytes.Buffer
	if _, err := a.WriteTo(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// UnmarshalBinary decodes an archive and rejects trailing bytes.
func (a *Archive) UnmarshalBinary(data []byte) error {
	r := bytes.NewReader(data)
	if _, err := a.ReadFrom(r); err != nil {
		return err
	}
	if r.Len() != 0 {
		return errors.Wrapf(errs.ErrFormatMismatch, "%d trailing bytes after archive", r.Len())
	}
	return nil
}

// bitCounter counts the bits read through it.
type bitCounter struct {
	r *bitstream.BitReader
	n uint64
}

func (c *bitCounter) ReadBit() (bitstream.Bit, error) {
	b, err := c.r.ReadBit()
	if err == nil {
		c.n++
	}
	return b, err
}

// writeSymbol appends the low bits of a right-aligned symbol.
func writeSymbol(w *bitstream.BitWriter, sym []byte, bits int) error {
	if bits == 0 {
		return nil
	}
	lead := bits - (len(sym)-1)*8
	if err := w.WriteBits(uint64(sym[0]), lead); err != nil {
		return err
	}
	for _, b := range sym[1:] {
		if err := w.WriteByte(b); err != nil {
			return err
		}
	}
	return nil
}

// Decode rebuilds the original buffer from the archive.
func (a *Archive) Decode() ([]byte, error) {
	if err := validateArchiveStructure(a); err != nil {
		return nil, err
	}
	sb := a.Buffer

	var out bytes.Buffer
	out.Grow(int(min(sb.BufferSize, preallocLimit)))
	w := bitstream.NewWriter(&out)

	if sb.Unique() > 0 {
		cb, err := sb.BuildCodebook()
		if err != nil {
			return nil, err
		}
		if a.PayloadBits != cb.CompressedBits() {
			return nil, errors.Wrapf(errs.ErrFormatMismatch, "payload holds %d bits, codebook needs %d",
				a.PayloadBits, cb.CompressedBits())
		}
		r := &bitCounter{r: bitstream.NewReader(bytes.NewReader(a.Payload))}
		seen := make([]uint64, len(sb.Counts))
		for i := uint64(0); i < cb.Symbols(); i++ {
			idx, err := cb.decode(r)
			if err != nil {
				return nil, errors.Wrapf(err, "symbol %d", i)
			}
			dc := sb.Counts[idx]
			if seen[idx]++; seen[idx] > dc.Count {
				return nil, errors.Wrapf(errs.ErrFormatMismatch, "symbol %s decoded more than its count %d at symbol %d",
					dc.Symbol, dc.Count, i)
			}
			if err := writeSymbol(w, []byte(dc.Symbol), sb.DataBits); err != nil {
				return nil, errors.WithStack(err)
			}
		}
		if r.n != a.PayloadBits {
			return nil, errors.Wrapf(errs.ErrFormatMismatch, "decoding used %d of %d payload bits", r.n, a.PayloadBits)
		}
	} else if a.PayloadBits != 0 {
		return nil, errors.Wrapf(errs.ErrFormatMismatch, "payload of %d bits for a buffer without symbols", a.PayloadBits)
	}

	if err := writeSymbol(w, sb.Remaining, sb.RemainingBits); err != nil {
		return nil, errors.WithStack(err)
	}
	if err := w.Flush(bitstream.Zero); err != nil {
		return nil, errors.WithStack(err)
	}
	if uint64(out.Len()) != sb.BufferSize {
		return nil, errors.Wrapf(errs.ErrFormatMismatch, "decoded %d bytes, want %d", out.Len(), sb.BufferSize)
	}
	return out.Bytes(), nil
}
