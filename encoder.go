package huffscan

import (
	"bytes"
	"time"

	"github.com/dgryski/go-bitstream"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/seiflotfy/huffscan/errs"
	"github.com/seiflotfy/huffscan/scan"
)

// Encoder compresses buffers with a Huffman code over fixed-width symbols.
type Encoder struct {
	dataBits int
	method   scan.Method
	config   Config
}

// NewEncoder creates an encoder for dataBits-wide symbols. The width,
// method and options are checked here so Encode only fails on the data.
func NewEncoder(dataBits int, method scan.Method, opts ...Option) (*Encoder, error) {
	cfg, err := newConfig(opts)
	if err != nil {
		return nil, err
	}
	if err := scan.Validate(dataBits, method); err != nil {
		return nil, err
	}
	return &Encoder{dataBits: dataBits, method: method, config: cfg}, nil
}

// Encode scans buffer, builds its codebook and writes every symbol's
// codeword, most significant bit first, into the archive payload.
func (e *Encoder) Encode(buffer []byte) (*Archive, error) {
	opts := []Option{WithSizeOfSize(e.config.SizeOfSize), WithLogger(e.config.Logger)}
	sb, err := ScanBuffer(buffer, e.dataBits, e.method, opts...)
	if err != nil {
		return nil, err
	}
	a := &Archive{Buffer: sb, compression: e.config.Compression}
	if sb.Unique() == 0 {
		return a, nil
	}

	log := e.config.Logger.WithFields(logrus.Fields{
		"data_bits": e.dataBits,
		"unique":    sb.Unique(),
	})
	start := time.Now()
	log.Debug("pairing")
	cb, err := sb.BuildCodebook()
	if err != nil {
		return nil, err
	}
	log.WithField("max_len", cb.MaxLen()).Debug("setting codecs")

	var payload bytes.Buffer
	payload.Grow(int((cb.CompressedBits() + 7) / 8))
	w := bitstream.NewWriter(&payload)
	var written uint64
	err = scan.Each(buffer, e.dataBits, e.method, func(sym []byte) error {
		code, ok := cb.Lookup(scan.Symbol(sym))
		if !ok {
			return errors.Errorf("symbol %x missing from codebook", sym)
		}
		written += uint64(code.Len())
		return w.WriteBits(code.Bits(), code.Len())
	})
	if err != nil {
		return nil, errors.Wrap(err, "write payload")
	}
	if err := w.Flush(bitstream.Zero); err != nil {
		return nil, errors.Wrap(err, "flush payload")
	}

	log.Debug("calculating total bits")
	if written != cb.CompressedBits() {
		return nil, errors.Wrapf(errs.ErrFormatMismatch, "wrote %d payload bits, codebook predicts %d",
			written, cb.CompressedBits())
	}
	a.Payload = payload.Bytes()
	a.PayloadBits = written
	log.WithFields(logrus.Fields{
		"payload_bits": written,
		"elapsed":      time.Since(start),
	}).Debug("encoded")
	return a, nil
}
