package huffscan

import (
	"slices"
	"sort"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/seiflotfy/huffscan/scan"
)

// DataCount pairs a symbol with the number of times it occurs.
type DataCount struct {
	Symbol scan.Symbol
	Count  uint64
}

// SegmentedBuffer describes a buffer cut into fixed-width symbols: its
// sizes, the symbol counts sorted by ascending count, and the trailing bits
// that do not fill a symbol.
//
// The fields satisfy:
//
//	BufferBits    == BufferSize * 8
//	DataSize      == ceil(DataBits / 8)
//	RemainingBits == BufferBits % DataBits
//	RemainingSize == ceil(RemainingBits / 8)
//	sum(Counts)   == (BufferBits - RemainingBits) / DataBits
type SegmentedBuffer struct {
	SizeOfSize int

	BufferSize uint64
	BufferBits uint64
	DataBits   int
	DataSize   int
	Method     scan.Method

	// Counts is ordered by Count; equal counts keep the order in which the
	// symbols first appeared in the buffer.
	Counts []DataCount

	Remaining     []byte
	RemainingBits int
	RemainingSize int
}

// ScanBuffer cuts buffer into dataBits-wide symbols and counts them. No
// codewords are assigned; see BuildCodebook.
func ScanBuffer(buffer []byte, dataBits int, method scan.Method, opts ...Option) (*SegmentedBuffer, error) {
	cfg, err := newConfig(opts)
	if err != nil {
		return nil, err
	}
	log := cfg.Logger.WithFields(logrus.Fields{
		"data_bits": dataBits,
		"method":    method.String(),
		"size":      len(buffer),
	})

	start := time.Now()
	log.Debug("counting data")
	res, err := scan.Scan(buffer, dataBits, method)
	if err != nil {
		return nil, err
	}

	log.WithField("unique", res.Unique()).Debug("sorting")
	counts := make([]DataCount, res.Unique())
	for i, s := range res.Symbols {
		counts[i] = DataCount{Symbol: s, Count: res.Counts[i]}
	}
	sort.SliceStable(counts, func(i, j int) bool {
		return counts[i].Count < counts[j].Count
	})

	sb := &SegmentedBuffer{
		SizeOfSize:    cfg.SizeOfSize,
		BufferSize:    uint64(len(buffer)),
		BufferBits:    uint64(len(buffer)) * 8,
		DataBits:      dataBits,
		DataSize:      scan.DataSize(dataBits),
		Method:        method,
		Counts:        counts,
		Remaining:     res.Remaining,
		RemainingBits: res.RemainingBits,
		RemainingSize: scan.DataSize(res.RemainingBits),
	}
	log.WithFields(logrus.Fields{
		"unique":  len(counts),
		"elapsed": time.Since(start),
	}).Debug("scan done")
	return sb, nil
}

// Clone returns a copy of sb that shares no slices with it.
func (sb *SegmentedBuffer) Clone() *SegmentedBuffer {
	c := *sb
	c.Counts = slices.Clone(sb.Counts)
	c.Remaining = slices.Clone(sb.Remaining)
	return &c
}

// Total returns the number of full symbols in the buffer.
func (sb *SegmentedBuffer) Total() uint64 {
	var n uint64
	for _, dc := range sb.Counts {
		n += dc.Count
	}
	return n
}

// Unique returns the number of distinct symbols.
func (sb *SegmentedBuffer) Unique() int {
	return len(sb.Counts)
}

// SymbolBits returns the number of buffer bits covered by full symbols.
func (sb *SegmentedBuffer) SymbolBits() uint64 {
	return sb.BufferBits - uint64(sb.RemainingBits)
}
