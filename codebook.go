package huffscan

import (
	"github.com/pkg/errors"

	"github.com/seiflotfy/huffscan/errs"
	"github.com/seiflotfy/huffscan/huffman"
	"github.com/seiflotfy/huffscan/scan"
)

// CodebookEntry is one symbol with its count and codeword.
type CodebookEntry struct {
	Symbol scan.Symbol
	Count  uint64
	Code   huffman.Codeword
}

// Codebook maps every symbol of a SegmentedBuffer to its Huffman codeword.
// It depends only on the sorted count table, so a reader rebuilds exactly
// the codebook the writer used.
type Codebook struct {
	tree    *huffman.Tree
	symbols []scan.Symbol
	codes   map[scan.Symbol]huffman.Codeword
	total   uint64
}

// BuildCodebook assigns codewords to the symbols of sb. A buffer without
// full symbols has nothing to code and fails with ErrInvalidArgument.
func (sb *SegmentedBuffer) BuildCodebook() (*Codebook, error) {
	counts := make([]uint64, len(sb.Counts))
	symbols := make([]scan.Symbol, len(sb.Counts))
	for i, dc := range sb.Counts {
		counts[i] = dc.Count
		symbols[i] = dc.Symbol
	}
	tree, err := huffman.Build(counts)
	if err != nil {
		return nil, errors.Wrapf(err, "codebook for %d-bit symbols", sb.DataBits)
	}

	cb := &Codebook{
		tree:    tree,
		symbols: symbols,
		codes:   make(map[scan.Symbol]huffman.Codeword, len(symbols)),
	}
	for i, code := range tree.Codes() {
		if _, dup := cb.codes[symbols[i]]; dup {
			return nil, errors.Wrapf(errs.ErrFormatMismatch, "symbol %s listed twice", symbols[i])
		}
		cb.codes[symbols[i]] = code
		cb.total += counts[i]
	}
	if cb.total != sb.Total() {
		return nil, errors.Errorf("codebook covers %d symbols, buffer has %d", cb.total, sb.Total())
	}
	return cb, nil
}

// Len returns the number of coded symbols.
func (cb *Codebook) Len() int { return len(cb.symbols) }

// Lookup returns the codeword of s.
func (cb *Codebook) Lookup(s scan.Symbol) (huffman.Codeword, bool) {
	c, ok := cb.codes[s]
	return c, ok
}

// Entries lists the symbols in breadth-first tree order, shortest codes
// first.
func (cb *Codebook) Entries() []CodebookEntry {
	leaves := cb.tree.Entries()
	out := make([]CodebookEntry, len(leaves))
	for i, e := range leaves {
		out[i] = CodebookEntry{Symbol: cb.symbols[e.Index], Count: e.Count, Code: e.Code}
	}
	return out
}

// CompressedBits returns the number of bits needed to code every full
// symbol of the buffer.
func (cb *Codebook) CompressedBits() uint64 {
	return cb.tree.WeightedLength()
}

// MaxLen returns the longest codeword length.
func (cb *Codebook) MaxLen() int {
	return cb.tree.MaxLen()
}

// Symbols returns the number of symbol occurrences the codebook covers.
func (cb *Codebook) Symbols() uint64 {
	return cb.total
}

// decode reads one codeword and returns the index of its symbol in the
// count table.
func (cb *Codebook) decode(r huffman.BitReader) (int, error) {
	return cb.tree.Decode(r)
}
