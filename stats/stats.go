// Package stats summarizes how well a Huffman code over fixed-width symbols
// compresses a buffer.
package stats

import (
	"fmt"
	"io"
	"math"
	"math/big"
	"strings"
	"text/tabwriter"

	"github.com/pkg/errors"

	"github.com/seiflotfy/huffscan"
	"github.com/seiflotfy/huffscan/errs"
	"github.com/seiflotfy/huffscan/units"
)

const separatorWidth = 80

// Report holds the figures derived from a SegmentedBuffer and, when one was
// given, its Codebook.
type Report struct {
	BufferSize uint64
	BufferBits uint64
	// SymbolBits is the part of the buffer covered by full symbols.
	SymbolBits uint64
	DataBits   int

	Remaining     []byte
	RemainingBits int

	Unique   int
	Possible *big.Int // 2^DataBits
	Fraction float64  // Unique / Possible

	MinCount     uint64
	MaxCount     uint64
	AverageCount float64

	// EntropyPerSymbol is the Shannon entropy of the symbol distribution in
	// bits; EntropyBits is the resulting lower bound for the coded size.
	EntropyPerSymbol float64
	EntropyBits      float64

	HasCodebook        bool
	MaxCodeLen         int
	CompressedBits     uint64
	CompressedFraction float64 // CompressedBits / SymbolBits
	CompressedDiff     int64   // CompressedBits - SymbolBits

	// DictionaryBits is the cost of listing every distinct symbol once.
	DictionaryBits uint64
	OverheadBits   uint64 // CompressedBits + DictionaryBits
	OverheadDiff   int64  // OverheadBits - SymbolBits
}

// Compute derives a Report. cb may be nil, in which case only the counting
// figures are filled in. A buffer without full symbols is rejected.
func Compute(sb *huffscan.SegmentedBuffer, cb *huffscan.Codebook) (*Report, error) {
	total := sb.Total()
	if total == 0 {
		return nil, errors.Wrapf(errs.ErrInvalidArgument, "no full %d-bit symbols in a %d byte buffer", sb.DataBits, sb.BufferSize)
	}

	r := &Report{
		BufferSize:    sb.BufferSize,
		BufferBits:    sb.BufferBits,
		SymbolBits:    sb.SymbolBits(),
		DataBits:      sb.DataBits,
		Remaining:     sb.Remaining,
		RemainingBits: sb.RemainingBits,
		Unique:        sb.Unique(),
		Possible:      new(big.Int).Lsh(big.NewInt(1), uint(sb.DataBits)),
		MinCount:      math.MaxUint64,
	}
	r.Fraction, _ = new(big.Float).Quo(
		new(big.Float).SetInt64(int64(r.Unique)),
		new(big.Float).SetInt(r.Possible),
	).Float64()

	for _, dc := range sb.Counts {
		r.MinCount = min(r.MinCount, dc.Count)
		r.MaxCount = max(r.MaxCount, dc.Count)
		p := float64(dc.Count) / float64(total)
		r.EntropyPerSymbol -= p * math.Log2(p)
	}
	r.AverageCount = float64(total) / float64(r.Unique)
	r.EntropyBits = r.EntropyPerSymbol * float64(total)
	r.DictionaryBits = uint64(sb.DataBits) * uint64(r.Unique)

	if cb != nil {
		if cb.Symbols() != total {
			return nil, errors.Wrapf(errs.ErrInvalidArgument, "codebook covers %d symbols, buffer has %d", cb.Symbols(), total)
		}
		r.HasCodebook = true
		r.MaxCodeLen = cb.MaxLen()
		r.CompressedBits = cb.CompressedBits()
		r.CompressedFraction = float64(r.CompressedBits) / float64(r.SymbolBits)
		r.CompressedDiff = int64(r.CompressedBits) - int64(r.SymbolBits)
		r.OverheadBits = r.CompressedBits + r.DictionaryBits
		r.OverheadDiff = int64(r.OverheadBits) - int64(r.SymbolBits)
	}
	return r, nil
}

// Separator returns a line of width characters with title centred in it.
func Separator(title string, char rune, width int) string {
	c := string(char)
	if title == "" {
		return strings.Repeat(c, width)
	}
	width -= len(title) + 2
	if width < 0 {
		width = 0
	}
	left := width / 2
	return strings.Repeat(c, left) + " " + title + " " + strings.Repeat(c, width-left)
}

func hexBytes(b []byte) string {
	parts := make([]string, len(b))
	for i, v := range b {
		parts[i] = fmt.Sprintf("%02x", v)
	}
	return strings.Join(parts, " ")
}

func signed(n int64) string {
	if n > 0 {
		return fmt.Sprintf("+%d", n)
	}
	return fmt.Sprintf("%d", n)
}

// Rows returns the report as label/value pairs in display order.
func (r *Report) Rows() [][2]string {
	rows := [][2]string{
		{"buffer size", fmt.Sprintf("%s (%d bits)", units.Format(r.BufferSize), r.BufferBits)},
		{"symbol size", fmt.Sprintf("%s (%d bits)", units.Format(r.SymbolBits/8), r.SymbolBits)},
		{"data width", fmt.Sprintf("%d bits", r.DataBits)},
		{"remaining", fmt.Sprintf("[%s] (%d bits)", hexBytes(r.Remaining), r.RemainingBits)},
		{"unique symbols", fmt.Sprintf("%d / %s (%.4f)", r.Unique, r.Possible, r.Fraction)},
		{"count min/max/avg", fmt.Sprintf("%d / %d / %.2f", r.MinCount, r.MaxCount, r.AverageCount)},
		{"entropy", fmt.Sprintf("%.4f bits/symbol (%.0f bits)", r.EntropyPerSymbol, math.Ceil(r.EntropyBits))},
		{"dictionary bits", fmt.Sprintf("%d", r.DictionaryBits)},
	}
	if r.HasCodebook {
		rows = append(rows,
			[2]string{"max code length", fmt.Sprintf("%d bits", r.MaxCodeLen)},
			[2]string{"total bits", fmt.Sprintf("%d / %d (%.4f) (%s bits)",
				r.CompressedBits, r.SymbolBits, r.CompressedFraction, signed(r.CompressedDiff))},
			[2]string{"with dictionary", fmt.Sprintf("%d / %d (%s bits)",
				r.OverheadBits, r.SymbolBits, signed(r.OverheadDiff))},
		)
	}
	return rows
}

// Render writes a "results" separator followed by a two-column table.
func (r *Report) Render(w io.Writer) error {
	if _, err := fmt.Fprintln(w, Separator("results", '~', separatorWidth)); err != nil {
		return errors.WithStack(err)
	}
	tw := tabwriter.NewWriter(w, 0, 0, 1, ' ', 0)
	for _, row := range r.Rows() {
		if _, err := fmt.Fprintf(tw, "%s:\t%s\n", row[0], row[1]); err != nil {
			return errors.WithStack(err)
		}
	}
	return errors.WithStack(tw.Flush())
}
