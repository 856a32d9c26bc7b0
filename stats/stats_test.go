package stats

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/seiflotfy/huffscan"
	"github.com/seiflotfy/huffscan/errs"
	"github.com/seiflotfy/huffscan/scan"
)

func TestComputeABCC(t *testing.T) {
	sb, err := huffscan.ScanBuffer([]byte("ABCC"), 8, scan.MethodInteger)
	require.NoError(t, err)
	cb, err := sb.BuildCodebook()
	require.NoError(t, err)

	r, err := Compute(sb, cb)
	require.NoError(t, err)
	require.Equal(t, uint64(32), r.SymbolBits)
	require.Equal(t, 3, r.Unique)
	require.Equal(t, "256", r.Possible.String())
	require.InDelta(t, 3.0/256, r.Fraction, 1e-12)
	require.Equal(t, uint64(1), r.MinCount)
	require.Equal(t, uint64(2), r.MaxCount)
	require.InDelta(t, 4.0/3, r.AverageCount, 1e-12)
	require.InDelta(t, 1.5, r.EntropyPerSymbol, 1e-12)
	require.InDelta(t, 6.0, r.EntropyBits, 1e-9)

	require.True(t, r.HasCodebook)
	require.Equal(t, uint64(6), r.CompressedBits)
	require.Equal(t, int64(-26), r.CompressedDiff)
	require.Equal(t, uint64(24), r.DictionaryBits)
	require.Equal(t, uint64(30), r.OverheadBits)
	require.Equal(t, int64(-2), r.OverheadDiff)
	require.Equal(t, 2, r.MaxCodeLen)
}

func TestComputeWithoutCodebook(t *testing.T) {
	sb, err := huffscan.ScanBuffer([]byte{0xE3, 0x79}, 3, scan.MethodInteger)
	require.NoError(t, err)
	r, err := Compute(sb, nil)
	require.NoError(t, err)
	require.False(t, r.HasCodebook)
	require.Equal(t, uint64(15), r.SymbolBits)
	require.Equal(t, 1, r.RemainingBits)
	require.Equal(t, "8", r.Possible.String())
	require.InDelta(t, 0.5, r.Fraction, 1e-12)
}

func TestComputeHugeWidth(t *testing.T) {
	sb, err := huffscan.ScanBuffer(bytes.Repeat([]byte{1, 2, 3}, 100), 1024, scan.MethodInteger)
	require.NoError(t, err)
	r, err := Compute(sb, nil)
	require.NoError(t, err)
	require.Equal(t, 1024, r.Possible.BitLen()-1)
	require.Less(t, r.Fraction, 1e-300)
}

func TestComputeRejectsEmpty(t *testing.T) {
	sb, err := huffscan.ScanBuffer([]byte{1}, 16, scan.MethodInteger)
	require.NoError(t, err)
	_, err = Compute(sb, nil)
	require.ErrorIs(t, err, errs.ErrInvalidArgument)
}

func TestRender(t *testing.T) {
	sb, err := huffscan.ScanBuffer([]byte("ABCC"), 8, scan.MethodInteger)
	require.NoError(t, err)
	cb, err := sb.BuildCodebook()
	require.NoError(t, err)
	r, err := Compute(sb, cb)
	require.NoError(t, err)

	var out bytes.Buffer
	require.NoError(t, r.Render(&out))
	lines := strings.Split(strings.TrimRight(out.String(), "\n"), "\n")
	require.Len(t, lines[0], separatorWidth)
	require.Contains(t, lines[0], " results ")
	require.Contains(t, out.String(), "total bits:")
	require.Contains(t, out.String(), "6 / 32 (0.1875) (-26 bits)")
	require.Contains(t, out.String(), "4.00 B (32 bits)")
	require.Len(t, lines, 1+len(r.Rows()))
}

func TestSeparator(t *testing.T) {
	require.Equal(t, "~~ ab ~~~", Separator("ab", '~', 9))
	require.Equal(t, "-----", Separator("", '-', 5))
}
