package huffman

import (
	"bytes"
	"math"
	"math/rand"
	"testing"

	"github.com/dgryski/go-bitstream"
	"github.com/stretchr/testify/require"

	"github.com/seiflotfy/huffscan/errs"
)

func TestBuildThreeSymbols(t *testing.T) {
	tree, err := Build([]uint64{1, 1, 2})
	require.NoError(t, err)

	codes := tree.Codes()
	require.Equal(t, 2, codes[0].Len())
	require.Equal(t, 2, codes[1].Len())
	require.Equal(t, 1, codes[2].Len())
	require.Equal(t, uint64(6), tree.WeightedLength())

	require.Equal(t, "01", codes[0].String())
	require.Equal(t, "00", codes[1].String())
	require.Equal(t, "1", codes[2].String())

	entries := tree.Entries()
	require.Len(t, entries, 3)
	require.Equal(t, 2, entries[0].Index, "breadth-first order puts the shallow leaf first")
}

func TestBuildSingleSymbol(t *testing.T) {
	tree, err := Build([]uint64{42})
	require.NoError(t, err)
	require.Equal(t, RootCode, tree.Codes()[0])
	require.Equal(t, 0, tree.Codes()[0].Len())
	require.Zero(t, tree.WeightedLength())

	r := bitstream.NewReader(bytes.NewReader(nil))
	idx, err := tree.Decode(r)
	require.NoError(t, err)
	require.Equal(t, 0, idx)
}

func TestBuildRejects(t *testing.T) {
	_, err := Build(nil)
	require.ErrorIs(t, err, errs.ErrInvalidArgument)

	_, err = Build([]uint64{3, 0, 1})
	require.ErrorIs(t, err, errs.ErrInvalidArgument)
}

func TestBuildTooDeep(t *testing.T) {
	counts := []uint64{1, 1}
	for len(counts) < 70 {
		counts = append(counts, counts[len(counts)-1]+counts[len(counts)-2])
	}
	_, err := Build(counts)
	require.ErrorIs(t, err, errs.ErrUnsupportedConfiguration)
}

func requirePrefixFree(t *testing.T, codes []Codeword) {
	t.Helper()
	for i, a := range codes {
		for j, b := range codes {
			if i != j {
				require.False(t, a.HasPrefix(b), "%s has prefix %s", a, b)
			}
		}
	}
}

// bruteForceCost finds the minimum of sum(count*len) over all length
// vectors that satisfy the Kraft inequality.
func bruteForceCost(counts []uint64) uint64 {
	n := len(counts)
	if n == 1 {
		return 0
	}
	best := uint64(math.MaxUint64)
	lens := make([]int, n)
	var rec func(i int, kraft float64, cost uint64)
	rec = func(i int, kraft float64, cost uint64) {
		if kraft > 1+1e-12 || cost >= best {
			return
		}
		if i == n {
			best = cost
			return
		}
		for l := 1; l < n; l++ {
			lens[i] = l
			rec(i+1, kraft+math.Ldexp(1, -l), cost+counts[i]*uint64(l))
		}
	}
	rec(0, 0, 0)
	return best
}

func TestBuildOptimal(t *testing.T) {
	r := rand.New(rand.NewSource(1))
	for trial := 0; trial < 200; trial++ {
		n := 1 + r.Intn(6)
		counts := make([]uint64, n)
		for i := range counts {
			counts[i] = 1 + uint64(r.Intn(20))
		}
		tree, err := Build(counts)
		require.NoError(t, err)
		requirePrefixFree(t, tree.Codes())
		require.Equal(t, bruteForceCost(counts), tree.WeightedLength(), "counts %v", counts)

		var total uint64
		for _, e := range tree.Entries() {
			total += e.Count
		}
		var want uint64
		for _, c := range counts {
			want += c
		}
		require.Equal(t, want, total)
	}
}

func TestBuildDeterministic(t *testing.T) {
	counts := []uint64{5, 1, 1, 1, 1, 2, 2, 9}
	a, err := Build(counts)
	require.NoError(t, err)
	b, err := Build(counts)
	require.NoError(t, err)
	require.Equal(t, a.Codes(), b.Codes())
}

func TestDecodeRoundTrip(t *testing.T) {
	counts := []uint64{10, 3, 3, 1, 7, 2}
	tree, err := Build(counts)
	require.NoError(t, err)
	codes := tree.Codes()

	msg := []int{0, 1, 2, 3, 4, 5, 0, 0, 4, 3, 1}
	var buf bytes.Buffer
	w := bitstream.NewWriter(&buf)
	for _, s := range msg {
		require.NoError(t, w.WriteBits(codes[s].Bits(), codes[s].Len()))
	}
	require.NoError(t, w.Flush(bitstream.Zero))

	r := bitstream.NewReader(bytes.NewReader(buf.Bytes()))
	for _, want := range msg {
		got, err := tree.Decode(r)
		require.NoError(t, err)
		require.Equal(t, want, got)
	}
}

func TestDecodeTruncated(t *testing.T) {
	tree, err := Build([]uint64{1, 1, 1, 1})
	require.NoError(t, err)
	_, err = tree.Decode(bitstream.NewReader(bytes.NewReader(nil)))
	require.ErrorIs(t, err, errs.ErrTruncated)
}

func TestCodeword(t *testing.T) {
	c := RootCode.Right().Left().Right()
	require.Equal(t, Codeword(0b1010), c)
	require.Equal(t, 3, c.Len())
	require.Equal(t, uint64(0b010), c.Bits())
	require.Equal(t, "010", c.String())
	require.True(t, c.HasPrefix(RootCode.Right()))
	require.False(t, c.HasPrefix(RootCode.Left()))
	require.Equal(t, "", RootCode.String())
}

func BenchmarkBuild(b *testing.B) {
	r := rand.New(rand.NewSource(2))
	counts := make([]uint64, 4096)
	for i := range counts {
		counts[i] = 1 + uint64(r.Intn(1000))
	}
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := Build(counts); err != nil {
			b.Fatal(err)
		}
	}
}
