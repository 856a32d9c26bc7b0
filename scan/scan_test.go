package scan

import (
	"bytes"
	"math/rand"
	"sort"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"

	"github.com/seiflotfy/huffscan/errs"
)

// slowSymbols slices buf bit by bit, the definition the scanner must match.
func slowSymbols(buf []byte, width int) ([]Symbol, []byte, int) {
	bit := func(i int) byte { return buf[i>>3] >> uint(7-i&7) & 1 }
	pack := func(off, n int) []byte {
		out := make([]byte, DataSize(n))
		pad := len(out)*8 - n
		for i := 0; i < n; i++ {
			p := pad + i
			out[p>>3] |= bit(off+i) << uint(7-p&7)
		}
		return out
	}
	total := len(buf) * 8
	var syms []Symbol
	off := 0
	for ; off+width <= total; off += width {
		syms = append(syms, Symbol(pack(off, width)))
	}
	return syms, pack(off, total-off), total - off
}

func randomBuffer(seed int64, n int) []byte {
	r := rand.New(rand.NewSource(seed))
	b := make([]byte, n)
	r.Read(b)
	return b
}

func TestScanWorkedExample(t *testing.T) {
	res, err := Scan([]byte{0xE3, 0x79}, 3, MethodInteger)
	require.NoError(t, err)

	require.Equal(t, []Symbol{"\x07", "\x00", "\x06", "\x04"}, res.Symbols)
	require.Equal(t, []uint64{2, 1, 1, 1}, res.Counts)
	require.Equal(t, uint64(5), res.Total)
	require.Equal(t, 1, res.RemainingBits)
	require.Equal(t, []byte{0x01}, res.Remaining)

	var seen []string
	err = Each([]byte{0xE3, 0x79}, 3, MethodInteger, func(sym []byte) error {
		seen = append(seen, Symbol(sym).Binary(3))
		return nil
	})
	require.NoError(t, err)
	require.Equal(t, []string{"111", "000", "110", "111", "100"}, seen)
}

func TestScanMatchesBitwiseDefinition(t *testing.T) {
	widths := []int{2, 3, 5, 7, 8, 9, 12, 13, 16, 24, 31, 55, 56, 57, 63, 64, 65, 100, 128, 333, 1024}
	for _, size := range []int{0, 1, 3, 17, 200} {
		buf := randomBuffer(int64(size), size)
		for _, w := range widths {
			res, err := Scan(buf, w, MethodInteger)
			require.NoError(t, err)

			syms, rem, remBits := slowSymbols(buf, w)
			want := map[Symbol]uint64{}
			for _, s := range syms {
				want[s]++
			}
			require.Equal(t, want, res.Frequencies(), "size %d width %d", size, w)
			require.Equal(t, uint64(len(syms)), res.Total)
			require.Equal(t, rem, res.Remaining, "size %d width %d", size, w)
			require.Equal(t, remBits, res.RemainingBits)

			var got []Symbol
			require.NoError(t, Each(buf, w, MethodInteger, func(sym []byte) error {
				got = append(got, Symbol(sym))
				return nil
			}))
			require.Equal(t, syms, got, "size %d width %d", size, w)
		}
	}
}

func TestScanBitAccounting(t *testing.T) {
	buf := randomBuffer(7, 97)
	for w := MinDataBits; w <= MaxDataBits; w += 37 {
		res, err := Scan(buf, w, MethodInteger)
		require.NoError(t, err)
		require.Equal(t, len(buf)*8, int(res.Total)*w+res.RemainingBits, "width %d", w)
		require.Equal(t, (len(buf)*8)%w, res.RemainingBits)
	}
}

func TestScanMethodEquivalence(t *testing.T) {
	buf := randomBuffer(3, 301)
	for _, w := range []int{8, 16, 24, 64, 1024} {
		a, err := Scan(buf, w, MethodInteger)
		require.NoError(t, err)
		b, err := Scan(buf, w, MethodByteString)
		require.NoError(t, err)

		ca := append([]uint64(nil), a.Counts...)
		cb := append([]uint64(nil), b.Counts...)
		sort.Slice(ca, func(i, j int) bool { return ca[i] < ca[j] })
		sort.Slice(cb, func(i, j int) bool { return cb[i] < cb[j] })
		require.Equal(t, ca, cb, "width %d", w)
		require.Equal(t, a.RemainingBits, b.RemainingBits)
	}
}

func TestScanRejectsBadWidth(t *testing.T) {
	for _, w := range []int{-1, 0, 1, 1025} {
		_, err := Scan([]byte{1, 2}, w, MethodInteger)
		require.ErrorIs(t, err, errs.ErrInvalidArgument, "width %d", w)
	}
	_, err := Scan([]byte{1, 2}, 12, MethodByteString)
	require.ErrorIs(t, err, errs.ErrUnsupportedConfiguration)

	_, err = Scan([]byte{1, 2}, 8, MethodUndefined)
	require.ErrorIs(t, err, errs.ErrInvalidArgument)
}

func TestEachStopsOnError(t *testing.T) {
	stop := errors.New("stop")
	for _, w := range []int{8, 5, 60} {
		calls := 0
		err := Each(randomBuffer(1, 64), w, MethodInteger, func([]byte) error {
			calls++
			if calls == 3 {
				return stop
			}
			return nil
		})
		require.ErrorIs(t, err, stop)
		require.Equal(t, 3, calls, "width %d", w)
	}
}

func TestExtractBits(t *testing.T) {
	src := []byte{0xE3, 0x79, 0xA5}
	cases := []struct {
		off, n int
		want   []byte
	}{
		{0, 3, []byte{0x07}},
		{3, 3, []byte{0x00}},
		{0, 8, []byte{0xE3}},
		{4, 8, []byte{0x37}},
		{1, 12, []byte{0x0C, 0x6F}},
		{15, 9, []byte{0x01, 0xA5}},
		{23, 1, []byte{0x01}},
	}
	for _, tc := range cases {
		dst := make([]byte, DataSize(tc.n))
		ExtractBits(dst, src, tc.off, tc.n)
		require.Equal(t, tc.want, dst, "off %d n %d", tc.off, tc.n)
	}
}

func TestParseMethod(t *testing.T) {
	m, err := ParseMethod("Integer")
	require.NoError(t, err)
	require.Equal(t, MethodInteger, m)

	var bs Method
	require.NoError(t, bs.UnmarshalText([]byte("bytes")))
	require.Equal(t, MethodByteString, bs)

	_, err = ParseMethod("float")
	require.ErrorIs(t, err, errs.ErrInvalidArgument)
	require.Equal(t, "method(9)", Method(9).String())
}

func TestSymbolAccessors(t *testing.T) {
	s := SymbolFromUint64(0x1F5, 2)
	require.Equal(t, "01f5", s.String())
	require.Equal(t, uint64(0x1F5), s.Uint64())
	require.Equal(t, "111110101", s.Binary(9))
	require.Equal(t, int64(0x1F5), s.Int().Int64())
	require.Equal(t, s, SymbolFromInt(s.Int(), 2))
	require.True(t, bytes.Equal([]byte{0x01, 0xF5}, s.Bytes()))
}

func FuzzScan(f *testing.F) {
	f.Add([]byte{0xE3, 0x79}, 3)
	f.Add([]byte("hello, world"), 57)
	f.Fuzz(func(t *testing.T, buf []byte, width int) {
		if width < MinDataBits || width > 200 {
			return
		}
		res, err := Scan(buf, width, MethodInteger)
		if err != nil {
			t.Fatal(err)
		}
		if int(res.Total)*width+res.RemainingBits != len(buf)*8 {
			t.Fatalf("bit accounting: %d*%d+%d != %d", res.Total, width, res.RemainingBits, len(buf)*8)
		}
		syms, rem, _ := slowSymbols(buf, width)
		if len(syms) != int(res.Total) || !bytes.Equal(rem, res.Remaining) {
			t.Fatalf("mismatch against bitwise slicing for width %d", width)
		}
	})
}

func benchmarkScan(b *testing.B, width int) {
	buf := randomBuffer(42, 1<<20)
	b.SetBytes(int64(len(buf)))
	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := Scan(buf, width, MethodInteger); err != nil {
			b.Fatal(err)
		}
	}
}

func BenchmarkScan8(b *testing.B)  { benchmarkScan(b, 8) }
func BenchmarkScan12(b *testing.B) { benchmarkScan(b, 12) }
func BenchmarkScan16(b *testing.B) { benchmarkScan(b, 16) }
func BenchmarkScan61(b *testing.B) { benchmarkScan(b, 61) }
