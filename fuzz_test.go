package huffscan

import (
	"bytes"
	"testing"

	"github.com/seiflotfy/huffscan/scan"
)

func fuzzWidth(w uint8, bytestring bool) (int, scan.Method) {
	width := 2 + int(w)%63
	if bytestring && width%8 == 0 {
		return width, scan.MethodByteString
	}
	return width, scan.MethodInteger
}

// Encoding then decoding returns the input for every width.
func FuzzEncodeDecode(f *testing.F) {
	f.Add([]byte("hello"), uint8(6), false)
	f.Add([]byte("mississippi"), uint8(3), false)
	f.Add([]byte{}, uint8(0), false)
	f.Add([]byte{0xff}, uint8(14), true)
	f.Add([]byte("null\x00byte"), uint8(1), false)
	f.Add(bytes.Repeat([]byte("ab"), 40), uint8(14), true)

	f.Fuzz(func(t *testing.T, input []byte, w uint8, bytestring bool) {
		width, method := fuzzWidth(w, bytestring)
		enc, err := NewEncoder(width, method)
		if err != nil {
			t.Fatalf("NewEncoder(%d, %s): %v", width, method, err)
		}
		a, err := enc.Encode(input)
		if err != nil {
			t.Fatalf("Encode: %v", err)
		}
		data, err := a.MarshalBinary()
		if err != nil {
			t.Fatalf("MarshalBinary: %v", err)
		}
		var back Archive
		if err := back.UnmarshalBinary(data); err != nil {
			t.Fatalf("UnmarshalBinary: %v", err)
		}
		out, err := back.Decode()
		if err != nil {
			t.Fatalf("Decode: %v", err)
		}
		if !bytes.Equal(out, input) {
			t.Errorf("width %d %s: got %x, want %x", width, method, out, input)
		}
	})
}

// A container read back describes the same scan.
func FuzzContainerRoundTrip(f *testing.F) {
	f.Add([]byte("ABCC"), uint8(6), uint8(0))
	f.Add([]byte{0xE3, 0x79}, uint8(1), uint8(1))
	f.Add([]byte{}, uint8(30), uint8(7))

	f.Fuzz(func(t *testing.T, input []byte, w uint8, sos uint8) {
		width, method := fuzzWidth(w, false)
		sb, err := ScanBuffer(input, width, method, WithSizeOfSize(1+int(sos)%8))
		if err != nil {
			t.Fatalf("ScanBuffer: %v", err)
		}
		data, err := sb.MarshalBinary()
		if err != nil {
			// Counts or sizes that do not fit the field width are rejected.
			return
		}
		var back SegmentedBuffer
		if err := back.UnmarshalBinary(data); err != nil {
			t.Fatalf("UnmarshalBinary: %v", err)
		}
		if back.Total() != sb.Total() || back.Unique() != sb.Unique() || back.BufferSize != sb.BufferSize {
			t.Errorf("got total %d unique %d size %d, want %d %d %d",
				back.Total(), back.Unique(), back.BufferSize, sb.Total(), sb.Unique(), sb.BufferSize)
		}
	})
}

// Arbitrary bytes never panic the readers.
func FuzzArchiveCorruption(f *testing.F) {
	enc, err := NewEncoder(5, scan.MethodInteger, WithPayloadCompression(CompressionNone))
	if err != nil {
		f.Fatal(err)
	}
	a, err := enc.Encode([]byte("corruption"))
	if err != nil {
		f.Fatal(err)
	}
	seed, err := a.MarshalBinary()
	if err != nil {
		f.Fatal(err)
	}
	f.Add(seed)
	f.Add([]byte("HSAR"))
	f.Add([]byte{})

	f.Fuzz(func(t *testing.T, data []byte) {
		var back Archive
		if err := back.UnmarshalBinary(data); err != nil {
			return
		}
		if back.Buffer.BufferSize > 1<<20 {
			return
		}
		out, err := back.Decode()
		if err == nil {
			sb, err := ScanBuffer(out, back.Buffer.DataBits, back.Buffer.Method)
			if err != nil {
				t.Fatalf("rescan decoded buffer: %v", err)
			}
			want := make(map[scan.Symbol]uint64, len(back.Buffer.Counts))
			for _, dc := range back.Buffer.Counts {
				want[dc.Symbol] = dc.Count
			}
			for _, dc := range sb.Counts {
				if want[dc.Symbol] != dc.Count {
					t.Fatalf("decoded %s %d times, table says %d", dc.Symbol, dc.Count, want[dc.Symbol])
				}
			}
		}

		var sb SegmentedBuffer
		_ = sb.UnmarshalBinary(data)
	})
}
