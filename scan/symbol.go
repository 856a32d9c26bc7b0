package scan

import (
	"encoding/hex"
	"math/big"
)

// Symbol is one fixed-width unit of scanned data: its bits, big-endian and
// right-aligned in DataSize(width) bytes. Symbol is a string so it can key a
// map directly; Integer and ByteString scans of byte-aligned widths produce
// identical keys.
type Symbol string

// SymbolFromBytes copies b into a Symbol.
func SymbolFromBytes(b []byte) Symbol {
	return Symbol(b)
}

// SymbolFromUint64 packs the low size*8 bits of v into a Symbol of size bytes.
func SymbolFromUint64(v uint64, size int) Symbol {
	b := make([]byte, size)
	putUint(b, v)
	return Symbol(b)
}

// SymbolFromInt packs a non-negative v into a Symbol of size bytes. Bits
// that do not fit are dropped.
func SymbolFromInt(v *big.Int, size int) Symbol {
	b := make([]byte, size)
	raw := v.Bytes()
	if len(raw) > size {
		raw = raw[len(raw)-size:]
	}
	copy(b[size-len(raw):], raw)
	return Symbol(b)
}

// Bytes returns a copy of the symbol's bytes.
func (s Symbol) Bytes() []byte {
	return []byte(s)
}

// Len is the size of the symbol in bytes.
func (s Symbol) Len() int {
	return len(s)
}

// Uint64 interprets the last eight bytes of s as a big-endian integer.
func (s Symbol) Uint64() uint64 {
	if len(s) > 8 {
		s = s[len(s)-8:]
	}
	var v uint64
	for i := 0; i < len(s); i++ {
		v = v<<8 | uint64(s[i])
	}
	return v
}

// Int interprets s as a big-endian unsigned integer of any width.
func (s Symbol) Int() *big.Int {
	return new(big.Int).SetBytes([]byte(s))
}

// String renders the symbol as lowercase hex.
func (s Symbol) String() string {
	return hex.EncodeToString([]byte(s))
}

// Binary renders the low bits of s as a zero-padded bit string.
func (s Symbol) Binary(bits int) string {
	out := make([]byte, bits)
	total := len(s) * 8
	for i := 0; i < bits; i++ {
		pos := total - bits + i
		out[i] = '0'
		if pos >= 0 && s[pos>>3]&(0x80>>uint(pos&7)) != 0 {
			out[i] = '1'
		}
	}
	return string(out)
}

func putUint(dst []byte, v uint64) {
	for i := len(dst) - 1; i >= 0; i-- {
		dst[i] = byte(v)
		v >>= 8
	}
}
