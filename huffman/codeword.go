package huffman

import (
	"math/bits"
	"strings"
)

// MaxCodeLen is the deepest codeword a Codeword can hold.
const MaxCodeLen = 63

// Codeword is a prefix code stored behind a leading 1 bit: the bits "10"
// are held as 0b110. The leading bit keeps leading zeros of the code from
// being lost. The root of a tree is Codeword(1), the empty code.
type Codeword uint64

// RootCode is the zero-length codeword assigned to the root.
const RootCode Codeword = 1

// Len is the number of code bits, not counting the sentinel.
func (c Codeword) Len() int {
	return bits.Len64(uint64(c)) - 1
}

// Bits returns the code bits right-aligned, without the sentinel.
func (c Codeword) Bits() uint64 {
	if c == 0 {
		return 0
	}
	return uint64(c) &^ (1 << uint(c.Len()))
}

// Left returns the codeword of the left child: a 1 bit is appended.
func (c Codeword) Left() Codeword {
	return c<<1 | 1
}

// Right returns the codeword of the right child: a 0 bit is appended.
func (c Codeword) Right() Codeword {
	return c << 1
}

// HasPrefix reports whether p is a prefix of c.
func (c Codeword) HasPrefix(p Codeword) bool {
	d := c.Len() - p.Len()
	if d < 0 {
		return false
	}
	return c>>uint(d) == p
}

func (c Codeword) String() string {
	n := c.Len()
	if n <= 0 {
		return ""
	}
	var sb strings.Builder
	sb.Grow(n)
	for i := n - 1; i >= 0; i-- {
		if c>>uint(i)&1 == 1 {
			sb.WriteByte('1')
		} else {
			sb.WriteByte('0')
		}
	}
	return sb.String()
}
