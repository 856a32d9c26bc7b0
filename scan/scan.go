// Package scan partitions a byte buffer into fixed-width symbols and counts
// them.
//
// The buffer is treated as one big-endian bitstream sliced into windows of
// dataBits bits from left to right. Whatever is left at the end, fewer than
// dataBits bits, is the remainder.
package scan

// registerMaxBits is the widest non-aligned symbol the sliding register
// handles; wider symbols go through ExtractBits.
const registerMaxBits = 56

// Result holds the counts of one scan. Symbols are listed in the order they
// were first seen and Counts runs parallel to Symbols.
type Result struct {
	DataBits int
	Method   Method

	Symbols []Symbol
	Counts  []uint64
	// Total is the number of full symbols, the sum of Counts.
	Total uint64

	// Remaining holds the trailing partial symbol right-aligned in
	// DataSize(RemainingBits) bytes.
	Remaining     []byte
	RemainingBits int

	index map[Symbol]int
}

// Unique returns the number of distinct symbols.
func (r *Result) Unique() int {
	return len(r.Symbols)
}

// Count returns the occurrence count of s.
func (r *Result) Count(s Symbol) uint64 {
	if i, ok := r.index[s]; ok {
		return r.Counts[i]
	}
	return 0
}

// Frequencies returns the counts as a map.
func (r *Result) Frequencies() map[Symbol]uint64 {
	m := make(map[Symbol]uint64, len(r.Symbols))
	for i, s := range r.Symbols {
		m[s] = r.Counts[i]
	}
	return m
}

type counter struct {
	res *Result
}

func (c counter) add(sym []byte) {
	if i, ok := c.res.index[Symbol(sym)]; ok {
		c.res.Counts[i]++
		return
	}
	s := Symbol(sym)
	c.res.index[s] = len(c.res.Symbols)
	c.res.Symbols = append(c.res.Symbols, s)
	c.res.Counts = append(c.res.Counts, 1)
}

// Scan counts the symbols of buf at the given width.
func Scan(buf []byte, dataBits int, method Method) (*Result, error) {
	if err := Validate(dataBits, method); err != nil {
		return nil, err
	}
	res := &Result{
		DataBits: dataBits,
		Method:   method,
		index:    make(map[Symbol]int),
	}

	if dataBits == 8 {
		countBytes(res, buf)
	} else {
		c := counter{res: res}
		if err := Each(buf, dataBits, method, func(sym []byte) error {
			c.add(sym)
			return nil
		}); err != nil {
			return nil, err
		}
	}

	for _, n := range res.Counts {
		res.Total += n
	}
	res.Remaining, res.RemainingBits = Remainder(buf, dataBits)
	return res, nil
}

// countBytes is the 8-bit fast path: a fixed table instead of a map.
func countBytes(res *Result, buf []byte) {
	var table [256]uint64
	var order []byte
	for _, b := range buf {
		if table[b] == 0 {
			order = append(order, b)
		}
		table[b]++
	}
	res.Symbols = make([]Symbol, len(order))
	res.Counts = make([]uint64, len(order))
	for i, b := range order {
		s := Symbol([]byte{b})
		res.Symbols[i] = s
		res.Counts[i] = table[b]
		res.index[s] = i
	}
}

// Remainder returns the trailing bits of buf that do not fill a whole
// symbol, right-aligned, and their count.
func Remainder(buf []byte, dataBits int) ([]byte, int) {
	total := len(buf) * 8
	rem := total % dataBits
	out := make([]byte, DataSize(rem))
	ExtractBits(out, buf, total-rem, rem)
	return out, rem
}

// Each calls fn for every full symbol of buf in stream order. The slice
// passed to fn is only valid for the duration of the call. Iteration stops
// at the first error fn returns.
func Each(buf []byte, dataBits int, method Method, fn func(sym []byte) error) error {
	if err := Validate(dataBits, method); err != nil {
		return err
	}
	switch {
	case dataBits%8 == 0:
		size := dataBits / 8
		for i := 0; i+size <= len(buf); i += size {
			if err := fn(buf[i : i+size : i+size]); err != nil {
				return err
			}
		}
		return nil
	case dataBits <= registerMaxBits:
		return eachRegister(buf, dataBits, fn)
	default:
		return eachExtract(buf, dataBits, fn)
	}
}

func eachRegister(buf []byte, dataBits int, fn func(sym []byte) error) error {
	sym := make([]byte, DataSize(dataBits))
	reg := newRegister(dataBits)
	var err error
	emit := func(v uint64) {
		if err != nil {
			return
		}
		putUint(sym, v)
		err = fn(sym)
	}
	for _, b := range buf {
		reg.push(b, emit)
		if err != nil {
			return err
		}
	}
	return nil
}

func eachExtract(buf []byte, dataBits int, fn func(sym []byte) error) error {
	sym := make([]byte, DataSize(dataBits))
	total := len(buf) * 8
	for off := 0; off+dataBits <= total; off += dataBits {
		ExtractBits(sym, buf, off, dataBits)
		if err := fn(sym); err != nil {
			return err
		}
	}
	return nil
}
