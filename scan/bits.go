package scan

// ExtractBits copies n bits of src, starting at bit offset off (bit 0 is the
// most significant bit of src[0]), into dst right-aligned. dst must be
// exactly DataSize(n) bytes long and off+n must not exceed len(src)*8.
func ExtractBits(dst, src []byte, off, n int) {
	if n == 0 {
		return
	}
	pad := len(dst)*8 - n
	start := off - pad
	for k := range dst {
		pos := start + k*8
		var v byte
		if pos < 0 {
			v = src[0] >> uint(-pos)
		} else {
			idx, shift := pos>>3, uint(pos&7)
			v = src[idx] << shift
			if shift != 0 {
				v |= src[idx+1] >> (8 - shift)
			}
		}
		dst[k] = v
	}
	dst[0] &= 0xFF >> uint(pad)
}

// register slides over a byte stream for widths that fit a uint64 with a
// spare byte. Bits enter at the bottom; symbols leave from the top.
type register struct {
	width uint
	mask  uint64
	acc   uint64
	held  uint
}

func newRegister(width int) register {
	return register{width: uint(width), mask: 1<<uint(width) - 1}
}

// push feeds one byte and calls emit for every completed symbol.
func (r *register) push(b byte, emit func(v uint64)) {
	r.acc = r.acc<<8 | uint64(b)
	r.held += 8
	for r.held >= r.width {
		r.held -= r.width
		emit(r.acc >> r.held & r.mask)
		r.acc &= 1<<r.held - 1
	}
}
