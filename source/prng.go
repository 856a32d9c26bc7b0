package source

// PRNG is a linear congruential generator for reproducible random buffers.
// It uses the multiplier and increment from Numerical Recipes, so a seed
// yields the same bytes on every platform.
type PRNG struct {
	state uint64
}

// NewPRNG creates a generator with the given seed.
func NewPRNG(seed uint64) *PRNG {
	return &PRNG{state: seed}
}

// Next advances the generator and returns its state.
func (p *PRNG) Next() uint64 {
	p.state = p.state*6364136223846793005 + 1442695040888963407
	return p.state
}

// Uint64N returns a number in [0, n).
func (p *PRNG) Uint64N(n uint64) uint64 {
	if n == 0 {
		return 0
	}
	return p.Next() % n
}

// Read fills b with the high bytes of successive states; the low bits of
// an LCG have short periods. It never fails.
func (p *PRNG) Read(b []byte) (int, error) {
	for i := 0; i < len(b); {
		v := p.Next()
		for k := 0; k < 4 && i < len(b); k++ {
			b[i] = byte(v >> (56 - 8*uint(k)))
			i++
		}
	}
	return len(b), nil
}
