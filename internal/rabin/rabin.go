// Package rabin implements the polynomial rolling hash used for boundary
// detection: the hash of a window p[0..k) is sum(a^(k-1-i) * p[i]) mod 2^32.
package rabin

const (
	DefaultMultiplier = 1103515245
	DefaultWindow     = 48
)

type Hash struct {
	pow []uint32
	a   uint32
	k   int
}

// New precomputes a^0 .. a^(k-1). Panics on a non-positive window, which is
// rejected by every config validator long before reaching here.
func New(a uint32, k int) *Hash {
	if k < 1 {
		panic("rabin: window size must be positive")
	}

	h := &Hash{
		pow: make([]uint32, k),
		a:   a,
		k:   k,
	}

	v := uint32(1)
	for i := range h.pow {
		h.pow[i] = v
		v *= a
	}

	return h
}

func (h *Hash) Window() int { return h.k }

func (h *Hash) Multiplier() uint32 { return h.a }

// Sum hashes exactly Window() bytes.
func (h *Hash) Sum(p []byte) uint32 {
	p = p[:h.k]
	var s uint32
	for i, b := range p {
		s += h.pow[h.k-1-i] * uint32(b)
	}
	return s
}

// SumSplit hashes a window presented as two consecutive ranges, as happens
// when it straddles the end of a ring buffer. len(head)+len(tail) must equal
// Window().
func (h *Hash) SumSplit(head, tail []byte) uint32 {
	if len(head)+len(tail) != h.k {
		panic("rabin: split window length mismatch")
	}

	var s uint32
	i := 0
	for _, b := range head {
		s += h.pow[h.k-1-i] * uint32(b)
		i++
	}
	for _, b := range tail {
		s += h.pow[h.k-1-i] * uint32(b)
		i++
	}
	return s
}

// Slide removes old (the oldest window byte) and appends new.
func (h *Hash) Slide(s uint32, old, new byte) uint32 {
	return (s-h.pow[h.k-1]*uint32(old))*h.a + uint32(new)
}
