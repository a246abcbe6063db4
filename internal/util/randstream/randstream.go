// Package randstream produces reproducible pseudo-random byte streams, used as
// chunking test corpora.
package randstream

import (
	"encoding/binary"
	"io"

	"github.com/seehuhn/mt19937"
	"github.com/twmb/murmur3"
)

type reader struct {
	mt        *mt19937.MT19937
	remaining int64
	word      [8]byte
	wordLeft  int
}

// New returns a reader yielding length bytes of 64-bit Mersenne Twister output
// (little-endian words) for the given seed, then io.EOF. A negative length
// never ends.
func New(seed int64, length int64) io.Reader {
	mt := mt19937.New()
	mt.Seed(seed)
	return &reader{mt: mt, remaining: length}
}

// SeedFromBytes condenses arbitrary seed material into a generator seed.
func SeedFromBytes(b []byte) int64 {
	return int64(murmur3.Sum64(b))
}

func (r *reader) Read(p []byte) (n int, err error) {
	if r.remaining == 0 {
		return 0, io.EOF
	}
	if r.remaining > 0 && int64(len(p)) > r.remaining {
		p = p[:r.remaining]
	}

	for n < len(p) {
		if r.wordLeft == 0 {
			binary.LittleEndian.PutUint64(r.word[:], r.mt.Uint64())
			r.wordLeft = len(r.word)
		}
		c := copy(p[n:], r.word[len(r.word)-r.wordLeft:])
		r.wordLeft -= c
		n += c
	}

	if r.remaining > 0 {
		r.remaining -= int64(n)
	}
	return n, nil
}
