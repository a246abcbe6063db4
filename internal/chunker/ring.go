package ddchunker

import (
	"fmt"
	"io"

	"github.com/anjor/ddar/internal/constants"
)

// ringScanner is a circular buffer of `segments` equally sized segments.
// Bytes belonging to the chunk in progress (pending) and bytes not yet scanned
// (avail) are contiguous, end at head, and at refill time never exceed one
// segment. Refills always land on the segment starting at head, so they can
// not clobber either.
type ringScanner struct {
	buf     []byte
	segSize int

	pos     int // next byte to scan
	avail   int
	pending int
	head    int // next fill position, segment aligned until exhausted

	fillOffset int64 // stream offset of buf[head]
	exhausted  bool

	backend ioBackend
	stats   *Stats
}

func newRingScanner(segSize, segments int, stats *Stats) *ringScanner {
	return &ringScanner{
		buf:     make([]byte, segSize*segments),
		segSize: segSize,
		stats:   stats,
	}
}

func (r *ringScanner) reset(be ioBackend) {
	r.pos, r.avail, r.pending, r.head = 0, 0, 0, 0
	r.fillOffset = 0
	r.exhausted = false
	r.backend = be
}

func (r *ringScanner) segmentAt(idx int) []byte {
	idx %= len(r.buf)
	return r.buf[idx : idx+r.segSize]
}

// refill pulls one more segment from the backend. It is a no-op once the
// source is exhausted.
func (r *ringScanner) refill() error {
	if r.exhausted {
		return nil
	}

	if constants.PerformSanityChecks {
		if r.pending+r.avail > r.segSize {
			panic(fmt.Sprintf(
				"refill requested with %d live bytes, exceeding segment size %d",
				r.pending+r.avail,
				r.segSize,
			))
		}
		if r.head%r.segSize != 0 {
			panic(fmt.Sprintf("refill requested at unaligned ring position %d", r.head))
		}
	}

	n, err := r.backend.fill(
		r.segmentAt(r.head),
		r.fillOffset,
		r.segmentAt(r.head+r.segSize),
	)
	r.stats.Refills++

	r.avail += n
	r.fillOffset += int64(n)
	r.head = (r.head + n) % len(r.buf)

	if err == io.EOF {
		r.exhausted = true
		return nil
	} else if err != nil {
		return err
	}

	if constants.PerformSanityChecks && n != r.segSize {
		panic(fmt.Sprintf("backend returned a short segment of %d bytes without reaching EOF", n))
	}

	return nil
}

// ensureAvailable refills until n unscanned bytes are buffered or the source
// is exhausted.
func (r *ringScanner) ensureAvailable(n int) error {
	for r.avail < n && !r.exhausted {
		if err := r.refill(); err != nil {
			return err
		}
	}
	return nil
}

func (r *ringScanner) advance(n int) {
	if constants.PerformSanityChecks && n > r.avail {
		panic(fmt.Sprintf("advance by %d with only %d bytes available", n, r.avail))
	}
	r.pos = (r.pos + n) % len(r.buf)
	r.avail -= n
	r.pending += n
}

// byteAt returns the byte rel positions away from the scan cursor. Negative
// values reach back into the pending chunk.
func (r *ringScanner) byteAt(rel int) byte {
	idx := r.pos + rel
	if idx < 0 {
		idx += len(r.buf)
	} else if idx >= len(r.buf) {
		idx -= len(r.buf)
	}
	return r.buf[idx]
}

// window returns the k bytes preceding the scan cursor, split in two when
// they straddle the end of the buffer.
func (r *ringScanner) window(k int) (head, tail []byte) {
	start := r.pos - k
	if start >= 0 {
		return r.buf[start:r.pos], nil
	}
	return r.buf[len(r.buf)+start:], r.buf[:r.pos]
}

func (r *ringScanner) materializeSpan(start, length int) (spans [2][]byte) {
	if start < 0 {
		start += len(r.buf)
	}
	if start+length <= len(r.buf) {
		spans[0] = r.buf[start : start+length]
		return
	}
	spans[0] = r.buf[start:]
	spans[1] = r.buf[:length-len(spans[0])]
	return
}

// cut detaches the pending bytes as a finished span.
func (r *ringScanner) cut() (size int, spans [2][]byte) {
	size = r.pending
	spans = r.materializeSpan(r.pos-r.pending, r.pending)
	r.pending = 0
	return
}

func (r *ringScanner) close() error {
	if r.backend == nil {
		return nil
	}
	err := r.backend.close()
	r.backend = nil
	return err
}
