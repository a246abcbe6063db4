package ddchunker

import (
	"fmt"
	"io"
	"time"

	"github.com/anjor/ddar/internal/constants"
)

type asyncResult struct {
	n   int
	err error
}

type asyncRequest struct {
	seg  []byte
	off  int64
	done chan asyncResult // buffered: an abandoned request never blocks its goroutine
}

// asyncBackend keeps at most one read in flight, targeting the segment the
// ring will ask for next. Seekable sources are read positionally, everything
// else with a single Read() whose short result is completed synchronously.
type asyncBackend struct {
	src       *source
	dropCache bool
	stats     *Stats
	inflight  *asyncRequest
}

func (b *asyncBackend) issue(seg []byte, off int64) *asyncRequest {
	req := &asyncRequest{
		seg:  seg,
		off:  off,
		done: make(chan asyncResult, 1),
	}
	b.stats.ReadCalls++

	src := b.src
	go func() {
		var res asyncResult
		for {
			if src.ra != nil {
				res.n, res.err = src.ra.ReadAt(seg, src.base+off)
			} else {
				res.n, res.err = src.r.Read(seg)
			}
			if res.n != 0 || !isInterrupted(res.err) {
				break
			}
		}
		req.done <- res
	}()

	return req
}

func (b *asyncBackend) fill(seg []byte, off int64, next []byte) (int, error) {

	req := b.inflight
	b.inflight = nil

	if req == nil {
		req = b.issue(seg, off)
	} else if constants.PerformSanityChecks && (&req.seg[0] != &seg[0] || req.off != off) {
		panic(fmt.Sprintf(
			"in-flight read targets stream offset %d, but offset %d was requested",
			req.off,
			off,
		))
	}

	t0 := time.Now()
	res := <-req.done
	b.stats.Waits++
	b.stats.WaitNsecs += time.Since(t0).Nanoseconds()

	n, err := res.n, res.err
	if isInterrupted(err) {
		err = nil
	}
	if err != nil && err != io.EOF {
		return n, &IoError{Op: "async read", Offset: off + int64(n), Err: err}
	}

	if err == nil && n < len(seg) {
		b.stats.ShortReads++

		if b.src.seeker != nil {
			if _, serr := b.src.seeker.Seek(b.src.base+off+int64(n), io.SeekStart); serr != nil {
				return n, &IoError{Op: "seek", Offset: off + int64(n), Err: serr}
			}
		}

		var rn int
		rn, err = readFull(b.src.r, seg[n:], b.stats)
		n += rn
		if err != nil && err != io.EOF {
			return n, &IoError{Op: "read", Offset: off + int64(n), Err: err}
		}
	}

	b.stats.BytesRead += int64(n)

	if b.dropCache {
		b.src.dropCache(off, n)
	}

	if err != io.EOF && len(next) > 0 {
		b.inflight = b.issue(next, off+int64(n))
	}

	return n, err
}

// close abandons any in-flight request without waiting for it.
func (b *asyncBackend) close() error {
	b.inflight = nil
	return nil
}
