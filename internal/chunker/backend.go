package ddchunker

import (
	"errors"
	"io"
	"os"

	"github.com/anjor/ddar/internal/util/stream"
)

// ioBackend fills ring segments from the source. fill must return either a
// completely filled seg, or io.EOF (with n possibly > 0) once the source is
// drained. next names the segment that will be requested afterwards, which an
// overlapped backend may start reading ahead of time.
type ioBackend interface {
	fill(seg []byte, off int64, next []byte) (n int, err error)
	close() error
}

type source struct {
	r      io.Reader
	ra     io.ReaderAt // nil unless positional reads are possible
	seeker io.Seeker
	base   int64 // position of the reader at attach time
	file   *os.File
}

func probeSource(r io.Reader) *source {
	src := &source{r: r}

	if f, isFh := r.(*os.File); isFh {
		src.file = f
	}

	if s, isSeeker := r.(io.Seeker); isSeeker {
		if pos, err := s.Seek(0, io.SeekCurrent); err == nil {
			src.seeker = s
			src.base = pos
			if ra, isRa := r.(io.ReaderAt); isRa {
				src.ra = ra
			}
		}
	}

	return src
}

func (src *source) dropCache(off int64, n int) {
	if src.file == nil || n == 0 {
		return
	}
	// advisory only
	if err := stream.DropCache(src.file, src.base+off, int64(n)); err != nil && !errors.Is(err, os.ErrInvalid) {
		src.file = nil
	}
}

// readFull reads until p is full, retrying interrupted calls and short reads.
// It returns io.EOF when the source ends before p is full.
func readFull(r io.Reader, p []byte, stats *Stats) (n int, err error) {
	for n < len(p) {
		var rn int
		rn, err = r.Read(p[n:])
		stats.ReadCalls++
		n += rn

		if err == io.EOF {
			return n, io.EOF
		} else if err != nil {
			if isInterrupted(err) {
				err = nil
				continue
			}
			return n, err
		}
	}
	return n, nil
}

func newBackend(mode IOMode, src *source, dropCache bool, stats *Stats) ioBackend {
	if mode == IOAsync {
		return &asyncBackend{src: src, dropCache: dropCache, stats: stats}
	}
	return &syncBackend{src: src, dropCache: dropCache, stats: stats}
}
