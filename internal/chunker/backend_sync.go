package ddchunker

import "io"

type syncBackend struct {
	src       *source
	dropCache bool
	stats     *Stats
}

func (b *syncBackend) fill(seg []byte, off int64, _ []byte) (int, error) {
	n, err := readFull(b.src.r, seg, b.stats)
	b.stats.BytesRead += int64(n)

	if err != nil && err != io.EOF {
		return n, &IoError{Op: "read", Offset: off + int64(n), Err: err}
	}

	if b.dropCache {
		b.src.dropCache(off, n)
	}

	return n, err
}

func (b *syncBackend) close() error { return nil }
