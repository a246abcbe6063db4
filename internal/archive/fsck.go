package archive

import (
	"bytes"
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"io/fs"
	"sync"

	"golang.org/x/sync/errgroup"
)

type Report struct {
	Members  int
	Chunks   int64
	Objects  int
	Problems []string
}

func (r *Report) OK() bool { return len(r.Problems) == 0 }

// Fsck cross-checks the index against itself and against the object store.
// Objects are verified by up to jobs goroutines. Findings go into the
// report, the error is reserved for failures preventing the check itself.
func (a *Archive) Fsck(ctx context.Context, jobs int) (*Report, error) {
	if jobs < 1 {
		jobs = 1
	}
	r := &Report{}

	lengths, err := a.fsckIndex(r)
	if err != nil {
		return r, err
	}

	if err := a.objects.walk(func(hexDigest string) error {
		if _, known := lengths[hexDigest]; !known {
			r.Problems = append(r.Problems, fmt.Sprintf("unknown object %s", hexDigest))
		}
		return nil
	}); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return r, err
	}

	var mu sync.Mutex
	problem := func(format string, args ...any) {
		mu.Lock()
		r.Problems = append(r.Problems, fmt.Sprintf(format, args...))
		mu.Unlock()
	}

	codecs := sync.Pool{New: func() any {
		c, _ := a.newCodec() // constructors only fail on invalid options
		return c
	}}

	eg, gctx := errgroup.WithContext(ctx)
	eg.SetLimit(jobs)
	for hexDigest, length := range lengths {
		if gctx.Err() != nil {
			break
		}
		r.Objects++
		eg.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}

			c := codecs.Get().(codec)
			defer codecs.Put(c)

			var buf bytes.Buffer
			if _, err := a.objects.read(hexDigest, c, &buf); err != nil {
				problem("could not read object %s: %s", hexDigest, err)
				return nil
			}
			if buf.Len() != length {
				problem("object %s has wrong size: %d, expected %d", hexDigest, buf.Len(), length)
				return nil
			}
			if hex.EncodeToString(a.NewHasher().SumBytes(buf.Bytes())) != hexDigest {
				problem("object %s is corrupt", hexDigest)
			}
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return r, err
	}
	if err := ctx.Err(); err != nil {
		return r, err
	}

	a.logger.Debug("fsck complete", "members", r.Members, "chunks", r.Chunks, "objects", r.Objects, "problems", len(r.Problems))
	return r, nil
}

// fsckIndex verifies that the chunks of every member tile it without holes or
// overlaps, and returns the expected length of every referenced object.
func (a *Archive) fsckIndex(r *Report) (map[string]int, error) {
	lengths := make(map[string]int)

	for m, err := range a.index.Members() {
		if err != nil {
			return nil, err
		}
		r.Members++

		var pos, count int64
		for e, err := range a.index.Chunks(m.Tag) {
			if err != nil {
				return nil, err
			}
			count++

			if e.Offset < pos {
				r.Problems = append(r.Problems, fmt.Sprintf("chunk at offset %d of '%s' overlaps its predecessor", e.Offset, m.Tag))
			} else if e.Offset > pos {
				r.Problems = append(r.Problems, fmt.Sprintf("hole in '%s' between %d and %d", m.Tag, pos, e.Offset))
			}
			pos = e.Offset + int64(e.Length)

			hexDigest := hex.EncodeToString(e.Digest)
			if prev, seen := lengths[hexDigest]; seen && prev != e.Length {
				r.Problems = append(r.Problems, fmt.Sprintf("object %s referenced with lengths %d and %d", hexDigest, prev, e.Length))
			}
			lengths[hexDigest] = e.Length
		}
		r.Chunks += count

		if count != m.Chunks {
			r.Problems = append(r.Problems, fmt.Sprintf("member '%s' records %d chunks, index holds %d", m.Tag, m.Chunks, count))
		}
		if pos != m.Size {
			r.Problems = append(r.Problems, fmt.Sprintf("member '%s' records %d bytes, chunks cover %d", m.Tag, m.Size, pos))
		}
	}

	// chunk entries left behind without a member record
	for d, err := range a.index.Digests() {
		if err != nil {
			return nil, err
		}
		if _, seen := lengths[d]; !seen {
			r.Problems = append(r.Problems, fmt.Sprintf("object %s is referenced by no member", d))
		}
	}

	return lengths, nil
}
