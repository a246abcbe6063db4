package archive

import (
	"errors"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

const tmpPrefix = ".tmp-"

// objectStore keeps one compressed file per unique chunk, fanned out over
// subdirectories named after the first two hex digits of the digest.
type objectStore struct {
	dir string
}

func (s objectStore) path(hexDigest string) string {
	return filepath.Join(s.dir, hexDigest[:2], hexDigest)
}

func (s objectStore) exists(hexDigest string) (bool, error) {
	_, err := os.Stat(s.path(hexDigest))
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	return err == nil, err
}

type countingWriter struct {
	w io.Writer
	n int64
}

func (cw *countingWriter) Write(p []byte) (int, error) {
	n, err := cw.w.Write(p)
	cw.n += int64(n)
	return n, err
}

// put writes an object under a temporary name and renames it into place, so
// a present object is always complete.
func (s objectStore) put(hexDigest string, c codec, spans [2][]byte) (stored int64, err error) {
	dir := filepath.Dir(s.path(hexDigest))
	if err = os.MkdirAll(dir, 0o755); err != nil {
		return
	}

	f, err := os.CreateTemp(dir, tmpPrefix)
	if err != nil {
		return
	}
	defer func() {
		if err != nil {
			f.Close()
			os.Remove(f.Name())
		}
	}()

	cw := &countingWriter{w: f}
	if err = c.compress(cw, spans); err != nil {
		return
	}
	if err = f.Close(); err != nil {
		return
	}
	if err = os.Rename(f.Name(), s.path(hexDigest)); err != nil {
		return
	}

	return cw.n, nil
}

// read decompresses an object into w.
func (s objectStore) read(hexDigest string, c codec, w io.Writer) (int64, error) {
	f, err := os.Open(s.path(hexDigest))
	if err != nil {
		return 0, err
	}
	defer f.Close()

	return c.decompress(f, w)
}

func (s objectStore) remove(hexDigest string) error {
	err := os.Remove(s.path(hexDigest))
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	return err
}

// walk calls fn for every complete object, skipping leftovers of interrupted
// writes.
func (s objectStore) walk(fn func(hexDigest string) error) error {
	return filepath.WalkDir(s.dir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || strings.HasPrefix(d.Name(), tmpPrefix) {
			return nil
		}
		return fn(d.Name())
	})
}
