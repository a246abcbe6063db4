package archive

import (
	"bytes"
	"encoding/hex"
	"errors"
	"fmt"
	"io"

	"github.com/anjor/ddar/internal/index"

	"github.com/gobwas/glob"
)

// Extract writes the content of member tag to w, verifying the length and
// digest of every chunk on the way.
func (a *Archive) Extract(tag string, w io.Writer) (int64, error) {
	m, err := a.index.Member(tag)
	if err != nil {
		return 0, fmt.Errorf("%w: '%s'", err, tag)
	}

	c, err := a.newCodec()
	if err != nil {
		return 0, err
	}
	hasher := a.NewHasher()

	var buf bytes.Buffer
	out := &countingWriter{w: w}
	for e, err := range a.index.Chunks(tag) {
		if err != nil {
			return out.n, err
		}
		if e.Offset != out.n {
			return out.n, fmt.Errorf("%w: member '%s' expects a chunk at offset %d, index has %d", ErrCorrupt, tag, out.n, e.Offset)
		}

		hexDigest := hex.EncodeToString(e.Digest)
		buf.Reset()
		if _, err := a.objects.read(hexDigest, c, &buf); err != nil {
			return out.n, fmt.Errorf("%w: reading object %s: %s", ErrCorrupt, hexDigest, err)
		}
		if buf.Len() != e.Length {
			return out.n, fmt.Errorf("%w: object %s holds %d bytes, expected %d", ErrCorrupt, hexDigest, buf.Len(), e.Length)
		}
		if !bytes.Equal(hasher.SumBytes(buf.Bytes()), e.Digest) {
			return out.n, fmt.Errorf("%w: object %s does not match its digest", ErrCorrupt, hexDigest)
		}

		if _, err := out.Write(buf.Bytes()); err != nil {
			return out.n, err
		}
	}

	if out.n != m.Size {
		return out.n, fmt.Errorf("%w: member '%s' has %d bytes, expected %d", ErrCorrupt, tag, out.n, m.Size)
	}
	return out.n, nil
}

// Delete removes member tag, then every object no other member refers to.
// Objects go only after the index commit, so an interruption leaves
// unreferenced objects rather than dangling references.
func (a *Archive) Delete(tag string) error {
	if _, err := a.index.Member(tag); err != nil {
		return fmt.Errorf("%w: '%s'", err, tag)
	}

	seen := make(map[string][]byte)
	for e, err := range a.index.Chunks(tag) {
		if err != nil {
			return err
		}
		seen[string(e.Digest)] = e.Digest
	}

	b := a.index.NewBatch()
	defer b.Close()
	if err := b.DeleteMember(tag); err != nil {
		return err
	}
	if err := b.Commit(); err != nil {
		return err
	}

	var removed int
	var errs []error
	for _, d := range seen {
		// an object is kept unless the index positively says it is unused
		if used, err := a.index.Referenced(d, ""); err != nil {
			errs = append(errs, err)
			continue
		} else if used {
			continue
		}
		if err := a.objects.remove(hex.EncodeToString(d)); err != nil {
			errs = append(errs, err)
			continue
		}
		removed++
	}

	a.logger.Debug("deleted member", "tag", tag, "objects_removed", removed)
	return errors.Join(errs...)
}

// List returns the members whose name matches the glob pattern, in name
// order. An empty pattern matches everything.
func (a *Archive) List(pattern string) ([]index.Member, error) {
	var g glob.Glob
	if pattern != "" {
		var err error
		if g, err = glob.Compile(pattern); err != nil {
			return nil, fmt.Errorf("invalid pattern '%s': %w", pattern, err)
		}
	}

	var members []index.Member
	for m, err := range a.index.Members() {
		if err != nil {
			return nil, err
		}
		if g == nil || g.Match(m.Tag) {
			members = append(members, m)
		}
	}
	return members, nil
}

// Member returns the record of member tag.
func (a *Archive) Member(tag string) (index.Member, error) {
	return a.index.Member(tag)
}
