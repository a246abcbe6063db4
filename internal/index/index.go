// Package index persists which chunks make up each archive member, and which
// members reference each chunk digest.
//
// Keyspace:
//
//	c:<tag>\x00<offset, 8 bytes BE>               chunk entry of a member
//	h:<hex digest>\x00<tag>\x00<offset, 8 bytes BE> reverse reference, empty value
//	m:<tag>                                       member record
package index

import (
	"context"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
	"iter"
	"strings"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/charmbracelet/log"
	"github.com/cockroachdb/pebble/v2"
	"github.com/vmihailenco/msgpack/v5"
)

var (
	ErrInUse       = errors.New("index in use by another process")
	ErrNotFound    = errors.New("member not found")
	ErrInvalidTag  = errors.New("member names must be non-empty and must not contain NUL bytes")
	ErrCorruptKeys = errors.New("corrupt index key")
)

const (
	prefixChunk  = "c:"
	prefixRef    = "h:"
	prefixMember = "m:"
)

type ChunkEntry struct {
	Offset int64  `msgpack:"-"`
	Digest []byte `msgpack:"digest"`
	Length int    `msgpack:"length"`
}

type Member struct {
	Tag     string    `msgpack:"tag"`
	Size    int64     `msgpack:"size"`
	Chunks  int64     `msgpack:"chunks"`
	Created time.Time `msgpack:"created"`
	Hash    string    `msgpack:"hash"`
	Chunker string    `msgpack:"chunker"`
}

type Index struct {
	db     *pebble.DB
	logger *log.Logger

	putCount    int64
	commitCount int64
}

type pebbleLogger struct{ *log.Logger }

func (l pebbleLogger) Infof(format string, args ...any)  { l.Debugf(format, args...) }
func (l pebbleLogger) Errorf(format string, args ...any) { l.Logger.Errorf(format, args...) }
func (l pebbleLogger) Fatalf(format string, args ...any) { l.Logger.Fatalf(format, args...) }
func (l pebbleLogger) Eventf(ctx context.Context, format string, args ...any) {
	l.Debugf(format, args...)
}
func (l pebbleLogger) IsTracingEnabled(ctx context.Context) bool { return false }

func Open(dir string, logger *log.Logger) (*Index, error) {
	return open(dir, logger, &pebble.Options{})
}

func open(dir string, logger *log.Logger, opts *pebble.Options) (*Index, error) {
	opts.Logger = pebbleLogger{logger}
	db, err := pebble.Open(dir, opts)
	if err != nil {
		if errors.Is(err, syscall.EAGAIN) {
			return nil, ErrInUse
		}
		return nil, err
	}

	return &Index{db: db, logger: logger}, nil
}

func (ix *Index) Close() error {
	ix.logger.Debug("closing index",
		"puts", atomic.LoadInt64(&ix.putCount),
		"commits", atomic.LoadInt64(&ix.commitCount),
	)
	return ix.db.Close()
}

func ValidTag(tag string) error {
	if tag == "" || strings.IndexByte(tag, 0) >= 0 {
		return ErrInvalidTag
	}
	return nil
}

func chunkKey(tag string, off int64) []byte {
	k := make([]byte, 0, len(prefixChunk)+len(tag)+1+8)
	k = append(k, prefixChunk...)
	k = append(k, tag...)
	k = append(k, 0)
	return binary.BigEndian.AppendUint64(k, uint64(off))
}

func chunkPrefix(tag string) []byte {
	return append([]byte(prefixChunk+tag), 0)
}

func refKey(digest []byte, tag string, off int64) []byte {
	k := refPrefix(digest)
	k = append(k, tag...)
	k = append(k, 0)
	return binary.BigEndian.AppendUint64(k, uint64(off))
}

func refPrefix(digest []byte) []byte {
	return append([]byte(prefixRef+hex.EncodeToString(digest)), 0)
}

func memberKey(tag string) []byte {
	return []byte(prefixMember + tag)
}

// makeKeyUpperBound returns the smallest key greater than every key sharing
// the given prefix.
func makeKeyUpperBound(key []byte) []byte {
	end := make([]byte, len(key))
	copy(end, key)

	for i := len(end) - 1; i >= 0; i-- {
		end[i] = end[i] + 1
		if end[i] != 0 {
			return end[:i+1]
		}
	}

	return nil // no upper-bound
}

// scan calls fn on every key with the given prefix, in key order, until fn
// returns false. Iteration failures are returned, a prefix cut short by
// one must never pass for a complete one.
func (ix *Index) scan(prefix []byte, fn func(k, v []byte) bool) (err error) {
	it, err := ix.db.NewIter(&pebble.IterOptions{
		LowerBound: prefix,
		UpperBound: makeKeyUpperBound(prefix),
	})
	if err != nil {
		return err
	}
	defer func() {
		if cerr := it.Close(); err == nil {
			err = cerr
		}
	}()

	for it.First(); it.Valid(); it.Next() {
		if !fn(it.Key(), it.Value()) {
			return nil
		}
	}
	return it.Error()
}

func (ix *Index) Member(tag string) (Member, error) {
	var m Member
	data, closer, err := ix.db.Get(memberKey(tag))
	if err == pebble.ErrNotFound {
		return m, ErrNotFound
	} else if err != nil {
		return m, err
	}
	defer closer.Close()

	if err := msgpack.Unmarshal(data, &m); err != nil {
		return m, fmt.Errorf("decoding member record '%s': %w", tag, err)
	}
	return m, nil
}

func (ix *Index) HasMember(tag string) (bool, error) {
	_, err := ix.Member(tag)
	if err == ErrNotFound {
		return false, nil
	}
	return err == nil, err
}

// Members iterates member records in name order.
func (ix *Index) Members() iter.Seq2[Member, error] {
	return func(yield func(Member, error) bool) {
		var stopped bool
		err := ix.scan([]byte(prefixMember), func(_, v []byte) bool {
			var m Member
			err := msgpack.Unmarshal(v, &m)
			stopped = !yield(m, err) || err != nil
			return !stopped
		})
		if err != nil && !stopped {
			yield(Member{}, err)
		}
	}
}

// Chunks iterates the chunk entries of a member in stream order.
func (ix *Index) Chunks(tag string) iter.Seq2[ChunkEntry, error] {
	prefix := chunkPrefix(tag)
	return func(yield func(ChunkEntry, error) bool) {
		var stopped bool
		err := ix.scan(prefix, func(k, v []byte) bool {
			var e ChunkEntry
			err := msgpack.Unmarshal(v, &e)
			if err == nil {
				if len(k) != len(prefix)+8 {
					err = fmt.Errorf("%w: %q", ErrCorruptKeys, k)
				} else {
					e.Offset = int64(binary.BigEndian.Uint64(k[len(prefix):]))
				}
			}
			stopped = !yield(e, err) || err != nil
			return !stopped
		})
		if err != nil && !stopped {
			yield(ChunkEntry{}, err)
		}
	}
}

// Referenced reports whether any member other than exceptTag refers to the
// digest.
func (ix *Index) Referenced(digest []byte, exceptTag string) (bool, error) {
	prefix := refPrefix(digest)
	skip := append(append([]byte(nil), prefix...), exceptTag...)
	skip = append(skip, 0)

	var found bool
	err := ix.scan(prefix, func(k, _ []byte) bool {
		found = len(k) < len(skip) || string(k[:len(skip)]) != string(skip)
		return !found
	})
	if err != nil {
		return false, err
	}
	return found, nil
}

// Digests iterates every digest referenced by at least one member, each
// exactly once, in hex form.
func (ix *Index) Digests() iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		var last string
		var stopped bool
		err := ix.scan([]byte(prefixRef), func(k, _ []byte) bool {
			rest := k[len(prefixRef):]
			end := strings.IndexByte(string(rest), 0)
			if end < 0 {
				yield("", fmt.Errorf("%w: %q", ErrCorruptKeys, k))
				stopped = true
				return false
			}
			if d := string(rest[:end]); d != last {
				last = d
				stopped = !yield(d, nil)
			}
			return !stopped
		})
		if err != nil && !stopped {
			yield("", err)
		}
	}
}

// Batch accumulates writes that become visible atomically on Commit.
type Batch struct {
	ix    *Index
	b     *pebble.Batch
	dirty int
}

func (ix *Index) NewBatch() *Batch {
	return &Batch{ix: ix, b: ix.db.NewBatch()}
}

func (b *Batch) AddChunk(tag string, e ChunkEntry) error {
	v, err := msgpack.Marshal(&e)
	if err != nil {
		return err
	}
	if err := b.b.Set(chunkKey(tag, e.Offset), v, nil); err != nil {
		return err
	}
	if err := b.b.Set(refKey(e.Digest, tag, e.Offset), nil, nil); err != nil {
		return err
	}
	b.dirty += 2
	return nil
}

func (b *Batch) PutMember(m Member) error {
	v, err := msgpack.Marshal(&m)
	if err != nil {
		return err
	}
	b.dirty++
	return b.b.Set(memberKey(m.Tag), v, nil)
}

// DeleteMember queues the removal of a committed member with all its chunk
// entries and references.
func (b *Batch) DeleteMember(tag string) error {
	for e, err := range b.ix.Chunks(tag) {
		if err != nil {
			return err
		}
		if err := b.b.Delete(refKey(e.Digest, tag, e.Offset), nil); err != nil {
			return err
		}
		b.dirty++
	}

	prefix := chunkPrefix(tag)
	if err := b.b.DeleteRange(prefix, makeKeyUpperBound(prefix), nil); err != nil {
		return err
	}
	b.dirty++
	return b.b.Delete(memberKey(tag), nil)
}

func (b *Batch) Commit() error {
	atomic.AddInt64(&b.ix.putCount, int64(b.dirty))
	atomic.AddInt64(&b.ix.commitCount, 1)
	return b.b.Commit(pebble.Sync)
}

// Close discards anything not committed.
func (b *Batch) Close() error {
	return b.b.Close()
}
