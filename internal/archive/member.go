package archive

import (
	"encoding/hex"
	"fmt"
	"io"
	"time"

	ddchunker "github.com/anjor/ddar/internal/chunker"
	"github.com/anjor/ddar/internal/index"
)

type MemberStats struct {
	Chunks      int64
	Bytes       int64
	NewChunks   int64
	NewBytes    int64
	StoredBytes int64
}

// MemberWriter stores the chunks of one member as they are produced. Objects
// are written immediately, the index entries only become visible on Flush.
// An interrupted writer leaves at worst unreferenced objects behind.
type MemberWriter struct {
	a     *Archive
	tag   string
	codec codec
	batch *index.Batch
	stats MemberStats

	// digests first stored by this writer, so a member repeating one of its
	// own new chunks does not count it twice
	pending map[string]struct{}
	done    bool
}

func (a *Archive) NewMemberWriter(tag string) (*MemberWriter, error) {
	if err := index.ValidTag(tag); err != nil {
		return nil, err
	}
	exists, err := a.index.HasMember(tag)
	if err != nil {
		return nil, err
	}
	if exists {
		return nil, fmt.Errorf("%w: '%s'", ErrMemberExists, tag)
	}
	c, err := a.newCodec()
	if err != nil {
		return nil, err
	}
	return &MemberWriter{
		a:       a,
		tag:     tag,
		codec:   c,
		batch:   a.index.NewBatch(),
		pending: make(map[string]struct{}),
	}, nil
}

func (mw *MemberWriter) Tag() string { return mw.tag }

func (mw *MemberWriter) Stats() MemberStats { return mw.stats }

func (mw *MemberWriter) AppendChunk(c ddchunker.Chunk, digest []byte) error {
	if mw.done {
		return fmt.Errorf("member '%s' already finalized", mw.tag)
	}
	if c.Offset != mw.stats.Bytes {
		return fmt.Errorf(
			"chunk at offset %d does not continue member '%s' ending at %d",
			c.Offset,
			mw.tag,
			mw.stats.Bytes,
		)
	}

	hexDigest := hex.EncodeToString(digest)
	_, seen := mw.pending[hexDigest]
	if !seen {
		exists, err := mw.a.objects.exists(hexDigest)
		if err != nil {
			return err
		}
		if !exists {
			stored, err := mw.a.objects.put(hexDigest, mw.codec, c.Data)
			if err != nil {
				return fmt.Errorf("storing object %s: %w", hexDigest, err)
			}
			mw.pending[hexDigest] = struct{}{}
			mw.stats.NewChunks++
			mw.stats.NewBytes += int64(c.Size)
			mw.stats.StoredBytes += stored
		}
	}

	if err := mw.batch.AddChunk(mw.tag, index.ChunkEntry{
		Offset: c.Offset,
		Digest: digest,
		Length: c.Size,
	}); err != nil {
		return err
	}

	mw.stats.Chunks++
	mw.stats.Bytes += int64(c.Size)
	return nil
}

// Flush records the member and commits all its chunk entries at once.
func (mw *MemberWriter) Flush() error {
	if mw.done {
		return fmt.Errorf("member '%s' already finalized", mw.tag)
	}
	mw.done = true
	defer mw.batch.Close()

	if err := mw.batch.PutMember(index.Member{
		Tag:     mw.tag,
		Size:    mw.stats.Bytes,
		Chunks:  mw.stats.Chunks,
		Created: time.Now().UTC(),
		Hash:    mw.a.params.Hash,
		Chunker: mw.a.params.Chunker,
	}); err != nil {
		return err
	}
	if err := mw.batch.Commit(); err != nil {
		return err
	}

	mw.a.logger.Debug(
		"stored member",
		"tag", mw.tag,
		"size", mw.stats.Bytes,
		"chunks", mw.stats.Chunks,
		"new", mw.stats.NewChunks,
	)
	return nil
}

func (mw *MemberWriter) Abort() {
	if !mw.done {
		mw.done = true
		mw.batch.Close()
	}
}

// Add chunks src into a new member named tag. Only the io settings of cfg are
// honored, chunk boundaries always follow the archive parameters.
func (a *Archive) Add(tag string, src io.Reader, cfg ddchunker.Config) (MemberStats, error) {
	mw, err := a.NewMemberWriter(tag)
	if err != nil {
		return MemberStats{}, err
	}
	defer mw.Abort()

	chunker, err := ddchunker.New(a.withIOSettings(cfg))
	if err != nil {
		return MemberStats{}, err
	}
	defer chunker.Close()

	if err := chunker.Attach(src); err != nil {
		return MemberStats{}, err
	}
	if err := chunker.Begin(); err != nil {
		return MemberStats{}, err
	}

	hasher := a.NewHasher()
	for {
		c, err := chunker.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return mw.Stats(), err
		}
		if err := mw.AppendChunk(c, hasher.Sum(c)); err != nil {
			return mw.Stats(), err
		}
	}

	if err := mw.Flush(); err != nil {
		return mw.Stats(), err
	}
	return mw.Stats(), nil
}

// withIOSettings returns the archive chunking configuration carrying the io
// knobs of cfg.
func (a *Archive) withIOSettings(cfg ddchunker.Config) ddchunker.Config {
	out := a.chunkerCfg
	out.IOMode = cfg.IOMode
	out.BufferSize = cfg.BufferSize
	out.Segments = cfg.Segments
	out.DropCache = cfg.DropCache
	return out
}
