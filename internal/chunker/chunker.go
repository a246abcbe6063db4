// Package ddchunker implements content-defined chunking of a byte stream: a
// rolling hash is driven over a segmented ring buffer and a boundary is cut
// wherever the low bits of the hash are all set, subject to minimum and
// maximum chunk sizes.
package ddchunker

import (
	"fmt"
	"io"

	"github.com/anjor/ddar/internal/constants"
	"github.com/anjor/ddar/internal/rabin"
)

type state int

const (
	stateCreated = state(iota)
	stateAttached
	stateScanning
	stateDone
	stateFailed
	stateClosed
)

// Chunker is not safe for concurrent use. One instance chunks one source at a
// time, and must be recreated after returning an error.
type Chunker struct {
	_      constants.Incomparabe
	cfg    Config
	hash   *rabin.Hash
	mask   uint32
	ring   *ringScanner
	src    *source
	state  state
	err    error
	offset int64
	stats  Stats
}

func New(cfg Config) (*Chunker, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	cfg = cfg.withDefaults()

	c := &Chunker{
		cfg:  cfg,
		hash: rabin.New(cfg.Multiplier, cfg.WindowSize),
		mask: uint32(cfg.TargetChunkSize - 1),
	}
	c.ring = newRingScanner(cfg.SegmentSize(), cfg.Segments, &c.stats)

	return c, nil
}

func (c *Chunker) Config() Config { return c.cfg }

// Stats is a snapshot of the counters accumulated so far.
func (c *Chunker) Stats() Stats { return c.stats }

// Offset is the stream position at which the next chunk starts.
func (c *Chunker) Offset() int64 { return c.offset }

// Attach binds a source. A source positioned mid-stream is chunked from its
// current position onwards.
func (c *Chunker) Attach(r io.Reader) error {
	switch c.state {
	case stateClosed:
		return ErrClosed
	case stateCreated:
	default:
		return fmt.Errorf("a source is already attached to this chunker")
	}

	c.src = probeSource(r)
	c.ring.reset(newBackend(c.cfg.IOMode, c.src, c.cfg.DropCache, &c.stats))
	c.state = stateAttached
	return nil
}

// Begin performs the initial fill, in async mode also starting the read-ahead
// of the following segment.
func (c *Chunker) Begin() error {
	switch c.state {
	case stateClosed:
		return ErrClosed
	case stateCreated:
		return ErrNotAttached
	case stateAttached:
	case stateFailed:
		return c.err
	default:
		return fmt.Errorf("chunker already started")
	}

	if err := c.ring.refill(); err != nil {
		return c.fail(err)
	}
	c.state = stateScanning
	return nil
}

// Next returns the next chunk. Once the chunk flagged Last was returned, it
// returns io.EOF. An *IoError is returned on every call after the first
// failure.
func (c *Chunker) Next() (Chunk, error) {
	switch c.state {
	case stateScanning:
	case stateDone:
		return Chunk{}, io.EOF
	case stateFailed:
		return Chunk{}, c.err
	case stateClosed:
		return Chunk{}, ErrClosed
	case stateCreated:
		return Chunk{}, ErrNotAttached
	default:
		return Chunk{}, ErrNotStarted
	}

	chunk, err := c.scan()
	if err != nil {
		return Chunk{}, c.fail(err)
	}

	c.stats.Chunks++
	if chunk.Forced {
		c.stats.ForcedCuts++
	}
	if chunk.Last {
		c.state = stateDone
	}
	return chunk, nil
}

func (c *Chunker) Close() error {
	if c.state == stateClosed {
		return nil
	}
	c.state = stateClosed
	c.src = nil
	return c.ring.close()
}

func (c *Chunker) fail(err error) error {
	c.state = stateFailed
	c.err = err
	return err
}

func (c *Chunker) scan() (Chunk, error) {
	r := c.ring
	k := c.cfg.WindowSize
	minSize := c.cfg.MinChunkSize
	maxSize := c.cfg.MaxChunkSize

	if r.avail < minSize {
		if err := r.ensureAvailable(minSize); err != nil {
			return Chunk{}, err
		}
		if r.avail < minSize {
			if constants.PerformSanityChecks && !r.exhausted {
				panic(fmt.Sprintf("only %d bytes available after refill of an unexhausted source", r.avail))
			}
			r.advance(r.avail)
			return c.emit(false)
		}
	}

	// no cut is possible within the first min bytes
	r.advance(minSize)
	size := minSize

	var h uint32
	if head, tail := r.window(k); tail == nil {
		h = c.hash.Sum(head)
	} else {
		h = c.hash.SumSplit(head, tail)
	}

	for {
		if h&c.mask == c.mask {
			return c.emit(false)
		} else if size >= maxSize {
			return c.emit(true)
		}

		if r.avail == 0 {
			if err := r.refill(); err != nil {
				return Chunk{}, err
			}
			if r.avail == 0 {
				return c.emit(false)
			}
		}

		h = c.hash.Slide(h, r.byteAt(-k), r.byteAt(0))
		r.advance(1)
		size++
	}
}

// emit cuts the pending bytes. When the cut lands exactly at the end of the
// buffered data the source is probed once more, so that the final chunk is
// always flagged as such. The probe fills a segment disjoint from the chunk
// being returned.
func (c *Chunker) emit(forced bool) (Chunk, error) {
	r := c.ring

	size, spans := r.cut()

	if r.avail == 0 && !r.exhausted {
		if err := r.refill(); err != nil {
			return Chunk{}, err
		}
	}

	chunk := Chunk{
		Offset: c.offset,
		Size:   size,
		Data:   spans,
		Forced: forced,
		Last:   r.avail == 0 && r.exhausted,
	}
	c.offset += int64(size)

	if constants.PerformSanityChecks && !chunk.Last && (size < c.cfg.MinChunkSize || size > c.cfg.MaxChunkSize) {
		panic(fmt.Sprintf("non-final chunk of %d bytes outside of [%d:%d]", size, c.cfg.MinChunkSize, c.cfg.MaxChunkSize))
	}

	return chunk, nil
}
