package ddar

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	ddchunker "github.com/anjor/ddar/internal/chunker"
	ddcollector "github.com/anjor/ddar/internal/collector"
	"github.com/anjor/ddar/internal/constants"
	"github.com/anjor/ddar/internal/digest"
	"github.com/anjor/ddar/internal/util/stream"
	"github.com/anjor/ddar/internal/util/text"
)

// regular files below this size are not worth an fadvise() round trip
const readHintMinSize = 16 * 1024 * 1024

type chunkRecord struct {
	_      constants.Incomparabe
	Event  string `json:"event"`
	Source string `json:"source"`
	Offset int64  `json:"offset"`
	Length int    `json:"length"`
	Digest string `json:"digest"`
	Forced bool   `json:"forced,omitempty"`
	Last   bool   `json:"last,omitempty"`
}

// openSource returns the named input, "-" being stdIN, with read hints
// applied where they make sense.
func (d *Ddar) openSource(name string) (io.Reader, func(), error) {
	f := os.Stdin
	closer := func() {}

	if name != "-" {
		var err error
		if f, err = os.Open(name); err != nil {
			return nil, nil, err
		}
		closer = func() { f.Close() }
	} else if stream.IsTTY(f) {
		d.logger.Warn("You seem to be feeding data straight from a terminal, an odd choice... Nevertheless will proceed to read until EOF ( Ctrl+D )")
		return f, closer, nil
	}

	s, err := f.Stat()
	if err != nil {
		closer()
		return nil, nil, err
	}

	// Try optimizations if:
	// - not a regular file
	// - regular file larger than a certain size
	// An optimization returns os.ErrInvalid when it can't be applied to the file type
	if !s.Mode().IsRegular() || s.Size() > readHintMinSize {
		for _, opt := range stream.ReadOptimizations {
			if err := opt.Action(f, s); err != nil && err != os.ErrInvalid {
				d.logger.Warn("failed to apply read optimization hint", "hint", opt.Name, "source", name, "err", err)
			}
		}
	}

	return f, closer, nil
}

// processStream chunks src to its end, handing every chunk with its digest to
// col. The collector is flushed on success and aborted on any failure.
func (d *Ddar) processStream(name string, src io.Reader, cfg ddchunker.Config, hasher *digest.Hasher, col ddcollector.Collector) (err error) {

	chunker, err := ddchunker.New(cfg)
	if err != nil {
		col.Abort()
		return err
	}
	defer chunker.Close()

	defer func() {
		if err != nil {
			col.Abort()
			err = fmt.Errorf(
				"failure at byte offset %s of '%s': %w",
				text.Commify64(chunker.Offset()),
				name,
				err,
			)
		}
	}()

	if err = chunker.Attach(src); err != nil {
		return
	}
	if err = chunker.Begin(); err != nil {
		return
	}

	for {
		chunk, nextErr := chunker.Next()
		if nextErr == io.EOF {
			break
		} else if nextErr != nil {
			return nextErr
		}

		dgst := hasher.Sum(chunk)

		if d.emitChunks {
			if err = d.emitChunk(name, chunk, dgst); err != nil {
				return
			}
		}

		if err = col.AppendChunk(chunk, dgst); err != nil {
			return
		}

		d.accountChunk(chunk, dgst)
	}

	if err = col.Flush(); err != nil {
		return
	}

	d.accountStream(chunker.Stats())
	return nil
}

func (d *Ddar) emitChunk(name string, c ddchunker.Chunk, dgst []byte) error {
	encoded, err := digest.Format(dgst, d.cfg.digestEncoding)
	if err != nil {
		return err
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if w := d.cfg.emitters[emChunksJsonl]; w != nil {
		jsonl, err := json.Marshal(chunkRecord{
			Event:  "chunk",
			Source: name,
			Offset: c.Offset,
			Length: c.Size,
			Digest: encoded,
			Forced: c.Forced,
			Last:   c.Last,
		})
		if err != nil {
			return err
		}
		if _, err := w.Write(append(jsonl, '\n')); err != nil {
			return fmt.Errorf("emitting '%s' failed: %s", emChunksJsonl, err)
		}
	}

	if w := d.cfg.emitters[emChunksCsv]; w != nil {
		if _, err := fmt.Fprintf(w, "%s,%d,%d\n", encoded, c.Offset, c.Size); err != nil {
			return fmt.Errorf("emitting '%s' failed: %s", emChunksCsv, err)
		}
	}

	return nil
}
