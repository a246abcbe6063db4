package ddcollector

import (
	ddchunker "github.com/anjor/ddar/internal/chunker"
)

// Collector receives every chunk of a stream in order, together with its
// digest. Nothing a collector does may become durable before Flush.
type Collector interface {
	AppendChunk(c ddchunker.Chunk, digest []byte) error
	Flush() error
	Abort()
}
