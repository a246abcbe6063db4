package noop

import (
	"testing"

	ddchunker "github.com/anjor/ddar/internal/chunker"

	"github.com/stretchr/testify/require"
)

func TestDropsEverything(t *testing.T) {
	c := NewCollector()
	require.NoError(t, c.AppendChunk(ddchunker.Chunk{Size: 3, Data: [2][]byte{[]byte("abc")}}, []byte{1}))
	require.NoError(t, c.AppendChunk(ddchunker.Chunk{Offset: 3, Size: 0}, nil))
	require.NoError(t, c.Flush())
	c.Abort()

	// flushing again after an abort is harmless
	require.NoError(t, c.Flush())
}
