package randstream

import (
	"bytes"
	"io"
	"testing"
	"testing/iotest"

	"github.com/stretchr/testify/require"
)

func TestReproducible(t *testing.T) {
	a, err := io.ReadAll(New(42, 100_000))
	require.NoError(t, err)
	require.Len(t, a, 100_000)

	// odd read sizes must not change the byte sequence
	b, err := io.ReadAll(iotest.OneByteReader(New(42, 100_000)))
	require.NoError(t, err)
	require.Equal(t, a, b)

	c, err := io.ReadAll(New(43, 100_000))
	require.NoError(t, err)
	require.NotEqual(t, a, c)
}

func TestPrefixStable(t *testing.T) {
	long, err := io.ReadAll(New(7, 4099))
	require.NoError(t, err)
	short, err := io.ReadAll(New(7, 13))
	require.NoError(t, err)
	require.True(t, bytes.HasPrefix(long, short))
}

func TestEmpty(t *testing.T) {
	n, err := New(1, 0).Read(make([]byte, 8))
	require.Zero(t, n)
	require.Equal(t, io.EOF, err)
}

func TestSeedFromBytes(t *testing.T) {
	require.Equal(t, SeedFromBytes([]byte("seed")), SeedFromBytes([]byte("seed")))
	require.NotEqual(t, SeedFromBytes([]byte("seed")), SeedFromBytes([]byte("deed")))
}
