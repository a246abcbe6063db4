package digest

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"testing"

	ddchunker "github.com/anjor/ddar/internal/chunker"
	"github.com/stretchr/testify/require"
)

func TestSplitChunkDigest(t *testing.T) {
	payload := bytes.Repeat([]byte("0123456789"), 1000)

	for name := range AvailableHashers {
		h, err := NewHasher(name)
		require.NoError(t, err)

		whole := h.SumBytes(payload)
		require.Len(t, whole, h.Size(), name)

		for _, cut := range []int{0, 1, 4999, len(payload)} {
			c := ddchunker.Chunk{
				Size: len(payload),
				Data: [2][]byte{payload[:cut], payload[cut:]},
			}
			require.Equal(t, whole, h.Sum(c), "%s split at %d", name, cut)
		}
	}
}

func TestSha256MatchesStdlib(t *testing.T) {
	h, err := NewHasher(DefaultHasher)
	require.NoError(t, err)

	want := sha256.Sum256([]byte("ddar"))
	require.Equal(t, want[:], h.SumBytes([]byte("ddar")))
}

func TestFormat(t *testing.T) {
	d := []byte{0x00, 0xff, 0x10}

	s, err := Format(d, "hex")
	require.NoError(t, err)
	require.Equal(t, hex.EncodeToString(d), s)

	s, err = Format(d, "base36")
	require.NoError(t, err)
	require.NotEmpty(t, s)
	require.Equal(t, strings.ToLower(s), s)

	_, err = Format(d, "base58")
	require.Error(t, err)

	_, err = NewHasher("md5")
	require.Error(t, err)
}
