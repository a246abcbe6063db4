// Package digest names the hash functions chunks can be identified by, and
// renders their output.
package digest

import (
	"encoding/hex"
	"fmt"
	"hash"

	ddchunker "github.com/anjor/ddar/internal/chunker"

	"github.com/minio/sha256-simd"
	"github.com/multiformats/go-base36"
	"github.com/twmb/murmur3"
	"github.com/zeebo/blake3"
	"golang.org/x/crypto/blake2b"
)

const DefaultHasher = "sha2-256"

var AvailableHashers = map[string]func() hash.Hash{
	"sha2-256": sha256.New,
	"blake3":   func() hash.Hash { return blake3.New() },
	"blake2b-256": func() hash.Hash {
		h, _ := blake2b.New256(nil) // errors only on oversized keys
		return h
	},
	"murmur3-128": func() hash.Hash { return murmur3.New128() },
}

const DefaultEncoding = "hex"

var AvailableEncodings = map[string]func([]byte) string{
	"hex":    hex.EncodeToString,
	"base36": base36.EncodeToStringLc,
}

type Hasher struct {
	name string
	h    hash.Hash
}

func NewHasher(name string) (*Hasher, error) {
	mk, exists := AvailableHashers[name]
	if !exists {
		return nil, fmt.Errorf("unknown hash function '%s'", name)
	}
	return &Hasher{name: name, h: mk()}, nil
}

func (h *Hasher) Name() string { return h.name }

func (h *Hasher) Size() int { return h.h.Size() }

// Sum digests a chunk, feeding its spans in order.
func (h *Hasher) Sum(c ddchunker.Chunk) []byte {
	h.h.Reset()
	h.h.Write(c.Data[0]) //nolint:errcheck
	h.h.Write(c.Data[1]) //nolint:errcheck
	return h.h.Sum(nil)
}

func (h *Hasher) SumBytes(b []byte) []byte {
	h.h.Reset()
	h.h.Write(b) //nolint:errcheck
	return h.h.Sum(nil)
}

func Format(d []byte, encoding string) (string, error) {
	enc, exists := AvailableEncodings[encoding]
	if !exists {
		return "", fmt.Errorf("unknown digest encoding '%s'", encoding)
	}
	return enc(d), nil
}
