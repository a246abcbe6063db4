// Package archive implements a deduplicating archive of named members. Each
// member is chunked, every unique chunk is stored once as a compressed object
// named after its digest, and an index records the chunk sequence of every
// member.
//
// Layout:
//
//	format/name     "ddar"
//	format/version  "2"
//	format/id       random UUID
//	format/params   msgpack encoded Params
//	objects/        one file per unique chunk
//	index/          pebble database
package archive

import (
	"bytes"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	ddchunker "github.com/anjor/ddar/internal/chunker"
	"github.com/anjor/ddar/internal/digest"
	"github.com/anjor/ddar/internal/index"
	"github.com/anjor/ddar/internal/util/text"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"
	"github.com/vmihailenco/msgpack/v5"
)

const (
	FormatName    = "ddar"
	FormatVersion = "2"
)

var (
	ErrNotArchive         = errors.New("not a ddar archive")
	ErrUnsupportedVersion = errors.New("unsupported archive format version")
	ErrExists             = errors.New("archive already exists")
	ErrMemberExists       = errors.New("member already exists")
	ErrMemberNotFound     = index.ErrNotFound
	ErrCorrupt            = errors.New("archive is corrupt")
)

// Params are fixed at creation time: changing any of them would break
// deduplication against existing objects.
type Params struct {
	Hash        string `msgpack:"hash"`
	Compression string `msgpack:"compression"`
	Chunker     string `msgpack:"chunker"`
}

func DefaultParams() Params {
	return Params{
		Hash:        digest.DefaultHasher,
		Compression: DefaultCompression,
		Chunker:     ddchunker.DefaultChunker,
	}
}

func (p Params) validate() (ddchunker.Config, error) {
	if _, exists := digest.AvailableHashers[p.Hash]; !exists {
		return ddchunker.Config{}, fmt.Errorf("hash function '%s' is not valid. Available hash names are %s",
			p.Hash,
			text.AvailableMapKeys(digest.AvailableHashers),
		)
	}
	if _, exists := AvailableCompressions[p.Compression]; !exists {
		return ddchunker.Config{}, fmt.Errorf("compression '%s' is not valid. Available compressions are %s",
			p.Compression,
			text.AvailableMapKeys(AvailableCompressions),
		)
	}
	cfg, errs := ddchunker.FromSpec(p.Chunker)
	if len(errs) > 0 {
		return cfg, fmt.Errorf("chunker '%s': %w", p.Chunker, errors.Join(errs...))
	}
	return cfg, nil
}

type Archive struct {
	dir        string
	id         uuid.UUID
	params     Params
	chunkerCfg ddchunker.Config
	index      *index.Index
	objects    objectStore
	logger     *log.Logger
}

func formatFile(dir, name string) string {
	return filepath.Join(dir, "format", name)
}

// Create initializes a new archive in dir, which may exist but must not hold
// an archive already.
func Create(dir string, p Params, logger *log.Logger) (*Archive, error) {
	if _, err := p.validate(); err != nil {
		return nil, err
	}

	if _, err := os.Stat(formatFile(dir, "name")); err == nil {
		return nil, fmt.Errorf("%w: %s", ErrExists, dir)
	} else if !errors.Is(err, fs.ErrNotExist) {
		return nil, err
	}

	for _, d := range []string{"format", "objects", "index"} {
		if err := os.MkdirAll(filepath.Join(dir, d), 0o755); err != nil {
			return nil, err
		}
	}

	encParams, err := msgpack.Marshal(&p)
	if err != nil {
		return nil, err
	}

	// name goes last: its presence marks a complete archive
	for _, f := range []struct {
		name    string
		content []byte
	}{
		{"version", []byte(FormatVersion + "\n")},
		{"id", []byte(uuid.New().String() + "\n")},
		{"params", encParams},
		{"name", []byte(FormatName + "\n")},
	} {
		if err := os.WriteFile(formatFile(dir, f.name), f.content, 0o644); err != nil {
			return nil, err
		}
	}

	logger.Debug("created archive", "dir", dir, "hash", p.Hash, "compression", p.Compression, "chunker", p.Chunker)

	return Open(dir, logger)
}

func Open(dir string, logger *log.Logger) (*Archive, error) {
	name, err := os.ReadFile(formatFile(dir, "name"))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", ErrNotArchive, dir)
	} else if err != nil {
		return nil, err
	}
	if string(bytes.TrimSpace(name)) != FormatName {
		return nil, fmt.Errorf("%w: %s", ErrNotArchive, dir)
	}

	version, err := os.ReadFile(formatFile(dir, "version"))
	if err != nil {
		return nil, err
	}
	if v := string(bytes.TrimSpace(version)); v != FormatVersion {
		return nil, fmt.Errorf("%w: '%s'", ErrUnsupportedVersion, v)
	}

	rawID, err := os.ReadFile(formatFile(dir, "id"))
	if err != nil {
		return nil, err
	}
	id, err := uuid.ParseBytes(bytes.TrimSpace(rawID))
	if err != nil {
		return nil, fmt.Errorf("%w: invalid archive id: %s", ErrCorrupt, err)
	}

	rawParams, err := os.ReadFile(formatFile(dir, "params"))
	if err != nil {
		return nil, err
	}
	var p Params
	if err := msgpack.Unmarshal(rawParams, &p); err != nil {
		return nil, fmt.Errorf("%w: invalid archive parameters: %s", ErrCorrupt, err)
	}
	cfg, err := p.validate()
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrCorrupt, err)
	}

	ix, err := index.Open(filepath.Join(dir, "index"), logger)
	if err != nil {
		return nil, err
	}

	return &Archive{
		dir:        dir,
		id:         id,
		params:     p,
		chunkerCfg: cfg,
		index:      ix,
		objects:    objectStore{dir: filepath.Join(dir, "objects")},
		logger:     logger,
	}, nil
}

// OpenOrCreate opens the archive in dir, creating it with p if there is none.
func OpenOrCreate(dir string, p Params, logger *log.Logger) (*Archive, error) {
	a, err := Open(dir, logger)
	if errors.Is(err, ErrNotArchive) {
		return Create(dir, p, logger)
	}
	return a, err
}

func (a *Archive) Close() error {
	return a.index.Close()
}

func (a *Archive) ID() uuid.UUID { return a.id }

func (a *Archive) Params() Params { return a.params }

// ChunkerConfig is the chunking configuration all members are split with.
// Only its io settings may be altered by callers.
func (a *Archive) ChunkerConfig() ddchunker.Config { return a.chunkerCfg }

func (a *Archive) newCodec() (codec, error) {
	return AvailableCompressions[a.params.Compression]()
}

// NewHasher returns a hasher producing the digests objects are named by.
func (a *Archive) NewHasher() *digest.Hasher {
	h, _ := digest.NewHasher(a.params.Hash) // validated on open
	return h
}
