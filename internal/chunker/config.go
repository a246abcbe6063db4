package ddchunker

import (
	"fmt"
	"math/bits"

	"github.com/anjor/ddar/internal/constants"
	"github.com/anjor/ddar/internal/rabin"
)

type IOMode string

const (
	IOSync  = IOMode("sync")
	IOAsync = IOMode("async")
)

const (
	DefaultSegments    = 3
	DefaultSegmentSize = 4 * 1024 * 1024
)

type Config struct {
	WindowSize      int
	MinChunkSize    int
	TargetChunkSize int
	MaxChunkSize    int
	Multiplier      uint32

	IOMode IOMode
	// BufferSize of 0 selects Segments * max(DefaultSegmentSize, MaxChunkSize)
	BufferSize int
	Segments   int
	DropCache  bool
}

func (cfg Config) withDefaults() Config {
	if cfg.Multiplier == 0 {
		cfg.Multiplier = rabin.DefaultMultiplier
	}
	if cfg.IOMode == "" {
		cfg.IOMode = IOSync
	}
	if cfg.Segments == 0 {
		cfg.Segments = DefaultSegments
	}
	if cfg.BufferSize == 0 {
		seg := DefaultSegmentSize
		if cfg.MaxChunkSize > seg {
			seg = cfg.MaxChunkSize
		}
		cfg.BufferSize = seg * cfg.Segments
	}
	return cfg
}

// SegmentSize is the refill unit: the buffer is split in Segments equal parts,
// any remainder is left unused.
func (cfg Config) SegmentSize() int {
	cfg = cfg.withDefaults()
	if cfg.Segments < 1 {
		return 0
	}
	return cfg.BufferSize / cfg.Segments
}

func (cfg Config) Validate() error {
	cfg = cfg.withDefaults()

	switch {
	case cfg.WindowSize < 1:
		return &ConfigError{"window_size", fmt.Sprintf("must be positive, got %d", cfg.WindowSize)}
	case cfg.MinChunkSize < cfg.WindowSize:
		return &ConfigError{"minimum_chunk_size", fmt.Sprintf("%d is smaller than window_size %d", cfg.MinChunkSize, cfg.WindowSize)}
	case cfg.TargetChunkSize <= cfg.MinChunkSize:
		return &ConfigError{"target_chunk_size", fmt.Sprintf("%d must be larger than minimum_chunk_size %d", cfg.TargetChunkSize, cfg.MinChunkSize)}
	case bits.OnesCount(uint(cfg.TargetChunkSize)) != 1:
		return &ConfigError{"target_chunk_size", fmt.Sprintf("%d is not a power of two", cfg.TargetChunkSize)}
	case cfg.MaxChunkSize < cfg.TargetChunkSize:
		return &ConfigError{"maximum_chunk_size", fmt.Sprintf("%d is smaller than target_chunk_size %d", cfg.MaxChunkSize, cfg.TargetChunkSize)}
	case cfg.MaxChunkSize > constants.MaxChunkSizeLimit:
		return &ConfigError{"maximum_chunk_size", fmt.Sprintf("%d exceeds the supported limit of %d", cfg.MaxChunkSize, constants.MaxChunkSizeLimit)}
	}

	switch cfg.IOMode {
	case IOSync:
		if cfg.Segments < 2 {
			return &ConfigError{"segments", fmt.Sprintf("sync io requires at least 2 ring segments, got %d", cfg.Segments)}
		}
	case IOAsync:
		if cfg.Segments < 3 {
			return &ConfigError{"segments", fmt.Sprintf("async io requires at least 3 ring segments, got %d", cfg.Segments)}
		}
	default:
		return &ConfigError{"io_mode", fmt.Sprintf("'%s' is not one of '%s', '%s'", cfg.IOMode, IOSync, IOAsync)}
	}

	if seg := cfg.BufferSize / cfg.Segments; seg < cfg.MaxChunkSize {
		return &ConfigError{"buffer_size", fmt.Sprintf(
			"segment size %d (%d bytes over %d segments) is smaller than maximum_chunk_size %d",
			seg, cfg.BufferSize, cfg.Segments, cfg.MaxChunkSize,
		)}
	}

	return nil
}
