package ddchunker

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestConfigValidation(t *testing.T) {
	valid := Config{
		WindowSize:      48,
		MinChunkSize:    1 << 14,
		TargetChunkSize: 1 << 16,
		MaxChunkSize:    1 << 18,
	}
	require.NoError(t, valid.Validate())

	tests := []struct {
		name   string
		mutate func(*Config)
		field  string
	}{
		{"zero window", func(c *Config) { c.WindowSize = 0 }, "window_size"},
		{"window over min", func(c *Config) { c.WindowSize = c.MinChunkSize + 1 }, "minimum_chunk_size"},
		{"min equals target", func(c *Config) { c.MinChunkSize = c.TargetChunkSize }, "target_chunk_size"},
		{"min over target", func(c *Config) { c.MinChunkSize = c.TargetChunkSize * 2 }, "target_chunk_size"},
		{"target not power of two", func(c *Config) { c.TargetChunkSize = 3 << 14 }, "target_chunk_size"},
		{"max under target", func(c *Config) { c.MaxChunkSize = c.TargetChunkSize - 1 }, "maximum_chunk_size"},
		{"max over limit", func(c *Config) { c.MaxChunkSize = 1 << 30 }, "maximum_chunk_size"},
		{"unknown io mode", func(c *Config) { c.IOMode = "mmap" }, "io_mode"},
		{"sync with one segment", func(c *Config) { c.IOMode = IOSync; c.Segments = 1 }, "segments"},
		{"async with two segments", func(c *Config) { c.IOMode = IOAsync; c.Segments = 2 }, "segments"},
		{"negative segments", func(c *Config) { c.Segments = -1 }, "segments"},
		{"segment under max", func(c *Config) { c.BufferSize = 3*c.MaxChunkSize - 1 }, "buffer_size"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid
			tt.mutate(&cfg)

			err := cfg.Validate()
			var cfgErr *ConfigError
			require.ErrorAs(t, err, &cfgErr)
			require.Equal(t, tt.field, cfgErr.Field)

			_, err = New(cfg)
			require.ErrorAs(t, err, &cfgErr)
		})
	}
}

func TestConfigDefaults(t *testing.T) {
	cfg := Config{WindowSize: 4, MinChunkSize: 8, TargetChunkSize: 16, MaxChunkSize: 64}.withDefaults()
	require.Equal(t, IOSync, cfg.IOMode)
	require.Equal(t, DefaultSegments, cfg.Segments)
	require.Equal(t, DefaultSegments*DefaultSegmentSize, cfg.BufferSize)
	require.Equal(t, DefaultSegmentSize, cfg.SegmentSize())

	big := Config{WindowSize: 4, MinChunkSize: 8, TargetChunkSize: 16, MaxChunkSize: 8 << 20}
	require.Equal(t, 8<<20, big.SegmentSize())

	// remainder bytes are left unused
	odd := Config{BufferSize: 100, Segments: 3}
	require.Equal(t, 33, odd.SegmentSize())
	require.NoError(t, Config{WindowSize: 1, MinChunkSize: 1, TargetChunkSize: 2, MaxChunkSize: 33, BufferSize: 100, Segments: 3, IOMode: IOAsync}.Validate())
}
