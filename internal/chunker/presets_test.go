package ddchunker

import (
	"testing"

	"github.com/anjor/ddar/internal/rabin"
	"github.com/stretchr/testify/require"
)

func TestPresets(t *testing.T) {
	v1, errs := FromSpec("ddar-v1")
	require.Empty(t, errs)
	require.Equal(t, Config{
		WindowSize:      rabin.DefaultWindow,
		MinChunkSize:    1 << 14,
		TargetChunkSize: 1 << 16,
		MaxChunkSize:    1 << 18,
		Multiplier:      rabin.DefaultMultiplier,
	}, v1)

	v2, errs := FromSpec("ddar-v2")
	require.Empty(t, errs)
	require.Equal(t, 64*v2.TargetChunkSize, v2.MaxChunkSize)
	require.Equal(t, v2.TargetChunkSize/4, v2.MinChunkSize)

	over, errs := FromSpec("ddar-v1_max-size=1048576_window-size=32")
	require.Empty(t, errs)
	require.Equal(t, 1<<20, over.MaxChunkSize)
	require.Equal(t, 32, over.WindowSize)
	require.Equal(t, 1<<16, over.TargetChunkSize)
}

func TestCustomChunker(t *testing.T) {
	cfg, errs := FromSpec("rabin_window-size=4_min-size=8_target-size=16_max-size=64")
	require.Empty(t, errs)
	require.Equal(t, Config{
		WindowSize:      4,
		MinChunkSize:    8,
		TargetChunkSize: 16,
		MaxChunkSize:    64,
		Multiplier:      rabin.DefaultMultiplier,
	}, cfg)

	_, errs = FromSpec("rabin_window-size=4_min-size=8")
	require.Len(t, errs, 2)

	_, errs = FromSpec("rabin_window-size=4_min-size=8_target-size=24_max-size=64")
	require.Len(t, errs, 1)
	var cfgErr *ConfigError
	require.ErrorAs(t, errs[0], &cfgErr)
	require.Equal(t, "target_chunk_size", cfgErr.Field)
}

func TestSpecErrors(t *testing.T) {
	_, errs := FromSpec("")
	require.NotEmpty(t, errs)

	_, errs = FromSpec("fastcdc")
	require.Len(t, errs, 1)
	require.Contains(t, errs[0].Error(), "'ddar-v1', 'ddar-v2', 'rabin'")

	_, errs = FromSpec("ddar-v1_no-such-option=1")
	require.NotEmpty(t, errs)

	_, errs = FromSpec("ddar-v1_multiplier=0")
	require.NotEmpty(t, errs)
}

func TestTuningRanges(t *testing.T) {
	for _, tc := range []struct {
		spec   string
		errMsg string
	}{
		{"ddar-v1_multiplier=4294967297", "out of range [1:4294967295]"},
		{"ddar-v1_multiplier=-1", "out of range [1:4294967295]"},
		{"ddar-v1_window-size=0", "out of range [1:67108864]"},
		{"ddar-v2_max-size=134217728", "out of range [2:67108864]"},
		{"rabin_window-size=4_min-size=8_target-size=1_max-size=64", "out of range [2:67108864]"},
	} {
		t.Run(tc.spec, func(t *testing.T) {
			_, errs := FromSpec(tc.spec)
			require.Len(t, errs, 1)
			require.Contains(t, errs[0].Error(), tc.errMsg)
		})
	}

	cfg, errs := FromSpec("ddar-v1_multiplier=4294967295")
	require.Empty(t, errs)
	require.Equal(t, uint32(4294967295), cfg.Multiplier)
}

func TestHelpText(t *testing.T) {
	for name, init := range AvailableChunkers {
		_, help := init(nil)
		require.NotEmpty(t, help, name)
	}
}
