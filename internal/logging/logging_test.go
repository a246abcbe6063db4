package logging

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLevels(t *testing.T) {
	var buf bytes.Buffer
	l, err := New(&buf, "warn")
	require.NoError(t, err)

	l.Info("hidden")
	require.Zero(t, buf.Len())

	l.Warn("shown", "chunks", 3)
	require.Contains(t, buf.String(), "shown")
	require.Contains(t, buf.String(), "chunks=3")
	require.Contains(t, buf.String(), "ddar")

	_, err = New(&buf, "chatty")
	require.Error(t, err)
}
