package rabin

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/require"
)

func naiveSum(a uint32, p []byte) uint32 {
	var s uint32
	for _, b := range p {
		s = s*a + uint32(b)
	}
	return s
}

func TestSumMatchesHorner(t *testing.T) {
	h := New(DefaultMultiplier, DefaultWindow)
	rng := rand.New(rand.NewSource(1))
	buf := make([]byte, DefaultWindow)

	for i := 0; i < 100; i++ {
		rng.Read(buf)
		require.Equal(t, naiveSum(DefaultMultiplier, buf), h.Sum(buf))
	}
}

func TestSumSplitEquivalence(t *testing.T) {
	h := New(DefaultMultiplier, DefaultWindow)
	rng := rand.New(rand.NewSource(2))
	buf := make([]byte, DefaultWindow)
	rng.Read(buf)

	want := h.Sum(buf)
	for cut := 0; cut <= len(buf); cut++ {
		require.Equal(t, want, h.SumSplit(buf[:cut], buf[cut:]), "split at %d", cut)
	}

	require.Panics(t, func() { h.SumSplit(buf[:3], buf[4:]) })
}

func TestSlideEquivalence(t *testing.T) {
	for _, k := range []int{1, 4, 16, DefaultWindow} {
		h := New(DefaultMultiplier, k)
		rng := rand.New(rand.NewSource(int64(k)))
		data := make([]byte, 4096)
		rng.Read(data)

		s := h.Sum(data[:k])
		for i := k; i < len(data); i++ {
			s = h.Slide(s, data[i-k], data[i])
			require.Equal(t, h.Sum(data[i-k+1:i+1]), s, "window %d at %d", k, i)
		}
	}
}

func TestPowTable(t *testing.T) {
	h := New(3, 5)
	require.Equal(t, []uint32{1, 3, 9, 27, 81}, h.pow)
	require.Equal(t, 5, h.Window())
	require.EqualValues(t, 3, h.Multiplier())

	require.Panics(t, func() { New(3, 0) })
}

func TestZeroWindowHashesToZero(t *testing.T) {
	h := New(DefaultMultiplier, 4)
	require.Zero(t, h.Sum(make([]byte, 4)))
	require.Zero(t, h.Slide(0, 0, 0))
}
