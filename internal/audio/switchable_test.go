package audio

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSwitchableRoutesToCurrentDevice(t *testing.T) {
	first := NewLoopback()
	s := NewSwitchable(first)

	require.NoError(t, s.Write([]float64{1, 2, 3}))
	buf := make([]float64, 3)
	n, err := s.ReadInto(buf)
	require.NoError(t, err)
	assert.Equal(t, 3, n)
	assert.Equal(t, []float64{1, 2, 3}, buf)
}

func TestSwitchableSwapClosesPreviousAndRoutesToNext(t *testing.T) {
	first := NewLoopback()
	s := NewSwitchable(first)

	second := NewLoopback()
	require.NoError(t, s.Swap(second))

	require.NoError(t, s.Write([]float64{9}))
	buf := make([]float64, 1)
	n, err := first.ReadInto(buf)
	require.NoError(t, err)
	assert.Equal(t, 0, n, "writes after swap must not reach the previous device")

	n, err = s.ReadInto(buf)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, float64(9), buf[0])
}
