package kiss

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeDecodeRoundTrip(t *testing.T) {
	payload := []byte{0x00, FEND, 0x01, FESC, 0x02}
	wire := Encode(3, payload)

	d := NewDecoder()
	frames, err := d.Feed(wire)
	require.NoError(t, err)
	require.Len(t, frames, 1)
	assert.Equal(t, byte(3), frames[0].Port)
	assert.Equal(t, CmdDataFrame, frames[0].Command)
	assert.Equal(t, payload, frames[0].Payload)
}

func TestDecoderHandlesSplitWrites(t *testing.T) {
	wire := Encode(0, []byte{1, 2, 3})
	d := NewDecoder()
	var frames []Frame
	for _, b := range wire {
		f, err := d.Feed([]byte{b})
		require.NoError(t, err)
		frames = append(frames, f...)
	}
	require.Len(t, frames, 1)
	assert.Equal(t, []byte{1, 2, 3}, frames[0].Payload)
}

func TestDecoderRecoversFromOverlongFrame(t *testing.T) {
	d := NewDecoder()
	junk := make([]byte, MaxFrameLen+10)
	for i := range junk {
		junk[i] = 0x41
	}
	wire := append([]byte{FEND}, junk...)
	wire = append(wire, FEND)
	wire = append(wire, Encode(0, []byte{9})...)

	frames, err := d.Feed(wire)
	require.ErrorIs(t, err, ErrFrameTooLong)
	require.Len(t, frames, 1)
	assert.Equal(t, []byte{9}, frames[0].Payload)
}
