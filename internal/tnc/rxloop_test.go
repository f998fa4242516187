package tnc

import (
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/n7dwj/ofdmtnc/internal/frag"
	"github.com/n7dwj/ofdmtnc/internal/mac"
	"github.com/n7dwj/ofdmtnc/internal/modem"
)

type fakeBroadcaster struct {
	payloads [][]byte
}

func (f *fakeBroadcaster) Broadcast(payload []byte) {
	f.payloads = append(f.payloads, append([]byte{}, payload...))
}

func lengthPrefixed(payload []byte) []byte {
	out := make([]byte, 2+len(payload))
	binary.BigEndian.PutUint16(out, uint16(len(payload)))
	copy(out[2:], payload)
	return out
}

func TestRxLoopBroadcastsWholePayload(t *testing.T) {
	bc := &fakeBroadcaster{}
	r := NewRxLoop(nil, modem.NewOfdmDecoder(0), mac.NewTxLockout(), frag.NewReassembler(), bc, func() bool { return false }, nil)

	r.onDecoded(modem.DecodedPacket{Payload: lengthPrefixed([]byte("hello"))})

	require.Len(t, bc.payloads, 1)
	assert.Equal(t, []byte("hello"), bc.payloads[0])

	framesRX, rxErrors, _ := r.Counters()
	assert.Equal(t, uint64(1), framesRX)
	assert.Equal(t, uint64(0), rxErrors)
}

func TestRxLoopDropsEmptyPayload(t *testing.T) {
	bc := &fakeBroadcaster{}
	r := NewRxLoop(nil, modem.NewOfdmDecoder(0), mac.NewTxLockout(), frag.NewReassembler(), bc, func() bool { return false }, nil)

	r.onDecoded(modem.DecodedPacket{Payload: lengthPrefixed(nil)})

	assert.Empty(t, bc.payloads)
	_, rxErrors, _ := r.Counters()
	assert.Equal(t, uint64(1), rxErrors)
}

func TestRxLoopReassemblesFragmentsBeforeBroadcasting(t *testing.T) {
	bc := &fakeBroadcaster{}
	r := NewRxLoop(nil, modem.NewOfdmDecoder(0), mac.NewTxLockout(), frag.NewReassembler(), bc, func() bool { return true }, nil)

	whole := []byte("a payload too big for one burst")
	frags := frag.Split(whole, 42, 10)
	require.Greater(t, len(frags), 1)

	for i, f := range frags {
		r.onDecoded(modem.DecodedPacket{Payload: lengthPrefixed(frag.Encode(f))})
		if i < len(frags)-1 {
			assert.Empty(t, bc.payloads, "must not broadcast until the last fragment arrives")
		}
	}

	require.Len(t, bc.payloads, 1)
	assert.Equal(t, whole, bc.payloads[0])
}

func TestRxLoopDropsUndecodableFragment(t *testing.T) {
	bc := &fakeBroadcaster{}
	r := NewRxLoop(nil, modem.NewOfdmDecoder(0), mac.NewTxLockout(), frag.NewReassembler(), bc, func() bool { return true }, nil)

	bad := []byte{0xF3} // shorter than frag's 5-byte header: Decode must error
	r.onDecoded(modem.DecodedPacket{Payload: lengthPrefixed(bad)})

	assert.Empty(t, bc.payloads)
	_, _, fragDropped := r.Counters()
	assert.Equal(t, uint64(1), fragDropped)
}
