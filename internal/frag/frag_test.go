package frag

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSplitEncodeDecodeReassemble(t *testing.T) {
	payload := make([]byte, 250)
	for i := range payload {
		payload[i] = byte(i)
	}
	frags := Split(payload, 7, 64)
	require.Len(t, frags, 4)
	assert.True(t, frags[0].First)
	assert.True(t, frags[len(frags)-1].Last)

	r := NewReassembler()
	var out []byte
	var done bool
	for _, f := range frags {
		wire := Encode(f)
		got, err := Decode(wire)
		require.NoError(t, err)
		out, done = r.Add(got)
	}
	assert.True(t, done)
	assert.Equal(t, payload, out)
	assert.Equal(t, 0, r.Pending())
}

func TestReassemblerOutOfOrder(t *testing.T) {
	payload := []byte("hello world, this is fragmented")
	frags := Split(payload, 1, 8)
	r := NewReassembler()
	for i := len(frags) - 1; i >= 0; i-- {
		out, done := r.Add(frags[i])
		if i == 0 {
			require.True(t, done)
			assert.Equal(t, payload, out)
		} else {
			assert.False(t, done)
		}
	}
}

func TestReassemblerExpiresStalePackets(t *testing.T) {
	r := NewReassembler()
	now := time.Now()
	r.now = func() time.Time { return now }

	frags := Split([]byte("abcdefgh"), 2, 4)
	r.Add(frags[0])
	assert.Equal(t, 1, r.Pending())

	now = now.Add(ReassemblyTimeout + time.Second)
	_, done := r.Add(frags[0])
	assert.False(t, done)
	// re-adding the first fragment after expiry restarts tracking, so
	// pending count stays at 1 rather than accumulating stale entries.
	assert.Equal(t, 1, r.Pending())
}

func TestReassemblerEvictsOldestWhenFull(t *testing.T) {
	r := NewReassembler()
	for i := 0; i < MaxPending+5; i++ {
		r.Add(Fragment{PacketID: uint16(i), Seq: 0, First: true, Data: []byte{1}})
	}
	assert.Equal(t, MaxPending, r.Pending())
}

func TestDecodeRejectsBadMagic(t *testing.T) {
	_, err := Decode([]byte{0, 0, 0, 0, 0})
	assert.ErrorIs(t, err, ErrBadHeader)
}
