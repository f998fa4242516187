package tnc

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/n7dwj/ofdmtnc/internal/audio"
	"github.com/n7dwj/ofdmtnc/internal/config"
	"github.com/n7dwj/ofdmtnc/internal/modem"
	"github.com/n7dwj/ofdmtnc/internal/ptt"
	"github.com/n7dwj/ofdmtnc/internal/txqueue"
)

func newTestCore(t *testing.T, backend ptt.Backend) (*Core, *audio.Loopback) {
	t.Helper()
	snap := config.Default()
	snap.FragMaxChunk = 10
	lb := audio.NewLoopback()
	c := New(config.NewStore(snap), lb, lb, backend, nil)
	return c, lb
}

func TestQueueDataDoesNotFragmentSmallPayload(t *testing.T) {
	c, _ := newTestCore(t, ptt.None{})
	c.QueueData([]byte("short"))
	assert.Equal(t, 1, c.queue.Len())
}

func TestQueueDataFragmentsLargePayload(t *testing.T) {
	c, _ := newTestCore(t, ptt.None{})
	big := make([]byte, 100)
	for i := range big {
		big[i] = byte(i)
	}
	c.QueueData(big)
	assert.Greater(t, c.queue.Len(), 1)
}

func TestUpdateConfigRejectsUnresolvableMode(t *testing.T) {
	c, _ := newTestCore(t, ptt.None{})
	next := config.Default()
	next.Mode = modem.OperMode(0x80) // analog bit set: never resolvable
	assert.Error(t, c.UpdateConfig(next))
}

func TestUpdateConfigAcceptsValidMode(t *testing.T) {
	c, _ := newTestCore(t, ptt.None{})
	next := config.Default()
	next.CallSign = "N7DWJ"
	require.NoError(t, c.UpdateConfig(next))
	assert.Equal(t, "N7DWJ", c.cfg.Load().CallSign)
}

func TestTransmitWritesSamplesToAudioOut(t *testing.T) {
	c, lb := newTestCore(t, ptt.None{})
	snap := c.cfg.Load()
	snap.MAC.PTTDelayMs = 1
	snap.MAC.TxDelayMs = 1
	snap.MAC.PTTTailMs = 1
	c.cfg.Update(func(config.Snapshot) config.Snapshot { return snap })

	c.transmit(txqueue.Item{Payload: []byte("hi"), Mode: byte(c.cfg.Load().Mode)})

	buf := make([]float64, 1<<20)
	n, err := lb.ReadInto(buf)
	require.NoError(t, err)
	assert.Greater(t, n, 0)
}

func TestTransmitWithVoxWritesLeadAndTailTones(t *testing.T) {
	v := ptt.NewVox(1500, 5)
	v.TailMillis = 5
	c, lb := newTestCore(t, v)
	snap := c.cfg.Load()
	snap.MAC.PTTDelayMs = 1
	c.cfg.Update(func(config.Snapshot) config.Snapshot { return snap })

	c.transmit(txqueue.Item{Payload: []byte("hi"), Mode: byte(c.cfg.Load().Mode)})

	buf := make([]float64, 1<<20)
	n, err := lb.ReadInto(buf)
	require.NoError(t, err)
	assert.Greater(t, n, 0)
}

func TestAudioHealthyStaysTrueAcrossWriteAndReconnect(t *testing.T) {
	c, _ := newTestCore(t, ptt.None{})
	assert.True(t, c.AudioHealthy())

	c.writeChunked([]float64{1, 2, 3})
	assert.True(t, c.AudioHealthy(), "a healthy loopback write must not degrade health")

	require.NoError(t, c.ReconnectAudio(audio.NewLoopback(), audio.NewLoopback()))
	assert.True(t, c.AudioHealthy())
}

func TestClientCountIsZeroBeforeKissServerAttached(t *testing.T) {
	c, _ := newTestCore(t, ptt.None{})
	assert.Equal(t, 0, c.ClientCount())
}
