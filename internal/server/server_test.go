package server

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/n7dwj/ofdmtnc/internal/kiss"
)

func dial(t *testing.T, ln net.Listener) net.Conn {
	t.Helper()
	conn, err := net.Dial("tcp", ln.Addr().String())
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func TestServerDispatchesDataAndCommandFrames(t *testing.T) {
	ln, err := Listen("127.0.0.1", 0)
	require.NoError(t, err)
	defer ln.Close()

	dataCh := make(chan []byte, 1)
	cmdCh := make(chan kiss.Command, 1)
	srv := New(ln, func(port byte, payload []byte) {
		dataCh <- payload
	}, func(cmd kiss.Command, data []byte) {
		cmdCh <- cmd
	}, nil)

	go srv.Run(context.Background())

	conn := dial(t, ln)
	_, err = conn.Write(kiss.Encode(0, []byte("hello")))
	require.NoError(t, err)

	select {
	case payload := <-dataCh:
		assert.Equal(t, []byte("hello"), payload)
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for data frame")
	}

	_, err = conn.Write(kiss.EncodeCommand(0, kiss.CmdTXDelay, []byte{50}))
	require.NoError(t, err)

	select {
	case cmd := <-cmdCh:
		assert.Equal(t, kiss.CmdTXDelay, cmd)
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for command frame")
	}
}

func TestServerBroadcastReachesConnectedClients(t *testing.T) {
	ln, err := Listen("127.0.0.1", 0)
	require.NoError(t, err)
	defer ln.Close()

	srv := New(ln, nil, nil, nil)
	go srv.Run(context.Background())

	conn := dial(t, ln)

	require.Eventually(t, func() bool { return srv.ClientCount() == 1 }, time.Second, 5*time.Millisecond)

	srv.Broadcast([]byte("world"))

	buf := make([]byte, 64)
	conn.SetReadDeadline(time.Now().Add(time.Second))
	n, err := conn.Read(buf)
	require.NoError(t, err)

	dec := kiss.NewDecoder()
	frames, err := dec.Feed(buf[:n])
	require.NoError(t, err)
	require.Len(t, frames, 1)
	assert.Equal(t, []byte("world"), frames[0].Payload)
}
