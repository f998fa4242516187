package ptt

import (
	"bufio"
	"net"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNoneAndVoxAreNoOps(t *testing.T) {
	var n None
	assert.NoError(t, n.SetPTT(true))
	assert.NoError(t, n.Close())

	v := NewVox(1500, 100)
	assert.NoError(t, v.SetPTT(true))
	tone := v.Tone(8000)
	assert.Len(t, tone, 800)
	// ramp-in/out keeps the edges near zero to avoid a click
	assert.Less(t, tone[0], 0.2)
	assert.Less(t, tone[len(tone)-1], 0.2)
}

func TestCM108RejectsBadGPIO(t *testing.T) {
	_, err := NewCM108("/dev/hidraw0", 5)
	assert.Error(t, err)
	_, err = NewCM108("/dev/hidraw0", 0)
	assert.Error(t, err)
}

func TestCM108ReportBytesOnAndOff(t *testing.T) {
	path := filepath.Join(t.TempDir(), "hidraw")
	require.NoError(t, os.WriteFile(path, make([]byte, 5), 0o600))

	c, err := NewCM108(path, 3)
	require.NoError(t, err)

	require.NoError(t, c.SetPTT(true))
	on, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, []byte{0, 0, 0x04, 0x04, 0}, on[:5])

	require.NoError(t, c.SetPTT(false))
	off, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, []byte{0, 0, 0, 0, 0}, off[:5])
}

func TestVoxTailTone(t *testing.T) {
	v := NewVox(1500, 100)
	v.TailMillis = 50
	tail := v.TailTone(8000)
	assert.Len(t, tail, 400)
	assert.Less(t, tail[0], 0.2)
	assert.Less(t, tail[len(tail)-1], 0.2)
}

func TestRigctlSendsExpectedCommands(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	commands := make(chan string, 4)
	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		r := bufio.NewReader(conn)
		for {
			line, err := r.ReadString('\n')
			if err != nil {
				return
			}
			commands <- line
			conn.Write([]byte("RPRT 0\n"))
		}
	}()

	r, err := DialRigctl(ln.Addr().String(), time.Second)
	require.NoError(t, err)
	defer r.Close()

	require.NoError(t, r.SetPTT(true))
	require.NoError(t, r.SetPTT(false))

	assert.Equal(t, "T 1\n", <-commands)
	assert.Equal(t, "T 0\n", <-commands)
}

func TestRigctlRejectsBadReply(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		bufio.NewReader(conn).ReadString('\n')
		conn.Write([]byte("RPRT -1\n"))
	}()

	r, err := DialRigctl(ln.Addr().String(), time.Second)
	require.NoError(t, err)
	defer r.Close()

	assert.Error(t, r.SetPTT(true))
}
