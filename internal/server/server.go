// Package server implements the KISS-over-TCP front end: a listener that
// accepts any number of concurrent client applications, decodes each
// connection's byte stream with its own internal/kiss.Decoder, and
// broadcasts received frames to every connected client. Grounded on the
// reference TNC's kissnet.go, but goroutine-and-channel driven per
// connection rather than a shared non-blocking poll loop — the same
// cooperative-cancellation substitution internal/mac makes for the
// reference's polled "running" flag (ctx.Done() checked at each loop's
// natural yield point, here a conn.Read instead of a timer tick).
package server

import (
	"context"
	"fmt"
	"net"
	"sync"

	"github.com/charmbracelet/log"

	"github.com/n7dwj/ofdmtnc/internal/kiss"
)

// DataHandler is called once per decoded KISS DATA frame.
type DataHandler func(port byte, payload []byte)

// CommandHandler is called once per decoded KISS parameter frame
// (TXDELAY/P/SLOTTIME/TXTAIL/FULLDUPLEX/SETHW/RETURN).
type CommandHandler func(cmd kiss.Command, data []byte)

// ClientConnection is one accepted TCP socket: its own KISS decoder state
// and a write queue that serializes outgoing frames without blocking
// whoever is broadcasting to it.
type ClientConnection struct {
	conn    net.Conn
	decoder *kiss.Decoder
	writeCh chan []byte
}

func newClientConnection(conn net.Conn) *ClientConnection {
	return &ClientConnection{
		conn:    conn,
		decoder: kiss.NewDecoder(),
		writeCh: make(chan []byte, 64),
	}
}

// Enqueue schedules a wire-ready frame for this client, dropping it
// silently if the client's write queue is saturated (a slow or wedged
// client must never block the broadcast to every other client).
func (c *ClientConnection) Enqueue(frame []byte) {
	select {
	case c.writeCh <- frame:
	default:
	}
}

func (c *ClientConnection) writeLoop() {
	for frame := range c.writeCh {
		if _, err := c.conn.Write(frame); err != nil {
			c.conn.Close()
			return
		}
	}
}

// KissServer accepts KISS TCP clients on one bound port, decodes each
// connection's frames, routes DATA frames to onData and parameter frames
// to onCommand, and broadcasts received radio frames to every connected
// client.
type KissServer struct {
	listener net.Listener
	onData   DataHandler
	onCmd    CommandHandler
	logger   *log.Logger

	mu      sync.Mutex
	clients map[*ClientConnection]struct{}
}

// Listen pre-flights the bind address/port, returning an error the
// composition root can treat as a fatal startup failure (spec's exit
// code 1 case: "port in use and not overridden").
func Listen(bindAddr string, port int) (net.Listener, error) {
	addr := net.JoinHostPort(bindAddr, fmt.Sprintf("%d", port))
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("server: listen %s: %w", addr, err)
	}
	return ln, nil
}

// New wraps an already-bound listener (see Listen) with the KISS
// accept/broadcast machinery.
func New(ln net.Listener, onData DataHandler, onCmd CommandHandler, logger *log.Logger) *KissServer {
	return &KissServer{
		listener: ln,
		onData:   onData,
		onCmd:    onCmd,
		logger:   logger,
		clients:  make(map[*ClientConnection]struct{}),
	}
}

// Run accepts clients until ctx is canceled, at which point it closes the
// listener (unblocking Accept) and every client connection.
func (s *KissServer) Run(ctx context.Context) {
	go func() {
		<-ctx.Done()
		s.listener.Close()
		s.mu.Lock()
		for c := range s.clients {
			c.conn.Close()
		}
		s.mu.Unlock()
	}()

	for {
		conn, err := s.listener.Accept()
		if err != nil {
			select {
			case <-ctx.Done():
				return
			default:
			}
			if s.logger != nil {
				s.logger.Warn("accept failed", "err", err)
			}
			continue
		}
		if tcpConn, ok := conn.(*net.TCPConn); ok {
			tcpConn.SetNoDelay(true)
		}
		s.handleAccept(conn)
	}
}

func (s *KissServer) handleAccept(conn net.Conn) {
	c := newClientConnection(conn)
	s.mu.Lock()
	s.clients[c] = struct{}{}
	s.mu.Unlock()

	if s.logger != nil {
		s.logger.Info("kiss client connected", "remote", conn.RemoteAddr())
	}

	go c.writeLoop()
	go s.readLoop(c)
}

func (s *KissServer) readLoop(c *ClientConnection) {
	defer func() {
		s.mu.Lock()
		delete(s.clients, c)
		s.mu.Unlock()
		close(c.writeCh)
		c.conn.Close()
		if s.logger != nil {
			s.logger.Info("kiss client disconnected", "remote", c.conn.RemoteAddr())
		}
	}()

	buf := make([]byte, 4096)
	for {
		n, err := c.conn.Read(buf)
		if n > 0 {
			frames, decErr := c.decoder.Feed(buf[:n])
			if decErr != nil && s.logger != nil {
				s.logger.Debug("kiss frame error", "err", decErr, "remote", c.conn.RemoteAddr())
			}
			for _, f := range frames {
				s.dispatch(f)
			}
		}
		if err != nil {
			return
		}
	}
}

func (s *KissServer) dispatch(f kiss.Frame) {
	if f.Command == kiss.CmdDataFrame {
		if s.onData != nil {
			s.onData(f.Port, f.Payload)
		}
		return
	}
	if s.onCmd != nil {
		s.onCmd(f.Command, f.Payload)
	}
}

// Broadcast wraps payload as a port-0 KISS DATA frame and enqueues it to
// every connected client.
func (s *KissServer) Broadcast(payload []byte) {
	wire := kiss.Encode(0, payload)
	s.mu.Lock()
	defer s.mu.Unlock()
	for c := range s.clients {
		c.Enqueue(wire)
	}
}

// ClientCount reports how many KISS clients are currently connected.
func (s *KissServer) ClientCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.clients)
}
