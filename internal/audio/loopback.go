package audio

import "sync"

// Loopback is an in-memory Device: whatever is Written becomes readable
// back out via ReadInto. It needs no real sound hardware, so it's what
// the rest of the TNC's tests (and bench/dev runs with --audio-loopback)
// use in place of PortAudioDevice.
type Loopback struct {
	mu  sync.Mutex
	buf []float64
}

func NewLoopback() *Loopback { return &Loopback{} }

func (l *Loopback) Write(buf []float64) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.buf = append(l.buf, buf...)
	return nil
}

func (l *Loopback) ReadInto(buf []float64) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	n := copy(buf, l.buf)
	l.buf = l.buf[n:]
	return n, nil
}

func (l *Loopback) Close() error { return nil }
