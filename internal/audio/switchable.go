package audio

import "sync"

// Switchable is a Device whose underlying hardware can be swapped out
// while callers hold a reference to it — the indirection
// reconnect_audio() needs (spec.md §7: "the core keeps running with a
// degraded PTT... and exposes reconnect_audio() for the UI to trigger
// recovery"). RxLoop and the TX path both hold one Switchable rather than
// a concrete Device, so a hot-plug event can replace the live stream
// underneath them without restarting either goroutine.
type Switchable struct {
	mu  sync.RWMutex
	dev Device
}

func NewSwitchable(initial Device) *Switchable {
	return &Switchable{dev: initial}
}

func (s *Switchable) ReadInto(buf []float64) (int, error) {
	s.mu.RLock()
	dev := s.dev
	s.mu.RUnlock()
	return dev.ReadInto(buf)
}

func (s *Switchable) Write(buf []float64) error {
	s.mu.RLock()
	dev := s.dev
	s.mu.RUnlock()
	return dev.Write(buf)
}

func (s *Switchable) Close() error {
	s.mu.RLock()
	dev := s.dev
	s.mu.RUnlock()
	return dev.Close()
}

// Swap replaces the underlying device, closing the previous one.
func (s *Switchable) Swap(next Device) error {
	s.mu.Lock()
	prev := s.dev
	s.dev = next
	s.mu.Unlock()
	if prev != nil {
		return prev.Close()
	}
	return nil
}
