package dspkit

import "math"

// Hilbert is a FIR Hilbert transformer: it turns a stream of real samples
// into an analytic (complex baseband) stream, one sample in, one sample
// out, with a fixed group delay of taps/2 samples applied to the real
// (in-phase) arm to keep it aligned with the filtered quadrature arm.
type Hilbert struct {
	coef  []float64
	ring  []float64
	delay []float64
	pos   int
}

// NewHilbert builds an odd-length (taps|1) windowed Hilbert FIR. Odd taps
// around the ideal 2/(pi*n) (n odd), Hamming-windowed, zero for even n.
func NewHilbert(taps int) *Hilbert {
	if taps%2 == 0 {
		taps++
	}
	h := &Hilbert{
		coef:  make([]float64, taps),
		ring:  make([]float64, taps),
		delay: make([]float64, taps/2+1),
	}
	mid := taps / 2
	for i := 0; i < taps; i++ {
		n := i - mid
		if n == 0 || n%2 == 0 {
			continue
		}
		ideal := 2.0 / (math.Pi * float64(n))
		w := 0.54 - 0.46*math.Cos(2*math.Pi*float64(i)/float64(taps-1))
		h.coef[i] = ideal * w
	}
	return h
}

// Process feeds one real sample and returns the analytic-signal sample
// (Re = delayed input, Im = Hilbert-filtered quadrature).
func (h *Hilbert) Process(x float64) Complex {
	n := len(h.coef)
	h.ring[h.pos] = x
	var im float64
	idx := h.pos
	for i := 0; i < n; i++ {
		im += h.coef[i] * h.ring[idx]
		idx--
		if idx < 0 {
			idx = n - 1
		}
	}
	h.pos = (h.pos + 1) % n

	dn := len(h.delay)
	copy(h.delay, h.delay[1:])
	h.delay[dn-1] = x
	re := h.delay[0]
	return Complex{Re: re, Im: im}
}

// DCBlocker is a one-pole DC removal filter, y[n] = x[n] - x[n-1] + a*y[n-1].
type DCBlocker struct {
	a     float64
	prevX float64
	prevY float64
}

func NewDCBlocker(a float64) *DCBlocker { return &DCBlocker{a: a} }

func (d *DCBlocker) Process(x float64) float64 {
	y := x - d.prevX + d.a*d.prevY
	d.prevX = x
	d.prevY = y
	return y
}
