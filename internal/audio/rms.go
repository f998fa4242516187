package audio

import "math"

// floorDb is reported for a meter that hasn't yet seen any signal, so a
// freshly-started receiver reads as quiet rather than busy.
const floorDb = -120.0

// RMSMeter tracks the RMS level of the last len(window) samples fed to it
// via Add, reporting it in dBFS for CSMA carrier-level sensing (spec's
// "sample channel RMS level in dB over carrier_sense_ms").
type RMSMeter struct {
	window []float64
	pos    int
	filled bool
	sumSq  float64
}

// NewRMSMeter builds a meter over a rolling window of windowSamples samples.
func NewRMSMeter(windowSamples int) *RMSMeter {
	if windowSamples < 1 {
		windowSamples = 1
	}
	return &RMSMeter{window: make([]float64, windowSamples)}
}

// Add folds one new PCM sample into the rolling window.
func (m *RMSMeter) Add(x float64) {
	old := m.window[m.pos]
	m.sumSq += x*x - old*old
	m.window[m.pos] = x
	m.pos++
	if m.pos == len(m.window) {
		m.pos = 0
		m.filled = true
	}
}

// AddBlock folds a whole block of samples into the window.
func (m *RMSMeter) AddBlock(samples []float64) {
	for _, x := range samples {
		m.Add(x)
	}
}

// LevelDb returns the window's current RMS level in dBFS.
func (m *RMSMeter) LevelDb() float64 {
	n := len(m.window)
	if !m.filled {
		n = m.pos
	}
	if n == 0 {
		return floorDb
	}
	mean := m.sumSq / float64(n)
	if mean <= 0 {
		return floorDb
	}
	db := 10 * math.Log10(mean)
	if db < floorDb {
		return floorDb
	}
	return db
}
