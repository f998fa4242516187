package modem

import "github.com/n7dwj/ofdmtnc/internal/dspkit"

const (
	SymbolLenAt48k = 6400 // sample_rate / 7.5 at the default 48kHz rate
	ToneCount      = 320
	DataTones      = 256
	SeedTones      = 64
	BlockLength    = 5
	blockSkew      = 3
	firstSeed      = 4

	preamblePoly = 0x331
	preambleSeed = 214
	pilotPoly    = 0x43
	scramblePoly = 0x163
)

var pilotHadamard = dspkit.NewHadamard(6) // 64 rows of length 64 -> 128 biorthogonal seeds

// SeedOffset returns the pilot tone's position (0..BlockLength-1) within
// each 5-tone block for OFDM symbol index j, per spec.md: (3*j+4) mod 5.
func SeedOffset(symbolIndex int) int {
	return (blockSkew*symbolIndex + firstSeed) % BlockLength
}

// IsPilotTone reports whether the given 0-based tone index within the
// 320-tone layout carries a pilot for the given symbol index.
func IsPilotTone(toneIndex, symbolIndex int) bool {
	return toneIndex%BlockLength == SeedOffset(symbolIndex)
}

// PilotCode returns the length-64 +-1 pilot codeword for seed in [0,128).
func PilotCode(seed int) []int8 {
	if seed < pilotHadamard.N() {
		return pilotHadamard.Encode(seed)
	}
	row := pilotHadamard.Encode(seed - pilotHadamard.N())
	out := make([]int8, len(row))
	for i, v := range row {
		out[i] = -v
	}
	return out
}

// DecodePilotSeed recovers the pilot seed value and a correlation-based
// confidence score from a vector of soft pilot-tone observations.
func DecodePilotSeed(soft []float64) (seed int, correlation float64) {
	idx, sign, corr := pilotHadamard.DecodeSigned(soft)
	if sign < 0 {
		idx += pilotHadamard.N()
	}
	return idx, corr
}

// pilotMLSValues returns the known BPSK (+-1) pilot-stream values (before
// the per-symbol Hadamard seed scaling) for the SeedTones pilot positions,
// generated fresh from the pilot MLS polynomial so encoder and decoder
// agree without needing to share state.
func pilotMLSValues() []float64 {
	m := dspkit.NewMLS(pilotPoly, 1)
	out := make([]float64, SeedTones)
	for i := range out {
		if m.Next() == 0 {
			out[i] = 1
		} else {
			out[i] = -1
		}
	}
	return out
}

// scrambleSeedMask applies the MLS-0x163 seed scramble to non-pilot tones
// when seedValue != 0, matching the "Preamble seed scramble" behavior
// described in spec.md §4.2: symmetric, so the decoder calls this with the
// same seedValue to reverse it.
func scrambleSeedMask(seedValue int, n int) []int {
	if seedValue == 0 {
		out := make([]int, n)
		return out
	}
	m := dspkit.NewMLS(scramblePoly, uint64(seedValue))
	return m.Sequence(n)
}
