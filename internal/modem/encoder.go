package modem

import (
	"fmt"
	"math"

	"github.com/n7dwj/ofdmtnc/internal/dspkit"
)

const (
	SampleRate = 48000
	GuardLen   = SampleRate / 300 // 160 samples
	SymbolLen  = GuardLen * 40    // 6400 samples, matches SymbolLenAt48k
	binHz      = float64(SampleRate) / float64(SymbolLen)
)

// OfdmEncoder turns a (callsign, oper_mode, payload) triple into a burst of
// PCM samples: a silent noise-guard lead-in, two identical Schmidl-Cox
// preamble symbols, one meta symbol carrying the callsign and mode, and
// symbol_count data symbols carrying the polar-coded, scrambled payload —
// each symbol frequency-shifted to freq_off_hz and guard-interval
// overlap-added into its neighbors.
type OfdmEncoder struct{}

func NewOfdmEncoder() *OfdmEncoder { return &OfdmEncoder{} }

// PayloadSize reports the maximum payload (data_bytes) the given mode can
// carry in one burst.
func (e *OfdmEncoder) PayloadSize(mode OperMode) (int, error) {
	return PayloadSize(mode)
}

// Encode builds the full burst PCM for one packet. freqOffHz is the center
// frequency offset of the tone grid within the audio passband.
func (e *OfdmEncoder) Encode(payload []byte, freqOffHz float64, callSign string, mode OperMode) ([]float64, error) {
	params, err := Resolve(mode)
	if err != nil {
		return nil, err
	}
	if len(payload) > params.DataBytes {
		return nil, fmt.Errorf("modem: payload of %d bytes exceeds %d byte capacity for mode: %w", len(payload), params.DataBytes, ErrInvalidMode)
	}
	callsignVal, err := EncodeCallsign(callSign)
	if err != nil {
		return nil, err
	}

	symbols := make([][]float64, 0, 3+params.SymbolCount)

	noiseGuard := make([]float64, SymbolLen)
	symbols = append(symbols, noiseGuard)

	preamble := e.buildPreambleSymbol(freqOffHz)
	symbols = append(symbols, preamble, preamble)

	metaBits := EncodeMetaBits(callsignVal, mode)
	metaSpectrum, metaSeed := e.buildPilotedSymbol(metaBits, 1, 0, freqOffHz)
	_ = metaSeed
	symbols = append(symbols, metaSpectrum)

	codeword := EncodeDataCodeword(payload, params)
	bitPos := 0
	for j := 0; j < params.SymbolCount; j++ {
		symbolIndex := j + 1 // meta occupies pilot-symbol-index 0
		need := dataBitCapacity(params.ModBits, symbolIndex)
		chunk := make([]byte, need)
		for i := 0; i < need; i++ {
			if bitPos < len(codeword) {
				chunk[i] = codeword[bitPos]
				bitPos++
			}
		}
		sym, _ := e.buildPilotedSymbol(chunk, params.ModBits, symbolIndex, freqOffHz)
		symbols = append(symbols, sym)
	}

	return overlapAdd(symbols), nil
}

// buildPreambleSymbol fills all ToneCount tones with BPSK from the known
// preamble MLS sequence (no pilot search: its content must be fully known
// to the decoder ahead of any synchronization).
func (e *OfdmEncoder) buildPreambleSymbol(freqOffHz float64) []float64 {
	mls := dspkit.NewMLS(preamblePoly, preambleSeed)
	spectrum := make([]dspkit.Complex, ToneCount)
	for k := 0; k < ToneCount; k++ {
		if mls.Next() == 0 {
			spectrum[k] = dspkit.Complex{Re: 1}
		} else {
			spectrum[k] = dspkit.Complex{Re: -1}
		}
	}
	return toneSpectrumToPCM(spectrum, freqOffHz)
}

// dataBitCapacity returns how many coded bits the data tones of the given
// pilot-symbol-index can carry at the given bits-per-tone.
func dataBitCapacity(modBits, symbolIndex int) int {
	total := 0
	idxs := dataToneSequence(symbolIndex)
	for i := range idxs {
		total += bitsAtTone(modBits, i)
	}
	return total
}

// dataToneSequence returns the (sorted) tone indices in [0,ToneCount) that
// are NOT the pilot tone for the given pilot-symbol-index.
func dataToneSequence(symbolIndex int) []int {
	out := make([]int, 0, DataTones)
	for k := 0; k < ToneCount; k++ {
		if !IsPilotTone(k, symbolIndex) {
			out = append(out, k)
		}
	}
	return out
}

func pilotToneSequence(symbolIndex int) []int {
	out := make([]int, 0, SeedTones)
	for k := 0; k < ToneCount; k++ {
		if IsPilotTone(k, symbolIndex) {
			out = append(out, k)
		}
	}
	return out
}

// paprEarlyExitDb stops the pilot-seed search as soon as a seed achieves
// this PAPR, rather than always scanning all 128 seeds for the true
// minimum (spec's "early-exit when PAPR < 5 [dB]").
const paprEarlyExitDb = 5

// buildPilotedSymbol maps `bits` onto a symbol's data tones (after XOR'ing
// with the seed-dependent scramble mask) and the chosen pilot seed's
// Hadamard code onto the pilot tones, brute-forcing the seed in [0,128) to
// minimize the resulting time-domain signal's peak-to-average power ratio,
// stopping early once a seed is good enough (paprEarlyExitDb).
func (e *OfdmEncoder) buildPilotedSymbol(bits []byte, modBits, symbolIndex int, freqOffHz float64) ([]float64, int) {
	dataIdxs := dataToneSequence(symbolIndex)
	pilotIdxs := pilotToneSequence(symbolIndex)
	pilotVals := pilotMLSValues()

	bestSeed := 0
	var bestPCM []float64
	bestPAPR := math.Inf(1)

	seedCount := pilotHadamard.N() * 2
	for seed := 0; seed < seedCount; seed++ {
		spectrum := make([]dspkit.Complex, ToneCount)
		mask := scrambleSeedMask(seed, len(bits))
		code := PilotCode(seed)
		for i, toneIdx := range pilotIdxs {
			spectrum[toneIdx] = dspkit.Complex{Re: pilotVals[i%len(pilotVals)] * float64(code[i])}
		}
		bp := 0
		for i, toneIdx := range dataIdxs {
			n := bitsAtTone(modBits, i)
			tone := make([]byte, n)
			for k := 0; k < n; k++ {
				if bp < len(bits) {
					tone[k] = bits[bp] ^ byte(mask[bp]&1)
					bp++
				}
			}
			spectrum[toneIdx] = Map(tone, modBits)
		}
		pcm := toneSpectrumToPCM(spectrum, freqOffHz)
		papr := peakToAverage(pcm)
		if papr < bestPAPR {
			bestPAPR = papr
			bestSeed = seed
			bestPCM = pcm
		}
		if 10*math.Log10(bestPAPR) < paprEarlyExitDb {
			break
		}
	}
	return bestPCM, bestSeed
}

func peakToAverage(x []float64) float64 {
	var peak, sum float64
	for _, v := range x {
		p := v * v
		if p > peak {
			peak = p
		}
		sum += p
	}
	if sum == 0 {
		return 0
	}
	mean := sum / float64(len(x))
	return peak / mean
}

// toneSpectrumToPCM places ToneCount complex tone values into a
// Hermitian-symmetric SymbolLen-point spectrum centered at freqOffHz and
// returns the real time-domain symbol via IDFT.
func toneSpectrumToPCM(spectrum []dspkit.Complex, freqOffHz float64) []float64 {
	full := make([]dspkit.Complex, SymbolLen)
	centerBin := int(math.Round(freqOffHz / binHz))
	for k, v := range spectrum {
		bin := ((centerBin - ToneCount/2 + k) % SymbolLen + SymbolLen) % SymbolLen
		mirror := (SymbolLen - bin) % SymbolLen
		full[bin] = full[bin].Add(v)
		full[mirror] = full[mirror].Add(v.Conj())
	}
	td := dspkit.IDFT(full)
	out := make([]float64, SymbolLen)
	for i, c := range td {
		out[i] = c.Re
	}
	return clipAndScale(out, 1.0)
}

// clipAndScale divides a time-domain symbol by its peak magnitude and
// passes it through tanh, soft-limiting it to +-scale; the largest sample
// lands at tanh(1)*scale (about 0.76*scale). No out-of-band filtering
// follows the clip.
func clipAndScale(x []float64, scale float64) []float64 {
	peak := 0.0
	for _, v := range x {
		if math.Abs(v) > peak {
			peak = math.Abs(v)
		}
	}
	if peak == 0 {
		return x
	}
	out := make([]float64, len(x))
	for i, v := range x {
		out[i] = math.Tanh(v/peak) * scale
	}
	return out
}

// overlapAdd concatenates per-symbol waveforms with a raised-cosine
// cross-fade across a GuardLen-sample cyclic prefix taken from each
// symbol's tail, so consecutive symbols blend smoothly instead of clicking
// at the boundary.
func overlapAdd(symbols [][]float64) []float64 {
	if len(symbols) == 0 {
		return nil
	}
	ru := make([]float64, GuardLen)
	rd := make([]float64, GuardLen)
	for i := 0; i < GuardLen; i++ {
		w := 0.5 - 0.5*math.Cos(math.Pi*float64(i)/float64(GuardLen))
		ru[i] = w
		rd[i] = 1 - w
	}

	totalLen := len(symbols)*SymbolLen + GuardLen
	out := make([]float64, totalLen)
	pos := 0
	for _, sym := range symbols {
		n := len(sym)
		prefix := make([]float64, GuardLen)
		copy(prefix, sym[n-GuardLen:])
		for i := 0; i < GuardLen; i++ {
			out[pos+i] += prefix[i] * ru[i]
		}
		for i := 0; i < n-GuardLen; i++ {
			out[pos+GuardLen+i] += sym[i]
		}
		tailStart := n - GuardLen
		for i := 0; i < GuardLen; i++ {
			out[pos+GuardLen+tailStart+i] += sym[tailStart+i] * rd[i]
		}
		pos += SymbolLen
	}
	return out
}
