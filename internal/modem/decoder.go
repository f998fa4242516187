package modem

import (
	"math"
	"sync/atomic"

	"github.com/n7dwj/ofdmtnc/internal/dspkit"
)

// decoderState tracks where the streaming decoder is within a burst.
type decoderState int

const (
	stateSearching decoderState = iota
	stateMeta
	stateData
)

const (
	extendedLen   = SymbolLen + GuardLen
	lockThreshold = 0.82
	listSize      = 8
)

// DecodedPacket is what OfdmDecoder.Process hands back for each
// successfully CRC-verified burst.
type DecodedPacket struct {
	CallSign string
	Mode     OperMode
	Payload  []byte
	SNR      float64
}

// OfdmDecoder is a streaming state machine: feed it PCM samples in whatever
// block size the audio layer delivers them, and it calls back once per
// successfully decoded burst. It owns all of its DSP state (DC blocker,
// Hilbert transformer, correlation and symbol buffers) so a caller only
// ever needs one instance per receive channel.
type OfdmDecoder struct {
	dc  *dspkit.DCBlocker
	hil *dspkit.Hilbert

	state decoderState

	corrBuf []dspkit.Complex // rolling analytic-sample history used for Schmidl-Cox search

	cfoRadPerSample float64
	phaseAcc        float64

	symBuf []dspkit.Complex // accumulates one extended (guard+body) symbol's worth of derotated samples

	params          Params
	symbolIndex     int // pilot-symbol-index: 0 for meta, 1..SymbolCount for data
	codewordLLR     []float64
	lastSNR         float64
	pendingCallsign string

	centerFreqHz atomic.Value // float64, the tone-grid offset Encode was called with
}

// NewOfdmDecoder builds a decoder tuned to centerFreqHz, the same tone-grid
// center frequency offset passed to OfdmEncoder.Encode. It must match the
// transmitting station's setting or the decoder reads the wrong DFT bins for
// every tone and never locks onto a burst's meta/data symbols.
func NewOfdmDecoder(centerFreqHz float64) *OfdmDecoder {
	d := &OfdmDecoder{
		dc:    dspkit.NewDCBlocker(0.999),
		hil:   dspkit.NewHilbert(65),
		state: stateSearching,
	}
	d.centerFreqHz.Store(centerFreqHz)
	return d
}

// SetCenterFreq updates the tone-grid center frequency used for subsequent
// symbols, so a runtime config change takes effect without recreating the
// decoder (and losing its sync state mid-burst).
func (d *OfdmDecoder) SetCenterFreq(hz float64) { d.centerFreqHz.Store(hz) }

// Reset drops all in-progress synchronization and symbol-collection state,
// returning the decoder to Searching.
func (d *OfdmDecoder) Reset() {
	d.state = stateSearching
	d.corrBuf = nil
	d.symBuf = nil
	d.cfoRadPerSample = 0
	d.phaseAcc = 0
	d.codewordLLR = nil
	d.symbolIndex = 0
}

func (d *OfdmDecoder) LastSNR() float64 { return d.lastSNR }

// Syncing reports whether the decoder is mid-burst (locked onto a
// preamble and collecting meta/data symbols) rather than Searching. The
// MAC controller treats this as "channel busy" for carrier sensing.
func (d *OfdmDecoder) Syncing() bool { return d.state != stateSearching }

// Process feeds samples into the decoder and invokes cb once for every
// burst whose outer CRC checks out.
func (d *OfdmDecoder) Process(samples []float64, cb func(DecodedPacket)) {
	for _, x := range samples {
		an := d.hil.Process(d.dc.Process(x))

		switch d.state {
		case stateSearching:
			d.corrBuf = append(d.corrBuf, an)
			if len(d.corrBuf) > 4*extendedLen {
				d.corrBuf = d.corrBuf[len(d.corrBuf)-4*extendedLen:]
			}
			d.trySync()
		case stateMeta, stateData:
			// Derotate by the estimated residual carrier offset before
			// accumulating into the current symbol buffer.
			d.phaseAcc += d.cfoRadPerSample
			rot := dspkit.Complex{Re: math.Cos(-d.phaseAcc), Im: math.Sin(-d.phaseAcc)}
			d.symBuf = append(d.symBuf, an.Mul(rot))
			if len(d.symBuf) >= extendedLen {
				d.consumeSymbol(cb)
			}
		}
	}
}

// trySync runs a Schmidl-Cox style sliding correlator over the buffered
// history looking for two back-to-back identical SymbolLen-sample
// preamble symbols, locks onto the best candidate once it clears
// lockThreshold, and estimates the residual carrier offset from the
// correlation phase at the peak.
func (d *OfdmDecoder) trySync() {
	L := SymbolLen
	if len(d.corrBuf) < 2*L {
		return
	}
	maxD := len(d.corrBuf) - 2*L
	bestMetric := 0.0
	bestD := -1
	var bestP dspkit.Complex
	for dd := 0; dd <= maxD; dd++ {
		var p dspkit.Complex
		var r float64
		for m := 0; m < L; m++ {
			a := d.corrBuf[dd+m]
			b := d.corrBuf[dd+m+L]
			p = p.Add(a.Mul(b.Conj()))
			r += b.Abs() * b.Abs()
		}
		if r == 0 {
			continue
		}
		metric := (p.Abs() * p.Abs()) / (r * r)
		if metric > bestMetric {
			bestMetric = metric
			bestD = dd
			bestP = p
		}
	}
	if bestD < 0 || bestMetric < lockThreshold {
		return
	}

	d.cfoRadPerSample = math.Atan2(bestP.Im, bestP.Re) / float64(L)
	d.phaseAcc = 0

	// Preamble occupies [bestD, bestD+2L). The meta symbol's guard prefix
	// starts right after; seed the symbol buffer with whatever trailing
	// samples we already have past that point.
	tail := d.corrBuf[bestD+2*L:]
	d.symBuf = append([]dspkit.Complex{}, tail...)
	d.corrBuf = nil

	d.state = stateMeta
	d.symbolIndex = 0
	d.codewordLLR = nil
}

// consumeSymbol strips the cyclic prefix from the accumulated extended
// symbol, demodulates it, and either resolves the meta block or folds the
// data symbol's LLRs into the running codeword buffer.
func (d *OfdmDecoder) consumeSymbol(cb func(DecodedPacket)) {
	body := d.symBuf[GuardLen:extendedLen]
	rest := append([]dspkit.Complex{}, d.symBuf[extendedLen:]...)
	d.symBuf = rest

	freqOffHz := d.centerFreqHz.Load().(float64)

	switch d.state {
	case stateMeta:
		llr, _, snr := d.decodeSymbolBits(body, 1, 0, freqOffHz)
		d.lastSNR = snr
		callsignVal, mode, ok := DecodeMetaBits(llr, listSize)
		if !ok {
			d.Reset()
			return
		}
		params, err := Resolve(mode)
		if err != nil {
			d.Reset()
			return
		}
		d.params = params
		d.symbolIndex = 1
		d.codewordLLR = make([]float64, 0, 1<<uint(params.CodeOrder))
		d.pendingCallsign = DecodeCallsign(callsignVal)
		d.state = stateData

	case stateData:
		llr, _, snr := d.decodeSymbolBits(body, d.params.ModBits, d.symbolIndex, freqOffHz)
		d.lastSNR = snr
		d.codewordLLR = append(d.codewordLLR, llr...)
		d.symbolIndex++
		if d.symbolIndex > d.params.SymbolCount {
			payload, ok := DecodeDataCodeword(d.codewordLLR, d.params, listSize)
			if ok {
				cb(DecodedPacket{
					CallSign: d.pendingCallsign,
					Mode:     d.params.Mode,
					Payload:  payload,
					SNR:      d.lastSNR,
				})
			}
			d.Reset()
		}
	}
}

// decodeSymbolBits extracts the ToneCount tone values from one symbol
// body via DFT, estimates a single complex channel gain from the pilot
// tones, equalizes, decodes the pilot seed, descrambles, and soft-demaps
// the data tones. It returns the LLR stream in the same bit order the
// encoder used to fill this symbol, the decoded pilot seed, and the
// symbol's SNR in dB: data-tone signal power over the residual power left
// after hard decisions.
func (d *OfdmDecoder) decodeSymbolBits(body []dspkit.Complex, modBits, symbolIndex int, freqOffHz float64) ([]float64, int, float64) {
	spectrum := dspkit.DFT(body)
	centerBin := int(math.Round(freqOffHz / binHz))

	tones := make([]dspkit.Complex, ToneCount)
	for k := 0; k < ToneCount; k++ {
		bin := ((centerBin - ToneCount/2 + k) % SymbolLen + SymbolLen) % SymbolLen
		tones[k] = spectrum[bin]
	}

	pilotIdxs := pilotToneSequence(symbolIndex)
	dataIdxs := dataToneSequence(symbolIndex)
	pilotVals := pilotMLSValues()

	var gSq dspkit.Complex
	for i, toneIdx := range pilotIdxs {
		v := tones[toneIdx].Scale(pilotVals[i%len(pilotVals)])
		gSq = gSq.Add(v.Mul(v))
	}
	gSq = gSq.Scale(1 / float64(len(pilotIdxs)))
	g := gSq.Sqrt()
	if g.Abs() < 1e-9 {
		g = dspkit.Complex{Re: 1}
	}

	eq := make([]dspkit.Complex, ToneCount)
	for k, v := range tones {
		eq[k] = v.Div(g)
	}

	pilotSoft := make([]float64, len(pilotIdxs))
	for i, toneIdx := range pilotIdxs {
		pilotSoft[i] = eq[toneIdx].Re * pilotVals[i%len(pilotVals)]
	}
	seed, corr := DecodePilotSeed(pilotSoft)

	capacity := dataBitCapacity(modBits, symbolIndex)
	mask := scrambleSeedMask(seed, capacity)
	precision := corr * 8
	if precision <= 0 {
		precision = 0.5
	}

	out := make([]float64, 0, capacity)
	var sigPow, resPow float64
	bp := 0
	for i, toneIdx := range dataIdxs {
		n := bitsAtTone(modBits, i)
		llrs := DemapSoft(eq[toneIdx], precision, n)
		hard := make([]byte, n)
		for k := range llrs {
			if llrs[k] < 0 {
				hard[k] = 1
			}
		}
		ref := Map(hard, modBits)
		res := eq[toneIdx].Sub(ref)
		sigPow += ref.Abs() * ref.Abs()
		resPow += res.Abs() * res.Abs()
		for k := 0; k < n && bp < len(mask); k, bp = k+1, bp+1 {
			if mask[bp] == 1 {
				llrs[k] = -llrs[k]
			}
		}
		out = append(out, llrs...)
	}
	snrDb := 10 * math.Log10(sigPow/math.Max(resPow, 1e-12))
	return out, seed, snrDb
}
