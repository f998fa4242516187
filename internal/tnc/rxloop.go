package tnc

import (
	"context"
	"encoding/binary"
	"sync/atomic"
	"time"

	"github.com/charmbracelet/log"

	"github.com/n7dwj/ofdmtnc/internal/audio"
	"github.com/n7dwj/ofdmtnc/internal/frag"
	"github.com/n7dwj/ofdmtnc/internal/mac"
	"github.com/n7dwj/ofdmtnc/internal/modem"
)

// rxBlockSamples is the audio read chunk size, matching the 1024-sample
// blocks spec.md §4.7 and §6 specify for both capture and playback.
const rxBlockSamples = 1024

// lockoutOnSignal is the TX lockout horizon extended on every sync lock
// and every completed decode (spec.md §3 "Default lockout horizon on
// signal detection: 0.5 s").
const lockoutOnSignal = 500 * time.Millisecond

// rmsWindowSamples is the RMS carrier-sense window, ~100ms at the modem's
// fixed sample rate, matching CSMA's default carrier_sense_ms.
const rmsWindowSamples = modem.SampleRate / 10

// Broadcaster is the subset of KissServer the receive path needs: wrap a
// payload in a KISS DATA frame and fan it out to every connected client.
type Broadcaster interface {
	Broadcast(payload []byte)
}

// RxLoop is the single reader of the audio input device: it feeds PCM
// into the OfdmDecoder, unframes the length prefix from each completed
// burst, reassembles fragments when enabled, and hands whole payloads to
// the KISS server for broadcast. Grounded on the reference TNC's
// dedicated receive thread in recv.go, with the inline dispatch replaced
// by this module's reassembly and KISS-wrap pipeline.
type RxLoop struct {
	audioIn      audio.Device
	decoder      *modem.OfdmDecoder
	lockout      *mac.TxLockout
	reassembler  *frag.Reassembler
	broadcaster  Broadcaster
	fragmentOn   func() bool
	onReadError  func(error)
	timestampFmt func() string
	logger       *log.Logger
	rms          *audio.RMSMeter
	framesRX     atomic.Uint64
	rxErrors     atomic.Uint64
	fragDropped  atomic.Uint64
}

func NewRxLoop(audioIn audio.Device, decoder *modem.OfdmDecoder, lockout *mac.TxLockout, reassembler *frag.Reassembler, broadcaster Broadcaster, fragmentOn func() bool, logger *log.Logger) *RxLoop {
	return &RxLoop{
		audioIn:     audioIn,
		decoder:     decoder,
		lockout:     lockout,
		reassembler: reassembler,
		broadcaster: broadcaster,
		fragmentOn:  fragmentOn,
		logger:      logger,
		rms:         audio.NewRMSMeter(rmsWindowSamples),
	}
}

// LevelDb reports the most recent RMS level sampled off the live audio
// input, in dBFS, for CSMA carrier-level sensing.
func (r *RxLoop) LevelDb() float64 { return r.rms.LevelDb() }

// Run reads audio blocks and feeds the decoder until ctx is canceled.
func (r *RxLoop) Run(ctx context.Context) {
	buf := make([]float64, rxBlockSamples)
	wasSyncing := false
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		n, err := r.audioIn.ReadInto(buf)
		if err != nil {
			if r.logger != nil {
				r.logger.Error("audio read failed, degrading and retrying", "err", err)
			}
			if r.onReadError != nil {
				r.onReadError(err)
			}
			time.Sleep(10 * time.Millisecond)
			continue
		}
		if n == 0 {
			time.Sleep(time.Millisecond)
			continue
		}

		r.rms.AddBlock(buf[:n])
		r.decoder.Process(buf[:n], r.onDecoded)

		if syncing := r.decoder.Syncing(); syncing && !wasSyncing {
			r.lockout.Extend(lockoutOnSignal)
		}
		wasSyncing = r.decoder.Syncing()
	}
}

func (r *RxLoop) onDecoded(pkt modem.DecodedPacket) {
	r.lockout.Extend(lockoutOnSignal)
	r.framesRX.Add(1)

	if r.logger != nil {
		prefix := ""
		if r.timestampFmt != nil {
			prefix = framePrefix(r.timestampFmt())
		}
		r.logger.Info("frame received", "ts", prefix, "callsign", pkt.CallSign, "snr_db", pkt.SNR, "bytes", len(pkt.Payload))
	}

	payload := unframeLengthPrefix(pkt.Payload)
	if len(payload) == 0 {
		r.rxErrors.Add(1)
		if r.logger != nil {
			r.logger.Debug("dropping empty rx payload")
		}
		return
	}

	if r.fragmentOn != nil && r.fragmentOn() && len(payload) > 0 && payload[0] == 0xF3 {
		f, err := frag.Decode(payload)
		if err != nil {
			r.fragDropped.Add(1)
			return
		}
		whole, complete := r.reassembler.Add(f)
		if !complete {
			return
		}
		payload = whole
	}

	if r.broadcaster != nil {
		r.broadcaster.Broadcast(payload)
	}
}

// unframeLengthPrefix strips the 2-byte big-endian length prefix a burst
// carries, clamping to the bytes actually available if the encoded
// length claims more than the decoder delivered.
func unframeLengthPrefix(raw []byte) []byte {
	if len(raw) < 2 {
		return nil
	}
	l := int(binary.BigEndian.Uint16(raw))
	body := raw[2:]
	if l > len(body) {
		l = len(body)
	}
	return body[:l]
}

// Counters exposes the running RX statistics for a status surface.
func (r *RxLoop) Counters() (framesRX, rxErrors, fragDropped uint64) {
	return r.framesRX.Load(), r.rxErrors.Load(), r.fragDropped.Load()
}
