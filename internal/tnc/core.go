// Package tnc is the composition root: it owns the encoder, decoder,
// audio device, PTT backend, TX queue, fragmenter/reassembler, TX
// lockout and KISS server, wires them into the three long-lived
// goroutines spec.md §5 describes (accept loop, tx thread, rx thread),
// and exposes the small runtime-reconfiguration surface the UI/settings
// layer calls. Grounded on the reference TNC's main program in
// direwolf.go, which performs the same kind of startup wiring (open
// audio, open KISS ports, start the demodulator and transmit threads)
// before blocking until shutdown.
package tnc

import (
	"context"
	"encoding/binary"
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/charmbracelet/log"

	"github.com/n7dwj/ofdmtnc/internal/audio"
	"github.com/n7dwj/ofdmtnc/internal/config"
	"github.com/n7dwj/ofdmtnc/internal/frag"
	"github.com/n7dwj/ofdmtnc/internal/kiss"
	"github.com/n7dwj/ofdmtnc/internal/mac"
	"github.com/n7dwj/ofdmtnc/internal/modem"
	"github.com/n7dwj/ofdmtnc/internal/ptt"
	"github.com/n7dwj/ofdmtnc/internal/server"
	"github.com/n7dwj/ofdmtnc/internal/txqueue"
)

// audioChunkSamples is the write granularity spec.md §4.6 step 6 names
// for the encoded burst ("write encoded samples in 1024-sample chunks").
const audioChunkSamples = 1024

// decoderCarrierSense adapts the decoder's sync state and the receive
// loop's live audio RMS meter to the mac.CarrierSense interface: a
// receiver mid-burst always counts as busy, and the sampled level feeds
// the CSMA backoff loop's RMS-threshold comparison.
type decoderCarrierSense struct {
	d  *modem.OfdmDecoder
	rx *RxLoop
}

func (c decoderCarrierSense) Busy() bool       { return c.d.Syncing() }
func (c decoderCarrierSense) LevelDb() float64 { return c.rx.LevelDb() }

// Core is the TNC composition root.
type Core struct {
	cfg *config.Store

	encoder *modem.OfdmEncoder
	decoder *modem.OfdmDecoder

	audioIn  *audio.Switchable
	audioOut *audio.Switchable
	healthy  atomic.Bool

	pttBackend ptt.Backend

	queue       *txqueue.TxQueue
	lockout     *mac.TxLockout
	reassembler *frag.Reassembler
	macCtrl     *mac.Controller
	rxLoop      *RxLoop
	kissServer  *server.KissServer

	logger *log.Logger

	packetID atomic.Uint32

	framesTX atomic.Uint64

	wg     sync.WaitGroup
	cancel context.CancelFunc
}

// New wires every component from the given config snapshot, audio
// device pair and PTT backend, but does not yet start any goroutine —
// call Run for that.
func New(cfg *config.Store, audioIn, audioOut audio.Device, pttBackend ptt.Backend, logger *log.Logger) *Core {
	snap := cfg.Load()

	c := &Core{
		cfg:         cfg,
		encoder:     modem.NewOfdmEncoder(),
		decoder:     modem.NewOfdmDecoder(snap.CenterFreq),
		audioIn:     audio.NewSwitchable(audioIn),
		audioOut:    audio.NewSwitchable(audioOut),
		pttBackend:  pttBackend,
		queue:       txqueue.New(),
		lockout:     mac.NewTxLockout(),
		reassembler: frag.NewReassembler(),
		logger:      logger,
	}
	c.healthy.Store(true)

	c.rxLoop = NewRxLoop(c.audioIn, c.decoder, c.lockout, c.reassembler, nil, c.fragmentEnabled, logger)
	c.rxLoop.onReadError = func(error) { c.healthy.Store(false) }
	c.rxLoop.timestampFmt = func() string { return c.cfg.Load().TimestampFormat }
	c.macCtrl = mac.NewController(snap.MAC, c.queue, pttBackend, decoderCarrierSense{c.decoder, c.rxLoop}, c.lockout)
	return c
}

// ReconnectAudio swaps in freshly-opened input and output devices,
// marking the audio path healthy again. Called by the composition layer
// (directly, or from a hot-plug watcher) after AudioHealthy reports false.
func (c *Core) ReconnectAudio(in, out audio.Device) error {
	if err := c.audioIn.Swap(in); err != nil && c.logger != nil {
		c.logger.Warn("closing previous audio input", "err", err)
	}
	if err := c.audioOut.Swap(out); err != nil && c.logger != nil {
		c.logger.Warn("closing previous audio output", "err", err)
	}
	c.healthy.Store(true)
	return nil
}

// NewKissServer builds the KissServer bound to ln, routing its DATA
// frames through QueueData and its command frames through
// applyKissCommand, and arms RxLoop to broadcast through it. Kept
// separate from New because the listener (and therefore any
// port-in-use startup failure) is the composition layer's concern.
func (c *Core) NewKissServer(ln net.Listener) *server.KissServer {
	srv := server.New(ln, c.onKissData, c.applyKissCommand, c.logger)
	c.rxLoop.broadcaster = srv
	c.kissServer = srv
	return srv
}

func (c *Core) onKissData(port byte, payload []byte) {
	c.QueueData(payload)
}

func (c *Core) applyKissCommand(cmd kiss.Command, data []byte) {
	switch cmd {
	case kiss.CmdTXDelay:
		if len(data) > 0 {
			v := int(data[0]) * 10
			c.cfg.Update(func(s config.Snapshot) config.Snapshot { s.MAC.TxDelayMs = v; return s })
		}
	case kiss.CmdPersist:
		if len(data) > 0 {
			v := int(data[0])
			c.cfg.Update(func(s config.Snapshot) config.Snapshot { s.MAC.Persist = v; return s })
		}
	case kiss.CmdSlotTime:
		if len(data) > 0 {
			v := int(data[0]) * 10
			c.cfg.Update(func(s config.Snapshot) config.Snapshot { s.MAC.SlotTimeMs = v; return s })
		}
	case kiss.CmdTXTail:
		if len(data) > 0 {
			v := int(data[0]) * 10
			c.cfg.Update(func(s config.Snapshot) config.Snapshot { s.MAC.PTTTailMs = v; return s })
		}
	case kiss.CmdFullDup:
		on := len(data) > 0 && data[0] != 0
		// Accepted for KISS compliance only: half-duplex is enforced
		// regardless (spec.md §9 open question).
		c.cfg.Update(func(s config.Snapshot) config.Snapshot { s.MAC.FullDuplex = false; _ = on; return s })
	case kiss.CmdSetHW, kiss.CmdReturn:
		// ignored
	default:
		if c.logger != nil {
			c.logger.Debug("ignoring unrecognized KISS command", "cmd", cmd)
		}
	}
}

// fragmentEnabled reports whether fragmentation is on, read from the
// live config snapshot so it can change at runtime.
func (c *Core) fragmentEnabled() bool { return c.cfg.Load().FragMaxChunk > 0 }

// QueueData performs the same fragmentation-and-enqueue path used by
// KISS DATA frames: fragment if the payload exceeds the fragment size
// (FragMaxChunk, capped at the mode's capacity less the 5-byte fragment
// header), then push each piece (or the whole payload) onto the TX queue.
func (c *Core) QueueData(payload []byte) {
	snap := c.cfg.Load()
	mode := snap.Mode

	maxPayload, err := c.encoder.PayloadSize(mode)
	if err != nil {
		if c.logger != nil {
			c.logger.Error("cannot queue data: invalid mode", "err", err)
		}
		return
	}
	maxPayload -= 2 // 2-byte length prefix

	chunk := maxPayload - 5 // fragment header
	if snap.FragMaxChunk > 0 && snap.FragMaxChunk < chunk {
		chunk = snap.FragMaxChunk
	}
	if !c.fragmentEnabled() || len(payload) <= chunk {
		c.queue.Push(txqueue.PrioLow, txqueue.Item{Payload: payload, Mode: byte(mode)})
		return
	}

	id := uint16(c.packetID.Add(1))
	for _, f := range frag.Split(payload, id, chunk) {
		c.queue.Push(txqueue.PrioLow, txqueue.Item{Payload: frag.Encode(f), Mode: byte(mode)})
	}
}

// UpdateConfig applies a new configuration snapshot, recomputing
// whatever runtime state depends on mode (payload_size) before the next
// TX and republishing the MAC controller's CSMA parameters.
func (c *Core) UpdateConfig(next config.Snapshot) error {
	if _, err := modem.Resolve(next.Mode); err != nil {
		return fmt.Errorf("tnc: update_config: %w", err)
	}
	c.cfg.Update(func(config.Snapshot) config.Snapshot { return next })
	c.decoder.SetCenterFreq(next.CenterFreq)
	return nil
}

// Run starts the tx and rx threads and blocks until ctx is canceled, at
// which point it joins both.
func (c *Core) Run(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	c.cancel = cancel

	c.wg.Add(2)
	go func() {
		defer c.wg.Done()
		c.rxLoop.Run(ctx)
	}()
	go func() {
		defer c.wg.Done()
		c.macCtrl.Run(ctx, c.transmit)
	}()

	<-ctx.Done()
	c.wg.Wait()
}

// Stop signals every goroutine Run started to shut down.
func (c *Core) Stop() {
	if c.cancel != nil {
		c.cancel()
	}
	c.queue.Close()
}

// transmit is the function Controller.Run hands each popped item to
// once CSMA has granted channel access and PTT is already keyed: it
// frames the payload, encodes the burst, and writes the PTT-backend-
// specific silence/tone sequence around it (spec.md §4.6 step 6).
func (c *Core) transmit(item txqueue.Item) {
	snap := c.cfg.Load()

	framed := make([]byte, 2+len(item.Payload))
	binary.BigEndian.PutUint16(framed, uint16(len(item.Payload)))
	copy(framed[2:], item.Payload)

	samples, err := c.encoder.Encode(framed, snap.CenterFreq, snap.CallSign, modem.OperMode(item.Mode))
	if err != nil {
		if c.logger != nil {
			c.logger.Error("encode failed, dropping burst", "err", err)
		}
		return
	}

	if c.logger != nil {
		c.logger.Info("frame transmitted", "ts", framePrefix(snap.TimestampFormat), "callsign", snap.CallSign, "bytes", len(item.Payload))
	}

	switch v := c.pttBackend.(type) {
	case *ptt.Vox:
		c.writeSilence(snap.MAC.PTTDelayMs, snap.SampleRate)
		c.writeChunked(v.Tone(snap.SampleRate))
		c.writeChunked(samples)
		c.writeChunked(v.TailTone(snap.SampleRate))
	default:
		c.writeSilence(snap.MAC.PTTDelayMs, snap.SampleRate)
		c.writeSilence(snap.MAC.TxDelayMs, snap.SampleRate)
		c.writeChunked(samples)
		c.writeSilence(snap.MAC.PTTTailMs, snap.SampleRate)
		time.Sleep(time.Duration(snap.MAC.PTTTailMs) * time.Millisecond)
	}

	c.framesTX.Add(1)
}

func (c *Core) writeSilence(ms, sampleRate int) {
	if ms <= 0 {
		return
	}
	n := sampleRate * ms / 1000
	if n <= 0 {
		return
	}
	c.writeChunked(make([]float64, n))
}

func (c *Core) writeChunked(samples []float64) {
	for pos := 0; pos < len(samples); pos += audioChunkSamples {
		end := pos + audioChunkSamples
		if end > len(samples) {
			end = len(samples)
		}
		if err := c.audioOut.Write(samples[pos:end]); err != nil {
			c.healthy.Store(false)
			if c.logger != nil {
				c.logger.Error("audio write failed", "err", err)
			}
			return
		}
	}
}

// Counters reports the running TX/RX statistics for a status surface,
// mirroring the reference TNC's audio_stats.go.
func (c *Core) Counters() (framesTX, framesRX, rxErrors, fragDropped uint64) {
	rxF, rxE, fragD := c.rxLoop.Counters()
	return c.framesTX.Load(), rxF, rxE, fragD
}

// AudioHealthy reports whether the audio path is currently usable
// (spec.md §7's "audio_healthy" surface); it goes false on the first
// read or write failure and is restored by ReconnectAudio.
func (c *Core) AudioHealthy() bool { return c.healthy.Load() }

// ClientCount reports how many KISS clients are currently connected, or
// zero if no server has been attached yet.
func (c *Core) ClientCount() int {
	if c.kissServer == nil {
		return 0
	}
	return c.kissServer.ClientCount()
}
