// Package mac implements the CSMA/p-persistence channel-access algorithm
// that sequences PTT around each transmission, grounded on the reference
// TNC's wait_for_clear_channel in xmit.go but driven by context.Context
// cancellation rather than a polled atomic flag.
package mac

import (
	"context"
	"math/rand"
	"time"

	"github.com/n7dwj/ofdmtnc/internal/ptt"
	"github.com/n7dwj/ofdmtnc/internal/txqueue"
)

// CarrierSense reports the receive channel's current state: Busy for an
// in-progress demodulator lock (independent of level, so a sync already
// underway is never missed), and LevelDb for the RMS signal level the CSMA
// backoff loop compares against CarrierThresholdDb.
type CarrierSense interface {
	Busy() bool
	LevelDb() float64
}

// Config holds the tunable CSMA parameters, each named after its
// reference-implementation counterpart.
type Config struct {
	SlotTimeMs     int // wait between persistence draws, in 10ms units' worth of ms
	Persist        int // 0-255: probability (out of 256) of transmitting on each draw
	CarrierSenseMs int // window the RMS level is sampled over before each backoff decision

	// CarrierThresholdDb is the RMS level, in dB, above which the channel
	// is considered occupied.
	CarrierThresholdDb float64
	// MaxBackoffSlots bounds both the width of each exponential backoff
	// draw (2^backoff_count is capped here) and the number of backoff
	// iterations attempted before giving up and transmitting anyway.
	MaxBackoffSlots int

	FullDuplex   bool
	PollInterval time.Duration

	// PTT sequencing timings (spec.md §4.6 step 6), applied by the
	// transmit function the composition root hands to Controller.Run.
	PTTDelayMs int // silence after keying PTT before audio starts
	TxDelayMs  int // leading silence written before the encoded burst
	PTTTailMs  int // trailing silence written, and held, after the burst
}

func DefaultConfig() Config {
	return Config{
		SlotTimeMs:          100,
		Persist:             63,
		CarrierSenseMs:      100,
		CarrierThresholdDb:  -30,
		MaxBackoffSlots:     10,
		PollInterval:        10 * time.Millisecond,
		PTTDelayMs:          50,
		TxDelayMs:           200,
		PTTTailMs:           50,
	}
}

// lockoutWaitTimeout bounds how long waitForClearChannel blocks on an
// active receive lockout before giving up and proceeding to TX anyway.
const lockoutWaitTimeout = 30 * time.Second

// Controller drains a TxQueue, waiting for clear-channel-and-persistence
// before keying PTT, then handing the item to a caller-supplied
// transmit function, and finally unkeying once it returns.
type Controller struct {
	cfg     Config
	queue   *txqueue.TxQueue
	ptt     ptt.Backend
	cs      CarrierSense
	lockout *TxLockout
	rng     *rand.Rand
}

func NewController(cfg Config, queue *txqueue.TxQueue, backend ptt.Backend, cs CarrierSense, lockout *TxLockout) *Controller {
	return &Controller{
		cfg:     cfg,
		queue:   queue,
		ptt:     backend,
		cs:      cs,
		lockout: lockout,
		rng:     rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// Run drains the queue until ctx is canceled, calling transmit(item) for
// each one after winning channel access.
func (c *Controller) Run(ctx context.Context, transmit func(txqueue.Item)) {
	for {
		item, ok := c.waitForNextItem(ctx)
		if !ok {
			return
		}
		if !c.waitForClearChannel(ctx) {
			continue
		}
		if err := c.ptt.SetPTT(true); err != nil {
			continue
		}
		transmit(item)
		c.ptt.SetPTT(false)
	}
}

func (c *Controller) waitForNextItem(ctx context.Context) (txqueue.Item, bool) {
	for {
		if item, ok := c.queue.TryPop(); ok {
			return item, true
		}
		select {
		case <-ctx.Done():
			return txqueue.Item{}, false
		case <-time.After(c.cfg.PollInterval):
		}
	}
}

// waitForClearChannel blocks until the lockout clears (or 30s passes) and
// the CSMA backoff loop either senses a clear channel and wins the
// persistence draw, or exhausts its backoff budget — at which point it
// transmits anyway. Returns false only if ctx is canceled first.
func (c *Controller) waitForClearChannel(ctx context.Context) bool {
	if c.cfg.FullDuplex {
		return true
	}

	if !c.waitForLockoutClear(ctx) {
		return false
	}
	if c.cfg.MaxBackoffSlots <= 0 {
		return true
	}

	backoffCount := 0
	for i := 0; i < c.cfg.MaxBackoffSlots; i++ {
		if !c.waitForLockoutClear(ctx) {
			return false
		}
		if !c.sleep(ctx, time.Duration(c.cfg.CarrierSenseMs)*time.Millisecond) {
			return false
		}

		if c.carrierOccupied() {
			width := 1 << uint(backoffCount)
			if width > c.cfg.MaxBackoffSlots {
				width = c.cfg.MaxBackoffSlots
			}
			slots := 1 + c.rng.Intn(width)
			if !c.sleep(ctx, time.Duration(slots*c.cfg.SlotTimeMs)*time.Millisecond) {
				return false
			}
			backoffCount++
			continue
		}

		if c.rng.Intn(256) < c.cfg.Persist {
			return true
		}
		if !c.sleep(ctx, time.Duration(c.cfg.SlotTimeMs)*time.Millisecond) {
			return false
		}
	}
	return true // backoff budget exhausted: transmit anyway
}

// waitForLockoutClear blocks until the receive lockout expires or
// lockoutWaitTimeout passes (after which it gives up and proceeds),
// returning false only if ctx is canceled first.
func (c *Controller) waitForLockoutClear(ctx context.Context) bool {
	deadline := time.Now().Add(lockoutWaitTimeout)
	for c.lockout != nil && c.lockout.Active() {
		if time.Now().After(deadline) {
			return true
		}
		if !c.sleep(ctx, c.cfg.PollInterval) {
			return false
		}
	}
	return true
}

// carrierOccupied reports whether the channel should be treated as busy
// for this backoff iteration: either the demodulator is already mid-sync,
// or the sampled RMS level exceeds CarrierThresholdDb.
func (c *Controller) carrierOccupied() bool {
	if c.cs == nil {
		return false
	}
	return c.cs.Busy() || c.cs.LevelDb() > c.cfg.CarrierThresholdDb
}

// sleep waits for d or ctx cancellation, returning false in the latter case.
func (c *Controller) sleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return true
	}
	select {
	case <-ctx.Done():
		return false
	case <-time.After(d):
		return true
	}
}
