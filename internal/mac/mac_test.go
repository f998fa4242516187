package mac

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/n7dwj/ofdmtnc/internal/ptt"
	"github.com/n7dwj/ofdmtnc/internal/txqueue"
)

type fakeCarrierSense struct {
	busy    bool
	levelDb float64
	levelFn func() float64
}

func (f *fakeCarrierSense) Busy() bool { return f.busy }

func (f *fakeCarrierSense) LevelDb() float64 {
	if f.levelFn != nil {
		return f.levelFn()
	}
	return f.levelDb
}

func TestControllerTransmitsWhenClear(t *testing.T) {
	q := txqueue.New()
	q.Push(txqueue.PrioHigh, txqueue.Item{Payload: []byte("hi")})

	cfg := DefaultConfig()
	cfg.PollInterval = time.Millisecond
	cfg.SlotTimeMs = 1
	cfg.Persist = 255 // always proceed

	var backend ptt.None
	ctrl := NewController(cfg, q, backend, &fakeCarrierSense{busy: false, levelDb: -100}, NewTxLockout())

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()

	sent := make(chan txqueue.Item, 1)
	done := make(chan struct{})
	go func() {
		ctrl.Run(ctx, func(item txqueue.Item) { sent <- item })
		close(done)
	}()

	select {
	case item := <-sent:
		assert.Equal(t, "hi", string(item.Payload))
	case <-time.After(time.Second):
		t.Fatal("controller never transmitted")
	}
	cancel()
	<-done
}

func TestControllerHoldsOffWhileLockedOut(t *testing.T) {
	q := txqueue.New()
	q.Push(txqueue.PrioHigh, txqueue.Item{Payload: []byte("x")})

	cfg := DefaultConfig()
	cfg.PollInterval = time.Millisecond
	cfg.Persist = 255
	cfg.CarrierSenseMs = 1
	lockout := NewTxLockout()
	lockout.Extend(50 * time.Millisecond)

	var backend ptt.None
	ctrl := NewController(cfg, q, backend, &fakeCarrierSense{busy: false, levelDb: -100}, lockout)

	ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
	defer cancel()

	sent := make(chan time.Time, 1)
	start := time.Now()
	go ctrl.Run(ctx, func(txqueue.Item) { sent <- time.Now() })

	select {
	case got := <-sent:
		assert.GreaterOrEqual(t, got.Sub(start), 40*time.Millisecond)
	case <-time.After(time.Second):
		t.Fatal("controller never transmitted after lockout expired")
	}
}

func TestTxLockoutMonotonicMax(t *testing.T) {
	l := NewTxLockout()
	l.Extend(100 * time.Millisecond)
	remAfterLong := l.Remaining()
	l.Extend(10 * time.Millisecond) // shorter: must not shrink the deadline
	assert.GreaterOrEqual(t, l.Remaining(), remAfterLong-5*time.Millisecond)
	assert.True(t, l.Active())
}

func TestCSMABacksOffThenTransmitsOnceChannelClears(t *testing.T) {
	q := txqueue.New()
	q.Push(txqueue.PrioHigh, txqueue.Item{Payload: []byte("hi")})

	cfg := DefaultConfig()
	cfg.PollInterval = time.Millisecond
	cfg.SlotTimeMs = 20
	cfg.CarrierSenseMs = 1
	cfg.Persist = 255
	cfg.CarrierThresholdDb = -30
	cfg.MaxBackoffSlots = 30

	start := time.Now()
	busyFor := 150 * time.Millisecond
	cs := &fakeCarrierSense{levelFn: func() float64 {
		if time.Since(start) < busyFor {
			return -20
		}
		return -50
	}}

	var backend ptt.None
	ctrl := NewController(cfg, q, backend, cs, NewTxLockout())

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	sent := make(chan time.Time, 1)
	go ctrl.Run(ctx, func(txqueue.Item) { sent <- time.Now() })

	select {
	case got := <-sent:
		assert.GreaterOrEqual(t, got.Sub(start), busyFor, "must back off at least once while the channel reads busy")
	case <-time.After(3 * time.Second):
		t.Fatal("controller never transmitted after the channel cleared")
	}
}

func TestFullDuplexSkipsWait(t *testing.T) {
	q := txqueue.New()
	q.Push(txqueue.PrioHigh, txqueue.Item{Payload: []byte("fd")})

	cfg := DefaultConfig()
	cfg.FullDuplex = true
	cfg.PollInterval = time.Millisecond

	var backend ptt.None
	ctrl := NewController(cfg, q, backend, &fakeCarrierSense{busy: true, levelDb: -100}, NewTxLockout())

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()

	sent := make(chan struct{}, 1)
	go ctrl.Run(ctx, func(txqueue.Item) { sent <- struct{}{} })

	require.Eventually(t, func() bool {
		select {
		case <-sent:
			return true
		default:
			return false
		}
	}, time.Second, time.Millisecond)
}
