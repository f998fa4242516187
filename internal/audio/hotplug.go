package audio

import (
	"context"

	"github.com/jochenvg/go-udev"
)

// HotplugMonitor watches the kernel's udev "sound" subsystem events and
// invokes onChange whenever a card is added or removed — the signal the
// core composition root uses to trigger reconnect_audio() when a USB
// CM108 fob is unplugged and replugged mid-session.
type HotplugMonitor struct {
	cancel context.CancelFunc
}

// Start begins watching in the background; call Stop to end it.
func Start(onChange func(action, device string)) (*HotplugMonitor, error) {
	ctx, cancel := context.WithCancel(context.Background())

	u := udev.Udev{}
	mon := u.NewMonitorFromNetlink("udev")
	if err := mon.FilterAddMatchSubsystem("sound"); err != nil {
		cancel()
		return nil, err
	}

	deviceChan, errChan, err := mon.DeviceChan(ctx)
	if err != nil {
		cancel()
		return nil, err
	}

	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case dev, ok := <-deviceChan:
				if !ok {
					return
				}
				onChange(dev.Action(), dev.Syspath())
			case <-errChan:
			}
		}
	}()

	return &HotplugMonitor{cancel: cancel}, nil
}

func (h *HotplugMonitor) Stop() { h.cancel() }
