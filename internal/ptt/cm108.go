package ptt

import (
	"fmt"
	"os"
)

// CM108 drives PTT through a CM108/CM119-compatible USB sound fob's GPIO
// pins via its hidraw device node, the same 5-byte report layout the
// reference TNC's cm108_write uses: {0, 0, iodata, iomask, 0}.
type CM108 struct {
	device string
	gpio   int // 1..4
}

// NewCM108 opens no file yet; device is a hidraw node such as
// /dev/hidraw2, and gpio selects which of the four GPIO pins (1-4) keys
// PTT — homebrew interfaces conventionally wire GPIO3.
func NewCM108(device string, gpio int) (*CM108, error) {
	if gpio < 1 || gpio > 4 {
		return nil, fmt.Errorf("ptt: cm108 gpio must be 1-4, got %d", gpio)
	}
	return &CM108{device: device, gpio: gpio}, nil
}

func (c *CM108) SetPTT(on bool) error {
	var mask, data byte
	if on {
		mask = byte(1) << uint(c.gpio-1)
		data = mask
	}
	report := []byte{0, 0, data, mask, 0}

	fd, err := os.OpenFile(c.device, os.O_RDWR, 0)
	if err != nil {
		return fmt.Errorf("ptt: open cm108 device %s: %w", c.device, err)
	}
	defer fd.Close()

	n, err := fd.Write(report)
	if err != nil {
		return fmt.Errorf("ptt: cm108 write %s: %w", c.device, err)
	}
	if n != len(report) {
		return fmt.Errorf("ptt: cm108 short write to %s: wrote %d of %d bytes", c.device, n, len(report))
	}
	return nil
}

func (c *CM108) Close() error { return nil }
