package ptt

import (
	"fmt"

	"github.com/pkg/term"
	"golang.org/x/sys/unix"
)

// SerialLine selects which modem control line keys the transmitter.
type SerialLine int

const (
	LineRTS SerialLine = iota
	LineDTR
	LineBoth
)

// tiocm gets and sets modem control lines on fd via TIOCMGET/TIOCMSET,
// matching the reference TNC's _TIOCM helper.
func tiocm(fd int, value int, on bool) error {
	stuff, err := unix.IoctlGetInt(fd, unix.TIOCMGET)
	if err != nil {
		return err
	}
	if on {
		stuff |= value
	} else {
		stuff &^= value
	}
	return unix.IoctlSetInt(fd, unix.TIOCMSET, stuff)
}

// Serial drives PTT by asserting RTS and/or DTR on a serial port's modem
// control lines, inverted if the radio's keying interface is active-low.
type Serial struct {
	t       *term.Term
	line    SerialLine
	inverse bool
}

func DialSerial(device string, line SerialLine, inverse bool) (*Serial, error) {
	t, err := term.Open(device)
	if err != nil {
		return nil, fmt.Errorf("ptt: open serial port %s: %w", device, err)
	}
	return &Serial{t: t, line: line, inverse: inverse}, nil
}

func (s *Serial) SetPTT(on bool) error {
	assert := on
	if s.inverse {
		assert = !assert
	}
	fd := int(s.t.Fd())
	switch s.line {
	case LineRTS:
		return tiocm(fd, unix.TIOCM_RTS, assert)
	case LineDTR:
		return tiocm(fd, unix.TIOCM_DTR, assert)
	case LineBoth:
		if err := tiocm(fd, unix.TIOCM_RTS, assert); err != nil {
			return err
		}
		return tiocm(fd, unix.TIOCM_DTR, assert)
	default:
		return fmt.Errorf("ptt: unknown serial line %d", s.line)
	}
}

func (s *Serial) Close() error { return s.t.Close() }
