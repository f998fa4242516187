// Package ptt implements the push-to-talk backends the MAC controller
// keys around each transmission: None (no-op, for VOX-free loopback
// testing), Rigctl (hamlib's netrigctl TCP text protocol), Vox (an
// audio-only tone the radio's own VOX circuit detects), Serial
// (RTS/DTR line toggling) and CM108 (USB sound-fob GPIO HID reports).
// Grounded on the reference TNC's ptt.go and cm108.go, minus their cgo
// hamlib bindings — Rigctl here is a plain TCP client speaking the
// documented netrigctl wire protocol directly.
package ptt

import (
	"bufio"
	"fmt"
	"math"
	"net"
	"strings"
	"time"
)

// Backend is the interface every PTT variant implements: key the
// transmitter on or off.
type Backend interface {
	SetPTT(on bool) error
	Close() error
}

// Variant names the five supported PTT mechanisms, matching spec.md's
// closed enumeration.
type Variant int

const (
	VariantNone Variant = iota
	VariantRigctl
	VariantVox
	VariantSerial
	VariantCM108
)

func (v Variant) String() string {
	switch v {
	case VariantNone:
		return "none"
	case VariantRigctl:
		return "rigctl"
	case VariantVox:
		return "vox"
	case VariantSerial:
		return "serial"
	case VariantCM108:
		return "cm108"
	default:
		return "?"
	}
}

// None is a Backend that does nothing; used when the radio's own VOX
// keys the transmitter from audio alone, or during bench testing.
type None struct{}

func (None) SetPTT(bool) error { return nil }
func (None) Close() error      { return nil }

// Vox doesn't key any hardware line at all — it generates the audible VOX
// lead and tail tones (Tone, TailTone), which the caller is responsible
// for writing around the transmitted PCM.
type Vox struct {
	ToneHz     float64
	LeadMillis int
	TailMillis int
}

func NewVox(toneHz float64, leadMillis int) *Vox {
	return &Vox{ToneHz: toneHz, LeadMillis: leadMillis}
}

func (*Vox) SetPTT(bool) error { return nil }
func (*Vox) Close() error      { return nil }

// Tone generates the VOX lead-in tone as PCM samples at the given sample
// rate, with a short cosine ramp at each end to avoid a click.
func (v *Vox) Tone(sampleRate int) []float64 {
	return generateTone(v.ToneHz, v.LeadMillis, sampleRate)
}

// TailTone generates the VOX trailing tone the same way as Tone, sized by
// TailMillis instead of LeadMillis.
func (v *Vox) TailTone(sampleRate int) []float64 {
	return generateTone(v.ToneHz, v.TailMillis, sampleRate)
}

// voxRampMillis is the fixed cosine ramp in/out duration for VOX tones
// (spec's "10 ms cosine ramp in and out"), independent of tone length.
const voxRampMillis = 10

func generateTone(toneHz float64, durationMillis, sampleRate int) []float64 {
	n := sampleRate * durationMillis / 1000
	out := make([]float64, n)
	ramp := sampleRate * voxRampMillis / 1000
	if ramp > n/2 {
		ramp = n / 2
	}
	if ramp == 0 {
		ramp = 1
	}
	for i := 0; i < n; i++ {
		amp := 1.0
		if i < ramp {
			amp = 0.5 - 0.5*math.Cos(math.Pi*float64(i)/float64(ramp))
		} else if i >= n-ramp {
			amp = 0.5 - 0.5*math.Cos(math.Pi*float64(n-i)/float64(ramp))
		}
		phase := 2 * math.Pi * toneHz * float64(i) / float64(sampleRate)
		out[i] = amp * math.Sin(phase)
	}
	return out
}

// Rigctl drives PTT over hamlib's netrigctl TCP protocol: "T 1\n" /
// "T 0\n", expecting "RPRT 0" back.
type Rigctl struct {
	conn net.Conn
	r    *bufio.Reader
}

func DialRigctl(addr string, timeout time.Duration) (*Rigctl, error) {
	if addr == "" {
		addr = "localhost:4532"
	}
	conn, err := net.DialTimeout("tcp", addr, timeout)
	if err != nil {
		return nil, fmt.Errorf("ptt: rigctl dial %s: %w", addr, err)
	}
	return &Rigctl{conn: conn, r: bufio.NewReader(conn)}, nil
}

func (r *Rigctl) SetPTT(on bool) error {
	cmd := "T 0\n"
	if on {
		cmd = "T 1\n"
	}
	if _, err := r.conn.Write([]byte(cmd)); err != nil {
		return fmt.Errorf("ptt: rigctl write: %w", err)
	}
	line, err := r.r.ReadString('\n')
	if err != nil {
		return fmt.Errorf("ptt: rigctl read reply: %w", err)
	}
	if !strings.Contains(line, "RPRT 0") {
		return fmt.Errorf("ptt: rigctl rejected T %v: %q", on, strings.TrimSpace(line))
	}
	return nil
}

func (r *Rigctl) Close() error { return r.conn.Close() }
