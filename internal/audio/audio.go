// Package audio wraps the PortAudio duplex stream the modem reads PCM
// samples from and writes bursts to, plus a udev-based hot-plug monitor
// that notices when the configured sound card disappears and
// reappears (common with USB audio fobs used for CM108 PTT). Grounded on
// the PortAudio wiring in the pack's ka9q_ubersdr Go client.
package audio

import (
	"fmt"

	"github.com/gordonklaus/portaudio"
)

// Device is the interface the rest of the TNC programs against, so tests
// can substitute an in-memory loopback instead of real hardware.
type Device interface {
	ReadInto(buf []float64) (int, error)
	Write(buf []float64) error
	Close() error
}

// PortAudioDevice is a duplex PortAudio stream: a callback copies
// hardware input into a buffered channel for ReadInto to drain, and
// Write enqueues PCM for the callback to hand to the hardware output.
type PortAudioDevice struct {
	stream     *portaudio.Stream
	inCh       chan []float64
	outCh      chan []float64
	pendingOut []float64
	pendingIn  []float64
}

// Init must be called once before opening any stream, and Terminate once
// when the process is done with audio entirely — both thin wrappers so
// callers don't need to import gordonklaus/portaudio directly.
func Init() error      { return portaudio.Initialize() }
func Terminate() error { return portaudio.Terminate() }

func ListDevices() ([]*portaudio.DeviceInfo, error) { return portaudio.Devices() }

// Open starts a duplex stream at sampleRate with the given device
// indices (-1 selects the system default for that direction), buffering
// bufferChunks worth of framesPerBuffer-sized blocks in each direction.
func Open(inIdx, outIdx int, sampleRate float64, framesPerBuffer, bufferChunks int) (*PortAudioDevice, error) {
	if bufferChunks < 1 {
		bufferChunks = 8
	}
	d := &PortAudioDevice{
		inCh:  make(chan []float64, bufferChunks),
		outCh: make(chan []float64, bufferChunks),
	}

	callback := func(in, out []float64) {
		if in != nil {
			cp := append([]float64{}, in...)
			select {
			case d.inCh <- cp:
			default: // drop on overrun rather than block the audio thread
			}
		}
		if out != nil {
			d.fillOutput(out)
		}
	}

	devices, err := portaudio.Devices()
	if err != nil {
		return nil, fmt.Errorf("audio: list devices: %w", err)
	}

	params := portaudio.StreamParameters{
		SampleRate:      sampleRate,
		FramesPerBuffer: framesPerBuffer,
	}
	if inIdx >= 0 {
		if inIdx >= len(devices) {
			return nil, fmt.Errorf("audio: invalid input device index %d", inIdx)
		}
		dev := devices[inIdx]
		params.Input = portaudio.StreamDeviceParameters{Device: dev, Channels: 1, Latency: dev.DefaultLowInputLatency}
	}
	if outIdx >= 0 {
		if outIdx >= len(devices) {
			return nil, fmt.Errorf("audio: invalid output device index %d", outIdx)
		}
		dev := devices[outIdx]
		params.Output = portaudio.StreamDeviceParameters{Device: dev, Channels: 1, Latency: dev.DefaultLowOutputLatency}
	}

	stream, err := portaudio.OpenStream(params, callback)
	if err != nil {
		return nil, fmt.Errorf("audio: open stream: %w", err)
	}
	if err := stream.Start(); err != nil {
		return nil, fmt.Errorf("audio: start stream: %w", err)
	}
	d.stream = stream
	return d, nil
}

func (d *PortAudioDevice) fillOutput(out []float64) {
	pos := 0
	for pos < len(out) {
		if len(d.pendingOut) == 0 {
			select {
			case d.pendingOut = <-d.outCh:
			default:
				for i := pos; i < len(out); i++ {
					out[i] = 0
				}
				return
			}
		}
		n := copy(out[pos:], d.pendingOut)
		d.pendingOut = d.pendingOut[n:]
		pos += n
	}
}

// ReadInto drains buffered input samples into buf, returning however many
// were available (which may be less than len(buf), including zero).
func (d *PortAudioDevice) ReadInto(buf []float64) (int, error) {
	pos := 0
	for pos < len(buf) {
		if len(d.pendingIn) == 0 {
			select {
			case d.pendingIn = <-d.inCh:
			default:
				return pos, nil
			}
		}
		n := copy(buf[pos:], d.pendingIn)
		d.pendingIn = d.pendingIn[n:]
		pos += n
	}
	return pos, nil
}

// Write enqueues PCM for the output callback; it never blocks the audio
// thread, but it does block the caller if the output channel is full.
func (d *PortAudioDevice) Write(buf []float64) error {
	cp := append([]float64{}, buf...)
	d.outCh <- cp
	return nil
}

func (d *PortAudioDevice) Close() error {
	if err := d.stream.Stop(); err != nil {
		return err
	}
	return d.stream.Close()
}
