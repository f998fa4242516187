// Package config holds the TNC's tunable settings as an immutable
// snapshot behind an atomic pointer: readers always see a consistent
// whole-config view, and updates swap in an entirely new Snapshot rather
// than mutating fields in place. Grounded on the key=value settings
// format the reference TNC's config.go parses, simplified to this
// module's much smaller parameter set.
package config

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"
	"sync/atomic"

	"github.com/n7dwj/ofdmtnc/internal/mac"
	"github.com/n7dwj/ofdmtnc/internal/modem"
	"github.com/n7dwj/ofdmtnc/internal/ptt"
)

// Snapshot is a single, immutable configuration instant. TncCore swaps
// these atomically; nothing in this struct is ever mutated after
// construction.
type Snapshot struct {
	CallSign   string
	Mode       modem.OperMode
	CenterFreq float64
	SampleRate int

	PTTVariant ptt.Variant
	PTTDevice  string
	PTTGPIO    int
	PTTHost    string

	MAC mac.Config

	FragMaxChunk int

	KissBindAddr string
	KissPort     int

	DNSSDName string
	DNSSDOn   bool

	LogLevel string

	// TimestampFormat, if non-empty, is a strftime format string
	// prefixing each logged RX/TX frame (spec's "Precede received
	// frames with a strftime format timestamp" carried over from the
	// reference TNC's kissutil.go -T flag).
	TimestampFormat string
}

func Default() Snapshot {
	return Snapshot{
		CallSign:     "N0CALL",
		Mode:         modem.NewOperMode(modem.QPSK, modem.Rate1_2, false),
		CenterFreq:   1500,
		SampleRate:   48000,
		PTTVariant:   ptt.VariantNone,
		MAC:          mac.DefaultConfig(),
		FragMaxChunk: 200,
		KissBindAddr: "0.0.0.0",
		KissPort:     8001,
		DNSSDOn:      true,
		LogLevel:     "info",
	}
}

// Store is a copy-on-write holder for the current Snapshot: Load is
// lock-free, Update builds the next Snapshot from the current one and
// atomically publishes it.
type Store struct {
	v atomic.Value
}

func NewStore(initial Snapshot) *Store {
	s := &Store{}
	s.v.Store(initial)
	return s
}

func (s *Store) Load() Snapshot { return s.v.Load().(Snapshot) }

// Update atomically replaces the snapshot with the result of applying fn
// to the current one.
func (s *Store) Update(fn func(Snapshot) Snapshot) {
	next := fn(s.Load())
	s.v.Store(next)
}

// LoadFile parses a plaintext "key=value" settings file (one setting per
// line, '#' starts a comment; a line without '=' is read as "key value")
// into base, returning the result as a new Snapshot without mutating base.
func LoadFile(path string, base Snapshot) (Snapshot, error) {
	f, err := os.Open(path)
	if err != nil {
		return base, fmt.Errorf("config: open %s: %w", path, err)
	}
	defer f.Close()

	snap := base
	scanner := bufio.NewScanner(f)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		var key, value string
		if k, v, ok := strings.Cut(line, "="); ok {
			key, value = strings.TrimSpace(k), strings.TrimSpace(v)
		} else {
			fields := strings.Fields(line)
			if len(fields) < 2 {
				return base, fmt.Errorf("config: %s line %d: expected \"key=value\"", path, lineNo)
			}
			key, value = fields[0], strings.Join(fields[1:], " ")
		}
		key = strings.ToUpper(key)
		if err := applySetting(&snap, key, value); err != nil {
			return base, fmt.Errorf("config: %s line %d: %w", path, lineNo, err)
		}
	}
	if err := scanner.Err(); err != nil {
		return base, fmt.Errorf("config: read %s: %w", path, err)
	}
	return snap, nil
}

func applySetting(snap *Snapshot, key, value string) error {
	switch key {
	case "CALLSIGN":
		snap.CallSign = value
	case "CENTERFREQ":
		f, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return err
		}
		snap.CenterFreq = f
	case "SAMPLERATE":
		n, err := strconv.Atoi(value)
		if err != nil {
			return err
		}
		snap.SampleRate = n
	case "PTT":
		switch strings.ToLower(value) {
		case "none":
			snap.PTTVariant = ptt.VariantNone
		case "rigctl":
			snap.PTTVariant = ptt.VariantRigctl
		case "vox":
			snap.PTTVariant = ptt.VariantVox
		case "serial":
			snap.PTTVariant = ptt.VariantSerial
		case "cm108":
			snap.PTTVariant = ptt.VariantCM108
		default:
			return fmt.Errorf("unknown PTT variant %q", value)
		}
	case "PTTDEVICE":
		snap.PTTDevice = value
	case "PTTHOST":
		snap.PTTHost = value
	case "PTTGPIO":
		n, err := strconv.Atoi(value)
		if err != nil {
			return err
		}
		snap.PTTGPIO = n
	case "SLOTTIME":
		n, err := strconv.Atoi(value)
		if err != nil {
			return err
		}
		snap.MAC.SlotTimeMs = n
	case "PERSIST":
		n, err := strconv.Atoi(value)
		if err != nil {
			return err
		}
		snap.MAC.Persist = n
	case "FULLDUP":
		snap.MAC.FullDuplex = strings.EqualFold(value, "on") || value == "1"
	case "CARRIERSENSEMS":
		n, err := strconv.Atoi(value)
		if err != nil {
			return err
		}
		snap.MAC.CarrierSenseMs = n
	case "CARRIERTHRESHOLDDB":
		f, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return err
		}
		snap.MAC.CarrierThresholdDb = f
	case "MAXBACKOFFSLOTS":
		n, err := strconv.Atoi(value)
		if err != nil {
			return err
		}
		snap.MAC.MaxBackoffSlots = n
	case "KISSPORT":
		n, err := strconv.Atoi(value)
		if err != nil {
			return err
		}
		snap.KissPort = n
	case "DNSSDNAME":
		snap.DNSSDName = value
	case "LOGLEVEL":
		snap.LogLevel = value
	default:
		return fmt.Errorf("unknown setting %q", key)
	}
	return nil
}
