// Package modem implements the OFDM burst encoder and streaming decoder:
// packetizing a byte payload into pilot-bearing OFDM symbols with polar FEC,
// CRC, PAPR reduction and scrambling on the way out, and Schmidl-Cox
// synchronization, channel equalization, soft demapping and list decoding on
// the way back. It builds entirely on the primitives in internal/dspkit.
package modem

import (
	"fmt"
	"strings"
)

// Modulation identifies one of the eight constellations the mode byte can
// select, matching the order in the original Common::setup modulation
// switch.
type Modulation int

const (
	BPSK Modulation = iota
	QPSK
	PSK8
	QAM16
	QAM64
	QAM256
	QAM1024
	QAM4096
)

func (m Modulation) String() string {
	switch m {
	case BPSK:
		return "BPSK"
	case QPSK:
		return "QPSK"
	case PSK8:
		return "8PSK"
	case QAM16:
		return "QAM16"
	case QAM64:
		return "QAM64"
	case QAM256:
		return "QAM256"
	case QAM1024:
		return "QAM1024"
	case QAM4096:
		return "QAM4096"
	default:
		return "?"
	}
}

// CodeRate identifies one of the five polar code rates the mode byte can
// select.
type CodeRate int

const (
	Rate1_2 CodeRate = iota
	Rate2_3
	Rate3_4
	Rate5_6
	Rate1_4
)

// ErrInvalidMode is returned whenever an OperMode byte doesn't resolve to a
// usable (modulation, code_order) combination.
var ErrInvalidMode = fmt.Errorf("invalid oper_mode")

// ErrInvalidCallsign is returned by callsign encoding on invalid characters.
var ErrInvalidCallsign = fmt.Errorf("invalid callsign")

// OperMode is the raw 8-bit mode byte: 3 bits modulation, 3 bits code rate,
// 1 bit short-frame flag, 1 bit reserved analog flag (unsupported, always 0
// in this implementation).
type OperMode uint8

func NewOperMode(mod Modulation, rate CodeRate, short bool) OperMode {
	var m OperMode
	m |= OperMode(mod&7) << 4
	m |= OperMode(rate&7) << 1
	if short {
		m |= 1
	}
	return m
}

func (m OperMode) Modulation() Modulation { return Modulation((m >> 4) & 7) }
func (m OperMode) CodeRate() CodeRate     { return CodeRate((m >> 1) & 7) }
func (m OperMode) ShortFrame() bool       { return m&1 != 0 }
func (m OperMode) Analog() bool           { return m&128 != 0 }

// modeParams holds the per-modulation constants from the reference
// implementation's Common::setup: bits per symbol, number of OFDM data
// symbols for the "normal" frame size, and the polar code's log2 block
// length (code_order).
type modeParams struct {
	modBits     int
	symbolCount int
	codeOrder   int
}

var baseParams = map[Modulation]modeParams{
	BPSK:    {modBits: 1, symbolCount: 8, codeOrder: 11},
	QPSK:    {modBits: 2, symbolCount: 4, codeOrder: 11},
	PSK8:    {modBits: 3, symbolCount: 11, codeOrder: 13},
	QAM16:   {modBits: 4, symbolCount: 4, codeOrder: 12},
	QAM64:   {modBits: 6, symbolCount: 11, codeOrder: 14},
	QAM256:  {modBits: 8, symbolCount: 8, codeOrder: 14},
	QAM1024: {modBits: 10, symbolCount: 13, codeOrder: 15},
	QAM4096: {modBits: 12, symbolCount: 11, codeOrder: 15},
}

// dataBitsTable gives data_bits for (code_order, code_rate), taken verbatim
// from the reference modem's frozen-bit table switch (phy/common.hh): each
// polar code's actual K, which is not a plain fraction of N=2^code_order.
var dataBitsTable = map[int]map[CodeRate]int{
	11: {Rate1_2: 1024, Rate2_3: 1368, Rate3_4: 1536, Rate5_6: 1704, Rate1_4: 512},
	12: {Rate1_2: 2048, Rate2_3: 2736, Rate3_4: 3072, Rate5_6: 3408, Rate1_4: 1024},
	13: {Rate1_2: 4096, Rate2_3: 5472, Rate3_4: 6144, Rate5_6: 6816, Rate1_4: 2048},
	14: {Rate1_2: 8192, Rate2_3: 10944, Rate3_4: 12288, Rate5_6: 13632, Rate1_4: 4096},
	15: {Rate1_2: 16384, Rate2_3: 21888, Rate3_4: 24576, Rate5_6: 27264, Rate1_4: 8192},
	16: {Rate1_2: 32768, Rate2_3: 43776, Rate3_4: 49152, Rate5_6: 54528, Rate1_4: 16384},
}

func dataBitsForOrder(codeOrder int, rate CodeRate) (int, bool) {
	byRate, ok := dataBitsTable[codeOrder]
	if !ok {
		return 0, false
	}
	bits, ok := byRate[rate]
	if !ok {
		return 0, false
	}
	return bits, true
}

// Params is the fully resolved set of per-mode constants an encoder or
// decoder needs.
type Params struct {
	Mode        OperMode
	Mod         Modulation
	Rate        CodeRate
	ModBits     int
	SymbolCount int
	CodeOrder   int
	DataBits    int
	DataBytes   int
}

// Resolve expands an OperMode into its full parameter set, applying the
// short-frame adjustment from Common::setup (symbol count doubles, and
// code_order grows by one — or for the four-symbol QAM16 case, the symbol
// count quadruples and code_order grows by two).
func Resolve(mode OperMode) (Params, error) {
	if mode.Analog() {
		return Params{}, ErrInvalidMode
	}
	base, ok := baseParams[mode.Modulation()]
	if !ok {
		return Params{}, ErrInvalidMode
	}
	symbolCount := base.symbolCount
	codeOrder := base.codeOrder
	if mode.ShortFrame() {
		if symbolCount == 4 {
			symbolCount *= 4
			codeOrder += 2
		} else {
			symbolCount *= 2
			codeOrder++
		}
	}
	dataBits, ok := dataBitsForOrder(codeOrder, mode.CodeRate())
	if !ok {
		return Params{}, ErrInvalidMode
	}
	return Params{
		Mode:        mode,
		Mod:         mode.Modulation(),
		Rate:        mode.CodeRate(),
		ModBits:     base.modBits,
		SymbolCount: symbolCount,
		CodeOrder:   codeOrder,
		DataBits:    dataBits,
		DataBytes:   dataBits / 8,
	}, nil
}

// ParseModulation accepts the CLI/config spellings of each constellation
// name ("bpsk", "qpsk", "8psk", "qam16", ...), case-insensitive.
func ParseModulation(s string) (Modulation, error) {
	switch strings.ToLower(s) {
	case "bpsk":
		return BPSK, nil
	case "qpsk":
		return QPSK, nil
	case "8psk", "psk8":
		return PSK8, nil
	case "qam16":
		return QAM16, nil
	case "qam64":
		return QAM64, nil
	case "qam256":
		return QAM256, nil
	case "qam1024":
		return QAM1024, nil
	case "qam4096":
		return QAM4096, nil
	default:
		return 0, fmt.Errorf("%w: unknown modulation %q", ErrInvalidMode, s)
	}
}

// ParseCodeRate accepts the CLI/config spellings of each code rate
// ("1/2", "2/3", "3/4", "5/6", "1/4").
func ParseCodeRate(s string) (CodeRate, error) {
	switch s {
	case "1/2":
		return Rate1_2, nil
	case "2/3":
		return Rate2_3, nil
	case "3/4":
		return Rate3_4, nil
	case "5/6":
		return Rate5_6, nil
	case "1/4":
		return Rate1_4, nil
	default:
		return 0, fmt.Errorf("%w: unknown code rate %q", ErrInvalidMode, s)
	}
}

// PayloadSize returns data_bytes for the given mode, or an error for an
// unusable mode.
func PayloadSize(mode OperMode) (int, error) {
	p, err := Resolve(mode)
	if err != nil {
		return 0, err
	}
	return p.DataBytes, nil
}
