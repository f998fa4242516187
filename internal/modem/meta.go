package modem

import "github.com/n7dwj/ofdmtnc/internal/dspkit"

// Meta block layout: 56 bits of (callsign<<8)|oper_mode, a 16-bit CRC over
// those 56 bits, polar-coded onto the 256 data tones of the meta symbol as
// BPSK. K=72 (56 meta bits + 16 CRC bits), N=256.
const (
	metaDataBits  = 56
	metaDataBytes = metaDataBits / 8
	metaCRCBits   = 16
	MetaInfoBits  = metaDataBits + metaCRCBits
	MetaCodeLen   = 256
)

var metaCRC = dspkit.NewCRC16(0xA8F4)
var metaPolar = dspkit.NewPolar(MetaCodeLen, MetaInfoBits)

// metaValue packs a callsign and mode into the 64-bit meta payload.
func metaValue(callsign int64, mode OperMode) uint64 {
	return (uint64(callsign) << 8) | uint64(mode)
}

func unpackMeta(v uint64) (callsign int64, mode OperMode) {
	return int64(v >> 8), OperMode(v & 0xff)
}

// bitsFromUint64MSB unpacks n bits (MSB-first) of v into a byte slice of
// 0/1 values.
func bitsFromUint64MSB(v uint64, n int) []byte {
	out := make([]byte, n)
	for i := 0; i < n; i++ {
		shift := uint(n - 1 - i)
		out[i] = byte((v >> shift) & 1)
	}
	return out
}

func uint64FromBitsMSB(bits []byte) uint64 {
	var v uint64
	for _, b := range bits {
		v = (v << 1) | uint64(b&1)
	}
	return v
}

// EncodeMetaBits builds the MetaCodeLen polar-coded bit stream for the meta
// symbol: the 56 meta bits, a 16-bit CRC over them, polar-encoded at
// (256, 72).
func EncodeMetaBits(callsign int64, mode OperMode) []byte {
	mv := metaValue(callsign, mode)
	dataBits := bitsFromUint64MSB(mv, metaDataBits)

	dataBytes := make([]byte, metaDataBytes)
	for i := 0; i < metaDataBytes; i++ {
		var b byte
		for j := 0; j < 8; j++ {
			b = (b << 1) | dataBits[i*8+j]
		}
		dataBytes[i] = b
	}
	crc := metaCRC.Compute(dataBytes)
	crcBits := bitsFromUint64MSB(uint64(crc), metaCRCBits)

	info := append(append([]byte{}, dataBits...), crcBits...)
	return metaPolar.Encode(info)
}

// DecodeMetaBits list-decodes the 256 meta codeword LLRs, verifies the
// CRC across each candidate's decoded bits, and returns the first
// CRC-passing callsign/mode. ok is false if no candidate's CRC checked out.
func DecodeMetaBits(llr []float64, listSize int) (callsign int64, mode OperMode, ok bool) {
	candidates := metaPolar.ListDecode(llr, listSize)
	for _, c := range candidates {
		if len(c.Info) != MetaInfoBits {
			continue
		}
		dataBits := c.Info[:metaDataBits]
		crcBits := c.Info[metaDataBits:]

		dataBytes := make([]byte, metaDataBytes)
		for i := 0; i < metaDataBytes; i++ {
			var b byte
			for j := 0; j < 8; j++ {
				b = (b << 1) | dataBits[i*8+j]
			}
			dataBytes[i] = b
		}
		want := metaCRC.Compute(dataBytes)
		got := uint64FromBitsMSB(crcBits)
		if uint64(want) != got {
			continue
		}
		mv := uint64FromBitsMSB(dataBits)
		cs, md := unpackMeta(mv)
		return cs, md, true
	}
	return 0, 0, false
}
