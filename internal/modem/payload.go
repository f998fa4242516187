package modem

import (
	"sync"

	"github.com/n7dwj/ofdmtnc/internal/dspkit"
)

var dataCRC = dspkit.NewCRC32(0x8F6E37A0)

var (
	polarCacheMu sync.Mutex
	polarCache   = map[[2]int]*dspkit.Polar{}
)

func getDataPolar(codeOrder, dataBits int) *dspkit.Polar {
	key := [2]int{codeOrder, dataBits}
	polarCacheMu.Lock()
	defer polarCacheMu.Unlock()
	if p, ok := polarCache[key]; ok {
		return p
	}
	p := dspkit.NewPolar(1<<uint(codeOrder), dataBits+32)
	polarCache[key] = p
	return p
}

var (
	interleaveMu    sync.Mutex
	interleaveCache = map[int][]int{}
)

// interleavePerm returns a deterministic pseudo-random permutation of
// [0,N) with perm[0]=0 fixed, matching the "element 0 is fixed" rule in
// spec.md's bit-interleave description. Built once per code order and
// cached.
func interleavePerm(codeOrder int) []int {
	interleaveMu.Lock()
	defer interleaveMu.Unlock()
	if p, ok := interleaveCache[codeOrder]; ok {
		return p
	}
	n := 1 << uint(codeOrder)
	perm := make([]int, n)
	for i := range perm {
		perm[i] = i
	}
	rng := dspkit.NewXorshift32(uint32(codeOrder*2 + 1))
	for i := n - 1; i > 1; i-- {
		j := 1 + int(rng.Next()%uint32(i))
		perm[i], perm[j] = perm[j], perm[i]
	}
	interleaveCache[codeOrder] = perm
	return perm
}

func interleaveBits(bits []byte, codeOrder int) []byte {
	perm := interleavePerm(codeOrder)
	out := make([]byte, len(bits))
	for dst, src := range perm {
		out[dst] = bits[src]
	}
	return out
}

func deinterleaveBits(bits []byte, codeOrder int) []byte {
	perm := interleavePerm(codeOrder)
	out := make([]byte, len(bits))
	for dst, src := range perm {
		out[src] = bits[dst]
	}
	return out
}

// scrambleBytes XORs data against a deterministic Xorshift32 keystream,
// seeded the same way on encode and decode.
func scrambleBytes(data []byte, seed uint32) []byte {
	rng := dspkit.NewXorshift32(seed)
	out := make([]byte, len(data))
	for i, b := range data {
		out[i] = b ^ byte(rng.Next())
	}
	return out
}

const scrambleSeed = 0x5A17E11

// bytesToBits unpacks bytes into MSB-first 0/1 bytes.
func bytesToBits(data []byte) []byte {
	out := make([]byte, len(data)*8)
	for i, b := range data {
		for j := 0; j < 8; j++ {
			out[i*8+j] = (b >> uint(7-j)) & 1
		}
	}
	return out
}

func bitsToBytes(bits []byte) []byte {
	out := make([]byte, (len(bits)+7)/8)
	for i, b := range bits {
		if b != 0 {
			out[i/8] |= 1 << uint(7-(i%8))
		}
	}
	return out
}

// EncodeDataCodeword builds the full N-bit interleaved polar codeword for
// one burst's payload: pad to data_bytes, scramble, append a 32-bit CRC,
// polar-encode, then bit-interleave.
func EncodeDataCodeword(payload []byte, p Params) []byte {
	padded := make([]byte, p.DataBytes)
	copy(padded, payload)
	scrambled := scrambleBytes(padded, scrambleSeed)

	crc := dataCRC.Compute(scrambled)
	crcBytes := []byte{byte(crc >> 24), byte(crc >> 16), byte(crc >> 8), byte(crc)}

	infoBits := append(bytesToBits(scrambled), bytesToBits(crcBytes)...)
	poly := getDataPolar(p.CodeOrder, p.DataBits)
	coded := poly.Encode(infoBits)
	return interleaveBits(coded, p.CodeOrder)
}

// DecodeDataCodeword runs the outer CRC-verified polar list decode and
// returns the descrambled data_bytes payload. ok is false if no candidate's
// CRC checked out.
func DecodeDataCodeword(llr []float64, p Params, listSize int) (payload []byte, ok bool) {
	poly := getDataPolar(p.CodeOrder, p.DataBits)
	deinterleavedLLR := make([]float64, len(llr))
	perm := interleavePerm(p.CodeOrder)
	for dst, src := range perm {
		deinterleavedLLR[src] = llr[dst]
	}
	candidates := poly.ListDecode(deinterleavedLLR, listSize)
	for _, c := range candidates {
		if len(c.Info) != p.DataBits+32 {
			continue
		}
		dataBits := c.Info[:p.DataBits]
		crcBits := c.Info[p.DataBits:]
		scrambled := bitsToBytes(dataBits)
		crcBytes := bitsToBytes(crcBits)
		want := dataCRC.Compute(scrambled)
		if len(crcBytes) != 4 {
			continue
		}
		got := uint32(crcBytes[0])<<24 | uint32(crcBytes[1])<<16 | uint32(crcBytes[2])<<8 | uint32(crcBytes[3])
		if want != got {
			continue
		}
		data := make([]byte, p.DataBytes)
		for i := range data {
			data[i] = scrambled[i] ^ byte(dspkitXorshiftAt(scrambleSeed, i))
		}
		return data, true
	}
	return nil, false
}

// dspkitXorshiftAt regenerates the i-th scrambler keystream byte; kept as a
// tiny helper so DecodeDataCodeword doesn't need to re-derive the whole
// stream object just to undo the XOR.
func dspkitXorshiftAt(seed uint32, i int) byte {
	rng := dspkit.NewXorshift32(seed)
	var b byte
	for j := 0; j <= i; j++ {
		b = byte(rng.Next())
	}
	return b
}
