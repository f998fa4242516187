package modem

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

func TestCallsignRoundTrip(t *testing.T) {
	v, err := EncodeCallsign("N7DWJ")
	require.NoError(t, err)
	assert.Equal(t, "N7DWJ    ", DecodeCallsign(v))
}

func TestCallsignRejectsTooLong(t *testing.T) {
	_, err := EncodeCallsign("TOOLONGCALL")
	assert.ErrorIs(t, err, ErrInvalidCallsign)
}

func TestCallsignRoundTripProperty(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		n := rapid.IntRange(1, 9).Draw(rt, "n")
		letters := rapid.SliceOfN(rapid.RuneFrom([]rune(callsignAlphabet)), n, n).Draw(rt, "letters")
		s := string(letters)
		v, err := EncodeCallsign(s)
		require.NoError(rt, err)
		got, err := CanonicalizeCallsign(s)
		require.NoError(rt, err)
		assert.Equal(rt, got, DecodeCallsign(v))
	})
}

func TestResolveModeMatchesBaseTable(t *testing.T) {
	p, err := Resolve(NewOperMode(QPSK, Rate1_2, false))
	require.NoError(t, err)
	assert.Equal(t, 2, p.ModBits)
	assert.Equal(t, 4, p.SymbolCount)
	assert.Equal(t, 11, p.CodeOrder)
}

func TestResolveShortFrameQPSKQuadruples(t *testing.T) {
	p, err := Resolve(NewOperMode(QPSK, Rate1_2, true))
	require.NoError(t, err)
	assert.Equal(t, 16, p.SymbolCount)
	assert.Equal(t, 13, p.CodeOrder)
}

func TestResolveRejectsAnalog(t *testing.T) {
	_, err := Resolve(OperMode(0x80))
	assert.ErrorIs(t, err, ErrInvalidMode)
}

func TestMetaBitsRoundTrip(t *testing.T) {
	cs, err := EncodeCallsign("KI7ABC")
	require.NoError(t, err)
	mode := NewOperMode(BPSK, Rate1_2, false)
	coded := EncodeMetaBits(cs, mode)

	llr := make([]float64, len(coded))
	for i, b := range coded {
		if b == 0 {
			llr[i] = 5
		} else {
			llr[i] = -5
		}
	}

	gotCS, gotMode, ok := DecodeMetaBits(llr, 8)
	require.True(t, ok)
	assert.Equal(t, cs, gotCS)
	assert.Equal(t, mode, gotMode)
}

func TestDataCodewordRoundTrip(t *testing.T) {
	p, err := Resolve(NewOperMode(QPSK, Rate1_2, false))
	require.NoError(t, err)
	payload := make([]byte, p.DataBytes)
	for i := range payload {
		payload[i] = byte(i * 7)
	}

	coded := EncodeDataCodeword(payload, p)
	llr := make([]float64, len(coded))
	for i, b := range coded {
		if b == 0 {
			llr[i] = 5
		} else {
			llr[i] = -5
		}
	}

	got, ok := DecodeDataCodeword(llr, p, 8)
	require.True(t, ok)
	assert.Equal(t, payload, got)
}

func TestEncoderProducesNonEmptyBurst(t *testing.T) {
	enc := NewOfdmEncoder()
	mode := NewOperMode(BPSK, Rate1_2, true)
	size, err := enc.PayloadSize(mode)
	require.NoError(t, err)
	payload := make([]byte, size)
	for i := range payload {
		payload[i] = byte(i)
	}
	pcm, err := enc.Encode(payload, 1500, "N0CALL", mode)
	require.NoError(t, err)
	assert.NotEmpty(t, pcm)
	for _, v := range pcm {
		assert.LessOrEqual(t, v, 1.01)
		assert.GreaterOrEqual(t, v, -1.01)
	}
}

func TestEncoderRejectsOversizePayload(t *testing.T) {
	enc := NewOfdmEncoder()
	mode := NewOperMode(BPSK, Rate1_2, true)
	size, err := enc.PayloadSize(mode)
	require.NoError(t, err)
	_, err = enc.Encode(make([]byte, size+1), 1500, "N0CALL", mode)
	assert.Error(t, err)
}

func TestDecoderDecodesOwnBurst(t *testing.T) {
	enc := NewOfdmEncoder()
	mode := NewOperMode(BPSK, Rate1_2, true)
	size, _ := enc.PayloadSize(mode)
	payload := make([]byte, size)
	for i := range payload {
		payload[i] = byte(i)
	}
	pcm, err := enc.Encode(payload, 1500, "N0CALL", mode)
	require.NoError(t, err)

	dec := NewOfdmDecoder(1500)
	var got []DecodedPacket
	assert.NotPanics(t, func() {
		dec.Process(pcm, func(p DecodedPacket) { got = append(got, p) })
	})

	require.Len(t, got, 1)
	assert.Equal(t, payload, got[0].Payload)
	assert.Equal(t, "N0CALL   ", got[0].CallSign)
}
