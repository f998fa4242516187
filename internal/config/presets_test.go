package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/n7dwj/ofdmtnc/internal/modem"
)

const samplePresetsYAML = `
presets:
  - name: robust
    callsign: N7DWJ
    modulation: bpsk
    code_rate: "1/4"
    short_frame: true
    center_freq: 1200
    slot_time_ms: 200
    persist: 32
  - name: fast
    callsign: N7DWJ
    modulation: qam64
    code_rate: "3/4"
    center_freq: 1800
    slot_time_ms: 50
    persist: 128
`

func TestLoadPresetsParsesAllEntries(t *testing.T) {
	path := filepath.Join(t.TempDir(), "presets.yaml")
	require.NoError(t, os.WriteFile(path, []byte(samplePresetsYAML), 0o600))

	presets, err := LoadPresets(path)
	require.NoError(t, err)
	require.Contains(t, presets, "robust")
	require.Contains(t, presets, "fast")
	assert.Equal(t, 1200.0, presets["robust"].CenterFreq)
}

func TestPresetApplyFoldsFieldsWithoutMutatingBase(t *testing.T) {
	path := filepath.Join(t.TempDir(), "presets.yaml")
	require.NoError(t, os.WriteFile(path, []byte(samplePresetsYAML), 0o600))
	presets, err := LoadPresets(path)
	require.NoError(t, err)

	base := Default()
	next, err := presets["robust"].Apply(base)
	require.NoError(t, err)

	assert.Equal(t, "N0CALL", base.CallSign, "Apply must not mutate its argument")
	assert.Equal(t, "N7DWJ", next.CallSign)
	assert.Equal(t, modem.BPSK, next.Mode.Modulation())
	assert.Equal(t, modem.Rate1_4, next.Mode.CodeRate())
	assert.True(t, next.Mode.ShortFrame())
	assert.Equal(t, 200, next.MAC.SlotTimeMs)
}

func TestPresetApplyRejectsUnknownModulation(t *testing.T) {
	p := Preset{Name: "bad", Modulation: "not-a-mod", CodeRate: "1/2"}
	_, err := p.Apply(Default())
	assert.Error(t, err)
}
