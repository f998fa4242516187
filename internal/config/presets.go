package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/n7dwj/ofdmtnc/internal/modem"
)

// Preset is one named bundle of the fields a user switches between from the
// UI (spec.md §6 "Persistent state"): callsign, mode and CSMA tuning,
// without touching the audio/PTT/network fields a preset shouldn't disturb.
type Preset struct {
	Name       string  `yaml:"name"`
	CallSign   string  `yaml:"callsign"`
	Modulation string  `yaml:"modulation"`
	CodeRate   string  `yaml:"code_rate"`
	ShortFrame bool    `yaml:"short_frame"`
	CenterFreq float64 `yaml:"center_freq"`
	SlotTimeMs int     `yaml:"slot_time_ms"`
	Persist    int     `yaml:"persist"`
}

type presetsFile struct {
	Presets []Preset `yaml:"presets"`
}

// LoadPresets parses a presets.yaml file into a name-indexed map.
func LoadPresets(path string) (map[string]Preset, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read presets %s: %w", path, err)
	}
	var pf presetsFile
	if err := yaml.Unmarshal(raw, &pf); err != nil {
		return nil, fmt.Errorf("config: parse presets %s: %w", path, err)
	}
	out := make(map[string]Preset, len(pf.Presets))
	for _, p := range pf.Presets {
		out[p.Name] = p
	}
	return out, nil
}

// Apply folds a Preset's fields into base, returning the result without
// mutating base — the same copy-on-write discipline Store.Update follows.
func (p Preset) Apply(base Snapshot) (Snapshot, error) {
	mod, err := modem.ParseModulation(p.Modulation)
	if err != nil {
		return base, fmt.Errorf("config: preset %q: %w", p.Name, err)
	}
	rate, err := modem.ParseCodeRate(p.CodeRate)
	if err != nil {
		return base, fmt.Errorf("config: preset %q: %w", p.Name, err)
	}

	next := base
	next.CallSign = p.CallSign
	next.Mode = modem.NewOperMode(mod, rate, p.ShortFrame)
	next.CenterFreq = p.CenterFreq
	next.MAC.SlotTimeMs = p.SlotTimeMs
	next.MAC.Persist = p.Persist
	return next, nil
}
