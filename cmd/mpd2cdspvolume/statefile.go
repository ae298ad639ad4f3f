package main

import (
	"bytes"
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

var errInvalidState = errors.New("invalid volume state file")

// FallbackState is the volume state file CamillaDSP (and the alsa_cdsp plugin)
// read when they start. Each index is one volume slot; this daemon only ever
// writes slot 0 and carries the rest through untouched.
type FallbackState struct {
	// ConfigPath is nil when CamillaDSP runs without a config (written as null).
	ConfigPath *string   `yaml:"config_path"`
	Mute       []bool    `yaml:"mute,flow"`
	Volume     []float64 `yaml:"volume,flow"`

	// Extra holds keys written by newer CamillaDSP versions.
	Extra map[string]any `yaml:",inline"`
}

// defaultFallbackState returns the template used when no valid state exists.
func defaultFallbackState() FallbackState {
	configPath := defaultStateConfigPath
	st := FallbackState{
		ConfigPath: &configPath,
		Mute:       make([]bool, defaultStateSlots),
		Volume:     make([]float64, defaultStateSlots),
	}
	for i := range st.Volume {
		st.Volume[i] = defaultStateVolumeDB
	}
	return st
}

// validate checks the shape of a decoded state.
func (s FallbackState) validate() error {
	if len(s.Mute) == 0 || len(s.Volume) == 0 {
		return fmt.Errorf("%w: mute and volume must not be empty", errInvalidState)
	}
	if len(s.Mute) != len(s.Volume) {
		return fmt.Errorf("%w: %d mute entries but %d volume entries", errInvalidState, len(s.Mute), len(s.Volume))
	}
	return nil
}

// loadFallbackState reads and validates the state file at path.
// A missing file is reported with an error matching fs.ErrNotExist; any
// decode or shape problem matches errInvalidState.
func loadFallbackState(path string) (FallbackState, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return FallbackState{}, err
	}

	var st FallbackState
	if err := yaml.Unmarshal(b, &st); err != nil {
		return FallbackState{}, fmt.Errorf("%w: %v", errInvalidState, err)
	}
	if err := st.validate(); err != nil {
		return FallbackState{}, err
	}
	return st, nil
}

// saveFallbackState writes st to path, replacing its content.
func saveFallbackState(path string, st FallbackState) error {
	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(st); err != nil {
		return fmt.Errorf("encode volume state: %w", err)
	}
	if err := enc.Close(); err != nil {
		return fmt.Errorf("encode volume state: %w", err)
	}

	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		return fmt.Errorf("write volume state: %w", err)
	}
	return nil
}
