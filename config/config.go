// Package config loads and validates the JSON hardware configuration read
// once at startup (spec section 6).
package config

import (
	"encoding/json"
	"fmt"
	"os"
)

// ExitCategory classifies a fatal startup error, mirroring the categories
// named in spec section 6/7. The commands name it in their fatal message;
// it does not select the process exit status.
type ExitCategory int

const (
	ExitData ExitCategory = iota
	ExitUsage
	ExitIO
)

func (c ExitCategory) String() string {
	switch c {
	case ExitUsage:
		return "usage"
	case ExitIO:
		return "io"
	default:
		return "data"
	}
}

// Error is a fatal configuration error carrying an exit category, in the
// spirit of the teacher's typed cause/cmd error values rather than a bare
// string.
type Error struct {
	Category ExitCategory
	Err      error
}

func (e *Error) Error() string { return fmt.Sprintf("config: %s: %v", e.Category, e.Err) }
func (e *Error) Unwrap() error { return e.Err }

// HardwareConfig is the JSON-backed receiver configuration.
type HardwareConfig struct {
	Pin        int  `json:"pin"`
	ActiveHigh bool `json:"activehigh"`
	Freq       int  `json:"freq"`
	IODev      *int `json:"iodev,omitempty"`
}

// Load reads and validates the configuration file at path.
func Load(path string) (HardwareConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return HardwareConfig{}, &Error{Category: ExitIO, Err: err}
	}

	var raw struct {
		Pin        *int `json:"pin"`
		ActiveHigh *bool `json:"activehigh"`
		Freq       *int `json:"freq"`
		IODev      *int `json:"iodev"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return HardwareConfig{}, &Error{Category: ExitData, Err: err}
	}

	missing := func(key string) error {
		return &Error{Category: ExitData, Err: fmt.Errorf("missing required key %q", key)}
	}
	if raw.Pin == nil {
		return HardwareConfig{}, missing("pin")
	}
	if raw.ActiveHigh == nil {
		return HardwareConfig{}, missing("activehigh")
	}
	if raw.Freq == nil {
		return HardwareConfig{}, missing("freq")
	}

	cfg := HardwareConfig{Pin: *raw.Pin, ActiveHigh: *raw.ActiveHigh, Freq: *raw.Freq, IODev: raw.IODev}
	if err := cfg.validate(); err != nil {
		return HardwareConfig{}, &Error{Category: ExitData, Err: err}
	}
	return cfg, nil
}

// validate applies the range checks from spec section 6: freq must be
// even and within [10, 120000].
func (c HardwareConfig) validate() error {
	if c.Pin < 0 {
		return fmt.Errorf("pin must be non-negative, got %d", c.Pin)
	}
	if c.Freq < 10 || c.Freq > 120000 {
		return fmt.Errorf("freq must be in [10, 120000], got %d", c.Freq)
	}
	if c.Freq%2 != 0 {
		return fmt.Errorf("freq must be even, got %d", c.Freq)
	}
	return nil
}
