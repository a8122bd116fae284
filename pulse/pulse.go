// Package pulse implements the live GPIO-backed PulseSource: the single-bit
// carrier-present/carrier-absent line delivered by an external AM
// demodulator. It is the one part of the pipeline gated by build tags,
// since the bit-banging protocol differs per platform; BitSampler never
// branches on platform, it only calls the Source interface.
package pulse

import "errors"

// Level is the instantaneous state of the demodulated GPIO line.
type Level int

const (
	Low  Level = 0
	High Level = 1
)

// ErrFault is returned by Source.Read when the underlying hardware could not
// be sampled (GPIO read error, export race, device gone). The caller treats
// this as bad_io and continues; a single fault must never tear down the
// process (spec.md §7).
var ErrFault = errors.New("pulse: hardware read fault")

// Source yields one signal sample per call. Implementations must not block
// longer than roughly one sampling interval; a hardware fault is reported as
// ErrFault rather than panicking or blocking indefinitely.
type Source interface {
	Read() (Level, error)

	// Close releases any underlying file or device handle.
	Close() error
}
