// Package framer tracks bit position within an MSF minute and locates
// start-of-minute markers, handing off ordered 59/60-bit frames to the
// time decoder.
package framer

import "github.com/rene0/nplpi/sampler"

// Marker reports what happened to the minute frame as a result of one
// Advance call.
type Marker int

const (
	MarkerNone Marker = iota
	MarkerMinute
	MarkerTooLong
	MarkerLate
)

func (m Marker) String() string {
	switch m {
	case MarkerMinute:
		return "minute"
	case MarkerTooLong:
		return "too_long"
	case MarkerLate:
		return "late"
	default:
		return "none"
	}
}

// spaceBits are the second-within-minute positions formatted with a space
// before them when a minute is rendered as text; it has no bearing on
// decoding.
var spaceBits = map[int]bool{1: true, 9: true, 17: true, 25: true, 30: true, 36: true, 39: true, 45: true, 52: true}

// IsSpaceBit reports whether bitpos starts a new visually separated field.
func IsSpaceBit(bitpos int) bool {
	return spaceBits[bitpos]
}

// Framer holds the 61-slot bit buffer for one minute and the current
// position within it. The buffer is overwritten in place and is reset only
// by a begin-of-minute marker; it is never reallocated or grown.
type Framer struct {
	BitPos int

	buffer     [61]sampler.BitValue
	overflowed bool
}

// New returns a Framer starting at bit position 0.
func New() *Framer {
	return &Framer{}
}

// Buffer returns the current 61-slot bit buffer. Only indices below BitPos
// (and index 0, always the last begin-of-minute marker) hold this minute's
// data; the rest carries over from the previous minute until overwritten.
func (f *Framer) Buffer() [61]sampler.BitValue {
	return f.buffer
}

// Advance records one decoded bit symbol and returns the marker produced by
// that step. Skip records (accumulated-length lines from a replayed log)
// must not be passed here at all — the caller simply omits the call for
// them, which is how the framer avoids advancing bitpos on them.
func (f *Framer) Advance(bv sampler.BitValue) Marker {
	if bv == sampler.BVBOM {
		wasOverflowed := f.overflowed
		f.overflowed = false
		f.buffer[0] = bv
		f.BitPos = 1
		if wasOverflowed {
			return MarkerLate
		}
		return MarkerMinute
	}

	f.buffer[f.BitPos] = bv
	f.BitPos++

	if f.BitPos > 60 {
		f.BitPos = 0
		f.overflowed = true
		return MarkerTooLong
	}
	return MarkerNone
}

// DecBP rolls the bit position back by one. It is used only by LogCodec's
// one-symbol look-ahead: when the character following the last real bit of
// an under-length minute turns out to be a minute boundary, that boundary
// belongs to the bit about to be processed, not the one already recorded.
func (f *Framer) DecBP() {
	if f.BitPos > 0 {
		f.BitPos--
	}
}
