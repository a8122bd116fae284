// Package clock conditionally commits a decoded time to the host system
// clock once the decoder has reached steady state on a clean minute.
package clock

import (
	"github.com/rene0/nplpi/calendar"
	"github.com/rene0/nplpi/decoder"
	"github.com/rene0/nplpi/framer"
)

// Result is the outcome of one clock-set attempt.
type Result int

const (
	ResultUnset Result = iota
	ResultOK
	ResultUnsafe
	ResultFail
)

func (r Result) String() string {
	switch r {
	case ResultOK:
		return "ok"
	case ResultUnsafe:
		return "unsafe"
	case ResultFail:
		return "fail"
	default:
		return "unset"
	}
}

// Setter commits t to the host clock, with best-effort sub-second
// alignment using the caller's knowledge that a bit boundary has just
// occurred.
type Setter interface {
	Set(t calendar.BrokenDownTime) error
}

// SetOK reports whether preconditions hold for committing a clock set:
// steady state, every field clean, a normal-length minute, and a marker
// of exactly "minute" (not "late", which carries a resynchronisation
// uncertainty the reference explicitly excludes).
func SetOK(initMin int, res decoder.DTResult, marker framer.Marker) bool {
	if initMin != 0 {
		return false
	}
	if marker != framer.MarkerMinute {
		return false
	}
	if res.MinuteLength != decoder.MinuteOK {
		return false
	}
	for _, s := range [...]decoder.FieldStatus{res.Minute, res.Hour, res.MDay, res.WDay, res.Month, res.Year} {
		if s != decoder.FieldOK {
			return false
		}
	}
	return true
}

// Commit attempts to set the host clock to res.Time via s, first checking
// SetOK. It never has side effects when the preconditions fail.
func Commit(s Setter, initMin int, res decoder.DTResult, marker framer.Marker) Result {
	if !SetOK(initMin, res, marker) {
		return ResultUnsafe
	}
	if err := s.Set(res.Time); err != nil {
		return ResultFail
	}
	return ResultOK
}
