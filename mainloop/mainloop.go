// Package mainloop glues the bit source, framer, decoder, clock-setter and
// display together (spec.md component C6), either driving a live GPIO
// receiver or replaying a session log.
package mainloop

import (
	"errors"
	"io"

	"github.com/rene0/nplpi/calendar"
	"github.com/rene0/nplpi/clock"
	"github.com/rene0/nplpi/decoder"
	"github.com/rene0/nplpi/framer"
	"github.com/rene0/nplpi/logcodec"
	"github.com/rene0/nplpi/pulse"
	"github.com/rene0/nplpi/sampler"
)

// GBResult is one bit-grab outcome, unifying live sampling and log replay
// behind a single shape (spec.md's GB_result).
type GBResult struct {
	Marker    framer.Marker
	BitVal    sampler.BitValue
	HwStatus  sampler.HwStatus
	BadIO     bool
	Skip      bool
	Done      bool

	// MinLen and AccMinLen are populated only when Marker != MarkerNone:
	// the bit count and accumulated real-time duration (ms) of the
	// minute that marker just closed.
	MinLen    int
	AccMinLen int64
}

// BitGrabber produces one GBResult per call, advancing the shared Framer
// internally.
type BitGrabber interface {
	Grab() (GBResult, error)
}

// LiveGrabber drives a real-time sampler and pulse source.
type LiveGrabber struct {
	Sampler *sampler.Sampler
	Framer  *framer.Framer

	accMinLen int64
	lastT     int64
	LogBit    func(marker byte) // forwarded to Sampler.GrabBit for guard markers
}

// NewLiveGrabber returns a LiveGrabber reading src at nominalHz, framing
// into fr.
func NewLiveGrabber(src pulse.Source, nominalHz int, fr *framer.Framer) *LiveGrabber {
	return &LiveGrabber{Sampler: sampler.New(src, nominalHz), Framer: fr}
}

// Grab samples one second, advances the framer, and accumulates
// acc_minlen (spec.md section 4.3: elapsed sample count converted to
// milliseconds via the sampler's running real_freq).
func (g *LiveGrabber) Grab() (GBResult, error) {
	res, err := g.Sampler.GrabBit(g.Framer.BitPos, g.LogBit)
	if res.BadIO {
		// A failed pulse read is reported as bad_io; the loop goes on.
		return GBResult{BadIO: true}, nil
	}
	if err != nil {
		return GBResult{}, err
	}

	// res.T counts samples from the start of this second. A split signal
	// (BV01) is continued by the next GrabBit call from where it stopped, so
	// that continuation subtracts the part already accumulated.
	elapsed := res.T - g.lastT
	g.lastT = 0
	if res.BitVal == sampler.BV01 {
		g.lastT = res.T
	}
	if g.Sampler.Info.RealFreq > 0 {
		g.accMinLen += 1_000_000 * elapsed / (g.Sampler.Info.RealFreq / 1_000)
	}

	// preBitPos is the framer's position before this call consumes it; for
	// a normal minute it equals 1 (the slot right after the opening
	// marker) plus the number of data bits advanced since, so
	// preBitPos-1 is the minute length the decoder expects (59 for a
	// normal minute, since bitpos 0 is the marker itself, not a data
	// bit).
	preBitPos := g.Framer.BitPos
	marker := g.Framer.Advance(res.BitVal)
	out := GBResult{Marker: marker, BitVal: res.BitVal, HwStatus: res.HwStatus}
	if marker != framer.MarkerNone {
		if marker == framer.MarkerMinute || marker == framer.MarkerLate {
			out.MinLen = preBitPos - 1
		}
		out.AccMinLen = g.accMinLen
		g.accMinLen = 0
	}
	return out, nil
}

// LogGrabber replays a previously recorded session log.
type LogGrabber struct {
	Reader *logcodec.Reader
	Framer *framer.Framer

	bitsSinceMarker  int
	pendingAccMinLen int64
}

// NewLogGrabber returns a LogGrabber reading tokens from r and framing
// into fr. It does not consume the session header; callers should strip
// it first.
func NewLogGrabber(r *logcodec.Reader, fr *framer.Framer) *LogGrabber {
	return &LogGrabber{Reader: r, Framer: fr}
}

// Grab decodes the next log token(s) into one GBResult, applying the
// dec_bp look-ahead compensation: a boundary or accumulator record that
// follows the last real bit of an under-length minute belongs to the
// pending minute marker, not to the bit just recorded, so the framer's
// position is rolled back one step first.
func (g *LogGrabber) Grab() (GBResult, error) {
	tok, err := g.Reader.Next()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return GBResult{Done: true}, nil
		}
		return GBResult{}, err
	}

	switch tok.Kind {
	case logcodec.TokBadIO:
		return GBResult{BadIO: true}, nil
	case logcodec.TokFault:
		return GBResult{HwStatus: tok.HwStatus}, nil
	case logcodec.TokGuard, logcodec.TokReset:
		return GBResult{Skip: true}, nil
	case logcodec.TokAccLen:
		// A boundary or accumulator record following an under-length
		// minute's last real bit belongs to the pending minute marker,
		// not the bit already recorded (spec.md section 4.7).
		g.compensate()
		g.pendingAccMinLen = tok.AccMinLen
		return GBResult{Skip: true}, nil
	case logcodec.TokBoundary:
		g.compensate()
		return GBResult{Skip: true}, nil
	case logcodec.TokBit:
		// The closing BVBOM bit is the marker itself, not a data bit of
		// the minute it closes, so it must not be counted.
		if tok.BitVal != sampler.BVBOM {
			g.bitsSinceMarker++
		}
		marker := g.Framer.Advance(tok.BitVal)
		out := GBResult{Marker: marker, BitVal: tok.BitVal}
		if marker != framer.MarkerNone {
			out.MinLen = g.bitsSinceMarker
			out.AccMinLen = g.pendingAccMinLen
			g.pendingAccMinLen = 0
			g.bitsSinceMarker = 0
		}
		return out, nil
	default:
		return GBResult{Skip: true}, nil
	}
}

// compensate rolls the framer's bit position back one step when the
// pending record follows an under-length minute's last real bit, per
// spec.md section 4.7.
func (g *LogGrabber) compensate() {
	if g.Framer.BitPos > 0 && g.Framer.BitPos < 59 {
		g.Framer.DecBP()
		g.bitsSinceMarker--
	}
}

// Hooks is the capability set MainLoop invokes at well-defined points; any
// field may be left nil, in which case that hook is a no-op.
type Hooks struct {
	DisplayBit            func(bitpos int, v sampler.BitValue, hw sampler.HwStatus)
	DisplayMinute         func(res decoder.DTResult)
	DisplayTime           func(t calendar.BrokenDownTime)
	DisplayLongMinute     func(accMinLen int64)
	DisplayNewSecond      func()
	ProcessInput          func(mlr *MLResult)
	PostProcessInput      func(mlr *MLResult)
	ProcessSetClockResult func(result clock.Result)
}

// MLResult carries cross-cutting state mutated by input-processing hooks
// and consumed by MainLoop and the clock-setter (spec.md's ML_result).
type MLResult struct {
	LogFilename   string
	SetTime       bool
	SetTimeResult clock.Result
	Quit          bool
}

// MainLoop sequences BitGrabber, the decoder, the clock-setter and the
// display for the lifetime of one session.
type MainLoop struct {
	Grabber BitGrabber
	Framer  *framer.Framer
	Decoder *decoder.TimeDecoder
	Setter  clock.Setter
	Hooks   Hooks

	pendingLong bool
}

// New returns a MainLoop wiring the given components. setter may be nil;
// clock-set requests then always resolve to clock.ResultUnsafe.
func New(grabber BitGrabber, fr *framer.Framer, dec *decoder.TimeDecoder, setter clock.Setter, hooks Hooks) *MainLoop {
	return &MainLoop{Grabber: grabber, Framer: fr, Decoder: dec, Setter: setter, Hooks: hooks}
}

// Run drives the loop until the grabber reports done or a hook requests
// quit, then invokes cleanup.
func (m *MainLoop) Run(cleanup func()) error {
	if cleanup != nil {
		defer cleanup()
	}
	mlr := &MLResult{}

	for {
		if m.Hooks.ProcessInput != nil {
			m.Hooks.ProcessInput(mlr)
		}
		if mlr.Quit {
			return nil
		}

		bit, err := m.Grabber.Grab()
		if err != nil {
			return err
		}
		if bit.Done || mlr.Quit {
			return nil
		}

		if !bit.Skip && !bit.BadIO {
			if m.Hooks.DisplayBit != nil {
				m.Hooks.DisplayBit(m.Framer.BitPos, bit.BitVal, bit.HwStatus)
			}
		}
		if m.Hooks.DisplayNewSecond != nil {
			m.Hooks.DisplayNewSecond()
		}

		m.processMarker(bit, mlr)

		if m.Hooks.PostProcessInput != nil {
			m.Hooks.PostProcessInput(mlr)
		}
	}
}

// processMarker handles a completed-minute (or pending too-long) marker:
// decode, display, and attempt a clock set if requested. minlen == -1
// signals that the previous minute overflowed before this boundary was
// seen, per spec.md section 4.6.
func (m *MainLoop) processMarker(bit GBResult, mlr *MLResult) {
	minlen := bit.MinLen
	switch bit.Marker {
	case framer.MarkerTooLong:
		if m.Hooks.DisplayLongMinute != nil {
			m.Hooks.DisplayLongMinute(bit.AccMinLen)
		}
		m.pendingLong = true
		return
	case framer.MarkerNone:
		return
	}

	if m.pendingLong {
		minlen = -1
		m.pendingLong = false
	}

	initMin := m.Decoder.State.InitMin
	res := m.Decoder.Decode(m.Framer.Buffer(), minlen, bit.AccMinLen)
	if m.Hooks.DisplayMinute != nil {
		m.Hooks.DisplayMinute(res)
	}
	if res.Committed && m.Hooks.DisplayTime != nil {
		m.Hooks.DisplayTime(res.Time)
	}

	if mlr.SetTime {
		mlr.SetTime = false
		result := clock.ResultUnsafe
		if m.Setter != nil {
			result = clock.Commit(m.Setter, initMin, res, bit.Marker)
		}
		mlr.SetTimeResult = result
		if m.Hooks.ProcessSetClockResult != nil {
			m.Hooks.ProcessSetClockResult(result)
		}
	}
}
