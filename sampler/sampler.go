// Package sampler turns a raw GPIO trace into one bit-pair symbol per
// second. It runs an exponential low-pass filter over the carrier
// present/absent samples, then a Schmitt trigger with a self-calibrating
// reference length to tell the three possible pulse widths (100 ms, 200 ms,
// 300 ms) and the 500 ms begin-of-minute marker apart.
package sampler

import (
	"math"
	"time"

	"github.com/rene0/nplpi/pulse"
)

// BitValue is the decoded symbol for one second, using the same numeric
// encoding as the wire and the log format (spec section 3 and 6).
type BitValue int8

const (
	BV00   BitValue = 0 // 00
	BV10   BitValue = 1 // 10
	BV01   BitValue = 2 // 01, split signal
	BV11   BitValue = 3 // 11
	BVBOM  BitValue = 4 // begin-of-minute marker
	BVNone BitValue = 5 // undecided; retain previous buffer value
)

func (v BitValue) String() string {
	switch v {
	case BV00:
		return "00"
	case BV10:
		return "10"
	case BV01:
		return "01"
	case BV11:
		return "11"
	case BVBOM:
		return "BOM"
	default:
		return "none"
	}
}

// HwStatus classifies the hardware condition observed during one second of
// sampling.
type HwStatus int8

const (
	HwOK HwStatus = iota
	HwReceive        // mostly low: receiver may be saturated
	HwTransmit       // ≥99% high: local transmitter fault
	HwRandom         // neither: noise
)

func (s HwStatus) String() string {
	switch s {
	case HwOK:
		return "ok"
	case HwReceive:
		return "receive"
	case HwTransmit:
		return "transmit"
	case HwRandom:
		return "random"
	default:
		return "?"
	}
}

// scale factors used throughout, matching spec section 4.3: filter value y
// is Q32 fixed point scaled by 1e9; real_freq/bit0_len/bit59_len are scaled
// by 1e6.
const (
	yScale    = 1_000_000_000
	freqScale = 1_000_000
)

// Info is the running filter state, BitInfo in spec terms. It persists for
// the lifetime of the process and is mutated only by Sampler.
type Info struct {
	RealFreq  int64 // samples/second * 1e6
	Bit0Len   int64 // active-low sample count for the begin-of-minute marker * 1e6
	Bit59Len  int64 // active-low sample count for the second-59 zero bit * 1e6
	TLow      int64 // sample index at which the level last dropped
	TLastZero int64 // last sample at which the filtered value crossed near zero
	T         int64 // current sample index within the second being examined
}

// NewInfo returns Info seeded from the nominal sample rate.
func NewInfo(nominalHz int) Info {
	freq := int64(nominalHz) * freqScale
	return Info{
		RealFreq: freq,
		Bit0Len:  freq / 2,  // 500 ms nominal
		Bit59Len: freq / 10, // 100 ms nominal
	}
}

// Result is the bit-grab outcome produced by the Sampler for one second,
// before the Framer has classified it into a minute marker.
type Result struct {
	BitVal   BitValue
	HwStatus HwStatus
	BadIO    bool

	// T is the elapsed sample count at which this second ended, needed by
	// the caller to accumulate acc_minlen (spec.md section 4.3); it is
	// meaningless when BadIO is set.
	T int64

	// Signal is a diagnostic packed snapshot of the raw samples taken this
	// second, one bit per sample, low bit first. It is never consulted by
	// the decoding pipeline; it exists for the display layer (spec.md
	// design note on bit.signal).
	Signal []byte
}

// Sampler reads pulse.Source and emits one Result per call to GrabBit.
type Sampler struct {
	src       pulse.Source
	nominalHz int64
	a         int64 // filter constant, Q9, computed once at startup

	Info Info

	// state carried across calls for the "split signal" continuation
	// (spec.md section 4.3: the two t < real_freq/2.5 arms re-enter the
	// sampler for the remainder of the second instead of ending it).
	y      int64
	stv    int
	carryT int64
}

// filterConstant computes a = 1e9 * (1 - 2^(-20/freq)), the one exp2 call at
// startup mandated by spec.md's design notes.
func filterConstant(nominalHz int) int64 {
	if nominalHz <= 0 {
		nominalHz = 1
	}
	factor := math.Exp2(-20.0 / float64(nominalHz))
	return int64(yScale * (1 - factor))
}

// New returns a Sampler reading from src at the given nominal sample rate.
func New(src pulse.Source, nominalHz int) *Sampler {
	return &Sampler{
		src:       src,
		nominalHz: int64(nominalHz),
		a:         filterConstant(nominalHz),
		Info:      NewInfo(nominalHz),
		y:         0,
		stv:       0,
	}
}

// guardLowFreq and guardHighFreq bound RealFreq to [freq*0.5, freq*1.0] per
// spec.md section 4.3 step 5 (the reference literally allows it to sag to
// half nominal but never to exceed nominal, since the filter cannot run
// faster than the hardware clocks samples in).
func (s *Sampler) guard(log func(marker byte)) {
	lo := s.nominalHz * freqScale * 5 / 10
	hi := s.nominalHz * freqScale
	switch {
	case s.Info.RealFreq < lo:
		s.Info.RealFreq = s.nominalHz * freqScale
		if log != nil {
			log('<')
		}
	case s.Info.RealFreq > hi:
		s.Info.RealFreq = s.nominalHz * freqScale
		if log != nil {
			log('>')
		}
	}
}

// len100ms returns the adaptive 100 ms reference length used by the symbol
// decision table: bit0/10 + bit59/2.
func (s *Sampler) len100ms() int64 {
	return s.Info.Bit0Len/10 + s.Info.Bit59Len/2
}

// GrabBit samples for up to 1.5 logical seconds and returns the decoded
// symbol for the current second. bitpos is the Framer's current
// second-within-minute, consulted only for self-calibration (spec.md
// section 4.3's "self-calibration" rules fire at bitpos 59 and at begin-of-
// -minute).
//
// LogFn, when non-nil, is called with the single-character guard markers
// ('<', '>', '!') that spec.md section 6 says belong in the log stream.
func (s *Sampler) GrabBit(bitpos int, logFn func(marker byte)) (Result, error) {
	var signal []byte
	t := s.carryT
	s.carryT = 0

	for {
		p, err := s.src.Read()
		if err != nil {
			return Result{BadIO: true}, err
		}

		signal = appendSignalBit(signal, t, p)

		pVal := int64(0)
		if p == pulse.High {
			pVal = 1
		}

		if s.y < s.a/2 {
			s.Info.TLastZero = t
		}
		s.y += s.a * (pVal*yScale - s.y) / yScale

		s.guard(logFn)

		timeoutAt := s.Info.RealFreq * 3 / 2 / freqScale
		if t > timeoutAt {
			return s.classifyTimeout(t, signal), nil
		}

		// Schmitt trigger.
		switch {
		case s.y < yScale/2:
			s.Info.TLow = t
			s.stv = 0
		case s.stv == 0:
			s.stv = 1
			// End of second: decide the symbol.
			res, split := s.decide(t, bitpos, signal, logFn)
			if split {
				// Re-enter the sampler for the remainder of the
				// second instead of resetting it.
				s.carryT = t + 1
				return res, nil
			}
			s.carryT = 0
			return res, nil
		}

		t++
		s.sleepResidual()
	}
}

func appendSignalBit(signal []byte, t int64, p pulse.Level) []byte {
	byteIdx := t / 8
	for int64(len(signal)) <= byteIdx {
		signal = append(signal, 0)
	}
	if p == pulse.High {
		signal[byteIdx] |= 1 << uint(t%8)
	}
	return signal
}

// classifyTimeout labels a second that never saw a rising Schmitt edge.
func (s *Sampler) classifyTimeout(t int64, signal []byte) Result {
	highBits := 0
	for _, b := range signal {
		highBits += popcount(b)
	}
	total := int(t)
	if total == 0 {
		total = 1
	}
	switch {
	case highBits*100 >= total*99:
		return Result{BitVal: BVNone, HwStatus: HwTransmit, T: t, Signal: signal}
	case highBits*100 <= total*50:
		return Result{BitVal: BVNone, HwStatus: HwReceive, T: t, Signal: signal}
	default:
		return Result{BitVal: BVNone, HwStatus: HwRandom, T: t, Signal: signal}
	}
}

func popcount(b byte) int {
	n := 0
	for b != 0 {
		n += int(b & 1)
		b >>= 1
	}
	return n
}

// decide implements the symbol decision table and self-calibration from
// spec.md section 4.3. It returns the result and whether this was a split
// signal that must continue sampling within the same second.
//
// tLow, the sample index of the last observed falling edge, is compared
// directly against len100ms (both raw sample counts scaled by freqScale):
// the ratio alone tells 100/200/300/500 ms pulses apart. t, the elapsed
// sample count since the start of the second, only gates whether enough of
// the second has passed to trust that comparison yet — a pulse that ends
// before real_freq/2.5 samples have elapsed might still be the leading edge
// of a longer low period, so that case is reported as a split signal and
// resampled instead of committed.
func (s *Sampler) decide(t int64, bitpos int, signal []byte, logFn func(marker byte)) (Result, bool) {
	tLow := s.Info.TLow * freqScale
	freq := s.Info.RealFreq
	len100 := s.len100ms()

	threshold := freq / (25 * freqScale / 10) // real_freq/2.5, unscaled to a raw sample count

	var bv BitValue
	split := false

	switch {
	case 2*tLow < 3*len100:
		bv = BV00
	case 2*tLow < 5*len100:
		bv = BV10
	case 2*tLow < 7*len100 && t >= threshold:
		bv = BV11
	case 2*tLow < 7*len100:
		bv, split = BV01, true
	case tLow < 6*len100 && t >= threshold:
		bv = BVBOM
	case tLow < 6*len100:
		bv, split = BV01, true
	default:
		bv = BVNone
	}

	if !split {
		s.calibrate(bv, bitpos, logFn)
		if bv != BVNone {
			s.Info.RealFreq += (t*freqScale - s.Info.RealFreq) / 20
		}
	}

	return Result{BitVal: bv, HwStatus: HwOK, T: t, Signal: signal}, split
}

// calibrate updates the adaptive bit0/bit59 reference lengths and sanity-
// checks them, resetting to nominal and emitting '!' on failure.
func (s *Sampler) calibrate(bv BitValue, bitpos int, logFn func(marker byte)) {
	switch {
	case bitpos == 59 && bv == BV00:
		s.Info.Bit59Len += (s.Info.TLow*freqScale - s.Info.Bit59Len) / 2
	case bv == BVBOM:
		s.Info.Bit0Len += (s.Info.TLow*freqScale - s.Info.Bit0Len) / 2
	default:
		return
	}

	bit0, bit59, freq := s.Info.Bit0Len, s.Info.Bit59Len, s.Info.RealFreq
	half := (bit0 - bit59) / 2
	// bit0's nominal value is itself real_freq/2, so bit0±half is checked
	// against the full [0, real_freq] span: at nominal bit0 and bit59,
	// bit0+half sits around 0.7*real_freq, comfortably inside, while a
	// wildly miscalibrated bit0 (e.g. from a single spurious long pulse)
	// pushes the span past real_freq and gets rejected.
	bad := 4*bit0 < 15*bit59 ||
		2*bit0 > 15*bit59 ||
		bit0-half < 0 || bit0-half > freq ||
		bit0+half < 0 || bit0+half > freq ||
		bit59+half < freq/10

	if bad {
		s.Info.Bit0Len = freq / 2
		s.Info.Bit59Len = freq / 10
		if logFn != nil {
			logFn('!')
		}
	}
}

// sleepResidual sleeps the remainder of one sampling period using monotonic
// time, looping on spurious early wakeups.
func (s *Sampler) sleepResidual() {
	if s.nominalHz <= 0 {
		return
	}
	period := time.Second / time.Duration(s.nominalHz)
	deadline := time.Now().Add(period)
	for {
		remaining := time.Until(deadline)
		if remaining <= 0 {
			return
		}
		time.Sleep(remaining)
	}
}
