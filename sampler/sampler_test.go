package sampler

import (
	"testing"

	"github.com/rene0/nplpi/pulse"
)

// fakeSource replays a fixed sequence of levels, then holds the last level.
type fakeSource struct {
	levels []pulse.Level
	i      int
}

func (f *fakeSource) Read() (pulse.Level, error) {
	if f.i >= len(f.levels) {
		return f.levels[len(f.levels)-1], nil
	}
	l := f.levels[f.i]
	f.i++
	return l, nil
}

func (f *fakeSource) Close() error { return nil }

type errSource struct{}

func (errSource) Read() (pulse.Level, error) { return pulse.Low, pulse.ErrFault }
func (errSource) Close() error               { return nil }

// newFixture returns a Sampler at a nominal rate fine-grained enough (100
// Hz, 10 ms/sample) for decide's symbol thresholds to be exercised with
// round sample counts, with Info seeded to exact nominal reference lengths.
func newFixture() *Sampler {
	s := New(&fakeSource{}, 100)
	s.Info = NewInfo(100)
	return s
}

// decide is exercised directly with a fabricated TLow, bypassing the
// low-pass filter's rise-time lag: that lag is a constant added to every
// pulse regardless of width, so it does not affect which bucket decide
// picks, but it does make driving a precise tLow through GrabBit brittle to
// reproduce in a test. Testing decide in isolation keeps the symbol table
// itself pinned down.
func TestDecideSymbolTable(t *testing.T) {
	// len100ms() is 10 raw samples at this fixture's nominal rate, and
	// threshold (real_freq/2.5) is 40 samples.
	threshold := NewInfo(100).RealFreq / (25 * freqScale / 10)

	cases := []struct {
		name    string
		tLow    int64
		t       int64
		want    BitValue
		wantErr bool // expect split (continuation), not a final value
	}{
		{"short pulse is zero bit", 5, threshold + 1, BV00, false},
		{"mid pulse is one bit", 20, threshold + 1, BV10, false},
		{"long pulse past threshold is two-one bit", 30, threshold + 1, BV11, false},
		{"long pulse before threshold splits", 30, threshold - 1, BV01, true},
		{"half-second pulse past threshold is begin-of-minute", 45, threshold + 1, BVBOM, false},
		{"half-second pulse before threshold splits", 45, threshold - 1, BV01, true},
		{"implausibly long low reports none", 65, threshold + 1, BVNone, false},
	}

	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			s := newFixture()
			s.Info.TLow = c.tLow
			res, split := s.decide(c.t, 0, nil, nil)
			if res.BitVal != c.want {
				t.Errorf("BitVal = %v, want %v", res.BitVal, c.want)
			}
			if split != c.wantErr {
				t.Errorf("split = %v, want %v", split, c.wantErr)
			}
		})
	}
}

func TestCalibrateResetsOnImplausibleLengths(t *testing.T) {
	s := newFixture()
	nominalBit0, nominalBit59 := s.Info.Bit0Len, s.Info.Bit59Len

	// An absurdly long low pulse reported as a begin-of-minute marker must
	// be rejected by the sanity check and reset to nominal.
	s.Info.TLow = 99
	var logged []byte
	s.calibrate(BVBOM, 0, func(m byte) { logged = append(logged, m) })

	if s.Info.Bit0Len != nominalBit0 || s.Info.Bit59Len != nominalBit59 {
		t.Errorf("calibrate did not reset to nominal: Bit0Len=%d Bit59Len=%d", s.Info.Bit0Len, s.Info.Bit59Len)
	}
	if len(logged) != 1 || logged[0] != '!' {
		t.Errorf("logged = %q, want a single '!'", logged)
	}
}

func TestCalibrateAcceptsPlausibleLengths(t *testing.T) {
	s := newFixture()
	s.Info.TLow = 50 // 500 ms at 100 Hz, exactly nominal bit0 length

	var logged []byte
	s.calibrate(BVBOM, 0, func(m byte) { logged = append(logged, m) })

	if len(logged) != 0 {
		t.Errorf("logged = %q, want no guard markers", logged)
	}
	if s.Info.Bit0Len == 0 {
		t.Errorf("Bit0Len should remain positive after calibration")
	}
}

func TestClassifyTimeoutHwStatus(t *testing.T) {
	s := newFixture()

	allHigh := make([]byte, 20)
	for i := range allHigh {
		allHigh[i] = 0xFF
	}
	if got := s.classifyTimeout(150, allHigh); got.HwStatus != HwTransmit {
		t.Errorf("HwStatus = %v, want HwTransmit", got.HwStatus)
	}

	allLow := make([]byte, 20)
	if got := s.classifyTimeout(150, allLow); got.HwStatus != HwReceive {
		t.Errorf("HwStatus = %v, want HwReceive", got.HwStatus)
	}

	mixed := make([]byte, 20)
	for i := range mixed {
		if i%2 == 0 {
			mixed[i] = 0xFF
		}
	}
	if got := s.classifyTimeout(150, mixed); got.HwStatus != HwRandom {
		t.Errorf("HwStatus = %v, want HwRandom", got.HwStatus)
	}
}

func TestGrabBitReportsBadIO(t *testing.T) {
	s := newFixture()
	s.src = errSource{}

	res, err := s.GrabBit(0, nil)
	if err == nil {
		t.Fatal("expected error")
	}
	if !res.BadIO {
		t.Errorf("BadIO = false, want true")
	}
}

func TestGrabBitTimesOutOnAbsentCarrier(t *testing.T) {
	s := newFixture()
	// A carrier that never returns (demodulator output stuck low) never
	// crosses the Schmitt trigger's rising edge, so GrabBit must classify
	// it via the timeout path rather than hang.
	s.src = &fakeSource{levels: []pulse.Level{pulse.Low}}

	res, err := s.GrabBit(0, nil)
	if err != nil {
		t.Fatalf("GrabBit: %v", err)
	}
	if res.BitVal != BVNone {
		t.Errorf("BitVal = %v, want BVNone", res.BitVal)
	}
	if res.HwStatus != HwReceive {
		t.Errorf("HwStatus = %v, want HwReceive", res.HwStatus)
	}
}
