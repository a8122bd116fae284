package decoder

import (
	"testing"

	"github.com/rene0/nplpi/calendar"
	"github.com/rene0/nplpi/sampler"
)

// setFieldA writes value's tens/units digits as A-bits (bit&1) MSB-first
// into spec's data range, leaving whatever B-bit (parity) was already
// there untouched.
func setFieldA(buf *[61]sampler.BitValue, spec fieldSpec, value int) {
	tens, units := value/10, value%10
	for i := 0; i < spec.tensWidth; i++ {
		a := (tens >> uint(spec.tensWidth-1-i)) & 1
		pos := spec.start + i
		buf[pos] = sampler.BitValue(a | (bitB(buf[pos]) << 1))
	}
	for i := 0; i < 4; i++ {
		a := (units >> uint(3-i)) & 1
		pos := spec.start + spec.tensWidth + i
		buf[pos] = sampler.BitValue(a | (bitB(buf[pos]) << 1))
	}
}

func setWDayA(buf *[61]sampler.BitValue, value int) {
	for i := 0; i < 3; i++ {
		a := (value >> uint(2-i)) & 1
		pos := wdayStart + i
		buf[pos] = sampler.BitValue(a | (bitB(buf[pos]) << 1))
	}
}

// fixParity sets the B-bit at parityBit so that the sum of A-bits across
// start..end, plus that B-bit, is even.
func fixParity(buf *[61]sampler.BitValue, start, end, parityBit int) {
	sum := 0
	for i := start; i <= end; i++ {
		sum += bitA(buf[i])
	}
	a := bitA(buf[parityBit])
	buf[parityBit] = sampler.BitValue(a | ((sum % 2) << 1))
}

// buildMinute encodes t (year/month/mday/wday/hour/minute only — DST and
// leap bits are left at zero, appropriate for a minute with no pending
// transition) as a complete, internally-consistent 61-bit buffer.
func buildMinute(t calendar.BrokenDownTime) [61]sampler.BitValue {
	var buf [61]sampler.BitValue
	buf[0] = sampler.BVBOM
	buf[59] = sampler.BV00
	buf[52] = sampler.BV00

	setFieldA(&buf, yearField, t.Year%100)
	setFieldA(&buf, monthField, t.Month)
	setFieldA(&buf, mdayField, t.MDay)
	setWDayA(&buf, t.WDay)
	setFieldA(&buf, hourField, t.Hour)
	setFieldA(&buf, minuteField, t.Minute)

	fixParity(&buf, yearField.start, yearField.end, yearField.parityBit)
	fixParity(&buf, monthField.start, mdayField.end, monthField.parityBit) // bits 25-35 share parity 55
	fixParity(&buf, wdayStart, wdayEnd, wdayParity)
	fixParity(&buf, hourField.start, minuteField.end, hourField.parityBit) // bits 39-51 share parity 57

	return buf
}

// 2019-03-15 is a Friday; its year-in-century (19) has tens digit 1, whose
// top two bits (which double as the current/changing DST bits per the wire
// layout) are both zero — consistent with winter time, so this date needs
// no special-casing to keep the DST and year fields from contradicting
// each other.
var cleanTime = calendar.BrokenDownTime{
	Year: 2019, Month: 3, MDay: 15, WDay: 5, Hour: 12, Minute: 34, IsDST: calendar.Winter,
}

func TestDecodeCleanMinuteCommits(t *testing.T) {
	buf := buildMinute(cleanTime)
	state := NewState(calendar.BrokenDownTime{Year: 2019, Month: 3, MDay: 15, WDay: 5, Hour: 12, Minute: 33, IsDST: calendar.Winter})
	d := New(state)

	res := d.Decode(buf, 59, 60000)

	if !res.Committed {
		t.Fatalf("expected commit, got %+v", res)
	}
	for name, status := range map[string]FieldStatus{
		"year": res.Year, "month": res.Month, "mday": res.MDay,
		"wday": res.WDay, "hour": res.Hour, "minute": res.Minute,
	} {
		if status != FieldOK {
			t.Errorf("%s status = %v, want ok", name, status)
		}
	}
	if res.Time != cleanTime {
		t.Errorf("Time = %+v, want %+v", res.Time, cleanTime)
	}
}

func TestDecodeParityViolationBlocksCommit(t *testing.T) {
	buf := buildMinute(cleanTime)
	// Flip the B-bit at the year's parity position to break even parity.
	buf[yearField.parityBit] = sampler.BitValue(bitA(buf[yearField.parityBit]) | ((1 - bitB(buf[yearField.parityBit])) << 1))

	state := NewState(calendar.BrokenDownTime{Year: 2019, Month: 3, MDay: 15, WDay: 5, Hour: 12, Minute: 33, IsDST: calendar.Winter})
	d := New(state)

	res := d.Decode(buf, 59, 60000)

	if res.Year != FieldParity {
		t.Errorf("Year status = %v, want parity", res.Year)
	}
	if res.Committed {
		t.Error("expected no commit on parity violation")
	}
}

func TestDecodeBCDViolationOnMonth(t *testing.T) {
	buf := buildMinute(cleanTime)
	// Force the month's 4-bit units nibble to 13 (1101), an invalid BCD
	// digit, then fix parity so only the BCD check is exercised.
	buf[monthField.start] = sampler.BitValue(1 | (bitB(buf[monthField.start]) << 1)) // tens=1 (month 1x)
	buf[monthField.start+1] = sampler.BitValue(1 | (bitB(buf[monthField.start+1]) << 1))
	buf[monthField.start+2] = sampler.BitValue(1 | (bitB(buf[monthField.start+2]) << 1))
	buf[monthField.start+3] = sampler.BitValue(0 | (bitB(buf[monthField.start+3]) << 1))
	buf[monthField.start+4] = sampler.BitValue(1 | (bitB(buf[monthField.start+4]) << 1))
	fixParity(&buf, monthField.start, mdayField.end, monthField.parityBit)

	state := NewState(calendar.BrokenDownTime{Year: 2019, Month: 3, MDay: 15, WDay: 5, Hour: 12, Minute: 33, IsDST: calendar.Winter})
	d := New(state)

	res := d.Decode(buf, 59, 60000)

	if res.Month != FieldBCD {
		t.Errorf("Month status = %v, want bcd", res.Month)
	}
	if res.ErrFlags&ErrDate == 0 {
		t.Error("ErrFlags missing ErrDate bit")
	}
	if res.Committed {
		t.Error("expected no commit on BCD violation")
	}
}

func TestMinuteLengthClassification(t *testing.T) {
	cases := []struct {
		minlen int
		want   MinuteLength
	}{
		{-1, MinuteLong},
		{58, MinuteShort},
		{59, MinuteOK},
		{60, MinuteOK},
		{61, MinuteOK},
		{62, MinuteLong},
	}
	for _, c := range cases {
		if got := minuteLength(c.minlen); got != c.want {
			t.Errorf("minuteLength(%d) = %v, want %v", c.minlen, got, c.want)
		}
	}
}

func TestMinuteLengthGatesCommit(t *testing.T) {
	buf := buildMinute(cleanTime)
	state := NewState(calendar.BrokenDownTime{Year: 2019, Month: 3, MDay: 15, WDay: 5, Hour: 12, Minute: 33, IsDST: calendar.Winter})
	d := New(state)

	res := d.Decode(buf, 62, 60000)

	if res.Committed {
		t.Error("expected no commit with an overlong minute")
	}
	if res.ErrFlags&ErrSanity == 0 {
		t.Error("ErrFlags missing ErrSanity bit")
	}
}

func TestDecodeDSTAnnouncedTransitionCompletes(t *testing.T) {
	state := &State{
		Time:        calendar.BrokenDownTime{Year: 2019, Month: 3, MDay: 31, Hour: 0, Minute: 59, IsDST: calendar.Winter},
		InitMin:     0,
		DSTAnnounce: true,
	}
	d := New(state)

	var buf [61]sampler.BitValue
	buf[17] = sampler.BV10 // current-state bit (A) = 1: summer

	candidate := calendar.BrokenDownTime{Hour: 2, Minute: 0}
	status, dst := d.decodeDST(buf, candidate)

	if status != DSTDone {
		t.Errorf("status = %v, want done", status)
	}
	if dst != calendar.Summer {
		t.Errorf("dst = %v, want summer", dst)
	}
	if state.DSTAnnounce {
		t.Error("DSTAnnounce should clear after the transition completes")
	}
}

func TestDecodeDSTUnannouncedMismatchIsJump(t *testing.T) {
	state := &State{
		Time:    calendar.BrokenDownTime{Year: 2019, Month: 6, MDay: 10, Hour: 12, Minute: 30, IsDST: calendar.Winter},
		InitMin: 0,
	}
	d := New(state)

	var buf [61]sampler.BitValue
	buf[17] = sampler.BV10 // reports summer, with nothing announced

	candidate := calendar.BrokenDownTime{Hour: 12, Minute: 31}
	status, _ := d.decodeDST(buf, candidate)

	if status != DSTJump {
		t.Errorf("status = %v, want jump", status)
	}
}

func TestDecodeLeapCleanSecond(t *testing.T) {
	state := NewState(calendar.BrokenDownTime{})
	d := New(state)
	var res DTResult
	var buf [61]sampler.BitValue
	buf[17] = sampler.BV00

	status := d.decodeLeap(buf, 61, 0, &res)
	if status != LeapDone {
		t.Errorf("status = %v, want done", status)
	}
}

func TestDecodeLeapMissing(t *testing.T) {
	state := NewState(calendar.BrokenDownTime{})
	d := New(state)
	var res DTResult
	var buf [61]sampler.BitValue

	status := d.decodeLeap(buf, 60, 30, &res)
	if status != LeapNone {
		t.Errorf("status = %v, want none", status)
	}
	if res.ErrFlags&ErrLeap == 0 {
		t.Error("ErrFlags missing ErrLeap bit")
	}
	if res.MinuteLength != MinuteShort {
		t.Errorf("MinuteLength = %v, want short", res.MinuteLength)
	}
}

func TestDecodeLeapAnomalousBit(t *testing.T) {
	state := NewState(calendar.BrokenDownTime{})
	d := New(state)
	var res DTResult
	var buf [61]sampler.BitValue
	buf[17] = sampler.BV10 // A-bit set

	status := d.decodeLeap(buf, 61, 30, &res)
	if status != LeapOne {
		t.Errorf("status = %v, want one", status)
	}
}

func TestDecodeLeapUnannouncedLongMinute(t *testing.T) {
	state := NewState(calendar.BrokenDownTime{})
	d := New(state)
	var res DTResult
	var buf [61]sampler.BitValue
	buf[17] = sampler.BV00

	status := d.decodeLeap(buf, 61, 30, &res)
	if status != LeapNone {
		t.Errorf("status = %v, want none", status)
	}
	if res.ErrFlags&ErrLeap == 0 {
		t.Error("ErrFlags missing ErrLeap bit")
	}
	if res.MinuteLength != MinuteLong {
		t.Errorf("MinuteLength = %v, want long", res.MinuteLength)
	}
}
