// Package decoder validates a completed MSF minute frame and maintains the
// running calendar: field parity and BCD checks, century inference,
// day-of-month ceiling, daylight-saving transitions and leap seconds.
package decoder

import (
	"github.com/rene0/nplpi/calendar"
	"github.com/rene0/nplpi/sampler"
)

// FieldStatus is the outcome of validating one calendar field against its
// parity bit, its BCD/range encoding, and (in steady state) the expected
// monotonic increment.
type FieldStatus int

const (
	FieldOK FieldStatus = iota
	FieldParity
	FieldBCD
	FieldJump
)

func (s FieldStatus) String() string {
	switch s {
	case FieldOK:
		return "ok"
	case FieldParity:
		return "parity"
	case FieldBCD:
		return "bcd"
	case FieldJump:
		return "jump"
	default:
		return "?"
	}
}

// worse returns whichever status represents the more serious problem,
// ranking ok < parity < bcd < jump. It is used to cascade a century or
// day-of-month ceiling failure onto fields that individually decoded fine.
func worse(a, b FieldStatus) FieldStatus {
	if b > a {
		return b
	}
	return a
}

// MinuteLength classifies the observed bit count of a completed minute.
type MinuteLength int

const (
	MinuteOK MinuteLength = iota
	MinuteShort
	MinuteLong
)

func (m MinuteLength) String() string {
	switch m {
	case MinuteShort:
		return "short"
	case MinuteLong:
		return "long"
	default:
		return "ok"
	}
}

// DSTStatus reports the outcome of this minute's daylight-saving check.
type DSTStatus int

const (
	DSTOK DSTStatus = iota
	DSTJump
	DSTDone
)

func (s DSTStatus) String() string {
	switch s {
	case DSTJump:
		return "jump"
	case DSTDone:
		return "done"
	default:
		return "ok"
	}
}

// LeapStatus reports the outcome of this minute's leap-second check.
type LeapStatus int

const (
	LeapNone LeapStatus = iota
	LeapOne
	LeapDone
)

func (s LeapStatus) String() string {
	switch s {
	case LeapOne:
		return "one"
	case LeapDone:
		return "done"
	default:
		return "none"
	}
}

// Error flag bits, combined into DT_result.ErrFlags. Commit additionally
// requires the low five bits (sanity, date, wday, hour, minute) to be
// clear; leap (5) and DST (6) are reported but handled by their own status
// fields rather than gating the commit directly.
const (
	ErrSanity = 1 << 0
	ErrDate   = 1 << 1 // year, month or day-of-month
	ErrWDay   = 1 << 2
	ErrHour   = 1 << 3
	ErrMinute = 1 << 4
	ErrLeap   = 1 << 5
	ErrDST    = 1 << 6

	errCommitMask = ErrSanity | ErrDate | ErrWDay | ErrHour | ErrMinute
)

// DTResult is the decoded-minute outcome returned by Decode.
type DTResult struct {
	Minute, Hour, MDay, WDay, Month, Year FieldStatus

	MinuteLength MinuteLength
	DSTStatus    DSTStatus
	LeapStatus   LeapStatus
	DSTAnnounce  bool
	LeapAnnounce bool

	Bit0OK, Bit52OK, Bit59OK bool

	ErrFlags uint8

	// Time is the candidate decoded time. Committed reports whether it
	// replaced State.Time; when false the previous time (advanced by the
	// normal per-minute tick) remains authoritative.
	Time      calendar.BrokenDownTime
	Committed bool
}

// State is the decoder's persistent state across minutes, kept explicit and
// owned by the caller (the main loop) rather than held in package globals.
type State struct {
	Time calendar.BrokenDownTime

	// InitMin counts down from 2: 2 on the very first decoded minute, 1 on
	// the second, 0 once steady state is reached and jump detection
	// against the monotonic increment applies.
	InitMin int

	DSTCount    int
	MinuteCount int
	OldErr      bool
	DSTAnnounce bool

	// ResidualMs is the millisecond remainder of acc_minlen not yet
	// resolved into a whole extra minute step, carried across calls.
	ResidualMs int64
}

// NewState returns a State seeded with the receiver's best guess at the
// current time (e.g. from the host clock or a prior log), awaiting its
// first two decoded minutes before jump detection engages.
func NewState(initial calendar.BrokenDownTime) *State {
	return &State{Time: initial, InitMin: 2}
}

// TimeDecoder decodes completed minute frames against a State.
type TimeDecoder struct {
	State *State
}

// New returns a TimeDecoder operating on state.
func New(state *State) *TimeDecoder {
	return &TimeDecoder{State: state}
}

type fieldSpec struct {
	start, end int
	tensWidth  int
	parityBit  int
	min, max   int
}

var (
	yearField   = fieldSpec{17, 24, 4, 54, 0, 99}
	monthField  = fieldSpec{25, 29, 1, 55, 1, 12}
	mdayField   = fieldSpec{30, 35, 2, 55, 1, 31}
	hourField   = fieldSpec{39, 44, 2, 57, 0, 23}
	minuteField = fieldSpec{45, 51, 3, 57, 0, 59}
)

const (
	wdayStart, wdayEnd, wdayParity = 36, 38, 56
	wdayMin, wdayMax               = 1, 6
)

func bitA(v sampler.BitValue) int { return int(v) & 1 }
func bitB(v sampler.BitValue) int { return (int(v) >> 1) & 1 }

func fieldParityOK(buf [61]sampler.BitValue, start, end, parityBit int) bool {
	sum := 0
	for i := start; i <= end; i++ {
		sum += bitA(buf[i])
	}
	sum += bitB(buf[parityBit])
	return sum%2 == 0
}

// decodeBCD reads a tens/units split field MSB-first: the first tensWidth
// bits are a plain binary tens digit, the remaining (always 4) bits are a
// BCD units nibble. A tensWidth of 4 means the tens digit is itself a full
// BCD nibble (only the year field), so it is range-checked too.
func decodeBCD(buf [61]sampler.BitValue, spec fieldSpec) (value int, bcdErr bool) {
	tens := 0
	for i := 0; i < spec.tensWidth; i++ {
		tens = tens<<1 | bitA(buf[spec.start+i])
	}
	if spec.tensWidth == 4 && tens > 9 {
		bcdErr = true
	}
	units := 0
	for i := spec.start + spec.tensWidth; i <= spec.end; i++ {
		units = units<<1 | bitA(buf[i])
	}
	if units > 9 {
		bcdErr = true
	}
	return tens*10 + units, bcdErr
}

func decodeWDay(buf [61]sampler.BitValue) int {
	v := 0
	for i := wdayStart; i <= wdayEnd; i++ {
		v = v<<1 | bitA(buf[i])
	}
	return v
}

// decodeField runs the full per-field status machine: parity, then
// BCD/range, then (in steady state) the monotonic-increment jump check.
// parityOK is precomputed by the caller because month/day-of-month and
// hour/minute each share a single physical parity bit across their
// combined data range, rather than each field carrying its own. expect is
// the field's value per the plain per-minute tick; it is ignored outside
// steady state (initMin > 0).
func decodeField(buf [61]sampler.BitValue, spec fieldSpec, parityOK bool, initMin, expect int) (value int, status FieldStatus) {
	if !parityOK {
		return 0, FieldParity
	}
	v, bcdErr := decodeBCD(buf, spec)
	if bcdErr || v < spec.min || v > spec.max {
		return 0, FieldBCD
	}
	if initMin == 0 && v != expect {
		return v, FieldJump
	}
	return v, FieldOK
}

func decodeWDayField(buf [61]sampler.BitValue, parityOK bool, initMin, expect int) (value int, status FieldStatus) {
	if !parityOK {
		return 0, FieldParity
	}
	v := decodeWDay(buf)
	if v < wdayMin || v > wdayMax {
		return 0, FieldBCD
	}
	if initMin == 0 && v != expect {
		return v, FieldJump
	}
	return v, FieldOK
}

// minuteLength classifies the bit count observed for the just-completed
// minute. minlen is -1 for a pending too-long marker.
func minuteLength(minlen int) MinuteLength {
	switch {
	case minlen == -1 || minlen > 61:
		return MinuteLong
	case minlen < 59:
		return MinuteShort
	default:
		return MinuteOK
	}
}

// Decode validates one completed minute frame and advances the decoder's
// calendar. buf is the 61-slot bit buffer as filled by the framer; minlen
// is the number of bits framed since the previous marker; accMinLen is the
// sampler's accumulated real-time duration of the minute, in milliseconds.
func (d *TimeDecoder) Decode(buf [61]sampler.BitValue, minlen int, accMinLen int64) DTResult {
	st := d.State
	var res DTResult

	res.MinuteLength = minuteLength(minlen)
	res.Bit0OK = buf[0] == sampler.BVBOM
	res.Bit52OK = buf[52] == sampler.BV00
	res.Bit59OK = buf[59] == sampler.BV00

	if res.MinuteLength != MinuteOK || !res.Bit0OK || !res.Bit59OK {
		res.ErrFlags |= ErrSanity
	}

	// expected is the plain per-minute tick: every committed minute
	// advances the clock by exactly one minute, with any long-run drift
	// folded in separately via ResidualMs. On the very first decoded
	// minute (InitMin == 2) there is no prior committed minute to advance
	// from, so the seed time stands as-is.
	st.ResidualMs += accMinLen - 60000
	expected := st.Time
	if st.InitMin < 2 {
		expected = calendar.AddMinute(st.Time, st.DSTAnnounce)
		for st.ResidualMs >= 60000 {
			expected = calendar.AddMinute(expected, st.DSTAnnounce)
			st.ResidualMs -= 60000
		}
		for st.ResidualMs <= -60000 {
			expected = calendar.SubtractMinute(expected, st.DSTAnnounce)
			st.ResidualMs += 60000
		}
	}

	// Month/day-of-month share parity bit 55 over their combined range, and
	// hour/minute share bit 57 over theirs (see the fieldSpec table above);
	// year and day-of-week each carry their own.
	yearParityOK := fieldParityOK(buf, yearField.start, yearField.end, yearField.parityBit)
	monthMdayParityOK := fieldParityOK(buf, monthField.start, mdayField.end, monthField.parityBit)
	wdayParityOK := fieldParityOK(buf, wdayStart, wdayEnd, wdayParity)
	hourMinuteParityOK := fieldParityOK(buf, hourField.start, minuteField.end, hourField.parityBit)

	yearDigits, yearStatus := decodeField(buf, yearField, yearParityOK, st.InitMin, expected.Year%100)
	month, monthStatus := decodeField(buf, monthField, monthMdayParityOK, st.InitMin, expected.Month)
	mday, mdayStatus := decodeField(buf, mdayField, monthMdayParityOK, st.InitMin, expected.MDay)
	wday, wdayStatus := decodeWDayField(buf, wdayParityOK, st.InitMin, expected.WDay)
	hour, hourStatus := decodeField(buf, hourField, hourMinuteParityOK, st.InitMin, expected.Hour)
	minute, minuteStatus := decodeField(buf, minuteField, hourMinuteParityOK, st.InitMin, expected.Minute)

	// Century pinning: the frame never carries the century digit, so it is
	// inferred from the weekday's consistency with year/month/day. A
	// failure here means one of those three fields is itself wrong, so it
	// cascades onto month and day-of-month rather than only onto year.
	fullYear := calendar.BaseYear + yearDigits
	if yearStatus == FieldOK {
		century := calendar.CenturyOffset(yearDigits, month, mday, wday)
		if century == -1 {
			yearStatus = worse(yearStatus, FieldBCD)
			monthStatus = worse(monthStatus, FieldBCD)
			mdayStatus = worse(mdayStatus, FieldBCD)
		} else {
			fullYear = calendar.BaseYear + century*100 + yearDigits
		}
	}

	// Day-of-month ceiling: a day number that cannot exist in the decoded
	// month (e.g. day 31 in April) means one of year/month/day is wrong,
	// even though each passed its own parity and range check.
	if yearStatus == FieldOK && monthStatus == FieldOK && mdayStatus == FieldOK {
		candidate := calendar.BrokenDownTime{Year: fullYear, Month: month}
		if mday > calendar.LastDayOfMonth(candidate) {
			yearStatus = worse(yearStatus, FieldBCD)
			monthStatus = worse(monthStatus, FieldBCD)
			mdayStatus = worse(mdayStatus, FieldBCD)
		}
	}

	res.Year, res.Month, res.MDay = yearStatus, monthStatus, mdayStatus
	res.WDay, res.Hour, res.Minute = wdayStatus, hourStatus, minuteStatus

	if yearStatus != FieldOK || monthStatus != FieldOK || mdayStatus != FieldOK {
		res.ErrFlags |= ErrDate
	}
	if wdayStatus != FieldOK {
		res.ErrFlags |= ErrWDay
	}
	if hourStatus != FieldOK {
		res.ErrFlags |= ErrHour
	}
	if minuteStatus != FieldOK {
		res.ErrFlags |= ErrMinute
	}

	candidate := calendar.BrokenDownTime{
		Year: fullYear, Month: month, MDay: mday, WDay: wday,
		Hour: hour, Minute: minute, IsDST: st.Time.IsDST,
	}

	res.DSTStatus, candidate.IsDST = d.decodeDST(buf, candidate)
	if res.DSTStatus == DSTJump {
		res.ErrFlags |= ErrDST
	}
	res.DSTAnnounce = st.DSTAnnounce

	res.LeapStatus = d.decodeLeap(buf, minlen, minute, &res)

	res.Time = candidate

	if res.MinuteLength == MinuteOK && res.ErrFlags&errCommitMask == 0 {
		st.Time = candidate
		st.OldErr = false
		res.Committed = true
	} else {
		st.Time = expected
		st.OldErr = true
	}
	if st.InitMin > 0 {
		st.InitMin--
	}

	return res
}

// decodeDST evaluates bits 16-18: bit 16 accumulates toward announcing an
// upcoming transition, and bits 17/18 together encode the DST state now
// versus the state it is changing to (or from).
func (d *TimeDecoder) decodeDST(buf [61]sampler.BitValue, candidate calendar.BrokenDownTime) (DSTStatus, calendar.DST) {
	st := d.State
	st.MinuteCount++

	if bitA(buf[16]) == 1 {
		st.DSTCount++
	}
	if 2*st.DSTCount > st.MinuteCount {
		st.DSTAnnounce = true
	}

	if st.InitMin >= 2 {
		// First-time initialisation: adopt whatever the frame reports
		// without comparing to a prior state.
		return DSTOK, dstFromBits(buf)
	}

	reported := dstFromBits(buf)
	atHourBoundary := candidate.Minute == 0

	mismatch := reported != st.Time.IsDST
	accepted := !mismatch ||
		(st.DSTAnnounce && atHourBoundary) ||
		(st.OldErr && st.InitMin == 0)

	if !accepted {
		return DSTJump, st.Time.IsDST
	}

	if st.DSTAnnounce && atHourBoundary && mismatch {
		st.DSTAnnounce = false
		st.DSTCount = 0
		st.MinuteCount = 0
		return DSTDone, reported
	}
	return DSTOK, reported
}

// dstFromBits reads bit 17 (current DST state) into a calendar.DST value.
// Bit 18 (the state being transitioned to or from) is carried in the frame
// for receivers that want to pre-announce the post-transition state; this
// decoder only needs the current-state bit to track st.Time.IsDST.
func dstFromBits(buf [61]sampler.BitValue) calendar.DST {
	if bitA(buf[17]) == 1 {
		return calendar.Summer
	}
	return calendar.Winter
}

// decodeLeap evaluates the leap-second bookkeeping. minute is the freshly
// decoded minute-of-hour field (not the second-within-minute index).
func (d *TimeDecoder) decodeLeap(buf [61]sampler.BitValue, minlen, minute int, res *DTResult) LeapStatus {
	if minute == 0 {
		return LeapDone
	}
	switch {
	case minlen == 60:
		res.MinuteLength = MinuteShort
		res.ErrFlags |= ErrLeap
		return LeapNone
	case minlen == 61 && bitA(buf[17]) == 1:
		return LeapOne
	case minlen == 61:
		res.ErrFlags |= ErrLeap
		res.MinuteLength = MinuteLong
		return LeapNone
	default:
		return LeapNone
	}
}
