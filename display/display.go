// Package display renders bit activity, minute summaries and time updates
// as pure sinks (spec.md component C9): they never drive control flow,
// only format what MainLoop hands them.
package display

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/lestrrat-go/strftime"
	"github.com/mattn/go-colorable"
	"github.com/mattn/go-isatty"

	"github.com/rene0/nplpi/calendar"
	"github.com/rene0/nplpi/decoder"
	"github.com/rene0/nplpi/sampler"
)

// ANSI SGR codes for the small fixed palette this renderer needs: status
// colours for clean/dirty fields and hardware faults. ansi256's public API
// renders true-colour pixel blocks (as used for the periph-extra screen
// device) rather than named text colours, so it doesn't fit a log-line
// renderer; these are hand-written standard codes instead.
const (
	colorReset  = "\x1b[0m"
	colorGreen  = "\x1b[32m"
	colorRed    = "\x1b[31m"
	colorYellow = "\x1b[33m"
)

// Renderer writes to w, colourising when w is a terminal.
type Renderer struct {
	w        io.Writer
	colorize bool
	ts       *strftime.Strftime
}

// NewRenderer wraps w for colour-safe writes (translating ANSI codes on
// Windows consoles via go-colorable; passthrough elsewhere) and compiles
// timeFormat, a strftime pattern used for the timestamp prefix of Time
// output; LongMinute prints no timestamp. An empty timeFormat disables the
// prefix.
func NewRenderer(w io.Writer, timeFormat string) (*Renderer, error) {
	var ts *strftime.Strftime
	if timeFormat != "" {
		var err error
		ts, err = strftime.New(timeFormat)
		if err != nil {
			return nil, fmt.Errorf("display: %w", err)
		}
	}

	out := w
	colorize := false
	if f, ok := w.(*os.File); ok {
		colorize = isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
		if colorize {
			out = colorable.NewColorable(f)
		}
	}
	return &Renderer{w: out, colorize: colorize, ts: ts}, nil
}

func (r *Renderer) color(code string) string {
	if !r.colorize {
		return ""
	}
	return code
}

func (r *Renderer) reset() string {
	if !r.colorize {
		return ""
	}
	return colorReset
}

// Bit renders one second's decoded symbol, colourised by hardware status.
func (r *Renderer) Bit(bitpos int, v sampler.BitValue, hw sampler.HwStatus) {
	c := colorGreen
	if hw != sampler.HwOK {
		c = colorYellow
	}
	fmt.Fprintf(r.w, "%s%s%s", r.color(c), v, r.reset())
}

// Minute renders a completed minute's field statuses and flags.
func (r *Renderer) Minute(res decoder.DTResult) {
	fields := []struct {
		name   string
		status decoder.FieldStatus
	}{
		{"year", res.Year}, {"month", res.Month}, {"mday", res.MDay},
		{"wday", res.WDay}, {"hour", res.Hour}, {"minute", res.Minute},
	}
	fmt.Fprintf(r.w, "\nminute[len=%s", res.MinuteLength)
	for _, f := range fields {
		c := colorGreen
		if f.status != decoder.FieldOK {
			c = colorRed
		}
		fmt.Fprintf(r.w, " %s=%s%s%s", f.name, r.color(c), f.status, r.reset())
	}
	if res.DSTStatus != decoder.DSTOK {
		fmt.Fprintf(r.w, " dst=%s%s%s", r.color(colorRed), res.DSTStatus, r.reset())
	}
	if res.LeapStatus != decoder.LeapNone {
		fmt.Fprintf(r.w, " leap=%s", res.LeapStatus)
	}
	fmt.Fprintln(r.w, "]")
}

// Time renders the current broken-down time, optionally prefixed with a
// strftime-formatted timestamp.
func (r *Renderer) Time(t calendar.BrokenDownTime) {
	if r.ts != nil {
		loc := time.UTC
		if t.IsDST == calendar.Summer {
			loc = time.FixedZone("BST", 3600)
		}
		stamp := time.Date(t.Year, time.Month(t.Month), t.MDay, t.Hour, t.Minute, 0, 0, loc)
		var buf []byte
		buf, _ = r.ts.AppendFormat(buf, stamp)
		fmt.Fprintf(r.w, "%s ", buf)
	}
	fmt.Fprintf(r.w, "%04d-%02d-%02d %02d:%02d (%s)\n", t.Year, t.Month, t.MDay, t.Hour, t.Minute, t.IsDST)
}

// LongMinute renders the too-long-minute banner. accMinLen is the
// accumulated real-time duration (ms) of the overrun minute.
func (r *Renderer) LongMinute(accMinLen int64) {
	fmt.Fprintf(r.w, "%s*** minute too long (%dms) ***%s\n", r.color(colorRed), accMinLen, r.reset())
}

// NewSecond is a no-op sink for the per-second tick notification; some
// display modes use it to drive a progress indicator, this one does not.
func (r *Renderer) NewSecond() {}
