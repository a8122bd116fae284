// Command nplpi-analyze replays a previously recorded session log offline,
// decoding it the same way the live receiver would but never touching the
// host clock.
package main

import (
	"bufio"
	"io"
	"log"
	"os"
	"path/filepath"

	"github.com/spf13/pflag"

	"github.com/rene0/nplpi/calendar"
	"github.com/rene0/nplpi/decoder"
	"github.com/rene0/nplpi/display"
	"github.com/rene0/nplpi/framer"
	"github.com/rene0/nplpi/logcodec"
	"github.com/rene0/nplpi/mainloop"
)

var cmdLog = log.New(os.Stderr, filepath.Base(os.Args[0])+": ", 0)

var (
	logFlag     = pflag.StringP("log", "l", "", "path to the session log `file` to replay (required)")
	timeFmtFlag = pflag.String("time-format", "%Y-%m-%d %H:%M", "strftime pattern for displayed timestamps")
	seedYear    = pflag.Int("seed-year", 2000, "four-digit year to seed the decoder with before the first minute")
)

func main() {
	pflag.Parse()
	if *logFlag == "" {
		cmdLog.Fatal("-log is required")
	}

	f, err := os.Open(*logFlag)
	if err != nil {
		cmdLog.Fatal(err)
	}
	defer f.Close()

	r := bufio.NewReader(f)
	if err := skipSessionHeader(r); err != nil {
		cmdLog.Fatal(err)
	}

	renderer, err := display.NewRenderer(os.Stdout, *timeFmtFlag)
	if err != nil {
		cmdLog.Fatal(err)
	}

	fr := framer.New()
	grabber := mainloop.NewLogGrabber(logcodec.NewReader(r), fr)
	seed := calendar.BrokenDownTime{Year: *seedYear, Month: 1, MDay: 1, WDay: 6, IsDST: calendar.Unknown}
	dec := decoder.New(decoder.NewState(seed))

	ml := mainloop.New(grabber, fr, dec, nil, mainloop.Hooks{
		DisplayBit:        renderer.Bit,
		DisplayMinute:     renderer.Minute,
		DisplayTime:       renderer.Time,
		DisplayLongMinute: func(accMinLen int64) { renderer.LongMinute(accMinLen) },
	})

	if err := ml.Run(nil); err != nil {
		cmdLog.Fatal(err)
	}
}

// skipSessionHeader consumes logcodec.SessionHeader from the front of r if
// present; older logs captured before the header was introduced lack it, so
// its absence is not an error.
func skipSessionHeader(r *bufio.Reader) error {
	peek, err := r.Peek(len(logcodec.SessionHeader))
	if err != nil {
		if err == io.EOF {
			return nil
		}
		return err
	}
	if string(peek) == logcodec.SessionHeader {
		_, err := r.Discard(len(logcodec.SessionHeader))
		return err
	}
	return nil
}
