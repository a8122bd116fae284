// Command nplpi receives the UK's MSF 60 kHz time signal live over a GPIO
// pin, decodes it, and optionally sets the host clock.
package main

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/pflag"

	"github.com/rene0/nplpi/calendar"
	"github.com/rene0/nplpi/clock"
	"github.com/rene0/nplpi/config"
	"github.com/rene0/nplpi/decoder"
	"github.com/rene0/nplpi/display"
	"github.com/rene0/nplpi/framer"
	"github.com/rene0/nplpi/logcodec"
	"github.com/rene0/nplpi/mainloop"
	"github.com/rene0/nplpi/pulse"
	"github.com/rene0/nplpi/sampler"
)

var cmdLog = log.New(os.Stderr, filepath.Base(os.Args[0])+": ", 0)

var (
	configFlag   = pflag.StringP("config", "c", "", "path to the hardware configuration `file` (required)")
	logFlag      = pflag.StringP("log", "l", "", "path to a session log `file` to append to (optional)")
	setClockFlag = pflag.Bool("setclock", true, "attempt to set the host clock once decoding is steady")
	timeFmtFlag  = pflag.String("time-format", "%Y-%m-%d %H:%M", "strftime pattern for displayed timestamps")
)

func main() {
	pflag.Parse()
	if *configFlag == "" {
		cmdLog.Fatal("-config is required")
	}

	cfg, err := config.Load(*configFlag)
	if err != nil {
		cmdLog.Fatal(exitMessage(err))
	}

	src, err := pulse.Open(cfg.IODev, cfg.Pin, cfg.ActiveHigh)
	if err != nil {
		cmdLog.Fatal(err)
	}
	defer src.Close()

	var logWriter *logcodec.Writer
	if *logFlag != "" {
		f, err := os.OpenFile(*logFlag, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			cmdLog.Fatal(err)
		}
		defer f.Close()
		logWriter, err = logcodec.NewWriter(f)
		if err != nil {
			cmdLog.Fatal(err)
		}
	}

	renderer, err := display.NewRenderer(os.Stdout, *timeFmtFlag)
	if err != nil {
		cmdLog.Fatal(err)
	}

	fr := framer.New()
	grabber := mainloop.NewLiveGrabber(src, cfg.Freq, fr)
	if logWriter != nil {
		grabber.LogBit = func(marker byte) {
			if werr := logWriter.WriteGuard(marker); werr != nil {
				cmdLog.Print(werr)
			}
		}
	}

	seed := seedFromHostClock()
	dec := decoder.New(decoder.NewState(seed))

	var setter clock.Setter
	if *setClockFlag {
		setter = clock.SystemSetter{}
	}

	ml := mainloop.New(grabber, fr, dec, setter, wireHooks(renderer, logWriter))

	if err := ml.Run(func() {
		if logWriter != nil {
			logWriter.Flush()
		}
	}); err != nil {
		cmdLog.Fatal(err)
	}
}

func wireHooks(renderer *display.Renderer, logWriter *logcodec.Writer) mainloop.Hooks {
	return mainloop.Hooks{
		DisplayBit: func(bitpos int, v sampler.BitValue, hw sampler.HwStatus) {
			renderer.Bit(bitpos, v, hw)
			if logWriter != nil {
				if hw != sampler.HwOK {
					logWriter.WriteFault(hw)
				} else {
					logWriter.WriteBit(v)
				}
			}
		},
		DisplayMinute: func(res decoder.DTResult) {
			renderer.Minute(res)
			if logWriter != nil {
				logWriter.WriteBoundary()
			}
		},
		DisplayTime: renderer.Time,
		DisplayLongMinute: func(accMinLen int64) {
			renderer.LongMinute(accMinLen)
		},
		ProcessInput: func(mlr *mainloop.MLResult) {
			mlr.SetTime = *setClockFlag
		},
		ProcessSetClockResult: func(r clock.Result) {
			cmdLog.Printf("clock set: %s", r)
		},
	}
}

func seedFromHostClock() calendar.BrokenDownTime {
	now := time.Now().UTC()
	wday := int(now.Weekday())
	if wday == 0 {
		wday = 7
	}
	return calendar.BrokenDownTime{
		Year:   now.Year(),
		Month:  int(now.Month()),
		MDay:   now.Day(),
		WDay:   wday,
		Hour:   now.Hour(),
		Minute: now.Minute(),
		IsDST:  calendar.Unknown,
	}
}

func exitMessage(err error) string {
	var cfgErr *config.Error
	if e, ok := err.(*config.Error); ok {
		cfgErr = e
		return fmt.Sprintf("%s error: %v", cfgErr.Category, cfgErr.Err)
	}
	return err.Error()
}
