// Command nplpi-readpin probes the configured GPIO pin directly, printing
// one line per sample. It exists to verify wiring and polarity before
// running the full receiver.
package main

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/pflag"

	"github.com/rene0/nplpi/config"
	"github.com/rene0/nplpi/pulse"
)

var cmdLog = log.New(os.Stderr, filepath.Base(os.Args[0])+": ", 0)

var (
	configFlag = pflag.StringP("config", "c", "", "path to the hardware configuration `file` (required)")
	countFlag  = pflag.Int("count", 0, "number of samples to read before exiting, 0 for unbound")
	periodFlag = pflag.Duration("period", 100*time.Millisecond, "delay between samples")
)

func main() {
	pflag.Parse()
	if *configFlag == "" {
		cmdLog.Fatal("-config is required")
	}

	cfg, err := config.Load(*configFlag)
	if err != nil {
		var cfgErr *config.Error
		if e, ok := err.(*config.Error); ok {
			cfgErr = e
			cmdLog.Fatalf("%s error: %v", cfgErr.Category, cfgErr.Err)
		}
		cmdLog.Fatal(err)
	}

	src, err := pulse.Open(cfg.IODev, cfg.Pin, cfg.ActiveHigh)
	if err != nil {
		cmdLog.Fatal(err)
	}
	defer src.Close()

	for n := 0; *countFlag == 0 || n < *countFlag; n++ {
		level, err := src.Read()
		if err != nil {
			cmdLog.Print(err)
			continue
		}
		fmt.Printf("%s pin=%d level=%d\n", time.Now().Format(time.RFC3339Nano), cfg.Pin, level)
		time.Sleep(*periodFlag)
	}
}
