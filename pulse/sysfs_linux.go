//go:build linux

package pulse

import (
	"fmt"
	"io"
	"os"
	"strconv"
	"time"
)

// SysfsSource reads a GPIO pin through the Linux sysfs interface:
// /sys/class/gpio/export, .../gpioN/direction and .../gpioN/value. Each call
// to Read rewinds the value file with Seek before reading, since sysfs
// requires a fresh read position to observe the current level (see
// periph.io/x/host/v3/sysfs.Pin.Read, which this follows closely).
type SysfsSource struct {
	pin        int
	activeHigh bool

	value *os.File
}

const gpioRoot = "/sys/class/gpio"

// OpenSysfs exports pin (if not already exported) and configures it as an
// input. activeHigh controls whether a logical '1' on the wire reads as
// High or Low.
func OpenSysfs(pin int, activeHigh bool) (*SysfsSource, error) {
	dir := fmt.Sprintf("%s/gpio%d", gpioRoot, pin)

	if _, err := os.Stat(dir); os.IsNotExist(err) {
		export, err := os.OpenFile(gpioRoot+"/export", os.O_WRONLY, 0)
		if err != nil {
			return nil, fmt.Errorf("pulse: open gpio export: %w", err)
		}
		_, werr := export.WriteString(strconv.Itoa(pin))
		export.Close()
		if werr != nil {
			return nil, fmt.Errorf("pulse: export pin %d: %w", pin, werr)
		}

		// Exporting is synchronous but udev permission propagation is
		// not; poll briefly rather than failing on the common race.
		deadline := time.Now().Add(2 * time.Second)
		for {
			if _, err := os.Stat(dir); err == nil {
				break
			}
			if time.Now().After(deadline) {
				return nil, fmt.Errorf("pulse: gpio%d never appeared under sysfs", pin)
			}
			time.Sleep(10 * time.Millisecond)
		}
	}

	if err := os.WriteFile(dir+"/direction", []byte("in"), 0); err != nil {
		return nil, fmt.Errorf("pulse: set gpio%d direction: %w", pin, err)
	}

	value, err := os.OpenFile(dir+"/value", os.O_RDONLY, 0)
	if err != nil {
		return nil, fmt.Errorf("pulse: open gpio%d value: %w", pin, err)
	}

	return &SysfsSource{pin: pin, activeHigh: activeHigh, value: value}, nil
}

// Read implements Source.
func (s *SysfsSource) Read() (Level, error) {
	if _, err := s.value.Seek(0, io.SeekStart); err != nil {
		return Low, fmt.Errorf("%w: %v", ErrFault, err)
	}
	var buf [1]byte
	if _, err := s.value.Read(buf[:]); err != nil {
		return Low, fmt.Errorf("%w: %v", ErrFault, err)
	}

	high := buf[0] == '1'
	if !s.activeHigh {
		high = !high
	}
	if high {
		return High, nil
	}
	return Low, nil
}

// Close implements Source.
func (s *SysfsSource) Close() error {
	return s.value.Close()
}
