//go:build freebsd

package pulse

import "fmt"

// Open returns the live Source for this platform: the /dev/gpioc ioctl
// interface, defaulting iodev to 0 when unset.
func Open(iodev *int, pin int, activeHigh bool) (Source, error) {
	dev := 0
	if iodev != nil {
		dev = *iodev
	}
	src, err := OpenGPIOC(dev, pin, activeHigh)
	if err != nil {
		return nil, fmt.Errorf("pulse: %w", err)
	}
	return src, nil
}
