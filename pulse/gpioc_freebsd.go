//go:build freebsd

package pulse

import (
	"fmt"
	"os"
	"unsafe"

	"golang.org/x/sys/unix"
)

// FreeBSD /dev/gpioc<N> ioctl interface, from <sys/gpio.h>. Request numbers
// follow the _IOWR('G', nr, type) convention; constructed the same way the
// retrieval pack's gpioioctl package builds Linux's GPIO v2 ioctl numbers
// (periph.io/x/host/v3/gpioioctl), adapted here to FreeBSD's request layout.
const (
	gpioTypeBits = 'G'

	gpioSetConfigNr = 4
	gpioGetNr       = 11
)

// gpioPinConfig mirrors struct gpio_pin_config.
type gpioPinConfig struct {
	pin   uint32
	flags uint32
	name  [64]byte
}

// gpioReq mirrors struct gpio_req.
type gpioReq struct {
	pin   uint32
	value uint32
}

const (
	gpioPinInput = 1 << 0
)

func iowr(t byte, nr, size uintptr) uintptr {
	const iocIn, iocOut = 0x80000000, 0x40000000
	return iocIn | iocOut | (size << 16) | (uintptr(t) << 8) | nr
}

var (
	gpiosetconfig = iowr(gpioTypeBits, gpioSetConfigNr, unsafe.Sizeof(gpioPinConfig{}))
	gpioget       = iowr(gpioTypeBits, gpioGetNr, unsafe.Sizeof(gpioReq{}))
)

// GPIOCSource reads a GPIO pin through FreeBSD's /dev/gpioc<iodev> ioctl
// interface: GPIOSETCONFIG to select input mode, then GPIOGET per sample.
type GPIOCSource struct {
	pin        int
	activeHigh bool
	dev        *os.File
}

// OpenGPIOC opens /dev/gpioc<iodev> and configures pin as an input.
func OpenGPIOC(iodev, pin int, activeHigh bool) (*GPIOCSource, error) {
	dev, err := os.OpenFile(fmt.Sprintf("/dev/gpioc%d", iodev), os.O_RDWR, 0)
	if err != nil {
		return nil, fmt.Errorf("pulse: open gpioc%d: %w", iodev, err)
	}

	cfg := gpioPinConfig{pin: uint32(pin), flags: gpioPinInput}
	if err := ioctl(dev.Fd(), gpiosetconfig, unsafe.Pointer(&cfg)); err != nil {
		dev.Close()
		return nil, fmt.Errorf("pulse: GPIOSETCONFIG pin %d: %w", pin, err)
	}

	return &GPIOCSource{pin: pin, activeHigh: activeHigh, dev: dev}, nil
}

// Read implements Source.
func (s *GPIOCSource) Read() (Level, error) {
	req := gpioReq{pin: uint32(s.pin)}
	if err := ioctl(s.dev.Fd(), gpioget, unsafe.Pointer(&req)); err != nil {
		return Low, fmt.Errorf("%w: %v", ErrFault, err)
	}

	high := req.value != 0
	if !s.activeHigh {
		high = !high
	}
	if high {
		return High, nil
	}
	return Low, nil
}

// Close implements Source.
func (s *GPIOCSource) Close() error {
	return s.dev.Close()
}

func ioctl(fd uintptr, req uintptr, arg unsafe.Pointer) error {
	_, _, errno := unix.Syscall(unix.SYS_IOCTL, fd, req, uintptr(arg))
	if errno != 0 {
		return errno
	}
	return nil
}
