//go:build !linux && !freebsd

package clock

import (
	"errors"

	"github.com/rene0/nplpi/calendar"
)

// SystemSetter is unimplemented on this platform: nplpi-readpin and
// nplpi-analyze never call it, and nplpi's live mode is only exercised on
// Linux and FreeBSD GPIO hosts today.
type SystemSetter struct{}

func (SystemSetter) Set(calendar.BrokenDownTime) error {
	return errors.New("clock: SystemSetter not implemented on this platform")
}
