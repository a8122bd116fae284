//go:build freebsd

package clock

import (
	"time"

	"golang.org/x/sys/unix"

	"github.com/rene0/nplpi/calendar"
)

// SystemSetter commits decoded time to the FreeBSD host clock via
// settimeofday(2), the same syscall family `golang.org/x/sys/unix` exposes
// for the FreeBSD GPIO ioctls used elsewhere in this module.
type SystemSetter struct{}

// Set commits t to the host clock. MSF carries no seconds field, so the
// host clock's seconds and sub-second fraction are left untouched; the
// caller (MainLoop) only calls Set right at a bit boundary, when the
// host's second is already aligned to the broadcast's.
func (SystemSetter) Set(t calendar.BrokenDownTime) error {
	loc := time.UTC
	if t.IsDST == calendar.Summer {
		loc = time.FixedZone("BST", 3600)
	}
	now := time.Now()
	target := time.Date(t.Year, time.Month(t.Month), t.MDay, t.Hour, t.Minute, now.Second(), now.Nanosecond(), loc)

	tv := unix.NsecToTimeval(target.UnixNano())
	return unix.Settimeofday(&tv)
}
