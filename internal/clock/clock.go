// Package clock provides the monotonic-raw microsecond timestamp used
// to stamp ring buffer slots and to measure wait/init deadlines.
package clock

import (
	"time"

	"golang.org/x/sys/unix"
)

// NowMicros returns the current value of CLOCK_MONOTONIC_RAW in
// microseconds. It is immune to NTP slew and leap-second adjustment,
// which matters because slot timestamps must be monotonically
// non-decreasing for the lifetime of a segment (spec invariant 2).
func NowMicros() uint64 {
	var ts unix.Timespec
	if err := unix.ClockGettime(unix.CLOCK_MONOTONIC_RAW, &ts); err != nil {
		// CLOCK_MONOTONIC_RAW is present on every Linux this library
		// targets; a failure here means the kernel ABI changed under us.
		panic("clock: CLOCK_MONOTONIC_RAW unavailable: " + err.Error())
	}
	return uint64(ts.Sec)*1_000_000 + uint64(ts.Nsec)/1_000
}

// MicrosToDuration converts a microsecond count (e.g. an expiry horizon
// or a wait timeout) to a time.Duration.
func MicrosToDuration(us uint64) time.Duration {
	return time.Duration(us) * time.Microsecond
}
