package ipcsync

import (
	"syscall"
	"time"
	"unsafe"

	"golang.org/x/sys/unix"
)

// futexWait blocks while *addr == expect, waking early if another
// process/thread calls futexWake on the same address. A relative
// timeout of nil blocks indefinitely. Returns false only on a genuine
// timeout; a value mismatch (EAGAIN) or interrupt (EINTR) is reported
// as "woken" so the caller re-checks its predicate, matching the
// futex(2) contract that spurious wakeups are normal.
func futexWait(addr *uint32, expect uint32, timeout *time.Duration) bool {
	var ts *unix.Timespec
	if timeout != nil {
		t := unix.NsecToTimespec(timeout.Nanoseconds())
		ts = &t
	}

	// No FUTEX_PRIVATE_FLAG: private futexes are keyed by (mm_struct,
	// address) and only ever wake waiters in the same process. This word
	// lives in a segment mapped into independent processes (spec.md §5),
	// so it must use the process-shared futex operations throughout.
	_, _, errno := unix.Syscall6(
		unix.SYS_FUTEX,
		uintptr(unsafe.Pointer(addr)),
		uintptr(unix.FUTEX_WAIT),
		uintptr(expect),
		uintptr(unsafe.Pointer(ts)),
		0, 0,
	)

	switch errno {
	case 0, syscall.EAGAIN, syscall.EINTR:
		return true
	case syscall.ETIMEDOUT:
		return false
	default:
		// Unexpected errno: treat conservatively as "re-check", never
		// as a hang. The caller's predicate loop is always safe to spin.
		return true
	}
}

// futexWake wakes up to n waiters blocked on addr via futexWait.
func futexWake(addr *uint32, n int) {
	unix.Syscall6(
		unix.SYS_FUTEX,
		uintptr(unsafe.Pointer(addr)),
		uintptr(unix.FUTEX_WAKE),
		uintptr(n),
		0, 0, 0,
	)
}
