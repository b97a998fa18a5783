package ipcsync

import (
	"sync/atomic"
	"time"
	"unsafe"
)

// Cond is a futex-backed condition variable: a sequence word that is
// bumped on every Signal/Broadcast. Waiters capture the current
// sequence, release the associated Mutex, block until the word changes
// (or a timeout elapses), then reacquire the Mutex before returning —
// the same shape as a pthread_cond_t, but placed in shared memory as a
// bare word rather than an opaque OS object.
//
// Like Mutex, a Cond must only be reached through CondAt over a shared
// memory word; copying a Cond value copies the sequence, not the
// waiters blocked on the original address.
type Cond uint32

// CondAt overlays a Cond onto an existing shared-memory word. As with
// MutexAt, the word must be zeroed exactly once by the lazy-init winner.
func CondAt(word *uint32) *Cond {
	return (*Cond)(unsafe.Pointer(word))
}

func (c *Cond) word() *uint32 { return (*uint32)(unsafe.Pointer(c)) }

// Wait releases mu, blocks until signaled, then reacquires mu. Like any
// condition variable, Wait may return on a spurious wakeup; callers
// must re-check their predicate in a loop (spec.md §4.2.5).
func (c *Cond) Wait(mu *Mutex) {
	c.WaitTimeout(mu, -1)
}

// WaitTimeout releases mu, blocks until signaled or timeout elapses,
// then reacquires mu. A negative timeout blocks indefinitely. Returns
// true if woken by a signal (including spuriously), false on timeout —
// exactly the boolean contract of spec.md's wait_for.
func (c *Cond) WaitTimeout(mu *Mutex, timeout time.Duration) bool {
	seq := atomic.LoadUint32(c.word())
	mu.Unlock()

	var woken bool
	if timeout < 0 {
		woken = futexWait(c.word(), seq, nil)
	} else {
		deadline := time.Now().Add(timeout)
		remaining := timeout
		for {
			woken = futexWait(c.word(), seq, &remaining)
			if atomic.LoadUint32(c.word()) != seq {
				woken = true
				break
			}
			remaining = time.Until(deadline)
			if remaining <= 0 {
				woken = false
				break
			}
		}
	}

	mu.Lock()
	return woken
}

// Signal wakes at most one waiter.
func (c *Cond) Signal() {
	atomic.AddUint32(c.word(), 1)
	futexWake(c.word(), 1)
}

// Broadcast wakes all current waiters.
func (c *Cond) Broadcast() {
	atomic.AddUint32(c.word(), 1)
	futexWake(c.word(), maxWaiters)
}

const maxWaiters = 1<<31 - 1
