// Package ipcsync implements a process-shared mutex and condition
// variable on top of Linux futexes. Both are a single uint32 word
// placed directly in shared memory: because futex(2) addresses
// physical/virtual memory rather than a named kernel object, no
// "process-shared" attribute is needed the way POSIX pthread mutexes
// require one — sharing the memory is sufficient.
//
// Neither primitive is robust: a process that dies while holding the
// Mutex leaves it locked forever. This matches spec.md's documented
// crash model (§5) and is a known, accepted limitation, not a bug.
package ipcsync

import (
	"unsafe"

	"sync/atomic"
)

const (
	mutexUnlocked uint32 = 0
	mutexLocked   uint32 = 1
	mutexWaiters  uint32 = 2
)

// Mutex is a futex word. It is always used through a pointer obtained
// from shared memory via MutexAt — never copied, since copying the word
// would copy the lock state, not share it.
type Mutex uint32

// MutexAt overlays a Mutex onto an existing shared-memory word. The
// caller is responsible for zeroing the word exactly once (see
// ringbuffer/init.go's lazy-init CAS gate) before any process treats it
// as an initialized mutex.
func MutexAt(word *uint32) *Mutex {
	return (*Mutex)(unsafe.Pointer(word))
}

func (m *Mutex) word() *uint32 { return (*uint32)(unsafe.Pointer(m)) }

// Lock blocks until the mutex is acquired. There is no timeout: callers
// that need a bounded wait use Cond.WaitTimeout instead, per spec.md §5
// ("Blocking occurs only in wait_for... and inside the short critical
// sections of the writer").
func (m *Mutex) Lock() {
	w := m.word()
	if atomic.CompareAndSwapUint32(w, mutexUnlocked, mutexLocked) {
		return
	}
	for atomic.SwapUint32(w, mutexWaiters) != mutexUnlocked {
		futexWait(w, mutexWaiters, nil)
	}
}

// Unlock releases the mutex, waking exactly one waiter if any were
// recorded.
func (m *Mutex) Unlock() {
	w := m.word()
	if atomic.SwapUint32(w, mutexUnlocked) == mutexWaiters {
		futexWake(w, 1)
	}
}
