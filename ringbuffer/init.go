package ringbuffer

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v5"
)

const (
	initSpinInterval = time.Millisecond
	initDeadline     = 500 * time.Millisecond
)

var errNotReadyYet = errors.New("ringbuffer: init not ready yet")

// ensureInitialized implements the three-state CAS gate of spec.md
// §4.2.2. Any handle — publisher or subscriber, creator or attacher —
// calls this after mapping the segment; exactly one caller across all
// processes observes the UNINIT->IN_PROGRESS transition and does the
// one-time work (zeroing the mutex/cond words, writing element_size and
// buf_num, zeroing every slot timestamp) before flipping to READY.
// Everyone else spins with a 1ms backoff up to a 500ms total deadline.
func ensureInitialized(l layout) error {
	h := l.header()

	if atomic.CompareAndSwapUint32(&h.initialized, stateUninit, stateInProgress) {
		atomic.StoreUint32(&h.mutexWord, 0)
		atomic.StoreUint32(&h.condWord, 0)
		atomic.StoreUint64(&h.elementSize, l.elementSize)
		atomic.StoreUint64(&h.bufNum, l.bufNum)
		for i := uint64(0); i < l.bufNum; i++ {
			l.timestamp(i).Store(0)
		}
		atomic.StoreUint32(&h.initialized, stateReady)
		return nil
	}

	_, err := backoff.Retry(context.Background(), func() (struct{}, error) {
		if atomic.LoadUint32(&h.initialized) == stateReady {
			return struct{}{}, nil
		}
		return struct{}{}, errNotReadyYet
	},
		backoff.WithBackOff(backoff.NewConstantBackOff(initSpinInterval)),
		backoff.WithMaxElapsedTime(initDeadline),
	)
	if err != nil {
		return ErrInitTimeout
	}
	return nil
}

// readDimensions waits (bounded, as above) for the header to become
// ready, then returns the authoritative element_size/buf_num that the
// creator wrote — used by attachers that did not themselves create the
// segment and must discover its dimensions (spec.md §4.2.1: "Readers
// never pass dimensions at attach time").
func readDimensions(base *header) (elementSize, bufNum uint64, err error) {
	_, err = backoff.Retry(context.Background(), func() (struct{}, error) {
		if atomic.LoadUint32(&base.initialized) == stateReady {
			return struct{}{}, nil
		}
		return struct{}{}, errNotReadyYet
	},
		backoff.WithBackOff(backoff.NewConstantBackOff(initSpinInterval)),
		backoff.WithMaxElapsedTime(initDeadline),
	)
	if err != nil {
		return 0, 0, ErrInitTimeout
	}
	return atomic.LoadUint64(&base.elementSize), atomic.LoadUint64(&base.bufNum), nil
}
