// Package ringbuffer is the core of shmipc (spec.md §2): a lock-
// protected, condition-variable-signalled, timestamped multi-slot ring
// buffer placed over a segment.Segment. It is not a container — it is
// a coordination protocol over a fixed byte region, matching exactly
// one writer to each slot while letting any number of readers observe
// the freshest published value without ever taking a lock.
//
// A known limitation, carried over unchanged from spec.md §5: the
// mutex backing this protocol is not robust. A publisher that crashes
// while holding it wedges the topic until an administrator unlinks the
// segment. No robust-mutex fallback is implemented.
package ringbuffer

import (
	"fmt"
	"time"

	"github.com/shmipc-go/shmipc/internal/clock"
	"github.com/shmipc-go/shmipc/ipcsync"
	"github.com/shmipc-go/shmipc/segment"
)

const (
	reservedMarker     uint64 = 0
	allocMaxAttempts          = 10
	allocRetryInterval        = time.Millisecond
)

// RingBuffer is an attached handle to a ring-buffer segment. Multiple
// RingBuffer handles — in this process or others — may reference the
// same underlying segment at once.
type RingBuffer struct {
	seg    *segment.Segment
	layout layout
	mu     *ipcsync.Mutex
	cond   *ipcsync.Cond
}

// New eagerly establishes a ring-buffer segment sized for elementSize
// and bufNum, creating it if absent (spec.md §4.2.6: "Publishers...
// establish the segment eagerly at construction and surface failures").
// perm is applied only if this call wins the creation race; pass 0 for
// segment.DefaultPerm.
func New(name string, elementSize, bufNum uint64, perm uint32) (*RingBuffer, error) {
	if bufNum == 0 {
		return nil, fmt.Errorf("ringbuffer: buf_num must be > 0")
	}
	if elementSize == 0 {
		return nil, fmt.Errorf("ringbuffer: element_size must be > 0")
	}

	size := RequiredSize(elementSize, bufNum)
	seg, err := segment.OpenOrCreate(name, size, perm)
	if err != nil {
		return nil, err
	}

	l := newLayout(seg.Base(), elementSize, bufNum)
	if err := ensureInitialized(l); err != nil {
		seg.Close()
		return nil, err
	}

	h := l.header()
	if h.elementSize != elementSize || h.bufNum != bufNum {
		seg.Close()
		return nil, ErrDimensionMismatch
	}

	return &RingBuffer{
		seg:    seg,
		layout: l,
		mu:     ipcsync.MutexAt(&h.mutexWord),
		cond:   ipcsync.CondAt(&h.condWord),
	}, nil
}

// Open attaches to an existing ring-buffer segment without requiring
// the caller to already know its element_size/buf_num — the subscriber
// path (spec.md §4.2.1: "Readers never pass dimensions at attach time").
// Returns segment.ErrNotFound if the segment does not yet exist; per
// spec.md §4.2.6 that is the caller's cue to report NoFresh rather than
// a hard error.
func Open(name string) (*RingBuffer, error) {
	seg, err := segment.OpenReadWrite(name)
	if err != nil {
		return nil, err
	}

	h := (*header)(seg.Base())
	elementSize, bufNum, err := readDimensions(h)
	if err != nil {
		seg.Close()
		return nil, err
	}

	l := newLayout(seg.Base(), elementSize, bufNum)
	return &RingBuffer{
		seg:    seg,
		layout: l,
		mu:     ipcsync.MutexAt(&h.mutexWord),
		cond:   ipcsync.CondAt(&h.condWord),
	}, nil
}

// Close unmaps the segment. It never unlinks it (spec.md §4.1).
func (r *RingBuffer) Close() error {
	return r.seg.Close()
}

// Name returns the segment's rendezvous name.
func (r *RingBuffer) Name() string { return r.seg.Name() }

// ElementSize returns the fixed per-slot payload size discovered (or
// set) at attach time.
func (r *RingBuffer) ElementSize() uint64 { return r.layout.elementSize }

// BufNum returns the slot count discovered (or set) at attach time.
func (r *RingBuffer) BufNum() uint64 { return r.layout.bufNum }

// IsCreator reports whether this handle won the segment creation race.
func (r *RingBuffer) IsCreator() bool { return r.seg.IsCreator() }

// Stale reports whether the named segment has been unlinked and
// recreated since this handle attached (spec.md §4.2.6): r's own
// mapping stays readable either way, but no longer reflects the
// current segment once this is true. Returns segment.ErrNotFound if the
// name currently resolves to nothing (unlinked, not yet recreated).
func (r *RingBuffer) Stale() (bool, error) {
	return segment.Changed(r.seg)
}

// Publish writes payload — which must be exactly ElementSize() bytes —
// into the oldest slot and stamps it with the current monotonic-raw
// microsecond time, implementing the writer-side protocol of spec.md
// §4.2.3. Returns ErrAllocationFailed if no slot could be reserved
// within 10 attempts; per spec.md this is retriable/non-fatal and the
// facade layer, not this core, is responsible for logging it.
func (r *RingBuffer) Publish(payload []byte) error {
	if uint64(len(payload)) != r.layout.elementSize {
		return fmt.Errorf("ringbuffer: payload is %d bytes, want %d", len(payload), r.layout.elementSize)
	}

	// buf_num==1 has no second slot to tell "reserved by another writer"
	// apart from "never published" (see pickOldestLocked), so it cannot
	// use the reserve-then-release-then-copy protocol the N-slot case
	// uses below: two writers both observing conflict=false would then
	// copy into the same slot concurrently, tearing the payload. Per
	// spec.md §4.2.3 this case instead degenerates to last-writer-wins
	// with the mutex held across the entire reserve+copy+stamp sequence.
	if r.layout.bufNum == 1 {
		r.mu.Lock()
		defer r.mu.Unlock()
		copy(r.layout.slot(0), payload)
		r.layout.timestamp(0).Store(clock.NowMicros())
		r.cond.Broadcast()
		return nil
	}

	idx, err := r.reserveSlot()
	if err != nil {
		return err
	}

	// Slot is exclusively ours from here until we restamp it: no other
	// writer can pick it (its timestamp reads as the reserved marker),
	// and readers ignore reservedMarker-stamped slots outright.
	copy(r.layout.slot(idx), payload)

	r.mu.Lock()
	r.layout.timestamp(idx).Store(clock.NowMicros())
	r.cond.Broadcast()
	r.mu.Unlock()
	return nil
}

// reserveSlot implements spec.md §4.2.3 steps 1-2: scan for the oldest
// slot under the mutex, reserve it by writing the reserved marker, and
// — if the oldest candidate turns out to already be reserved by
// another in-flight writer — release the mutex, sleep 1ms, and retry,
// up to allocMaxAttempts times.
func (r *RingBuffer) reserveSlot() (uint64, error) {
	for attempt := 0; attempt < allocMaxAttempts; attempt++ {
		r.mu.Lock()
		idx, conflict := r.pickOldestLocked()
		if !conflict {
			r.layout.timestamp(idx).Store(reservedMarker)
			r.mu.Unlock()
			return idx, nil
		}
		r.mu.Unlock()
		time.Sleep(allocRetryInterval)
	}
	return 0, ErrAllocationFailed
}

// pickOldestLocked finds the slot with the smallest timestamp, ties
// broken by lowest index (spec.md §4.2.3's tie-break rule; with
// buf_num==1 this degenerates to last-writer-wins).
//
// A subtlety not spelled out by a single bit in the wire format: the
// reserved marker and "never published" both read as 0 on a slot's
// timestamp, so a 0 can mean either. We disambiguate using the rest of
// the buffer: if at least one other slot already holds a real
// (non-zero) timestamp, a 0 among the candidates means another writer
// has it reserved right now, not that the segment is still empty, so
// we report a conflict and let the caller retry. On a freshly
// initialized segment (every slot still 0) there is nothing to
// conflict with, so the tie-break proceeds normally and the very first
// publish always succeeds.
func (r *RingBuffer) pickOldestLocked() (idx uint64, conflict bool) {
	n := r.layout.bufNum

	oldestIdx := uint64(0)
	oldestTs := r.layout.timestamp(0).Load()
	anyPublished := oldestTs != reservedMarker

	for i := uint64(1); i < n; i++ {
		ts := r.layout.timestamp(i).Load()
		if ts != reservedMarker {
			anyPublished = true
		}
		if ts < oldestTs {
			oldestTs = ts
			oldestIdx = i
		}
	}

	if oldestTs == reservedMarker && anyPublished {
		return 0, true
	}
	return oldestIdx, false
}

// Read implements spec.md §4.2.4: without taking the mutex, scan every
// slot's timestamp for the largest non-zero value, reject it as stale
// if older than expiry, and copy the payload out by value. Returns
// ErrNoFresh if nothing is fresh enough — an informational result, not
// an error condition (spec.md §7).
func (r *RingBuffer) Read(expiry time.Duration) ([]byte, error) {
	n := r.layout.bufNum

	var (
		bestIdx uint64
		bestTs  uint64
		found   bool
	)
	for i := uint64(0); i < n; i++ {
		ts := r.layout.timestamp(i).Load()
		if ts == reservedMarker {
			continue
		}
		if !found || ts > bestTs {
			bestTs = ts
			bestIdx = i
			found = true
		}
	}
	if !found {
		return nil, ErrNoFresh
	}

	now := clock.NowMicros()
	horizonUs := uint64(expiry / time.Microsecond)
	if now > bestTs && now-bestTs > horizonUs {
		return nil, ErrNoFresh
	}

	src := r.layout.slot(bestIdx)
	out := make([]byte, len(src))
	copy(out, src)
	return out, nil
}

// WaitFor blocks until a publish is signalled or timeout elapses,
// implementing spec.md §4.2.5. Returns true on a signal — including a
// spurious wakeup the caller must be prepared to re-check by calling
// Read again — and false on timeout. There is no cancellation besides
// a bounded timeout (spec.md §5).
func (r *RingBuffer) WaitFor(timeout time.Duration) bool {
	r.mu.Lock()
	woke := r.cond.WaitTimeout(r.mu, timeout)
	r.mu.Unlock()
	return woke
}

// Unlink administratively removes the named segment, independent of
// any live handle (spec.md §4.1).
func Unlink(name string) error {
	return segment.Unlink(name)
}
