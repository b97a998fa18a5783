package ringbuffer

import "errors"

// Operation-time error kinds, per spec.md §6/§7.
var (
	// ErrInitTimeout is returned when the 500ms lazy-init deadline
	// (spec.md §4.2.2) elapses without observing stateReady.
	ErrInitTimeout = errors.New("ringbuffer: timed out waiting for initialization")

	// ErrAllocationFailed is returned when a writer exhausts its
	// 10-attempt slot-reservation budget (spec.md §4.2.3).
	ErrAllocationFailed = errors.New("ringbuffer: failed to allocate a slot")

	// ErrNoFresh means no slot held a value within the expiry horizon
	// (spec.md §4.2.4). It is informational, not an error condition.
	ErrNoFresh = errors.New("ringbuffer: no fresh value available")

	// ErrSegmentVanished means the segment was unlinked (and possibly
	// recreated at different dimensions) since this handle last
	// attached (spec.md §4.2.6, §7).
	ErrSegmentVanished = errors.New("ringbuffer: segment vanished")

	// ErrDimensionMismatch means the caller's expected element_size or
	// buf_num does not match what is authoritatively stored in an
	// existing segment's header (spec.md invariant 5).
	ErrDimensionMismatch = errors.New("ringbuffer: element_size/buf_num mismatch with existing segment")
)
