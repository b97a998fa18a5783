package action

import "errors"

// ErrTimeout is returned by Client.Result when no matching result is
// observed before the caller's deadline.
var ErrTimeout = errors.New("action: timed out waiting for result")

// ErrNoFeedback is returned by Client.Feedback when no feedback for the
// current goal has been published within the caller's poll window. It
// is informational, like ringbuffer.ErrNoFresh, not a failure.
var ErrNoFeedback = errors.New("action: no feedback available yet")
