package reqrep

import "errors"

// ErrTimeout is returned by Client.Call when no matching reply is
// observed before the caller's deadline.
var ErrTimeout = errors.New("reqrep: timed out waiting for reply")
