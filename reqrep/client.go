package reqrep

import (
	"sync/atomic"
	"time"

	"github.com/pkg/errors"
	"github.com/shmipc-go/shmipc/facade"
)

// Client issues correlated requests against a topic's ".req"/".rep"
// pair.
type Client[TReq, TRes any] struct {
	seq uint64
	pub *facade.Publisher[envelope[TReq]]
	sub *facade.Subscriber[envelope[TRes]]
}

// NewClient constructs a client for topic. The request publisher is
// established eagerly; the reply subscriber attaches lazily, so a
// Client may be constructed before any Server exists.
func NewClient[TReq, TRes any](topic string, opts ...facade.Option) (*Client[TReq, TRes], error) {
	pub, err := facade.NewPublisher[envelope[TReq]](topic+".req", opts...)
	if err != nil {
		return nil, errors.Wrapf(err, "reqrep: construct client for %q", topic)
	}
	sub, err := facade.NewSubscriber[envelope[TRes]](topic+".rep", opts...)
	if err != nil {
		pub.Close()
		return nil, errors.Wrapf(err, "reqrep: construct client for %q", topic)
	}
	return &Client[TReq, TRes]{pub: pub, sub: sub}, nil
}

// attachPollInterval bounds how long Call sleeps between WaitFor
// attempts while the reply topic has no segment yet: facade.Subscriber
// .WaitFor returns false immediately (it never blocks) when unattached,
// which would otherwise look identical to a genuine timeout.
const attachPollInterval = 20 * time.Millisecond

// Call publishes req and blocks until a matching reply arrives or
// timeout elapses. Replies carrying a stale or foreign sequence number
// are discarded and waited past rather than returned. A Server may not
// exist yet when Call starts (see NewClient); Call keeps retrying
// attachment until its own deadline, not until the reply subscriber's
// first WaitFor attempt.
func (c *Client[TReq, TRes]) Call(req TReq, timeout time.Duration) (TRes, error) {
	var zero TRes

	seq := atomic.AddUint64(&c.seq, 1)
	if err := c.pub.Publish(envelope[TReq]{Seq: seq, Payload: req}); err != nil {
		return zero, errors.Wrap(err, "reqrep: publish request")
	}

	deadline := time.Now().Add(timeout)
	for {
		// Read before waiting: a reply published before WaitFor starts
		// raises no broadcast that WaitFor could still observe.
		if rep, err := c.sub.Read(); err == nil && rep.Seq == seq {
			return rep.Payload, nil
		}

		remaining := time.Until(deadline)
		if remaining <= 0 {
			return zero, ErrTimeout
		}

		if c.sub.WaitFor(remaining) {
			continue
		}

		// WaitFor returning false does not by itself mean the deadline
		// passed: it also returns false instantly when the reply topic
		// isn't attached yet. Only the deadline check above ends the
		// wait; sleep briefly so an unattached topic doesn't busy-spin.
		time.Sleep(min(attachPollInterval, time.Until(deadline)))
	}
}

// Close releases both the request and reply segment mappings.
func (c *Client[TReq, TRes]) Close() error {
	err1 := c.pub.Close()
	err2 := c.sub.Close()
	if err1 != nil {
		return err1
	}
	return err2
}
