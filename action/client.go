package action

import (
	"sync/atomic"
	"time"

	"github.com/pkg/errors"
	"github.com/shmipc-go/shmipc/facade"
)

// Client submits goals against a topic's ".goal"/".feedback"/".result"
// triple and tracks the single most recently submitted goal's id.
type Client[TGoal, TFeedback, TResult any] struct {
	seq       uint64
	currentID uint64

	goalPub     *facade.Publisher[envelope[TGoal]]
	feedbackSub *facade.Subscriber[envelope[TFeedback]]
	resultSub   *facade.Subscriber[envelope[TResult]]
}

// NewClient constructs a client for topic. The goal publisher is
// established eagerly; the feedback and result subscribers attach
// lazily.
func NewClient[TGoal, TFeedback, TResult any](topic string, opts ...facade.Option) (*Client[TGoal, TFeedback, TResult], error) {
	goalPub, err := facade.NewPublisher[envelope[TGoal]](topic+".goal", opts...)
	if err != nil {
		return nil, errors.Wrapf(err, "action: construct client for %q", topic)
	}
	feedbackSub, err := facade.NewSubscriber[envelope[TFeedback]](topic+".feedback", opts...)
	if err != nil {
		goalPub.Close()
		return nil, errors.Wrapf(err, "action: construct client for %q", topic)
	}
	resultSub, err := facade.NewSubscriber[envelope[TResult]](topic+".result", opts...)
	if err != nil {
		goalPub.Close()
		feedbackSub.Close()
		return nil, errors.Wrapf(err, "action: construct client for %q", topic)
	}

	return &Client[TGoal, TFeedback, TResult]{
		goalPub:     goalPub,
		feedbackSub: feedbackSub,
		resultSub:   resultSub,
	}, nil
}

// SendGoal publishes goal and returns the id future Feedback/Result
// calls will match against.
func (c *Client[TGoal, TFeedback, TResult]) SendGoal(goal TGoal) (uint64, error) {
	id := atomic.AddUint64(&c.seq, 1)
	if err := c.goalPub.Publish(envelope[TGoal]{GoalID: id, Payload: goal}); err != nil {
		return 0, errors.Wrap(err, "action: publish goal")
	}
	atomic.StoreUint64(&c.currentID, id)
	return id, nil
}

// Feedback returns the freshest feedback update for the most recently
// sent goal, waiting up to timeout for one to appear. Feedback tagged
// with a different goal id (stale, from a goal this client already
// moved past, or from another client sharing the topic) is treated the
// same as no feedback at all.
func (c *Client[TGoal, TFeedback, TResult]) Feedback(timeout time.Duration) (TFeedback, error) {
	var zero TFeedback
	want := atomic.LoadUint64(&c.currentID)

	c.feedbackSub.WaitFor(timeout)
	fb, err := c.feedbackSub.Read()
	if err != nil {
		return zero, errors.Wrap(ErrNoFeedback, err.Error())
	}
	if fb.GoalID != want {
		return zero, ErrNoFeedback
	}
	return fb.Payload, nil
}

// attachPollInterval bounds how long Result sleeps between WaitFor
// attempts while the result topic has no segment yet: facade.Subscriber
// .WaitFor returns false immediately (it never blocks) when unattached,
// which would otherwise look identical to a genuine timeout.
const attachPollInterval = 20 * time.Millisecond

// Result blocks until a result matching the most recently sent goal's
// id arrives or timeout elapses. A Server may not exist yet when Result
// starts (see NewClient); Result keeps retrying attachment until its
// own deadline, not until the result subscriber's first WaitFor
// attempt.
func (c *Client[TGoal, TFeedback, TResult]) Result(timeout time.Duration) (TResult, error) {
	var zero TResult
	want := atomic.LoadUint64(&c.currentID)

	deadline := time.Now().Add(timeout)
	for {
		// Read before waiting: a result published before WaitFor starts
		// raises no broadcast that WaitFor could still observe.
		if res, err := c.resultSub.Read(); err == nil && res.GoalID == want {
			return res.Payload, nil
		}

		remaining := time.Until(deadline)
		if remaining <= 0 {
			return zero, ErrTimeout
		}
		if c.resultSub.WaitFor(remaining) {
			continue
		}

		// See attachPollInterval: false does not mean the deadline
		// passed, only that this attempt saw no blockable attachment.
		time.Sleep(min(attachPollInterval, time.Until(deadline)))
	}
}

// Close releases all three segment mappings.
func (c *Client[TGoal, TFeedback, TResult]) Close() error {
	err1 := c.goalPub.Close()
	err2 := c.feedbackSub.Close()
	err3 := c.resultSub.Close()
	for _, err := range []error{err1, err2, err3} {
		if err != nil {
			return err
		}
	}
	return nil
}
