package action

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"github.com/shmipc-go/shmipc/facade"
)

// pollInterval bounds how long Serve blocks between checking ctx.Done.
const pollInterval = 200 * time.Millisecond

// FeedbackFunc is handed to a Handler so it can publish zero or more
// progress updates while it works.
type FeedbackFunc[TFeedback any] func(TFeedback) error

// Handler executes a goal, optionally publishing feedback as it goes,
// and returns the final result.
type Handler[TGoal, TFeedback, TResult any] func(goal TGoal, feedback FeedbackFunc[TFeedback]) TResult

// Server executes goals submitted on a topic's ".goal"/".feedback"/
// ".result" triple.
type Server[TGoal, TFeedback, TResult any] struct {
	goalSub     *facade.Subscriber[envelope[TGoal]]
	feedbackPub *facade.Publisher[envelope[TFeedback]]
	resultPub   *facade.Publisher[envelope[TResult]]
	lastSeen    uint64
	haveSeen    bool
}

// NewServer constructs a server for topic. The feedback and result
// publishers are established eagerly; the goal subscriber attaches
// lazily.
func NewServer[TGoal, TFeedback, TResult any](topic string, opts ...facade.Option) (*Server[TGoal, TFeedback, TResult], error) {
	goalSub, err := facade.NewSubscriber[envelope[TGoal]](topic+".goal", opts...)
	if err != nil {
		return nil, errors.Wrapf(err, "action: construct server for %q", topic)
	}
	feedbackPub, err := facade.NewPublisher[envelope[TFeedback]](topic+".feedback", opts...)
	if err != nil {
		goalSub.Close()
		return nil, errors.Wrapf(err, "action: construct server for %q", topic)
	}
	resultPub, err := facade.NewPublisher[envelope[TResult]](topic+".result", opts...)
	if err != nil {
		goalSub.Close()
		feedbackPub.Close()
		return nil, errors.Wrapf(err, "action: construct server for %q", topic)
	}

	return &Server[TGoal, TFeedback, TResult]{
		goalSub:     goalSub,
		feedbackPub: feedbackPub,
		resultPub:   resultPub,
	}, nil
}

// Serve reads goals and dispatches them to handler, one at a time and
// to completion, until ctx is canceled. A goal id already executed is
// skipped, the same "re-observed means nothing new" rule reqrep.Server
// uses.
func (s *Server[TGoal, TFeedback, TResult]) Serve(ctx context.Context, handler Handler[TGoal, TFeedback, TResult]) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		// A goal published before this Server attached, or while the
		// handler was busy, raises no further broadcast, so Read runs
		// after every WaitFor, woken or not.
		woke := s.goalSub.WaitFor(pollInterval)

		goal, err := s.goalSub.Read()
		if err != nil {
			if !woke {
				// WaitFor returns at once while the goal topic has no
				// segment yet; pause so that case does not spin.
				time.Sleep(attachPollInterval)
			}
			continue
		}
		if s.haveSeen && goal.GoalID == s.lastSeen {
			continue
		}
		s.lastSeen = goal.GoalID
		s.haveSeen = true

		id := goal.GoalID
		result := handler(goal.Payload, func(fb TFeedback) error {
			return s.feedbackPub.Publish(envelope[TFeedback]{GoalID: id, Payload: fb})
		})

		if err := s.resultPub.Publish(envelope[TResult]{GoalID: id, Payload: result}); err != nil {
			return errors.Wrap(err, "action: publish result")
		}
	}
}

// Close releases all three segment mappings.
func (s *Server[TGoal, TFeedback, TResult]) Close() error {
	err1 := s.goalSub.Close()
	err2 := s.feedbackPub.Close()
	err3 := s.resultPub.Close()
	for _, err := range []error{err1, err2, err3} {
		if err != nil {
			return err
		}
	}
	return nil
}
