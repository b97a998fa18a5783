package reqrep

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"github.com/shmipc-go/shmipc/facade"
)

// Handler processes a request and produces a response.
type Handler[TReq, TRes any] func(TReq) TRes

// pollInterval bounds how long Serve blocks between checking ctx.Done,
// independent of whether a request has arrived.
const pollInterval = 200 * time.Millisecond

// Server answers correlated requests on a topic's ".req"/".rep" pair.
type Server[TReq, TRes any] struct {
	sub     *facade.Subscriber[envelope[TReq]]
	pub     *facade.Publisher[envelope[TRes]]
	lastSeq uint64
	haveSeq bool
}

// NewServer constructs a server for topic. The reply publisher is
// established eagerly; the request subscriber attaches lazily.
func NewServer[TReq, TRes any](topic string, opts ...facade.Option) (*Server[TReq, TRes], error) {
	sub, err := facade.NewSubscriber[envelope[TReq]](topic+".req", opts...)
	if err != nil {
		return nil, errors.Wrapf(err, "reqrep: construct server for %q", topic)
	}
	pub, err := facade.NewPublisher[envelope[TRes]](topic+".rep", opts...)
	if err != nil {
		sub.Close()
		return nil, errors.Wrapf(err, "reqrep: construct server for %q", topic)
	}
	return &Server[TReq, TRes]{sub: sub, pub: pub}, nil
}

// Serve reads requests and dispatches them to handler until ctx is
// canceled. A request already answered in a previous iteration (the
// same sequence number observed again — the only signal a lock-free
// newest-wins topic gives for "nothing new happened") is skipped
// without re-invoking handler.
func (s *Server[TReq, TRes]) Serve(ctx context.Context, handler Handler[TReq, TRes]) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		// A request published before this Server attached, or while the
		// handler was busy, raises no further broadcast, so Read runs
		// after every WaitFor, woken or not.
		woke := s.sub.WaitFor(pollInterval)

		req, err := s.sub.Read()
		if err != nil {
			if !woke {
				// WaitFor returns at once while the request topic has no
				// segment yet; pause so that case does not spin.
				time.Sleep(attachPollInterval)
			}
			continue
		}
		if s.haveSeq && req.Seq == s.lastSeq {
			continue
		}
		s.lastSeq = req.Seq
		s.haveSeq = true

		rep := handler(req.Payload)
		if err := s.pub.Publish(envelope[TRes]{Seq: req.Seq, Payload: rep}); err != nil {
			return errors.Wrap(err, "reqrep: publish reply")
		}
	}
}

// Close releases both the request and reply segment mappings.
func (s *Server[TReq, TRes]) Close() error {
	err1 := s.sub.Close()
	err2 := s.pub.Close()
	if err1 != nil {
		return err1
	}
	return err2
}
