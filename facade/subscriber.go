package facade

import (
	"sync"
	"time"
	"unsafe"

	"github.com/pkg/errors"
	"github.com/shmipc-go/shmipc/ringbuffer"
	"github.com/shmipc-go/shmipc/segment"
	"go.uber.org/zap"
)

// Subscriber reads values of a fixed, trivially-copyable type T from a
// named topic. Unlike Publisher, it does not require the segment to
// exist at construction time: attachment is lazy and retried on every
// call, so a Subscriber can be created before its Publisher (spec.md
// §8 scenario "no publisher yet").
type Subscriber[T any] struct {
	mu      sync.Mutex
	topic   string
	expiry  time.Duration
	perm    uint32
	logger  *zap.Logger
	metrics metricsRecorder
	rb      *ringbuffer.RingBuffer
}

// NewSubscriber constructs a subscriber for topic. It does not attach
// to the segment yet; attachment happens lazily on first Read/WaitFor
// so that subscribers may start before any publisher does.
func NewSubscriber[T any](topic string, opts ...Option) (*Subscriber[T], error) {
	if err := assertTriviallyCopyable[T](); err != nil {
		return nil, err
	}

	cfg := defaultConfig()
	for _, o := range opts {
		o(&cfg)
	}

	return &Subscriber[T]{
		topic:   topic,
		expiry:  cfg.expiry,
		perm:    cfg.perm,
		logger:  cfg.logger,
		metrics: cfg.metrics,
	}, nil
}

// attachLocked attaches to the segment if not already attached. Called
// with mu held.
func (s *Subscriber[T]) attachLocked() error {
	if s.rb != nil {
		return nil
	}
	rb, err := ringbuffer.Open(s.topic)
	if err != nil {
		return errors.Wrapf(err, "facade: attach subscriber to %q", s.topic)
	}

	var zero T
	wantSize := uint64(unsafe.Sizeof(zero))
	if rb.ElementSize() != wantSize {
		rb.Close()
		return errors.Wrapf(ringbuffer.ErrDimensionMismatch,
			"facade: subscriber to %q expects element size %d, segment has %d",
			s.topic, wantSize, rb.ElementSize())
	}

	s.rb = rb
	return nil
}

// refreshLocked re-checks, if already attached, whether the segment has
// been unlinked and recreated since (spec.md §4.2.6: "if the segment
// has been unlinked and re-created, the subscriber must re-attach and
// re-read the header"), and transparently reattaches when so. Called
// with mu held, before every attachLocked.
//
// A recreated segment whose new dimensions no longer match T surfaces
// as ringbuffer.ErrSegmentVanished — that case is not transparently
// recoverable, since this Subscriber[T] cannot silently switch element
// types.
func (s *Subscriber[T]) refreshLocked() error {
	if s.rb == nil {
		return nil
	}

	stale, err := s.rb.Stale()
	if err != nil {
		if errors.Is(err, segment.ErrNotFound) {
			s.rb.Close()
			s.rb = nil
			return nil
		}
		return errors.Wrapf(err, "facade: check staleness of %q", s.topic)
	}
	if !stale {
		return nil
	}

	s.rb.Close()
	s.rb = nil

	if err := s.attachLocked(); err != nil {
		if errors.Is(err, segment.ErrNotFound) {
			// Unlinked and not yet recreated: treat the same as "no
			// segment yet", not a hard failure.
			return nil
		}
		if errors.Is(err, ringbuffer.ErrDimensionMismatch) {
			return errors.Wrapf(ringbuffer.ErrSegmentVanished,
				"facade: %q was recreated with incompatible dimensions", s.topic)
		}
		return err
	}
	return nil
}

// Read returns the freshest value published within the configured
// expiry horizon. A subscriber attached before any publisher has ever
// created the segment gets ringbuffer.ErrNoFresh, not a construction
// error (spec.md §7: "A subscriber started before any publisher
// returns NoFresh").
func (s *Subscriber[T]) Read() (T, error) {
	var zero T

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.refreshLocked(); err != nil {
		return zero, err
	}

	if err := s.attachLocked(); err != nil {
		if errors.Is(err, segment.ErrNotFound) {
			s.metrics.ReadNoFresh(s.topic)
			return zero, ringbuffer.ErrNoFresh
		}
		return zero, err
	}

	buf, err := s.rb.Read(s.expiry)
	if err != nil {
		if errors.Is(err, ringbuffer.ErrNoFresh) {
			s.logger.Debug("shmipc: read found no fresh value", zap.String("topic", s.topic))
			s.metrics.ReadNoFresh(s.topic)
		}
		return zero, errors.Wrapf(err, "facade: read from %q", s.topic)
	}

	var v T
	copy(unsafe.Slice((*byte)(unsafe.Pointer(&v)), len(buf)), buf)
	s.metrics.ReadOK(s.topic)
	return v, nil
}

// WaitFor blocks until a publish is broadcast or timeout elapses,
// returning whether it woke due to a broadcast. A Subscriber not yet
// attached to an existing segment returns false immediately rather
// than blocking, since there is no condition variable to wait on.
func (s *Subscriber[T]) WaitFor(timeout time.Duration) bool {
	s.mu.Lock()
	if err := s.refreshLocked(); err != nil {
		s.mu.Unlock()
		return false
	}
	if err := s.attachLocked(); err != nil {
		s.mu.Unlock()
		return false
	}
	rb := s.rb
	s.mu.Unlock()

	woke := rb.WaitFor(timeout)
	if !woke {
		s.metrics.WaitTimeout(s.topic)
	}
	return woke
}

// Reattach drops any current segment handle so the next Read/WaitFor
// attaches fresh. Read and WaitFor already do this automatically once
// they detect the segment was unlinked and recreated; Reattach exists
// for callers that want to force it explicitly.
func (s *Subscriber[T]) Reattach() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.rb == nil {
		return nil
	}
	err := s.rb.Close()
	s.rb = nil
	return err
}

// Topic returns the segment name this subscriber reads from.
func (s *Subscriber[T]) Topic() string { return s.topic }

// Close unmaps the segment, if attached, without unlinking it.
func (s *Subscriber[T]) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.rb == nil {
		return nil
	}
	err := s.rb.Close()
	s.rb = nil
	return err
}
