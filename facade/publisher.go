// Package facade is the typed scalar/vector wrapper over ringbuffer
// (spec.md §4.3): stateless beyond construction-time config, computing
// required bytes for T's size and the configured slot count, and
// returning values by copy. It is the layer spec.md explicitly permits
// to log and to destroy/recreate a segment (for variable-length
// elements, see vector.go) — the core itself never does either.
package facade

import (
	"unsafe"

	"github.com/pkg/errors"
	"github.com/shmipc-go/shmipc/ringbuffer"
	"go.uber.org/zap"
)

// Publisher publishes values of a fixed, trivially-copyable type T to a
// named topic.
type Publisher[T any] struct {
	rb       *ringbuffer.RingBuffer
	logger   *zap.Logger
	metrics  metricsRecorder
	elemSize uint64
}

// metricsRecorder is the subset of *metrics.Recorder the facade uses;
// declared locally so publisher.go/subscriber.go don't need to import
// the concrete type twice for readability — both still hold the same
// *metrics.Recorder under the hood via config.
type metricsRecorder = interface {
	PublishOK(string)
	PublishDropped(string)
	ReadOK(string)
	ReadNoFresh(string)
	WaitTimeout(string)
}

// NewPublisher constructs a publisher for topic, asserting at
// construction — not at first publish — that T is trivially copyable
// and naturally aligned (spec.md §4.3). It establishes the segment
// eagerly, creating it if absent.
func NewPublisher[T any](topic string, opts ...Option) (*Publisher[T], error) {
	if err := assertTriviallyCopyable[T](); err != nil {
		return nil, err
	}

	cfg := defaultConfig()
	for _, o := range opts {
		o(&cfg)
	}

	var zero T
	elemSize := uint64(unsafe.Sizeof(zero))

	rb, err := ringbuffer.New(topic, elemSize, cfg.bufNum, cfg.perm)
	if err != nil {
		return nil, errors.Wrapf(err, "facade: construct publisher for %q", topic)
	}

	return &Publisher[T]{
		rb:       rb,
		logger:   cfg.logger,
		metrics:  cfg.metrics,
		elemSize: elemSize,
	}, nil
}

// Publish writes v's raw bytes into the oldest slot. If the 10-attempt
// slot-allocation budget is exhausted (spec.md §4.2.3), the publish is
// dropped: this is logged at Warn and reported to the caller as a
// wrapped ringbuffer.ErrAllocationFailed, but it is not treated as
// fatal by the facade itself — callers are free to ignore it.
func (p *Publisher[T]) Publish(v T) error {
	buf := unsafe.Slice((*byte)(unsafe.Pointer(&v)), p.elemSize)

	if err := p.rb.Publish(buf); err != nil {
		if errors.Is(err, ringbuffer.ErrAllocationFailed) {
			p.logger.Warn("shmipc: publish dropped, allocation budget exhausted",
				zap.String("topic", p.rb.Name()))
			p.metrics.PublishDropped(p.rb.Name())
			return errors.Wrapf(err, "facade: publish to %q", p.rb.Name())
		}
		return errors.Wrapf(err, "facade: publish to %q", p.rb.Name())
	}

	p.metrics.PublishOK(p.rb.Name())
	return nil
}

// Topic returns the segment name this publisher writes to.
func (p *Publisher[T]) Topic() string { return p.rb.Name() }

// Close unmaps the segment without unlinking it.
func (p *Publisher[T]) Close() error { return p.rb.Close() }
