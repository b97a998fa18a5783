package facade

import (
	"time"

	"github.com/shmipc-go/shmipc/internal/metrics"
	"go.uber.org/zap"
)

// DefaultBufNum mirrors spec.md's §8 scenarios, which use small slot
// counts; 3 is also the spec's own recommended minimum for tolerating
// torn reads statistically (§4.2.4).
const DefaultBufNum = 3

// DefaultExpiry is spec.md §6's default expiry horizon: 2,000,000us.
const DefaultExpiry = 2 * time.Second

// DefaultPerm is spec.md §6's default creation permission.
const DefaultPerm = 0o666

type config struct {
	bufNum  uint64
	perm    uint32
	expiry  time.Duration
	logger  *zap.Logger
	metrics *metrics.Recorder
}

func defaultConfig() config {
	return config{
		bufNum: DefaultBufNum,
		perm:   DefaultPerm,
		expiry: DefaultExpiry,
		logger: zap.NewNop(),
	}
}

// Option configures a Publisher or Subscriber at construction.
type Option func(*config)

// WithBufNum overrides the slot count (publisher construction only;
// subscribers always discover buf_num from the segment header).
func WithBufNum(n uint64) Option {
	return func(c *config) { c.bufNum = n }
}

// WithPerm overrides the POSIX permission bits applied on segment
// creation (publisher construction only).
func WithPerm(perm uint32) Option {
	return func(c *config) { c.perm = perm }
}

// WithExpiry overrides a subscriber's expiry horizon (spec.md §4.2.4).
// Has no effect on a Publisher.
func WithExpiry(d time.Duration) Option {
	return func(c *config) { c.expiry = d }
}

// WithLogger attaches a zap logger. Publisher and Subscriber log
// publish drops and stale reads at Warn/Debug respectively;
// VectorPublisher logs only segment recreation at Info, and
// VectorSubscriber does not log. The core itself never logs
// (spec.md §7).
func WithLogger(l *zap.Logger) Option {
	return func(c *config) {
		if l != nil {
			c.logger = l
		}
	}
}

// WithMetrics attaches a Prometheus recorder. A nil recorder (the
// default) makes every metrics call a no-op.
func WithMetrics(m *metrics.Recorder) Option {
	return func(c *config) { c.metrics = m }
}
