// Package metrics provides optional Prometheus instrumentation for the
// facade layer. spec.md's Non-goals exclude cross-host communication,
// durable storage, total ordering, fair scheduling, auth, and dynamic
// schema — it says nothing against observability, so counters live
// here rather than being invented ad hoc per call site.
//
// Every method has a nil-receiver no-op form, so callers that don't
// want metrics can simply pass a nil *Recorder.
package metrics

import "github.com/prometheus/client_golang/prometheus"

// Recorder holds the counters shmipc's facade layer increments. The
// core (segment, ringbuffer) never touches this package directly —
// spec.md §7 is explicit that the core never logs or emits anything.
type Recorder struct {
	publishTotal   *prometheus.CounterVec
	publishDropped *prometheus.CounterVec
	readTotal      *prometheus.CounterVec
	readNoFresh    *prometheus.CounterVec
	waitTimeouts   *prometheus.CounterVec
	initRaceLosers *prometheus.CounterVec
}

// NewRecorder creates and registers the counter vectors against reg.
func NewRecorder(reg prometheus.Registerer) *Recorder {
	r := &Recorder{
		publishTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "shmipc", Name: "publish_total", Help: "Successful Publish calls by topic.",
		}, []string{"topic"}),
		publishDropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "shmipc", Name: "publish_dropped_total", Help: "Publishes dropped after exhausting the slot-allocation retry budget.",
		}, []string{"topic"}),
		readTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "shmipc", Name: "read_total", Help: "Successful Read calls by topic.",
		}, []string{"topic"}),
		readNoFresh: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "shmipc", Name: "read_no_fresh_total", Help: "Reads that returned NoFresh by topic.",
		}, []string{"topic"}),
		waitTimeouts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "shmipc", Name: "wait_timeouts_total", Help: "WaitFor calls that timed out by topic.",
		}, []string{"topic"}),
		initRaceLosers: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "shmipc", Name: "init_race_losers_total", Help: "Attachers that observed IN_PROGRESS during lazy init by topic.",
		}, []string{"topic"}),
	}
	for _, c := range []prometheus.Collector{
		r.publishTotal, r.publishDropped, r.readTotal, r.readNoFresh, r.waitTimeouts, r.initRaceLosers,
	} {
		reg.MustRegister(c)
	}
	return r
}

func (r *Recorder) PublishOK(topic string) {
	if r == nil {
		return
	}
	r.publishTotal.WithLabelValues(topic).Inc()
}

func (r *Recorder) PublishDropped(topic string) {
	if r == nil {
		return
	}
	r.publishDropped.WithLabelValues(topic).Inc()
}

func (r *Recorder) ReadOK(topic string) {
	if r == nil {
		return
	}
	r.readTotal.WithLabelValues(topic).Inc()
}

func (r *Recorder) ReadNoFresh(topic string) {
	if r == nil {
		return
	}
	r.readNoFresh.WithLabelValues(topic).Inc()
}

func (r *Recorder) WaitTimeout(topic string) {
	if r == nil {
		return
	}
	r.waitTimeouts.WithLabelValues(topic).Inc()
}

func (r *Recorder) InitRaceLoser(topic string) {
	if r == nil {
		return
	}
	r.initRaceLosers.WithLabelValues(topic).Inc()
}
