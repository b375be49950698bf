package engine

import (
	"io"

	"github.com/VictoriaMetrics/metrics"
)

// engineMetrics holds the counters of one engine. Every engine owns its own
// set, so several engines in one process do not share numbers.
type engineMetrics struct {
	set *metrics.Set

	submittedSync  *metrics.Counter
	submittedAsync *metrics.Counter
	tableFull      *metrics.Counter
	sent           *metrics.Counter
	resolved       *metrics.Counter
	timedOut       *metrics.Counter
	sendFailed     *metrics.Counter
	encodeFailed   *metrics.Counter
	abandoned      *metrics.Counter
	stale          *metrics.Counter
	malformed      *metrics.Counter
	receiveErrors  *metrics.Counter
	eventsHandled  *metrics.Counter
	eventsDropped  *metrics.Counter
	stopped        *metrics.Counter
	callbackPanics *metrics.Counter

	roundTrip *metrics.Histogram
}

func newEngineMetrics(e *Engine) *engineMetrics {
	set := metrics.NewSet()
	m := &engineMetrics{
		set:            set,
		submittedSync:  set.NewCounter(`hrpc_requests_submitted_total{mode="sync"}`),
		submittedAsync: set.NewCounter(`hrpc_requests_submitted_total{mode="async"}`),
		tableFull:      set.NewCounter(`hrpc_requests_rejected_total{reason="table_full"}`),
		sent:           set.NewCounter(`hrpc_requests_sent_total`),
		resolved:       set.NewCounter(`hrpc_responses_total{result="resolved"}`),
		timedOut:       set.NewCounter(`hrpc_responses_total{result="timeout"}`),
		sendFailed:     set.NewCounter(`hrpc_responses_total{result="send_failed"}`),
		encodeFailed:   set.NewCounter(`hrpc_responses_total{result="encode_failed"}`),
		stopped:        set.NewCounter(`hrpc_responses_total{result="engine_stopped"}`),
		abandoned:      set.NewCounter(`hrpc_requests_abandoned_total`),
		stale:          set.NewCounter(`hrpc_inbound_dropped_total{reason="stale"}`),
		malformed:      set.NewCounter(`hrpc_inbound_dropped_total{reason="malformed"}`),
		receiveErrors:  set.NewCounter(`hrpc_receive_errors_total`),
		eventsHandled:  set.NewCounter(`hrpc_events_total{result="delivered"}`),
		eventsDropped:  set.NewCounter(`hrpc_events_total{result="unsubscribed"}`),
		callbackPanics: set.NewCounter(`hrpc_callback_panics_total`),
		roundTrip:      set.NewHistogram(`hrpc_round_trip_seconds`),
	}

	set.NewGauge(`hrpc_pending_requests{table="sync"}`, func() float64 {
		n, _ := e.registry.pending()
		return float64(n)
	})
	set.NewGauge(`hrpc_pending_requests{table="async"}`, func() float64 {
		_, n := e.registry.pending()
		return float64(n)
	})
	set.NewGauge(`hrpc_queue_length`, func() float64 {
		return float64(e.queueLen())
	})
	return m
}

// WriteMetrics writes the engine metrics in Prometheus text format to w
func (e *Engine) WriteMetrics(w io.Writer) {
	e.metrics.set.WritePrometheus(w)
}
