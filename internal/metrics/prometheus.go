package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Prometheus exposes the supportability surface as prometheus
// collectors, served from the agent's /metrics endpoint.
type Prometheus struct {
	sent         *prometheus.CounterVec
	seen         *prometheus.CounterVec
	dropped      *prometheus.CounterVec
	apiCalls     prometheus.Counter
	sendDuration *prometheus.HistogramVec
}

func NewPrometheus(reg prometheus.Registerer) *Prometheus {
	p := &Prometheus{
		sent: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "canopy_log_events_sent_total",
			Help: "Log events delivered to the collector.",
		}, []string{"app"}),
		seen: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "canopy_log_events_seen_total",
			Help: "Log events offered to reservoirs, including evicted ones.",
		}, []string{"app"}),
		dropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "canopy_log_events_dropped_total",
			Help: "Log events lost to sampling or discarded batches.",
		}, []string{"app"}),
		apiCalls: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "canopy_record_log_event_calls_total",
			Help: "RecordLogEvent API invocations.",
		}),
		sendDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "canopy_harvest_send_duration_seconds",
			Help:    "Time spent transmitting one harvested batch.",
			Buckets: prometheus.DefBuckets,
		}, []string{"app"}),
	}
	reg.MustRegister(p.sent, p.seen, p.dropped, p.apiCalls, p.sendDuration)
	return p
}

func (p *Prometheus) RecordHarvest(appName string, sent int, seen int64, duration time.Duration) {
	p.sent.WithLabelValues(appName).Add(float64(sent))
	p.seen.WithLabelValues(appName).Add(float64(seen))
	p.sendDuration.WithLabelValues(appName).Observe(duration.Seconds())
}

func (p *Prometheus) RecordDropped(appName string, dropped int) {
	p.dropped.WithLabelValues(appName).Add(float64(dropped))
}

func (p *Prometheus) RecordAPICall() {
	p.apiCalls.Inc()
}
