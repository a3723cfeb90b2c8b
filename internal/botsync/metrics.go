package botsync

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/push"
)

const (
	outcomeSuccess = "success"
	outcomeError   = "error"
)

// Metrics holds the sync collectors on a private registry so several syncers
// (and tests) never collide on the global one.
type Metrics struct {
	registry    *prometheus.Registry
	remoteCalls *prometheus.CounterVec
	planFlows   *prometheus.GaugeVec
	duration    prometheus.Histogram
	lastSuccess prometheus.Gauge
}

func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		remoteCalls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "botsync",
			Name:      "remote_calls_total",
			Help:      "Studio API calls by operation and outcome.",
		}, []string{"operation", "outcome"}),
		planFlows: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "botsync",
			Name:      "plan_flows",
			Help:      "Flows in the most recent plan by action.",
		}, []string{"action"}),
		duration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "botsync",
			Name:      "sync_duration_seconds",
			Help:      "Wall time of sync runs.",
			Buckets:   prometheus.DefBuckets,
		}),
		lastSuccess: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "botsync",
			Name:      "last_success_timestamp_seconds",
			Help:      "Unix time of the last successful sync.",
		}),
	}
	m.registry.MustRegister(m.remoteCalls, m.planFlows, m.duration, m.lastSuccess)
	return m
}

func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

func (m *Metrics) observeCall(op string, err error) {
	outcome := outcomeSuccess
	if err != nil {
		outcome = outcomeError
	}
	m.remoteCalls.WithLabelValues(op, outcome).Inc()
}

func (m *Metrics) observePlan(plan Plan) {
	m.planFlows.WithLabelValues("delete").Set(float64(len(plan.ToDelete)))
	m.planFlows.WithLabelValues("update").Set(float64(len(plan.ToUpdate)))
	m.planFlows.WithLabelValues("create").Set(float64(len(plan.ToCreate)))
}

func (m *Metrics) observeSync(started time.Time, err error) {
	m.duration.Observe(time.Since(started).Seconds())
	if err == nil {
		m.lastSuccess.SetToCurrentTime()
	}
}

// Push sends the registry to a Prometheus Pushgateway under job.
func (m *Metrics) Push(ctx context.Context, gatewayURL, job string) error {
	return push.New(gatewayURL, job).Gatherer(m.registry).PushContext(ctx)
}
