package cms

import (
	"time"

	multierror "github.com/hashicorp/go-multierror"
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics records API request counts and latencies. A nil *Metrics is valid
// and records nothing.
type Metrics struct {
	requestsTotal   *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
}

// NewMetrics creates the client metrics and registers them with reg.
func NewMetrics(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		requestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "spacetraveling",
				Subsystem: "cms",
				Name:      "requests_total",
				Help:      "Content API requests by operation and outcome.",
			},
			[]string{"op", "outcome"},
		),
		requestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "spacetraveling",
				Subsystem: "cms",
				Name:      "request_duration_seconds",
				Help:      "Content API request latency.",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"op"},
		),
	}

	var err error
	if registerErr := reg.Register(m.requestsTotal); registerErr != nil {
		err = multierror.Append(err, registerErr)
	}
	if registerErr := reg.Register(m.requestDuration); registerErr != nil {
		err = multierror.Append(err, registerErr)
	}
	if err != nil {
		return nil, err
	}
	return m, nil
}

func (m *Metrics) observe(op, outcome string, d time.Duration) {
	if m == nil {
		return
	}
	m.requestsTotal.WithLabelValues(op, outcome).Inc()
	m.requestDuration.WithLabelValues(op).Observe(d.Seconds())
}
