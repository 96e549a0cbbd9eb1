package syslatency

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/xerrors"
)

const metricsNamespace = "syslatency"

// Metrics tracks the health of a Consumer. It does not aggregate latencies.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	events       prometheus.Counter
	lostSamples  *prometheus.CounterVec
	decodeErrors prometheus.Counter
}

// NewMetrics creates the consumer metrics and registers them with reg.
func NewMetrics(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		events: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "events_total",
			Help:      "Number of events decoded from the probe.",
		}),
		lostSamples: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "lost_samples_total",
			Help:      "Number of records dropped by the probe because the per-CPU buffer was full.",
		}, []string{"cpu"}),
		decodeErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "decode_errors_total",
			Help:      "Number of records that could not be decoded.",
		}),
	}

	for _, c := range []prometheus.Collector{m.events, m.lostSamples, m.decodeErrors} {
		err := reg.Register(c)
		if err != nil {
			return nil, xerrors.Errorf("register metric: %w", err)
		}
	}

	return m, nil
}

func (m *Metrics) event() {
	if m == nil {
		return
	}
	m.events.Inc()
}

func (m *Metrics) lost(cpu int, count uint64) {
	if m == nil {
		return
	}
	m.lostSamples.WithLabelValues(strconv.Itoa(cpu)).Add(float64(count))
}

func (m *Metrics) decodeError() {
	if m == nil {
		return
	}
	m.decodeErrors.Inc()
}
