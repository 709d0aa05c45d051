package meter

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/ineyio/cyclequota"
)

// PrometheusMeter exports enforcement events as Prometheus metrics.
type PrometheusMeter struct {
	admissions *prometheus.CounterVec
	resets     prometheus.Counter
	consumed   *prometheus.GaugeVec
	limit      *prometheus.GaugeVec
}

var _ cyclequota.Meter = (*PrometheusMeter)(nil)

// NewPrometheusMeter registers the metrics with reg under the given
// namespace. If reg is nil, prometheus.DefaultRegisterer is used; if
// namespace is empty, "cyclequota" is used.
func NewPrometheusMeter(reg prometheus.Registerer, namespace string) *PrometheusMeter {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	if namespace == "" {
		namespace = "cyclequota"
	}
	factory := promauto.With(reg)

	return &PrometheusMeter{
		admissions: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "admissions_total",
				Help:      "Total number of admission checks by outcome",
			},
			[]string{"category", "result"},
		),

		resets: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "cycle_resets_total",
				Help:      "Total number of cycle resets",
			},
		),

		consumed: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "consumed",
				Help:      "Resource units consumed by a category in the current cycle",
			},
			[]string{"category"},
		),

		limit: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "limit",
				Help:      "Resource units a category may consume in the current cycle",
			},
			[]string{"category"},
		),
	}
}

func (m *PrometheusMeter) OnAdmission(e cyclequota.AdmissionEvent) {
	category := string(e.Category)

	switch {
	case !e.Constrained:
		m.admissions.WithLabelValues(category, "unconstrained").Inc()
		return
	case e.Admitted:
		m.admissions.WithLabelValues(category, "admitted").Inc()
	default:
		m.admissions.WithLabelValues(category, "rejected").Inc()
	}

	m.consumed.WithLabelValues(category).Set(float64(e.Consumed))
	m.limit.WithLabelValues(category).Set(float64(e.Limit))
}

func (m *PrometheusMeter) OnReset(cyclequota.ResetEvent) {
	m.resets.Inc()
	m.consumed.Reset()
	m.limit.Reset()
}
