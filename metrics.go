package swift

import "github.com/prometheus/client_golang/prometheus"

// Metrics holds the prometheus collectors for one or more trees.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	hashOffers    *prometheus.CounterVec
	dataOffers    *prometheus.CounterVec
	completeBytes prometheus.Gauge
}

// Result label values.
const (
	resultAccepted = "accepted"
	resultRejected = "rejected"
	resultUnproven = "unproven"
)

// NewMetrics creates the tree collectors and registers them with reg.
// It panics if registration fails, like [prometheus.MustRegister].
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		hashOffers: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "swift",
			Name:      "hash_offers_total",
			Help:      "Hashes offered to the tree, by verification result.",
		}, []string{"result"}),
		dataOffers: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "swift",
			Name:      "data_offers_total",
			Help:      "Chunks offered to the tree, by verification result.",
		}, []string{"result"}),
		completeBytes: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "swift",
			Name:      "complete_bytes",
			Help:      "Verified bytes held by the most recently updated tree.",
		}),
	}

	reg.MustRegister(m.hashOffers, m.dataOffers, m.completeBytes)
	return m
}

func (m *Metrics) observeHash(result string) {
	if m == nil {
		return
	}
	m.hashOffers.WithLabelValues(result).Inc()
}

func (m *Metrics) observeData(result string) {
	if m == nil {
		return
	}
	m.dataOffers.WithLabelValues(result).Inc()
}

func (m *Metrics) setComplete(n uint64) {
	if m == nil {
		return
	}
	m.completeBytes.Set(float64(n))
}
