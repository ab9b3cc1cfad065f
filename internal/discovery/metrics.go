package discovery

import (
	"github.com/prometheus/client_golang/prometheus"

	"peerscan/internal/domain"
)

// Metrics counts probe and fetch outcomes by reason. A nil *Metrics is a no-op.
type Metrics struct {
	probes   *prometheus.CounterVec
	fetches  *prometheus.CounterVec
	duration *prometheus.HistogramVec
	peers    *prometheus.GaugeVec
}

// NewMetrics registers discovery collectors on reg
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		probes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "peerscan",
			Name:      "probe_results_total",
			Help:      "TCP reachability probes by outcome.",
		}, []string{"reason"}),
		fetches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "peerscan",
			Name:      "identity_results_total",
			Help:      "Identity fetches by outcome.",
		}, []string{"reason"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "peerscan",
			Name:      "discovery_duration_seconds",
			Help:      "Wall time of discovery calls.",
			Buckets:   []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
		}, []string{"operation"}),
		peers: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "peerscan",
			Name:      "discovered_peers",
			Help:      "Peers returned by the most recent discovery call.",
		}, []string{"operation"}),
	}
	reg.MustRegister(m.probes, m.fetches, m.duration, m.peers)
	return m
}

func (m *Metrics) observeProbes(results []domain.ProbeResult) {
	if m == nil {
		return
	}
	for _, r := range results {
		m.probes.WithLabelValues(string(r.Reason)).Inc()
	}
}

func (m *Metrics) observeFetches(results []domain.FetchResult) {
	if m == nil {
		return
	}
	for _, r := range results {
		m.fetches.WithLabelValues(string(r.Reason)).Inc()
	}
}

func (m *Metrics) observeRun(run domain.RunSummary, returned int) {
	if m == nil {
		return
	}
	op := string(run.Operation)
	m.duration.WithLabelValues(op).Observe(run.Duration.Seconds())
	m.peers.WithLabelValues(op).Set(float64(returned))
}
