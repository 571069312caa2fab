package ledgermetrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/smallbiznis/feeledger/internal/feeledger/domain"
)

const namespace = "feeledger"

// Gauges holds the snapshot series for ledger entries.
type Gauges struct {
	entries     *prometheus.GaugeVec
	outstanding *prometheus.GaugeVec
}

// NewGauges registers the snapshot gauges on registry.
func NewGauges(registry *prometheus.Registry) (*Gauges, error) {
	g := &Gauges{
		entries: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "ledger_entries",
			Help:      "Number of ledger entries by payment status.",
		}, []string{"status"}),
		outstanding: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "ledger_outstanding",
			Help:      "Outstanding amount still due by payment status.",
		}, []string{"status"}),
	}
	if registry == nil {
		return g, nil
	}
	if err := registry.Register(g.entries); err != nil {
		return nil, err
	}
	if err := registry.Register(g.outstanding); err != nil {
		return nil, err
	}
	return g, nil
}

// Update replaces the gauge values with totals. Statuses absent from totals report zero.
func (g *Gauges) Update(totals []domain.StatusTotal) {
	if g == nil {
		return
	}
	seen := make(map[domain.Status]domain.StatusTotal, len(totals))
	for _, total := range totals {
		if !total.Status.IsValid() {
			continue
		}
		seen[total.Status] = total
	}

	for _, status := range []domain.Status{domain.StatusUnpaid, domain.StatusPartial, domain.StatusPaid} {
		total := seen[status]
		outstanding, _ := total.Outstanding.Float64()
		if outstanding < 0 {
			outstanding = 0
		}
		g.entries.WithLabelValues(string(status)).Set(float64(total.Count))
		g.outstanding.WithLabelValues(string(status)).Set(outstanding)
	}
}
