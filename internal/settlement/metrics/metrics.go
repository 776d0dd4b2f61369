package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Metrics struct {
	SettlementsTotal *prometheus.CounterVec
	QueueDepth       prometheus.Gauge
}

func New() *Metrics {
	return &Metrics{
		SettlementsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "knowton_settlements_total",
			Help: "Trade settlements by outcome",
		}, []string{"outcome"}),
		QueueDepth: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "knowton_settlement_queue_depth",
			Help: "Trades waiting for on-chain settlement",
		}),
	}
}
