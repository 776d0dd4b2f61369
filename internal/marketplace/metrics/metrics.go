package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Metrics struct {
	OrdersSubmitted  *prometheus.CounterVec
	OrdersCancelled  prometheus.Counter
	OrdersExpired    prometheus.Counter
	TradesMatched    prometheus.Counter
	FillVolume       prometheus.Counter
	RestingOrders    prometheus.Gauge
	IdempotentReplay prometheus.Counter
}

func New() *Metrics {
	return &Metrics{
		OrdersSubmitted: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "knowton_marketplace_orders_submitted_total",
			Help: "Total orders accepted by the matching engine",
		}, []string{"side", "type"}),
		OrdersCancelled: promauto.NewCounter(prometheus.CounterOpts{
			Name: "knowton_marketplace_orders_cancelled_total",
			Help: "Total resting orders cancelled by their owner",
		}),
		OrdersExpired: promauto.NewCounter(prometheus.CounterOpts{
			Name: "knowton_marketplace_orders_expired_total",
			Help: "Total resting orders removed by expiry",
		}),
		TradesMatched: promauto.NewCounter(prometheus.CounterOpts{
			Name: "knowton_marketplace_trades_matched_total",
			Help: "Total trades produced by matching",
		}),
		FillVolume: promauto.NewCounter(prometheus.CounterOpts{
			Name: "knowton_marketplace_fill_volume_wei",
			Help: "Cumulative traded volume in wei (approximate above 2^53)",
		}),
		RestingOrders: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "knowton_marketplace_resting_orders",
			Help: "Current number of resting orders across all books",
		}),
		IdempotentReplay: promauto.NewCounter(prometheus.CounterOpts{
			Name: "knowton_marketplace_idempotent_replays_total",
			Help: "Order submissions deduplicated by idempotency key",
		}),
	}
}
