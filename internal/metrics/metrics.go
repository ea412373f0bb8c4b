package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Throughput metrics - Track pipeline volume
var (
	BroadcastsCreated = promauto.NewCounter(prometheus.CounterOpts{
		Name: "tradecast_broadcasts_created_total",
		Help: "Total number of broadcasts fanned out",
	})

	ConfirmationsCreated = promauto.NewCounter(prometheus.CounterOpts{
		Name: "tradecast_confirmations_created_total",
		Help: "Total number of confirmation rows created by fan-out",
	})

	ConfirmationsDecided = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tradecast_confirmations_decided_total",
			Help: "Total number of confirmation decisions by resulting status",
		},
		[]string{"status"},
	)

	DeliveriesSent = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tradecast_deliveries_total",
			Help: "Total number of delivery attempts by outcome",
		},
		[]string{"outcome"},
	)
)

// Gas estimation metrics
var (
	GasCacheHits = promauto.NewCounter(prometheus.CounterOpts{
		Name: "tradecast_gas_cache_hits_total",
		Help: "Gas estimate cache hits",
	})

	GasCacheMisses = promauto.NewCounter(prometheus.CounterOpts{
		Name: "tradecast_gas_cache_misses_total",
		Help: "Gas estimate cache misses",
	})

	GasFallbacks = promauto.NewCounter(prometheus.CounterOpts{
		Name: "tradecast_gas_fallbacks_total",
		Help: "Gas estimations served by the conservative fallback",
	})
)

// State metrics - Track current system state
var (
	ConnectedRecipients = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "tradecast_connected_recipients",
		Help: "Number of live push connections",
	})

	DeliveryQueueDepth = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "tradecast_delivery_queue_depth",
		Help: "Number of queued delivery records",
	})

	FailedDeliveries = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "tradecast_failed_deliveries",
		Help: "Number of failed delivery records awaiting retry",
	})
)

// Reaper metrics
var (
	ExpiredConfirmations = promauto.NewCounter(prometheus.CounterOpts{
		Name: "tradecast_expired_confirmations_total",
		Help: "PENDING confirmations flipped to REJECTED by the expiry sweep",
	})

	ExpiredSubscriptions = promauto.NewCounter(prometheus.CounterOpts{
		Name: "tradecast_expired_subscriptions_total",
		Help: "Active subscriptions deactivated by the expiry sweep",
	})
)

// Error metrics - Track failures by component
var (
	ErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tradecast_errors_total",
			Help: "Total number of errors by component",
		},
		[]string{"component"},
	)
)
