package bot

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics метрики Prometheus для бота
type Metrics struct {
	MessagesProcessed    prometheus.Counter
	CommandsProcessed    *prometheus.CounterVec
	RateLimited          prometheus.Counter
	ErrorsTotal          prometheus.Counter
	UpdateProcessingTime prometheus.Histogram
}

// NewMetrics регистрирует метрики в reg (nil = default registry)
func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)

	return &Metrics{
		MessagesProcessed: factory.NewCounter(prometheus.CounterOpts{
			Name: "torch_bot_messages_processed_total",
			Help: "Total number of messages received",
		}),
		CommandsProcessed: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "torch_bot_commands_processed_total",
			Help: "Total number of commands handled",
		}, []string{"command"}),
		RateLimited: factory.NewCounter(prometheus.CounterOpts{
			Name: "torch_bot_rate_limited_total",
			Help: "Messages rejected by the per-chat throttle",
		}),
		ErrorsTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "torch_bot_errors_total",
			Help: "Send failures and recovered panics",
		}),
		UpdateProcessingTime: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "torch_bot_update_processing_time_seconds",
			Help:    "Time spent processing updates",
			Buckets: prometheus.DefBuckets,
		}),
	}
}
