package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	OutboxProcessed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "outbox_entries_processed_total",
		Help: "Outbox entries delivered and marked processed.",
	})
	OutboxRetried = promauto.NewCounter(prometheus.CounterOpts{
		Name: "outbox_entries_retried_total",
		Help: "Outbox delivery failures requeued for another attempt.",
	})
	OutboxDeadLettered = promauto.NewCounter(prometheus.CounterOpts{
		Name: "outbox_entries_dead_lettered_total",
		Help: "Outbox entries that exhausted retries and are held for inspection.",
	})
	DispatchFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "dispatch_handler_failures_total",
		Help: "Synchronous dispatch handler failures by handler name.",
	}, []string{"handler"})
	RateLimitRejections = promauto.NewCounter(prometheus.CounterOpts{
		Name: "http_rate_limit_rejections_total",
		Help: "Requests rejected by the per-client rate limiter.",
	})
)
