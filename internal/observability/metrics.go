// Package observability provides prometheus collectors and OpenTelemetry tracing.
package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// RedisErrors counts redis errors by command name.
	RedisErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "parley_redis_errors_total",
		Help: "Total number of redis errors by command",
	}, []string{"command"})

	// ActiveSockets is the gauge of currently open websocket connections.
	ActiveSockets = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "parley_websocket_connections",
		Help: "Number of active WebSocket connections",
	})

	// SocketEvents counts inbound websocket events by type.
	SocketEvents = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "parley_websocket_events_total",
		Help: "Total inbound WebSocket events by type",
	}, []string{"event"})

	// SocketBackpressureDrops counts messages dropped due to slow consumers.
	SocketBackpressureDrops = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "parley_websocket_backpressure_drops_total",
		Help: "Total WebSocket frames dropped due to backpressure",
	}, []string{"reason"})

	// MessagesSent counts persisted messages by content type.
	MessagesSent = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "parley_messages_sent_total",
		Help: "Total messages persisted by content type",
	}, []string{"content_type"})

	// DeliveryUnitsEnqueued counts delivery units appended to the stream.
	DeliveryUnitsEnqueued = promauto.NewCounter(prometheus.CounterOpts{
		Name: "parley_delivery_units_enqueued_total",
		Help: "Total delivery units appended to the delivery stream",
	})

	// DeliveryUnitsProcessed counts processed delivery units by outcome.
	DeliveryUnitsProcessed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "parley_delivery_units_processed_total",
		Help: "Total delivery units processed by outcome",
	}, []string{"outcome"})

	// DeliveryRetries counts redeliveries claimed from the stream.
	DeliveryRetries = promauto.NewCounter(prometheus.CounterOpts{
		Name: "parley_delivery_retries_total",
		Help: "Total delivery units reclaimed for retry",
	})

	// DeliveryDeadLetters counts units moved to the dead-letter stream.
	DeliveryDeadLetters = promauto.NewCounter(prometheus.CounterOpts{
		Name: "parley_delivery_dead_letters_total",
		Help: "Total delivery units moved to the dead-letter stream",
	})

	// BridgePublishErrors counts pub/sub publish failures by channel.
	BridgePublishErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "parley_bridge_publish_errors_total",
		Help: "Total pub/sub publish failures by channel",
	}, []string{"channel"})

	// RateLimitRejections counts rate limited operations by bucket.
	RateLimitRejections = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "parley_ratelimit_rejections_total",
		Help: "Total operations rejected by the rate limiter",
	}, []string{"bucket"})
)
