package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// MQ 消费延迟（毫秒）
	MQConsumeLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "mq_consume_latency_ms",
			Help:    "MQ message consumption latency in milliseconds",
			Buckets: prometheus.ExponentialBuckets(10, 2, 10), // 10ms to ~10s
		},
		[]string{"routing_key", "queue"},
	)

	// HTTP 请求延迟（秒）
	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 12), // 1ms to ~4s
		},
		[]string{"method", "path", "status"},
	)

	// 慢查询计数
	SlowQueryCount = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "db_slow_query_count",
			Help: "Total number of SQL statements slower than the configured threshold",
		},
		[]string{"statement"},
	)

	// 通知投递结果
	NotificationDeliveryCount = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "notification_delivery_count",
			Help: "Notification delivery attempts by kind and outcome",
		},
		[]string{"kind", "status"}, // kind: welcome, new_listing; status: sent, failed, skipped
	)

	// 每次 fan-out 匹配到的订阅数
	FanoutSize = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "alert_fanout_size",
			Help:    "Number of matched alerts per property creation",
			Buckets: prometheus.ExponentialBuckets(1, 2, 10),
		},
	)

	// 房源写操作计数
	PropertyMutationCount = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "property_mutation_count",
			Help: "Property create/update/delete operations",
		},
		[]string{"operation", "status"},
	)
)

// RecordMQConsumeLatency 记录 MQ 消费延迟
func RecordMQConsumeLatency(routingKey, queue string, duration time.Duration) {
	MQConsumeLatency.WithLabelValues(routingKey, queue).Observe(float64(duration.Milliseconds()))
}

// RecordHTTPRequestDuration 记录 HTTP 请求延迟
func RecordHTTPRequestDuration(method, path, status string, duration time.Duration) {
	HTTPRequestDuration.WithLabelValues(method, path, status).Observe(duration.Seconds())
}

// IncrementSlowQuery 记录一次慢查询
func IncrementSlowQuery(statement string, _ time.Duration) {
	SlowQueryCount.WithLabelValues(statement).Inc()
}

// IncrementNotificationDelivery 记录一次通知投递
func IncrementNotificationDelivery(kind, status string) {
	NotificationDeliveryCount.WithLabelValues(kind, status).Inc()
}

// ObserveFanoutSize 记录 fan-out 规模
func ObserveFanoutSize(n int) {
	FanoutSize.Observe(float64(n))
}

// IncrementPropertyMutation 记录房源写操作
func IncrementPropertyMutation(operation, status string) {
	PropertyMutationCount.WithLabelValues(operation, status).Inc()
}
