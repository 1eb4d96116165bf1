package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// AttemptsTotal — попытки подписки по результату
	// (success, quota, auth, network, permanent, unknown).
	AttemptsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bulksub_attempts_total",
			Help: "Total number of subscribe attempts by result",
		},
		[]string{"result"},
	)

	// PausesTotal — переходы воркеров в паузу по причине (manual, quota).
	PausesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bulksub_pauses_total",
			Help: "Total number of worker pauses by reason",
		},
		[]string{"reason"},
	)

	// QuotaResetsTotal — items, возвращённые из QUOTA в PENDING.
	QuotaResetsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "bulksub_quota_resets_total",
			Help: "Total number of quota-errored items reset to pending",
		},
	)

	// ActiveWorkers — количество воркеров в реестре supervisor'а.
	ActiveWorkers = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "bulksub_active_workers",
			Help: "Number of run workers currently registered",
		},
	)

	// ControlCommandsTotal — команды управления, полученные из очереди, по действию и результату.
	ControlCommandsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bulksub_control_commands_total",
			Help: "Total number of control commands consumed from the queue",
		},
		[]string{"action", "status"},
	)

	// MQConnected — 1, пока AMQP соединение установлено.
	MQConnected = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "bulksub_mq_connected",
			Help: "Whether the RabbitMQ connection is up (1) or not (0)",
		},
	)

	// MQReconnectsTotal — успешные переподключения к RabbitMQ.
	MQReconnectsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "bulksub_mq_reconnects_total",
			Help: "Total number of successful RabbitMQ reconnects",
		},
	)

	// HTTPRequestsTotal — HTTP запросы API по маршруту и коду ответа.
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bulksub_http_requests_total",
			Help: "Total HTTP requests handled by the API",
		},
		[]string{"method", "route", "status"},
	)

	// HTTPRequestDuration — длительность HTTP запросов API.
	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "bulksub_http_request_duration_seconds",
			Help:    "HTTP request latency",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)
)
