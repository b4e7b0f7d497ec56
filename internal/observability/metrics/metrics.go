// Package metrics registra los contadores Prometheus del servicio.
// Todo vive en el registry default y se expone en /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	HTTPRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "aspire_http_requests_total",
		Help: "HTTP requests by method, normalized path and status.",
	}, []string{"method", "path", "status"})

	HTTPDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "aspire_http_request_duration_seconds",
		Help:    "HTTP request latency by method and normalized path.",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path"})

	WebhooksReceived = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "aspire_webhooks_received_total",
		Help: "Webhooks recibidos por resultado de verificación (accepted, rejected, bypassed).",
	}, []string{"outcome"})

	EventsIngested = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "aspire_events_ingested_total",
		Help: "Financial events por resultado del insert (written, duplicate).",
	}, []string{"result"})

	SyncRuns = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "aspire_sync_runs_total",
		Help: "Sync runs por resultado (ok, error, locked).",
	}, []string{"outcome"})

	SyncPages = promauto.NewCounter(prometheus.CounterOpts{
		Name: "aspire_sync_pages_total",
		Help: "Páginas de transacciones procesadas.",
	})

	ReceiptsWritten = promauto.NewCounter(prometheus.CounterOpts{
		Name: "aspire_receipts_written_total",
		Help: "Recibos insertados en el ledger.",
	})

	ReceiptsSealed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "aspire_receipts_sealed_total",
		Help: "Recibos estampados con hash y firma.",
	})
)
