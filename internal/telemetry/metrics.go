// Package telemetry holds the Prometheus instruments shared across the service.
package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "attendance"

var (
	// ScansTotal counts scan outcomes by status (verified, duplicate, not_found, rejected).
	ScansTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "scans_total",
		Help:      "Scan attempts by outcome.",
	}, []string{"outcome"})

	// ProvisioningFailuresTotal counts failed provisioning steps by operation.
	ProvisioningFailuresTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "provisioning_failures_total",
		Help:      "Failed partition/table provisioning steps.",
	}, []string{"operation"})

	// CompensationsTotal counts compensating deletes run after a failed provisioning step.
	CompensationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "compensations_total",
		Help:      "Compensating deletes after failed provisioning.",
	}, []string{"entity"})

	// NotifierDeliveriesTotal counts change-feed deliveries by result.
	NotifierDeliveriesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "notifier_deliveries_total",
		Help:      "Verification change deliveries to subscribers.",
	}, []string{"result"})

	// ActiveSubscriptions tracks open change-feed subscriptions.
	ActiveSubscriptions = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "notifier_active_subscriptions",
		Help:      "Open change-feed subscriptions.",
	})

	// GatewayDuration observes execution gateway latency.
	GatewayDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "gateway_duration_seconds",
		Help:      "Execution gateway round-trip latency.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"result"})

	// JobsProcessedTotal counts background jobs by type and result.
	JobsProcessedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "jobs_processed_total",
		Help:      "Background jobs processed.",
	}, []string{"type", "result"})
)
