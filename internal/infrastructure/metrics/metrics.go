package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// ValidationsTotal tracks validation calls by verdict ("error" for store failures)
	ValidationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "cloudlicense_validations_total",
		Help: "Total number of license validations by verdict",
	}, []string{"verdict"})

	// ValidationDuration tracks validation latency including the license lock
	ValidationDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "cloudlicense_validation_duration_seconds",
		Help:    "Histogram of license validation duration",
		Buckets: prometheus.DefBuckets,
	})

	// LicenseTransitions tracks state mutations performed by validation and admin actions
	LicenseTransitions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "cloudlicense_license_transitions_total",
		Help: "Total number of license state transitions",
	}, []string{"transition"})

	// LicensesGenerated tracks successfully issued licenses
	LicensesGenerated = promauto.NewCounter(prometheus.CounterOpts{
		Name: "cloudlicense_licenses_generated_total",
		Help: "Total number of licenses generated",
	})

	// KeyCollisions tracks generated keys rejected by the store uniqueness constraint
	KeyCollisions = promauto.NewCounter(prometheus.CounterOpts{
		Name: "cloudlicense_key_collisions_total",
		Help: "Total number of license key collisions during generation",
	})

	// BansTotal tracks ban records by target kind (key, hardware, both)
	BansTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "cloudlicense_bans_total",
		Help: "Total number of ban records added",
	}, []string{"target"})

	// RateLimited tracks validate requests rejected by the per-IP limiter
	RateLimited = promauto.NewCounter(prometheus.CounterOpts{
		Name: "cloudlicense_rate_limited_total",
		Help: "Total number of validate requests rejected by the rate limiter",
	})

	// EventPublishFailures tracks lifecycle events that could not be published
	EventPublishFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "cloudlicense_event_publish_failures_total",
		Help: "Total number of lifecycle events that failed to publish",
	})

	// AuditWriteFailures tracks audit entries that could not be stored
	AuditWriteFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "cloudlicense_audit_write_failures_total",
		Help: "Total number of audit log entries that failed to save",
	})
)
