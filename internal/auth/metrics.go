// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Wefix Contributors

package auth

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// OutcomeSuccess labels successful authentications and verifications.
const OutcomeSuccess = "success"

// Authentications is the counter for authentication attempts.
// Use RegisterMetrics to register this with a Prometheus registry.
var Authentications = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "authgate_authentications_total",
		Help: "Total number of authentication attempts",
	},
	[]string{"flow", "outcome"},
)

// AuthenticationDuration is the histogram for authentication latency.
// Use RegisterMetrics to register this with a Prometheus registry.
var AuthenticationDuration = prometheus.NewHistogramVec(
	prometheus.HistogramOpts{
		Name:    "authgate_authentication_duration_seconds",
		Help:    "Authentication duration in seconds",
		Buckets: prometheus.DefBuckets,
	},
	[]string{"flow"},
)

// ProviderVerifications is the counter for external token verifications.
// Use RegisterMetrics to register this with a Prometheus registry.
var ProviderVerifications = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "authgate_provider_verifications_total",
		Help: "Total number of external identity provider verifications",
	},
	[]string{"provider", "result"},
)

// RegisterMetrics registers auth package metrics with the given Prometheus registry.
// Panics if registration fails (following prometheus convention).
func RegisterMetrics(reg prometheus.Registerer) {
	reg.MustRegister(Authentications)
	reg.MustRegister(AuthenticationDuration)
	reg.MustRegister(ProviderVerifications)
}

// RecordAuthentication counts one authentication and observes its duration.
// outcome is OutcomeSuccess or a Reason code.
func RecordAuthentication(flow, outcome string, duration time.Duration) {
	Authentications.WithLabelValues(flow, outcome).Inc()
	AuthenticationDuration.WithLabelValues(flow).Observe(duration.Seconds())
}

// RecordProviderVerification counts one provider verification.
// result is OutcomeSuccess or a Reason code.
func RecordProviderVerification(provider, result string) {
	ProviderVerifications.WithLabelValues(provider, result).Inc()
}
