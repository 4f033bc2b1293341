// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Authd Contributors

package account

import "github.com/prometheus/client_golang/prometheus"

// Metric label values for workflow outcomes.
const (
	OutcomeSuccess   = "success"
	OutcomeDuplicate = "duplicate"
	OutcomeMismatch  = "mismatch"
	OutcomeNotFound  = "not_found"
	OutcomeError     = "error"
)

// Metrics holds the workflow counters.
type Metrics struct {
	Registrations *prometheus.CounterVec
	Logins        *prometheus.CounterVec
	ResetRequests *prometheus.CounterVec
	TokensIssued  *prometheus.CounterVec
}

// NewMetrics creates and registers the account workflow metrics.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := newMetrics()
	reg.MustRegister(m.Registrations, m.Logins, m.ResetRequests, m.TokensIssued)
	return m
}

// NopMetrics creates unregistered metrics. Used in tests and by
// callers that do not run an observability server.
func NopMetrics() *Metrics {
	return newMetrics()
}

func newMetrics() *Metrics {
	return &Metrics{
		Registrations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "authd_registrations_total",
				Help: "Total number of registration attempts by outcome",
			},
			[]string{"outcome"},
		),
		Logins: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "authd_logins_total",
				Help: "Total number of login attempts by outcome",
			},
			[]string{"outcome"},
		),
		ResetRequests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "authd_password_reset_requests_total",
				Help: "Total number of password reset requests by outcome",
			},
			[]string{"outcome"},
		),
		TokensIssued: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "authd_tokens_issued_total",
				Help: "Total number of ephemeral tokens issued by purpose",
			},
			[]string{"purpose"},
		),
	}
}
