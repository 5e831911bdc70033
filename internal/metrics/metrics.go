// Package metrics exposes Prometheus collectors for the decision path.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// DecisionsTotal counts navigation verdicts by outcome and reason.
	DecisionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "webward",
		Name:      "decisions_total",
		Help:      "Navigation decisions by verdict and block reason.",
	}, []string{"verdict", "reason"})

	// IncidentsTotal counts recorded incidents by type and severity.
	IncidentsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "webward",
		Name:      "incidents_total",
		Help:      "Incidents recorded in the audit ledger.",
	}, []string{"type", "severity"})

	// RiskScore is the most recently computed composite risk score.
	RiskScore = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "webward",
		Name:      "risk_score",
		Help:      "Current composite behavioral risk score in [0,1].",
	})

	// QuotaSeconds reports today's accumulated visible time per domain.
	QuotaSeconds = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "webward",
		Name:      "quota_seconds",
		Help:      "Accumulated visible-tab seconds today, per quota domain.",
	}, []string{"domain"})

	// DeliveryFailures counts incident/report sink deliveries that failed.
	DeliveryFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "webward",
		Name:      "delivery_failures_total",
		Help:      "Failed fire-and-forget sink deliveries.",
	}, []string{"kind"})
)
