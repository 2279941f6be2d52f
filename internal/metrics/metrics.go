// Package metrics содержит счётчики Prometheus сервиса.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics набор счётчиков предметной области.
type Metrics struct {
	Analyses             *prometheus.CounterVec
	SessionExpirations   *prometheus.CounterVec
	SubscriptionsCreated *prometheus.CounterVec
	LimitRejections      prometheus.Counter
	ActiveSessions       prometheus.GaugeFunc
}

// New регистрирует счётчики в reg. activeSessions может быть nil.
func New(reg prometheus.Registerer, activeSessions func() float64) *Metrics {
	m := &Metrics{
		Analyses: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "aicheck",
			Name:      "analyses_total",
			Help:      "Completed text analyses by classification.",
		}, []string{"classification"}),
		SessionExpirations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "aicheck",
			Name:      "session_expirations_total",
			Help:      "Forced logouts by reason.",
		}, []string{"reason"}),
		SubscriptionsCreated: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "aicheck",
			Name:      "subscriptions_created_total",
			Help:      "Mock subscriptions created by plan and billing cycle.",
		}, []string{"plan", "cycle"}),
		LimitRejections: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "aicheck",
			Name:      "usage_limit_rejections_total",
			Help:      "Analyses rejected because the plan limit was reached.",
		}),
	}
	reg.MustRegister(m.Analyses, m.SessionExpirations, m.SubscriptionsCreated, m.LimitRejections)

	if activeSessions != nil {
		m.ActiveSessions = prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: "aicheck",
			Name:      "active_sessions",
			Help:      "Sessions with an armed activity monitor.",
		}, activeSessions)
		reg.MustRegister(m.ActiveSessions)
	}
	return m
}

// SessionExpired учитывает принудительный выход.
func (m *Metrics) SessionExpired(reason string) {
	m.SessionExpirations.WithLabelValues(reason).Inc()
}

// AnalysisCompleted учитывает завершённый анализ.
func (m *Metrics) AnalysisCompleted(classification string) {
	m.Analyses.WithLabelValues(classification).Inc()
}

// LimitRejected учитывает отказ из-за лимита.
func (m *Metrics) LimitRejected() {
	m.LimitRejections.Inc()
}

// SubscriptionCreated учитывает оформленную подписку.
func (m *Metrics) SubscriptionCreated(plan, cycle string) {
	m.SubscriptionsCreated.WithLabelValues(plan, cycle).Inc()
}
