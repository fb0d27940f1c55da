package metrics

import "github.com/prometheus/client_golang/prometheus"

// GateMetrics counts access-gate admissions and denials.
type GateMetrics struct {
	admitted *prometheus.CounterVec
	denied   *prometheus.CounterVec
	credits  *prometheus.CounterVec
}

// NewGateMetrics registers gate admission metrics on the provided registerer.
func NewGateMetrics(reg prometheus.Registerer) *GateMetrics {
	if reg == nil {
		return &GateMetrics{}
	}
	admitted := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "gate_admitted_total",
		Help: "Requests admitted by the access gate.",
	}, []string{"caller"})
	denied := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "gate_denied_total",
		Help: "Requests denied by the access gate.",
	}, []string{"reason"})
	credits := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "gate_credits_consumed_total",
		Help: "Credits consumed by admitted requests.",
	}, []string{"operation"})
	reg.MustRegister(admitted, denied, credits)
	return &GateMetrics{admitted: admitted, denied: denied, credits: credits}
}

// IncAdmitted counts one admission for the caller kind.
func (g *GateMetrics) IncAdmitted(caller string) {
	if g == nil || g.admitted == nil {
		return
	}
	g.admitted.WithLabelValues(normalizeLabel(caller)).Inc()
}

// IncDenied counts one denial with the taxonomy reason.
func (g *GateMetrics) IncDenied(reason string) {
	if g == nil || g.denied == nil {
		return
	}
	g.denied.WithLabelValues(normalizeLabel(reason)).Inc()
}

// AddCreditsConsumed accumulates consumed credits per operation.
func (g *GateMetrics) AddCreditsConsumed(operation string, credits int64) {
	if g == nil || g.credits == nil || credits <= 0 {
		return
	}
	g.credits.WithLabelValues(normalizeLabel(operation)).Add(float64(credits))
}
