package cases

import "github.com/prometheus/client_golang/prometheus"

// Metrics holds Prometheus metrics for the analysis subsystem.
type Metrics struct {
	CasesTotal          *prometheus.CounterVec
	CaseDuration        *prometheus.HistogramVec
	CaseLLMTime         *prometheus.HistogramVec
	RecordsByLevel      *prometheus.CounterVec
	DegradedRecords     prometheus.Counter
	ValidationCoercions *prometheus.CounterVec
	ReferralCount       prometheus.Histogram
	LLMCallsTotal       prometheus.Counter
	LLMTokensIn         prometheus.Counter
	LLMTokensOut        prometheus.Counter
	LLMDuration         prometheus.Histogram
	SubmitsTotal        *prometheus.CounterVec
}

// NewMetrics registers and returns analysis metrics on the given registerer.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		CasesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "medtriage_cases_total",
			Help: "Total analysis cases by final status.",
		}, []string{"status"}),
		CaseDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "medtriage_case_duration_seconds",
			Help:    "Duration of analysis cases in seconds.",
			Buckets: prometheus.ExponentialBuckets(1, 2, 10), // 1s .. ~512s
		}, []string{"status", "model"}),
		CaseLLMTime: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "medtriage_case_llm_time_seconds",
			Help:    "LLM time per analysis case in seconds.",
			Buckets: prometheus.ExponentialBuckets(1, 2, 10), // 1s .. ~512s
		}, []string{"model"}),
		RecordsByLevel: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "medtriage_records_total",
			Help: "Validated triage records by resolved level.",
		}, []string{"level"}),
		DegradedRecords: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "medtriage_degraded_records_total",
			Help: "Records produced via the degraded parsing fallback.",
		}),
		ValidationCoercions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "medtriage_validation_coercions_total",
			Help: "Validator coercions by record field.",
		}, []string{"field"}),
		ReferralCount: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "medtriage_referrals_per_case",
			Help:    "Eligible facilities ranked per case.",
			Buckets: prometheus.LinearBuckets(0, 1, 16), // 0 .. 15
		}),
		LLMCallsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "medtriage_llm_calls_total",
			Help: "Total LLM provider calls.",
		}),
		LLMTokensIn: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "medtriage_llm_tokens_input_total",
			Help: "Total LLM input tokens consumed.",
		}),
		LLMTokensOut: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "medtriage_llm_tokens_output_total",
			Help: "Total LLM output tokens consumed.",
		}),
		LLMDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "medtriage_llm_call_duration_seconds",
			Help:    "Duration of individual LLM calls in seconds.",
			Buckets: prometheus.ExponentialBuckets(0.5, 2, 8), // 0.5s .. ~64s
		}),
		SubmitsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "medtriage_submits_total",
			Help: "Total case submissions by result.",
		}, []string{"result"}),
	}

	reg.MustRegister(
		m.CasesTotal,
		m.CaseDuration,
		m.CaseLLMTime,
		m.RecordsByLevel,
		m.DegradedRecords,
		m.ValidationCoercions,
		m.ReferralCount,
		m.LLMCallsTotal,
		m.LLMTokensIn,
		m.LLMTokensOut,
		m.LLMDuration,
		m.SubmitsTotal,
	)

	return m
}

// Hooks returns an EngineHooks that increments the corresponding metrics.
func (m *Metrics) Hooks() EngineHooks {
	return EngineHooks{
		OnLLMCall: func(inputTokens, outputTokens int, duration float64) {
			m.LLMCallsTotal.Inc()
			m.LLMTokensIn.Add(float64(inputTokens))
			m.LLMTokensOut.Add(float64(outputTokens))
			m.LLMDuration.Observe(duration)
		},
		OnComplete: func(e *CompleteEvent) {
			m.CasesTotal.WithLabelValues(string(e.Status)).Inc()
			m.CaseDuration.WithLabelValues(string(e.Status), e.Model).Observe(e.Duration)
			m.CaseLLMTime.WithLabelValues(e.Model).Observe(e.LLMTime)
			m.RecordsByLevel.WithLabelValues(string(e.Level)).Inc()
			if e.Degraded {
				m.DegradedRecords.Inc()
			}
			for _, d := range e.Diagnostics {
				m.ValidationCoercions.WithLabelValues(d.Field).Inc()
			}
			m.ReferralCount.Observe(float64(e.Referrals))
		},
	}
}
