package observability

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
)

var (
	HTTPRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"route", "method", "status"},
	)
	HTTPRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5},
		},
		[]string{"route", "method"},
	)

	ModelCallsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "model_calls_total",
			Help: "Total number of model invocations by tier and outcome",
		},
		[]string{"tier", "outcome"},
	)
	ModelCallDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "model_call_duration_seconds",
			Help:    "Model invocation duration in seconds",
			Buckets: []float64{0.1, 0.25, 0.5, 1, 2, 5, 10, 25},
		},
		[]string{"tier"},
	)

	SolvesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "solves_total",
			Help: "Completed answer requests by result origin",
		},
		[]string{"origin"}, // cache | fresh
	)
	ChargesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "charges_total",
			Help: "Answer charges by entitlement source",
		},
		[]string{"source"},
	)
	AdmissionRejectsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "admission_rejects_total",
			Help: "Requests rejected before the pipeline ran",
		},
		[]string{"reason"}, // cooldown | busy | no_access
	)
	GrantsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "grants_total",
			Help: "Applied entitlement grants by plan",
		},
		[]string{"plan"},
	)

	// AnswerConfidence tracks the consensus vote fraction of fresh answers.
	AnswerConfidence = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "answer_confidence",
			Help:    "Distribution of answer confidence (vote fraction [0,1])",
			Buckets: []float64{0, 0.1, 0.2, 0.3, 0.4, 0.5, 0.6, 0.7, 0.8, 0.9, 1.0},
		},
	)
)

func InitMetrics() {
	prometheus.MustRegister(HTTPRequestsTotal)
	prometheus.MustRegister(HTTPRequestDuration)
	prometheus.MustRegister(ModelCallsTotal)
	prometheus.MustRegister(ModelCallDuration)
	prometheus.MustRegister(SolvesTotal)
	prometheus.MustRegister(ChargesTotal)
	prometheus.MustRegister(AdmissionRejectsTotal)
	prometheus.MustRegister(GrantsTotal)
	prometheus.MustRegister(AnswerConfidence)
}

// HTTPMetricsMiddleware records Prometheus metrics for each request.
func HTTPMetricsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		dur := time.Since(start).Seconds()
		// Route pattern may be unavailable outside chi router; guard nil.
		var route string
		if rc := chi.RouteContext(r.Context()); rc != nil {
			route = rc.RoutePattern()
		}
		if route == "" {
			route = r.URL.Path
		}
		HTTPRequestsTotal.WithLabelValues(route, r.Method, http.StatusText(ww.Status())).Inc()
		HTTPRequestDuration.WithLabelValues(route, r.Method).Observe(dur)
	})
}

// RecordModelCall tracks one provider invocation.
func RecordModelCall(tier string, dur time.Duration, err error) {
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	ModelCallsTotal.WithLabelValues(tier, outcome).Inc()
	ModelCallDuration.WithLabelValues(tier).Observe(dur.Seconds())
}

// RecordSolve tracks a completed answer request and, for fresh resolutions,
// its confidence and charge source.
func RecordSolve(cached bool, source string, confidence float64) {
	if cached {
		SolvesTotal.WithLabelValues("cache").Inc()
		return
	}
	SolvesTotal.WithLabelValues("fresh").Inc()
	if source != "" {
		ChargesTotal.WithLabelValues(source).Inc()
	}
	if confidence >= 0 && confidence <= 1 {
		AnswerConfidence.Observe(confidence)
	}
}

// RecordAdmissionReject tracks a request turned away before any model ran.
func RecordAdmissionReject(reason string) {
	AdmissionRejectsTotal.WithLabelValues(reason).Inc()
}

// RecordGrant tracks an applied entitlement grant.
func RecordGrant(plan string) {
	GrantsTotal.WithLabelValues(plan).Inc()
}
