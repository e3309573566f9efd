package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

var (
	// Registry is the dedicated Prometheus registry for the pricing service.
	Registry = prometheus.NewRegistry()

	// PricingCalls counts pricing calls by outcome: columns, no_improving_column, invalid, canceled.
	PricingCalls = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "pricing_calls_total", Help: "Pricing calls by outcome."},
		[]string{"outcome"},
	)
	// PricingDuration records end-to-end pricing call durations in seconds.
	PricingDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{Name: "pricing_call_duration_seconds", Help: "Pricing call duration in seconds.", Buckets: []float64{.01, .05, .1, .25, .5, 1, 2.5, 5, 10, 30}},
	)
	// LabelsCreated counts labels admitted to the frontier across all calls.
	LabelsCreated = prometheus.NewCounter(
		prometheus.CounterOpts{Name: "pricing_labels_created_total", Help: "Labels admitted to the frontier."},
	)
	// LabelsDominated counts labels discarded or evicted by dominance.
	LabelsDominated = prometheus.NewCounter(
		prometheus.CounterOpts{Name: "pricing_labels_dominated_total", Help: "Labels discarded by dominance pruning."},
	)
	// ColumnsGenerated counts negative-reduced-cost routes returned to callers.
	ColumnsGenerated = prometheus.NewCounter(
		prometheus.CounterOpts{Name: "pricing_columns_generated_total", Help: "Negative-reduced-cost routes returned."},
	)
	// SearchTruncated counts searches cut short by a label or time budget.
	SearchTruncated = prometheus.NewCounter(
		prometheus.CounterOpts{Name: "pricing_search_truncated_total", Help: "Searches stopped by a budget."},
	)

	// HTTPRequests counts requests by method, path, and status.
	HTTPRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "http_requests_total", Help: "Total HTTP requests."},
		[]string{"method", "path", "status"},
	)
	// HTTPDuration records request durations in seconds.
	HTTPDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{Name: "http_request_duration_seconds", Help: "HTTP request duration in seconds.", Buckets: prometheus.DefBuckets},
		[]string{"method", "path", "status"},
	)
	// CallbackDeliveries counts async result callback outcomes.
	CallbackDeliveries = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "callback_deliveries_total", Help: "Async result callback deliveries by status."},
		[]string{"status"},
	)
)

// RegisterDefault registers all collectors on the service registry.
func RegisterDefault() {
	regOnce.Do(func() {
		Registry.MustRegister(PricingCalls)
		Registry.MustRegister(PricingDuration)
		Registry.MustRegister(LabelsCreated)
		Registry.MustRegister(LabelsDominated)
		Registry.MustRegister(ColumnsGenerated)
		Registry.MustRegister(SearchTruncated)
		Registry.MustRegister(HTTPRequests)
		Registry.MustRegister(HTTPDuration)
		Registry.MustRegister(CallbackDeliveries)
		Registry.MustRegister(collectors.NewGoCollector())
		Registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	})
}

var regOnce sync.Once

// ObserveSolve folds one search's stats into the solver counters.
func ObserveSolve(created, dominated, columns int, truncated bool, seconds float64) {
	LabelsCreated.Add(float64(created))
	LabelsDominated.Add(float64(dominated))
	ColumnsGenerated.Add(float64(columns))
	if truncated {
		SearchTruncated.Inc()
	}
	PricingDuration.Observe(seconds)
}
