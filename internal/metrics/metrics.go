package metrics

import (
    "sync"

    "github.com/prometheus/client_golang/prometheus"
    "github.com/prometheus/client_golang/prometheus/collectors"
)

var (
    // Registry is the dedicated Prometheus registry for the API
    Registry = prometheus.NewRegistry()
    // HTTPRequests counts requests by method, path, and status
    HTTPRequests = prometheus.NewCounterVec(
        prometheus.CounterOpts{Name: "http_requests_total", Help: "Total HTTP requests."},
        []string{"method", "path", "status"},
    )
    // HTTPDuration records request durations in seconds
    HTTPDuration = prometheus.NewHistogramVec(
        prometheus.HistogramOpts{Name: "http_request_duration_seconds", Help: "HTTP request duration in seconds.", Buckets: prometheus.DefBuckets},
        []string{"method", "path", "status"},
    )

    // JobsProcessed counts optimization jobs by terminal state and reason
    JobsProcessed = prometheus.NewCounterVec(
        prometheus.CounterOpts{Name: "optimize_jobs_total", Help: "Optimization jobs by outcome."},
        []string{"outcome"},
    )
    // SolveDuration records end-to-end solver wall time per job
    SolveDuration = prometheus.NewHistogram(
        prometheus.HistogramOpts{Name: "solve_duration_seconds", Help: "Solver wall time per job.", Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 10, 30}},
    )
    // MatrixBuilds counts matrix builds by strategy actually used
    MatrixBuilds = prometheus.NewCounterVec(
        prometheus.CounterOpts{Name: "matrix_builds_total", Help: "Distance matrix builds by source."},
        []string{"source"},
    )
    // BusSubscribers tracks live event bus subscriptions per transport
    BusSubscribers = prometheus.NewGauge(
        prometheus.GaugeOpts{Name: "bus_subscribers", Help: "Currently connected route event subscribers."},
    )
    // BusDropped counts subscribers disconnected for falling behind
    BusDropped = prometheus.NewCounter(
        prometheus.CounterOpts{Name: "bus_dropped_subscribers_total", Help: "Subscribers dropped due to full buffers."},
    )
    // WebhookAttempts counts webhook delivery attempts by outcome
    WebhookAttempts = prometheus.NewCounterVec(
        prometheus.CounterOpts{Name: "webhook_attempts_total", Help: "Webhook delivery attempts by outcome."},
        []string{"outcome"},
    )
)

// RegisterDefault registers collectors to the default registry.
func RegisterDefault() {
    regOnce.Do(func() {
        Registry.MustRegister(HTTPRequests)
        Registry.MustRegister(HTTPDuration)
        Registry.MustRegister(JobsProcessed)
        Registry.MustRegister(SolveDuration)
        Registry.MustRegister(MatrixBuilds)
        Registry.MustRegister(BusSubscribers)
        Registry.MustRegister(BusDropped)
        Registry.MustRegister(WebhookAttempts)
        // Go/process collectors on our registry
        Registry.MustRegister(collectors.NewGoCollector())
        Registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
    })
}

var regOnce sync.Once
