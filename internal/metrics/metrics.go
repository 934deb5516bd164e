package metrics

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Registry holds the application-specific Prometheus collectors.
	Registry = prometheus.NewRegistry()

	httpInFlight = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "mail_market",
			Subsystem: "http",
			Name:      "inflight_requests",
			Help:      "Current number of in-flight HTTP requests.",
		},
	)

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "mail_market",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests handled.",
		},
		[]string{"method", "path", "status"},
	)

	httpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "mail_market",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Duration of HTTP requests.",
			Buckets:   prometheus.ExponentialBuckets(0.005, 2, 10),
		},
		[]string{"method", "path"},
	)

	purchases = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "mail_market",
			Subsystem: "purchases",
			Name:      "total",
			Help:      "Purchase attempts by outcome.",
		},
		[]string{"item_type", "outcome"},
	)

	itemsAllocated = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "mail_market",
			Subsystem: "inventory",
			Name:      "items_allocated_total",
			Help:      "Items delivered to buyers.",
		},
		[]string{"item_type"},
	)

	orphanedAllocations = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "mail_market",
			Subsystem: "inventory",
			Name:      "orphaned_allocations_total",
			Help:      "Allocations that could not be recorded after the upstream delivered them.",
		},
	)

	unmatchedPayments = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "mail_market",
			Subsystem: "payments",
			Name:      "unmatched_total",
			Help:      "Gateway payments confirmed for deposits that could no longer be credited.",
		},
	)

	depositTransitions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "mail_market",
			Subsystem: "deposits",
			Name:      "transitions_total",
			Help:      "Deposit status changes.",
		},
		[]string{"status", "method"},
	)

	jobRuns = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "mail_market",
			Subsystem: "jobs",
			Name:      "runs_total",
			Help:      "Scheduled job runs.",
		},
		[]string{"job", "success"},
	)
)

func init() {
	Registry.MustRegister(
		httpInFlight,
		httpRequests,
		httpDuration,
		purchases,
		itemsAllocated,
		orphanedAllocations,
		unmatchedPayments,
		depositTransitions,
		jobRuns,
		prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}),
		prometheus.NewGoCollector(),
	)
}

// Handler exposes the registry in the Prometheus text format.
func Handler() http.Handler {
	return promhttp.HandlerFor(Registry, promhttp.HandlerOpts{})
}

// Middleware records request counts and latency keyed by the matched route.
func Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.Request.URL.Path == "/metrics" {
			c.Next()
			return
		}

		start := time.Now()
		httpInFlight.Inc()
		defer httpInFlight.Dec()

		c.Next()

		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}
		method := strings.ToUpper(c.Request.Method)
		httpRequests.WithLabelValues(method, path, strconv.Itoa(c.Writer.Status())).Inc()
		httpDuration.WithLabelValues(method, path).Observe(time.Since(start).Seconds())
	}
}

func RecordPurchase(itemType, outcome string, items int) {
	purchases.WithLabelValues(itemType, outcome).Inc()
	if items > 0 {
		itemsAllocated.WithLabelValues(itemType).Add(float64(items))
	}
}

func RecordOrphanedAllocation() {
	orphanedAllocations.Inc()
}

func RecordUnmatchedPayment() {
	unmatchedPayments.Inc()
}

func RecordDepositTransition(status, method string) {
	if method == "" {
		method = "unknown"
	}
	depositTransitions.WithLabelValues(status, method).Inc()
}

func RecordJobRun(job string, success bool) {
	jobRuns.WithLabelValues(job, strconv.FormatBool(success)).Inc()
}
