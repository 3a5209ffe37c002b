package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "seatbook"

var (
	once sync.Once

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests by route and status code.",
		},
		[]string{"route", "code"},
	)

	httpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency by route.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"route"},
	)

	bookings = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "bookings_total",
			Help:      "Booking attempts by kind and outcome.",
		},
		[]string{"kind", "outcome"},
	)

	refunds = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "refunds_total",
			Help:      "Refunds issued by reason.",
		},
		[]string{"reason"},
	)

	attendance = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "attendance_events_total",
			Help:      "Check-in and check-out events by booking kind.",
		},
		[]string{"kind", "action"},
	)

	sweepTransitions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sweep_transitions_total",
			Help:      "Bookings moved by the sweep, by resulting status.",
		},
		[]string{"status"},
	)

	sweepRuns = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sweep_runs_total",
			Help:      "Sweep executions by result.",
		},
		[]string{"result"},
	)
)

// Register registers Prometheus metrics. Safe to call multiple times.
func Register() {
	once.Do(func() {
		prometheus.MustRegister(httpRequests, httpDuration, bookings, refunds, attendance, sweepTransitions, sweepRuns)
	})
}

// IncHTTP counts one served request.
func IncHTTP(route, code string) {
	httpRequests.WithLabelValues(route, code).Inc()
}

// ObserveHTTP records request latency in seconds.
func ObserveHTTP(route string, seconds float64) {
	httpDuration.WithLabelValues(route).Observe(seconds)
}

// IncBooking counts a booking attempt; kind is "single" or "monthly".
func IncBooking(kind, outcome string) {
	bookings.WithLabelValues(kind, outcome).Inc()
}

func IncRefund(reason string) {
	refunds.WithLabelValues(reason).Inc()
}

func IncAttendance(kind, action string) {
	attendance.WithLabelValues(kind, action).Inc()
}

// AddSweepTransitions adds n moves into status; zero is ignored.
func AddSweepTransitions(status string, n int) {
	if n <= 0 {
		return
	}
	sweepTransitions.WithLabelValues(status).Add(float64(n))
}

func IncSweepRun(result string) {
	sweepRuns.WithLabelValues(result).Inc()
}
