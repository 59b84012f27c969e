package metrics

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Config carries the constant labels attached to every metric.
type Config struct {
	ServiceName string
	Environment string
}

const (
	SettlementJobReasonDeadlineExceeded = "deadline_exceeded"
	SettlementJobReasonDB               = "db"
	SettlementJobReasonUnknown          = "unknown"
)

const (
	OutcomeWinner   = "winner"
	OutcomeNoWinner = "no_winner"
	OutcomeError    = "error"
	OutcomeSkipped  = "skipped"
)

// SettlementMetrics captures settlement engine health signals.
type SettlementMetrics struct {
	jobRuns            *prometheus.CounterVec
	jobDuration        *prometheus.HistogramVec
	jobTimeouts        *prometheus.CounterVec
	jobErrors          *prometheus.CounterVec
	auctionsSettled    *prometheus.CounterVec
	captureAttempts    *prometheus.CounterVec
	captureFallbacks   prometheus.Counter
	authorizationVoids *prometheus.CounterVec
	notifications      *prometheus.CounterVec
	runLoopLag         prometheus.Observer
}

var (
	settlementMetricsOnce sync.Once
	settlementMetrics     *SettlementMetrics
)

// Settlement returns the singleton settlement metrics registry.
func Settlement() *SettlementMetrics {
	return SettlementWithConfig(Config{})
}

// SettlementWithConfig returns the singleton settlement metrics registry using config labels.
func SettlementWithConfig(cfg Config) *SettlementMetrics {
	settlementMetricsOnce.Do(func() {
		settlementMetrics = newSettlementMetrics(prometheus.DefaultRegisterer, cfg)
	})
	return settlementMetrics
}

// ResetSettlementMetricsForTest resets the settlement metrics singleton for tests.
func ResetSettlementMetricsForTest() {
	settlementMetricsOnce = sync.Once{}
	settlementMetrics = nil
}

func newSettlementMetrics(registerer prometheus.Registerer, cfg Config) *SettlementMetrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}

	serviceName := strings.TrimSpace(cfg.ServiceName)
	if serviceName == "" {
		serviceName = "glamlot"
	}
	environment := strings.TrimSpace(cfg.Environment)
	if environment == "" {
		environment = "unknown"
	}
	constLabels := prometheus.Labels{
		"service": serviceName,
		"env":     environment,
	}

	jobRuns := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name:        "glamlot_settlement_job_runs_total",
		Help:        "Settlement job runs by name.",
		ConstLabels: constLabels,
	}, []string{"job"})
	jobDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:        "glamlot_settlement_job_duration_seconds",
		Help:        "Settlement job latency to protect batch freshness.",
		Buckets:     []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 20, 30, 60, 120, 300},
		ConstLabels: constLabels,
	}, []string{"job"})
	jobTimeouts := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name:        "glamlot_settlement_job_timeouts_total",
		Help:        "Settlement job timeouts.",
		ConstLabels: constLabels,
	}, []string{"job"})
	jobErrors := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name:        "glamlot_settlement_job_errors_total",
		Help:        "Settlement job errors by low-cardinality reason.",
		ConstLabels: constLabels,
	}, []string{"job", "reason"})
	auctionsSettled := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name:        "glamlot_auctions_settled_total",
		Help:        "Auctions driven to a terminal settlement outcome.",
		ConstLabels: constLabels,
	}, []string{"outcome"})
	captureAttempts := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name:        "glamlot_capture_attempts_total",
		Help:        "Payment capture attempts against the processor.",
		ConstLabels: constLabels,
	}, []string{"result"})
	captureFallbacks := prometheus.NewCounter(prometheus.CounterOpts{
		Name:        "glamlot_capture_fallbacks_total",
		Help:        "Settlements that fell back past the top-ranked bid.",
		ConstLabels: constLabels,
	})
	authorizationVoids := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name:        "glamlot_authorization_voids_total",
		Help:        "Pre-authorization cancellations by result.",
		ConstLabels: constLabels,
	}, []string{"result"})
	notifications := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name:        "glamlot_winner_notifications_total",
		Help:        "Winner notification deliveries by result.",
		ConstLabels: constLabels,
	}, []string{"result"})
	runLoopLag := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:        "glamlot_settlement_runloop_lag_seconds",
		Help:        "Scheduler run loop lag beyond the configured interval.",
		Buckets:     []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 120, 300},
		ConstLabels: constLabels,
	})

	registerer.MustRegister(
		jobRuns,
		jobDuration,
		jobTimeouts,
		jobErrors,
		auctionsSettled,
		captureAttempts,
		captureFallbacks,
		authorizationVoids,
		notifications,
		runLoopLag,
	)

	return &SettlementMetrics{
		jobRuns:            jobRuns,
		jobDuration:        jobDuration,
		jobTimeouts:        jobTimeouts,
		jobErrors:          jobErrors,
		auctionsSettled:    auctionsSettled,
		captureAttempts:    captureAttempts,
		captureFallbacks:   captureFallbacks,
		authorizationVoids: authorizationVoids,
		notifications:      notifications,
		runLoopLag:         runLoopLag,
	}
}

// IncJobRun increments the run counter for a settlement job.
func (m *SettlementMetrics) IncJobRun(job string) {
	if m == nil || m.jobRuns == nil {
		return
	}
	m.jobRuns.WithLabelValues(job).Inc()
}

// ObserveJobDuration records job latency.
func (m *SettlementMetrics) ObserveJobDuration(job string, duration time.Duration) {
	if m == nil || m.jobDuration == nil {
		return
	}
	if duration < 0 {
		duration = 0
	}
	m.jobDuration.WithLabelValues(job).Observe(duration.Seconds())
}

// IncJobTimeout increments the timeout counter for a settlement job.
func (m *SettlementMetrics) IncJobTimeout(job string) {
	if m == nil || m.jobTimeouts == nil {
		return
	}
	m.jobTimeouts.WithLabelValues(job).Inc()
}

// IncJobError increments the error counter, classifying err into a bounded reason set.
func (m *SettlementMetrics) IncJobError(job string, err error) {
	if m == nil || m.jobErrors == nil {
		return
	}
	m.jobErrors.WithLabelValues(job, classifyJobError(err)).Inc()
}

// IncAuctionSettled counts one auction reaching a terminal outcome.
func (m *SettlementMetrics) IncAuctionSettled(outcome string) {
	if m == nil || m.auctionsSettled == nil {
		return
	}
	m.auctionsSettled.WithLabelValues(outcome).Inc()
}

// IncCaptureAttempt counts one processor capture attempt.
func (m *SettlementMetrics) IncCaptureAttempt(success bool) {
	if m == nil || m.captureAttempts == nil {
		return
	}
	m.captureAttempts.WithLabelValues(boolResult(success)).Inc()
}

// IncCaptureFallback counts a settlement that skipped past the top bid.
func (m *SettlementMetrics) IncCaptureFallback() {
	if m == nil || m.captureFallbacks == nil {
		return
	}
	m.captureFallbacks.Inc()
}

// IncAuthorizationVoid counts one authorization cancellation.
func (m *SettlementMetrics) IncAuthorizationVoid(success bool) {
	if m == nil || m.authorizationVoids == nil {
		return
	}
	m.authorizationVoids.WithLabelValues(boolResult(success)).Inc()
}

// IncNotification counts one winner notification delivery attempt.
func (m *SettlementMetrics) IncNotification(success bool) {
	if m == nil || m.notifications == nil {
		return
	}
	m.notifications.WithLabelValues(boolResult(success)).Inc()
}

// ObserveRunLoopLag records how far the scheduler drifted past its interval.
func (m *SettlementMetrics) ObserveRunLoopLag(lag time.Duration) {
	if m == nil || m.runLoopLag == nil {
		return
	}
	if lag < 0 {
		lag = 0
	}
	m.runLoopLag.Observe(lag.Seconds())
}

func boolResult(success bool) string {
	if success {
		return "success"
	}
	return "failure"
}

func classifyJobError(err error) string {
	switch {
	case err == nil:
		return SettlementJobReasonUnknown
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return SettlementJobReasonDeadlineExceeded
	case isDBError(err):
		return SettlementJobReasonDB
	default:
		return SettlementJobReasonUnknown
	}
}

func isDBError(err error) bool {
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "sql") ||
		strings.Contains(msg, "constraint") ||
		strings.Contains(msg, "deadlock") ||
		strings.Contains(msg, "connection")
}
