package monitoring

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/shopspring/decimal"
)

const namespace = "ledger"

// Metrics is safe to use as a nil pointer; every method is then a no-op.
type Metrics struct {
	returnRunsTotal        *prometheus.CounterVec
	returnInvestmentsTotal *prometheus.CounterVec
	returnDistributedTotal prometheus.Counter
	returnOverlapSkipped   prometheus.Counter
	returnRunDuration      prometheus.Histogram
	returnLastRunUnix      prometheus.Gauge
	operationsTotal        *prometheus.CounterVec
	httpRequestsTotal      *prometheus.CounterVec
	httpResponseTime       *prometheus.HistogramVec
}

// NewMetrics registers the ledger collectors on reg (prometheus.DefaultRegisterer when nil).
func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)
	return &Metrics{
		returnRunsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "return",
				Name:      "runs_total",
				Help:      "Scheduled return passes partitioned by result.",
			},
			[]string{"result"},
		),
		returnInvestmentsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "return",
				Name:      "investments_total",
				Help:      "Investments visited by return passes partitioned by outcome.",
			},
			[]string{"outcome"},
		),
		returnDistributedTotal: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "return",
				Name:      "distributed_total",
				Help:      "Total amount credited as investment returns.",
			},
		),
		returnOverlapSkipped: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "return",
				Name:      "overlap_skipped_total",
				Help:      "Return passes skipped because the previous pass was still running.",
			},
		),
		returnRunDuration: factory.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "return",
				Name:      "run_duration_seconds",
				Help:      "Duration of return passes.",
				Buckets:   prometheus.DefBuckets,
			},
		),
		returnLastRunUnix: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: "return",
				Name:      "last_run_unix",
				Help:      "Unix time of the most recent completed return pass.",
			},
		),
		operationsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "operations_total",
				Help:      "Balance-changing operations partitioned by operation and result.",
			},
			[]string{"op", "result"},
		),
		httpRequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "http",
				Name:      "requests_total",
				Help:      "Total number of HTTP requests.",
			},
			[]string{"method", "path", "status"},
		),
		httpResponseTime: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "http",
				Name:      "response_time_seconds",
				Help:      "Histogram of response times.",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"method", "path"},
		),
	}
}

// ReturnRun records one finished pass. result is "ok" or "failed".
func (m *Metrics) ReturnRun(result string, processed, skipped, errored int, distributed decimal.Decimal, took time.Duration, finished time.Time) {
	if m == nil {
		return
	}
	m.returnRunsTotal.WithLabelValues(result).Inc()
	m.returnInvestmentsTotal.WithLabelValues("processed").Add(float64(processed))
	m.returnInvestmentsTotal.WithLabelValues("skipped").Add(float64(skipped))
	m.returnInvestmentsTotal.WithLabelValues("error").Add(float64(errored))
	m.returnDistributedTotal.Add(distributed.InexactFloat64())
	m.returnRunDuration.Observe(took.Seconds())
	m.returnLastRunUnix.Set(float64(finished.Unix()))
}

func (m *Metrics) ReturnOverlapSkipped() {
	if m == nil {
		return
	}
	m.returnOverlapSkipped.Inc()
}

// Operation counts a ledger operation; err == nil is recorded as "ok".
func (m *Metrics) Operation(op string, err error) {
	if m == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.operationsTotal.WithLabelValues(op, result).Inc()
}

func (m *Metrics) HTTPRequest(method, path, status string, took time.Duration) {
	if m == nil {
		return
	}
	m.httpRequestsTotal.WithLabelValues(method, path, status).Inc()
	m.httpResponseTime.WithLabelValues(method, path).Observe(took.Seconds())
}
