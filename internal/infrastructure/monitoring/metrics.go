package monitoring

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type HTTPMetrics struct {
	RequestsTotal   *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec
}

type DBMetrics struct {
	QueryDuration *prometheus.HistogramVec
}

type BusinessMetrics struct {
	TransactionsTotal  *prometheus.CounterVec
	LoanEventsTotal    *prometheus.CounterVec
	OverdueMarkedTotal prometheus.Counter
}

var (
	HTTP = HTTPMetrics{
		RequestsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "banking_engine_http_requests_total",
				Help: "Total number of HTTP requests received.",
			},
			[]string{"method", "path", "code"},
		),
		RequestDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "banking_engine_http_request_duration_seconds",
				Help:    "Histogram of HTTP request latencies.",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "path", "code"},
		),
	}

	DB = DBMetrics{
		QueryDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "banking_engine_db_query_duration_seconds",
				Help:    "Histogram of database query latencies.",
				Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
			},
			[]string{"query_name", "status"},
		),
	}

	Business = BusinessMetrics{
		TransactionsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "banking_engine_transactions_total",
				Help: "Total number of ledger transactions by type and final status.",
			},
			[]string{"type", "status"},
		),
		LoanEventsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "banking_engine_loan_events_total",
				Help: "Total number of loan lifecycle events.",
			},
			[]string{"event"},
		),
		OverdueMarkedTotal: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "banking_engine_repayments_marked_overdue_total",
				Help: "Total number of repayment installments marked overdue by the batch job.",
			},
		),
	}
)

func RecordHTTPRequest(method, path, code string, duration time.Duration) {
	HTTP.RequestsTotal.WithLabelValues(method, path, code).Inc()
	HTTP.RequestDuration.WithLabelValues(method, path, code).Observe(duration.Seconds())
}

func RecordDBQuery(queryName string, duration time.Duration, err error) {
	status := "success"
	if err != nil {
		status = "error"
	}
	DB.QueryDuration.WithLabelValues(queryName, status).Observe(duration.Seconds())
}

func RecordTransaction(txnType, status string) {
	Business.TransactionsTotal.WithLabelValues(txnType, status).Inc()
}

func RecordLoanEvent(event string) {
	Business.LoanEventsTotal.WithLabelValues(event).Inc()
}

func RecordOverdueMarked(count int64) {
	Business.OverdueMarkedTotal.Add(float64(count))
}
