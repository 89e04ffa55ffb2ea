package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/jpirolla/aws-data-querying/internal/utils"
)

// Service labels
const (
	ServiceS3       = "s3"
	ServiceGlue     = "glue"
	ServiceAthena   = "athena"
	ServiceRedshift = "redshift"
)

// OutcomeSuccess is the outcome label of a call that returned no error.
const OutcomeSuccess = "success"

// RemoteCalls holds Prometheus metrics for calls made to managed services.
// A nil *RemoteCalls records nothing.
type RemoteCalls struct {
	// CallsTotal counts remote calls by service, operation and outcome.
	CallsTotal *prometheus.CounterVec
	// CallDuration tracks remote call latency.
	CallDuration *prometheus.HistogramVec
	// RowsRead counts rows materialized from reads and queries.
	RowsRead *prometheus.CounterVec
}

// NewRemoteCalls creates the metrics and registers them with reg.
func NewRemoteCalls(reg prometheus.Registerer) *RemoteCalls {
	factory := promauto.With(reg)
	return &RemoteCalls{
		CallsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "awsdata_remote_calls_total",
				Help: "Total number of remote service calls",
			},
			[]string{"service", "operation", "outcome"},
		),
		CallDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "awsdata_remote_call_duration_seconds",
				Help:    "Remote service call latency in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"service", "operation"},
		),
		RowsRead: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "awsdata_rows_read_total",
				Help: "Total number of rows read back from storage or query engines",
			},
			[]string{"service"},
		),
	}
}

// Observe records one remote call. The outcome label is the error kind, or
// "success" when err is nil.
func (m *RemoteCalls) Observe(service, operation string, start time.Time, err error) {
	if m == nil {
		return
	}

	outcome := OutcomeSuccess
	if err != nil {
		outcome = string(utils.KindOf(err))
	}

	m.CallsTotal.WithLabelValues(service, operation, outcome).Inc()
	m.CallDuration.WithLabelValues(service, operation).Observe(time.Since(start).Seconds())
}

// AddRows records rows materialized from service.
func (m *RemoteCalls) AddRows(service string, n int) {
	if m == nil || n <= 0 {
		return
	}
	m.RowsRead.WithLabelValues(service).Add(float64(n))
}
