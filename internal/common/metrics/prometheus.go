package metrics

import (
	"time"

	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
)

type PrometheusCollector struct {
	sagaRuns      *prometheus.CounterVec
	rollbacks     *prometheus.CounterVec
	stageCalls    *prometheus.CounterVec
	stageDuration *prometheus.HistogramVec
}

// NewPrometheusCollector registers the saga metrics with reg
func NewPrometheusCollector(reg prometheus.Registerer) (*PrometheusCollector, error) {
	c := &PrometheusCollector{
		sagaRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "saga_runs_total",
			Help: "Finished saga runs by mode and final status.",
		}, []string{"mode", "status"}),
		rollbacks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "saga_rollbacks_total",
			Help: "Compensation sweeps by outcome.",
		}, []string{"status"}),
		stageCalls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "saga_stage_calls_total",
			Help: "Stage process and rollback calls by returned status.",
		}, []string{"operation", "status"}),
		stageDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "saga_stage_duration_seconds",
			Help:    "Duration of stage process and rollback calls.",
			Buckets: prometheus.DefBuckets,
		}, []string{"operation"}),
	}

	for _, col := range []prometheus.Collector{c.sagaRuns, c.rollbacks, c.stageCalls, c.stageDuration} {
		if err := reg.Register(col); err != nil {
			return nil, errors.Wrap(err, "failed to register saga metrics")
		}
	}
	return c, nil
}

func (c *PrometheusCollector) RecordSagaRun(mode, status, rollbackStatus string) {
	c.sagaRuns.WithLabelValues(mode, status).Inc()
	if rollbackStatus != "None" {
		c.rollbacks.WithLabelValues(rollbackStatus).Inc()
	}
}

func (c *PrometheusCollector) RecordStageCall(operation, status string, elapsed time.Duration) {
	c.stageCalls.WithLabelValues(operation, status).Inc()
	c.stageDuration.WithLabelValues(operation).Observe(elapsed.Seconds())
}
