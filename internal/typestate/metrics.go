package typestate

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
)

// PrometheusRunObserver exports evaluation counts, violations and
// durations.
type PrometheusRunObserver struct {
	runs       *prometheus.CounterVec
	violations prometheus.Counter
	dropped    prometheus.Counter
	paths      prometheus.Histogram
	duration   prometheus.Histogram
}

func NewPrometheusRunObserver(reg prometheus.Registerer) (*PrometheusRunObserver, error) {
	o := &PrometheusRunObserver{
		runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "ordercheck",
			Name:      "evaluations_total",
			Help:      "Order evaluations by verdict.",
		}, []string{"ok"}),
		violations: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "ordercheck",
			Name:      "violations_total",
			Help:      "Violations reported by order evaluations.",
		}),
		dropped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "ordercheck",
			Name:      "evaluations_dropped_total",
			Help:      "Evaluations whose statistics were lost before reaching this observer.",
		}),
		paths: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "ordercheck",
			Name:      "paths_per_evaluation",
			Help:      "Execution paths explored per evaluation.",
			Buckets:   prometheus.ExponentialBuckets(1, 4, 8),
		}),
		duration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "ordercheck",
			Name:      "evaluation_duration_seconds",
			Help:      "Wall time of one order evaluation.",
			Buckets:   prometheus.ExponentialBuckets(0.00001, 4, 10),
		}),
	}

	for _, c := range []prometheus.Collector{o.runs, o.violations, o.dropped, o.paths, o.duration} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return o, nil
}

func (o *PrometheusRunObserver) ObserveRun(s RunStats) {
	o.runs.WithLabelValues(strconv.FormatBool(s.OK)).Inc()
	o.violations.Add(float64(s.Violations))
	o.dropped.Add(float64(s.Dropped))
	o.paths.Observe(float64(s.Paths))
	o.duration.Observe(s.Duration.Seconds())
}
