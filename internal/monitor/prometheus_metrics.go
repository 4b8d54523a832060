package monitor

import (
	"github.com/prometheus/client_golang/prometheus"
)

func PrometheusMetrics() map[MetricTag]prometheus.Collector {
	metrics := make(map[MetricTag]prometheus.Collector)

	for tag, summaryVec := range SummaryVecMetrics {
		metrics[tag] = summaryVec
	}

	for tag, counterVec := range CounterVecMetrics {
		metrics[tag] = counterVec
	}

	for tag, histogramVec := range HistogramVecMetrics {
		metrics[tag] = histogramVec
	}

	return metrics
}

var SummaryVecMetrics = map[MetricTag]*prometheus.SummaryVec{
	HttpRequestDurationTag: prometheus.NewSummaryVec(prometheus.SummaryOpts{
		Namespace: DefaultNamespace, Subsystem: "http", Name: string(HttpRequestDurationTag),
		Help: "HTTP requests durations, sliding window = 10m",
	},
		[]string{"status", "route", "method"},
	),
	SuccessfulQueryDurationTag: prometheus.NewSummaryVec(prometheus.SummaryOpts{
		Namespace: DefaultNamespace, Subsystem: "db", Name: string(SuccessfulQueryDurationTag),
		Help: "Successful DB query durations",
	},
		[]string{"query_type"},
	),
	FailureQueryDurationTag: prometheus.NewSummaryVec(prometheus.SummaryOpts{
		Namespace: DefaultNamespace, Subsystem: "db", Name: string(FailureQueryDurationTag),
		Help: "Failure DB query durations",
	},
		[]string{"query_type"},
	),
}

var CounterVecMetrics = map[MetricTag]*prometheus.CounterVec{
	JobsSubmittedCounterTag: prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: DefaultNamespace, Subsystem: "business", Name: string(JobsSubmittedCounterTag),
		Help: "A counter of jobs accepted for execution",
	},
		[]string{"language"},
	),
	JobsCompletedCounterTag: prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: DefaultNamespace, Subsystem: "business", Name: string(JobsCompletedCounterTag),
		Help: "A counter of jobs that reached a terminal status",
	},
		[]string{"status", "language"},
	),
	JobsRequeuedCounterTag: prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: DefaultNamespace, Subsystem: "business", Name: string(JobsRequeuedCounterTag),
		Help: "A counter of running jobs sent back to the queue",
	},
		[]string{"reason"},
	),
	DispatchAttemptsCounterTag: prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: DefaultNamespace, Subsystem: string(DispatchSubservice), Name: string(DispatchAttemptsCounterTag),
		Help: "A counter of dispatch loop iterations by outcome",
	},
		[]string{"outcome"},
	),
	WorkerSessionsCounterTag: prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: DefaultNamespace, Subsystem: string(WSSubservice), Name: string(WorkerSessionsCounterTag),
		Help: "A counter of worker session lifecycle events",
	},
		[]string{"event"},
	),
}

var HistogramVecMetrics = map[MetricTag]*prometheus.HistogramVec{
	JobDurationSecondsTag: prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: DefaultNamespace, Subsystem: "business", Name: string(JobDurationSecondsTag),
		Help: "A histogram of reported job execution durations",
	},
		[]string{"language"},
	),
}
