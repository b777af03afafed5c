package metrics

import "github.com/prometheus/client_golang/prometheus"

var (
	JobsEnqueuedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "hookqueue_jobs_enqueued_total",
			Help: "Total number of jobs accepted by the ingress API.",
		},
	)

	DispatchesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hookqueue_dispatches_total",
			Help: "Total number of dispatch attempts by terminal status.",
		},
		[]string{"status"}, // delivered, retried, dropped
	)

	RetriesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hookqueue_retries_total",
			Help: "Total number of reschedules by reason.",
		},
		[]string{"reason"}, // e.g. http_5xx
	)

	DeadLettersTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "hookqueue_dead_letters_total",
			Help: "Total number of dropped jobs published to the dead-letter topic.",
		},
	)

	HistoryWriteFailuresTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "hookqueue_history_write_failures_total",
			Help: "Total number of audit rows lost to history write failures.",
		},
	)

	RescheduleFailuresTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "hookqueue_reschedule_failures_total",
			Help: "Total number of failed queue mutations during a retry reschedule.",
		},
	)

	DueJobs = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "hookqueue_due_jobs",
			Help: "Number of due jobs returned by the most recent poll cycle.",
		},
	)
)

func MustRegister(reg *prometheus.Registry) {
	reg.MustRegister(
		JobsEnqueuedTotal,
		DispatchesTotal,
		RetriesTotal,
		DeadLettersTotal,
		HistoryWriteFailuresTotal,
		RescheduleFailuresTotal,
		DueJobs,
	)
}
