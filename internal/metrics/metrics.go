package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	// OutcomeSuccess labels successful operations.
	OutcomeSuccess = "success"
	// OutcomeError labels failed operations (provider, transport or storage issues).
	OutcomeError = "error"
	// OutcomeRetry labels jobs that failed and were rescheduled.
	OutcomeRetry = "retry"
)

var (
	repliesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "feedback",
			Name:      "replies_total",
			Help:      "Replies written by the reply workflow, partitioned by status.",
		},
		[]string{"status"},
	)

	generationDurationSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "feedback",
			Name:      "reply_generation_seconds",
			Help:      "Latency of AI reply generation in seconds, including retries.",
			Buckets:   []float64{0.25, 0.5, 1, 2, 4, 8, 16, 32, 64},
		},
		[]string{"outcome"},
	)

	escalationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "feedback",
			Name:      "escalations_total",
			Help:      "Escalation runs, partitioned by outcome (created, reused, unassigned, error).",
		},
		[]string{"outcome"},
	)

	remindersTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "feedback",
			Name:      "reminders_total",
			Help:      "Reminder e-mails, partitioned by outcome.",
		},
		[]string{"outcome"},
	)

	reviewSyncTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "feedback",
			Name:      "review_sync_reviews_total",
			Help:      "External reviews processed by review sync, partitioned by result (synced, skipped, error).",
		},
		[]string{"provider", "result"},
	)

	jobsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "feedback",
			Name:      "jobs_total",
			Help:      "Queue jobs handled by the worker, partitioned by type and outcome.",
		},
		[]string{"type", "outcome"},
	)

	jobDurationSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "feedback",
			Name:      "job_seconds",
			Help:      "Queue job handling latency in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"type"},
	)
)

// Register attaches the service collectors to the supplied Prometheus registerer.
func Register(reg prometheus.Registerer) error {
	collectors := []prometheus.Collector{
		repliesTotal,
		generationDurationSeconds,
		escalationsTotal,
		remindersTotal,
		reviewSyncTotal,
		jobsTotal,
		jobDurationSeconds,
	}

	for _, collector := range collectors {
		if err := reg.Register(collector); err != nil {
			if _, ok := err.(prometheus.AlreadyRegisteredError); ok {
				continue
			}
			return err
		}
	}
	return nil
}

// ObserveReply counts a reply row written with the given status.
func ObserveReply(status string) {
	repliesTotal.WithLabelValues(status).Inc()
}

// ObserveGeneration records a generation duration and outcome label.
func ObserveGeneration(duration time.Duration, outcome string) {
	label := outcome
	if label != OutcomeError {
		label = OutcomeSuccess
	}
	if duration < 0 {
		duration = 0
	}
	generationDurationSeconds.WithLabelValues(label).Observe(duration.Seconds())
}

// ObserveEscalation counts an escalation run.
func ObserveEscalation(outcome string) {
	escalationsTotal.WithLabelValues(outcome).Inc()
}

// ObserveReminder counts a reminder attempt.
func ObserveReminder(outcome string) {
	remindersTotal.WithLabelValues(outcome).Inc()
}

// ObserveReviewSync adds the per-run review counts.
func ObserveReviewSync(provider string, synced, skipped, errors int) {
	reviewSyncTotal.WithLabelValues(provider, "synced").Add(float64(synced))
	reviewSyncTotal.WithLabelValues(provider, "skipped").Add(float64(skipped))
	reviewSyncTotal.WithLabelValues(provider, "error").Add(float64(errors))
}

// ObserveJob records a handled queue job.
func ObserveJob(jobType, outcome string, duration time.Duration) {
	jobsTotal.WithLabelValues(jobType, outcome).Inc()
	if duration < 0 {
		duration = 0
	}
	jobDurationSeconds.WithLabelValues(jobType).Observe(duration.Seconds())
}
