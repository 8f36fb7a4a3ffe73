// Package metrics provides Prometheus metrics for the vidforge pipeline.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	dto "github.com/prometheus/client_model/go"
)

// Task queue and batch metrics. Labels use closed sets only (status names,
// stage names); task IDs never appear as label values.

var (
	// TasksSubmittedTotal counts tasks accepted into the queue.
	TasksSubmittedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "vidforge_tasks_submitted_total",
		Help: "Total number of tasks submitted to the queue.",
	})

	// TaskTransitionsTotal counts task status transitions.
	TaskTransitionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "vidforge_task_transitions_total",
		Help: "Total number of task status transitions, by source and target status.",
	}, []string{"from", "to"})

	// TasksFinishedTotal counts tasks reaching a terminal status.
	TasksFinishedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "vidforge_tasks_finished_total",
		Help: "Total number of tasks reaching a terminal status.",
	}, []string{"status"})

	// TaskRetriesTotal counts retry attempts scheduled for failed tasks.
	TaskRetriesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "vidforge_task_retries_total",
		Help: "Total number of task retry attempts.",
	})

	// TaskDurationSeconds observes wall-clock duration of completed tasks.
	TaskDurationSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "vidforge_task_duration_seconds",
		Help:    "Wall-clock duration of tasks from start to terminal status.",
		Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600, 1800, 3600},
	})

	// QueueDepth tracks tasks currently waiting in pending state.
	QueueDepth = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "vidforge_queue_depth",
		Help: "Current number of pending tasks in the queue.",
	})
)

// RecordTaskSubmitted increments the submission counter.
func RecordTaskSubmitted() {
	TasksSubmittedTotal.Inc()
}

// RecordTaskTransition increments the transition counter.
func RecordTaskTransition(from, to string) {
	TaskTransitionsTotal.WithLabelValues(from, to).Inc()
}

// RecordTaskFinished increments the terminal-status counter and observes the
// task duration.
func RecordTaskFinished(status string, seconds float64) {
	TasksFinishedTotal.WithLabelValues(status).Inc()
	if seconds > 0 {
		TaskDurationSeconds.Observe(seconds)
	}
}

// RecordTaskRetry increments the retry counter.
func RecordTaskRetry() {
	TaskRetriesTotal.Inc()
}

// SetQueueDepth sets the pending-task gauge.
func SetQueueDepth(n float64) {
	QueueDepth.Set(n)
}

// GetQueueDepth returns the current value of the gauge (for testing).
func GetQueueDepth() float64 {
	var m dto.Metric
	if err := QueueDepth.Write(&m); err != nil {
		return 0
	}
	return m.GetGauge().GetValue()
}
