package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	dto "github.com/prometheus/client_model/go"
)

// Admission control metrics. No task IDs in labels.

var (
	// AdmissionAdmitTotal counts granted admission requests.
	AdmissionAdmitTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "vidforge_admission_admit_total",
		Help: "Total number of admitted task slots.",
	})

	// AdmissionRejectTotal counts denied admission requests by reason.
	AdmissionRejectTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "vidforge_admission_reject_total",
		Help: "Total number of rejected admission requests, by reason (task_limit/memory_limit).",
	}, []string{"reason"})

	// ActiveTasks tracks tasks currently holding a slot.
	ActiveTasks = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "vidforge_active_tasks",
		Help: "Current number of tasks holding an admission slot.",
	})

	// MemoryReservedMB tracks the memory budget currently reserved by running tasks.
	MemoryReservedMB = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "vidforge_memory_reserved_mb",
		Help: "Memory budget in MB currently reserved by admitted tasks.",
	})
)

// RecordAdmit increments the admission counter.
func RecordAdmit() {
	AdmissionAdmitTotal.Inc()
}

// RecordReject increments the rejection counter.
// reason: "task_limit" or "memory_limit"
func RecordReject(reason string) {
	AdmissionRejectTotal.WithLabelValues(reason).Inc()
}

// SetActiveTasks sets the active-task gauge.
func SetActiveTasks(n float64) {
	ActiveTasks.Set(n)
}

// SetMemoryReservedMB sets the reserved-memory gauge.
func SetMemoryReservedMB(mb float64) {
	MemoryReservedMB.Set(mb)
}

// GetActiveTasks returns the current value of the gauge (for testing).
func GetActiveTasks() float64 {
	var m dto.Metric
	if err := ActiveTasks.Write(&m); err != nil {
		return 0
	}
	return m.GetGauge().GetValue()
}
