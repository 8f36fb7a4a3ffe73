// Package admission provides the resource gatekeeper for the batch worker
// pool: a task may only start while the concurrency slot and memory budget
// both have headroom.
package admission

import (
	"context"
	"os"
	"sync"
	"time"

	"github.com/shirou/gopsutil/v3/mem"
	"github.com/shirou/gopsutil/v3/process"

	"github.com/mediafab/vidforge/internal/metrics"
)

// PollInterval is the dispatcher wait between admission attempts.
const PollInterval = 100 * time.Millisecond

// Reason provides the failure taxonomy for metrics. Values are lowercase for
// stable PromQL queries.
type Reason string

const (
	ReasonAdmitted    Reason = "admitted"
	ReasonTaskLimit   Reason = "task_limit"
	ReasonMemoryLimit Reason = "memory_limit"
)

// MemoryUsedProvider returns a current memory usage reading in MB.
type MemoryUsedProvider func() (int, error)

// SystemMemoryUsedMB reads the machine-wide used memory. The admission gate
// compares this, not the process RSS, so external pressure also throttles
// dispatch.
func SystemMemoryUsedMB() (int, error) {
	vm, err := mem.VirtualMemory()
	if err != nil {
		return 0, err
	}
	return int(vm.Used / (1024 * 1024)), nil
}

// ProcessMemoryUsedMB reads the resident set size of this process, used for
// peak tracking in batch results.
func ProcessMemoryUsedMB() (int, error) {
	p, err := process.NewProcess(int32(os.Getpid()))
	if err != nil {
		return 0, err
	}
	info, err := p.MemoryInfo()
	if err != nil {
		return 0, err
	}
	return int(info.RSS / (1024 * 1024)), nil
}

// Manager gates task starts on a concurrency slot limit and a memory budget.
// Reservations are tracked per task so release is symmetric even when
// estimates differ between tasks.
type Manager struct {
	mu            sync.Mutex
	maxConcurrent int
	memoryLimitMB int
	reservations  map[string]int // task id -> reserved MB
	reservedMB    int

	usedMB MemoryUsedProvider
}

// New creates a Manager. provider may be nil, in which case system used
// memory is probed.
func New(maxConcurrent, memoryLimitMB int, provider MemoryUsedProvider) *Manager {
	if maxConcurrent <= 0 {
		maxConcurrent = 1
	}
	if provider == nil {
		provider = SystemMemoryUsedMB
	}
	return &Manager{
		maxConcurrent: maxConcurrent,
		memoryLimitMB: memoryLimitMB,
		reservations:  make(map[string]int),
		usedMB:        provider,
	}
}

// TryAdmit atomically checks both gates and reserves the slot on success:
// active < maxConcurrent and usedMB + estimatedMB <= memoryLimitMB.
// If the memory probe fails the memory gate is skipped rather than blocking
// all work.
func (m *Manager) TryAdmit(taskID string, estimatedMB int) (bool, Reason) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if len(m.reservations) >= m.maxConcurrent {
		metrics.RecordReject(string(ReasonTaskLimit))
		return false, ReasonTaskLimit
	}

	if m.memoryLimitMB > 0 {
		used, err := m.usedMB()
		if err == nil && used+estimatedMB > m.memoryLimitMB {
			metrics.RecordReject(string(ReasonMemoryLimit))
			return false, ReasonMemoryLimit
		}
	}

	m.reservations[taskID] = estimatedMB
	m.reservedMB += estimatedMB

	metrics.RecordAdmit()
	metrics.SetActiveTasks(float64(len(m.reservations)))
	metrics.SetMemoryReservedMB(float64(m.reservedMB))
	return true, ReasonAdmitted
}

// Release frees the slot and reservation held by taskID. Unknown ids are
// ignored so a double release cannot corrupt the budget.
func (m *Manager) Release(taskID string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	est, ok := m.reservations[taskID]
	if !ok {
		return
	}
	delete(m.reservations, taskID)
	m.reservedMB -= est

	metrics.SetActiveTasks(float64(len(m.reservations)))
	metrics.SetMemoryReservedMB(float64(m.reservedMB))
}

// Acquire blocks until the task is admitted or ctx is cancelled, polling every
// PollInterval.
func (m *Manager) Acquire(ctx context.Context, taskID string, estimatedMB int) error {
	if ok, _ := m.TryAdmit(taskID, estimatedMB); ok {
		return nil
	}
	ticker := time.NewTicker(PollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if ok, _ := m.TryAdmit(taskID, estimatedMB); ok {
				return nil
			}
		}
	}
}

// Active returns the number of tasks currently holding a slot.
func (m *Manager) Active() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.reservations)
}

// ReservedMB returns the memory budget currently reserved.
func (m *Manager) ReservedMB() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.reservedMB
}
