package admission

import (
	"strconv"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"

	"github.com/mediafab/vidforge/internal/log"
)

// CPUCountProvider returns the logical CPU count.
type CPUCountProvider func() (int, error)

// TotalMemoryProvider returns total system memory in GB.
type TotalMemoryProvider func() (float64, error)

// LogicalCPUCount reads the logical core count.
func LogicalCPUCount() (int, error) {
	return cpu.Counts(true)
}

// TotalMemoryGB reads total system memory.
func TotalMemoryGB() (float64, error) {
	vm, err := mem.VirtualMemory()
	if err != nil {
		return 0, err
	}
	return float64(vm.Total) / (1024 * 1024 * 1024), nil
}

// ComputeWorkers resolves the worker-pool size from the configured value.
//
// A positive integer is used as-is. "auto" (or anything unparseable) derives
// the size from the host: min(floor(cpu*2/3), floor(memGB/2), ceiling),
// clamped to >= 1.
func ComputeWorkers(configured string, ceiling int, cpus CPUCountProvider, memory TotalMemoryProvider) int {
	logger := log.WithComponent("admission")

	if n, err := strconv.Atoi(configured); err == nil && n > 0 {
		return n
	}

	if cpus == nil {
		cpus = LogicalCPUCount
	}
	if memory == nil {
		memory = TotalMemoryGB
	}

	cores, err := cpus()
	if err != nil || cores < 1 {
		cores = 1
	}
	memGB, err := memory()
	if err != nil || memGB <= 0 {
		memGB = 2
	}

	byCPU := cores * 2 / 3
	byMem := int(memGB / 2)

	workers := byCPU
	if byMem < workers {
		workers = byMem
	}
	if ceiling > 0 && ceiling < workers {
		workers = ceiling
	}
	if workers < 1 {
		workers = 1
	}

	logger.Info().
		Str("event", "admission.workers_sized").
		Int("cores", cores).
		Float64("mem_gb", memGB).
		Int("by_cpu", byCPU).
		Int("by_mem", byMem).
		Int("ceiling", ceiling).
		Int("workers", workers).
		Msg("worker pool sized")
	return workers
}
