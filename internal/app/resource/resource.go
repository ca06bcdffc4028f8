// Package resource samples process resource usage (CPU%, RSS, goroutine
// count) for Execution.ResourceUsage snapshots, taken at stage boundaries.
package resource

import (
	"os"
	"runtime"
	"time"

	"github.com/shirou/gopsutil/v3/process"

	"github.com/shipforge/orchestrator/internal/app/domain/execution"
)

// Sampler captures point-in-time process resource usage.
type Sampler struct {
	proc *process.Process
}

// NewSampler constructs a Sampler bound to the current process. Returns a
// Sampler that yields zero-valued snapshots if the process handle cannot
// be opened (e.g. unsupported platform), rather than failing startup.
func NewSampler() *Sampler {
	proc, err := process.NewProcess(int32(os.Getpid()))
	if err != nil {
		return &Sampler{}
	}
	return &Sampler{proc: proc}
}

// Sample takes a snapshot of current CPU%, RSS, and goroutine count.
func (s *Sampler) Sample() execution.ResourceUsage {
	usage := execution.ResourceUsage{
		NumGoroutine: runtime.NumGoroutine(),
		SampledAt:    time.Now().UTC(),
	}
	if s.proc == nil {
		return usage
	}
	if cpuPct, err := s.proc.Percent(0); err == nil {
		usage.CPUPercent = cpuPct
	}
	if memInfo, err := s.proc.MemoryInfo(); err == nil && memInfo != nil {
		usage.RSSBytes = memInfo.RSS
	}
	return usage
}
