// Package metrics samples process and host resource usage during long
// parse runs and reports it through the structured log.
package metrics

import (
	"context"
	"os"
	"sync"
	"time"

	"github.com/shirou/gopsutil/v4/cpu"
	"github.com/shirou/gopsutil/v4/disk"
	"github.com/shirou/gopsutil/v4/mem"
	"github.com/shirou/gopsutil/v4/process"
	"go.uber.org/zap"
)

// Snapshot is one sampling of resource usage.
type Snapshot struct {
	CPUPercent     float64 // host CPU, 0-100
	ProcCPUPercent float64 // this process, can exceed 100 on multi-core
	MemoryPercent  float64
	MemoryUsedMB   float64
	DiskReadMBps   float64
	DiskWriteMBps  float64
	Taken          time.Time
}

// Collector samples on a fixed interval until its context is cancelled.
// PBF scans are read-heavy, so disk throughput gets sampled alongside CPU
// and memory.
type Collector struct {
	interval time.Duration
	log      *zap.Logger
	proc     *process.Process

	lastDisk     map[string]disk.IOCountersStat
	lastDiskTime time.Time

	mu   sync.RWMutex
	last *Snapshot
}

// NewCollector builds a collector. Intervals under a second fall back to
// thirty seconds.
func NewCollector(interval time.Duration, log *zap.Logger) *Collector {
	if interval < time.Second {
		interval = 30 * time.Second
	}
	proc, _ := process.NewProcess(int32(os.Getpid()))
	return &Collector{interval: interval, log: log, proc: proc}
}

// Run samples until ctx is cancelled. The first sample seeds the disk
// baseline and reports zero rates.
func (c *Collector) Run(ctx context.Context) {
	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	c.sample()
	for {
		select {
		case <-ctx.Done():
			c.log.Debug("Metrics collection stopped")
			return
		case <-ticker.C:
			c.sample()
		}
	}
}

// Last returns the most recent snapshot, or nil before the first sample.
func (c *Collector) Last() *Snapshot {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.last
}

func (c *Collector) sample() {
	snap := &Snapshot{Taken: time.Now()}

	if pcts, err := cpu.Percent(0, false); err == nil && len(pcts) > 0 {
		snap.CPUPercent = pcts[0]
	}
	if c.proc != nil {
		if pct, err := c.proc.Percent(0); err == nil {
			snap.ProcCPUPercent = pct
		}
	}
	if vmem, err := mem.VirtualMemory(); err == nil {
		snap.MemoryPercent = vmem.UsedPercent
		snap.MemoryUsedMB = float64(vmem.Used) / (1024 * 1024)
	}

	if counters, err := disk.IOCounters(); err == nil {
		now := snap.Taken
		if c.lastDisk != nil {
			elapsed := now.Sub(c.lastDiskTime).Seconds()
			snap.DiskReadMBps, snap.DiskWriteMBps = diskRates(c.lastDisk, counters, elapsed)
		}
		c.lastDisk = counters
		c.lastDiskTime = now
	}

	c.mu.Lock()
	c.last = snap
	c.mu.Unlock()

	c.log.Info("Resource usage",
		zap.Float64("sys_cpu", snap.CPUPercent),
		zap.Float64("proc_cpu", snap.ProcCPUPercent),
		zap.Float64("mem_pct", snap.MemoryPercent),
		zap.Float64("mem_used_mb", snap.MemoryUsedMB),
		zap.Float64("disk_r_mbps", snap.DiskReadMBps),
		zap.Float64("disk_w_mbps", snap.DiskWriteMBps),
	)
}

// diskRates sums byte deltas across devices and converts to MB/s. Wrapped
// counters contribute nothing.
func diskRates(last, cur map[string]disk.IOCountersStat, elapsed float64) (readMBps, writeMBps float64) {
	if elapsed < 0.1 {
		return 0, 0
	}
	var readDelta, writeDelta uint64
	for name, counter := range cur {
		prev, ok := last[name]
		if !ok {
			continue
		}
		if counter.ReadBytes >= prev.ReadBytes {
			readDelta += counter.ReadBytes - prev.ReadBytes
		}
		if counter.WriteBytes >= prev.WriteBytes {
			writeDelta += counter.WriteBytes - prev.WriteBytes
		}
	}
	const mb = 1024 * 1024
	return float64(readDelta) / elapsed / mb, float64(writeDelta) / elapsed / mb
}
