// Package hostmetrics collects host-level system telemetry — CPU, RAM,
// disk, core count, and uptime — for the unscoped machine_data sample the
// agent emits once per scrape cycle.
package hostmetrics

import (
	"context"
	"fmt"
	"runtime"
	"time"

	"github.com/shirou/gopsutil/v4/cpu"
	"github.com/shirou/gopsutil/v4/disk"
	"github.com/shirou/gopsutil/v4/host"
	"github.com/shirou/gopsutil/v4/mem"
)

// Snapshot is one point-in-time read of host telemetry.
type Snapshot struct {
	CPUPercent float64
	RAMUsed    uint64
	RAMFree    uint64
	DiskUsed   uint64
	DiskFree   uint64
	CoreCount  int
	UptimeSecs uint64
}

// DiskPath is the filesystem path used for disk usage sampling.
const DiskPath = "/"

// cpuSampleWindow is how long Collect blocks measuring CPU utilization.
const cpuSampleWindow = 200 * time.Millisecond

// Collect reads a full Snapshot. A per-source failure yields zero values
// for that source rather than aborting the whole read — a single
// unavailable counter (e.g. no disk mounted at DiskPath) should not cost
// the agent the rest of its telemetry.
func Collect(ctx context.Context) (Snapshot, error) {
	var snap Snapshot

	if percents, err := cpu.PercentWithContext(ctx, cpuSampleWindow, false); err == nil && len(percents) > 0 {
		snap.CPUPercent = percents[0]
	}

	if vm, err := mem.VirtualMemoryWithContext(ctx); err == nil {
		snap.RAMUsed = vm.Used
		snap.RAMFree = vm.Available
	}

	if du, err := disk.UsageWithContext(ctx, DiskPath); err == nil {
		snap.DiskUsed = du.Used
		snap.DiskFree = du.Free
	}

	if info, err := host.InfoWithContext(ctx); err == nil {
		snap.UptimeSecs = info.Uptime
	}

	snap.CoreCount = runtime.NumCPU()

	return snap, nil
}

// CollectWithValidation wraps Collect and surfaces a descriptive error if
// every source failed, which would otherwise silently produce an
// all-zero snapshot indistinguishable from a genuinely idle host.
func CollectWithValidation(ctx context.Context) (Snapshot, error) {
	snap, err := Collect(ctx)
	if err != nil {
		return snap, err
	}
	if snap.CPUPercent == 0 && snap.RAMUsed == 0 && snap.DiskUsed == 0 && snap.UptimeSecs == 0 {
		return snap, fmt.Errorf("hostmetrics: all telemetry sources unavailable")
	}
	return snap, nil
}
