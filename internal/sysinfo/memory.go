// Package sysinfo reports process and host memory usage for cycle summary
// logs.
package sysinfo

import (
	"runtime"

	"github.com/shirou/gopsutil/v3/mem"
)

// MemorySnapshot captures host and Go runtime memory at one instant.
type MemorySnapshot struct {
	HostTotalMB     uint64  `json:"host_total_mb"`
	HostAvailableMB uint64  `json:"host_available_mb"`
	HostUsedPercent float64 `json:"host_used_percent"`
	HeapAllocMB     uint64  `json:"heap_alloc_mb"`
	HeapSysMB       uint64  `json:"heap_sys_mb"`
}

// CaptureMemory returns a best-effort snapshot. Host figures are zero when
// the platform query fails; a cycle must never fail over metrics.
func CaptureMemory() MemorySnapshot {
	var ms runtime.MemStats
	runtime.ReadMemStats(&ms)

	snap := MemorySnapshot{
		HeapAllocMB: ms.HeapAlloc >> 20,
		HeapSysMB:   ms.HeapSys >> 20,
	}
	if v, err := mem.VirtualMemory(); err == nil {
		snap.HostTotalMB = v.Total >> 20
		snap.HostAvailableMB = v.Available >> 20
		snap.HostUsedPercent = v.UsedPercent
	}
	return snap
}
