// Package sysinfo collects a best-effort host resource snapshot for
// status reporting. Probe failures leave the affected fields zero.
package sysinfo

import (
	"runtime"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"

	"inferd/pkg/types"
)

// Snapshot probes the host. Never fails; unavailable values stay zero.
func Snapshot() types.SystemInfo {
	info := types.SystemInfo{Platform: runtime.GOOS + "/" + runtime.GOARCH}
	if cores, err := cpu.Counts(true); err == nil {
		info.CPUCores = cores
	}
	if vm, err := mem.VirtualMemory(); err == nil {
		info.TotalMemMB = vm.Total / (1024 * 1024)
		info.AvailableMemMB = vm.Available / (1024 * 1024)
	}
	return info
}
