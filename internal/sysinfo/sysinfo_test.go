package sysinfo

import (
	"runtime"
	"testing"
)

func TestSnapshotPlatform(t *testing.T) {
	info := Snapshot()
	want := runtime.GOOS + "/" + runtime.GOARCH
	if info.Platform != want {
		t.Fatalf("platform = %q, want %q", info.Platform, want)
	}
	if info.CPUCores < 1 {
		t.Fatalf("cpu cores = %d", info.CPUCores)
	}
	if info.TotalMemMB == 0 {
		t.Fatal("total memory not detected")
	}
	if info.AvailableMemMB > info.TotalMemMB {
		t.Fatalf("available %d exceeds total %d", info.AvailableMemMB, info.TotalMemMB)
	}
}
