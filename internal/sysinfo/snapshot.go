// Package sysinfo samples the host attributes conditions may refer to.
package sysinfo

import (
	"context"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/shirou/gopsutil/v3/host"
	"github.com/shirou/gopsutil/v3/load"
	"github.com/shirou/gopsutil/v3/mem"
)

// FullBattery is reported by hosts without a battery.
const FullBattery = 100

// Snapshot is a point-in-time view of the host.
type Snapshot struct {
	Now            time.Time     `json:"now"`
	Uptime         time.Duration `json:"uptime"`
	Load1          float64       `json:"load1"`
	MemUsedPercent float64       `json:"mem_used_percent"`
	BatteryLevel   int           `json:"battery_level"`
	HasBattery     bool          `json:"has_battery"`
}

// Sampler produces snapshots.
type Sampler interface {
	Sample(ctx context.Context) Snapshot
}

// HostSampler reads the real host through gopsutil. Attributes that cannot be
// read keep their zero value; sampling never fails.
type HostSampler struct {
	powerSupplyDir string
	now            func() time.Time
}

func NewHostSampler() *HostSampler {
	return &HostSampler{
		powerSupplyDir: "/sys/class/power_supply",
		now:            time.Now,
	}
}

func (s *HostSampler) Sample(ctx context.Context) Snapshot {
	snap := Snapshot{Now: s.now(), BatteryLevel: FullBattery}

	if secs, err := host.UptimeWithContext(ctx); err == nil {
		snap.Uptime = time.Duration(secs) * time.Second
	}
	if avg, err := load.AvgWithContext(ctx); err == nil {
		snap.Load1 = avg.Load1
	}
	if vm, err := mem.VirtualMemoryWithContext(ctx); err == nil {
		snap.MemUsedPercent = vm.UsedPercent
	}
	if level, ok := readBattery(s.powerSupplyDir); ok {
		snap.BatteryLevel = level
		snap.HasBattery = true
	}

	return snap
}

// readBattery returns the capacity of the first power supply of type Battery.
func readBattery(dir string) (int, bool) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return 0, false
	}
	for _, e := range entries {
		supply := filepath.Join(dir, e.Name())
		kind, err := os.ReadFile(filepath.Join(supply, "type"))
		if err != nil || strings.TrimSpace(string(kind)) != "Battery" {
			continue
		}
		raw, err := os.ReadFile(filepath.Join(supply, "capacity"))
		if err != nil {
			continue
		}
		level, err := strconv.Atoi(strings.TrimSpace(string(raw)))
		if err != nil {
			continue
		}
		return level, true
	}
	return 0, false
}

// Static always returns the same snapshot with Now refreshed by the
// provided clock. Used by tests and the eval command.
type Static struct {
	Snapshot Snapshot
	Clock    func() time.Time
}

func (s Static) Sample(context.Context) Snapshot {
	snap := s.Snapshot
	if s.Clock != nil {
		snap.Now = s.Clock()
	}
	return snap
}
