package sysinfo

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeSupply(t *testing.T, dir, name, kind, capacity string) {
	t.Helper()
	supply := filepath.Join(dir, name)
	if err := os.MkdirAll(supply, 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(filepath.Join(supply, "type"), []byte(kind+"\n"), 0o644); err != nil {
		t.Fatalf("write type: %v", err)
	}
	if capacity != "" {
		if err := os.WriteFile(filepath.Join(supply, "capacity"), []byte(capacity+"\n"), 0o644); err != nil {
			t.Fatalf("write capacity: %v", err)
		}
	}
}

func TestReadBattery(t *testing.T) {
	dir := t.TempDir()
	writeSupply(t, dir, "AC", "Mains", "")
	writeSupply(t, dir, "BAT0", "Battery", "42")

	level, ok := readBattery(dir)
	if !ok || level != 42 {
		t.Errorf("readBattery() = %d, %v, want 42, true", level, ok)
	}
}

func TestReadBatteryMissing(t *testing.T) {
	if _, ok := readBattery(filepath.Join(t.TempDir(), "absent")); ok {
		t.Error("readBattery() on a missing dir should report !ok")
	}
}

func TestHostSamplerDefaultsToFullBattery(t *testing.T) {
	fixed := time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)
	s := &HostSampler{powerSupplyDir: t.TempDir(), now: func() time.Time { return fixed }}

	snap := s.Sample(context.Background())
	if snap.HasBattery {
		t.Error("HasBattery should be false without a battery supply")
	}
	if snap.BatteryLevel != FullBattery {
		t.Errorf("BatteryLevel = %d, want %d", snap.BatteryLevel, FullBattery)
	}
	if !snap.Now.Equal(fixed) {
		t.Errorf("Now = %v, want %v", snap.Now, fixed)
	}
}

func TestStaticSampler(t *testing.T) {
	fixed := time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)
	s := Static{Snapshot: Snapshot{BatteryLevel: 15}, Clock: func() time.Time { return fixed }}

	snap := s.Sample(context.Background())
	if snap.BatteryLevel != 15 || !snap.Now.Equal(fixed) {
		t.Errorf("Sample() = %+v", snap)
	}
}
