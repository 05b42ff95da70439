package logger

import (
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestValidLevel(t *testing.T) {
	tests := []struct {
		level string
		want  bool
	}{
		{"debug", true},
		{"info", true},
		{"warn", true},
		{"error", true},
		{"verbose", false},
		{"", false},
	}

	for _, tt := range tests {
		t.Run(tt.level, func(t *testing.T) {
			if got := ValidLevel(tt.level); got != tt.want {
				t.Errorf("ValidLevel(%q) = %v, want %v", tt.level, got, tt.want)
			}
		})
	}
}

func TestNamedCarriesComponent(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	log := FromZap(zap.New(core)).Named("scheduler").With(String("service", "idle-notify"))

	log.Info("tick")
	log.Debug("filtered out")

	entries := logs.All()
	if len(entries) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(entries))
	}
	if entries[0].LoggerName != "scheduler" {
		t.Errorf("LoggerName = %q, want scheduler", entries[0].LoggerName)
	}
	if got := entries[0].ContextMap()["service"]; got != "idle-notify" {
		t.Errorf("service field = %v, want idle-notify", got)
	}
}
