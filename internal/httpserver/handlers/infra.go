package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/MrSnakeDoc/whiterails/internal/activity"
	"github.com/MrSnakeDoc/whiterails/internal/httpserver/deps"
)

type componentStatus struct {
	OK             bool   `json:"ok"`
	ServicesLoaded *int   `json:"services_loaded,omitempty"`
	LastScan       string `json:"last_scan,omitempty"`
	FileErrors     *int   `json:"file_errors,omitempty"`
	Dir            string `json:"dir,omitempty"`
	Mode           string `json:"mode,omitempty"`
	Impact         string `json:"impact,omitempty"`
	Detail         any    `json:"detail,omitempty"`
	Error          string `json:"error,omitempty"`
}

type infraResponse struct {
	Status     string                     `json:"status"`
	Components map[string]componentStatus `json:"components"`
}

type hostDetail struct {
	UptimeSeconds  int64   `json:"uptime_seconds"`
	Load1          float64 `json:"load1"`
	MemUsedPercent float64 `json:"mem_used_percent"`
	BatteryLevel   int     `json:"battery_level"`
	HasBattery     bool    `json:"has_battery"`
}

type activityDetail struct {
	Recorded    bool       `json:"recorded"`
	Last        *time.Time `json:"last,omitempty"`
	IdleSeconds *float64   `json:"idle_seconds,omitempty"`
}

func Infra(d deps.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		components := map[string]componentStatus{
			"registry":  checkRegistry(d),
			"scheduler": checkScheduler(d),
			"redis":     checkRedis(r.Context(), d),
			"watcher":   checkWatcher(d),
			"activity":  checkActivity(d),
			"host":      checkHost(r.Context(), d),
		}

		writeJSON(w, http.StatusOK, infraResponse{
			Status:     determineStatus(components),
			Components: components,
		})
	}
}

func determineStatus(components map[string]componentStatus) string {
	// No completed scan or a stopped loop means nothing gets evaluated.
	if !components["registry"].OK || !components["scheduler"].OK {
		return "critical"
	}
	// Redis and the watcher are optional, losing them only degrades features.
	if !components["redis"].OK || !components["watcher"].OK {
		return "degraded"
	}
	return "operational"
}

func checkRegistry(d deps.Deps) componentStatus {
	count := d.Registry.Count()
	report := d.Registry.LastReport()
	errs := len(report.Errors)

	status := componentStatus{
		OK:             !d.Registry.LastScan().IsZero() && report.Err == nil,
		ServicesLoaded: &count,
		FileErrors:     &errs,
		LastScan:       "never",
		Dir:            d.Registry.Dir(),
	}
	if last := d.Registry.LastScan(); !last.IsZero() {
		status.LastScan = last.Format("2006-01-02 15:04:05")
	}
	if report.Err != nil {
		status.Error = report.Err.Error()
	}
	return status
}

func checkScheduler(d deps.Deps) componentStatus {
	if d.Loop == nil {
		return componentStatus{OK: false, Error: "loop not initialized"}
	}
	stats := d.Loop.Stats()
	return componentStatus{OK: stats.Running, Detail: stats}
}

func checkWatcher(d deps.Deps) componentStatus {
	if d.Watcher == nil {
		return componentStatus{OK: true, Mode: "disabled", Impact: "rescan-on-timer-only"}
	}
	stats := d.Watcher.Stats()
	status := componentStatus{OK: stats.Running, Mode: "fsnotify", Detail: stats}
	if !stats.Running {
		status.Impact = "rescan-on-timer-only"
	}
	return status
}

func checkActivity(d deps.Deps) componentStatus {
	if d.Activity == nil {
		return componentStatus{OK: false, Error: "activity clock not initialized"}
	}
	detail := activityDetail{}
	if last, ok := d.Activity.Last(); ok {
		detail.Recorded = true
		detail.Last = &last
		idle, _ := activity.IdleFor(d.Activity, d.Now())
		secs := idle.Seconds()
		detail.IdleSeconds = &secs
	}
	return componentStatus{OK: true, Detail: detail}
}

func checkHost(ctx context.Context, d deps.Deps) componentStatus {
	if d.Sampler == nil {
		return componentStatus{OK: true, Mode: "disabled", Impact: "battery-conditions-assume-full"}
	}
	snap := d.Sampler.Sample(ctx)
	status := componentStatus{
		OK:   true,
		Mode: "ac",
		Detail: hostDetail{
			UptimeSeconds:  int64(snap.Uptime.Seconds()),
			Load1:          snap.Load1,
			MemUsedPercent: snap.MemUsedPercent,
			BatteryLevel:   snap.BatteryLevel,
			HasBattery:     snap.HasBattery,
		},
	}
	if snap.HasBattery {
		status.Mode = "battery"
	}
	return status
}

func checkRedis(parent context.Context, d deps.Deps) componentStatus {
	if d.RedisClient == nil {
		return componentStatus{
			OK:     true,
			Mode:   "disabled",
			Impact: "run-history-disabled",
		}
	}

	ctx, cancel := context.WithTimeout(parent, 2*time.Second)
	defer cancel()

	if err := d.RedisClient.Ping(ctx).Err(); err != nil {
		return componentStatus{
			OK:     false,
			Mode:   "degraded",
			Impact: "run-history-disabled",
			Error:  err.Error(),
		}
	}

	return componentStatus{
		OK:     true,
		Mode:   "optimal",
		Impact: "run-history-enabled",
	}
}
