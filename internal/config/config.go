package config

import (
	"errors"
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"
)

const (
	DefaultServicesDir = "/var/lib/whiterails/services"

	MinTickInterval = 1 * time.Second
	MaxTickInterval = 5 * time.Second

	RescanModeScan   = "scan"
	RescanModeReload = "reload"
)

type Config struct {
	// Engine
	ServicesDir    string        // directory holding *.json service definitions
	TickInterval   time.Duration // sleep between scheduler ticks (1s..5s)
	RescanInterval time.Duration // interval between directory re-scans (default: 60s)
	RescanMode     string        // "scan" (incremental, mtime based) | "reload" (clear + scan)
	Watch          bool          // true => fsnotify triggers an early re-scan on directory changes
	MaxServices    int           // 0 = unlimited
	ShellTimeout   time.Duration // upper bound for a single shell action
	OutputLimit    int           // max captured bytes per shell/list_files action
	ListLimit      int           // max entries emitted by list_files

	LogLevel  string // "debug" | "info" | "warn" | "error"
	PrettyLog bool   // true => zap dev (color), false => zap prod (JSON)

	// Admin API
	ListenAddr      string        // ex: "127.0.0.1:8787", empty disables the API
	ShutdownTimeout time.Duration // ex: 5s
	AllowedCIDRS    []string      // optional, restrict access to specific IPs/CIDRs
	TrustProxy      bool          // true => trust X-Forwarded-For headers

	// Redis (optional: run history + notification fan-out)
	RedisAddr           string        // ex: "localhost:6379", empty disables Redis
	RedisUser           string        // optional
	RedisPassword       string        // optional
	RedisDB             int           // Redis DB number
	RedisDT             time.Duration // dial timeout
	RedisRT             time.Duration // read timeout
	RedisWT             time.Duration // write timeout
	RedisPoolSize       int           // connection pool size
	RedisConnectTimeout time.Duration // total time to retry connecting
	RedisRetryInterval  time.Duration // initial wait between retries (grows exponentially)
	RedisMaxWait        time.Duration // max wait between retries
	RedisPingTimeout    time.Duration // timeout for each ping attempt
	RedisWarnThreshold  int           // warn after this many attempts
	HistoryLimit        int           // run records kept per service
	NotifyChannel       string        // pub/sub channel for notify actions
}

func Load() *Config {
	cfg := &Config{
		ServicesDir:    getenv("WR_SERVICES_DIR", DefaultServicesDir),
		TickInterval:   clampTick(mustDuration("WR_TICK_INTERVAL", time.Second)),
		RescanInterval: mustDuration("WR_RESCAN_INTERVAL", 60*time.Second),
		RescanMode:     strings.ToLower(getenv("WR_RESCAN_MODE", RescanModeScan)),
		Watch:          mustBool("WR_WATCH", true),
		MaxServices:    getenvInt("WR_MAX_SERVICES", 0),
		ShellTimeout:   mustDuration("WR_SHELL_TIMEOUT", 5*time.Minute),
		OutputLimit:    getenvInt("WR_OUTPUT_LIMIT", 64*1024),
		ListLimit:      getenvInt("WR_LIST_LIMIT", 1000),

		LogLevel:  getenv("WR_LOG_LEVEL", "info"),
		PrettyLog: mustBool("WR_PRETTY_LOG", true),

		ListenAddr:      os.Getenv("WR_LISTEN_ADDR"),
		ShutdownTimeout: mustDuration("WR_SHUTDOWN_TIMEOUT", 5*time.Second),
		AllowedCIDRS:    parseAllowedIPs(getenv("WR_ALLOWED_CIDRS", "")),
		TrustProxy:      mustBool("WR_TRUST_PROXY", false),

		RedisAddr:           getenv("WR_REDIS_ADDR", ""),
		RedisUser:           getenv("WR_REDIS_USERNAME", ""),
		RedisPassword:       getenv("WR_REDIS_PASSWORD", ""),
		RedisDB:             getenvInt("WR_REDIS_DB", 0),
		RedisDT:             mustDuration("WR_REDIS_DIAL_TIMEOUT", 5*time.Second),
		RedisRT:             mustDuration("WR_REDIS_READ_TIMEOUT", 3*time.Second),
		RedisWT:             mustDuration("WR_REDIS_WRITE_TIMEOUT", 3*time.Second),
		RedisPoolSize:       getenvInt("WR_REDIS_POOL_SIZE", 10),
		RedisConnectTimeout: mustDuration("WR_REDIS_CONNECT_TIMEOUT", 30*time.Second),
		RedisRetryInterval:  mustDuration("WR_REDIS_RETRY_INTERVAL", 2*time.Second),
		RedisMaxWait:        mustDuration("WR_REDIS_MAX_WAIT", 10*time.Second),
		RedisPingTimeout:    mustDuration("WR_REDIS_PING_TIMEOUT", 5*time.Second),
		RedisWarnThreshold:  getenvInt("WR_REDIS_WARN_THRESHOLD", 3),
		HistoryLimit:        getenvInt("WR_HISTORY_LIMIT", 100),
		NotifyChannel:       getenv("WR_NOTIFY_CHANNEL", "whiterails:notify"),
	}

	// The admin API is on by default; only an explicitly empty value disables it.
	if _, set := os.LookupEnv("WR_LISTEN_ADDR"); !set {
		cfg.ListenAddr = "127.0.0.1:8787"
	}

	// Log config only in debug mode with redacted sensitive fields
	if cfg.LogLevel == "debug" {
		cfgCopy := *cfg
		if cfgCopy.RedisPassword != "" {
			cfgCopy.RedisPassword = "***REDACTED***"
		}
		log.Printf("[DEBUG] cfg: %+v\n", cfgCopy)
	}

	return cfg
}

// Validate reports configuration values the daemon cannot run with.
func (c *Config) Validate() error {
	var errs []error
	if strings.TrimSpace(c.ServicesDir) == "" {
		errs = append(errs, errors.New("WR_SERVICES_DIR must not be empty"))
	}
	if c.RescanInterval <= 0 {
		errs = append(errs, fmt.Errorf("WR_RESCAN_INTERVAL must be > 0, got %v", c.RescanInterval))
	}
	if c.RescanMode != RescanModeScan && c.RescanMode != RescanModeReload {
		errs = append(errs, fmt.Errorf("WR_RESCAN_MODE must be %q or %q, got %q", RescanModeScan, RescanModeReload, c.RescanMode))
	}
	if c.MaxServices < 0 {
		errs = append(errs, fmt.Errorf("WR_MAX_SERVICES must be >= 0, got %d", c.MaxServices))
	}
	if c.ShellTimeout <= 0 {
		errs = append(errs, fmt.Errorf("WR_SHELL_TIMEOUT must be > 0, got %v", c.ShellTimeout))
	}
	if c.OutputLimit <= 0 {
		errs = append(errs, fmt.Errorf("WR_OUTPUT_LIMIT must be > 0, got %d", c.OutputLimit))
	}
	if c.ListLimit <= 0 {
		errs = append(errs, fmt.Errorf("WR_LIST_LIMIT must be > 0, got %d", c.ListLimit))
	}
	if c.RedisAddr != "" && c.HistoryLimit <= 0 {
		errs = append(errs, fmt.Errorf("WR_HISTORY_LIMIT must be > 0, got %d", c.HistoryLimit))
	}
	return errors.Join(errs...)
}

// RedisEnabled reports whether run history and notification fan-out are configured.
func (c *Config) RedisEnabled() bool {
	return c.RedisAddr != ""
}

// helpers
func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getenvInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return def
}

func mustBool(key string, def bool) bool {
	if v := os.Getenv(key); v != "" {
		b, err := strconv.ParseBool(v)
		if err == nil {
			return b
		}
	}
	return def
}

func mustDuration(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}

func clampTick(d time.Duration) time.Duration {
	switch {
	case d < MinTickInterval:
		return MinTickInterval
	case d > MaxTickInterval:
		return MaxTickInterval
	default:
		return d
	}
}

func parseAllowedIPs(allowed string) []string {
	if allowed == "" {
		return nil
	}
	ips := make([]string, 0, 4)
	for _, ip := range splitAndTrim(allowed) {
		if ip != "" {
			ips = append(ips, ip)
		}
	}
	return ips
}

func splitAndTrim(s string) []string {
	if s == "" {
		return nil
	}
	raw := strings.Split(s, ",")
	parts := make([]string, 0, len(raw))
	for _, part := range raw {
		trimmed := strings.TrimSpace(part)
		// Remove surrounding quotes if present
		trimmed = strings.Trim(trimmed, `"'`)
		if trimmed != "" {
			parts = append(parts, trimmed)
		}
	}
	return parts
}
