package deps

import (
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/MrSnakeDoc/whiterails/internal/activity"
	"github.com/MrSnakeDoc/whiterails/internal/logger"
	"github.com/MrSnakeDoc/whiterails/internal/registry"
	"github.com/MrSnakeDoc/whiterails/internal/scheduler"
	"github.com/MrSnakeDoc/whiterails/internal/sysinfo"
	redisstore "github.com/MrSnakeDoc/whiterails/internal/store/redis"
)

type Deps struct {
	Logger        logger.Logger
	StartTime     time.Time
	Version       string
	Commit        string
	BuildDate     string
	GoVersion     string
	TimeNow       func() time.Time   // for testing, defaults to time.Now
	AllowedCIDRS  []string           // IPs allowed to access the admin endpoints
	TrustProxy    bool               // true if running behind a trusted reverse proxy (e.g., cloudflared)
	Registry      *registry.Registry // live service set
	Loop          *scheduler.Loop    // nil in tests that only exercise the registry
	Watcher       *scheduler.Watcher // nil when WR_WATCH=false
	Activity      activity.Clock     // last recorded activity
	Sampler       sysinfo.Sampler    // host attributes shown by /infra
	RunsStore     *redisstore.Store  // nil when Redis is disabled
	RedisClient   *redis.Client      // nil when Redis is disabled
	ReloadTrigger chan struct{}      // Channel to trigger manual re-scan
	HistoryLimit  int                // default page size for /runs
}

// Now returns d.TimeNow() or time.Now() when unset.
func (d Deps) Now() time.Time {
	if d.TimeNow != nil {
		return d.TimeNow()
	}
	return time.Now()
}
