package handlers

import (
	"net/http"
	"time"

	"github.com/MrSnakeDoc/whiterails/internal/httpserver/deps"
)

type readyzResponse struct {
	Ready    bool       `json:"ready"`
	LastScan *time.Time `json:"last_scan,omitempty"`
	Services int        `json:"services"`
}

// Readyz reports ready once the first directory scan has completed.
func Readyz(d deps.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		last := d.Registry.LastScan()
		resp := readyzResponse{
			Ready:    !last.IsZero(),
			Services: d.Registry.Count(),
		}
		status := http.StatusServiceUnavailable
		if resp.Ready {
			resp.LastScan = &last
			status = http.StatusOK
		}
		writeJSON(w, status, resp)
	}
}
