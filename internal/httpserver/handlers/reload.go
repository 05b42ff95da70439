package handlers

import (
	"net/http"

	"github.com/MrSnakeDoc/whiterails/internal/httpserver/deps"
	"github.com/MrSnakeDoc/whiterails/internal/logger"
)

type reloadResponse struct {
	Triggered bool   `json:"triggered"`
	Message   string `json:"message"`
}

// Reload requests an immediate re-scan of the services directory
func Reload(d deps.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		select {
		case d.ReloadTrigger <- struct{}{}:
			d.Logger.Info("manual rescan triggered via endpoint",
				logger.String("remote_ip", r.RemoteAddr))
			writeJSON(w, http.StatusAccepted, reloadResponse{Triggered: true, Message: "rescan triggered"})
		default:
			d.Logger.Warn("rescan already pending",
				logger.String("remote_ip", r.RemoteAddr))
			writeJSON(w, http.StatusTooManyRequests, reloadResponse{Message: "rescan already pending, please wait"})
		}
	}
}
