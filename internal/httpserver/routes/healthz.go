package routes

import (
	"github.com/go-chi/chi/v5"

	"github.com/MrSnakeDoc/whiterails/internal/httpserver/deps"
	"github.com/MrSnakeDoc/whiterails/internal/httpserver/handlers"
)

func init() { Public(registerHealthz) }

// Liveness stays reachable from anywhere so process supervisors can probe it.
func registerHealthz(r chi.Router, d deps.Deps) {
	r.Get("/healthz", handlers.Healthz(d))
}
