package routes

import (
	"github.com/go-chi/chi/v5"

	"github.com/MrSnakeDoc/whiterails/internal/httpserver/deps"
	"github.com/MrSnakeDoc/whiterails/internal/httpserver/handlers"
)

func init() { Protected(registerRuns) }

func registerRuns(r chi.Router, d deps.Deps) {
	r.Get("/runs", handlers.Runs(d))
}
