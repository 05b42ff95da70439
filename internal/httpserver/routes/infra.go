package routes

import (
	"github.com/go-chi/chi/v5"

	"github.com/MrSnakeDoc/whiterails/internal/httpserver/deps"
	"github.com/MrSnakeDoc/whiterails/internal/httpserver/handlers"
)

func init() { Protected(registerInfra) }

func registerInfra(r chi.Router, d deps.Deps) {
	r.Get("/infra", handlers.Infra(d))
}
