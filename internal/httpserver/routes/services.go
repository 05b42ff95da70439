package routes

import (
	"github.com/go-chi/chi/v5"

	"github.com/MrSnakeDoc/whiterails/internal/httpserver/deps"
	"github.com/MrSnakeDoc/whiterails/internal/httpserver/handlers"
)

func init() { Protected(registerServices) }

func registerServices(r chi.Router, d deps.Deps) {
	r.Get("/services", handlers.Services(d))
}
