package handlers

import (
	"net/http"

	"github.com/MrSnakeDoc/whiterails/internal/httpserver/deps"
	"github.com/MrSnakeDoc/whiterails/internal/sources/servicefile"
)

type servicesResponse struct {
	Count    int                    `json:"count"`
	Dir      string                 `json:"dir"`
	Services []servicefile.Document `json:"services"`
}

// Services lists the live service definitions in load order.
func Services(d deps.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		live := d.Registry.Services()
		docs := make([]servicefile.Document, len(live))
		for i, svc := range live {
			docs[i] = servicefile.FromDefinition(svc)
		}
		writeJSON(w, http.StatusOK, servicesResponse{
			Count:    len(docs),
			Dir:      d.Registry.Dir(),
			Services: docs,
		})
	}
}
