package routes

import (
	"github.com/go-chi/chi/v5"

	"github.com/MrSnakeDoc/whiterails/internal/httpserver/deps"
	"github.com/MrSnakeDoc/whiterails/internal/httpserver/mw"
)

// Registrar mounts one or more routes.
type Registrar func(r chi.Router, d deps.Deps)

type entry struct {
	reg       Registrar
	protected bool
}

var registry []entry

// Public registers routes reachable from any address.
func Public(reg Registrar) {
	registry = append(registry, entry{reg: reg})
}

// Protected registers routes behind the WR_ALLOWED_CIDRS allow-list.
func Protected(reg Registrar) {
	registry = append(registry, entry{reg: reg, protected: true})
}

// RegisterAll is called once from httpserver.NewRouter.
func RegisterAll(r chi.Router, d deps.Deps) {
	admin := r.With(mw.AllowOnlyCIDRS(d.AllowedCIDRS, d.TrustProxy, d.Logger))
	for _, e := range registry {
		if e.protected {
			e.reg(admin, d)
			continue
		}
		e.reg(r, d)
	}
}
