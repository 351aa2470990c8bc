// Package api assembles the HTTP API of the fleet manager.
package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	apidispatch "github.com/kilianp07/agvfleet/api/dispatch"
	"github.com/kilianp07/agvfleet/api/orders"
	"github.com/kilianp07/agvfleet/api/plant"
	"github.com/kilianp07/agvfleet/api/respond"
	"github.com/kilianp07/agvfleet/api/vehicles"
	"github.com/kilianp07/agvfleet/core/dispatch/logging"
)

// Deps holds what the API serves.
type Deps struct {
	Vehicles  *vehicles.Handler
	Orders    *orders.Handler
	Plant     *plant.Handler
	Dispatch  apidispatch.Dispatcher
	Decisions logging.LogStore
	// Token protects the decision log when non-empty.
	Token string
}

// NewRouter returns the API handler.
func NewRouter(d Deps) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		respond.JSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Route("/api", func(r chi.Router) {
		if d.Vehicles != nil {
			r.Route("/vehicles", d.Vehicles.Routes)
		}
		if d.Orders != nil {
			d.Orders.Routes(r)
		}
		if d.Plant != nil {
			r.Route("/plant", d.Plant.Routes)
		}
		r.Route("/dispatch", func(r chi.Router) {
			if d.Dispatch != nil {
				r.Method(http.MethodPost, "/", apidispatch.NewTriggerHandler(d.Dispatch))
				r.Method(http.MethodPost, "/reroute", apidispatch.NewRerouteAllHandler(d.Dispatch))
			}
			if d.Decisions != nil {
				r.Method(http.MethodGet, "/logs", apidispatch.NewLogHandler(d.Decisions, d.Token))
			}
		})
	})
	return r
}
