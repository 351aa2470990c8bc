// Package vehicles exposes the fleet's vehicles over HTTP.
package vehicles

import (
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/kilianp07/agvfleet/api/respond"
	"github.com/kilianp07/agvfleet/core/dispatch"
	"github.com/kilianp07/agvfleet/core/metrics/usage"
	"github.com/kilianp07/agvfleet/core/model"
	"github.com/kilianp07/agvfleet/pkg/export"
)

// Fleet reads vehicles.
type Fleet interface {
	Vehicles() []model.Vehicle
	Vehicle(name string) (model.Vehicle, bool)
}

// Commander issues vehicle-related dispatch commands.
type Commander interface {
	Reroute(vehicle string, typ dispatch.RerouteType) error
	WithdrawByVehicle(vehicle string, immediate bool, reason string)
}

// IntegrationFunc changes a vehicle's integration level.
type IntegrationFunc func(vehicle string, level model.IntegrationLevel) error

// Handler serves /api/vehicles.
type Handler struct {
	Fleet       Fleet
	Commands    Commander
	Integration IntegrationFunc
	// Usage is optional; without it the kpis endpoint is not served.
	Usage usage.Store
}

// Routes registers the vehicle endpoints on r.
func (h *Handler) Routes(r chi.Router) {
	r.Get("/", h.list)
	r.Get("/{name}", h.get)
	r.Post("/{name}/reroute", h.reroute)
	r.Post("/{name}/withdraw", h.withdraw)
	r.Put("/{name}/integration-level", h.integrationLevel)
	if h.Usage != nil {
		r.Get("/{name}/kpis", h.kpis)
	}
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	vs := h.Fleet.Vehicles()
	if state := r.URL.Query().Get("proc_state"); state != "" {
		filtered := vs[:0]
		for _, v := range vs {
			if string(v.ProcState) == state {
				filtered = append(filtered, v)
			}
		}
		vs = filtered
	}
	if vs == nil {
		vs = []model.Vehicle{}
	}
	respond.JSON(w, http.StatusOK, vs)
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	v, ok := h.vehicle(w, r)
	if !ok {
		return
	}
	respond.JSON(w, http.StatusOK, v)
}

func (h *Handler) reroute(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	typ := dispatch.RegularReroute
	if r.URL.Query().Get("forced") == "true" {
		typ = dispatch.ForcedReroute
	}
	if err := h.Commands.Reroute(name, typ); err != nil {
		respond.Error(w, respond.Status(err), err)
		return
	}
	respond.JSON(w, http.StatusAccepted, map[string]string{"vehicle": name, "reroute": string(typ)})
}

func (h *Handler) withdraw(w http.ResponseWriter, r *http.Request) {
	v, ok := h.vehicle(w, r)
	if !ok {
		return
	}
	immediate := r.URL.Query().Get("immediate") == "true"
	h.Commands.WithdrawByVehicle(v.Name, immediate, "withdrawn via API")
	respond.JSON(w, http.StatusAccepted, map[string]any{"vehicle": v.Name, "immediate": immediate})
}

func (h *Handler) integrationLevel(w http.ResponseWriter, r *http.Request) {
	v, ok := h.vehicle(w, r)
	if !ok {
		return
	}
	var req struct {
		Level model.IntegrationLevel `json:"level"`
	}
	if err := respond.Decode(r, &req); err != nil {
		respond.Error(w, http.StatusBadRequest, err)
		return
	}
	if h.Integration == nil {
		respond.Error(w, http.StatusNotImplemented, fmt.Errorf("integration level changes are not supported"))
		return
	}
	if err := h.Integration(v.Name, req.Level); err != nil {
		respond.Error(w, respond.Status(err), err)
		return
	}
	respond.JSON(w, http.StatusOK, map[string]string{"vehicle": v.Name, "level": string(req.Level)})
}

// kpis serves GET /api/vehicles/{name}/kpis?start=&end=&format= with daily
// usage records. The range defaults to the current day; format=csv returns
// the raw records as CSV and format=html a chart page.
func (h *Handler) kpis(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	now := time.Now()
	start, end := now, now
	if s := r.URL.Query().Get("start"); s != "" {
		t, err := time.Parse(time.RFC3339, s)
		if err != nil {
			respond.Error(w, http.StatusBadRequest, err)
			return
		}
		start = t
	}
	if s := r.URL.Query().Get("end"); s != "" {
		t, err := time.Parse(time.RFC3339, s)
		if err != nil {
			respond.Error(w, http.StatusBadRequest, err)
			return
		}
		end = t
	}
	recs, err := h.Usage.Query(name, start, end)
	if err != nil {
		respond.Error(w, http.StatusInternalServerError, err)
		return
	}
	switch r.URL.Query().Get("format") {
	case "csv":
		w.Header().Set("Content-Type", "text/csv")
		if err := export.WriteCSV(w, recs); err != nil {
			respond.Error(w, http.StatusInternalServerError, err)
		}
		return
	case "html":
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		if err := export.WriteHTML(w, name+" usage", recs); err != nil {
			respond.Error(w, http.StatusInternalServerError, err)
		}
		return
	}
	type out struct {
		Date              string  `json:"date"`
		Distance          int64   `json:"distance"`
		EnergyConsumed    int     `json:"energy_consumed"`
		EnergyCharged     int     `json:"energy_charged"`
		OrdersFinished    int     `json:"orders_finished"`
		OrdersFailed      int     `json:"orders_failed"`
		EnergyPerDistance float64 `json:"energy_per_distance"`
		SuccessRatio      float64 `json:"success_ratio"`
	}
	res := make([]out, len(recs))
	for i, rec := range recs {
		res[i] = out{
			Date:              rec.Date.Format("2006-01-02"),
			Distance:          rec.Distance,
			EnergyConsumed:    rec.EnergyConsumed,
			EnergyCharged:     rec.EnergyCharged,
			OrdersFinished:    rec.OrdersFinished,
			OrdersFailed:      rec.OrdersFailed,
			EnergyPerDistance: rec.EnergyPerDistance(),
			SuccessRatio:      rec.SuccessRatio(),
		}
	}
	respond.JSON(w, http.StatusOK, res)
}

func (h *Handler) vehicle(w http.ResponseWriter, r *http.Request) (model.Vehicle, bool) {
	name := chi.URLParam(r, "name")
	v, ok := h.Fleet.Vehicle(name)
	if !ok {
		respond.Error(w, http.StatusNotFound, fmt.Errorf("vehicle %s: %w", name, dispatch.ErrUnknownVehicle))
		return model.Vehicle{}, false
	}
	return v, true
}
