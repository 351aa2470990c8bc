// Package plant exposes the driving course over HTTP.
package plant

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/kilianp07/agvfleet/api/respond"
	"github.com/kilianp07/agvfleet/core/model"
)

// Course reads the plant elements.
type Course interface {
	Points() []model.Point
	Paths() []model.Path
	Locations() []model.Location
}

// Locker locks and unlocks paths.
type Locker interface {
	SetPathLocked(path string, locked bool) error
}

// Handler serves /api/plant.
type Handler struct {
	Course Course
	Locker Locker
}

// Routes registers the plant endpoints on r.
func (h *Handler) Routes(r chi.Router) {
	r.Get("/points", func(w http.ResponseWriter, _ *http.Request) {
		respond.JSON(w, http.StatusOK, nonNil(h.Course.Points()))
	})
	r.Get("/paths", func(w http.ResponseWriter, _ *http.Request) {
		respond.JSON(w, http.StatusOK, nonNil(h.Course.Paths()))
	})
	r.Get("/locations", func(w http.ResponseWriter, _ *http.Request) {
		respond.JSON(w, http.StatusOK, nonNil(h.Course.Locations()))
	})
	r.Put("/paths/{name}/lock", h.lock)
}

func (h *Handler) lock(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	var req struct {
		Locked bool `json:"locked"`
	}
	if err := respond.Decode(r, &req); err != nil {
		respond.Error(w, http.StatusBadRequest, err)
		return
	}
	if err := h.Locker.SetPathLocked(name, req.Locked); err != nil {
		respond.Error(w, respond.Status(err), err)
		return
	}
	respond.JSON(w, http.StatusOK, map[string]any{"path": name, "locked": req.Locked})
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
