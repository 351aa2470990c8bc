// Package orders exposes transport orders and order sequences over HTTP.
package orders

import (
	"fmt"
	"net/http"
	"sort"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/kilianp07/agvfleet/api/respond"
	"github.com/kilianp07/agvfleet/core/dispatch"
	"github.com/kilianp07/agvfleet/core/model"
)

// Source reads orders and sequences.
type Source interface {
	Orders() []model.TransportOrder
	Order(name string) (model.TransportOrder, bool)
	Sequences() []model.OrderSequence
	Sequence(name string) (model.OrderSequence, bool)
}

// Dispatcher accepts and withdraws orders.
type Dispatcher interface {
	Submit(order model.TransportOrder) (model.TransportOrder, error)
	SubmitSequence(seq model.OrderSequence, orders ...model.TransportOrder) (model.OrderSequence, error)
	Withdraw(order string, immediate bool) error
}

// Handler serves /api/orders and /api/sequences.
type Handler struct {
	Source     Source
	Dispatcher Dispatcher
}

// OrderRequest is the body of POST /api/orders.
type OrderRequest struct {
	Name            string              `json:"name"`
	Type            string              `json:"type"`
	Destinations    []model.Destination `json:"destinations"`
	IntendedVehicle string              `json:"intended_vehicle"`
	Dependencies    []string            `json:"dependencies"`
	Deadline        time.Time           `json:"deadline"`
	Properties      map[string]string   `json:"properties"`
}

func (req OrderRequest) order() model.TransportOrder {
	o := model.NewTransportOrder(req.Name, req.Destinations...)
	o.Type = req.Type
	o.IntendedVehicle = req.IntendedVehicle
	o.Dependencies = req.Dependencies
	o.Deadline = req.Deadline
	o.Properties = req.Properties
	o.CreatedAt = time.Now()
	return o
}

// SequenceRequest is the body of POST /api/sequences.
type SequenceRequest struct {
	Name            string         `json:"name"`
	Type            string         `json:"type"`
	IntendedVehicle string         `json:"intended_vehicle"`
	FailureFatal    bool           `json:"failure_fatal"`
	Complete        bool           `json:"complete"`
	Orders          []OrderRequest `json:"orders"`
}

// Routes registers the order endpoints on r.
func (h *Handler) Routes(r chi.Router) {
	r.Route("/orders", func(r chi.Router) {
		r.Get("/", h.list)
		r.Post("/", h.create)
		r.Get("/{name}", h.get)
		r.Post("/{name}/withdraw", h.withdraw)
	})
	r.Route("/sequences", func(r chi.Router) {
		r.Get("/", h.listSequences)
		r.Post("/", h.createSequence)
		r.Get("/{name}", h.getSequence)
	})
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	state := r.URL.Query().Get("state")
	vehicle := r.URL.Query().Get("vehicle")
	out := []model.TransportOrder{}
	for _, o := range h.Source.Orders() {
		if state != "" && string(o.State) != state {
			continue
		}
		if vehicle != "" && o.ProcessingVehicle != vehicle {
			continue
		}
		out = append(out, o)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	respond.JSON(w, http.StatusOK, out)
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	o, ok := h.Source.Order(name)
	if !ok {
		respond.Error(w, http.StatusNotFound, fmt.Errorf("order %s: %w", name, dispatch.ErrUnknownOrder))
		return
	}
	respond.JSON(w, http.StatusOK, o)
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	var req OrderRequest
	if err := respond.Decode(r, &req); err != nil {
		respond.Error(w, http.StatusBadRequest, err)
		return
	}
	o, err := h.Dispatcher.Submit(req.order())
	if err != nil {
		respond.Error(w, respond.Status(err), err)
		return
	}
	respond.JSON(w, http.StatusCreated, o)
}

func (h *Handler) withdraw(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	immediate := r.URL.Query().Get("immediate") == "true"
	if err := h.Dispatcher.Withdraw(name, immediate); err != nil {
		respond.Error(w, respond.Status(err), err)
		return
	}
	respond.JSON(w, http.StatusAccepted, map[string]any{"order": name, "immediate": immediate})
}

func (h *Handler) listSequences(w http.ResponseWriter, r *http.Request) {
	seqs := h.Source.Sequences()
	sort.Slice(seqs, func(i, j int) bool { return seqs[i].Name < seqs[j].Name })
	if seqs == nil {
		seqs = []model.OrderSequence{}
	}
	respond.JSON(w, http.StatusOK, seqs)
}

func (h *Handler) getSequence(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	s, ok := h.Source.Sequence(name)
	if !ok {
		respond.Error(w, http.StatusNotFound, fmt.Errorf("sequence %s not found", name))
		return
	}
	respond.JSON(w, http.StatusOK, s)
}

func (h *Handler) createSequence(w http.ResponseWriter, r *http.Request) {
	var req SequenceRequest
	if err := respond.Decode(r, &req); err != nil {
		respond.Error(w, http.StatusBadRequest, err)
		return
	}
	seq := model.OrderSequence{
		Name:            req.Name,
		Type:            req.Type,
		IntendedVehicle: req.IntendedVehicle,
		FailureFatal:    req.FailureFatal,
		Complete:        req.Complete,
	}
	orders := make([]model.TransportOrder, len(req.Orders))
	for i, o := range req.Orders {
		orders[i] = o.order()
	}
	s, err := h.Dispatcher.SubmitSequence(seq, orders...)
	if err != nil {
		respond.Error(w, respond.Status(err), err)
		return
	}
	respond.JSON(w, http.StatusCreated, s)
}
