// Package respond writes JSON responses for the HTTP API.
package respond

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/kilianp07/agvfleet/core/dispatch"
	"github.com/kilianp07/agvfleet/core/objectstore"
)

// JSON writes v with the given status code.
func JSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// Error writes err as {"error": "..."} with the given status code.
func Error(w http.ResponseWriter, status int, err error) {
	JSON(w, status, map[string]string{"error": err.Error()})
}

// Status maps domain errors to HTTP status codes.
func Status(err error) int {
	switch {
	case errors.Is(err, dispatch.ErrUnknownVehicle), errors.Is(err, dispatch.ErrUnknownOrder),
		errors.Is(err, objectstore.ErrUnknownVehicle), errors.Is(err, objectstore.ErrUnknownOrder),
		errors.Is(err, objectstore.ErrUnknownPath), errors.Is(err, objectstore.ErrUnknownSequence):
		return http.StatusNotFound
	case errors.Is(err, objectstore.ErrExists):
		return http.StatusConflict
	default:
		return http.StatusBadRequest
	}
}

// Decode reads a JSON request body into v.
func Decode(r *http.Request, v any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}
