package dispatch

import (
	"net/http"

	"github.com/kilianp07/agvfleet/api/respond"
	coredispatch "github.com/kilianp07/agvfleet/core/dispatch"
)

// Dispatcher is the part of the dispatch manager the control endpoints use.
type Dispatcher interface {
	Dispatch()
	RerouteAll(typ coredispatch.RerouteType)
}

// NewTriggerHandler starts a dispatch cycle on POST /api/dispatch.
func NewTriggerHandler(d Dispatcher) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		d.Dispatch()
		respond.JSON(w, http.StatusAccepted, map[string]string{"status": "dispatch requested"})
	})
}

// NewRerouteAllHandler reroutes every vehicle on POST /api/dispatch/reroute.
// The query parameter forced=true drops the commands already sent.
func NewRerouteAllHandler(d Dispatcher) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		typ := coredispatch.RegularReroute
		if r.URL.Query().Get("forced") == "true" {
			typ = coredispatch.ForcedReroute
		}
		d.RerouteAll(typ)
		respond.JSON(w, http.StatusAccepted, map[string]string{"reroute": string(typ)})
	})
}
