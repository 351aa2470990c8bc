package dispatch

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/kilianp07/agvfleet/api/respond"
	"github.com/kilianp07/agvfleet/core/dispatch/logging"
)

// NewLogHandler returns an HTTP handler exposing the decision log via GET /api/dispatch/logs.
// Requests must include an Authorization header with "Bearer <token>" when token is non-empty.
func NewLogHandler(store logging.LogStore, token string) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if token != "" && r.Header.Get("Authorization") != "Bearer "+token {
			respond.Error(w, http.StatusUnauthorized, fmt.Errorf("unauthorized"))
			return
		}
		params := r.URL.Query()
		q := logging.LogQuery{
			Vehicle: params.Get("vehicle"),
			Order:   params.Get("order"),
			Kind:    params.Get("kind"),
		}
		var err error
		if q.Start, err = parseTime(params.Get("start")); err != nil {
			respond.Error(w, http.StatusBadRequest, err)
			return
		}
		if q.End, err = parseTime(params.Get("end")); err != nil {
			respond.Error(w, http.StatusBadRequest, err)
			return
		}
		if l := params.Get("limit"); l != "" {
			if q.Limit, err = strconv.Atoi(l); err != nil || q.Limit < 0 {
				respond.Error(w, http.StatusBadRequest, fmt.Errorf("invalid limit %q", l))
				return
			}
		}
		records, err := store.Query(r.Context(), q)
		if err != nil {
			respond.Error(w, http.StatusInternalServerError, err)
			return
		}
		if records == nil {
			records = []logging.LogRecord{}
		}
		respond.JSON(w, http.StatusOK, records)
	})
}

func parseTime(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid time %q: %w", s, err)
	}
	return t, nil
}
