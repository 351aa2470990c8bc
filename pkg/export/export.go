// Package export writes usage records in exchange formats.
package export

import (
	"encoding/csv"
	"encoding/json"
	"io"
	"strconv"

	"github.com/kilianp07/agvfleet/core/metrics/usage"
)

// WriteJSON writes the records to w in JSON format.
func WriteJSON(w io.Writer, recs []usage.Record) error {
	if recs == nil {
		recs = []usage.Record{}
	}
	enc := json.NewEncoder(w)
	return enc.Encode(recs)
}

// WriteCSV writes the records to w in CSV format, one row per vehicle and day.
func WriteCSV(w io.Writer, recs []usage.Record) error {
	cw := csv.NewWriter(w)
	if err := cw.Write([]string{
		"vehicle", "date", "distance", "energy_consumed", "energy_charged",
		"orders_finished", "orders_failed", "energy_per_distance", "success_ratio",
	}); err != nil {
		return err
	}
	for _, r := range recs {
		rec := []string{
			r.Vehicle,
			r.Date.Format("2006-01-02"),
			strconv.FormatInt(r.Distance, 10),
			strconv.Itoa(r.EnergyConsumed),
			strconv.Itoa(r.EnergyCharged),
			strconv.Itoa(r.OrdersFinished),
			strconv.Itoa(r.OrdersFailed),
			strconv.FormatFloat(r.EnergyPerDistance(), 'f', -1, 64),
			strconv.FormatFloat(r.SuccessRatio(), 'f', -1, 64),
		}
		if err := cw.Write(rec); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}
