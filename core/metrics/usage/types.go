// Package usage aggregates per-vehicle usage figures by day.
package usage

import "time"

// Record aggregates what a vehicle did on one day.
type Record struct {
	Vehicle string    `json:"vehicle"`
	Date    time.Time `json:"date"`
	// Distance is the driven path length in plant units.
	Distance       int64 `json:"distance"`
	EnergyConsumed int   `json:"energy_consumed"`
	EnergyCharged  int   `json:"energy_charged"`
	OrdersFinished int   `json:"orders_finished"`
	OrdersFailed   int   `json:"orders_failed"`
}

// EnergyPerDistance returns the consumed energy percent per 1000 units driven.
func (r Record) EnergyPerDistance() float64 {
	if r.Distance == 0 {
		return 0
	}
	return float64(r.EnergyConsumed) * 1000 / float64(r.Distance)
}

// SuccessRatio returns the share of finished orders among all ended ones.
func (r Record) SuccessRatio() float64 {
	total := r.OrdersFinished + r.OrdersFailed
	if total == 0 {
		return 0
	}
	return float64(r.OrdersFinished) / float64(total)
}
