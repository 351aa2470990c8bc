// Package kpi persists vehicle usage records.
package kpi

import (
	"database/sql"
	"time"

	_ "modernc.org/sqlite"

	"github.com/kilianp07/agvfleet/core/metrics/usage"
)

// SQLiteStore persists usage records in a SQLite database.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens or creates the database and ensures schema.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	schema := `CREATE TABLE IF NOT EXISTS vehicle_usage (
        vehicle TEXT,
        day INTEGER,
        distance INTEGER,
        energy_consumed INTEGER,
        energy_charged INTEGER,
        orders_finished INTEGER,
        orders_failed INTEGER,
        PRIMARY KEY(vehicle, day)
    );`
	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &SQLiteStore{db: db}, nil
}

// Add merges the record into the row of its vehicle and day.
func (s *SQLiteStore) Add(r usage.Record) error {
	d := usage.Day(r.Date)
	_, err := s.db.Exec(`INSERT INTO vehicle_usage
        (vehicle, day, distance, energy_consumed, energy_charged, orders_finished, orders_failed)
        VALUES (?, ?, ?, ?, ?, ?, ?)
        ON CONFLICT(vehicle, day) DO UPDATE SET
            distance = distance + excluded.distance,
            energy_consumed = energy_consumed + excluded.energy_consumed,
            energy_charged = energy_charged + excluded.energy_charged,
            orders_finished = orders_finished + excluded.orders_finished,
            orders_failed = orders_failed + excluded.orders_failed`,
		r.Vehicle, d.Unix(), r.Distance, r.EnergyConsumed, r.EnergyCharged, r.OrdersFinished, r.OrdersFailed)
	return err
}

// Query returns records in the range [start,end].
func (s *SQLiteStore) Query(vehicle string, start, end time.Time) ([]usage.Record, error) {
	start = usage.Day(start)
	end = usage.Day(end)
	rows, err := s.db.Query(`SELECT vehicle, day, distance, energy_consumed, energy_charged, orders_finished, orders_failed
        FROM vehicle_usage WHERE vehicle = ? AND day >= ? AND day <= ? ORDER BY day`,
		vehicle, start.Unix(), end.Unix())
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()
	var res []usage.Record
	for rows.Next() {
		var r usage.Record
		var ts int64
		if err := rows.Scan(&r.Vehicle, &ts, &r.Distance, &r.EnergyConsumed, &r.EnergyCharged, &r.OrdersFinished, &r.OrdersFailed); err != nil {
			return nil, err
		}
		r.Date = time.Unix(ts, 0).UTC()
		res = append(res, r)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return res, nil
}

// Close closes the underlying database.
func (s *SQLiteStore) Close() error { return s.db.Close() }
