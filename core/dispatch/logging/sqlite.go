package logging

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

// SQLiteStore keeps decisions in a dispatch_decisions table, one column per
// field so the API filters run in SQL.
type SQLiteStore struct {
	db *sql.DB
}

const decisionSchema = `
CREATE TABLE IF NOT EXISTS dispatch_decisions (
	id         INTEGER PRIMARY KEY AUTOINCREMENT,
	ts         INTEGER NOT NULL,
	kind       TEXT NOT NULL,
	vehicle    TEXT NOT NULL DEFAULT '',
	order_name TEXT NOT NULL DEFAULT '',
	phase      TEXT NOT NULL DEFAULT '',
	costs      INTEGER NOT NULL DEFAULT 0,
	reason     TEXT NOT NULL DEFAULT '',
	route      TEXT NOT NULL DEFAULT ''
);
CREATE INDEX IF NOT EXISTS dispatch_decisions_vehicle ON dispatch_decisions (vehicle, ts);
CREATE INDEX IF NOT EXISTS dispatch_decisions_order ON dispatch_decisions (order_name, ts);`

// NewSQLiteStore opens or creates the database at path.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	if _, err := db.Exec(decisionSchema); err != nil {
		if cerr := db.Close(); cerr != nil {
			return nil, fmt.Errorf("close db: %v (schema err: %w)", cerr, err)
		}
		return nil, err
	}
	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) Append(ctx context.Context, rec LogRecord) error {
	var route string
	if len(rec.Route) > 0 {
		b, err := json.Marshal(rec.Route)
		if err != nil {
			return err
		}
		route = string(b)
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO dispatch_decisions (ts, kind, vehicle, order_name, phase, costs, reason, route)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.Timestamp.UnixNano(), rec.Kind, rec.Vehicle, rec.Order, rec.Phase, rec.Costs, rec.Reason, route)
	return err
}

// Query returns matching records oldest first. With a limit the newest rows
// are selected and then put back in chronological order.
func (s *SQLiteStore) Query(ctx context.Context, q LogQuery) ([]LogRecord, error) {
	var (
		where []string
		args  []any
	)
	add := func(cond string, v any) {
		where = append(where, cond)
		args = append(args, v)
	}
	if !q.Start.IsZero() {
		add("ts >= ?", q.Start.UnixNano())
	}
	if !q.End.IsZero() {
		add("ts <= ?", q.End.UnixNano())
	}
	if q.Kind != "" {
		add("kind = ?", q.Kind)
	}
	if q.Vehicle != "" {
		add("vehicle = ?", q.Vehicle)
	}
	if q.Order != "" {
		add("order_name = ?", q.Order)
	}
	query := `SELECT id, ts, kind, vehicle, order_name, phase, costs, reason, route FROM dispatch_decisions`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	if q.Limit > 0 {
		query = `SELECT * FROM (` + query + ` ORDER BY ts DESC, id DESC LIMIT ?)`
		args = append(args, q.Limit)
	}
	query += ` ORDER BY ts, id`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()
	var res []LogRecord
	for rows.Next() {
		var (
			id    int64
			ts    int64
			route string
			r     LogRecord
		)
		if err := rows.Scan(&id, &ts, &r.Kind, &r.Vehicle, &r.Order, &r.Phase, &r.Costs, &r.Reason, &route); err != nil {
			return nil, err
		}
		r.Timestamp = time.Unix(0, ts)
		if route != "" {
			if err := json.Unmarshal([]byte(route), &r.Route); err != nil {
				return nil, fmt.Errorf("decision %d: route: %w", id, err)
			}
		}
		res = append(res, r)
	}
	return res, rows.Err()
}

func (s *SQLiteStore) Close() error { return s.db.Close() }
