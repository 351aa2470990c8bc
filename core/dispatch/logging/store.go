package logging

import (
	"context"
	"time"
)

// Kinds of dispatch decisions.
const (
	KindAssignment = "assignment"
	KindReroute    = "reroute"
	KindWithdrawal = "withdrawal"
	KindRejection  = "rejection"
	KindFinished   = "finished"
)

// LogRecord captures one dispatch decision.
type LogRecord struct {
	Timestamp time.Time `json:"timestamp"`
	Kind      string    `json:"kind"`
	Vehicle   string    `json:"vehicle,omitempty"`
	Order     string    `json:"order,omitempty"`
	Phase     string    `json:"phase,omitempty"`
	Costs     int64     `json:"costs,omitempty"`
	Reason    string    `json:"reason,omitempty"`
	// Route lists the points of the vehicle's route after the decision.
	Route []string `json:"route,omitempty"`
}

// LogQuery defines filters for retrieving records.
type LogQuery struct {
	Start   time.Time
	End     time.Time
	Vehicle string
	Order   string
	Kind    string
	// Limit keeps only the most recent matches. Zero means all.
	Limit int
}

// Tail trims recs, which are in chronological order, to the query's limit.
func (q LogQuery) Tail(recs []LogRecord) []LogRecord {
	if q.Limit > 0 && len(recs) > q.Limit {
		return recs[len(recs)-q.Limit:]
	}
	return recs
}

// Match reports whether rec passes the filters of q.
func (q LogQuery) Match(rec LogRecord) bool {
	if !q.Start.IsZero() && rec.Timestamp.Before(q.Start) {
		return false
	}
	if !q.End.IsZero() && rec.Timestamp.After(q.End) {
		return false
	}
	if q.Vehicle != "" && rec.Vehicle != q.Vehicle {
		return false
	}
	if q.Order != "" && rec.Order != q.Order {
		return false
	}
	return q.Kind == "" || rec.Kind == q.Kind
}

// LogStore persists LogRecords and supports querying.
type LogStore interface {
	Append(ctx context.Context, rec LogRecord) error
	Query(ctx context.Context, q LogQuery) ([]LogRecord, error)
	Close() error
}

// NopStore discards every record.
type NopStore struct{}

func (NopStore) Append(context.Context, LogRecord) error             { return nil }
func (NopStore) Query(context.Context, LogQuery) ([]LogRecord, error) { return nil, nil }
func (NopStore) Close() error                                         { return nil }
