package api

import (
	"context"
	"sync"

	"github.com/kilianp07/agvfleet/core/dispatch/logging"
)

type memLog struct {
	mu   sync.Mutex
	recs []logging.LogRecord
}

func (l *memLog) Append(_ context.Context, rec logging.LogRecord) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.recs = append(l.recs, rec)
	return nil
}

func (l *memLog) Query(_ context.Context, q logging.LogQuery) ([]logging.LogRecord, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	var out []logging.LogRecord
	for _, r := range l.recs {
		if q.Match(r) {
			out = append(out, r)
		}
	}
	return out, nil
}

func (l *memLog) Close() error { return nil }
