package dispatch

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kilianp07/agvfleet/core/dispatch/logging"
)

type memStore struct{ recs []logging.LogRecord }

func (m *memStore) Append(_ context.Context, r logging.LogRecord) error {
	m.recs = append(m.recs, r)
	return nil
}

func (m *memStore) Query(_ context.Context, q logging.LogQuery) ([]logging.LogRecord, error) {
	var res []logging.LogRecord
	for _, r := range m.recs {
		if q.Match(r) {
			res = append(res, r)
		}
	}
	return q.Tail(res), nil
}

func (m *memStore) Close() error { return nil }

func TestLogHandler_AuthAndFilters(t *testing.T) {
	store := &memStore{}
	now := time.Now()
	require.NoError(t, store.Append(context.Background(), logging.LogRecord{
		Timestamp: now, Kind: logging.KindAssignment, Vehicle: "v1", Order: "o1",
	}))
	require.NoError(t, store.Append(context.Background(), logging.LogRecord{
		Timestamp: now, Kind: logging.KindReroute, Vehicle: "v2", Order: "o2",
	}))
	h := NewLogHandler(store, "tok")

	req := httptest.NewRequest(http.MethodGet, "/api/dispatch/logs?vehicle=v1", nil)
	req.Header.Set("Authorization", "Bearer tok")
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	require.Equal(t, http.StatusOK, rr.Code)
	var out []logging.LogRecord
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &out))
	require.Len(t, out, 1)
	assert.Equal(t, "o1", out[0].Order)

	req = httptest.NewRequest(http.MethodGet, "/api/dispatch/logs?kind=reroute", nil)
	req.Header.Set("Authorization", "Bearer tok")
	rr = httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &out))
	require.Len(t, out, 1)
	assert.Equal(t, "v2", out[0].Vehicle)

	rr = httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/dispatch/logs", nil))
	assert.Equal(t, http.StatusUnauthorized, rr.Code)
}

func TestLogHandler_BadParams(t *testing.T) {
	h := NewLogHandler(&memStore{}, "")
	for _, q := range []string{"start=yesterday", "end=2024-13-01", "limit=-1", "limit=ten"} {
		rr := httptest.NewRecorder()
		h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/dispatch/logs?"+q, nil))
		assert.Equal(t, http.StatusBadRequest, rr.Code, q)
	}
}

func TestLogHandler_Limit(t *testing.T) {
	store := &memStore{}
	now := time.Now()
	for i, o := range []string{"o1", "o2", "o3"} {
		require.NoError(t, store.Append(context.Background(), logging.LogRecord{
			Timestamp: now.Add(time.Duration(i) * time.Second), Kind: logging.KindFinished, Order: o,
		}))
	}
	rr := httptest.NewRecorder()
	NewLogHandler(store, "").ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/dispatch/logs?limit=2", nil))
	require.Equal(t, http.StatusOK, rr.Code)
	var out []logging.LogRecord
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &out))
	require.Len(t, out, 2)
	assert.Equal(t, "o2", out[0].Order)
	assert.Equal(t, "o3", out[1].Order)
}

func TestLogHandler_EmptyResultIsArray(t *testing.T) {
	h := NewLogHandler(&memStore{}, "")
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/dispatch/logs", nil))
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.JSONEq(t, `[]`, rr.Body.String())
}
