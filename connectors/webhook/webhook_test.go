package webhook

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kilianp07/agvfleet/auth"
	"github.com/kilianp07/agvfleet/core/events"
	"github.com/kilianp07/agvfleet/core/model"
)

type receiver struct {
	mu    sync.Mutex
	got   []Notification
	auths []string
}

func (r *receiver) handler(status func(n int) int) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		var msg Notification
		_ = json.NewDecoder(req.Body).Decode(&msg)
		r.mu.Lock()
		r.got = append(r.got, msg)
		r.auths = append(r.auths, req.Header.Get("Authorization"))
		n := len(r.got)
		r.mu.Unlock()
		w.WriteHeader(status(n))
	}
}

func (r *receiver) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.got)
}

func transition(name string, from, to model.OrderState) events.TransportOrderChanged {
	prev := model.TransportOrder{Name: name, State: from}
	cur := model.TransportOrder{Name: name, State: to, ProcessingVehicle: "v1"}
	return events.TransportOrderChanged{Previous: prev, Current: cur}
}

func start(t *testing.T, n *Notifier) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		n.Run(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
}

func TestNotifierPostsFinalStates(t *testing.T) {
	ResetMetrics(prometheus.NewRegistry())
	rcv := &receiver{}
	srv := httptest.NewServer(rcv.handler(func(int) int { return http.StatusNoContent }))
	defer srv.Close()

	n, err := New(Config{URL: srv.URL}, nil)
	require.NoError(t, err)
	start(t, n)

	h := n.Handlers()
	h.TransportOrder(transition("o1", model.OrderDispatchable, model.OrderBeingProcessed))
	h.TransportOrder(transition("o1", model.OrderBeingProcessed, model.OrderFinished))
	h.TransportOrder(transition("o2", model.OrderBeingProcessed, model.OrderFailed))

	require.Eventually(t, func() bool { return rcv.count() == 2 }, 2*time.Second, 10*time.Millisecond)
	rcv.mu.Lock()
	defer rcv.mu.Unlock()
	assert.Equal(t, "o1", rcv.got[0].Order)
	assert.Equal(t, "finished", rcv.got[0].State)
	assert.Equal(t, "being-processed", rcv.got[0].PreviousState)
	assert.Equal(t, "v1", rcv.got[0].Vehicle)
	assert.Equal(t, "failed", rcv.got[1].State)
	assert.Equal(t, 2.0, testutil.ToFloat64(notifications.WithLabelValues("sent")))
}

func TestNotifierRefreshesTokenOnUnauthorized(t *testing.T) {
	ResetMetrics(prometheus.NewRegistry())
	var issued int32
	tokens := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&issued, 1)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"access_token":"tok","token_type":"bearer","expires_in":3600}`))
	}))
	defer tokens.Close()
	rcv := &receiver{}
	srv := httptest.NewServer(rcv.handler(func(n int) int {
		if n == 1 {
			return http.StatusUnauthorized
		}
		return http.StatusOK
	}))
	defer srv.Close()

	n, err := New(Config{URL: srv.URL, Auth: &auth.Conf{ClientID: "id", AuthURL: tokens.URL}}, nil)
	require.NoError(t, err)
	start(t, n)
	n.Handlers().TransportOrder(transition("o1", model.OrderBeingProcessed, model.OrderFinished))

	require.Eventually(t, func() bool { return rcv.count() == 2 }, 2*time.Second, 10*time.Millisecond)
	rcv.mu.Lock()
	assert.Equal(t, "Bearer tok", rcv.auths[1])
	rcv.mu.Unlock()
	assert.Equal(t, int32(2), atomic.LoadInt32(&issued))
}

func TestNotifierDropsWhenQueueFull(t *testing.T) {
	ResetMetrics(prometheus.NewRegistry())
	n, err := New(Config{URL: "http://localhost:1", QueueSize: 1}, nil)
	require.NoError(t, err)
	h := n.Handlers()
	h.TransportOrder(transition("o1", model.OrderBeingProcessed, model.OrderFinished))
	h.TransportOrder(transition("o2", model.OrderBeingProcessed, model.OrderFinished))
	assert.Equal(t, 1.0, testutil.ToFloat64(notifications.WithLabelValues("dropped")))
}

func TestConfigValidate(t *testing.T) {
	assert.NoError(t, Config{}.Validate())
	assert.Error(t, Config{URL: "ftp://x"}.Validate())
	assert.Error(t, Config{URL: "http://x", Auth: &auth.Conf{}}.Validate())

	c := Config{URL: "http://x"}
	c.SetDefaults()
	assert.Equal(t, []string{"finished", "failed", "unroutable"}, c.States)
}
