package scenarios

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/kilianp07/agvfleet/app"
	"github.com/kilianp07/agvfleet/core/model"
)

// RunScenario runs the scenario's fleet on loopback vehicles, submits its
// orders and compares their outcome with the expectation.
func RunScenario(t *testing.T, sc *Scenario) {
	cfg, err := sc.Config(filepath.Join(t.TempDir(), "decisions.jsonl"))
	if err != nil {
		t.Fatalf("config: %v", err)
	}
	svc, err := app.New(cfg)
	if err != nil {
		t.Fatalf("service: %v", err)
	}
	defer func() { _ = svc.Close() }()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- svc.Run(ctx) }()
	defer func() {
		cancel()
		<-done
	}()

	for _, o := range sc.Orders {
		if _, err := svc.Manager.Submit(o.ToModel()); err != nil {
			t.Fatalf("submit %s: %v", o.Name, err)
		}
	}

	orders := waitFinal(svc, sc.Orders, 10*time.Second)
	counts := map[model.OrderState]int{}
	for _, o := range orders {
		counts[o.State]++
	}
	if counts[model.OrderFinished] != sc.Expected.Finished {
		t.Errorf("scenario %s expected %d finished, got %d", sc.Name, sc.Expected.Finished, counts[model.OrderFinished])
	}
	if counts[model.OrderFailed] != sc.Expected.Failed {
		t.Errorf("scenario %s expected %d failed, got %d", sc.Name, sc.Expected.Failed, counts[model.OrderFailed])
	}
	if counts[model.OrderUnroutable] != sc.Expected.Unroutable {
		t.Errorf("scenario %s expected %d unroutable, got %d", sc.Name, sc.Expected.Unroutable, counts[model.OrderUnroutable])
	}
	for name, vehicle := range sc.Expected.ProcessedBy {
		if got := orders[name].ProcessingVehicle; got != vehicle {
			t.Errorf("scenario %s: order %s processed by %q, expected %q", sc.Name, name, got, vehicle)
		}
	}
}

// waitFinal polls until every order reached a final state or the timeout
// expires, and returns the last seen orders.
func waitFinal(svc *app.Service, defs []OrderDef, timeout time.Duration) map[string]model.TransportOrder {
	deadline := time.Now().Add(timeout)
	for {
		orders := make(map[string]model.TransportOrder, len(defs))
		final := true
		for _, d := range defs {
			o, _ := svc.Store.Order(d.Name)
			orders[d.Name] = o
			if !o.State.IsFinal() {
				final = false
			}
		}
		if final || time.Now().After(deadline) {
			return orders
		}
		time.Sleep(5 * time.Millisecond)
	}
}
