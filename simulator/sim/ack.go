package sim

import (
	"context"
	"math/rand"
	"sync"
	"time"

	coremqtt "github.com/kilianp07/agvfleet/core/mqtt"
)

var (
	rngMu sync.Mutex
	rng   = rand.New(rand.NewSource(time.Now().UnixNano()))
)

func chance(p float64) bool {
	if p <= 0 {
		return false
	}
	rngMu.Lock()
	defer rngMu.Unlock()
	return rng.Float64() < p
}

// AckStrategy decides how a vehicle acknowledges executed commands. It may
// rewrite the report and returns false if the report is not sent at all.
type AckStrategy interface {
	Ack(ctx context.Context, msg *coremqtt.ReportMessage) bool
}

// AutoAck sends every acknowledgement after an optional fixed delay.
type AutoAck struct {
	Delay time.Duration
}

// Ack implements AckStrategy.
func (a AutoAck) Ack(ctx context.Context, _ *coremqtt.ReportMessage) bool {
	return wait(ctx, a.Delay)
}

// RandomAck drops acknowledgements with DropRate and turns executed commands
// into failed ones with FailRate. Sent acknowledgements wait for Delay.
type RandomAck struct {
	Delay    time.Duration
	DropRate float64
	FailRate float64
}

// Ack implements AckStrategy.
func (r RandomAck) Ack(ctx context.Context, msg *coremqtt.ReportMessage) bool {
	if chance(r.DropRate) {
		return false
	}
	if msg.Kind == coremqtt.ReportExecuted && chance(r.FailRate) {
		msg.Kind = coremqtt.ReportFailed
		msg.Reason = "simulated failure"
	}
	return wait(ctx, r.Delay)
}

func wait(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	select {
	case <-time.After(d):
		return true
	case <-ctx.Done():
		return false
	}
}
