package loopback

import (
	"context"
	"sync"
	"time"

	"github.com/kilianp07/agvfleet/core/events"
	corelogger "github.com/kilianp07/agvfleet/core/logger"
	"github.com/kilianp07/agvfleet/core/model"
	"github.com/kilianp07/agvfleet/infra/logger"
	"github.com/kilianp07/agvfleet/internal/eventbus"
)

// JobUpdater moves peripheral jobs through their states.
type JobUpdater interface {
	UpdatePeripheralJobState(name string, state model.PeripheralJobState) (model.PeripheralJob, error)
}

// PeripheralsConfig defines how the simulated peripheral devices behave.
type PeripheralsConfig struct {
	// OperationMS is the time a device needs for one job.
	OperationMS int `json:"operation_ms"`
	// FailOperations lists operations the devices fail.
	FailOperations []string `json:"fail_operations"`
}

// Peripherals simulates the devices at all locations. Every new peripheral
// job is processed after the configured delay and finished or failed.
type Peripherals struct {
	jobs  JobUpdater
	delay time.Duration
	fails map[string]bool
	log   corelogger.Logger
	wg    sync.WaitGroup
}

// NewPeripherals creates a simulator updating jobs through jobs.
func NewPeripherals(jobs JobUpdater, cfg PeripheralsConfig) *Peripherals {
	return &Peripherals{
		jobs:  jobs,
		delay: time.Duration(cfg.OperationMS) * time.Millisecond,
		fails: toSet(cfg.FailOperations),
		log:   logger.New("loopback-peripherals"),
	}
}

// Run processes peripheral jobs published on bus until ctx is done.
func (p *Peripherals) Run(ctx context.Context, bus *eventbus.TypedBus[events.Event]) {
	sub := bus.Subscribe()
	defer bus.Unsubscribe(sub)
	h := events.Handlers{
		PeripheralJob: func(e events.PeripheralJobChanged) {
			if e.Current.State != model.JobToBeProcessed || e.Previous.Name != "" {
				return
			}
			p.wg.Add(1)
			go func(job model.PeripheralJob) {
				defer p.wg.Done()
				p.process(ctx, job)
			}(e.Current)
		},
	}
	for {
		select {
		case <-ctx.Done():
			p.wg.Wait()
			return
		case ev, ok := <-sub:
			if !ok {
				p.wg.Wait()
				return
			}
			h.Handle(ev)
		}
	}
}

func (p *Peripherals) process(ctx context.Context, job model.PeripheralJob) {
	if _, err := p.jobs.UpdatePeripheralJobState(job.Name, model.JobBeingProcessed); err != nil {
		p.log.Errorf("job %s: %v", job.Name, err)
		return
	}
	if !sleep(ctx, p.delay) {
		return
	}
	final := model.JobFinished
	if p.fails[job.Operation.Operation] {
		final = model.JobFailed
	}
	if _, err := p.jobs.UpdatePeripheralJobState(job.Name, final); err != nil {
		p.log.Errorf("job %s: %v", job.Name, err)
		return
	}
	p.log.Debugf("job %s at %s: %s", job.Name, job.Operation.Location, final)
}
