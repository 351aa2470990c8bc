// Package app wires the fleet manager together.
package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/kilianp07/agvfleet/api"
	apiorders "github.com/kilianp07/agvfleet/api/orders"
	apiplant "github.com/kilianp07/agvfleet/api/plant"
	apivehicles "github.com/kilianp07/agvfleet/api/vehicles"
	"github.com/kilianp07/agvfleet/app/plugins"
	"github.com/kilianp07/agvfleet/config"
	"github.com/kilianp07/agvfleet/connectors/webhook"
	"github.com/kilianp07/agvfleet/core/dispatch"
	dispatchlog "github.com/kilianp07/agvfleet/core/dispatch/logging"
	"github.com/kilianp07/agvfleet/core/events"
	"github.com/kilianp07/agvfleet/core/factory"
	coremetrics "github.com/kilianp07/agvfleet/core/metrics"
	"github.com/kilianp07/agvfleet/core/metrics/usage"
	"github.com/kilianp07/agvfleet/core/model"
	coremon "github.com/kilianp07/agvfleet/core/monitoring"
	"github.com/kilianp07/agvfleet/core/objectstore"
	"github.com/kilianp07/agvfleet/core/router"
	"github.com/kilianp07/agvfleet/core/scheduler"
	"github.com/kilianp07/agvfleet/core/vehicle"
	"github.com/kilianp07/agvfleet/infra/logger"
	"github.com/kilianp07/agvfleet/infra/loopback"
	"github.com/kilianp07/agvfleet/infra/metrics"
	"github.com/kilianp07/agvfleet/infra/monitoring"
	"github.com/kilianp07/agvfleet/infra/mqtt"
	"github.com/kilianp07/agvfleet/internal/eventbus"
)

// Service owns every component of a running fleet manager.
type Service struct {
	Store     *objectstore.MemoryStore
	Router    *router.GraphRouter
	Scheduler *scheduler.MemoryScheduler
	Pool      *vehicle.Pool
	Manager   *dispatch.DispatchManager
	Usage     usage.Store

	cfg         *config.Config
	bus         *eventbus.TypedBus[events.Event]
	sub         <-chan events.Event
	handlers    []events.Handlers
	controllers []*vehicle.Controller
	decisions   dispatchlog.LogStore
	sink        coremetrics.MetricsSink
	mqtt        *mqtt.PahoClient
	notifier    *webhook.Notifier
	log         logger.Logger

	wg        sync.WaitGroup
	closeOnce sync.Once
}

// New creates a Service from the configuration. Nothing runs until Run.
func New(cfg *config.Config) (*Service, error) {
	if err := logger.SetLevel(cfg.LogLevel); err != nil {
		return nil, err
	}
	log := logger.New("service")
	mon, err := monitoring.NewSentryMonitor(cfg.Sentry)
	if err != nil {
		return nil, fmt.Errorf("sentry: %w", err)
	}
	coremon.Init(mon)

	bus := eventbus.NewTyped[events.Event]()
	s := &Service{
		cfg: cfg,
		bus: bus,
		// Subscribe before the store is populated so no event is missed.
		sub:   bus.Subscribe(),
		Store: objectstore.NewMemoryStore(bus),
		Pool:  vehicle.NewPool(),
		log:   log,
	}
	if err := s.init(); err != nil {
		_ = s.Close()
		return nil, err
	}
	return s, nil
}

func (s *Service) init() error {
	cfg := s.cfg
	if err := LoadPlant(s.Store, cfg.Plant); err != nil {
		return err
	}
	for _, v := range cfg.Vehicles {
		if err := s.Store.AddVehicle(v.Model()); err != nil {
			return fmt.Errorf("vehicle %s: %w", v.Name, err)
		}
	}
	cfg.Usage.SetDefaults()
	store, err := plugins.NewUsageStore(cfg.Usage)
	if err != nil {
		return fmt.Errorf("usage store: %w", err)
	}
	s.Usage = store

	s.Scheduler = scheduler.NewMemoryScheduler(logger.New("scheduler"))
	s.Router = router.NewGraphRouter(s.Store, logger.New("router"))

	sink, err := coremetrics.NewMetricsSink(cfg.Metrics.Sinks)
	if err != nil {
		return fmt.Errorf("metrics sink: %w", err)
	}
	s.sink = sink

	conf, err := factory.Encode(cfg.Logging)
	if err != nil {
		return err
	}
	decisions, err := plugins.NewLogStore(cfg.Logging.Backend, conf)
	if err != nil {
		return fmt.Errorf("decision log: %w", err)
	}
	s.decisions = decisions

	s.Manager, err = dispatch.NewDispatchManager(cfg.Dispatch, dispatch.Deps{
		Store:       s.Store,
		Router:      s.Router,
		Controllers: dispatch.FromPool(s.Pool),
		Decisions:   decisions,
		Metrics:     sink,
		Logger:      logger.New("dispatch"),
	})
	if err != nil {
		return fmt.Errorf("dispatch manager: %w", err)
	}

	env := plugins.AdapterEnv{}
	if cfg.Adapter.Type == config.AdapterMQTT {
		client, err := mqtt.NewPahoClient(cfg.MQTT)
		if err != nil {
			return fmt.Errorf("mqtt client: %w", err)
		}
		s.mqtt = client
		env.MQTT = client
		if cfg.Adapter.MQTT.TopicPrefix == "" {
			cfg.Adapter.MQTT.TopicPrefix = cfg.MQTT.TopicPrefix
		}
	}
	for _, v := range cfg.Vehicles {
		adapter, err := plugins.NewAdapter(v, cfg.Adapter, env)
		if err != nil {
			return err
		}
		ctrl, err := vehicle.NewController(vehicle.Config{
			Vehicle:   v.Name,
			Store:     s.Store,
			Scheduler: s.Scheduler,
			Adapter:   adapter,
			Jobs:      s.Store,
			Withdraw:  s.Manager.WithdrawByVehicle,
			Logger:    logger.ForVehicle("vehicle", v.Name),
		})
		if err != nil {
			return fmt.Errorf("vehicle %s: %w", v.Name, err)
		}
		s.controllers = append(s.controllers, ctrl)
	}

	s.handlers = []events.Handlers{
		s.Manager.Handlers(),
		usage.NewTracker(s.Usage, s.Store, logger.New("usage")).Handlers(),
		{PeripheralJob: s.forwardJob},
	}
	if cfg.Webhook.Enabled() {
		n, err := webhook.New(cfg.Webhook, logger.New("webhook"))
		if err != nil {
			return err
		}
		s.notifier = n
		s.handlers = append(s.handlers, n.Handlers())
	}
	return nil
}

// PlantStore accepts plant elements.
type PlantStore interface {
	AddPoint(model.Point) error
	AddPath(model.Path) error
	AddLocation(model.Location) error
}

// LoadPlant adds the configured points, paths and locations to the store.
func LoadPlant(store PlantStore, plant config.PlantConfig) error {
	for _, p := range plant.Points {
		if err := store.AddPoint(p); err != nil {
			return err
		}
	}
	for _, p := range plant.Paths {
		if err := store.AddPath(p); err != nil {
			return err
		}
	}
	for _, l := range plant.Locations {
		if err := store.AddLocation(l); err != nil {
			return err
		}
	}
	return nil
}

// forwardJob hands peripheral job updates to the controller of the vehicle
// that requested the job.
func (s *Service) forwardJob(e events.PeripheralJobChanged) {
	if !e.StateTransition() {
		return
	}
	if c, ok := s.Pool.Get(e.Current.RelatedVehicle); ok {
		c.HandlePeripheralJobUpdate(e.Current)
		return
	}
	for _, c := range s.Pool.All() {
		c.HandlePeripheralJobUpdate(e.Current)
	}
}

// Run starts all components and blocks until the context is canceled.
func (s *Service) Run(ctx context.Context) error {
	defer coremon.Recover()

	s.wg.Add(2)
	go func() {
		defer s.wg.Done()
		s.routeEvents(ctx)
	}()
	go func() {
		defer s.wg.Done()
		s.Manager.Run(ctx)
	}()
	collectorDone := metrics.StartEventCollector(ctx, s.bus)

	if s.cfg.Adapter.SimulatePeripherals {
		p := loopback.NewPeripherals(s.Store, s.cfg.Adapter.Peripherals)
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			p.Run(ctx, s.bus)
		}()
	}
	if s.notifier != nil {
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.notifier.Run(ctx)
		}()
	}
	if addr := s.cfg.Metrics.PromAddr; addr != "" {
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			if err := metrics.StartPromServer(ctx, addr, nil); err != nil {
				s.log.Errorf("prom server: %v", err)
			}
		}()
	}
	if !s.cfg.HTTP.Disabled && s.cfg.HTTP.Addr != "" {
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			if err := s.serveHTTP(ctx); err != nil {
				s.log.Errorf("http server: %v", err)
			}
		}()
	}

	for _, c := range s.controllers {
		if err := s.Pool.Attach(c); err != nil {
			return fmt.Errorf("attach %s: %w", c.ID(), err)
		}
	}
	s.log.Infof("fleet manager running with %d vehicles", len(s.controllers))
	s.Manager.Dispatch()

	<-ctx.Done()
	s.Pool.Close()
	<-collectorDone
	s.wg.Wait()
	return nil
}

func (s *Service) routeEvents(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-s.sub:
			if !ok {
				return
			}
			for _, h := range s.handlers {
				h.Handle(ev)
			}
		}
	}
}

// Handler returns the HTTP API of the service.
func (s *Service) Handler() http.Handler {
	return api.NewRouter(api.Deps{
		Vehicles: &apivehicles.Handler{
			Fleet:       s.Store,
			Commands:    s.Manager,
			Integration: s.setIntegrationLevel,
			Usage:       s.Usage,
		},
		Orders:    &apiorders.Handler{Source: s.Store, Dispatcher: s.Manager},
		Plant:     &apiplant.Handler{Course: s.Store, Locker: s.Manager},
		Dispatch:  s.Manager,
		Decisions: s.decisions,
		Token:     s.cfg.HTTP.Token,
	})
}

func (s *Service) setIntegrationLevel(name string, level model.IntegrationLevel) error {
	c, ok := s.Pool.Get(name)
	if !ok {
		return fmt.Errorf("vehicle %s: %w", name, dispatch.ErrNoController)
	}
	if err := c.SetIntegrationLevel(level); err != nil {
		return err
	}
	s.Manager.Dispatch()
	return nil
}

func (s *Service) serveHTTP(ctx context.Context) error {
	srv := &http.Server{Addr: s.cfg.HTTP.Addr, Handler: s.Handler(), ReadHeaderTimeout: 5 * time.Second}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			s.log.Errorf("http shutdown: %v", err)
		}
	}()
	s.log.Infof("serving API on %s", s.cfg.HTTP.Addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Close releases resources held by the service.
func (s *Service) Close() error {
	var err error
	s.closeOnce.Do(func() {
		s.Pool.Close()
		s.bus.Close()
		if s.mqtt != nil {
			s.mqtt.Disconnect()
		}
		if c, ok := s.sink.(interface{ Close() }); ok {
			c.Close()
		}
		if c, ok := s.Usage.(interface{ Close() error }); ok {
			if cerr := c.Close(); cerr != nil {
				s.log.Errorf("usage store close: %v", cerr)
			}
		}
		if s.Manager != nil {
			err = s.Manager.Close()
		} else if s.decisions != nil {
			err = s.decisions.Close()
		}
		coremon.Flush(2 * time.Second)
	})
	return err
}
