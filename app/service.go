package app

import (
	"context"
	"fmt"
	"math/rand"
	"net/http"
	"sync"
	"time"

	"github.com/tankerfleet/tankerfleet/api/fleet"
	"github.com/tankerfleet/tankerfleet/config"
	corefleet "github.com/tankerfleet/tankerfleet/core/fleet"
	coremetrics "github.com/tankerfleet/tankerfleet/core/metrics"
	"github.com/tankerfleet/tankerfleet/core/ml"
	"github.com/tankerfleet/tankerfleet/core/worker"
	"github.com/tankerfleet/tankerfleet/infra/logger"
	"github.com/tankerfleet/tankerfleet/infra/metrics"
	"github.com/tankerfleet/tankerfleet/infra/postgres"
)

// Service wires the store, the simulation workers, the training
// pipeline and the HTTP surface together.
type Service struct {
	Generator *corefleet.Generator
	Engine    *corefleet.Engine
	Pipeline  *ml.Pipeline
	Scheduler *ml.Scheduler

	store       *postgres.Store
	workers     []*worker.Worker
	apiAddr     string
	promEnabled bool
	promPort    string
	log         logger.Logger

	mu     sync.Mutex
	cancel context.CancelFunc
}

// New creates a Service from the configuration. It opens the database,
// runs migrations and builds the full worker set, but starts nothing.
func New(cfg *config.Config) (*Service, error) {
	logg := logger.New("service")

	db, err := postgres.Open(cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	store := postgres.NewStore(db, logger.New("store"))
	if err := store.Migrate(); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}

	var sinks []coremetrics.Sink
	if cfg.Metrics.PrometheusEnabled {
		sink, err := metrics.NewPromSink(cfg.Metrics)
		if err != nil {
			return nil, fmt.Errorf("prom sink: %w", err)
		}
		sinks = append(sinks, sink)
	}
	if cfg.Metrics.InfluxEnabled {
		sinks = append(sinks, metrics.NewInfluxSinkWithFallback(cfg.Metrics, logger.New("influx")))
	}
	var sink coremetrics.Sink = coremetrics.NopSink{}
	if len(sinks) == 1 {
		sink = sinks[0]
	} else if len(sinks) > 1 {
		sink = coremetrics.NewMultiSink(sinks...)
	}

	rng := rand.New(rand.NewSource(time.Now().UnixNano()))
	gen := corefleet.NewGenerator(store, rng, corefleet.SystemClock(), sink, logger.New("generator"))
	engine := corefleet.NewEngine(store, corefleet.DefaultTable(), corefleet.SystemClock(), sink, logger.New("transitions"))

	registry, err := ml.NewRegistry(cfg.ML.ModelDir)
	if err != nil {
		return nil, fmt.Errorf("model registry: %w", err)
	}
	pipeCfg := ml.DefaultPipelineConfig()
	pipeCfg.MinSamples = cfg.ML.MinTrainingSamples
	pipeline := ml.NewPipeline(store, registry, pipeCfg, nil, sink, logger.New("trainer"))

	genInterval := time.Duration(cfg.Simulation.GenerationIntervalSeconds) * time.Second
	transInterval := time.Duration(cfg.Simulation.TransitionIntervalSeconds) * time.Second
	retrainInterval := time.Duration(cfg.ML.RetrainIntervalSeconds) * time.Second
	warmup := ml.WarmupFor(genInterval, cfg.ML.MinTrainingSamples)
	retrainBackoff := time.Hour
	scheduler := ml.NewScheduler(pipeline, ml.SchedulerConfig{
		Interval:     retrainInterval,
		Warmup:       warmup,
		ErrorBackoff: retrainBackoff,
	}, logger.New("scheduler"))

	svc := &Service{
		Generator:   gen,
		Engine:      engine,
		Pipeline:    pipeline,
		Scheduler:   scheduler,
		store:       store,
		apiAddr:     cfg.API.ListenAddr,
		promEnabled: cfg.Metrics.PrometheusEnabled,
		promPort:    cfg.Metrics.PrometheusPort,
		log:         logg,
	}
	svc.workers = []*worker.Worker{
		{
			Name:     "generation",
			Interval: genInterval,
			Fn:       gen.Cycle,
			Log:      logger.New("generation-worker"),
		},
		{
			Name:         "transitions",
			InitialDelay: transInterval,
			Interval:     transInterval,
			Fn:           engine.Sweep,
			Log:          logger.New("transition-worker"),
		},
		{
			Name:         "retrain",
			InitialDelay: warmup,
			Interval:     retrainInterval,
			ErrorBackoff: retrainBackoff,
			Fn:           scheduler.Cycle,
			Log:          logger.New("retrain-worker"),
		},
	}
	return svc, nil
}

// Start launches the background workers. Calling Start on a running
// service is a logged no-op.
func (s *Service) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		s.log.Warnf("service already running")
		return
	}
	runCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	for _, w := range s.workers {
		go w.Run(runCtx)
	}
	s.log.Infof("simulation workers started")
}

// Stop cancels the background workers. Stopping a stopped service is a
// no-op.
func (s *Service) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel == nil {
		return
	}
	s.cancel()
	s.cancel = nil
	s.log.Infof("simulation workers stopped")
}

// Running reports whether the background workers have been started.
func (s *Service) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cancel != nil
}

// WorkerStatus reports per-worker liveness, keyed by worker name.
func (s *Service) WorkerStatus() map[string]bool {
	out := make(map[string]bool, len(s.workers))
	for _, w := range s.workers {
		out[w.Name] = w.Running()
	}
	return out
}

// Run starts the workers and the HTTP servers, then blocks until the
// context is cancelled.
func (s *Service) Run(ctx context.Context) error {
	s.Start(ctx)
	defer s.Stop()
	if s.promEnabled {
		go func() {
			if err := metrics.StartPromServer(ctx, ":"+s.promPort, s.log); err != nil {
				s.log.Errorf("prom server: %v", err)
			}
		}()
	}

	handler := fleet.NewHandler(s.Pipeline, s.WorkerStatus, s.log)
	mux := http.NewServeMux()
	handler.Register(mux)
	srv := &http.Server{Addr: s.apiAddr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()
	s.log.Infof("fleet API listening on %s", s.apiAddr)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}
