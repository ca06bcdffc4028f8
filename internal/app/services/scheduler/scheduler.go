// Package scheduler drives scheduled Batch kickoff: on a cron tick it asks
// the State Store for Batches whose scheduled_at has come due and hands
// each to the Registration Engine.
package scheduler

import (
	"context"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	core "github.com/shipforge/orchestrator/internal/app/core/service"
	"github.com/shipforge/orchestrator/internal/app/services/registration"
	"github.com/shipforge/orchestrator/internal/app/storage"
	"github.com/shipforge/orchestrator/internal/app/system"
	"github.com/shipforge/orchestrator/pkg/logger"
)

var _ system.Service = (*Scheduler)(nil)

// BatchProcessor is the narrow interface the scheduler drives due batches
// through, satisfied by *registration.Engine.
type BatchProcessor interface {
	ProcessBatch(ctx context.Context, batchID string, force bool) (registration.Summary, error)
}

// Scheduler is the cron-driven kickoff of scheduled Batches.
type Scheduler struct {
	store     storage.Store
	processor BatchProcessor
	log       *logger.Logger
	tracer    core.Tracer
	hooks     core.ObservationHooks
	spec      string

	mu      sync.Mutex
	cr      *cron.Cron
	running bool
}

// Option configures a Scheduler at construction time.
type Option func(*Scheduler)

// WithSpec overrides the default "@every 30s" cron schedule.
func WithSpec(spec string) Option {
	return func(s *Scheduler) {
		if spec != "" {
			s.spec = spec
		}
	}
}

// WithTracer attaches a span tracer to each tick.
func WithTracer(tracer core.Tracer) Option {
	return func(s *Scheduler) {
		if tracer != nil {
			s.tracer = tracer
		}
	}
}

// WithObservationHooks attaches metrics/observation callbacks to each tick.
func WithObservationHooks(hooks core.ObservationHooks) Option {
	return func(s *Scheduler) { s.hooks = hooks }
}

// New constructs a Scheduler.
func New(store storage.Store, processor BatchProcessor, log *logger.Logger, opts ...Option) *Scheduler {
	if log == nil {
		log = logger.NewDefault("scheduler")
	}
	s := &Scheduler{
		store:     store,
		processor: processor,
		log:       log,
		tracer:    core.NoopTracer,
		hooks:     core.NoopObservationHooks,
		spec:      "@every 30s",
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Name identifies this service for the system manager.
func (s *Scheduler) Name() string { return "scheduler" }

// Descriptor advertises the Scheduler's placement and capabilities.
func (s *Scheduler) Descriptor() core.Descriptor {
	return core.Descriptor{
		Name:   "scheduler",
		Domain: "batch-scheduling",
		Layer:  core.LayerOps,
	}.WithCapabilities("cron-tick", "due-batch-dispatch")
}

// Start begins the cron loop.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return nil
	}

	cr := cron.New(cron.WithLocation(time.UTC))
	if _, err := cr.AddFunc(s.spec, func() { s.tick(ctx) }); err != nil {
		return err
	}
	cr.Start()
	s.cr = cr
	s.running = true
	return nil
}

// Stop halts the cron loop, waiting for any in-flight tick to finish.
func (s *Scheduler) Stop(ctx context.Context) error {
	s.mu.Lock()
	cr := s.cr
	s.running = false
	s.cr = nil
	s.mu.Unlock()
	if cr == nil {
		return nil
	}
	stopCtx := cr.Stop()
	select {
	case <-stopCtx.Done():
	case <-ctx.Done():
	}
	return nil
}

func (s *Scheduler) tick(ctx context.Context) {
	meta := map[string]string{"component": "scheduler"}
	spanCtx, finishSpan := s.tracer.StartSpan(ctx, "scheduler.tick", meta)
	finishObs := core.StartObservation(spanCtx, s.hooks, meta)

	due, err := s.store.ListDueBatches(spanCtx, time.Now().UTC())
	if err != nil {
		s.log.WithError(err).Warn("list due batches failed")
		finishObs(err)
		finishSpan(err)
		return
	}
	for _, b := range due {
		if _, err := s.processor.ProcessBatch(spanCtx, b.ID, false); err != nil {
			s.log.WithBatch(b.ID).WithError(err).Warn("scheduled batch processing failed")
		}
	}
	finishObs(nil)
	finishSpan(nil)
}
