// Command orchestratord is the orchestration subsystem's process
// entrypoint: it wires the State Store, ephemeral cache, platform
// registry, and the Orchestrator/Registration Engine/Progress
// Tracker/Alert Emitter/Scheduler/Recoverer, then serves an ops-only
// health and metrics HTTP surface until signalled to shut down.
package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	goredis "github.com/go-redis/redis/v8"
	_ "github.com/lib/pq"
	"github.com/tidwall/gjson"

	"github.com/shipforge/orchestrator/internal/app/cache"
	cachememory "github.com/shipforge/orchestrator/internal/app/cache/memory"
	cacheredis "github.com/shipforge/orchestrator/internal/app/cache/redis"
	"github.com/shipforge/orchestrator/internal/app/config"
	core "github.com/shipforge/orchestrator/internal/app/core/service"
	"github.com/shipforge/orchestrator/internal/app/metrics"
	"github.com/shipforge/orchestrator/internal/app/platform"
	"github.com/shipforge/orchestrator/internal/app/platform/fake"
	"github.com/shipforge/orchestrator/internal/app/resource"
	"github.com/shipforge/orchestrator/internal/app/services/alerts"
	"github.com/shipforge/orchestrator/internal/app/services/orchestrator"
	"github.com/shipforge/orchestrator/internal/app/services/progress"
	"github.com/shipforge/orchestrator/internal/app/services/registration"
	"github.com/shipforge/orchestrator/internal/app/services/scheduler"
	"github.com/shipforge/orchestrator/internal/app/storage"
	"github.com/shipforge/orchestrator/internal/app/storage/memory"
	"github.com/shipforge/orchestrator/internal/app/storage/postgres"
	"github.com/shipforge/orchestrator/internal/app/system"
	"github.com/shipforge/orchestrator/internal/app/templates"
	"github.com/shipforge/orchestrator/pkg/logger"
)

func main() {
	addr := flag.String("addr", "", "ops HTTP listen address (defaults to config or :8080)")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	log_ := logger.New(logger.LoggingConfig{
		Level:      cfg.Logging.Level,
		Format:     cfg.Logging.Format,
		Output:     cfg.Logging.Output,
		FilePrefix: cfg.Logging.FilePrefix,
	})

	store, closeStore, err := buildStore(cfg)
	if err != nil {
		log.Fatalf("build store: %v", err)
	}
	defer closeStore()

	appCache, err := buildCache(cfg)
	if err != nil {
		log.Fatalf("build cache: %v", err)
	}

	platforms := platform.NewRegistry()
	registerDevPlatform(platforms, cfg)

	alertEmitter := alerts.New(store)
	tracker := progress.New(
		progress.WithHistoryPoints(cfg.Orchestration.ProgressHistoryPoints),
		progress.WithRatePoints(cfg.Orchestration.ProgressRatePoints),
	)
	sampler := resource.NewSampler()

	regEngine := registration.New(store, appCache, platforms, log_,
		registration.WithConcurrency(cfg.Orchestration.MaxConcurrentRegistrations),
		registration.WithCallTimeout(time.Duration(cfg.Orchestration.PlatformCallTimeoutSeconds)*time.Second),
		registration.WithAlertSink(alertEmitter),
		registration.WithObservationHooks(metrics.RegistrationDispatchHooks()),
	)

	registry := orchestrator.NewRegistry()
	if err := templates.Register(registry, regEngine, alertEmitter); err != nil {
		log.Fatalf("register templates: %v", err)
	}

	orch := orchestrator.New(store, appCache, registry, log_,
		orchestrator.WithTracker(tracker),
		orchestrator.WithAlertSink(alertEmitter),
		orchestrator.WithResourceSampler(sampler),
		orchestrator.WithObservationHooks(metrics.OrchestratorStageHooks()),
		orchestrator.WithDefaultConcurrency(cfg.Orchestration.MaxConcurrentRegistrations),
	)
	recoverer := orchestrator.NewRecoverer(orch, store, log_,
		time.Duration(cfg.Orchestration.RecoveryStaleThresholdMinutes)*time.Minute)

	sched := scheduler.New(store, regEngine, log_,
		scheduler.WithObservationHooks(metrics.SchedulerTickHooks()))

	services := []system.Service{recoverer, sched}

	descriptorProviders := []system.DescriptorProvider{
		orch, recoverer, sched, regEngine, tracker, alertEmitter, platforms, opsSurfaceDescriptor{},
	}
	if dp, ok := store.(system.DescriptorProvider); ok {
		descriptorProviders = append(descriptorProviders, dp)
	}

	rootCtx, stopSignals := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stopSignals()

	for _, svc := range services {
		if err := svc.Start(rootCtx); err != nil {
			log.Fatalf("start %s: %v", svc.Name(), err)
		}
	}

	httpAddr := determineAddr(*addr, cfg)
	httpServer := &http.Server{Addr: httpAddr, Handler: buildRouter(descriptorProviders)}
	go func() {
		log_.WithField("addr", httpAddr).Info("orchestratord ops surface listening")
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log_.WithError(err).Error("ops http server failed")
		}
	}()

	<-rootCtx.Done()
	log_.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	_ = httpServer.Shutdown(shutdownCtx)
	orch.Shutdown()
	for _, svc := range services {
		if err := svc.Stop(shutdownCtx); err != nil {
			log_.WithError(err).WithField("service", svc.Name()).Warn("service stop failed")
		}
	}
}

func buildStore(cfg *config.Config) (storage.Store, func(), error) {
	if cfg.Database.Driver == "postgres" {
		dsn := cfg.Database.DSN
		if dsn == "" {
			dsn = os.Getenv("DATABASE_URL")
		}
		db, err := sql.Open("postgres", dsn)
		if err != nil {
			return nil, func() {}, fmt.Errorf("open postgres: %w", err)
		}
		if cfg.Database.MaxOpenConns > 0 {
			db.SetMaxOpenConns(cfg.Database.MaxOpenConns)
		}
		if cfg.Database.MaxIdleConns > 0 {
			db.SetMaxIdleConns(cfg.Database.MaxIdleConns)
		}
		if cfg.Database.ConnMaxLifetime > 0 {
			db.SetConnMaxLifetime(time.Duration(cfg.Database.ConnMaxLifetime) * time.Second)
		}
		return postgres.New(db), func() { _ = db.Close() }, nil
	}
	return memory.New(), func() {}, nil
}

func buildCache(cfg *config.Config) (cache.Cache, error) {
	if cfg.Cache.Driver == "redis" {
		client := goredis.NewClient(&goredis.Options{Addr: cfg.Cache.Addr})
		return cacheredis.New(client, 7*24*time.Hour), nil
	}
	return cachememory.New(7*24*time.Hour, time.Minute), nil
}

// registerDevPlatform binds a scripted-free, attribute-passthrough demo
// platform adapter so a freshly cloned, in-memory deployment has somewhere
// to register items without external credentials. Production deployments
// register real platform bindings (Adapter/Transformer/IDExtractor) at
// startup in place of, or alongside, this one.
func registerDevPlatform(registry *platform.Registry, cfg *config.Config) {
	if cfg.Database.Driver == "postgres" {
		return
	}
	registry.Register("demo", platform.Binding{
		Adapter:   fake.New(0),
		Transform: demoTransform,
		ExtractID: demoIDExtractor,
	})
}

func demoIDExtractor(body platform.ResponseBlob) (string, bool) {
	id := gjson.GetBytes(body, "productId")
	if !id.Exists() {
		return "", false
	}
	return id.String(), true
}

func demoTransform(item platform.Item) (platform.Payload, error) {
	name, _ := item.Attributes["name"].(string)
	if name == "" {
		return platform.Payload{}, platform.NewInvalidItemError(item.ID, "name")
	}
	price, _ := item.Attributes["price"].(string)
	return platform.Payload{Name: name, Price: price}, nil
}

func determineAddr(flagAddr string, cfg *config.Config) string {
	if flagAddr != "" {
		return flagAddr
	}
	if cfg.Server.Port != 0 {
		host := cfg.Server.Host
		if host == "" {
			host = "0.0.0.0"
		}
		return fmt.Sprintf("%s:%d", host, cfg.Server.Port)
	}
	return ":8080"
}

func buildRouter(descriptorProviders []system.DescriptorProvider) http.Handler {
	r := chi.NewRouter()
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Handle("/metrics", metrics.Handler())
	r.Get("/services", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(system.CollectDescriptors(descriptorProviders))
	})
	return metrics.InstrumentHandler(r)
}

// opsSurfaceDescriptor advertises the ops HTTP surface (/healthz, /metrics,
// /services) itself, so CollectDescriptors' output is a complete inventory
// of the running process rather than only its background services.
type opsSurfaceDescriptor struct{}

func (opsSurfaceDescriptor) Descriptor() core.Descriptor {
	return core.Descriptor{
		Name:   "ops-http-surface",
		Domain: "operations",
		Layer:  core.LayerIntake,
	}.WithCapabilities("healthz", "metrics", "services")
}
