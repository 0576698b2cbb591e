// Command server runs the privacy compliance service: consent ledger,
// processing activity log, data-subject-rights workflow, compliance auditor,
// and the retention cleanup scheduler behind one HTTP API.
//
// Infrastructure is optional by configuration: without a database URL the
// service runs on in-memory stores, without brokers Kafka publishing is a
// noop. Production runs with all of them; the degraded modes exist for local
// development and tests.
package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"zykor/internal/audit"
	"zykor/internal/platform/config"
	"zykor/internal/platform/database"
	"zykor/internal/platform/health"
	"zykor/internal/platform/kafka/producer"
	"zykor/internal/platform/logger"
	"zykor/internal/platform/middleware"
	"zykor/internal/platform/redis"
	"zykor/internal/privacy/cleanup"
	"zykor/internal/privacy/compliance"
	"zykor/internal/privacy/consent"
	"zykor/internal/privacy/handler"
	"zykor/internal/privacy/hooks"
	"zykor/internal/privacy/metrics"
	"zykor/internal/privacy/processing"
	"zykor/internal/privacy/request"
	"zykor/internal/privacy/retention"
	"zykor/internal/privacy/store"
	"zykor/pkg/platform/keylock"
)

func main() {
	cfg := config.FromEnv()
	log := logger.New(cfg.LogLevel)

	if err := run(cfg, log); err != nil {
		log.Error("server exited", "error", err)
		os.Exit(1)
	}
}

func run(cfg config.Config, log *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	log.Info("initializing privacy service",
		"addr", cfg.Addr,
		"environment", cfg.Environment,
		"database_configured", cfg.Database.URL != "",
		"redis_configured", cfg.Redis.URL != "",
		"kafka_configured", cfg.Kafka.Brokers != "",
	)

	// Database. nil pool means memory stores: fine for development, data is
	// gone on restart.
	pool, err := database.New(cfg.Database)
	if err != nil {
		return err
	}
	if pool != nil {
		defer pool.Close() //nolint:errcheck // shutdown path
		if err := database.MigrateUp(pool.DB()); err != nil {
			return err
		}
	}

	rdb, err := redis.New(cfg.Redis)
	if err != nil {
		return err
	}
	if rdb != nil {
		defer rdb.Close() //nolint:errcheck // shutdown path
	}

	var prod producer.Producer
	if cfg.Kafka.Brokers != "" {
		kp, err := producer.New(cfg.Kafka, log)
		if err != nil {
			return err
		}
		prod = kp
	} else {
		prod = producer.NewNoop()
	}
	defer prod.Close() //nolint:errcheck // shutdown path

	// Stores.
	var (
		subjects   store.SubjectStore
		requests   store.RequestStore
		auditStore audit.Store
	)
	if pool != nil {
		subjects = store.NewPostgresSubjectStore(pool.DB())
		requests = store.NewPostgresRequestStore(pool.DB())
		auditStore = audit.NewPostgresStore(pool.DB())
	} else {
		subjects = store.NewMemorySubjectStore()
		requests = store.NewMemoryRequestStore()
		auditStore = audit.NewMemoryStore(audit.DefaultCapacity)
	}
	if cfg.Kafka.Brokers != "" {
		auditStore = audit.NewKafkaTee(auditStore, prod, cfg.Kafka.AuditTopic, log)
	}

	auditPub := audit.NewPublisher(auditStore, log, audit.WithAsync(1024))
	defer auditPub.Close()

	m := metrics.New()
	engine := retention.NewEngine(cfg.Privacy)

	// Erasure fan-out: each configured downstream system gets a hook.
	var erasureHooks []hooks.Hook
	if pool != nil {
		if len(cfg.Privacy.ErasureTables) > 0 {
			erasureHooks = append(erasureHooks, hooks.NewPrimaryHook(pool.DB(), cfg.Privacy.ErasureTables))
		}
		erasureHooks = append(erasureHooks, hooks.NewBackupHook(pool.DB()))
	}
	if rdb != nil {
		erasureHooks = append(erasureHooks, hooks.NewCacheHook(rdb))
	}
	if cfg.Kafka.Brokers != "" {
		erasureHooks = append(erasureHooks, hooks.NewAnalyticsHook(prod, cfg.Kafka.DeletionTopic))
	}
	executor := hooks.NewExecutor(erasureHooks, log, m)
	log.Info("erasure hooks registered", "systems", executor.Systems())

	var halt consent.HaltNotifier = consent.NoopHaltNotifier{}
	if cfg.Kafka.Brokers != "" {
		halt = consent.NewKafkaHaltNotifier(prod, cfg.Kafka.HaltTopic)
	}

	// Services. Consent writes and erasure serialize on the same per-subject
	// locks, so a consent append can never interleave with a delete.
	locks := keylock.New()
	consentSvc := consent.NewService(subjects, cfg.Privacy, auditPub, log,
		consent.WithMetrics(m),
		consent.WithHaltNotifier(halt),
		consent.WithLocks(locks),
	)
	processingSvc := processing.NewService(subjects, auditPub, log,
		processing.WithMetrics(m),
	)
	requestSvc := request.NewService(subjects, requests, engine, executor, auditPub, cfg.Privacy, log,
		request.WithMetrics(m),
		request.WithHookTimeout(cfg.Cleanup.HookTimeout),
		request.WithLocks(locks),
	)
	complianceSvc := compliance.NewService(subjects, requests, engine, cfg.Privacy)
	cleanupSvc := cleanup.NewService(subjects, engine, requestSvc, consentSvc, auditStore, auditPub, cfg.Privacy, log,
		cleanup.WithMetrics(m),
	)

	// HTTP surface.
	healthHandler := health.New(cfg.Environment)
	if pool != nil {
		healthHandler.RegisterCheck("database", func() error {
			checkCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			return pool.Health(checkCtx)
		})
	}
	if rdb != nil {
		healthHandler.RegisterCheck("redis", func() error {
			checkCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			return rdb.Health(checkCtx)
		})
	}
	if cfg.Kafka.Brokers != "" {
		healthHandler.RegisterCheck("kafka", func() error {
			checkCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			if !prod.Healthy(checkCtx) {
				return errors.New("kafka brokers unreachable")
			}
			return nil
		})
	}

	r := chi.NewRouter()
	r.Use(middleware.Recovery(log))
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger(log))
	healthHandler.Register(r)
	r.Handle("/metrics", promhttp.Handler())
	handler.New(log, consentSvc, processingSvc, requestSvc, complianceSvc, cleanupSvc, engine).Register(r)

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		log.Info("starting http server", "addr", cfg.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		log.Info("starting cleanup scheduler", "interval", cfg.Cleanup.Interval.String())
		cleanupSvc.Schedule(gctx, cfg.Cleanup.Interval)
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		log.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	return g.Wait()
}
