package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"voterchain/internal/audit"
	"voterchain/internal/ledger"
	ledgerstore "voterchain/internal/ledger/store"
	"voterchain/internal/lifecycle"
	"voterchain/internal/platform/config"
	"voterchain/internal/platform/httpserver"
	"voterchain/internal/platform/logger"
	"voterchain/internal/platform/metrics"
	"voterchain/internal/platform/middleware"
	"voterchain/internal/platform/postgres"
	platformredis "voterchain/internal/platform/redis"
	"voterchain/internal/registry"
	"voterchain/internal/state"
	httptransport "voterchain/internal/transport/http"
	"voterchain/internal/voter"
	voterstore "voterchain/internal/voter/store"
	"voterchain/pkg/platform/feed"
)

const (
	adminTokenTTL  = time.Hour
	feedBufferSize = 256
)

// main wires the platform pieces around the domain services: per-state
// ledgers and record stores, the shared cross-state registry, the lifecycle
// orchestrator, the auditor, and the HTTP surface. Storage and transport
// backends are chosen from configuration; everything degrades to in-process
// implementations for local development.
func main() {
	cfg := config.FromEnv()
	log := logger.New(cfg.Node)
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	m := metrics.New()

	db, err := postgres.Open(cfg.PostgresURL)
	if err != nil {
		log.Error("postgres connection failed", "error", err)
		os.Exit(1)
	}
	if db != nil {
		defer db.Close()
		if err := postgres.Migrate(ctx, db); err != nil {
			log.Error("postgres migration failed", "error", err)
			os.Exit(1)
		}
		log.Info("postgres connected")
	}

	redisClient, err := platformredis.New(cfg.RedisURL)
	if err != nil {
		log.Error("redis connection failed", "error", err)
		os.Exit(1)
	}

	var reg registry.Registry
	if redisClient != nil {
		defer redisClient.Close()
		reg = registry.NewRedis(redisClient.Client)
		log.Info("using redis cross-state registry")
	} else {
		reg = registry.NewInMemory()
		log.Info("using in-memory cross-state registry")
	}

	// Oversight feed: ledger appends mirror onto this channel; a worker
	// publishes them to Kafka when brokers are configured.
	var events chan feed.Event
	if len(cfg.KafkaBrokers) > 0 {
		publisher, err := feed.NewKafkaPublisher(cfg.KafkaBrokers, cfg.KafkaTopic)
		if err != nil {
			log.Error("kafka connection failed", "error", err)
			os.Exit(1)
		}
		defer publisher.Close()

		events = make(chan feed.Event, feedBufferSize)
		worker := feed.NewWorker(publisher, events, log)
		go func() {
			if err := worker.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				log.Error("feed worker stopped", "error", err)
			}
		}()
		log.Info("oversight feed enabled", "topic", cfg.KafkaTopic)
	}

	backends := make([]*state.Backend, 0, len(cfg.States))
	for _, name := range cfg.States {
		var chainStore ledger.Store
		var voters voter.Store
		if db != nil {
			chainStore = ledgerstore.NewPostgres(db, name)
			voters = voterstore.NewPostgres(db, name)
		} else {
			chainStore = ledgerstore.NewInMemory()
			voters = voterstore.NewInMemory()
		}

		opts := []ledger.Option{ledger.WithLogger(log), ledger.WithMetrics(m)}
		if events != nil {
			opts = append(opts, ledger.WithEventSink(events))
		}
		chain, err := ledger.New(ctx, name, chainStore, opts...)
		if err != nil {
			log.Error("ledger init failed", "state", name, "error", err)
			os.Exit(1)
		}
		log.Info("state backend ready", "state", name)
		backends = append(backends, &state.Backend{Name: name, Ledger: chain, Voters: voters})
	}
	cluster := state.NewCluster(backends...)

	var dedup lifecycle.DuplicateDetector
	var biometric lifecycle.BiometricMatcher
	if cfg.DuplicateDetectorURL != "" || cfg.BiometricMatcherURL != "" {
		verifier := lifecycle.NewHTTPVerifier(cfg.DuplicateDetectorURL, cfg.BiometricMatcherURL, cfg.VerifierTimeout)
		dedup, biometric = verifier, verifier
	} else {
		dedup, biometric = lifecycle.PermissiveVerifier{}, lifecycle.PermissiveVerifier{}
		log.Warn("external verifiers not configured, using permissive stubs")
	}

	lifecycleOpts := []lifecycle.Option{lifecycle.WithLogger(log), lifecycle.WithMetrics(m)}
	if db != nil {
		// Durable intents let ResumeTransfers finish transfers the previous
		// process died in the middle of.
		lifecycleOpts = append(lifecycleOpts, lifecycle.WithIntentStore(lifecycle.NewPostgresIntentStore(db)))
	}
	orchestrator := lifecycle.New(cluster, reg, dedup, biometric, lifecycleOpts...)
	if err := orchestrator.ResumeTransfers(ctx); err != nil {
		log.Error("transfer resume failed", "error", err)
		os.Exit(1)
	}

	auditor := audit.New(cluster, audit.WithLogger(log), audit.WithMetrics(m))

	router := httptransport.NewRouter(httptransport.Deps{
		Lifecycle:         orchestrator,
		Audit:             auditor,
		Cluster:           cluster,
		Logger:            log,
		JWT:               middleware.NewJWTManager(cfg.JWTSigningKey, adminTokenTTL),
		AdminUser:         cfg.AdminUser,
		AdminPasswordHash: cfg.AdminPasswordHash,
	})

	srv := httpserver.New(cfg.Addr, router)
	go func() {
		log.Info("server listening", "addr", cfg.Addr, "states", cfg.States)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("server error", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	log.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("graceful shutdown failed", "error", err)
		os.Exit(1)
	}
}
