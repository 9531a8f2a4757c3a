// Command server runs the financial integrity core: double-entry ledger,
// balance mutator, webhook idempotency gate, audit pipeline, and rate
// limiter behind one HTTP surface. Stores are selected by configuration:
// Postgres and Redis when URLs are set, in-memory otherwise.
package main

import (
	"context"
	"database/sql"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"golang.org/x/sync/errgroup"

	"tally/internal/audit"
	"tally/internal/audit/kafka"
	auditmetrics "tally/internal/audit/metrics"
	auditmemory "tally/internal/audit/store/memory"
	auditpostgres "tally/internal/audit/store/postgres"
	ledgermetrics "tally/internal/ledger/metrics"
	ledgerservice "tally/internal/ledger/service"
	accountstore "tally/internal/ledger/store/account"
	journalstore "tally/internal/ledger/store/journal"
	"tally/internal/platform/config"
	"tally/internal/platform/httpserver"
	"tally/internal/platform/logger"
	platformmetrics "tally/internal/platform/metrics"
	"tally/internal/platform/postgres"
	platformredis "tally/internal/platform/redis"
	"tally/internal/processor"
	processormemory "tally/internal/processor/store/memory"
	processorpostgres "tally/internal/processor/store/postgres"
	"tally/internal/processor/verifier"
	ratelimitmetrics "tally/internal/ratelimit/metrics"
	ratelimitservice "tally/internal/ratelimit/service"
	"tally/internal/ratelimit/store/window"
	httptransport "tally/internal/transport/http"
	"tally/pkg/platform/middleware/auth"
	"tally/pkg/platform/tx"
)

func main() {
	_ = godotenv.Load()
	cfg := config.FromEnv()
	log := logger.New()

	db, err := postgres.Open(cfg.PostgresURL)
	if err != nil {
		log.Error("failed to open postgres", "error", err)
		os.Exit(1)
	}
	if db != nil {
		defer db.Close()
	}

	rdb, err := platformredis.New(cfg.RedisURL)
	if err != nil {
		log.Error("failed to connect to redis", "error", err)
		os.Exit(1)
	}
	if rdb != nil {
		defer rdb.Close()
	}

	// Audit pipeline: durable store, bounded retry queue, drain worker, and
	// an optional Kafka mirror for downstream consumers.
	var auditStore audit.Store
	if db != nil {
		auditStore = auditpostgres.New(db)
	} else {
		auditStore = auditmemory.NewInMemoryStore()
	}
	if len(cfg.KafkaBrokers) > 0 {
		mirror, err := kafka.NewMirror(auditStore, cfg.KafkaBrokers, cfg.KafkaAuditTopic, log)
		if err != nil {
			log.Error("failed to start kafka audit mirror", "error", err)
			os.Exit(1)
		}
		defer func() {
			flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = mirror.Close(flushCtx)
		}()
		auditStore = mirror
	}

	auditMetrics := auditmetrics.New()
	queue := audit.NewRetryQueue(cfg.AuditQueueCapacity)
	sink := audit.NewSink(auditStore, queue, log,
		audit.WithMetrics(auditMetrics),
		audit.WithRetryBase(cfg.AuditRetryBase),
	)
	worker := audit.NewWorker(auditStore, queue, log,
		audit.WithWorkerMetrics(auditMetrics),
		audit.WithRetryPolicy(cfg.AuditRetryBase, cfg.AuditMaxAttempts, cfg.AuditDrainBatch),
	)

	// Ledger. The gate gets its own unit of work instance; sharded locks
	// are not reentrant across nested scopes.
	var (
		ledgerUow tx.UnitOfWork = tx.NewShardedUnitOfWork()
		gateUow   tx.UnitOfWork = tx.NewShardedUnitOfWork()
	)
	if db != nil {
		ledgerUow = tx.NewSQLUnitOfWork(db)
		gateUow = tx.NewSQLUnitOfWork(db)
	}
	ledgerSvc := ledgerservice.NewService(
		newAccountStore(db),
		newJournalStore(db),
		ledgerUow,
		sink,
		log,
		ledgerservice.WithMetrics(ledgermetrics.New()),
	)

	// Webhook gate.
	var keyStore processor.KeyStore
	if db != nil {
		keyStore = processorpostgres.New(db)
	} else {
		keyStore = processormemory.NewInMemoryStore()
	}
	gate := processor.NewGate(
		verifier.New(cfg.ProcessorWebhookSecret, verifier.WithTolerance(cfg.ProcessorSignatureTolerance)),
		keyStore,
		processor.NewBalanceApplier(ledgerSvc),
		gateUow,
		sink,
		log,
		processor.WithMetrics(processor.NewMetrics()),
	)

	// Rate limiter.
	var windowStore ratelimitservice.WindowStore
	if rdb != nil {
		windowStore = window.NewRedisStore(rdb.Client)
	} else {
		windowStore = window.NewInMemoryStore()
	}
	limiter := ratelimitservice.NewService(windowStore, log,
		ratelimitservice.WithMetrics(ratelimitmetrics.New()))
	janitor := ratelimitservice.NewJanitor(windowStore, cfg.RateLimitJanitorInterval, log)

	router := httptransport.NewRouter(httptransport.Deps{
		Ledger:    ledgerSvc,
		Gate:      gate,
		Audit:     auditStore,
		Limiter:   limiter,
		Auditor:   sink,
		Validator: auth.NewValidator(cfg.JWTSigningKey),
		Metrics:   platformmetrics.New(),
		Logger:    log,
	})
	srv := httpserver.New(cfg.Addr, router)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("server listening", "addr", cfg.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		err := worker.Run(ctx)
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	})
	g.Go(func() error {
		err := janitor.Run(ctx)
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		log.Error("server exited with error", "error", err)
		os.Exit(1)
	}
	log.Info("server stopped")
}

func newAccountStore(db *sql.DB) ledgerservice.AccountStore {
	if db != nil {
		return accountstore.New(db)
	}
	return accountstore.NewInMemoryStore()
}

func newJournalStore(db *sql.DB) ledgerservice.JournalStore {
	if db != nil {
		return journalstore.New(db)
	}
	return journalstore.NewInMemoryStore()
}
