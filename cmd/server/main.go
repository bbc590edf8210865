// Server entrypoint. Wires configuration, stores, services, the expiry
// sweeper and the HTTP router, then supervises everything under one errgroup.
// Without EXAMREG_DATABASE_URL the server runs fully in memory, which is the
// development mode.
package main

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"examreg/internal/audit"
	examhandler "examreg/internal/exam/handler"
	examstore "examreg/internal/exam/store"
	jwttoken "examreg/internal/jwt_token"
	payhandler "examreg/internal/payment/handler"
	paymetrics "examreg/internal/payment/metrics"
	payservice "examreg/internal/payment/service"
	paystore "examreg/internal/payment/store"
	"examreg/internal/payment/sweeper"
	"examreg/internal/platform/config"
	"examreg/internal/platform/httpserver"
	"examreg/internal/platform/logger"
	platformmetrics "examreg/internal/platform/metrics"
	"examreg/internal/platform/postgres"
	platformredis "examreg/internal/platform/redis"
	reghandler "examreg/internal/registration/handler"
	regmetrics "examreg/internal/registration/metrics"
	regservice "examreg/internal/registration/service"
	regstore "examreg/internal/registration/store"
	httptransport "examreg/internal/transport/http"
	"examreg/pkg/pii"
	"examreg/pkg/tx"
)

const auditInboxSize = 256

func main() {
	cfg := config.FromEnv()
	log := logger.New()

	if err := run(cfg, log); err != nil {
		log.Error("server exited", "error", err)
		os.Exit(1)
	}
}

func run(cfg config.Config, log *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cipher, err := pii.NewCipher(cfg.PIISecret)
	if err != nil {
		return err
	}

	var db *sql.DB
	if cfg.DatabaseURL != "" {
		db, err = postgres.Open(ctx, cfg.DatabaseURL)
		if err != nil {
			return err
		}
		defer db.Close()
	}

	redisClient, err := platformredis.New(cfg.RedisURL)
	if err != nil {
		return err
	}
	if redisClient != nil {
		defer redisClient.Close()
	}

	var (
		exams interface {
			regservice.ExamStore
			examhandler.ExamStore
		}
		regs interface {
			regservice.RegistrationStore
			payservice.RegistrationStore
		}
		orders payservice.OrderStore
		txm    tx.Manager
	)
	if db != nil {
		exams = examstore.NewPostgres(db)
		regs = regstore.NewPostgres(db)
		orders = paystore.NewPostgres(db)
		txm = tx.NewSQLManager(db)
	} else {
		log.Warn("no database configured, using in-memory stores")
		exams = examstore.NewInMemory()
		regs = regstore.NewInMemory()
		orders = paystore.NewInMemory()
		txm = tx.NewMemoryManager()
	}

	g, ctx := errgroup.WithContext(ctx)

	publisher, auditClose := buildAuditPipeline(ctx, cfg, db, log, g)
	defer auditClose()

	paySvc := payservice.New(orders, regs, exams, txm,
		payservice.WithLogger(log),
		payservice.WithAuditPublisher(publisher),
		payservice.WithMetrics(paymetrics.New()),
		payservice.WithOrderTTL(cfg.OrderTTL),
	)
	regSvc := regservice.New(regs, exams, txm, cipher,
		regservice.WithLogger(log),
		regservice.WithAuditPublisher(publisher),
		regservice.WithMetrics(regmetrics.New()),
		regservice.WithOrderCreator(paySvc),
	)

	tokens := jwttoken.NewService(cfg.JWTSigningKey, "examreg")

	router := httptransport.NewRouter(httptransport.Deps{
		Logger:        log,
		Metrics:       platformmetrics.New(),
		Validator:     tokens,
		Registrations: reghandler.New(regSvc, log),
		Payments:      payhandler.New(paySvc, log),
		Exams:         examhandler.New(exams, log),
		Health: func(ctx context.Context) error {
			if db != nil {
				if err := db.PingContext(ctx); err != nil {
					return err
				}
			}
			if redisClient != nil {
				return redisClient.Health(ctx)
			}
			return nil
		},
	})

	sweepOpts := []sweeper.Option{
		sweeper.WithInterval(cfg.SweepInterval),
		sweeper.WithLogger(log),
	}
	if redisClient != nil {
		sweepOpts = append(sweepOpts, sweeper.WithLocker(
			sweeper.NewRedisLocker(redisClient.Client, "examreg:sweeper:lock"),
		))
	}
	sweep := sweeper.New(paySvc, sweepOpts...)
	g.Go(func() error {
		err := sweep.Run(ctx)
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	})

	srv := httpserver.New(cfg.Addr, router)
	g.Go(func() error {
		log.Info("server listening", "addr", cfg.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	log.Info("server stopped")
	return nil
}

// buildAuditPipeline picks the audit sink. Kafka when brokers are configured,
// otherwise the database through a background worker, otherwise in memory.
// The returned closer flushes the Kafka producer on shutdown.
func buildAuditPipeline(ctx context.Context, cfg config.Config, db *sql.DB, log *slog.Logger, g *errgroup.Group) (audit.Publisher, func()) {
	if len(cfg.KafkaBrokers) > 0 {
		kafka, err := audit.NewKafkaPublisher(cfg.KafkaBrokers, cfg.AuditTopic, log)
		if err == nil {
			return kafka, func() {
				ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				if err := kafka.Close(ctx); err != nil {
					log.Warn("audit kafka close failed", "error", err)
				}
			}
		}
		log.Warn("audit kafka unavailable, falling back to store sink", "error", err)
	}

	var store audit.Store
	if db != nil {
		store = audit.NewPostgresStore(db)
	} else {
		store = audit.NewMemoryStore()
	}

	inbox := make(chan audit.Event, auditInboxSize)
	worker := audit.NewWorker(store, inbox)
	g.Go(func() error {
		err := worker.Run(ctx)
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	})
	return audit.NewChannelPublisher(inbox), func() {}
}
