package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"golang.org/x/sync/errgroup"

	"github.com/md-rashed-zaman/clinicbook/libs/auth"
	"github.com/md-rashed-zaman/clinicbook/libs/config"
	"github.com/md-rashed-zaman/clinicbook/libs/db"
	"github.com/md-rashed-zaman/clinicbook/libs/grpcx"
	"github.com/md-rashed-zaman/clinicbook/libs/httpx"
	"github.com/md-rashed-zaman/clinicbook/libs/kafkax"
	otelx "github.com/md-rashed-zaman/clinicbook/libs/otel"
	"github.com/md-rashed-zaman/clinicbook/libs/runtime"
	"github.com/md-rashed-zaman/clinicbook/services/schedule-service/internal/handlers"
	"github.com/md-rashed-zaman/clinicbook/services/schedule-service/internal/importer"
	"github.com/md-rashed-zaman/clinicbook/services/schedule-service/internal/jobs"
	"github.com/md-rashed-zaman/clinicbook/services/schedule-service/internal/metrics"
	"github.com/md-rashed-zaman/clinicbook/services/schedule-service/internal/outbox"
	"github.com/md-rashed-zaman/clinicbook/services/schedule-service/internal/scheduling"
	"github.com/md-rashed-zaman/clinicbook/services/schedule-service/internal/storage"
	"github.com/md-rashed-zaman/clinicbook/services/schedule-service/internal/storage/migrations"
)

func main() {
	if err := config.LoadDotEnv(); err != nil {
		slog.Error("failed to load .env", "err", err)
		os.Exit(1)
	}
	if len(os.Args) > 1 && os.Args[1] == "healthcheck" {
		if err := healthcheck(); err != nil {
			fmt.Fprintln(os.Stderr, "unhealthy:", err)
			os.Exit(1)
		}
		return
	}
	service := config.String("SERVICE_NAME", "schedule-service")
	logger := runtime.NewLogger(service, config.String("LOG_LEVEL", "info"))

	if err := run(logger, service); err != nil {
		logger.Error("service stopped", "err", err)
		os.Exit(1)
	}
}

func run(logger *slog.Logger, service string) error {
	ctx, stop := runtime.SignalContext()
	defer stop()

	shutdownTracing, err := otelx.Setup(ctx, otelx.ConfigFromEnv(service))
	if err != nil {
		return err
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTracing(sctx); err != nil {
			logger.Warn("otel shutdown failed", "err", err)
		}
	}()

	httpPort, err := config.Port("PORT", "8090")
	if err != nil {
		return err
	}
	grpcPort, err := config.Port("GRPC_PORT", "9090")
	if err != nil {
		return err
	}
	dbURL, err := config.RequiredString("DATABASE_URL")
	if err != nil {
		return err
	}
	loc, err := time.LoadLocation(config.String("SCHEDULE_TIMEZONE", "UTC"))
	if err != nil {
		return err
	}

	if config.Bool("DB_MIGRATE", true) {
		if err := db.Migrate(dbURL, migrations.FS, "."); err != nil {
			return err
		}
		logger.Info("migrations applied")
	}

	pool, err := db.Open(ctx, dbURL, db.Options{MaxConns: int32(config.Int("DB_MAX_CONNS", 10))})
	if err != nil {
		return err
	}
	defer pool.Close()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	outboxRepo := outbox.NewRepository()
	repo := storage.NewRepository(pool, outboxRepo)
	svc := scheduling.NewService(repo, logger, scheduling.Options{
		Location:     loc,
		MaxInstances: config.Int("MAX_RECURRENCE_INSTANCES", 1000),
		Metrics:      m,
	})
	im := importer.New(repo, svc, loc, logger)
	handler := handlers.NewScheduleHandler(svc, im, logger, int64(config.Int("IMPORT_MAX_BYTES", 10<<20)))

	verifier := auth.Verifier{Secret: config.String("JWT_SECRET", "")}
	if jwksURL := config.String("JWKS_URL", ""); jwksURL != "" {
		verifier.JWKS = auth.NewJWKSClient(jwksURL, config.Seconds("JWKS_CACHE_SECONDS", 5*time.Minute))
	} else if verifier.Secret == "" {
		return errors.New("JWT_SECRET or JWKS_URL is required")
	}

	checks := []runtime.ReadyCheck{{Name: "postgres", Check: db.ReadyCheck(pool)}}

	brokers := kafkax.SplitBrokers(config.String("KAFKA_BROKERS", ""))
	var writer outbox.MessageWriter
	if len(brokers) > 0 {
		writer = kafkax.NewWriter(brokers)
		checks = append(checks, runtime.ReadyCheck{Name: "kafka", Check: kafkax.ReadyCheck(brokers)})
	}

	window := time.Minute
	perMinute := config.Int("RATE_LIMIT_PER_MINUTE", 300)
	var limiter httpx.Limiter = httpx.NewMemoryLimiter(perMinute, window)
	if addr := config.String("REDIS_ADDR", ""); addr != "" {
		rdb := redis.NewClient(&redis.Options{
			Addr:     addr,
			Password: config.String("REDIS_PASSWORD", ""),
			DB:       config.Int("REDIS_DB", 0),
		})
		defer rdb.Close()
		limiter = httpx.NewRedisLimiter(rdb, perMinute, window, service+":ratelimit:")
		checks = append(checks, runtime.ReadyCheck{Name: "redis", Check: func(ctx context.Context) error {
			return rdb.Ping(ctx).Err()
		}})
	}

	mux := runtime.NewBaseMux(checks...)
	mux.Handle("GET /metrics", m.Handler())
	handler.Register(mux, verifier.Require, func(pattern string, h http.Handler) http.Handler {
		return httpx.Instrument(m.HTTP(), pattern, h)
	})

	root := httpx.Chain(mux,
		httpx.WithRequestID,
		httpx.WithAccessLog(logger),
		httpx.WithCORS(httpx.CORSPolicy{
			AllowedOrigins:   config.List("CORS_ALLOWED_ORIGINS", ""),
			AllowedMethods:   config.List("CORS_ALLOWED_METHODS", "GET,POST,PUT,DELETE,OPTIONS"),
			AllowedHeaders:   config.List("CORS_ALLOWED_HEADERS", "Authorization,Content-Type,X-Request-Id"),
			AllowCredentials: config.Bool("CORS_ALLOW_CREDENTIALS", false),
			MaxAge:           config.Seconds("CORS_MAX_AGE_SECONDS", 10*time.Minute),
		}),
		httpx.RateLimit(limiter, logger, config.Bool("RATE_LIMIT_FAIL_OPEN", true)),
		httpx.WithBodyLimit(int64(config.Int("REQUEST_BODY_LIMIT_BYTES", 1<<20))),
		httpx.WithTimeout(config.Seconds("REQUEST_TIMEOUT_SECONDS", 30*time.Second)),
	)
	srv := &http.Server{
		Addr:              ":" + httpPort,
		Handler:           otelhttp.NewHandler(root, "http.server"),
		ReadHeaderTimeout: 5 * time.Second,
	}

	grpcSrv, health := grpcx.NewServer(logger)

	publisher := outbox.NewPublisher(pool, outboxRepo, writer, logger, m, outbox.PublisherConfig{
		PollEvery: config.Seconds("OUTBOX_POLL_SECONDS", 2*time.Second),
	})

	scheduler, err := jobs.NewScheduler(logger, 2*time.Minute)
	if err != nil {
		return err
	}
	sweeper := jobs.NewCompletionSweeper(repo, logger, m, config.Int("COMPLETION_BATCH_SIZE", 500))
	if err := scheduler.AddCron("complete-ended-schedules", config.String("COMPLETION_CRON", "*/5 * * * *"),
		func(ctx context.Context) error {
			_, err := sweeper.RunOnce(ctx)
			return err
		}); err != nil {
		return err
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info("http listening", "port", httpPort)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		lis, err := net.Listen("tcp", ":"+grpcPort)
		if err != nil {
			return err
		}
		logger.Info("grpc listening", "port", grpcPort)
		return grpcSrv.Serve(lis)
	})
	g.Go(func() error {
		grpcx.WatchReadiness(gctx, health, 10*time.Second, func(ctx context.Context) error {
			for _, c := range checks {
				if err := c.Check(ctx); err != nil {
					return err
				}
			}
			return nil
		})
		return nil
	})
	g.Go(func() error { return publisher.Run(gctx) })
	g.Go(func() error { return scheduler.Run(gctx) })
	g.Go(func() error {
		<-gctx.Done()
		sctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		grpcSrv.GracefulStop()
		return srv.Shutdown(sctx)
	})

	if err := g.Wait(); err != nil {
		return err
	}
	logger.Info("shutdown complete")
	return nil
}
