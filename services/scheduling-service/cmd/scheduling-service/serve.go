package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/md-rashed-zaman/clinicsched/libs/auth"
	"github.com/md-rashed-zaman/clinicsched/libs/config"
	"github.com/md-rashed-zaman/clinicsched/libs/db"
	"github.com/md-rashed-zaman/clinicsched/libs/grpcx"
	"github.com/md-rashed-zaman/clinicsched/libs/httpx"
	"github.com/md-rashed-zaman/clinicsched/libs/kafkax"
	otelx "github.com/md-rashed-zaman/clinicsched/libs/otel"
	"github.com/md-rashed-zaman/clinicsched/libs/runtime"
	"github.com/md-rashed-zaman/clinicsched/services/scheduling-service/internal/handlers"
	"github.com/md-rashed-zaman/clinicsched/services/scheduling-service/internal/outbox"
	"github.com/md-rashed-zaman/clinicsched/services/scheduling-service/internal/scheduling"
	"github.com/md-rashed-zaman/clinicsched/services/scheduling-service/internal/storage"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

func newServeCommand() *cobra.Command {
	var inMemory bool
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API, the gRPC health server and the outbox publisher",
		RunE: func(*cobra.Command, []string) error {
			return serve(inMemory)
		},
	}
	cmd.Flags().BoolVar(&inMemory, "in-memory", false, "keep all state in process instead of PostgreSQL (development only)")
	return cmd
}

func newLogger(service string) *slog.Logger {
	return runtime.NewLoggerWithOptions(service, runtime.LogOptions{
		Level:      config.String("LOG_LEVEL", "info"),
		File:       config.String("LOG_FILE", ""),
		MaxSizeMB:  config.Int("LOG_FILE_MAX_MB", 100),
		MaxBackups: config.Int("LOG_FILE_MAX_BACKUPS", 5),
	})
}

func serve(inMemory bool) error {
	service := config.String("SERVICE_NAME", defaultServiceName)
	port, err := config.Port("PORT", "8085")
	if err != nil {
		return err
	}
	grpcPort, err := config.Port("GRPC_PORT", "9095")
	if err != nil {
		return err
	}
	logger := newLogger(service)

	ctx, stop := runtime.SignalContext()
	defer stop()

	otelShutdown, err := otelx.Setup(ctx, otelx.ConfigFromEnv(service))
	if err != nil {
		logger.Error("otel setup failed", "err", err)
	} else {
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = otelShutdown(shutdownCtx)
		}()
	}

	verifier, err := newVerifier()
	if err != nil {
		return err
	}

	var (
		store  storage.Store
		events scheduling.EventSink
		checks []runtime.ReadyCheck
	)
	if inMemory {
		logger.Warn("using in-memory store; state is lost on exit and events are not published")
		store = storage.NewMemory()
		events = outbox.NewRecorder(logger)
	} else {
		dbURL, err := config.RequiredString("DATABASE_URL")
		if err != nil {
			return err
		}
		pool, err := db.Open(ctx, dbURL, db.PoolConfigFromEnv())
		if err != nil {
			return fmt.Errorf("db connection failed: %w", err)
		}
		defer pool.Close()

		store = storage.NewPostgres(pool)
		events = outbox.NewRepository(pool)
		checks = append(checks, runtime.ReadyCheck{Name: "postgres", Check: db.ReadyCheck(pool)})

		if brokers := kafkax.SplitBrokers(config.String("KAFKA_BROKERS", "")); len(brokers) > 0 {
			writer := kafkax.NewWriter(brokers)
			defer writer.Close()
			publisher := outbox.NewPublisher(outbox.NewPoolSource(pool), writer, logger, outbox.PublisherConfig{
				PollEvery: config.Seconds("OUTBOX_POLL_SECONDS", 2*time.Second),
				BatchSize: config.Int("OUTBOX_BATCH_SIZE", 50),
			})
			go publisher.Run(ctx)
			checks = append(checks, runtime.ReadyCheck{Name: "kafka", Check: kafkax.ReadyCheck(brokers)})
		} else {
			logger.Warn("KAFKA_BROKERS not set; outbox events will accumulate unpublished")
		}
	}

	var limiter httpx.Limiter
	if perMinute := config.Int("RATE_LIMIT_PER_MINUTE", 120); perMinute > 0 {
		if addr := config.String("REDIS_ADDR", ""); addr != "" {
			rdb := redis.NewClient(&redis.Options{
				Addr:     addr,
				Password: config.String("REDIS_PASSWORD", ""),
				DB:       config.Int("REDIS_DB", 0),
			})
			defer rdb.Close()
			limiter = httpx.NewRedisRateLimiter(rdb, perMinute, time.Minute, service+":ratelimit:")
			checks = append(checks, runtime.ReadyCheck{Name: "redis", Check: func(ctx context.Context) error {
				return rdb.Ping(ctx).Err()
			}})
		} else {
			limiter = httpx.NewMemoryRateLimiter(perMinute, time.Minute)
		}
	}

	svc := scheduling.NewService(store, events, logger)
	mux := runtime.NewBaseMuxWithReady(checks...)
	handlers.New(svc, verifier, logger).Register(mux)

	handler := httpx.Chain(mux,
		httpx.WithCORS(httpx.DefaultCORSPolicy(config.List("CORS_ALLOWED_ORIGINS", ""))),
		httpx.WithRequestID,
		httpx.WithAccessLog(logger),
		httpx.WithRecover(logger),
		httpx.WithBodyLimit(int64(config.Int("REQUEST_BODY_LIMIT_BYTES", 1<<20))),
		httpx.WithTimeout(config.Seconds("REQUEST_TIMEOUT_SECONDS", 15*time.Second)),
		httpx.RateLimit(limiter, logger, httpx.RateLimitOptions{
			FailOpen:       config.Bool("RATE_LIMIT_FAIL_OPEN", true),
			TrustForwarded: config.Bool("TRUST_PROXY_HEADERS", false),
		}),
	)
	srv := &http.Server{
		Addr:              ":" + port,
		Handler:           otelhttp.NewHandler(handler, service),
		ReadHeaderTimeout: 5 * time.Second,
	}

	grpcServer := grpcx.NewServer(service, logger)
	grpcServer.SetServing(true)
	go func() {
		if err := grpcServer.Serve(ctx, ":"+grpcPort); err != nil {
			logger.Error("grpc server failed", "err", err)
			stop()
		}
	}()

	return runtime.ServeHTTP(ctx, srv, logger)
}

func newVerifier() (*auth.Verifier, error) {
	secret := config.String("JWT_SECRET", "")
	jwksURL := config.String("JWKS_URL", "")
	if secret == "" && jwksURL == "" {
		return nil, errors.New("JWT_SECRET or JWKS_URL is required")
	}
	var jwks *auth.JWKSClient
	if jwksURL != "" {
		jwks = auth.NewJWKSClient(jwksURL, config.Seconds("JWKS_CACHE_SECONDS", 5*time.Minute))
	}
	return auth.NewVerifier(secret, jwks), nil
}
