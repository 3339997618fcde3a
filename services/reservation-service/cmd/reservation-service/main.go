package main

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/md-rashed-zaman/slotbook/libs/config"
	"github.com/md-rashed-zaman/slotbook/libs/db"
	"github.com/md-rashed-zaman/slotbook/libs/httpx"
	"github.com/md-rashed-zaman/slotbook/libs/kafkax"
	otelx "github.com/md-rashed-zaman/slotbook/libs/otel"
	"github.com/md-rashed-zaman/slotbook/libs/runtime"
	"github.com/md-rashed-zaman/slotbook/services/reservation-service/internal/handlers"
	"github.com/md-rashed-zaman/slotbook/services/reservation-service/internal/outbox"
	"github.com/md-rashed-zaman/slotbook/services/reservation-service/internal/reservation"
	"github.com/md-rashed-zaman/slotbook/services/reservation-service/internal/store"
	memorystore "github.com/md-rashed-zaman/slotbook/services/reservation-service/internal/store/memory"
	pgstore "github.com/md-rashed-zaman/slotbook/services/reservation-service/internal/store/postgres"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

func parseList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part != "" {
			out = append(out, part)
		}
	}
	return out
}

func main() {
	service := config.String("SERVICE_NAME", "reservation-service")
	port, err := config.Port("PORT", "8084")
	if err != nil {
		panic(err)
	}
	logger := runtime.NewLogger(service)

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

	var (
		st     store.Store
		checks []runtime.ReadyCheck
	)
	switch backend := config.String("STORE", "postgres"); backend {
	case "memory":
		logger.Warn("using in-memory store; bookings are lost on restart")
		st = memorystore.New()
	default:
		dbURL, err := config.RequiredString("DATABASE_URL")
		if err != nil {
			panic(err)
		}
		pool, err := db.Open(ctx, dbURL, db.Options{
			MaxConns: int32(config.Int("DB_MAX_CONNS", 10)),
		})
		if err != nil {
			logger.Error("db connection failed", "err", err)
			panic(err)
		}
		defer pool.Close()
		st = pgstore.New(pool)
		checks = append(checks, runtime.ReadyCheck{Name: "db", Check: db.ReadyCheck(pool)})

		brokers := config.String("KAFKA_BROKERS", "")
		if brokers != "" {
			outboxPublisher := outbox.NewPublisher(pool, outbox.NewRepository(pool), logger, outbox.PublisherConfig{
				Brokers:   brokers,
				PollEvery: config.Duration("OUTBOX_POLL_INTERVAL", 2*time.Second),
				BatchSize: config.Int("OUTBOX_BATCH_SIZE", 50),
			})
			go outboxPublisher.Run(ctx)
			checks = append(checks, runtime.ReadyCheck{Name: "kafka", Check: kafkax.ReadyCheck(brokers)})
		}
	}

	coord := reservation.New(st, logger, reservation.Config{
		GranularityMinutes: config.Int("SLOT_GRANULARITY_MINUTES", 30),
	})

	middlewares := []httpx.Middleware{
		httpx.WithRequestID,
		httpx.WithAccessLog(logger),
		httpx.WithBodyLimit(1 << 20),
		httpx.WithCORS(httpx.CORSPolicy{
			AllowedOrigins:   parseList(config.String("CORS_ALLOWED_ORIGINS", "")),
			AllowedMethods:   parseList(config.String("CORS_ALLOWED_METHODS", "GET,POST,PUT,PATCH,OPTIONS")),
			AllowedHeaders:   parseList(config.String("CORS_ALLOWED_HEADERS", "Content-Type,X-Request-Id,X-Actor-Id,Idempotency-Key")),
			AllowCredentials: config.Bool("CORS_ALLOW_CREDENTIALS", false),
			MaxAge:           config.Duration("CORS_MAX_AGE", 10*time.Minute),
		}),
	}
	limitPerMinute := config.Int("RATE_LIMIT_PER_MINUTE", 120)
	if redisAddr := config.String("REDIS_ADDR", ""); redisAddr != "" {
		rdb := redis.NewClient(&redis.Options{Addr: redisAddr})
		limiter := httpx.NewRedisRateLimiter(rdb, limitPerMinute, time.Minute, service)
		middlewares = append(middlewares, limiter.Middleware(logger, config.Bool("RATE_LIMIT_FAIL_OPEN", true)))
		checks = append(checks, runtime.ReadyCheck{Name: "redis", Check: func(ctx context.Context) error {
			return rdb.Ping(ctx).Err()
		}})
	} else {
		// Single-instance fallback; the Redis limiter is the shared one.
		middlewares = append(middlewares, httpx.NewRateLimiter(limitPerMinute, time.Minute).Middleware())
	}

	mux := runtime.NewBaseMuxWithReady(checks...)
	handlers.NewReservationHandler(coord, logger).Register(mux)

	httpHandler := httpx.Chain(mux, middlewares...)
	httpHandler = otelhttp.NewHandler(httpHandler, "reservation")
	srv := &http.Server{
		Addr:              ":" + port,
		Handler:           httpHandler,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.Info("http server starting", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("http server error", "err", err)
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown error", "err", err)
	}
	logger.Info("http server stopped")
}
