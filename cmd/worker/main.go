package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/extra/redisotel/v9"
	redis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/noah-isme/backend-telco/internal/campaign"
	"github.com/noah-isme/backend-telco/internal/config"
	"github.com/noah-isme/backend-telco/internal/notify"
	"github.com/noah-isme/backend-telco/internal/obs"
	"github.com/noah-isme/backend-telco/internal/queue"
	"github.com/noah-isme/backend-telco/internal/resilience"
	"github.com/noah-isme/backend-telco/internal/store"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	logger := obs.NewLogger(cfg.LogFormat, cfg.LogLevel).With().Str("env", cfg.AppEnv).Str("service", "telco-worker").Logger()
	obs.MustRegisterDomainMetrics(cfg.MetricsNamespace, nil)
	if cfg.TracingEnabled {
		shutdown, err := obs.InitTracer(context.Background(), obs.TracingConfig{
			ServiceName:   "telco-worker",
			Endpoint:      cfg.OTLPEndpoint,
			Exporter:      cfg.TracingExporter,
			SamplingRatio: cfg.TracingSampling,
			Environment:   cfg.AppEnv,
		})
		if err != nil {
			logger.Error().Err(err).Msg("initialise tracing")
		} else {
			defer func() { _ = shutdown(context.Background()) }()
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pool := mustInitDatabase(ctx, cfg, logger)
	defer pool.Close()

	redisClient := mustInitRedis(ctx, cfg, logger)
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Error().Err(err).Msg("close redis")
		}
	}()

	db := store.NewPG(pool)
	functions := notify.NewFunctionClient(cfg.FunctionsURL, cfg.FunctionsKey, resilience.Options{
		Timeout:            cfg.OutboundTimeout,
		BaseBackoff:        cfg.RetryBase,
		MaxAttempts:        cfg.RetryMaxAttempts,
		JitterPercent:      float64(cfg.RetryJitterPercent),
		BreakerMinRequests: cfg.CircuitMinRequests,
		BreakerFailureRate: cfg.CircuitFailureRate,
		BreakerOpenFor:     cfg.CircuitOpenFor,
	})
	emailLog := obs.Component(logger, "email")
	deliverer := campaign.Deliverer{
		Store: db,
		Email: notify.EmailNotifier{
			Mail:    functions,
			Enabled: cfg.EmailEnabled,
			Log:     db,
			Logger:  &emailLog,
		},
		Guard:  notify.SendGuard{Client: redisClient, Prefix: "telco:campaign", TTL: 7 * 24 * time.Hour},
		Logger: &logger,
	}

	campaignWorker := queue.Worker{
		R:                 redisClient,
		Prefix:            cfg.QueueRedisPrefix,
		Kind:              campaign.TaskKind,
		Concurrency:       cfg.QueueConcurrency,
		VisibilityTimeout: cfg.QueueVisibilityTimeout,
		SoftDeadline:      cfg.WorkerJobSoftDeadline,
		RetryBase:         cfg.QueueBackoffBase,
		RetryJitter:       cfg.QueueBackoffJitter,
		Store:             queue.NewStore(pool),
		Logger:            &logger,
		Handler:           deliverer.Handle,
	}

	go heartbeat(ctx, redisClient, cfg, logger)
	if cfg.WorkerMetricsAddr != "" {
		go serveMetrics(ctx, cfg.WorkerMetricsAddr, logger)
	}

	logger.Info().Str("kind", campaign.TaskKind).Int("concurrency", cfg.QueueConcurrency).Msg("worker starting")
	if err := campaignWorker.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error().Err(err).Msg("worker stopped with error")
	} else {
		logger.Info().Msg("worker shutdown complete")
	}
}

// heartbeat refreshes a per-host key so operators can see live workers.
func heartbeat(ctx context.Context, r redis.Cmdable, cfg *config.Config, logger zerolog.Logger) {
	interval := cfg.WorkerHeartbeatInterval
	if interval <= 0 {
		return
	}
	host, _ := os.Hostname()
	key := cfg.QueueRedisPrefix + ":heartbeat:" + host
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		if err := r.Set(ctx, key, time.Now().UTC().Format(time.RFC3339), 3*interval).Err(); err != nil && ctx.Err() == nil {
			logger.Warn().Err(err).Msg("heartbeat")
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func serveMetrics(ctx context.Context, addr string, logger zerolog.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		<-ctx.Done()
		_ = srv.Close()
	}()
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error().Err(err).Msg("metrics server")
	}
}

func mustInitDatabase(ctx context.Context, cfg *config.Config, logger zerolog.Logger) *pgxpool.Pool {
	poolConfig, err := pgxpool.ParseConfig(cfg.DatabaseURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("parse database config")
	}
	pgxLog := obs.Component(logger, "pgx")
	poolConfig.ConnConfig.Tracer = obs.PGXTracer{Slow: cfg.DBSlowQuery, Logger: &pgxLog}
	if cfg.DBStatementCacheCapacity >= 0 {
		poolConfig.ConnConfig.StatementCacheCapacity = cfg.DBStatementCacheCapacity
	}
	if cfg.DBMaxConns > 0 {
		poolConfig.MaxConns = int32(cfg.DBMaxConns)
	}
	if cfg.DBMinConns > 0 {
		poolConfig.MinConns = int32(cfg.DBMinConns)
	}
	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		logger.Fatal().Err(err).Msg("connect database")
	}
	if err := pool.Ping(ctx); err != nil {
		logger.Fatal().Err(err).Msg("ping database")
	}
	return pool
}

func mustInitRedis(ctx context.Context, cfg *config.Config, logger zerolog.Logger) *redis.Client {
	redisOpts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("parse redis url")
	}
	redisClient := redis.NewClient(redisOpts)
	if err := redisotel.InstrumentTracing(redisClient); err != nil {
		logger.Error().Err(err).Msg("instrument redis tracing")
	}
	if err := redisClient.Ping(ctx).Err(); err != nil {
		logger.Fatal().Err(err).Msg("ping redis")
	}
	return redisClient
}
