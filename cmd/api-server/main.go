package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/hackgods/clinic-calendar-engine/internal/api"
	"github.com/hackgods/clinic-calendar-engine/internal/appointment"
	"github.com/hackgods/clinic-calendar-engine/internal/config"
	"github.com/hackgods/clinic-calendar-engine/internal/db"
	"github.com/hackgods/clinic-calendar-engine/internal/logger"
	"github.com/hackgods/clinic-calendar-engine/internal/metrics"
	redisclient "github.com/hackgods/clinic-calendar-engine/internal/redis"
	"github.com/hackgods/clinic-calendar-engine/internal/scheduling"
)

// set with -ldflags "-X main.version=..."
var version = "dev"

func main() {
	cfg, err := config.Load()
	if err != nil {
		bootLog := logger.New("dev", "info")
		bootLog.Fatal().Err(err).Msg("config load error")
	}

	log := logger.New(cfg.Env, cfg.LogLevel).With().Str("service", "api-server").Logger()
	log.Info().Str("env", cfg.Env).Str("http_port", cfg.HTTPPort).Str("version", version).Msg("api-server starting up")

	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pgCtx, cancelPg := context.WithTimeout(rootCtx, 10*time.Second)
	pgPool, err := db.ConnectPostgres(pgCtx, cfg.PostgresDSN, db.WithApplicationName("api-server"))
	cancelPg()
	if err != nil {
		log.Fatal().Err(err).Msg("postgres connection error")
	}
	defer pgPool.Close()

	if err := db.EnsureSchema(rootCtx, pgPool); err != nil {
		log.Fatal().Err(err).Msg("schema setup failed")
	}
	log.Info().Msg("connected to Postgres")

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	opts := []scheduling.Option{
		scheduling.WithLogger(log),
		scheduling.WithMetrics(metrics.NewCalendarMetrics(reg)),
	}

	var (
		locker     redisclient.Locker
		redisCheck api.CheckFunc
	)
	rdb, err := redisclient.NewRedisClient(rootCtx, redisclient.Options{
		Addr:     cfg.RedisAddr,
		Username: cfg.RedisUsername,
		Password: cfg.RedisPassword,
	})
	if err != nil {
		// bookings stay safe through the storage uniqueness constraint
		log.Warn().Err(err).Msg("redis unavailable, running without booking lock and snapshot cache")
	} else {
		defer func() {
			if err := rdb.Close(); err != nil {
				log.Error().Err(err).Msg("error closing redis")
			}
		}()
		log.Info().Msg("connected to Redis")

		locker = redisclient.NewRedisDayLocker(rdb, cfg.LockTTL, redisclient.WithAcquireWait(cfg.LockWait, 0))
		opts = append(opts, scheduling.WithSnapshotCache(redisclient.NewSnapshotCache(rdb, cfg.SnapshotTTL)))
		redisCheck = func(ctx context.Context) error { return rdb.Ping(ctx).Err() }
	}

	repo := appointment.NewPgRepository(pgPool)
	svc := scheduling.NewService(repo, locker, cfg, opts...)

	router := api.NewRouter(api.RouterConfig{
		Service:  svc,
		Postgres: pgPool.Ping,
		Redis:    redisCheck,
		Metrics:  reg,
		Logger:   log,
		Location: cfg.Location,
		Env:      cfg.Env,
		Version:  version,
	})

	srv := newHTTPServer(cfg.HTTPPort, router)

	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", srv.Addr).Msg("http server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-rootCtx.Done():
	case err := <-errCh:
		log.Error().Err(err).Msg("http server failed")
	}

	log.Info().Msg("shutting down api-server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("graceful shutdown failed")
	}
}

func newHTTPServer(port string, h http.Handler) *http.Server {
	return &http.Server{
		Addr:              ":" + port,
		Handler:           h,
		ReadHeaderTimeout: 5 * time.Second,
	}
}
