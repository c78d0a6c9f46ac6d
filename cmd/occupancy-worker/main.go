package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/hackgods/clinic-calendar-engine/internal/appointment"
	"github.com/hackgods/clinic-calendar-engine/internal/config"
	"github.com/hackgods/clinic-calendar-engine/internal/db"
	"github.com/hackgods/clinic-calendar-engine/internal/logger"
	redisclient "github.com/hackgods/clinic-calendar-engine/internal/redis"
	"github.com/hackgods/clinic-calendar-engine/internal/scheduling"
)

// consecutive failed refreshes before the worker starts logging at error level
const failureThreshold = 3

func main() {
	// registered first so it runs after every other deferred cleanup
	exitCode := 0
	defer func() {
		if exitCode != 0 {
			os.Exit(exitCode)
		}
	}()

	once := flag.Bool("once", false, "refresh snapshots a single time and exit (for cron)")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		bootLog := logger.New("dev", "info")
		bootLog.Fatal().Err(err).Msg("config load error")
	}

	log := logger.New(cfg.Env, cfg.LogLevel).With().Str("service", "occupancy-worker").Logger()
	log.Info().Str("env", cfg.Env).Dur("interval", cfg.WorkerInterval).Bool("once", *once).Msg("occupancy worker starting up")

	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pgCtx, cancelPg := context.WithTimeout(rootCtx, 10*time.Second)
	pgPool, err := db.ConnectPostgres(pgCtx, cfg.PostgresDSN, db.WithApplicationName("occupancy-worker"), db.WithMaxConns(2))
	cancelPg()
	if err != nil {
		log.Fatal().Err(err).Msg("postgres connection error")
	}
	defer pgPool.Close()

	// snapshots live only in redis, so unlike the api-server the worker cannot run without it
	rdb, err := redisclient.NewRedisClient(rootCtx, redisclient.Options{
		Addr:     cfg.RedisAddr,
		Username: cfg.RedisUsername,
		Password: cfg.RedisPassword,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("redis connection error")
	}
	defer func() {
		if err := rdb.Close(); err != nil {
			log.Error().Err(err).Msg("error closing redis")
		}
	}()

	svc := scheduling.NewService(appointment.NewPgRepository(pgPool), nil, cfg,
		scheduling.WithSnapshotCache(redisclient.NewSnapshotCache(rdb, cfg.SnapshotTTL)),
		scheduling.WithLogger(log),
	)

	w := &worker{svc: svc, log: log, timeout: refreshTimeout(cfg.WorkerInterval)}
	if *once {
		if !w.refresh(rootCtx) {
			exitCode = 1
		}
		return
	}

	w.refresh(rootCtx)

	ticker := time.NewTicker(cfg.WorkerInterval)
	defer ticker.Stop()

	for {
		select {
		case <-rootCtx.Done():
			log.Info().Msg("shutdown signal received, stopping occupancy worker")
			return
		case <-ticker.C:
			w.refresh(rootCtx)
		}
	}
}

type worker struct {
	svc      *scheduling.Service
	log      zerolog.Logger
	timeout  time.Duration
	failures int
}

// refresh runs one pass and reports whether every snapshot was stored.
func (w *worker) refresh(ctx context.Context) bool {
	runCtx, cancel := context.WithTimeout(ctx, w.timeout)
	defer cancel()

	start := time.Now()
	stored, err := w.svc.RefreshSnapshots(runCtx)

	for _, snap := range stored {
		w.log.Info().
			Str("site", string(snap.Site)).
			Int("total", snap.Stats.Total).
			Int("max_per_day", snap.Stats.Max).
			Int("current_streak", snap.Streaks.Current).
			Str("busiest_weekday", snap.Predictions.BusiestWeekday.String()).
			Int("next_week_projection", snap.Predictions.NextWeekProjection).
			Msg("snapshot stored")
	}

	if err != nil {
		w.failures++
		ev := w.log.Warn()
		if w.failures >= failureThreshold {
			ev = w.log.Error()
		}
		ev.Err(err).Int("consecutive_failures", w.failures).Msg("snapshot refresh failed")
		return false
	}

	w.failures = 0
	w.log.Info().Dur("took", time.Since(start)).Int("snapshots", len(stored)).Msg("snapshot refresh complete")
	return true
}

// refreshTimeout keeps one pass shorter than the tick so runs never pile up.
func refreshTimeout(interval time.Duration) time.Duration {
	return min(max(interval*3/4, time.Second), 2*time.Minute)
}
