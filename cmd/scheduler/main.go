package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prankitapotbhare/Second-Opinion-sub000/internal/api"
	"github.com/prankitapotbhare/Second-Opinion-sub000/internal/availability"
	"github.com/prankitapotbhare/Second-Opinion-sub000/internal/cache"
	"github.com/prankitapotbhare/Second-Opinion-sub000/internal/config"
	"github.com/prankitapotbhare/Second-Opinion-sub000/internal/db"
	"github.com/prankitapotbhare/Second-Opinion-sub000/internal/events"
	"github.com/prankitapotbhare/Second-Opinion-sub000/internal/metrics"
	"github.com/prankitapotbhare/Second-Opinion-sub000/internal/sweeper"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

func main() {
	// Initialize logger
	output := zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}
	logger := zerolog.New(output).With().Timestamp().Logger()

	cfg, err := config.Load(os.Getenv("SCHEDULER_CONFIG_PATH"))
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to load config")
	}

	loc, err := cfg.Location()
	if err != nil {
		logger.Fatal().Err(err).Str("timezone", cfg.Scheduling.Timezone).Msg("invalid scheduling timezone")
	}

	database, err := db.NewDB(cfg.Database.Path, &logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("open db error")
	}
	defer database.Close()

	bus := events.NewEventBus()
	bus.OnError(func(e events.Event, err error) {
		logger.Warn().Err(err).Str("event", e.Type).Str("doctor_id", e.DoctorID).Msg("event handler failed")
	})

	opts := availability.Options{
		Location:        loc,
		ReservationHold: cfg.ReservationHold(),
		Events:          bus,
	}

	var (
		rdb       *redis.Client
		sweepLock sweeper.Locker
	)
	if cfg.Redis.Address != "" {
		rdb = redis.NewClient(&redis.Options{Addr: cfg.Redis.Address, Password: cfg.Redis.Password, DB: cfg.Redis.DB})
		defer rdb.Close()

		slotCache := cache.NewSlotCache(rdb, cfg.CacheTTL(), &logger)
		bus.Subscribe(slotCache.HandleEvent,
			events.SlotsGenerated, events.SlotReserved, events.SlotConfirmed, events.SlotReleased,
			events.AvailabilitySaved, events.AppointmentTransitioned,
		)
		opts.Cache = slotCache
		sweepLock = cache.NewLock(rdb, "scheduler:sweep:lock", cfg.LockTTL())
	}

	service := availability.NewService(database, database, opts, &logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var sweepRunner api.SweepRunner
	if cfg.Sweeper.Enabled {
		sw, err := sweeper.New(database, sweeper.Options{
			Schedule:   cfg.SweepSchedule(),
			StartDelay: cfg.SweepStartDelay(),
			Grace:      cfg.SweepGrace(),
			Location:   loc,
			Lock:       sweepLock,
			Events:     bus,
		}, &logger)
		if err != nil {
			logger.Fatal().Err(err).Msg("create sweeper error")
		}
		sweepRunner = sw
		go sw.Start(ctx)
	}

	go startHealthServer(ctx, cfg.HealthCheckPort(), database, rdb, &logger)

	if cfg.Monitoring.PrometheusEnabled {
		metrics.Register()
		go startMetricsServer(ctx, cfg.PrometheusPort(), &logger)
	}

	if cfg.Backup.Enabled {
		go startBackupLoop(ctx, database, cfg, &logger)
	}

	limit, burst := cfg.RateLimit()
	server := api.NewHTTPServer(service, sweepRunner, api.Config{
		Port:        cfg.ServerPort(),
		APIKey:      cfg.Server.APIKey,
		RateLimit:   limit,
		RateBurst:   burst,
		ReadTimeout: cfg.ReadTimeout(),
	}, &logger)

	logger.Info().Str("timezone", loc.String()).Msg("scheduler started")
	if err := server.Start(ctx); err != nil {
		logger.Error().Err(err).Msg("api server error")
	}
}

func startBackupLoop(ctx context.Context, database *db.DB, cfg *config.Config, logger *zerolog.Logger) {
	// Run first backup after a short delay
	select {
	case <-time.After(1 * time.Minute):
		runBackupTask(ctx, database, cfg, logger)
	case <-ctx.Done():
		return
	}

	ticker := time.NewTicker(cfg.BackupInterval())
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			runBackupTask(ctx, database, cfg, logger)
		case <-ctx.Done():
			return
		}
	}
}

func runBackupTask(ctx context.Context, database *db.DB, cfg *config.Config, logger *zerolog.Logger) {
	if _, err := database.Backup(ctx, cfg.BackupPath()); err != nil {
		logger.Error().Err(err).Msg("backup failed")
	} else {
		logger.Info().Msg("backup completed successfully")
	}

	deleted, err := database.CleanupBackups(cfg.BackupPath(), cfg.BackupRetention())
	if err != nil {
		logger.Error().Err(err).Msg("backup cleanup failed")
	} else if deleted > 0 {
		logger.Info().Int("deleted", deleted).Msg("cleaned up old backups")
	}
}

func startHealthServer(ctx context.Context, port int, database *db.DB, rdb *redis.Client, logger *zerolog.Logger) {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	mux.HandleFunc("/readyz", func(w http.ResponseWriter, _ *http.Request) {
		ctxPing, cancel := context.WithTimeout(ctx, time.Second)
		defer cancel()
		if err := database.PingContext(ctxPing); err != nil {
			http.Error(w, "db not ready", http.StatusServiceUnavailable)
			return
		}
		if rdb != nil {
			if err := rdb.Ping(ctxPing).Err(); err != nil {
				http.Error(w, "redis not ready", http.StatusServiceUnavailable)
				return
			}
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ready"))
	})

	serve(ctx, port, mux, "health server error", logger)
}

func startMetricsServer(ctx context.Context, port int, logger *zerolog.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	serve(ctx, port, mux, "metrics server error", logger)
}

func serve(ctx context.Context, port int, handler http.Handler, errMsg string, logger *zerolog.Logger) {
	srv := &http.Server{Addr: fmt.Sprintf(":%d", port), Handler: handler, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		<-ctx.Done()
		ctxShutdown, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctxShutdown)
	}()
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error().Err(err).Msg(errMsg)
	}
}
