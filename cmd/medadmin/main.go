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

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"medadmin/internal/audit"
	"medadmin/internal/booking"
	"medadmin/internal/config"
	"medadmin/internal/console"
	"medadmin/internal/database"
	"medadmin/internal/events"
	"medadmin/internal/metrics"
	"medadmin/internal/schedule"
	"medadmin/internal/service"
	"medadmin/internal/store"
)

func main() {
	// Operator dialogue owns stdout; logs go to stderr.
	output := zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}
	logger := zerolog.New(output).With().Timestamp().Logger()

	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		logger.Warn().Err(err).Msg("failed to load .env")
	}

	cfg, err := config.Load(config.PathFromEnv())
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to load config")
	}

	level, err := zerolog.ParseLevel(cfg.Log.Level)
	if err != nil {
		logger.Warn().Str("level", cfg.Log.Level).Msg("unknown log level, using info")
		level = zerolog.InfoLevel
	}
	logger = logger.Level(level)

	opts := []store.ClientOption{
		store.WithTimeout(cfg.StoreTimeout()),
		store.WithRateLimit(cfg.Store.RequestsPerSecond, cfg.Store.Burst),
	}
	var rdb *redis.Client
	if cfg.Redis.Address != "" {
		rdb = redis.NewClient(&redis.Options{Addr: cfg.Redis.Address, Password: cfg.Redis.Password, DB: cfg.Redis.DB})
		defer rdb.Close()
		opts = append(opts, store.WithRedisCache(rdb, cfg.CacheTTL()))
	}

	partitions, err := store.Open(cfg.Endpoints(), opts...)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to open partitions")
	}

	journal, err := database.NewDB(cfg.Journal.Path, &logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("open journal error")
	}
	defer journal.Close()

	bus := events.NewEventBus()
	bus.OnError(func(ev events.Event, err error) {
		logger.Error().Err(err).Str("event", ev.Type).Msg("event handler failed")
	})
	journal.Subscribe(bus)

	calc := schedule.NewCalculator(partitions, cfg.Booking.Slots, &logger)
	validator := schedule.NewValidator(partitions, calc, cfg.Rules(), &logger)
	svc := service.NewService(partitions, calc, validator, bus, &logger)
	handler := booking.NewHandler(svc, validator, &logger)
	exporter := audit.NewExporter(svc, journal, &logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	backupLogger := logger.With().Str("component", "backup").Logger()
	go database.NewBackupService(journal, cfg.Journal.Backup, &backupLogger).Start(ctx)

	if cfg.Monitoring.HealthCheckPort > 0 {
		go startHealthServer(ctx, cfg.Monitoring.HealthCheckPort, journal, rdb, &logger)
	}
	if cfg.Monitoring.PrometheusEnabled {
		metrics.Register()
		go startMetricsServer(ctx, cfg.Monitoring.PrometheusPort, &logger)
	}

	logger.Info().Int("partitions", partitions.Len()).Msg("medadmin started")

	// Closing stdin unblocks the pending read on shutdown.
	go func() {
		<-ctx.Done()
		_ = os.Stdin.Close()
	}()

	c := console.New(svc, handler, os.Stdin, os.Stdout, &logger,
		console.WithExporter(exporter, cfg.Export.Dir),
	)
	if err := c.Run(ctx); err != nil && ctx.Err() == nil {
		logger.Error().Err(err).Msg("console stopped")
	}
}

func startHealthServer(ctx context.Context, port int, journal *database.DB, rdb *redis.Client, logger *zerolog.Logger) {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	mux.HandleFunc("/readyz", func(w http.ResponseWriter, _ *http.Request) {
		ctxPing, cancel := context.WithTimeout(ctx, time.Second)
		defer cancel()
		if err := journal.PingContext(ctxPing); err != nil {
			http.Error(w, "journal not ready", http.StatusServiceUnavailable)
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

	serve(ctx, port, mux, "health", logger)
}

func startMetricsServer(ctx context.Context, port int, logger *zerolog.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	serve(ctx, port, mux, "metrics", logger)
}

func serve(ctx context.Context, port int, handler http.Handler, name string, logger *zerolog.Logger) {
	srv := &http.Server{Addr: fmt.Sprintf(":%d", port), Handler: handler, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		<-ctx.Done()
		ctxShutdown, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctxShutdown)
	}()
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error().Err(err).Str("server", name).Msg("server error")
	}
}
