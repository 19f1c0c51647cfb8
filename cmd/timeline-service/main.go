package main

import (
	"context"
	stdlog "log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"timeline-backend/internal/timeline/api"
	"timeline-backend/internal/timeline/engine"
	"timeline-backend/internal/timeline/metrics"
	"timeline-backend/internal/timeline/obslog"
	"timeline-backend/internal/timeline/repo"
	"timeline-backend/internal/timeline/runlock"
	"timeline-backend/internal/timeline/simstate"
	"timeline-backend/internal/timeline/snapshot"
)

func main() {
	obslog.Init()

	cfg := loadConfig()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	poolConfig, err := pgxpool.ParseConfig(cfg.DatabaseURL)
	if err != nil {
		stdlog.Fatal("failed to parse DATABASE_URL for pgxpool: ", err)
	}
	dbPool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		stdlog.Fatal("failed to connect to database: ", err)
	}
	defer dbPool.Close()

	redisClient := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
	if err := redisClient.Ping(ctx).Err(); err != nil {
		stdlog.Fatal("failed to connect to redis: ", err)
	}

	entityRepo := repo.NewEntityRepository(dbPool)
	eventRepo := repo.NewEventRepository(dbPool)
	snapshotStore := snapshot.New(dbPool)

	eng := engine.New(entityRepo, eventRepo, snapshotStore, log.Logger)
	locker := runlock.New(redisClient, cfg.RunLockTTL)

	engineConfig := engine.DefaultConfig()
	engineConfig.GrowthRates = cfg.GrowthRates
	engineConfig.BaseCarryingCapacity = map[simstate.EntityKind]int{
		simstate.EntityKindRegion:   cfg.BaseCarryingCapacityRegion,
		simstate.EntityKindProvince: cfg.BaseCarryingCapacityProvince,
	}

	router := chi.NewRouter()
	router.Use(middleware.RequestID)
	router.Use(middleware.RealIP)
	router.Use(middleware.Recoverer)
	router.Use(obslog.Middleware)

	router.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.CORSAllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PATCH", "DELETE"},
		AllowedHeaders:   []string{"Accept", "Content-Type", "X-Correlation-ID"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	router.Handle("/metrics", metrics.Handler())
	router.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})
	router.Mount("/", api.NewRouter(eng, snapshotStore, locker, engineConfig))

	server := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		sigint := make(chan os.Signal, 1)
		signal.Notify(sigint, os.Interrupt, syscall.SIGTERM)
		<-sigint

		log.Info().Msg("shutting down timeline service")
		cancel()

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("server shutdown error")
		}
	}()

	log.Info().Str("port", cfg.Port).Msg("timeline service listening")
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		stdlog.Fatal("server error: ", err)
	}

	log.Info().Msg("timeline service stopped")
}
