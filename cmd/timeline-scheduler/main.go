package main

import (
	"context"
	stdlog "log"
	"os"
	"os/signal"
	"syscall"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog/log"

	"timeline-backend/internal/timeline/engine"
	"timeline-backend/internal/timeline/metrics"
	"timeline-backend/internal/timeline/obslog"
	"timeline-backend/internal/timeline/repo"
	"timeline-backend/internal/timeline/simstate"
	"timeline-backend/internal/timeline/snapshot"
)

// main runs the scheduler as a synchronous-per-tick cron job: each firing
// resolves every run short of its target end_day, resumes each one to
// completion via engine.Run, and exits the tick. There is no always-on
// goroutine loop because the Engine forbids mid-chunk suspension (SPEC_FULL.md
// §5); a periodic batch keeps that contract easy to audit.
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

	entityRepo := repo.NewEntityRepository(dbPool)
	eventRepo := repo.NewEventRepository(dbPool)
	snapshotStore := snapshot.New(dbPool)
	scheduledRuns := repo.NewScheduledRunRepository(dbPool)

	eng := engine.New(entityRepo, eventRepo, snapshotStore, log.Logger)

	engineConfig := engine.DefaultConfig()
	engineConfig.ChunkSizeDays = cfg.ChunkSizeDays
	engineConfig.BaseCarryingCapacity = map[simstate.EntityKind]int{
		simstate.EntityKindRegion:   cfg.BaseCarryingCapacity,
		simstate.EntityKindProvince: cfg.BaseCarryingCapacity,
	}

	sched := cron.New()
	tickID, err := sched.AddFunc(cfg.CronSchedule, func() {
		runTick(ctx, eng, scheduledRuns, engineConfig)
	})
	if err != nil {
		stdlog.Fatal("invalid SCHEDULER_CRON expression: ", err)
	}

	log.Info().Str("schedule", cfg.CronSchedule).Int("entry_id", int(tickID)).Msg("timeline scheduler starting")
	sched.Start()

	sigint := make(chan os.Signal, 1)
	signal.Notify(sigint, os.Interrupt, syscall.SIGTERM)
	<-sigint

	log.Info().Msg("shutting down timeline scheduler")
	stopCtx := sched.Stop()
	<-stopCtx.Done()
	cancel()
}

// runTick resolves due runs and resumes each to completion. A panic in one
// run is recovered and logged so it cannot take down the next tick's other
// runs or the scheduler process itself.
func runTick(ctx context.Context, eng *engine.Engine, scheduledRuns *repo.ScheduledRunRepository, cfg engine.Config) {
	defer func() {
		if r := recover(); r != nil {
			log.Error().Interface("panic", r).Msg("recovered from panic in scheduler tick")
		}
	}()

	due, err := scheduledRuns.ListDue(ctx)
	if err != nil {
		log.Error().Err(err).Msg("failed to list due scheduled runs")
		return
	}

	log.Info().Int("due_count", len(due)).Msg("scheduler tick starting")

	for _, run := range due {
		resumeOne(ctx, eng, scheduledRuns, cfg, run)
	}
}

func resumeOne(ctx context.Context, eng *engine.Engine, scheduledRuns *repo.ScheduledRunRepository, cfg engine.Config, run repo.DueRun) {
	defer func() {
		if r := recover(); r != nil {
			log.Error().Interface("panic", r).Str("entity_kind", string(run.EntityKind)).Str("entity_id", run.EntityID.String()).Msg("recovered from panic resuming run")
		}
	}()

	granularity := engine.Granularity(run.Granularity)

	stop := metrics.RunStarted()
	defer stop()

	chunks, err := eng.Run(ctx, run.EntityKind, run.EntityID, run.ResumeDay, run.TargetEndDay, granularity, cfg)
	reachedDay := run.ResumeDay
	for _, chunk := range chunks {
		if chunk.EndDay > reachedDay {
			reachedDay = chunk.EndDay
		}
		codes := make([]string, len(chunk.Warnings))
		for i, w := range chunk.Warnings {
			codes[i] = w.Code
		}
		metrics.RecordChunk(codes)
	}
	if err != nil {
		log.Error().Err(err).Str("entity_kind", string(run.EntityKind)).Str("entity_id", run.EntityID.String()).Msg("scheduled run failed")
		return
	}

	if err := scheduledRuns.MarkResumed(ctx, run.EntityKind, run.EntityID, reachedDay); err != nil {
		log.Error().Err(err).Str("entity_kind", string(run.EntityKind)).Str("entity_id", run.EntityID.String()).Msg("failed to record resumed run progress")
	}
}
