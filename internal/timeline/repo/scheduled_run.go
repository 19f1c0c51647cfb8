package repo

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"timeline-backend/internal/timeline/simstate"
	"timeline-backend/internal/timeline/timelineerr"
)

// DueRun names a simulation target short of its configured end_day: an
// entity the scheduler should resume via engine.Run(ctx, ..., ResumeDay,
// TargetEndDay, ...).
type DueRun struct {
	EntityKind   simstate.EntityKind
	EntityID     uuid.UUID
	ResumeDay    int64
	TargetEndDay int64
	Granularity  string
}

// ScheduledRunRepository lists and tracks long-running simulation targets:
// entities with a configured end_day the Engine has not yet reached.
// Separate from the snapshot store because "what should exist" (a target)
// and "what has been computed" (a snapshot) are different concerns.
type ScheduledRunRepository struct {
	pool *pgxpool.Pool
}

// NewScheduledRunRepository creates a ScheduledRunRepository backed by pool.
func NewScheduledRunRepository(pool *pgxpool.Pool) *ScheduledRunRepository {
	return &ScheduledRunRepository{pool: pool}
}

// ListDue returns every scheduled run whose last_resumed_day (0 when never
// resumed) is still short of its target_end_day. That day is the resume
// point; snapshots are not consulted.
func (r *ScheduledRunRepository) ListDue(ctx context.Context) ([]DueRun, error) {
	const query = `
		SELECT sr.entity_kind, sr.entity_id, sr.target_end_day, sr.granularity,
		       COALESCE(sr.last_resumed_day, 0) AS resume_day
		FROM scheduled_runs sr
		WHERE COALESCE(sr.last_resumed_day, 0) < sr.target_end_day
		ORDER BY sr.entity_kind, sr.entity_id
	`

	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, timelineerr.Wrap(timelineerr.ErrStoreError, "failed to list due scheduled runs", err)
	}
	defer rows.Close()

	var due []DueRun
	for rows.Next() {
		var (
			kind        string
			entityID    uuid.UUID
			targetEnd   int64
			granularity string
			resumeDay   int64
		)
		if err := rows.Scan(&kind, &entityID, &targetEnd, &granularity, &resumeDay); err != nil {
			return nil, timelineerr.Wrap(timelineerr.ErrStoreError, "failed to scan scheduled run row", err)
		}
		due = append(due, DueRun{
			EntityKind:   simstate.EntityKind(kind),
			EntityID:     entityID,
			ResumeDay:    resumeDay,
			TargetEndDay: targetEnd,
			Granularity:  granularity,
		})
	}
	if err := rows.Err(); err != nil {
		return nil, timelineerr.Wrap(timelineerr.ErrStoreError, "failed to iterate scheduled run rows", err)
	}

	return due, nil
}

// MarkResumed records the day a run reached so the next tick resumes from
// there rather than redoing already-completed chunks.
func (r *ScheduledRunRepository) MarkResumed(ctx context.Context, kind simstate.EntityKind, entityID uuid.UUID, reachedDay int64) error {
	const query = `
		UPDATE scheduled_runs
		SET last_resumed_day = $3
		WHERE entity_kind = $1 AND entity_id = $2
	`
	_, err := r.pool.Exec(ctx, query, string(kind), entityID, reachedDay)
	if err != nil {
		return timelineerr.Wrap(timelineerr.ErrStoreError, "failed to mark scheduled run resumed", err)
	}
	return nil
}
