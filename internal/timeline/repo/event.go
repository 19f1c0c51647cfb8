package repo

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"timeline-backend/internal/timeline/effects"
	"timeline-backend/internal/timeline/simstate"
	"timeline-backend/internal/timeline/timelineerr"
)

// EventRepository lists active events scoped to a region or province,
// ordered by (astro_day, id), excluding deprecated events at the SQL level.
type EventRepository struct {
	pool *pgxpool.Pool
}

// NewEventRepository creates an EventRepository backed by pool.
func NewEventRepository(pool *pgxpool.Pool) *EventRepository {
	return &EventRepository{pool: pool}
}

const eventsQuery = `
	SELECT id, astro_day, meta_data
	FROM events
	WHERE is_deprecated = false
	  AND astro_day BETWEEN $1 AND $2
	  AND (
	    ($3 = 'region' AND region_id = $4) OR
	    ($3 = 'province' AND province_id = $4)
	  )
	ORDER BY astro_day ASC, id ASC
`

// ListActiveEvents returns active events scoped to (kind, entityID) whose
// astro_day falls in [startDay, endDay], already ordered by (astro_day, id).
func (r *EventRepository) ListActiveEvents(ctx context.Context, kind simstate.EntityKind, entityID uuid.UUID, startDay, endDay int64) ([]effects.Event, error) {
	if kind != simstate.EntityKindRegion && kind != simstate.EntityKindProvince {
		return nil, timelineerr.NewInvalidArgument("unknown entity kind %q", kind)
	}

	rows, err := r.pool.Query(ctx, eventsQuery, startDay, endDay, string(kind), entityID)
	if err != nil {
		return nil, timelineerr.Wrap(timelineerr.ErrStoreError, "failed to list events", err)
	}
	defer rows.Close()

	var result []effects.Event
	for rows.Next() {
		var (
			id       int64
			astroDay int64
			metaData []byte
		)
		if err := rows.Scan(&id, &astroDay, &metaData); err != nil {
			return nil, timelineerr.Wrap(timelineerr.ErrStoreError, "failed to scan event row", err)
		}

		event := effects.Event{ID: id, AstroDay: astroDay}
		if len(metaData) > 0 && string(metaData) != "null" {
			var meta struct {
				Effects map[string]float64 `json:"effects"`
			}
			if err := json.Unmarshal(metaData, &meta); err != nil {
				return nil, fmt.Errorf("unmarshal event %d meta_data: %w", id, err)
			}
			event.Effects = meta.Effects
		}

		result = append(result, event)
	}
	if err := rows.Err(); err != nil {
		return nil, timelineerr.Wrap(timelineerr.ErrStoreError, "failed to iterate event rows", err)
	}

	return result, nil
}
