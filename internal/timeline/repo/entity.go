// Package repo implements the pgx/v5-backed Entity resolver and Event
// source contracts consumed by the simulation engine (SPEC_FULL.md §6,
// §10.1, §10.2).
package repo

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"timeline-backend/internal/timeline/simstate"
	"timeline-backend/internal/timeline/timelineerr"
)

// Entity is the minimal shape the engine needs about its simulation target:
// identity, a display name, and an optional override of the config
// default carrying capacity.
type Entity struct {
	ID                           uuid.UUID
	Name                         string
	BaseCarryingCapacityOverride *int
}

// EntityRepository resolves regions and provinces by id.
type EntityRepository struct {
	pool *pgxpool.Pool
}

// NewEntityRepository creates an EntityRepository backed by pool.
func NewEntityRepository(pool *pgxpool.Pool) *EntityRepository {
	return &EntityRepository{pool: pool}
}

// GetRegion resolves a region by id, or NotFound if it does not exist.
func (r *EntityRepository) GetRegion(ctx context.Context, id uuid.UUID) (*Entity, error) {
	return r.get(ctx, "regions", id)
}

// GetProvince resolves a province by id, or NotFound if it does not exist.
func (r *EntityRepository) GetProvince(ctx context.Context, id uuid.UUID) (*Entity, error) {
	return r.get(ctx, "provinces", id)
}

// Get resolves an entity by kind, dispatching to GetRegion or GetProvince.
func (r *EntityRepository) Get(ctx context.Context, kind simstate.EntityKind, id uuid.UUID) (*Entity, error) {
	switch kind {
	case simstate.EntityKindRegion:
		return r.GetRegion(ctx, id)
	case simstate.EntityKindProvince:
		return r.GetProvince(ctx, id)
	default:
		return nil, timelineerr.NewInvalidArgument("unknown entity kind %q", kind)
	}
}

func (r *EntityRepository) get(ctx context.Context, table string, id uuid.UUID) (*Entity, error) {
	query := `SELECT id, name, base_carrying_capacity_override FROM ` + table + ` WHERE id = $1`

	var entity Entity
	err := r.pool.QueryRow(ctx, query, id).Scan(&entity.ID, &entity.Name, &entity.BaseCarryingCapacityOverride)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, timelineerr.NewNotFound("entity %s not found in %s", id, table)
	}
	if err != nil {
		return nil, timelineerr.Wrap(timelineerr.ErrStoreError, "failed to resolve entity", err)
	}
	return &entity, nil
}
