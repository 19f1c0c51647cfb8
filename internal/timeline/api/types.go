// Package api implements the HTTP surface wrapping the simulation core:
// starting runs, and reading/correcting snapshots (SPEC_FULL.md §10.6).
package api

import (
	"context"

	"github.com/google/uuid"

	"timeline-backend/internal/timeline/engine"
	"timeline-backend/internal/timeline/simstate"
	"timeline-backend/internal/timeline/snapshot"
)

// RunRequest is the POST /api/timeline/runs body.
type RunRequest struct {
	EntityKind  string `json:"entity_kind"`
	EntityID    string `json:"entity_id"`
	StartDay    int64  `json:"start_day"`
	EndDay      int64  `json:"end_day"`
	Granularity string `json:"granularity"`
	Seed        *int64 `json:"seed,omitempty"`
}

// RunResponse is the POST /api/timeline/runs success body.
type RunResponse struct {
	EntityKind string               `json:"entity_kind"`
	EntityID   string               `json:"entity_id"`
	Chunks     []engine.ChunkReport `json:"chunks"`
}

// SnapshotResponse is the JSON shape returned for a single snapshot.
type SnapshotResponse struct {
	ID                  uuid.UUID      `json:"id"`
	EntityKind          string         `json:"entity_kind"`
	EntityID            uuid.UUID      `json:"entity_id"`
	AstroDay            int64          `json:"astro_day"`
	SnapshotType        string         `json:"snapshot_type"`
	Granularity         string         `json:"granularity"`
	PopulationTotal     int            `json:"population_total"`
	PopulationBySpecies map[string]int `json:"population_by_species,omitempty"`
	PopulationByHabitat map[string]int `json:"population_by_habitat,omitempty"`
	CulturalComposition map[string]any `json:"cultural_composition,omitempty"`
	EconomicData        map[string]any `json:"economic_data,omitempty"`
	Metadata            map[string]any `json:"metadata,omitempty"`
}

func toSnapshotResponse(s *snapshot.Snapshot) SnapshotResponse {
	return SnapshotResponse{
		ID:                  s.ID,
		EntityKind:          string(s.EntityKind),
		EntityID:            s.EntityID,
		AstroDay:            s.AstroDay,
		SnapshotType:        s.SnapshotType,
		Granularity:         s.Granularity,
		PopulationTotal:     s.PopulationTotal,
		PopulationBySpecies: s.PopulationBySpecies,
		PopulationByHabitat: s.PopulationByHabitat,
		CulturalComposition: s.CulturalComposition,
		EconomicData:        s.EconomicData,
		Metadata:            s.Metadata,
	}
}

// RunLocker is the narrow per-entity locking contract the run handler needs.
type RunLocker interface {
	Acquire(ctx context.Context, kind simstate.EntityKind, entityID uuid.UUID, token string) error
	Release(ctx context.Context, kind simstate.EntityKind, entityID uuid.UUID, token string) error
}

// SnapshotReader is the narrow read contract the snapshot handler needs.
type SnapshotReader interface {
	GetInterpolated(ctx context.Context, kind simstate.EntityKind, entityID uuid.UUID, day int64) (*snapshot.Snapshot, error)
	List(ctx context.Context, kind simstate.EntityKind, entityID uuid.UUID, startDay, endDay *int64, snapshotType, granularity string) ([]snapshot.Snapshot, error)
}

// SnapshotAdmin is the narrow correction contract the admin handler needs.
type SnapshotAdmin interface {
	Update(ctx context.Context, kind simstate.EntityKind, id uuid.UUID, populationTotal *int, bySpecies, byHabitat map[string]int) (*snapshot.Snapshot, error)
	Delete(ctx context.Context, kind simstate.EntityKind, id uuid.UUID) error
}

func parseEntityKind(raw string) (simstate.EntityKind, bool) {
	switch simstate.EntityKind(raw) {
	case simstate.EntityKindRegion, simstate.EntityKindProvince, simstate.EntityKindSettlement:
		return simstate.EntityKind(raw), true
	default:
		return "", false
	}
}
