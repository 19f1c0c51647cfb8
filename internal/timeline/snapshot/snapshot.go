// Package snapshot implements the temporal snapshot store: a queryable,
// append-mostly time series of demographic records keyed by
// (entity_kind, entity_id, astro_day), with exact, nearest, and linearly
// interpolated retrieval.
package snapshot

import (
	"time"

	"github.com/google/uuid"

	"timeline-backend/internal/timeline/simstate"
)

// Direction selects which side of a day to search for the nearest snapshot.
type Direction string

const (
	DirectionBefore Direction = "before"
	DirectionAfter  Direction = "after"
)

// Snapshot is a demographic record at a single day for a single entity.
type Snapshot struct {
	ID         uuid.UUID
	EntityKind simstate.EntityKind
	EntityID   uuid.UUID
	AstroDay   int64

	SnapshotType string
	Granularity  string

	PopulationTotal     int
	PopulationBySpecies map[string]int
	PopulationByHabitat map[string]int

	CulturalComposition map[string]any
	EconomicData        map[string]any
	Metadata            map[string]any

	InterpolationInfo *InterpolationInfo

	CreatedAt time.Time
	UpdatedAt time.Time
}

// InterpolationInfo records the provenance of a synthesized, non-persistent
// snapshot produced by linear interpolation.
type InterpolationInfo struct {
	BeforeDay           int64
	AfterDay            int64
	BeforeID            uuid.UUID
	AfterID             uuid.UUID
	InterpolationFactor float64
}

const (
	SnapshotTypeSimulation   = "simulation"
	SnapshotTypeCensus       = "census"
	SnapshotTypeEstimate     = "estimate"
	SnapshotTypeInterpolated = "interpolated"
)

// Interpolate computes the ephemeral interpolated-snapshot record for day
// given the nearest stored snapshots on either side. It implements the four
// cases of the interpolation rules: neither present, one present, an exact
// match, and genuine linear interpolation between two distinct snapshots.
//
// population_by_species and population_by_habitat are interpolated per key
// across the union of keys on both sides, treating a missing key as 0.
// cultural_composition, economic_data, and metadata are taken verbatim from
// before (step-function semantics): these are categorical/narrative fields
// with no meaningful linear blend.
func Interpolate(day int64, before, after *Snapshot) *Snapshot {
	switch {
	case before == nil && after == nil:
		return nil
	case before == nil:
		return after
	case after == nil:
		return before
	case before.ID == after.ID:
		return before
	}

	t := float64(day-before.AstroDay) / float64(after.AstroDay-before.AstroDay)

	result := &Snapshot{
		EntityKind:          before.EntityKind,
		EntityID:            before.EntityID,
		AstroDay:            day,
		SnapshotType:        SnapshotTypeInterpolated,
		Granularity:         before.Granularity,
		PopulationTotal:     roundToInt(float64(before.PopulationTotal) + t*float64(after.PopulationTotal-before.PopulationTotal)),
		PopulationBySpecies: interpolateCounts(before.PopulationBySpecies, after.PopulationBySpecies, t),
		PopulationByHabitat: interpolateCounts(before.PopulationByHabitat, after.PopulationByHabitat, t),
		CulturalComposition: before.CulturalComposition,
		EconomicData:        before.EconomicData,
		Metadata:            before.Metadata,
		InterpolationInfo: &InterpolationInfo{
			BeforeDay:           before.AstroDay,
			AfterDay:            after.AstroDay,
			BeforeID:            before.ID,
			AfterID:             after.ID,
			InterpolationFactor: t,
		},
	}

	return result
}

// interpolateCounts linearly interpolates per key across the union of keys
// in before and after, treating an absent key as 0.
func interpolateCounts(before, after map[string]int, t float64) map[string]int {
	if before == nil && after == nil {
		return nil
	}

	result := make(map[string]int, max(len(before), len(after)))
	seen := make(map[string]struct{}, len(before)+len(after))

	for key, beforeVal := range before {
		afterVal := after[key]
		result[key] = roundToInt(float64(beforeVal) + t*float64(afterVal-beforeVal))
		seen[key] = struct{}{}
	}
	for key, afterVal := range after {
		if _, ok := seen[key]; ok {
			continue
		}
		beforeVal := before[key]
		result[key] = roundToInt(float64(beforeVal) + t*float64(afterVal-beforeVal))
	}

	return result
}

func roundToInt(f float64) int {
	if f >= 0 {
		return int(f + 0.5)
	}
	return int(f - 0.5)
}
