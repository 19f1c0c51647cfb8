// Package simstate holds the in-memory value objects that make up a live
// simulation run: a multi-species population breakdown, and the complete
// state of one region or province being advanced through time.
package simstate

import (
	"math/rand"

	"github.com/google/uuid"

	"timeline-backend/internal/timeline/formulas"
)

// EntityKind distinguishes the two polymorphic targets the engine simulates.
type EntityKind string

const (
	EntityKindRegion   EntityKind = "region"
	EntityKindProvince EntityKind = "province"
	// EntityKindSettlement identifies settlement-scoped snapshots. The
	// simulation core never reads or writes them directly (SPEC_FULL.md
	// §4.2) — they exist only so higher-level tools can compose against
	// the same snapshot store.
	EntityKindSettlement EntityKind = "settlement"
)

// PopulationState is a multi-species population breakdown at a point in
// time. Total always equals the sum of BySpecies whenever BySpecies is
// non-empty.
type PopulationState struct {
	Total     int
	BySpecies map[string]int
	ByHabitat map[string]int
}

// NewPopulationState returns a zero population with empty breakdowns.
func NewPopulationState() PopulationState {
	return PopulationState{
		BySpecies: make(map[string]int),
		ByHabitat: make(map[string]int),
	}
}

// Clone returns a deep copy so callers can mutate the result without
// aliasing the receiver's maps.
func (p PopulationState) Clone() PopulationState {
	species := make(map[string]int, len(p.BySpecies))
	for k, v := range p.BySpecies {
		species[k] = v
	}
	habitat := make(map[string]int, len(p.ByHabitat))
	for k, v := range p.ByHabitat {
		habitat[k] = v
	}
	return PopulationState{Total: p.Total, BySpecies: species, ByHabitat: habitat}
}

// ApplyGrowth advances every species one step under the shared capacity k
// and returns the resulting state. Habitat breakdowns are scaled
// proportionally to the change in total; if the prior total was zero,
// habitats are carried through unchanged (there is nothing to scale from).
func (p PopulationState) ApplyGrowth(rates map[string]float64, k int) PopulationState {
	newBySpecies := formulas.MultiSpeciesStep(p.BySpecies, rates, k, 1.0)

	newTotal := 0
	for _, n := range newBySpecies {
		newTotal += n
	}

	newByHabitat := make(map[string]int, len(p.ByHabitat))
	if p.Total > 0 {
		scale := float64(newTotal) / float64(p.Total)
		for habitat, n := range p.ByHabitat {
			newByHabitat[habitat] = int(float64(n) * scale)
		}
	} else {
		for habitat, n := range p.ByHabitat {
			newByHabitat[habitat] = n
		}
	}

	return PopulationState{Total: newTotal, BySpecies: newBySpecies, ByHabitat: newByHabitat}
}

// ApplyShock scales total and every species/habitat component by a clamped
// multiplier, flooring to integer, and re-derives total as the sum of the
// scaled species breakdown so total == Σ by_species is re-established
// exactly (see SPEC_FULL.md §9, open question 1).
func (p PopulationState) ApplyShock(multiplier float64) PopulationState {
	newBySpecies := make(map[string]int, len(p.BySpecies))
	for species, n := range p.BySpecies {
		newBySpecies[species] = int(float64(n) * multiplier)
	}

	newByHabitat := make(map[string]int, len(p.ByHabitat))
	for habitat, n := range p.ByHabitat {
		newByHabitat[habitat] = int(float64(n) * multiplier)
	}

	newTotal := 0
	if len(newBySpecies) > 0 {
		for _, n := range newBySpecies {
			newTotal += n
		}
	} else {
		newTotal = int(float64(p.Total) * multiplier)
	}

	return PopulationState{Total: newTotal, BySpecies: newBySpecies, ByHabitat: newByHabitat}
}

// SimulationState bundles everything the engine needs to advance one entity
// through time: its identity, the current day, its population, and the
// three carrying-capacity factors. RNG is a dedicated handle seeded from
// the run's configuration, never the process-global generator.
type SimulationState struct {
	EntityKind EntityKind
	EntityID   uuid.UUID
	EntityName string

	CurrentDay int64

	Population PopulationState

	BaseCarryingCapacity int
	EnvironmentalFactor  float64
	InfrastructureFactor float64
	LocationFactor       float64

	RNG *rand.Rand
}

// EffectiveCapacity returns the derived carrying capacity K = floor(K_base *
// f_env * f_infra * f_loc). It is never itself stored.
func (s *SimulationState) EffectiveCapacity() int {
	return formulas.CarryingCapacity(s.BaseCarryingCapacity, s.EnvironmentalFactor, s.InfrastructureFactor, s.LocationFactor)
}
