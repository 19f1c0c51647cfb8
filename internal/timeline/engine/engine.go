// Package engine implements the Simulation Engine: the orchestrator that
// loads initial state from the snapshot store, loads events from the
// timeline, advances one day at a time through chunked windows, applies
// event effects then population growth, writes snapshots, validates, and
// reports (SPEC_FULL.md §4.5).
package engine

import (
	"context"
	"math/rand"
	"sort"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"timeline-backend/internal/timeline/effects"
	"timeline-backend/internal/timeline/repo"
	"timeline-backend/internal/timeline/simstate"
	"timeline-backend/internal/timeline/snapshot"
	"timeline-backend/internal/timeline/timelineerr"
)

// Granularity names a reporting/snapshot cadence.
type Granularity string

const (
	GranularityYear    Granularity = "year"
	GranularityDecade  Granularity = "decade"
	GranularityCentury Granularity = "century"
)

func snapshotIntervalDays(g Granularity) (int64, error) {
	switch g {
	case GranularityYear:
		return 365, nil
	case GranularityDecade:
		return 3652, nil
	case GranularityCentury:
		return 36525, nil
	default:
		return 0, timelineerr.NewInvalidArgument("unknown granularity %q", g)
	}
}

// Config supplies everything a run needs beyond the entity and day range.
type Config struct {
	Seed                        *int64
	ChunkSizeDays               int64
	GrowthRates                 map[string]float64
	BaseCarryingCapacity        map[simstate.EntityKind]int
	EnvironmentalFactorRange    [2]float64
	InfrastructureFactorInit    float64
	LocationFactorRange         [2]float64
	MaxGrowthRatePerStep        float64
	NegativePopulationTolerance int
}

// DefaultConfig returns the defaults named in SPEC_FULL.md §6.
func DefaultConfig() Config {
	return Config{
		ChunkSizeDays:            36525,
		GrowthRates:              map[string]float64{},
		BaseCarryingCapacity:     map[simstate.EntityKind]int{simstate.EntityKindRegion: 50000, simstate.EntityKindProvince: 50000},
		EnvironmentalFactorRange: [2]float64{0.8, 1.2},
		InfrastructureFactorInit: 1.0,
		LocationFactorRange:      [2]float64{0.9, 1.1},
		MaxGrowthRatePerStep:     0.10,
	}
}

// ChunkReport summarizes one chunk's execution: the day range processed,
// the final population, the effective capacity, a species snapshot, the
// three factors, and any validation warnings raised at chunk end.
type ChunkReport struct {
	StartDay             int64
	EndDay               int64
	FinalPopulation      int
	EffectiveCapacity    int
	BySpeciesSnapshot    map[string]int
	EnvironmentalFactor  float64
	InfrastructureFactor float64
	LocationFactor       float64
	Warnings             []timelineerr.ValidationWarning
}

// EntityResolver resolves a simulation target by kind and id. Satisfied by
// *repo.EntityRepository.
type EntityResolver interface {
	Get(ctx context.Context, kind simstate.EntityKind, id uuid.UUID) (*repo.Entity, error)
}

// EventSource lists active events scoped to an entity within a day range,
// ordered by (astro_day, id). Satisfied by *repo.EventRepository.
type EventSource interface {
	ListActiveEvents(ctx context.Context, kind simstate.EntityKind, id uuid.UUID, startDay, endDay int64) ([]effects.Event, error)
}

// SnapshotStore is the narrow slice of the snapshot store the engine needs:
// interpolated reads for initialization, exact reads for resumption
// checks, and writes at the snapshot cadence. Satisfied by *snapshot.Store.
type SnapshotStore interface {
	GetInterpolated(ctx context.Context, kind simstate.EntityKind, entityID uuid.UUID, day int64) (*snapshot.Snapshot, error)
	GetAt(ctx context.Context, kind simstate.EntityKind, entityID uuid.UUID, day int64) (*snapshot.Snapshot, error)
	Create(ctx context.Context, snap snapshot.Snapshot) (*snapshot.Snapshot, error)
}

// Engine orchestrates runs against the three narrow collaborator
// interfaces above, keeping the core unit-testable against in-memory fakes
// (SPEC_FULL.md §9 "Polymorphism over region/province").
type Engine struct {
	Entities  EntityResolver
	Events    EventSource
	Snapshots SnapshotStore
	Logger    zerolog.Logger
}

// New creates an Engine from its three collaborators.
func New(entities EntityResolver, events EventSource, snapshots SnapshotStore, logger zerolog.Logger) *Engine {
	return &Engine{Entities: entities, Events: events, Snapshots: snapshots, Logger: logger}
}

// Run executes the full algorithm of SPEC_FULL.md §4.5 and returns the
// ordered list of chunk reports. Cancellation via ctx is honored only at
// chunk boundaries, matching §5's cooperative scheduling model.
func (e *Engine) Run(ctx context.Context, kind simstate.EntityKind, entityID uuid.UUID, startDay, endDay int64, granularity Granularity, cfg Config) ([]ChunkReport, error) {
	if kind != simstate.EntityKindRegion && kind != simstate.EntityKindProvince {
		return nil, timelineerr.NewInvalidArgument("entity_kind must be region or province, got %q", kind)
	}
	if startDay < 0 || startDay >= endDay {
		return nil, timelineerr.NewInvalidArgument("require 0 <= start_day < end_day, got start_day=%d end_day=%d", startDay, endDay)
	}
	interval, err := snapshotIntervalDays(granularity)
	if err != nil {
		return nil, err
	}
	if cfg.ChunkSizeDays <= 0 {
		return nil, timelineerr.NewInvalidArgument("chunk_size_days must be positive, got %d", cfg.ChunkSizeDays)
	}

	state, err := e.initialize(ctx, kind, entityID, startDay, cfg)
	if err != nil {
		return nil, err
	}

	chunks := chunksFor(startDay, endDay, cfg.ChunkSizeDays)

	var reports []ChunkReport
	for _, chunk := range chunks {
		select {
		case <-ctx.Done():
			return reports, ctx.Err()
		default:
		}

		report, err := e.runChunk(ctx, state, chunk.start, chunk.end, startDay, interval, granularity, cfg)
		if err != nil {
			return reports, err
		}
		reports = append(reports, report)

		e.Logger.Info().
			Str("entity_id", entityID.String()).
			Int64("chunk_start", chunk.start).
			Int64("chunk_end", chunk.end).
			Int("final_population", report.FinalPopulation).
			Msg("chunk complete")
	}

	return reports, nil
}

func (e *Engine) initialize(ctx context.Context, kind simstate.EntityKind, entityID uuid.UUID, startDay int64, cfg Config) (*simstate.SimulationState, error) {
	entity, err := e.Entities.Get(ctx, kind, entityID)
	if err != nil {
		return nil, err
	}

	baseK := cfg.BaseCarryingCapacity[kind]
	if entity.BaseCarryingCapacityOverride != nil {
		baseK = *entity.BaseCarryingCapacityOverride
	}

	population := simstate.NewPopulationState()
	seedSnapshot, err := e.Snapshots.GetInterpolated(ctx, kind, entityID, startDay)
	if err != nil {
		return nil, err
	}
	if seedSnapshot != nil {
		population.Total = seedSnapshot.PopulationTotal
		if seedSnapshot.PopulationBySpecies != nil {
			population.BySpecies = seedSnapshot.PopulationBySpecies
		}
		if seedSnapshot.PopulationByHabitat != nil {
			population.ByHabitat = seedSnapshot.PopulationByHabitat
		}
	}

	var rngSeed int64
	if cfg.Seed != nil {
		rngSeed = *cfg.Seed
	}
	rng := rand.New(rand.NewSource(rngSeed))

	envFactor := uniform(rng, cfg.EnvironmentalFactorRange)
	locFactor := uniform(rng, cfg.LocationFactorRange)

	return &simstate.SimulationState{
		EntityKind:           kind,
		EntityID:             entityID,
		EntityName:           entity.Name,
		CurrentDay:           startDay,
		Population:           population,
		BaseCarryingCapacity: baseK,
		EnvironmentalFactor:  envFactor,
		InfrastructureFactor: cfg.InfrastructureFactorInit,
		LocationFactor:       locFactor,
		RNG:                  rng,
	}, nil
}

func uniform(rng *rand.Rand, bounds [2]float64) float64 {
	low, high := bounds[0], bounds[1]
	if high <= low {
		return low
	}
	return low + rng.Float64()*(high-low)
}

type dayRange struct {
	start, end int64
}

// chunksFor divides [startDay, endDay] into closed, disjoint, ordered
// intervals each spanning at most chunkSize days.
func chunksFor(startDay, endDay, chunkSize int64) []dayRange {
	var chunks []dayRange
	current := startDay
	for current <= endDay {
		end := current + chunkSize - 1
		if end > endDay {
			end = endDay
		}
		chunks = append(chunks, dayRange{start: current, end: end})
		current = end + 1
	}
	return chunks
}

func (e *Engine) runChunk(ctx context.Context, state *simstate.SimulationState, chunkStart, chunkEnd, runStartDay, snapshotInterval int64, granularity Granularity, cfg Config) (ChunkReport, error) {
	events, err := e.Events.ListActiveEvents(ctx, state.EntityKind, state.EntityID, chunkStart, chunkEnd)
	if err != nil {
		return ChunkReport{}, err
	}
	byDay := indexEventsByDay(events)

	var warnings []timelineerr.ValidationWarning
	for species, rate := range cfg.GrowthRates {
		if rate > cfg.MaxGrowthRatePerStep {
			warnings = append(warnings, timelineerr.GrowthRateExceededWarning(species, chunkStart))
		}
	}

	for day := chunkStart; day <= chunkEnd; day++ {
		for _, event := range byDay[day] {
			*state = effects.Apply(*state, event)
		}

		k := state.EffectiveCapacity()
		if k < int(float64(state.BaseCarryingCapacity)*0.05) {
			warnings = append(warnings, timelineerr.CapacityCollapseWarning(day, k))
		}

		state.Population = state.Population.ApplyGrowth(cfg.GrowthRates, k)
		state.CurrentDay = day

		if state.Population.Total < -cfg.NegativePopulationTolerance {
			warnings = append(warnings, timelineerr.NegativePopulationWarning(state.EntityID.String(), day))
		}

		if (day-runStartDay)%snapshotInterval == 0 || day == chunkEnd {
			existing, err := e.Snapshots.GetAt(ctx, state.EntityKind, state.EntityID, day)
			if err != nil {
				return ChunkReport{}, err
			}
			if existing == nil {
				snap := snapshot.Snapshot{
					EntityKind:          state.EntityKind,
					EntityID:            state.EntityID,
					AstroDay:            day,
					SnapshotType:        snapshot.SnapshotTypeSimulation,
					Granularity:         string(granularity),
					PopulationTotal:     state.Population.Total,
					PopulationBySpecies: state.Population.BySpecies,
					PopulationByHabitat: state.Population.ByHabitat,
				}
				if _, err := e.Snapshots.Create(ctx, snap); err != nil {
					return ChunkReport{}, err
				}
			}
		}
	}

	if state.InfrastructureFactor < 0.1 {
		warnings = append(warnings, timelineerr.FactorOutOfBoundsWarning("infrastructure", chunkEnd, state.InfrastructureFactor))
	}
	if state.EnvironmentalFactor < 0.1 {
		warnings = append(warnings, timelineerr.FactorOutOfBoundsWarning("environmental", chunkEnd, state.EnvironmentalFactor))
	}

	return ChunkReport{
		StartDay:             chunkStart,
		EndDay:               chunkEnd,
		FinalPopulation:      state.Population.Total,
		EffectiveCapacity:    state.EffectiveCapacity(),
		BySpeciesSnapshot:    state.Population.Clone().BySpecies,
		EnvironmentalFactor:  state.EnvironmentalFactor,
		InfrastructureFactor: state.InfrastructureFactor,
		LocationFactor:       state.LocationFactor,
		Warnings:             warnings,
	}, nil
}

// indexEventsByDay groups events by astro_day, each day's list sorted by
// ascending event id for deterministic, stable application order.
func indexEventsByDay(events []effects.Event) map[int64][]effects.Event {
	byDay := make(map[int64][]effects.Event)
	for _, event := range events {
		byDay[event.AstroDay] = append(byDay[event.AstroDay], event)
	}
	for day := range byDay {
		sort.Slice(byDay[day], func(i, j int) bool {
			return byDay[day][i].ID < byDay[day][j].ID
		})
	}
	return byDay
}
