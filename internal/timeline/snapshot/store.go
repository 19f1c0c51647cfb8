package snapshot

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"timeline-backend/internal/timeline/simstate"
	"timeline-backend/internal/timeline/timelineerr"
)

// Store is the persistent, queryable time-series described in SPEC_FULL.md
// §4.2/§10.3. One Store instance serves region, province, and settlement
// snapshots; the entity kind selects the backing table. The engine itself
// only ever passes region/province. Settlement rows are served by the
// entity-scoped read endpoints and can be corrected or deleted through the
// admin endpoints; nothing in this repository creates them.
type Store struct {
	pool *pgxpool.Pool
}

// New creates a Store backed by pool.
func New(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

func tableFor(kind simstate.EntityKind) (string, error) {
	switch kind {
	case simstate.EntityKindRegion:
		return "region_snapshots", nil
	case simstate.EntityKindProvince:
		return "province_snapshots", nil
	case simstate.EntityKindSettlement:
		return "settlement_snapshots", nil
	default:
		return "", timelineerr.NewInvalidArgument("unknown entity kind %q", kind)
	}
}

// Create persists a new snapshot. It fails with Duplicate if one already
// exists at (entity, day), and with InvalidArgument if day or total is
// negative. Entity existence is the caller's responsibility via the entity
// repository; Create itself relies on the table's foreign key.
func (s *Store) Create(ctx context.Context, snap Snapshot) (*Snapshot, error) {
	if snap.AstroDay < 0 {
		return nil, timelineerr.NewInvalidArgument("astro_day must be >= 0, got %d", snap.AstroDay)
	}
	if snap.PopulationTotal < 0 {
		return nil, timelineerr.NewInvalidArgument("population_total must be >= 0, got %d", snap.PopulationTotal)
	}

	table, err := tableFor(snap.EntityKind)
	if err != nil {
		return nil, err
	}

	existing, err := s.GetAt(ctx, snap.EntityKind, snap.EntityID, snap.AstroDay)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, timelineerr.NewDuplicate("snapshot already exists for entity %s at day %d (id %s)", snap.EntityID, snap.AstroDay, existing.ID)
	}

	if snap.ID == uuid.Nil {
		snap.ID = uuid.New()
	}

	bySpecies, err := marshalCounts(snap.PopulationBySpecies)
	if err != nil {
		return nil, timelineerr.Wrap(timelineerr.ErrStoreError, "failed to marshal population_by_species", err)
	}
	byHabitat, err := marshalCounts(snap.PopulationByHabitat)
	if err != nil {
		return nil, timelineerr.Wrap(timelineerr.ErrStoreError, "failed to marshal population_by_habitat", err)
	}
	cultural, err := marshalMap(snap.CulturalComposition)
	if err != nil {
		return nil, timelineerr.Wrap(timelineerr.ErrStoreError, "failed to marshal cultural_composition", err)
	}
	economic, err := marshalMap(snap.EconomicData)
	if err != nil {
		return nil, timelineerr.Wrap(timelineerr.ErrStoreError, "failed to marshal economic_data", err)
	}
	metadata, err := marshalMap(snap.Metadata)
	if err != nil {
		return nil, timelineerr.Wrap(timelineerr.ErrStoreError, "failed to marshal metadata", err)
	}

	query := fmt.Sprintf(`
		INSERT INTO %s (
			id, entity_id, astro_day, snapshot_type, granularity,
			population_total, population_by_species, population_by_habitat,
			cultural_composition, economic_data, metadata, created_at, updated_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, NOW(), NOW())
		RETURNING created_at, updated_at
	`, table)

	err = s.pool.QueryRow(ctx, query,
		snap.ID, snap.EntityID, snap.AstroDay, snap.SnapshotType, snap.Granularity,
		snap.PopulationTotal, bySpecies, byHabitat, cultural, economic, metadata,
	).Scan(&snap.CreatedAt, &snap.UpdatedAt)
	if err != nil {
		return nil, timelineerr.Wrap(timelineerr.ErrStoreError, "failed to create snapshot", err)
	}

	return &snap, nil
}

// GetAt returns the exact snapshot stored at (entity, day), or nil if none
// exists.
func (s *Store) GetAt(ctx context.Context, kind simstate.EntityKind, entityID uuid.UUID, day int64) (*Snapshot, error) {
	table, err := tableFor(kind)
	if err != nil {
		return nil, err
	}

	query := fmt.Sprintf(`
		SELECT id, entity_id, astro_day, snapshot_type, granularity,
		       population_total, population_by_species, population_by_habitat,
		       cultural_composition, economic_data, metadata, created_at, updated_at
		FROM %s
		WHERE entity_id = $1 AND astro_day = $2
	`, table)

	row := s.pool.QueryRow(ctx, query, entityID, day)
	snap, err := scanSnapshot(row, kind)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, timelineerr.Wrap(timelineerr.ErrStoreError, "failed to read snapshot", err)
	}
	return snap, nil
}

// Nearest returns the snapshot closest to day in the given direction
// (inclusive of equality), or nil if none exists on that side.
func (s *Store) Nearest(ctx context.Context, kind simstate.EntityKind, entityID uuid.UUID, day int64, direction Direction) (*Snapshot, error) {
	table, err := tableFor(kind)
	if err != nil {
		return nil, err
	}

	var query string
	if direction == DirectionBefore {
		query = fmt.Sprintf(`
			SELECT id, entity_id, astro_day, snapshot_type, granularity,
			       population_total, population_by_species, population_by_habitat,
			       cultural_composition, economic_data, metadata, created_at, updated_at
			FROM %s
			WHERE entity_id = $1 AND astro_day <= $2
			ORDER BY astro_day DESC
			LIMIT 1
		`, table)
	} else {
		query = fmt.Sprintf(`
			SELECT id, entity_id, astro_day, snapshot_type, granularity,
			       population_total, population_by_species, population_by_habitat,
			       cultural_composition, economic_data, metadata, created_at, updated_at
			FROM %s
			WHERE entity_id = $1 AND astro_day >= $2
			ORDER BY astro_day ASC
			LIMIT 1
		`, table)
	}

	row := s.pool.QueryRow(ctx, query, entityID, day)
	snap, err := scanSnapshot(row, kind)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, timelineerr.Wrap(timelineerr.ErrStoreError, "failed to read nearest snapshot", err)
	}
	return snap, nil
}

// GetInterpolated returns the ephemeral interpolated snapshot for day, or
// nil if no data is available on either side. It never persists anything.
func (s *Store) GetInterpolated(ctx context.Context, kind simstate.EntityKind, entityID uuid.UUID, day int64) (*Snapshot, error) {
	before, err := s.Nearest(ctx, kind, entityID, day, DirectionBefore)
	if err != nil {
		return nil, err
	}
	after, err := s.Nearest(ctx, kind, entityID, day, DirectionAfter)
	if err != nil {
		return nil, err
	}
	return Interpolate(day, before, after), nil
}

// List returns snapshots for entityID within [startDay, endDay] (either
// bound optional via nil), filtered by snapshotType and granularity when
// non-empty, ordered by ascending day.
func (s *Store) List(ctx context.Context, kind simstate.EntityKind, entityID uuid.UUID, startDay, endDay *int64, snapshotType, granularity string) ([]Snapshot, error) {
	table, err := tableFor(kind)
	if err != nil {
		return nil, err
	}

	query := fmt.Sprintf(`
		SELECT id, entity_id, astro_day, snapshot_type, granularity,
		       population_total, population_by_species, population_by_habitat,
		       cultural_composition, economic_data, metadata, created_at, updated_at
		FROM %s
		WHERE entity_id = $1
		  AND ($2::bigint IS NULL OR astro_day >= $2)
		  AND ($3::bigint IS NULL OR astro_day <= $3)
		  AND ($4 = '' OR snapshot_type = $4)
		  AND ($5 = '' OR granularity = $5)
		ORDER BY astro_day ASC
	`, table)

	rows, err := s.pool.Query(ctx, query, entityID, startDay, endDay, snapshotType, granularity)
	if err != nil {
		return nil, timelineerr.Wrap(timelineerr.ErrStoreError, "failed to list snapshots", err)
	}
	defer rows.Close()

	var result []Snapshot
	for rows.Next() {
		snap, err := scanSnapshot(rows, kind)
		if err != nil {
			return nil, timelineerr.Wrap(timelineerr.ErrStoreError, "failed to scan snapshot row", err)
		}
		result = append(result, *snap)
	}
	if err := rows.Err(); err != nil {
		return nil, timelineerr.Wrap(timelineerr.ErrStoreError, "failed to iterate snapshot rows", err)
	}
	return result, nil
}

// Update applies a partial field update to an existing snapshot row,
// identified by id and entity kind, and returns the updated snapshot. This
// is an administrative correction path; the Engine never calls Update.
func (s *Store) Update(ctx context.Context, kind simstate.EntityKind, id uuid.UUID, populationTotal *int, bySpecies, byHabitat map[string]int) (*Snapshot, error) {
	table, err := tableFor(kind)
	if err != nil {
		return nil, err
	}

	speciesJSON, err := marshalCounts(bySpecies)
	if err != nil {
		return nil, timelineerr.Wrap(timelineerr.ErrStoreError, "failed to marshal population_by_species", err)
	}
	habitatJSON, err := marshalCounts(byHabitat)
	if err != nil {
		return nil, timelineerr.Wrap(timelineerr.ErrStoreError, "failed to marshal population_by_habitat", err)
	}

	query := fmt.Sprintf(`
		UPDATE %s
		SET population_total = COALESCE($2, population_total),
		    population_by_species = COALESCE($3, population_by_species),
		    population_by_habitat = COALESCE($4, population_by_habitat),
		    updated_at = NOW()
		WHERE id = $1
		RETURNING id, entity_id, astro_day, snapshot_type, granularity,
		          population_total, population_by_species, population_by_habitat,
		          cultural_composition, economic_data, metadata, created_at, updated_at
	`, table)

	row := s.pool.QueryRow(ctx, query, id, populationTotal, speciesJSON, habitatJSON)
	snap, err := scanSnapshot(row, kind)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, timelineerr.NewNotFound("snapshot %s not found", id)
	}
	if err != nil {
		return nil, timelineerr.Wrap(timelineerr.ErrStoreError, "failed to update snapshot", err)
	}
	return snap, nil
}

// Delete removes the snapshot row identified by id.
func (s *Store) Delete(ctx context.Context, kind simstate.EntityKind, id uuid.UUID) error {
	table, err := tableFor(kind)
	if err != nil {
		return err
	}
	query := fmt.Sprintf(`DELETE FROM %s WHERE id = $1`, table)
	tag, err := s.pool.Exec(ctx, query, id)
	if err != nil {
		return timelineerr.Wrap(timelineerr.ErrStoreError, "failed to delete snapshot", err)
	}
	if tag.RowsAffected() == 0 {
		return timelineerr.NewNotFound("snapshot %s not found", id)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSnapshot(row rowScanner, kind simstate.EntityKind) (*Snapshot, error) {
	var snap Snapshot
	var bySpecies, byHabitat, cultural, economic, metadata []byte

	err := row.Scan(
		&snap.ID, &snap.EntityID, &snap.AstroDay, &snap.SnapshotType, &snap.Granularity,
		&snap.PopulationTotal, &bySpecies, &byHabitat, &cultural, &economic, &metadata,
		&snap.CreatedAt, &snap.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	snap.EntityKind = kind

	if err := unmarshalCounts(bySpecies, &snap.PopulationBySpecies); err != nil {
		return nil, fmt.Errorf("unmarshal population_by_species: %w", err)
	}
	if err := unmarshalCounts(byHabitat, &snap.PopulationByHabitat); err != nil {
		return nil, fmt.Errorf("unmarshal population_by_habitat: %w", err)
	}
	if err := unmarshalMap(cultural, &snap.CulturalComposition); err != nil {
		return nil, fmt.Errorf("unmarshal cultural_composition: %w", err)
	}
	if err := unmarshalMap(economic, &snap.EconomicData); err != nil {
		return nil, fmt.Errorf("unmarshal economic_data: %w", err)
	}
	if err := unmarshalMap(metadata, &snap.Metadata); err != nil {
		return nil, fmt.Errorf("unmarshal metadata: %w", err)
	}

	return &snap, nil
}

func marshalCounts(m map[string]int) ([]byte, error) {
	if m == nil {
		return []byte("null"), nil
	}
	return json.Marshal(m)
}

func marshalMap(m map[string]any) ([]byte, error) {
	if m == nil {
		return []byte("null"), nil
	}
	return json.Marshal(m)
}

func unmarshalCounts(data []byte, dst *map[string]int) error {
	if len(data) == 0 || string(data) == "null" {
		return nil
	}
	return json.Unmarshal(data, dst)
}

func unmarshalMap(data []byte, dst *map[string]any) error {
	if len(data) == 0 || string(data) == "null" {
		return nil
	}
	return json.Unmarshal(data, dst)
}
