package repo_test

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"timeline-backend/internal/timeline/repo"
	"timeline-backend/internal/timeline/simstate"
)

// newTestPool starts a throwaway Postgres container and applies the minimal
// schema the repo package queries against, grounded on the same
// testcontainers pattern the teacher uses for its own Redis integration
// coverage (internal/cache/cache_integration_test.go).
func newTestPool(t *testing.T) *pgxpool.Pool {
	t.Helper()
	ctx := context.Background()

	req := testcontainers.ContainerRequest{
		Image:        "postgres:16-alpine",
		ExposedPorts: []string{"5432/tcp"},
		Env: map[string]string{
			"POSTGRES_USER":     "postgres",
			"POSTGRES_PASSWORD": "postgres",
			"POSTGRES_DB":       "timeline",
		},
		WaitingFor: wait.ForLog("database system is ready to accept connections").WithOccurrence(2),
	}

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		t.Skip("Docker not available for integration test")
	}
	t.Cleanup(func() { container.Terminate(ctx) })

	host, err := container.Host(ctx)
	require.NoError(t, err)
	port, err := container.MappedPort(ctx, "5432")
	require.NoError(t, err)

	dsn := "postgres://postgres:postgres@" + host + ":" + port.Port() + "/timeline?sslmode=disable"

	var pool *pgxpool.Pool
	require.Eventually(t, func() bool {
		pool, err = pgxpool.New(ctx, dsn)
		return err == nil && pool.Ping(ctx) == nil
	}, 30*time.Second, time.Second)
	t.Cleanup(pool.Close)

	_, err = pool.Exec(ctx, `
		CREATE TABLE regions (
			id uuid PRIMARY KEY,
			name text NOT NULL,
			base_carrying_capacity_override int
		);
		CREATE TABLE provinces (
			id uuid PRIMARY KEY,
			name text NOT NULL,
			base_carrying_capacity_override int
		);
		CREATE TABLE events (
			id bigint PRIMARY KEY,
			region_id uuid REFERENCES regions(id),
			province_id uuid REFERENCES provinces(id),
			astro_day bigint NOT NULL,
			is_deprecated boolean NOT NULL DEFAULT false,
			meta_data jsonb
		);
		CREATE TABLE scheduled_runs (
			entity_kind text NOT NULL,
			entity_id uuid NOT NULL,
			target_end_day bigint NOT NULL,
			granularity text NOT NULL,
			last_resumed_day bigint,
			PRIMARY KEY (entity_kind, entity_id)
		);
	`)
	require.NoError(t, err)

	return pool
}

func TestEntityRepositoryGetRoundTrips(t *testing.T) {
	pool := newTestPool(t)
	ctx := context.Background()
	entities := repo.NewEntityRepository(pool)

	regionID := uuid.New()
	override := 75000
	_, err := pool.Exec(ctx, `INSERT INTO regions (id, name, base_carrying_capacity_override) VALUES ($1, $2, $3)`,
		regionID, "Veyrath", override)
	require.NoError(t, err)

	entity, err := entities.Get(ctx, simstate.EntityKindRegion, regionID)
	require.NoError(t, err)
	require.Equal(t, "Veyrath", entity.Name)
	require.NotNil(t, entity.BaseCarryingCapacityOverride)
	require.Equal(t, override, *entity.BaseCarryingCapacityOverride)
}

func TestEntityRepositoryGetNotFound(t *testing.T) {
	pool := newTestPool(t)
	entities := repo.NewEntityRepository(pool)

	_, err := entities.Get(context.Background(), simstate.EntityKindProvince, uuid.New())
	require.Error(t, err)
}

func TestEventRepositoryListActiveEventsFiltersDeprecatedAndRange(t *testing.T) {
	pool := newTestPool(t)
	ctx := context.Background()
	events := repo.NewEventRepository(pool)

	regionID := uuid.New()
	_, err := pool.Exec(ctx, `INSERT INTO regions (id, name) VALUES ($1, $2)`, regionID, "Veyrath")
	require.NoError(t, err)

	_, err = pool.Exec(ctx, `
		INSERT INTO events (id, region_id, astro_day, is_deprecated, meta_data) VALUES
		(1, $1, 100, false, '{"effects": {"shock_multiplier": 0.5}}'),
		(2, $1, 200, true,  '{"effects": {"shock_multiplier": 0.1}}'),
		(3, $1, 9000, false, '{"effects": {"shock_multiplier": 0.9}}')
	`, regionID)
	require.NoError(t, err)

	result, err := events.ListActiveEvents(ctx, simstate.EntityKindRegion, regionID, 0, 1000)
	require.NoError(t, err)
	require.Len(t, result, 1)
	require.Equal(t, int64(100), result[0].AstroDay)
	require.Equal(t, 0.5, result[0].Effects["shock_multiplier"])
}

func TestScheduledRunRepositoryListDueAndMarkResumed(t *testing.T) {
	pool := newTestPool(t)
	ctx := context.Background()
	runs := repo.NewScheduledRunRepository(pool)

	regionID := uuid.New()
	_, err := pool.Exec(ctx, `
		INSERT INTO scheduled_runs (entity_kind, entity_id, target_end_day, granularity, last_resumed_day)
		VALUES ('region', $1, 730, 'year', 365)
	`, regionID)
	require.NoError(t, err)

	due, err := runs.ListDue(ctx)
	require.NoError(t, err)
	require.Len(t, due, 1)
	require.Equal(t, int64(365), due[0].ResumeDay)
	require.Equal(t, int64(730), due[0].TargetEndDay)

	require.NoError(t, runs.MarkResumed(ctx, simstate.EntityKindRegion, regionID, 730))

	due, err = runs.ListDue(ctx)
	require.NoError(t, err)
	require.Empty(t, due)
}
