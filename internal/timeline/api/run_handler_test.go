package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	"timeline-backend/internal/timeline/effects"
	"timeline-backend/internal/timeline/engine"
	"timeline-backend/internal/timeline/repo"
	"timeline-backend/internal/timeline/simstate"
	"timeline-backend/internal/timeline/snapshot"
	"timeline-backend/internal/timeline/timelineerr"
)

type mockLocker struct {
	mock.Mock
}

func (m *mockLocker) Acquire(ctx context.Context, kind simstate.EntityKind, entityID uuid.UUID, token string) error {
	return m.Called(ctx, kind, entityID, token).Error(0)
}

func (m *mockLocker) Release(ctx context.Context, kind simstate.EntityKind, entityID uuid.UUID, token string) error {
	return m.Called(ctx, kind, entityID, token).Error(0)
}

type stubEntities struct {
	entity *repo.Entity
}

func (s *stubEntities) Get(ctx context.Context, kind simstate.EntityKind, id uuid.UUID) (*repo.Entity, error) {
	return s.entity, nil
}

type stubEvents struct{}

func (stubEvents) ListActiveEvents(ctx context.Context, kind simstate.EntityKind, id uuid.UUID, startDay, endDay int64) ([]effects.Event, error) {
	return nil, nil
}

type stubSnapshots struct{}

func (stubSnapshots) GetAt(ctx context.Context, kind simstate.EntityKind, entityID uuid.UUID, day int64) (*snapshot.Snapshot, error) {
	return nil, nil
}

func (stubSnapshots) Create(ctx context.Context, snap snapshot.Snapshot) (*snapshot.Snapshot, error) {
	stored := snap
	return &stored, nil
}

func (stubSnapshots) GetInterpolated(ctx context.Context, kind simstate.EntityKind, entityID uuid.UUID, day int64) (*snapshot.Snapshot, error) {
	return nil, nil
}

func TestStartRunRejectsUnlockableEntity(t *testing.T) {
	entityID := uuid.New()
	eng := engine.New(&stubEntities{entity: &repo.Entity{ID: entityID, Name: "Region"}}, stubEvents{}, stubSnapshots{}, zerolog.Nop())

	locker := new(mockLocker)
	locker.On("Acquire", mock.Anything, simstate.EntityKindRegion, entityID, mock.Anything).
		Return(timelineerr.NewDuplicate("a run is already in progress for region %s", entityID))

	handler := NewRunHandler(eng, locker, engine.DefaultConfig())

	body, _ := json.Marshal(RunRequest{EntityKind: "region", EntityID: entityID.String(), StartDay: 0, EndDay: 100, Granularity: "year"})
	req := httptest.NewRequest(http.MethodPost, "/api/timeline/runs", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	handler.StartRun(rec, req)

	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestStartRunSucceeds(t *testing.T) {
	entityID := uuid.New()
	eng := engine.New(&stubEntities{entity: &repo.Entity{ID: entityID, Name: "Region"}}, stubEvents{}, stubSnapshots{}, zerolog.Nop())

	locker := new(mockLocker)
	locker.On("Acquire", mock.Anything, simstate.EntityKindRegion, entityID, mock.Anything).Return(nil)
	locker.On("Release", mock.Anything, simstate.EntityKindRegion, entityID, mock.Anything).Return(nil)

	cfg := engine.DefaultConfig()
	seed := int64(1)
	cfg.Seed = &seed

	handler := NewRunHandler(eng, locker, cfg)

	body, _ := json.Marshal(RunRequest{EntityKind: "region", EntityID: entityID.String(), StartDay: 0, EndDay: 365, Granularity: "year"})
	req := httptest.NewRequest(http.MethodPost, "/api/timeline/runs", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	handler.StartRun(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)

	var resp RunResponse
	assert.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Len(t, resp.Chunks, 1)
}

func TestStartRunRejectsMalformedBody(t *testing.T) {
	handler := NewRunHandler(nil, new(mockLocker), engine.DefaultConfig())

	req := httptest.NewRequest(http.MethodPost, "/api/timeline/runs", bytes.NewReader([]byte("not json")))
	rec := httptest.NewRecorder()
	handler.StartRun(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
