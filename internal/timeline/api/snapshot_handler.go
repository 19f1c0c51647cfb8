package api

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"timeline-backend/internal/timeline/simstate"
	"timeline-backend/internal/timeline/timelineerr"
)

// SnapshotHandler serves read access to the snapshot store: a single
// interpolated point-in-time read, and a filtered list.
type SnapshotHandler struct {
	store SnapshotReader
}

// NewSnapshotHandler builds a SnapshotHandler over store.
func NewSnapshotHandler(store SnapshotReader) *SnapshotHandler {
	return &SnapshotHandler{store: store}
}

// GetAt handles GET /api/timeline/entities/{kind}/{id}/snapshot?day=N,
// returning the exact, nearest, or linearly interpolated snapshot at day.
func (h *SnapshotHandler) GetAt(w http.ResponseWriter, r *http.Request) {
	kind, entityID, ok := parseEntityPath(w, r)
	if !ok {
		return
	}
	day, err := strconv.ParseInt(r.URL.Query().Get("day"), 10, 64)
	if err != nil {
		timelineerr.RespondWithError(w, timelineerr.NewInvalidArgument("day query param must be an integer"))
		return
	}

	snap, err := h.store.GetInterpolated(r.Context(), kind, entityID, day)
	if err != nil {
		timelineerr.RespondWithError(w, err)
		return
	}
	if snap == nil {
		timelineerr.RespondWithError(w, timelineerr.NewNotFound("no snapshot data available at or around day %d", day))
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(toSnapshotResponse(snap))
}

// List handles GET /api/timeline/entities/{kind}/{id}/snapshots, optionally
// filtered by start_day, end_day, snapshot_type, and granularity. This is
// also the read-only endpoint settlement snapshots are served through,
// since the simulation core never writes them itself (SPEC_FULL.md §12).
func (h *SnapshotHandler) List(w http.ResponseWriter, r *http.Request) {
	kind, entityID, ok := parseEntityPath(w, r)
	if !ok {
		return
	}

	query := r.URL.Query()
	startDay, err := parseOptionalInt64(query.Get("start_day"))
	if err != nil {
		timelineerr.RespondWithError(w, timelineerr.NewInvalidArgument("start_day must be an integer"))
		return
	}
	endDay, err := parseOptionalInt64(query.Get("end_day"))
	if err != nil {
		timelineerr.RespondWithError(w, timelineerr.NewInvalidArgument("end_day must be an integer"))
		return
	}

	snaps, err := h.store.List(r.Context(), kind, entityID, startDay, endDay, query.Get("snapshot_type"), query.Get("granularity"))
	if err != nil {
		timelineerr.RespondWithError(w, err)
		return
	}

	responses := make([]SnapshotResponse, len(snaps))
	for i := range snaps {
		responses[i] = toSnapshotResponse(&snaps[i])
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(responses)
}

// parseEntityPath reads the {kind} and {id} chi route params shared by
// every entity-scoped snapshot route, writing an error response itself on
// failure so callers can just check ok.
func parseEntityPath(w http.ResponseWriter, r *http.Request) (kind simstate.EntityKind, entityID uuid.UUID, ok bool) {
	kind, validKind := parseEntityKind(chi.URLParam(r, "kind"))
	if !validKind {
		timelineerr.RespondWithError(w, timelineerr.NewInvalidArgument("kind must be region, province, or settlement"))
		return "", uuid.UUID{}, false
	}

	entityID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		timelineerr.RespondWithError(w, timelineerr.NewInvalidArgument("invalid entity id: %v", err))
		return "", uuid.UUID{}, false
	}

	return kind, entityID, true
}

func parseOptionalInt64(raw string) (*int64, error) {
	if raw == "" {
		return nil, nil
	}
	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return nil, err
	}
	return &v, nil
}
