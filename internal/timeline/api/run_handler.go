package api

import (
	"encoding/json"
	"net/http"

	"github.com/google/uuid"

	"timeline-backend/internal/timeline/engine"
	"timeline-backend/internal/timeline/metrics"
	"timeline-backend/internal/timeline/simstate"
	"timeline-backend/internal/timeline/timelineerr"
)

// RunHandler starts simulation runs, serializing concurrent runs against
// the same entity via a RunLocker.
type RunHandler struct {
	engine *engine.Engine
	locker RunLocker
	config engine.Config
}

// NewRunHandler builds a RunHandler. config supplies the growth rates and
// factor ranges applied to every run; callers may override seed and day
// range per request.
func NewRunHandler(eng *engine.Engine, locker RunLocker, config engine.Config) *RunHandler {
	return &RunHandler{engine: eng, locker: locker, config: config}
}

// StartRun handles POST /api/timeline/runs.
func (h *RunHandler) StartRun(w http.ResponseWriter, r *http.Request) {
	var req RunRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		timelineerr.RespondWithError(w, timelineerr.NewInvalidArgument("malformed request body: %v", err))
		return
	}

	kind, ok := parseEntityKind(req.EntityKind)
	if !ok || kind == simstate.EntityKindSettlement {
		timelineerr.RespondWithError(w, timelineerr.NewInvalidArgument("entity_kind must be region or province"))
		return
	}
	entityID, err := uuid.Parse(req.EntityID)
	if err != nil {
		timelineerr.RespondWithError(w, timelineerr.NewInvalidArgument("invalid entity_id: %v", err))
		return
	}
	granularity := engine.Granularity(req.Granularity)

	cfg := h.config
	if req.Seed != nil {
		cfg.Seed = req.Seed
	}

	token := uuid.New().String()
	if err := h.locker.Acquire(r.Context(), kind, entityID, token); err != nil {
		timelineerr.RespondWithError(w, err)
		return
	}
	defer h.locker.Release(r.Context(), kind, entityID, token)

	stop := metrics.RunStarted()
	defer stop()

	chunks, err := h.engine.Run(r.Context(), kind, entityID, req.StartDay, req.EndDay, granularity, cfg)
	for _, chunk := range chunks {
		codes := make([]string, len(chunk.Warnings))
		for i, warning := range chunk.Warnings {
			codes[i] = warning.Code
		}
		metrics.RecordChunk(codes)
	}
	if err != nil {
		timelineerr.RespondWithError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(RunResponse{
		EntityKind: string(kind),
		EntityID:   entityID.String(),
		Chunks:     chunks,
	})
}
