package api

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"timeline-backend/internal/timeline/timelineerr"
)

// AdminHandler implements the administrative snapshot-correction endpoints
// named in SPEC_FULL.md §12: manual patches for data entry mistakes, never
// called by the Engine itself.
type AdminHandler struct {
	store SnapshotAdmin
}

// NewAdminHandler builds an AdminHandler over store.
func NewAdminHandler(store SnapshotAdmin) *AdminHandler {
	return &AdminHandler{store: store}
}

type correctionRequest struct {
	PopulationTotal     *int           `json:"population_total,omitempty"`
	PopulationBySpecies map[string]int `json:"population_by_species,omitempty"`
	PopulationByHabitat map[string]int `json:"population_by_habitat,omitempty"`
}

// Correct handles PATCH /api/timeline/entities/{kind}/snapshots/{id}.
func (h *AdminHandler) Correct(w http.ResponseWriter, r *http.Request) {
	kind, ok := parseEntityKind(chi.URLParam(r, "kind"))
	if !ok {
		timelineerr.RespondWithError(w, timelineerr.NewInvalidArgument("kind must be region, province, or settlement"))
		return
	}
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		timelineerr.RespondWithError(w, timelineerr.NewInvalidArgument("invalid snapshot id: %v", err))
		return
	}

	var req correctionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		timelineerr.RespondWithError(w, timelineerr.NewInvalidArgument("malformed request body: %v", err))
		return
	}

	updated, err := h.store.Update(r.Context(), kind, id, req.PopulationTotal, req.PopulationBySpecies, req.PopulationByHabitat)
	if err != nil {
		timelineerr.RespondWithError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(toSnapshotResponse(updated))
}

// Delete handles DELETE /api/timeline/entities/{kind}/snapshots/{id}.
func (h *AdminHandler) Delete(w http.ResponseWriter, r *http.Request) {
	kind, ok := parseEntityKind(chi.URLParam(r, "kind"))
	if !ok {
		timelineerr.RespondWithError(w, timelineerr.NewInvalidArgument("kind must be region, province, or settlement"))
		return
	}
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		timelineerr.RespondWithError(w, timelineerr.NewInvalidArgument("invalid snapshot id: %v", err))
		return
	}

	if err := h.store.Delete(r.Context(), kind, id); err != nil {
		timelineerr.RespondWithError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
