package api

import (
	"github.com/go-chi/chi/v5"

	"timeline-backend/internal/timeline/engine"
	"timeline-backend/internal/timeline/snapshot"
)

// NewRouter builds the chi router for the timeline HTTP surface: starting
// runs, reading snapshots, and administrative corrections.
func NewRouter(eng *engine.Engine, store *snapshot.Store, locker RunLocker, cfg engine.Config) chi.Router {
	runHandler := NewRunHandler(eng, locker, cfg)
	snapshotHandler := NewSnapshotHandler(store)
	adminHandler := NewAdminHandler(store)

	r := chi.NewRouter()
	r.Route("/api/timeline", func(r chi.Router) {
		r.Post("/runs", runHandler.StartRun)

		r.Route("/entities/{kind}/{id}", func(r chi.Router) {
			r.Get("/snapshot", snapshotHandler.GetAt)
			r.Get("/snapshots", snapshotHandler.List)
		})

		r.Patch("/entities/{kind}/snapshots/{id}", adminHandler.Correct)
		r.Delete("/entities/{kind}/snapshots/{id}", adminHandler.Delete)
	})

	return r
}
