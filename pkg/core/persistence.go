package core

import (
	"context"
	"log/slog"
	"time"

	"carnav/pkg/store"
	"carnav/pkg/viewport"
)

// ViewPersistenceJob periodically saves the map view so a crash loses at
// most one interval. Saves are skipped while the view is unchanged.
type ViewPersistenceJob struct {
	*TimeJob
	view *viewport.Model
	st   store.StateStore

	lastSaved viewport.Position
	saved     bool
}

// NewViewPersistenceJob creates a new persistence job.
func NewViewPersistenceJob(interval time.Duration, view *viewport.Model, st store.StateStore) *ViewPersistenceJob {
	j := &ViewPersistenceJob{
		view: view,
		st:   st,
	}
	j.TimeJob = NewTimeJob("ViewPersistence", interval, j.checkAndSave)
	return j
}

func (j *ViewPersistenceJob) checkAndSave(ctx context.Context) {
	pos := j.view.Position()

	// Dirty check
	if j.saved && pos == j.lastSaved {
		return
	}

	if err := j.view.SavePosition(ctx, j.st); err != nil {
		slog.Error("Persistence: Failed to save view", "error", err)
		return
	}
	j.lastSaved = pos
	j.saved = true
	slog.Debug("Persistence: View saved", "lat", pos.Center.Lat, "lon", pos.Center.Lon, "zoom", pos.Zoom)
}
