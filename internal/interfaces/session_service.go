package interfaces

import (
	"context"

	"github.com/ternarybob/colligo/internal/models"
)

// SessionService owns the single process-wide collection session.
type SessionService interface {
	// Start begins a collection run for targetID and returns the new
	// session's report. Returns models.ErrSessionBusy, without mutating the
	// running session, while a run is in flight.
	Start(ctx context.Context, targetID string) (*models.SessionReport, error)

	// Status returns a snapshot of the current (or most recent) session,
	// or an idle report when no session has run yet.
	Status() *models.SessionReport
}
