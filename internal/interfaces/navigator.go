package interfaces

import (
	"context"

	"github.com/ternarybob/colligo/internal/models"
)

// Navigator changes the observed document's location and signals when
// loading has settled. There is exactly one observed document; navigation
// and extraction require it exclusively, so calls are never overlapped.
type Navigator interface {
	// Navigate points the document at url. It arms the load-complete signal
	// before issuing the navigation and does not wait for the load itself.
	Navigate(ctx context.Context, url string) error

	// WaitLoadComplete blocks until the first load-complete transition after
	// the last Navigate, then disarms. Returns models.ErrNavigationStall if
	// the signal is not observed before the configured deadline.
	WaitLoadComplete(ctx context.Context) error

	// CurrentLocation returns the document's current URL.
	CurrentLocation(ctx context.Context) (string, error)

	// Snapshot captures the rendered DOM and location of the current page.
	Snapshot(ctx context.Context) (*models.PageSnapshot, error)
}
