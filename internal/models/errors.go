package models

import (
	"errors"
	"fmt"
)

// Sentinel errors for the session and transport layers. The session exposes
// typed errors rather than free-text messages so callers can branch on the
// failure class.
var (
	// ErrSessionBusy is returned by Start while a session is already running.
	// The running session's state is left untouched.
	ErrSessionBusy = errors.New("a collection session is already running")

	// ErrAgentUnavailable is the recoverable delivery failure: no page agent
	// is bound to the current document, typically right after a navigation.
	ErrAgentUnavailable = errors.New("no page agent bound to current document")

	// ErrAgentClosed is returned when a send races with the agent being torn
	// down by a navigation.
	ErrAgentClosed = errors.New("page agent closed")

	// ErrConnection indicates the agent stayed unreachable after the full
	// readiness protocol (pings, reinstall, pings again).
	ErrConnection = errors.New("page agent unreachable after readiness protocol")

	// ErrMainScrapeFailed indicates the agent was reachable but returned no
	// profile. This is the only failure that is fatal for the whole session.
	ErrMainScrapeFailed = errors.New("main scrape returned no profile")

	// ErrNavigationStall indicates the load-complete signal was not observed
	// before the configured deadline.
	ErrNavigationStall = errors.New("page load not observed before deadline")
)

// DeliveryError classifies a transport send failure. Recoverable failures
// (agent not yet installed) are expected during readiness checks; anything
// else is unclassified and surfaced as-is.
type DeliveryError struct {
	Recoverable bool
	Err         error
}

func (e *DeliveryError) Error() string {
	if e.Recoverable {
		return fmt.Sprintf("recoverable delivery failure: %v", e.Err)
	}
	return fmt.Sprintf("delivery failure: %v", e.Err)
}

func (e *DeliveryError) Unwrap() error {
	return e.Err
}

// NewRecoverableDelivery wraps err as a recoverable delivery failure.
func NewRecoverableDelivery(err error) *DeliveryError {
	return &DeliveryError{Recoverable: true, Err: err}
}

// NewDeliveryFailure wraps err as an unclassified delivery failure.
func NewDeliveryFailure(err error) *DeliveryError {
	return &DeliveryError{Recoverable: false, Err: err}
}

// IsRecoverableDelivery reports whether err is a delivery failure the
// readiness protocol can fix by reinstalling the agent.
func IsRecoverableDelivery(err error) bool {
	var de *DeliveryError
	if errors.As(err, &de) {
		return de.Recoverable
	}
	return false
}
