package interfaces

import (
	"context"

	"github.com/ternarybob/colligo/internal/models"
)

// SendOptions controls per-call delivery behavior.
type SendOptions struct {
	// Retry enables exactly one retry after a fixed delay when delivery
	// fails. Section requests use this; readiness pings must not.
	Retry bool

	// Quiet suppresses failure logging. A failed ping is an expected
	// outcome during readiness checks and must not produce log noise.
	Quiet bool
}

// Transport is the request/reply primitive between the session controller
// and the page agent bound to the currently displayed document. The channel
// is unreliable: the agent may not exist yet (recoverable failure) or the
// send may fail for other reasons (unclassified failure).
type Transport interface {
	Send(ctx context.Context, msg models.Message, opts SendOptions) (*models.Response, error)
}

// AgentHandler is the command surface a page agent exposes to the transport.
type AgentHandler interface {
	// Handle dispatches one command and returns its response.
	Handle(ctx context.Context, msg models.Message) (*models.Response, error)

	// Alive reports whether the agent still accepts commands.
	Alive() bool

	// Close tears the agent down. Idempotent.
	Close()
}

// AgentInstaller (re)installs a page agent into the current document context.
// Install is idempotent: reinstalling over a live agent must not crash it and
// must not leave two agents answering commands.
type AgentInstaller interface {
	Install(ctx context.Context) error
}
