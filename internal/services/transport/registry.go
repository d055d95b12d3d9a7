package transport

import (
	"sync"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/colligo/internal/interfaces"
)

// Registry tracks the page agent bound to the currently displayed document.
// There is at most one bound agent at a time: navigation destroys the
// document the agent was reading, so the navigator unbinds on every
// navigation and the readiness protocol binds a fresh agent afterwards.
type Registry struct {
	mu      sync.RWMutex
	handler interfaces.AgentHandler
	logger  arbor.ILogger
}

// NewRegistry creates an empty agent registry.
func NewRegistry(logger arbor.ILogger) *Registry {
	return &Registry{logger: logger}
}

// Bind installs handler as the current agent. Any previously bound agent is
// closed first, so reinstalling over a live agent never leaves two agents
// answering commands.
func (r *Registry) Bind(handler interfaces.AgentHandler) {
	r.mu.Lock()
	previous := r.handler
	r.handler = handler
	r.mu.Unlock()

	if previous != nil {
		previous.Close()
		r.logger.Debug().Msg("Previous page agent closed on rebind")
	}
}

// Unbind detaches and closes the current agent, if any.
func (r *Registry) Unbind() {
	r.mu.Lock()
	previous := r.handler
	r.handler = nil
	r.mu.Unlock()

	if previous != nil {
		previous.Close()
	}
}

// Current returns the bound agent, or nil when the document has no agent.
func (r *Registry) Current() interfaces.AgentHandler {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.handler
}

// Alive reports whether a bound agent is accepting commands.
func (r *Registry) Alive() bool {
	r.mu.RLock()
	handler := r.handler
	r.mu.RUnlock()
	return handler != nil && handler.Alive()
}
