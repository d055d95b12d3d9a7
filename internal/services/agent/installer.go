package agent

import (
	"context"
	"fmt"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/colligo/internal/interfaces"
)

// registryBinder is the slice of the transport registry the installer needs.
type registryBinder interface {
	Bind(handler interfaces.AgentHandler)
	Alive() bool
}

// Installer (re)installs a page agent into the current document context.
// Implements interfaces.AgentInstaller.
type Installer struct {
	navigator  interfaces.Navigator
	registry   registryBinder
	extractors *ExtractorSet
	logger     arbor.ILogger
}

// NewInstaller creates an installer over the given navigator and registry.
func NewInstaller(navigator interfaces.Navigator, registry registryBinder, extractors *ExtractorSet, logger arbor.ILogger) *Installer {
	return &Installer{
		navigator:  navigator,
		registry:   registry,
		extractors: extractors,
		logger:     logger,
	}
}

// Install snapshots the current page and binds a fresh agent to it.
// Idempotent: a live agent is left untouched, and binding replaces any stale
// handler so there is never more than one agent answering commands.
func (i *Installer) Install(ctx context.Context) error {
	if i.registry.Alive() {
		i.logger.Debug().Msg("Page agent already alive, skipping reinstall")
		return nil
	}

	snapshot, err := i.navigator.Snapshot(ctx)
	if err != nil {
		return fmt.Errorf("failed to snapshot page for agent install: %w", err)
	}

	a, err := New(snapshot, i.extractors, i.logger)
	if err != nil {
		return fmt.Errorf("failed to install page agent: %w", err)
	}

	i.registry.Bind(a)
	return nil
}
