package app

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/colligo/internal/common"
	"github.com/ternarybob/colligo/internal/handlers"
	"github.com/ternarybob/colligo/internal/interfaces"
	"github.com/ternarybob/colligo/internal/models"
	"github.com/ternarybob/colligo/internal/services/agent"
	"github.com/ternarybob/colligo/internal/services/browser"
	"github.com/ternarybob/colligo/internal/services/events"
	"github.com/ternarybob/colligo/internal/services/session"
	"github.com/ternarybob/colligo/internal/services/transport"
	"github.com/ternarybob/colligo/internal/storage/badger"
)

// App holds all application components and dependencies
type App struct {
	Config         *common.Config
	Logger         arbor.ILogger
	StorageManager interfaces.StorageManager

	EventService interfaces.EventService

	// Browser and the agent plumbing on top of it
	Browser   *browser.Browser
	Navigator *browser.Navigator
	Registry  *transport.Registry
	Transport interfaces.Transport
	Installer interfaces.AgentInstaller

	SessionService interfaces.SessionService

	// HTTP handlers
	SessionHandler *handlers.SessionHandler
	ProfileHandler *handlers.ProfileHandler
	StatusHandler  *handlers.StatusHandler
	WSHandler      *handlers.WebSocketHandler
}

// New creates and wires all application components. The browser is started
// here; a process that cannot drive its tab has nothing to serve.
func New(ctx context.Context, config *common.Config, logger arbor.ILogger) (*App, error) {
	a := &App{
		Config: config,
		Logger: logger,
	}

	storageManager, err := badger.NewManager(logger, &config.Storage.Badger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize storage: %w", err)
	}
	a.StorageManager = storageManager

	a.EventService = events.NewService(logger)

	a.Browser = browser.NewBrowser(config.Browser, logger)
	if err := a.Browser.Start(ctx); err != nil {
		storageManager.Close()
		return nil, err
	}

	// Navigation destroys the document the agent was parsed from, so every
	// navigation unbinds the current agent before the page changes.
	a.Registry = transport.NewRegistry(logger)
	a.Navigator = browser.NewNavigator(a.Browser, config.Browser, a.Registry.Unbind, logger)
	a.Transport = transport.NewService(a.Registry, config.Transport, logger)
	a.Installer = agent.NewInstaller(a.Navigator, a.Registry, agent.NewDefaultExtractorSet(), logger)

	a.SessionService = session.NewService(
		a.Transport,
		a.Navigator,
		a.Installer,
		a.EventService,
		nil, // default humanized delay from config
		config,
		logger,
	)

	a.WSHandler = handlers.NewWebSocketHandler(a.EventService, config, logger)
	a.WSHandler.SubscribeToSessionEvents()

	a.SessionHandler = handlers.NewSessionHandler(a.SessionService, logger)
	a.ProfileHandler = handlers.NewProfileHandler(storageManager.Profiles(), logger)
	a.StatusHandler = handlers.NewStatusHandler(a.SessionService, storageManager.Profiles(), a.WSHandler, logger)

	a.subscribeHistoryStore()

	logger.Info().Msg("Application components initialized")
	return a, nil
}

// subscribeHistoryStore persists every completed session as a profile record.
func (a *App) subscribeHistoryStore() {
	a.EventService.Subscribe(interfaces.EventSessionComplete, func(ctx context.Context, event interfaces.Event) error {
		payload, ok := event.Payload.(map[string]interface{})
		if !ok {
			return fmt.Errorf("unexpected completion payload type %T", event.Payload)
		}

		record := &models.ProfileRecord{
			ID: uuid.New().String(),
		}
		if targetID, ok := payload["target_id"].(string); ok {
			record.TargetID = targetID
		}
		if data, ok := payload["data"].(map[string]interface{}); ok {
			record.Data = data
			if name, ok := data["name"].(string); ok {
				record.Name = name
			}
		}

		if err := a.StorageManager.Profiles().SaveProfile(record); err != nil {
			a.Logger.Error().Err(err).Str("target_id", record.TargetID).Msg("Failed to persist collection result")
			return err
		}

		a.Logger.Info().
			Str("record_id", record.ID).
			Str("target_id", record.TargetID).
			Msg("Collection result persisted")
		return nil
	})
}

// Close shuts the application down in reverse dependency order.
func (a *App) Close() {
	if a.WSHandler != nil {
		a.WSHandler.Close()
	}
	if a.EventService != nil {
		a.EventService.Close()
	}
	if a.Browser != nil {
		if err := a.Browser.Close(); err != nil {
			a.Logger.Warn().Err(err).Msg("Browser close failed")
		}
	}
	if a.StorageManager != nil {
		if err := a.StorageManager.Close(); err != nil {
			a.Logger.Warn().Err(err).Msg("Storage close failed")
		}
	}
	a.Logger.Info().Msg("Application closed")
}
